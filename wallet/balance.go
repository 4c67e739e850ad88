package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tarancss/custody/lib/block/types"
	"github.com/tarancss/custody/lib/store"
	"github.com/tarancss/custody/lib/util"
)

// BalanceDecimals is the number of decimals of formatted balances.
const BalanceDecimals = 6

// BalanceInfo is the balance of an address as replied to clients.
type BalanceInfo struct {
	Address          string    `json:"address"`
	Balance          string    `json:"balance"`
	Network          string    `json:"network"`
	FormattedBalance string    `json:"formattedBalance"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

// Format returns bal with a fixed number of decimals and the currency symbol.
func Format(bal decimal.Decimal) string {
	return bal.StringFixed(BalanceDecimals) + " " + types.NativeAsset
}

func (w *Wallet) info(address string, bal decimal.Decimal) BalanceInfo {
	return BalanceInfo{
		Address:          address,
		Balance:          bal.String(),
		Network:          w.conf.Network,
		FormattedBalance: Format(bal),
		LastUpdated:      time.Now().UTC(),
	}
}

// refresh queries the live balance of address and, when owned is set, saves it as the cached balance of the wallet
// holding address. Malformed addresses are refused before any provider call.
func (w *Wallet) refresh(ctx context.Context, address string, owned bool) (decimal.Decimal, error) {
	if !util.IsAddress(address) {
		return decimal.Zero, ErrInvalidAddress
	}

	cctx, cancel := w.call(ctx)
	bal, err := w.signer.Balance(cctx, address)
	cancel()

	if err != nil {
		return decimal.Zero, upstream(err)
	}

	if owned {
		if err = w.db.SetBalance(ctx, util.Normalize(address), bal.String()); err != nil {
			return bal, err
		}
	}

	return bal, nil
}

// Refresh returns the live balance of address. When address belongs to a custodial wallet its cached balance is
// updated too.
func (w *Wallet) Refresh(ctx context.Context, address string) (BalanceInfo, error) {
	if !util.IsAddress(address) {
		return BalanceInfo{}, ErrInvalidAddress
	}

	_, err := w.db.WalletByAddress(ctx, util.Normalize(address))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return BalanceInfo{}, err
	}

	bal, err := w.refresh(ctx, address, err == nil)
	if err != nil {
		return BalanceInfo{}, err
	}

	return w.info(address, bal), nil
}

// Balance refreshes and returns the balance of the active wallet of owner.
func (w *Wallet) Balance(ctx context.Context, owner string) (BalanceInfo, error) {
	wa, err := w.activeWallet(ctx, owner, false)
	if err != nil {
		return BalanceInfo{}, err
	}

	bal, err := w.refresh(ctx, wa.Address, true)
	if err != nil {
		return BalanceInfo{}, err
	}

	return w.info(wa.Address, bal), nil
}

// AddressBalance returns the live balance of any address. Nothing is saved.
func (w *Wallet) AddressBalance(ctx context.Context, address string) (BalanceInfo, error) {
	bal, err := w.refresh(ctx, address, false)
	if err != nil {
		return BalanceInfo{}, err
	}

	return w.info(address, bal), nil
}

// TransferGas is the gas used by a plain ether transfer.
const TransferGas = 21000

// GasInfo is the current gas price of the network and the fee of a plain transfer at that price, both in ether.
type GasInfo struct {
	Network     string `json:"network"`
	Price       string `json:"price"`
	TransferFee string `json:"transferFee"`
	GasBuffer   string `json:"gasBuffer"`
}

// GasPrice returns the gas price suggested by the signing provider.
func (w *Wallet) GasPrice(ctx context.Context) (GasInfo, error) {
	cctx, cancel := w.call(ctx)
	defer cancel()

	price, err := w.signer.GasPrice(cctx)
	if err != nil {
		return GasInfo{}, upstream(err)
	}

	return GasInfo{
		Network:     w.conf.Network,
		Price:       price.String(),
		TransferFee: price.Mul(decimal.NewFromInt(TransferGas)).String(),
		GasBuffer:   w.conf.GasBuffer.String(),
	}, nil
}
