// Package block defines the interface required for all chain data providers.
package block

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tarancss/custody/lib/block/ethereum"
	"github.com/tarancss/custody/lib/block/etherscan"
	"github.com/tarancss/custody/lib/block/node"
	"github.com/tarancss/custody/lib/block/types"
	"github.com/tarancss/custody/lib/config"
	"github.com/tarancss/custody/lib/logger"
)

// ErrNotImplemented is returned by providers for the operations they do not support.
var ErrNotImplemented = types.ErrNotImplemented

// Provider is the capability set of a chain data backend. Backends that only support part of it embed
// types.Unimplemented, so calling an unsupported operation fails with ErrNotImplemented.
type Provider interface {
	Name() string
	Close()

	// CreateWallet generates a new keypair and its recovery phrase.
	CreateWallet(ctx context.Context) (types.Keypair, error)
	// Balance returns the balance of address in the network currency.
	Balance(ctx context.Context, address string) (decimal.Decimal, error)
	// Send signs with key and broadcasts a transfer of amount to address, returning the transaction hash.
	Send(ctx context.Context, key, to string, amount decimal.Decimal) (string, error)
	// Get returns the details of a transaction, or types.ErrNoTrx.
	Get(ctx context.Context, hash string) (*types.Trans, error)
	// History returns one page of the address-indexed transaction listing.
	History(ctx context.Context, address string, page, pageSize int) ([]types.HistoryItem, error)
	// Transfers returns the asset transfers sent or received by address.
	Transfers(ctx context.Context, address string, dir types.Direction) ([]types.Transfer, error)
	// Receipt returns the execution outcome of a mined transaction.
	Receipt(ctx context.Context, hash string) (types.Receipt, error)
	// BlockTime returns the timestamp of a block given its hex number.
	BlockTime(ctx context.Context, block string) (time.Time, error)
	GasPrice(ctx context.Context) (decimal.Decimal, error)
	// Register adds address to the provider's notification webhook.
	Register(ctx context.Context, address string) (bool, error)
}

// Init builds the providers read from the config into a map by name.
func Init(pc []config.ProviderConfig, timeout time.Duration) (map[string]Provider, error) {
	m := make(map[string]Provider)

	for _, p := range pc {
		var (
			prov Provider
			err  error
		)

		switch p.Kind {
		case config.KindEthereum:
			prov, err = ethereum.Init(p)
		case config.KindEtherscan:
			prov = etherscan.New(p, timeout)
		case config.KindNode:
			prov, err = node.Init(p)
		default:
			logger.Log.Warn("provider kind not defined, ignoring", zap.String("name", p.Name), zap.String("kind", p.Kind))

			continue
		}

		if err != nil {
			End(m)

			return nil, fmt.Errorf("cannot connect to provider %s: %w", p.Name, err)
		}

		m[p.Name] = Observe(prov)
	}

	return m, nil
}

// End closes gracefully all the provider clients opened.
func End(m map[string]Provider) {
	for _, p := range m {
		p.Close()
	}
}
