// Package ethereum implements the full capability provider for ethereum networks served by an Alchemy compatible
// JSON-RPC node: keypair generation, balances, signed broadcasts, transaction and receipt lookups, asset transfers
// and address registration for notifications.
package ethereum

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"
	"github.com/tarancss/hd"
	"github.com/tyler-smith/go-bip39"

	"github.com/tarancss/custody/lib/block/types"
	"github.com/tarancss/custody/lib/config"
	"github.com/tarancss/custody/lib/util"
)

// NotifyURL is the default endpoint used to add addresses to a notification webhook.
const NotifyURL = "https://dashboard.alchemy.com/api/update-webhook-addresses"

// TransferGas is the gas limit of a plain ether transfer.
const TransferGas uint64 = 21000

// Categories requested from alchemy_getAssetTransfers.
var Categories = []string{"external", "internal", "erc20", "erc721", "erc1155"} //nolint:gochecknoglobals // constant

// Ethereum implements a connection to an ethereum-type chain.
type Ethereum struct {
	types.Unimplemented

	name string
	rc   *rpc.Client
	ec   *ethclient.Client
	hc   *http.Client

	webhookID   string
	notifyURL   string
	notifyToken string
}

// Init returns a connection to the node configured in p.
func Init(p config.ProviderConfig) (*Ethereum, error) {
	rc, err := rpc.DialContext(context.Background(), p.Node)
	if err != nil {
		return nil, err
	}

	e := &Ethereum{
		name:        p.Name,
		rc:          rc,
		ec:          ethclient.NewClient(rc),
		hc:          &http.Client{},
		webhookID:   p.WebhookID,
		notifyURL:   p.NotifyURL,
		notifyToken: p.NotifyToken,
	}
	if e.notifyURL == "" {
		e.notifyURL = NotifyURL
	}

	return e, nil
}

// Name returns the configured name of the provider.
func (e *Ethereum) Name() string { return e.name }

// Close ends a connection
func (e *Ethereum) Close() {
	e.ec.Close()
}

// CreateWallet generates a 12 word mnemonic and derives the first external key of its BIP-44 wallet.
func (e *Ethereum) CreateWallet(_ context.Context) (types.Keypair, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return types.Keypair{}, err
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return types.Keypair{}, err
	}

	w, err := hd.Init(bip39.NewSeed(mnemonic, ""))
	if err != nil {
		return types.Keypair{}, err
	}

	_, key, _, err := w.Address(0, hd.External, 0)
	if err != nil {
		return types.Keypair{}, err
	}

	pk, err := crypto.ToECDSA(key)
	if err != nil {
		return types.Keypair{}, err
	}

	return types.Keypair{
		Address:    strings.ToLower(crypto.PubkeyToAddress(pk.PublicKey).Hex()),
		PrivateKey: hex.EncodeToString(key),
		Mnemonic:   mnemonic,
	}, nil
}

// Balance returns the ether balance of address.
func (e *Ethereum) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	wei, err := e.ec.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return decimal.Zero, upstream(err)
	}

	return util.FromWei(wei), nil
}

// GasPrice returns the suggested gas price in ether.
func (e *Ethereum) GasPrice(ctx context.Context) (decimal.Decimal, error) {
	wei, err := e.ec.SuggestGasPrice(ctx)
	if err != nil {
		return decimal.Zero, upstream(err)
	}

	return util.FromWei(wei), nil
}

// Send signs a legacy ether transfer of amount to address with key and broadcasts it. key is hex encoded, with or
// without the 0x prefix.
func (e *Ethereum) Send(ctx context.Context, key, to string, amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", types.ErrWrongAmt
	}

	pk, err := crypto.HexToECDSA(strings.TrimPrefix(key, "0x"))
	if err != nil {
		return "", err
	}

	from := crypto.PubkeyToAddress(pk.PublicKey)

	nonce, err := e.ec.PendingNonceAt(ctx, from)
	if err != nil {
		return "", upstream(err)
	}

	price, err := e.ec.SuggestGasPrice(ctx)
	if err != nil {
		return "", upstream(err)
	}

	chainID, err := e.ec.ChainID(ctx)
	if err != nil {
		return "", upstream(err)
	}

	toAddr := common.HexToAddress(to)
	tx := gtypes.NewTx(&gtypes.LegacyTx{
		Nonce:    nonce,
		To:       &toAddr,
		Value:    util.ToWei(amount),
		Gas:      TransferGas,
		GasPrice: price,
	})

	signed, err := gtypes.SignTx(tx, gtypes.LatestSignerForChainID(chainID), pk)
	if err != nil {
		return "", err
	}

	if err = e.ec.SendTransaction(ctx, signed); err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return "", fmt.Errorf("%w: %s", types.ErrRejected, rpcErr.Error())
		}

		return "", upstream(err)
	}

	return signed.Hash().Hex(), nil
}

// Get returns the details of the transaction for the given hash. Mined transactions carry the receipt status and
// the number of confirmations.
func (e *Ethereum) Get(ctx context.Context, hash string) (*types.Trans, error) {
	var raw *types.RawTx
	if err := e.rc.CallContext(ctx, &raw, "eth_getTransactionByHash", hash); err != nil {
		return nil, upstream(err)
	}

	if raw == nil {
		return nil, types.ErrNoTrx
	}

	t := raw.Trans()
	if raw.BlockNumber == nil {
		return t, nil
	}

	var rc *types.RawReceipt
	if err := e.rc.CallContext(ctx, &rc, "eth_getTransactionReceipt", hash); err != nil {
		return nil, upstream(err)
	}

	if rc == nil {
		return t, nil
	}

	head, err := e.ec.BlockNumber(ctx)
	if err != nil {
		return nil, upstream(err)
	}

	t.Apply(*rc, head)

	if ts, err := e.BlockTime(ctx, t.Block); err == nil {
		t.TS = uint32(ts.Unix())
	}

	return t, nil
}

// Receipt returns the execution status of a mined transaction, or types.ErrNoReceipt.
func (e *Ethereum) Receipt(ctx context.Context, hash string) (types.Receipt, error) {
	var rc *types.RawReceipt
	if err := e.rc.CallContext(ctx, &rc, "eth_getTransactionReceipt", hash); err != nil {
		return types.Receipt{}, upstream(err)
	}

	if rc == nil {
		return types.Receipt{}, types.ErrNoReceipt
	}

	return types.Receipt{Status: uint64(rc.Status), BlockNumber: uint64(rc.BlockNumber)}, nil
}

// BlockTime returns the timestamp of the block numbered block (hex).
func (e *Ethereum) BlockTime(ctx context.Context, block string) (time.Time, error) {
	n, ok := util.ParseBlock(block)
	if !ok {
		return time.Time{}, types.ErrNoBlock
	}

	var b *types.RawBlock
	if err := e.rc.CallContext(ctx, &b, "eth_getBlockByNumber", hexutil.EncodeUint64(n), false); err != nil {
		return time.Time{}, upstream(err)
	}

	if b == nil {
		return time.Time{}, types.ErrNoBlock
	}

	return time.Unix(int64(b.Timestamp), 0).UTC(), nil
}

type transferParams struct {
	FromBlock   string   `json:"fromBlock"`
	FromAddress string   `json:"fromAddress,omitempty"`
	ToAddress   string   `json:"toAddress,omitempty"`
	Category    []string `json:"category"`
	MaxCount    string   `json:"maxCount"`
}

type rawTransfer struct {
	Hash     string       `json:"hash"`
	From     *string      `json:"from"`
	To       *string      `json:"to"`
	Value    *json.Number `json:"value"`
	Asset    *string      `json:"asset"`
	Category string       `json:"category"`
	BlockNum string       `json:"blockNum"`
}

// Transfers returns up to 100 asset transfers sent or received by address, from the genesis block.
func (e *Ethereum) Transfers(ctx context.Context, address string, dir types.Direction) ([]types.Transfer, error) {
	p := transferParams{FromBlock: "0x0", Category: Categories, MaxCount: "0x64"}
	if dir == types.Sent {
		p.FromAddress = address
	} else {
		p.ToAddress = address
	}

	var res struct {
		Transfers []rawTransfer `json:"transfers"`
	}

	if err := e.rc.CallContext(ctx, &res, "alchemy_getAssetTransfers", p); err != nil {
		return nil, upstream(err)
	}

	ts := make([]types.Transfer, 0, len(res.Transfers))
	for _, r := range res.Transfers {
		ts = append(ts, types.Transfer{
			Hash:     r.Hash,
			From:     deref(r.From),
			To:       deref(r.To),
			Value:    deref((*string)(r.Value)),
			Asset:    deref(r.Asset),
			Category: r.Category,
			BlockNum: r.BlockNum,
		})
	}

	return ts, nil
}

// Register adds address to the configured notification webhook.
func (e *Ethereum) Register(ctx context.Context, address string) (bool, error) {
	if e.webhookID == "" {
		return false, types.ErrNoWebhook
	}

	body, err := json.Marshal(map[string]interface{}{
		"webhook_id":          e.webhookID,
		"addresses_to_add":    []string{strings.TrimSpace(address)},
		"addresses_to_remove": []string{},
	})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, e.notifyURL, bytes.NewReader(body))
	if err != nil {
		return false, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Alchemy-Token", e.notifyToken)

	resp, err := e.hc.Do(req)
	if err != nil {
		return false, upstream(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return false, fmt.Errorf("%w: notify status %d", types.ErrUpstream, resp.StatusCode)
	}

	return true, nil
}

func upstream(err error) error {
	return fmt.Errorf("%w: %w", types.ErrUpstream, err)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
