// Package etherscan implements a read-only provider on top of an Etherscan compatible REST API: paged transaction
// listings by address, balances and JSON-RPC proxy lookups. It cannot sign nor broadcast.
package etherscan

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"github.com/tarancss/custody/lib/block/types"
	"github.com/tarancss/custody/lib/config"
	"github.com/tarancss/custody/lib/util"
)

// noTxs is the message returned with status "0" when an address has no transactions.
const noTxs = "No transactions found"

// Etherscan implements a client of an Etherscan compatible API.
type Etherscan struct {
	types.Unimplemented

	name   string
	base   string
	apiKey string
	hc     *http.Client
}

// New returns a client for the API configured in p.
func New(p config.ProviderConfig, timeout time.Duration) *Etherscan {
	return &Etherscan{
		name:   p.Name,
		base:   p.Node,
		apiKey: p.APIKey,
		hc:     &http.Client{Timeout: timeout},
	}
}

// Name returns the configured name of the provider.
func (e *Etherscan) Name() string { return e.name }

// Close releases idle connections.
func (e *Etherscan) Close() { e.hc.CloseIdleConnections() }

// envelope is the reply of every module. Proxy replies carry the JSON-RPC fields instead of Status and Message.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *Etherscan) call(ctx context.Context, params url.Values, result interface{}) error {
	params.Set("apikey", e.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.base+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := e.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", types.ErrUpstream, resp.StatusCode)
	}

	var env envelope
	if err = json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: %w", types.ErrBadResponse, err)
	}

	switch {
	case env.Error != nil:
		return fmt.Errorf("%w: %s", types.ErrUpstream, env.Error.Message)
	case env.Status == "0" && env.Message == noTxs:
		return nil
	case env.Status == "0":
		return fmt.Errorf("%w: %s %s", types.ErrUpstream, env.Message, string(env.Result))
	}

	if err = json.Unmarshal(env.Result, result); err != nil {
		return fmt.Errorf("%w: %w", types.ErrBadResponse, err)
	}

	return nil
}

// Balance returns the ether balance of address.
func (e *Etherscan) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	var wei string

	params := url.Values{"module": {"account"}, "action": {"balance"}, "address": {address}, "tag": {"latest"}}
	if err := e.call(ctx, params, &wei); err != nil {
		return decimal.Zero, err
	}

	n, ok := new(big.Int).SetString(wei, 10)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: balance %q", types.ErrBadResponse, wei)
	}

	return util.FromWei(n), nil
}

type listedTx struct {
	BlockNumber string `json:"blockNumber"`
	TimeStamp   string `json:"timeStamp"`
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	IsError     string `json:"isError"`
}

// History returns one page of the transactions of address, most recent first. When the page is not full the total
// number of items and pages are known and attached to every item.
func (e *Etherscan) History(ctx context.Context, address string, page, pageSize int) ([]types.HistoryItem, error) {
	var txs []listedTx

	params := url.Values{
		"module":     {"account"},
		"action":     {"txlist"},
		"address":    {address},
		"page":       {strconv.Itoa(page)},
		"offset":     {strconv.Itoa(pageSize)},
		"startblock": {"0"},
		"endblock":   {"99999999"},
		"sort":       {"desc"},
	}
	if err := e.call(ctx, params, &txs); err != nil {
		return nil, err
	}

	meta := types.Page{Page: page, PageSize: pageSize}
	if len(txs) < pageSize {
		items, pages := (page-1)*pageSize+len(txs), page
		meta.TotalItems, meta.TotalPages = &items, &pages
	}

	hs := make([]types.HistoryItem, 0, len(txs))
	for _, t := range txs {
		h := types.HistoryItem{
			Kind:        types.KindIndexed,
			Hash:        t.Hash,
			From:        t.From,
			To:          t.To,
			Value:       "0",
			BlockNumber: t.BlockNumber,
			Status:      types.StatusConfirmed,
			Page:        &meta,
		}

		if n, ok := util.ParseBlock(t.BlockNumber); ok {
			h.BlockNumber = hexutil.EncodeUint64(n)
		}

		if wei, ok := new(big.Int).SetString(t.Value, 10); ok {
			h.Value = util.FromWei(wei).String()
		}

		if t.IsError == "1" {
			h.Status = types.StatusFailed
		}

		if ts, err := strconv.ParseInt(t.TimeStamp, 10, 64); err == nil {
			h.Timestamp = time.Unix(ts, 0).UTC()
		}

		hs = append(hs, h)
	}

	return hs, nil
}

func (e *Etherscan) proxy(ctx context.Context, action string, result interface{}, kv ...string) error {
	params := url.Values{"module": {"proxy"}, "action": {action}}
	for i := 0; i+1 < len(kv); i += 2 {
		params.Set(kv[i], kv[i+1])
	}

	return e.call(ctx, params, result)
}

// Get returns the details of the transaction for the given hash.
func (e *Etherscan) Get(ctx context.Context, hash string) (*types.Trans, error) {
	var raw *types.RawTx
	if err := e.proxy(ctx, "eth_getTransactionByHash", &raw, "txhash", hash); err != nil {
		return nil, err
	}

	if raw == nil {
		return nil, types.ErrNoTrx
	}

	t := raw.Trans()
	if raw.BlockNumber == nil {
		return t, nil
	}

	var rc *types.RawReceipt
	if err := e.proxy(ctx, "eth_getTransactionReceipt", &rc, "txhash", hash); err != nil {
		return nil, err
	}

	if rc == nil {
		return t, nil
	}

	var head hexutil.Uint64
	if err := e.proxy(ctx, "eth_blockNumber", &head); err != nil {
		return nil, err
	}

	t.Apply(*rc, uint64(head))

	return t, nil
}

// Receipt returns the execution status of a mined transaction, or types.ErrNoReceipt.
func (e *Etherscan) Receipt(ctx context.Context, hash string) (types.Receipt, error) {
	var rc *types.RawReceipt
	if err := e.proxy(ctx, "eth_getTransactionReceipt", &rc, "txhash", hash); err != nil {
		return types.Receipt{}, err
	}

	if rc == nil {
		return types.Receipt{}, types.ErrNoReceipt
	}

	return types.Receipt{Status: uint64(rc.Status), BlockNumber: uint64(rc.BlockNumber)}, nil
}

// BlockTime returns the timestamp of the block numbered block (hex).
func (e *Etherscan) BlockTime(ctx context.Context, block string) (time.Time, error) {
	n, ok := util.ParseBlock(block)
	if !ok {
		return time.Time{}, types.ErrNoBlock
	}

	var b *types.RawBlock
	if err := e.proxy(ctx, "eth_getBlockByNumber", &b, "tag", hexutil.EncodeUint64(n), "boolean", "false"); err != nil {
		return time.Time{}, err
	}

	if b == nil {
		return time.Time{}, types.ErrNoBlock
	}

	return time.Unix(int64(b.Timestamp), 0).UTC(), nil
}

// GasPrice returns the current gas price in ether.
func (e *Etherscan) GasPrice(ctx context.Context) (decimal.Decimal, error) {
	var wei hexutil.Big
	if err := e.proxy(ctx, "eth_gasPrice", &wei); err != nil {
		return decimal.Zero, err
	}

	return util.FromWei(wei.ToInt()), nil
}
