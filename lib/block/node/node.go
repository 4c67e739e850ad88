// Package node implements a provider for a bare ethereum JSON-RPC node. It supports balances, broadcasts and
// transaction lookups; keys, history and notifications need an indexing provider.
package node

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/tarancss/ethcli"

	"github.com/tarancss/custody/lib/block/types"
	"github.com/tarancss/custody/lib/config"
	"github.com/tarancss/custody/lib/util"
)

// ErrConnect is returned when the node client cannot be initialised.
var ErrConnect = errors.New("cannot connect to ethereum node")

// Node implements a connection to an ethereum node.
type Node struct {
	types.Unimplemented

	name string
	c    *ethcli.EthCli
}

// Init returns a connection to the node configured in p, using p.Secret if necessary for authentication.
func Init(p config.ProviderConfig) (*Node, error) {
	c := ethcli.Init(p.Node, p.Secret)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrConnect, p.Node)
	}

	return &Node{name: p.Name, c: c}, nil
}

// Name returns the configured name of the provider.
func (n *Node) Name() string { return n.name }

// Close ends a connection
func (n *Node) Close() {
	n.c.End()
}

// do runs f until it returns or ctx is done. ethcli calls are not cancellable, so f may outlive the call.
func do(ctx context.Context, f func() error) error {
	done := make(chan error, 1)

	go func() { done <- f() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Balance returns the ether balance of address.
func (n *Node) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	bal := new(big.Int)

	if err := do(ctx, func() error { return n.c.GetBalance(address, "", bal, nil) }); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %w", types.ErrUpstream, err)
	}

	return util.FromWei(bal), nil
}

// Send signs with key and broadcasts an ether transfer of amount to address. The node estimates gas and price.
func (n *Node) Send(ctx context.Context, key, to string, amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", types.ErrWrongAmt
	}

	key = strings.TrimPrefix(key, "0x")

	pk, err := crypto.HexToECDSA(key)
	if err != nil {
		return "", err
	}

	from := crypto.PubkeyToAddress(pk.PublicKey).Hex()
	value := hexutil.EncodeBig(util.ToWei(amount))

	var hash []byte

	err = do(ctx, func() error {
		var e error
		_, _, hash, e = n.c.SendTrx(from, to, "", value, nil, key, 0, false)

		return e
	})

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "", err
	case errors.Is(err, ethcli.ErrBadAmt):
		return "", fmt.Errorf("%w: %w", types.ErrRejected, err)
	case err != nil:
		return "", fmt.Errorf("%w: %w", types.ErrUpstream, err)
	}

	return "0x" + hex.EncodeToString(hash), nil
}

// Get returns the details of the transaction for the given hash.
func (n *Node) Get(ctx context.Context, hash string) (*types.Trans, error) {
	t := &types.Trans{Hash: hash}

	err := do(ctx, func() error {
		blk, ts, _, _, status, _, _, _, to, from, amount, e := n.c.GetTrx(hash)
		if e != nil {
			return e
		}

		t.To, t.From, t.Status, t.TS = to, from, status, uint32(ts)
		if blk > 0 {
			t.Block = hexutil.EncodeUint64(blk)
		}

		t.Value = "0"
		if wei, ok := new(big.Int).SetString(strings.TrimPrefix(amount, "0x"), 16); ok {
			t.Value = util.FromWei(wei).String()
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrUpstream, err)
	}

	return t, nil
}
