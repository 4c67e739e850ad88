package block

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tarancss/custody/lib/block/types"
	"github.com/tarancss/custody/lib/metrics"
)

// observed records the duration and result of every call to the wrapped provider.
type observed struct {
	Provider
}

// Observe wraps p so its calls are exported as metrics.
func Observe(p Provider) Provider {
	if _, ok := p.(observed); ok {
		return p
	}

	return observed{p}
}

// done is deferred with the address of the named error result.
func (o observed) done(op string, begin time.Time, err *error) {
	metrics.ObserveCall(o.Name(), op, begin, *err)
}

func (o observed) CreateWallet(ctx context.Context) (kp types.Keypair, err error) {
	defer o.done("create_wallet", time.Now(), &err)

	return o.Provider.CreateWallet(ctx)
}

func (o observed) Balance(ctx context.Context, address string) (bal decimal.Decimal, err error) {
	defer o.done("balance", time.Now(), &err)

	return o.Provider.Balance(ctx, address)
}

func (o observed) Send(ctx context.Context, key, to string, amount decimal.Decimal) (hash string, err error) {
	defer o.done("send", time.Now(), &err)

	return o.Provider.Send(ctx, key, to, amount)
}

func (o observed) Get(ctx context.Context, hash string) (t *types.Trans, err error) {
	defer o.done("get", time.Now(), &err)

	return o.Provider.Get(ctx, hash)
}

func (o observed) History(ctx context.Context, address string, page, pageSize int) (h []types.HistoryItem, err error) {
	defer o.done("history", time.Now(), &err)

	return o.Provider.History(ctx, address, page, pageSize)
}

func (o observed) Transfers(ctx context.Context, address string, dir types.Direction) (tr []types.Transfer, err error) {
	defer o.done("transfers_"+dir.String(), time.Now(), &err)

	return o.Provider.Transfers(ctx, address, dir)
}

func (o observed) Receipt(ctx context.Context, hash string) (rc types.Receipt, err error) {
	defer o.done("receipt", time.Now(), &err)

	return o.Provider.Receipt(ctx, hash)
}

func (o observed) BlockTime(ctx context.Context, block string) (ts time.Time, err error) {
	defer o.done("block_time", time.Now(), &err)

	return o.Provider.BlockTime(ctx, block)
}

func (o observed) GasPrice(ctx context.Context) (p decimal.Decimal, err error) {
	defer o.done("gas_price", time.Now(), &err)

	return o.Provider.GasPrice(ctx)
}

func (o observed) Register(ctx context.Context, address string) (ok bool, err error) {
	defer o.done("register", time.Now(), &err)

	return o.Provider.Register(ctx, address)
}
