package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/custody/lib/block"
	"github.com/tarancss/custody/lib/block/types"
	"github.com/tarancss/custody/lib/msg"
	"github.com/tarancss/custody/lib/store"
	"github.com/tarancss/custody/lib/store/memory"
)

const (
	testPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testHash   = "0x2ba030485e79b5a98275b45d940e6fdd07b40dea593ef3b2a69b0a02a68a5872"
	testTo     = "0x357dd3856d856197c1a000bbab4abcb97dfc92c4"
	testSecret = "whsec_test"
)

// mockProvider is a scriptable chain data provider that counts every call.
type mockProvider struct {
	types.Unimplemented

	mu    sync.Mutex
	calls map[string]int
	n     int

	balance     decimal.Decimal
	gasPrice    decimal.Decimal
	balErr      error
	registerErr error
	sendHash    string
	sendErr     error
	sendBlocks  bool // Send waits for its context to end
	trans       map[string]*types.Trans
	getErr      error

	indexed    []types.HistoryItem // History is only supported when set
	sent       []types.Transfer
	received   []types.Transfer
	transErr   error
	receipts   map[string]types.Receipt
	blockTimes map[string]time.Time
}

func newMock() *mockProvider {
	return &mockProvider{
		calls:      make(map[string]int),
		balance:    decimal.NewFromInt(1),
		gasPrice:   decimal.RequireFromString("0.00000002"),
		sendHash:   testHash,
		trans:      make(map[string]*types.Trans),
		receipts:   make(map[string]types.Receipt),
		blockTimes: make(map[string]time.Time),
	}
}

func (m *mockProvider) count(op string) {
	m.mu.Lock()
	m.calls[op]++
	m.mu.Unlock()
}

func (m *mockProvider) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.calls[op]
}

func (m *mockProvider) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	for _, c := range m.calls {
		n += c
	}

	return n
}

func (m *mockProvider) Name() string { return "mock" }
func (m *mockProvider) Close()       {}

func (m *mockProvider) CreateWallet(context.Context) (types.Keypair, error) {
	m.count("create")

	m.mu.Lock()
	m.n++
	n := m.n
	m.mu.Unlock()

	return types.Keypair{
		Address:    fmt.Sprintf("0x%040X", n),
		PrivateKey: fmt.Sprintf("%064x", n),
		Mnemonic:   testPhrase,
	}, nil
}

func (m *mockProvider) Register(context.Context, string) (bool, error) {
	m.count("register")

	return m.registerErr == nil, m.registerErr
}

func (m *mockProvider) Balance(context.Context, string) (decimal.Decimal, error) {
	m.count("balance")

	return m.balance, m.balErr
}

func (m *mockProvider) GasPrice(context.Context) (decimal.Decimal, error) {
	m.count("gasprice")

	return m.gasPrice, nil
}

func (m *mockProvider) Send(ctx context.Context, _, _ string, _ decimal.Decimal) (string, error) {
	m.count("send")

	if m.sendBlocks {
		<-ctx.Done()

		return "", ctx.Err()
	}

	if m.sendErr != nil {
		return "", m.sendErr
	}

	return m.sendHash, nil
}

func (m *mockProvider) Get(_ context.Context, hash string) (*types.Trans, error) {
	m.count("get")

	if m.getErr != nil {
		return nil, m.getErr
	}

	t, ok := m.trans[hash]
	if !ok {
		return nil, types.ErrNoTrx
	}

	return t, nil
}

func (m *mockProvider) History(context.Context, string, int, int) ([]types.HistoryItem, error) {
	m.count("history")

	if m.indexed == nil {
		return nil, types.ErrNotImplemented
	}

	return m.indexed, nil
}

func (m *mockProvider) Transfers(_ context.Context, _ string, dir types.Direction) ([]types.Transfer, error) {
	m.count("transfers")

	if m.transErr != nil {
		return nil, m.transErr
	}

	if dir == types.Sent {
		return m.sent, nil
	}

	return m.received, nil
}

func (m *mockProvider) Receipt(_ context.Context, hash string) (types.Receipt, error) {
	m.count("receipt")

	rc, ok := m.receipts[hash]
	if !ok {
		return types.Receipt{}, types.ErrNoReceipt
	}

	return rc, nil
}

func (m *mockProvider) BlockTime(_ context.Context, blk string) (time.Time, error) {
	m.count("blocktime")

	ts, ok := m.blockTimes[blk]
	if !ok {
		return time.Time{}, types.ErrNoBlock
	}

	return ts, nil
}

var errAtomic = errors.New("transaction aborted")

// failingAtomic is a store whose atomic scopes never commit.
type failingAtomic struct {
	*memory.Memory
}

func (failingAtomic) Atomic(context.Context, func(context.Context, store.Tx) error) error {
	return errAtomic
}

// recBroker records the events published.
type recBroker struct {
	msg.Nop

	mu     sync.Mutex
	events []msg.Event
}

func (b *recBroker) SendEvent(_ string, e msg.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, e)

	return nil
}

func (b *recBroker) Events() []msg.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]msg.Event(nil), b.events...)
}

func testConfig() Config {
	return Config{
		Network:      "sepolia",
		GasBuffer:    decimal.RequireFromString("0.0001"),
		Timeout:      time.Second,
		HistoryLimit: 20,
		Secret:       testSecret,
		Source:       "alchemy",
	}
}

func newTestWallet(t *testing.T, p *mockProvider, db store.DB, mb msg.MsgBroker) *Wallet {
	t.Helper()

	if db == nil {
		db = memory.New()
	}

	w, err := New(testConfig(), db, mb, nil, map[string]block.Provider{"mock": p}, "mock", "mock")
	require.NoError(t, err)

	return w
}
