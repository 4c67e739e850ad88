package node

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/custody/lib/block/types"
	"github.com/tarancss/custody/lib/config"
)

const addr = "0xf4cefc8d1afaa51d5a5e7f57d214b60429ca4378"

// newTestNode returns a Node connected to a mock node that answers every request with result after delay.
func newTestNode(t *testing.T, result interface{}, delay time.Duration) *Node {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID *json.RawMessage `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		time.Sleep(delay)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
	t.Cleanup(srv.Close)

	n, err := Init(config.ProviderConfig{Name: "infura", Kind: config.KindNode, Node: srv.URL})
	require.NoError(t, err)

	return n
}

func TestBalance(t *testing.T) {
	n := newTestNode(t, "0x166c761c586733c0", 0)

	bal, err := n.Balance(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, "1.61579623043348576", bal.String())
}

func TestBalanceTimeout(t *testing.T) {
	n := newTestNode(t, "0x00", 200*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := n.Balance(ctx, addr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, types.ErrUpstream)
}

func TestUnsupported(t *testing.T) {
	n := newTestNode(t, nil, 0)

	_, err := n.CreateWallet(context.Background())
	assert.ErrorIs(t, err, types.ErrNotImplemented)

	_, err = n.History(context.Background(), addr, 1, 10)
	assert.ErrorIs(t, err, types.ErrNotImplemented)

	_, err = n.Send(context.Background(), "00", addr, decimal.Zero)
	assert.ErrorIs(t, err, types.ErrWrongAmt)
}
