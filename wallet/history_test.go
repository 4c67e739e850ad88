package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/custody/lib/block/types"
	"github.com/tarancss/custody/lib/util"
)

func hashes(ts []types.Transfer) []string {
	hs := make([]string, len(ts))
	for i, t := range ts {
		hs[i] = t.Hash
	}

	return hs
}

func TestMergeTransfers(t *testing.T) {
	sent := []types.Transfer{
		{Hash: "s1", BlockNum: "0x10"},
		{Hash: "s2", BlockNum: ""},
		{Hash: "s3", BlockNum: "0x20"},
	}
	received := []types.Transfer{
		{Hash: "r1", BlockNum: "not a block"},
		{Hash: "r2", BlockNum: "0x10"},
		{Hash: "r3", BlockNum: "48"},
	}

	got := MergeTransfers(sent, received, 20)

	// equal and unparsable blocks keep their fetch order
	assert.Equal(t, []string{"r3", "s3", "s1", "r2", "s2", "r1"}, hashes(got))
}

func TestMergeTransfersOrder(t *testing.T) {
	rnd := rand.New(rand.NewSource(7)) //nolint:gosec // deterministic shuffle

	var sent, received []types.Transfer
	for i := 0; i < 50; i++ {
		tr := types.Transfer{Hash: fmt.Sprint(i), BlockNum: fmt.Sprintf("0x%x", rnd.Intn(10))}
		if i%2 == 0 {
			sent = append(sent, tr)
		} else {
			received = append(received, tr)
		}
	}

	got := MergeTransfers(sent, received, 20)
	require.Len(t, got, 20)

	for i := 1; i < len(got); i++ {
		a, _ := util.ParseBlock(got[i-1].BlockNum)
		b, _ := util.ParseBlock(got[i].BlockNum)
		assert.GreaterOrEqual(t, a, b)
	}

	assert.Len(t, MergeTransfers(sent, received, 0), 50, "no limit")
}

func TestListHistoryTransfers(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	p := newMock()
	p.sent = []types.Transfer{
		{Hash: "0xa", From: testTo, To: "0x1", Value: "0.1", Asset: "ETH", Category: "external", BlockNum: "0x5"},
		{Hash: "0xb", BlockNum: "0x9"},
	}
	p.received = []types.Transfer{
		{Hash: "0xc", From: "0x2", To: testTo, Value: "2", Asset: "ETH", Category: "external", BlockNum: "0x7"},
	}
	p.receipts["0xa"] = types.Receipt{Status: types.ReceiptFailed, BlockNumber: 5}
	p.receipts["0xc"] = types.Receipt{Status: types.ReceiptSuccess, BlockNumber: 7}
	p.blockTimes["0x7"] = ts

	w := newTestWallet(t, p, nil, nil)

	before := time.Now().UTC()
	items, err := w.ListHistory(context.Background(), testTo, 1, 10)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, 1, p.Calls("history"))
	assert.Equal(t, 2, p.Calls("transfers"))

	// most recent first
	assert.Equal(t, "0xb", items[0].Hash)
	assert.Equal(t, "0xc", items[1].Hash)
	assert.Equal(t, "0xa", items[2].Hash)

	// missing fields and a missing receipt fall back to defaults
	b := items[0]
	assert.Equal(t, types.KindTransfer, b.Kind)
	assert.Equal(t, types.Unknown, b.From)
	assert.Equal(t, types.Unknown, b.To)
	assert.Equal(t, "0", b.Value)
	assert.Equal(t, types.NativeAsset, b.Asset)
	assert.Equal(t, types.StatusConfirmed, b.Status)
	assert.False(t, b.Timestamp.Before(before))

	c := items[1]
	assert.Equal(t, types.StatusConfirmed, c.Status)
	assert.Equal(t, ts, c.Timestamp)
	assert.Equal(t, "external", c.Category)

	a := items[2]
	assert.Equal(t, types.StatusFailed, a.Status)
	assert.False(t, a.Timestamp.Before(before), "block time unknown")
}

func TestListHistoryIndexed(t *testing.T) {
	p := newMock()
	p.indexed = []types.HistoryItem{{Kind: types.KindIndexed, Hash: "0xa", Page: &types.Page{Page: 2, PageSize: 5}}}
	w := newTestWallet(t, p, nil, nil)

	items, err := w.ListHistory(context.Background(), testTo, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, p.indexed, items)
	assert.Zero(t, p.Calls("transfers"))
	assert.Zero(t, p.Calls("receipt"))
}

func TestListHistoryErrors(t *testing.T) {
	p := newMock()
	w := newTestWallet(t, p, nil, nil)

	_, err := w.ListHistory(context.Background(), "0xinvalid", 1, 10)
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.Zero(t, p.Total())

	p.transErr = errors.New("503 service unavailable")

	_, err = w.ListHistory(context.Background(), testTo, 1, 10)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)

	_, err = w.OwnerHistory(context.Background(), "nobody", 1, 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOwnerHistory(t *testing.T) {
	p := newMock()
	p.received = []types.Transfer{{Hash: "0xc", BlockNum: "0x7"}}
	w, _ := funded(t, p, nil, nil)

	items, err := w.OwnerHistory(context.Background(), "alice", 0, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "0xc", items[0].Hash)
}
