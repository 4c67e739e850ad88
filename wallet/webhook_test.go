package wallet

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/custody/lib/block/types"
	"github.com/tarancss/custody/lib/msg"
	"github.com/tarancss/custody/lib/store"
	"github.com/tarancss/custody/lib/store/memory"
)

func minedPayload(hash string) []byte {
	return []byte(fmt.Sprintf(`{"webhookId":"wh_sepolia","id":"whevt_1","type":"MINED_TRANSACTION",`+
		`"event":{"network":"ETH_SEPOLIA","transaction":{"hash":%q}}}`, hash))
}

func TestVerifySignature(t *testing.T) {
	w := newTestWallet(t, newMock(), nil, nil)
	body := minedPayload(testHash)
	sig := Sign(testSecret, body)

	assert.True(t, w.VerifySignature(body, sig))

	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		assert.False(t, w.VerifySignature(mutated, sig), "byte %d", i)
	}

	assert.False(t, w.VerifySignature(body, ""))
	assert.False(t, w.VerifySignature(body, "not hex"))
	assert.False(t, w.VerifySignature(body, sig[:10]))
	assert.False(t, w.VerifySignature(body, Sign("other", body)))

	w.conf.Secret = ""
	assert.False(t, w.VerifySignature(body, Sign("", body)), "unconfigured secret")
}

func TestCandidate(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status store.Status
		ok     bool
	}{
		{"mined", `{"type":"MINED_TRANSACTION","event":{"transaction":{"hash":"0x1","status":"0x0"}}}`,
			store.StatusConfirmed, true},
		{"dropped", `{"type":"DROPPED_TRANSACTION","event":{"transaction":{"hash":"0x1","confirmations":3}}}`,
			store.StatusFailed, true},
		{"confirmations", `{"event":{"transaction":{"hash":"0x1","confirmations":1,"status":"0x0"}}}`,
			store.StatusConfirmed, true},
		{"no confirmations", `{"event":{"transaction":{"hash":"0x1","confirmations":0}}}`, "", false},
		{"activity in block", `{"type":"ADDRESS_ACTIVITY","event":{"activity":[{"hash":"0x1","blockNum":"0x10"}]}}`,
			store.StatusConfirmed, true},
		{"receipt success", `{"event":{"transaction":{"hash":"0x1","status":"0x1"}}}`, store.StatusConfirmed, true},
		{"receipt failure", `{"event":{"transaction":{"hash":"0x1","status":"0x0"}}}`, store.StatusFailed, true},
		{"nothing", `{"event":{"transaction":{"hash":"0x1"}}}`, "", false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			n, err := ParseNotification([]byte(c.body))
			require.NoError(t, err)

			s, ok := n.Candidate()
			assert.Equal(t, c.ok, ok)
			assert.Equal(t, c.status, s)
			assert.Equal(t, "0x1", n.Hash())
		})
	}
}

func pendingTransfer(t *testing.T, db store.DB, hash string) {
	t.Helper()

	err := db.Atomic(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.InsertTransfer(ctx, &store.TransferRecord{
			Hash: hash, From: testTo, To: "0x0000000000000000000000000000000000000001", Amount: "0.1",
			Network: "sepolia", Status: store.StatusPending,
		})
	})
	require.NoError(t, err)
}

func TestHandleWebhook(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	mb := new(recBroker)
	w := newTestWallet(t, newMock(), db, mb)
	pendingTransfer(t, db, testHash)

	body := minedPayload(testHash)
	o := Origin{IP: "10.0.0.1", UserAgent: "Alchemy/1.0"}

	// a bad signature changes nothing, not even the audit trail
	err := w.HandleWebhook(ctx, body, Sign("wrong", body), o)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
	assert.Empty(t, db.Audits())

	rec, _ := db.Transfer(ctx, testHash)
	assert.Equal(t, store.StatusPending, rec.Status)

	// applied once
	require.NoError(t, w.HandleWebhook(ctx, body, Sign(testSecret, body), o))

	rec, _ = db.Transfer(ctx, testHash)
	assert.Equal(t, store.StatusConfirmed, rec.Status)

	// replay is a no-op
	require.NoError(t, w.HandleWebhook(ctx, body, Sign(testSecret, body), o))

	rec, _ = db.Transfer(ctx, testHash)
	assert.Equal(t, store.StatusConfirmed, rec.Status)

	evs := mb.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, msg.STATUS, evs[0].Kind)
	assert.Equal(t, "pending", evs[0].Prev)
	assert.Equal(t, "confirmed", evs[0].Status)

	audits := db.Audits()
	require.Len(t, audits, 2)
	assert.Equal(t, "alchemy", audits[0].Source)
	assert.Equal(t, MinedTransaction, audits[0].Event)
	assert.Equal(t, "10.0.0.1", audits[0].IP)
	assert.Equal(t, "Alchemy/1.0", audits[0].UserAgent)
	assert.Equal(t, string(body), audits[0].Payload)
}

func TestHandleWebhookUnmatched(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	w := newTestWallet(t, newMock(), db, nil)

	for _, body := range [][]byte{
		minedPayload(testHash),                  // no such transfer
		[]byte(`{"type":"GRAPHQL","event":{}}`), // no hash
	} {
		require.NoError(t, w.HandleWebhook(ctx, body, Sign(testSecret, body), Origin{}))
	}

	assert.Len(t, db.Audits(), 2, "verified deliveries are always audited")

	// undecodable but authentic
	body := []byte("not json")
	err := w.HandleWebhook(ctx, body, Sign(testSecret, body), Origin{})
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.Len(t, db.Audits(), 3)
}

func TestProcessEventFinal(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	w := newTestWallet(t, newMock(), db, nil)
	pendingTransfer(t, db, testHash)

	dropped, err := ParseNotification([]byte(fmt.Sprintf(
		`{"type":"DROPPED_TRANSACTION","event":{"transaction":{"hash":%q}}}`, testHash)))
	require.NoError(t, err)

	changed, err := w.ProcessEvent(ctx, dropped)
	require.NoError(t, err)
	assert.True(t, changed)

	// a late mined event does not revive a failed transfer
	mined, err := ParseNotification(minedPayload(testHash))
	require.NoError(t, err)

	changed, err = w.ProcessEvent(ctx, mined)
	require.NoError(t, err)
	assert.False(t, changed)

	rec, err := db.Transfer(ctx, testHash)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, rec.Status)
}

func TestReconcilePending(t *testing.T) {
	ctx := context.Background()
	hashes := []string{
		"0x" + fmt.Sprintf("%064x", 1), // mined ok
		"0x" + fmt.Sprintf("%064x", 2), // reverted
		"0x" + fmt.Sprintf("%064x", 3), // still pending
		"0x" + fmt.Sprintf("%064x", 4), // unknown to the provider
	}

	p := newMock()
	p.trans[hashes[0]] = &types.Trans{Hash: hashes[0], Status: types.TrxSuccess}
	p.trans[hashes[1]] = &types.Trans{Hash: hashes[1], Status: types.TrxFailed}
	p.trans[hashes[2]] = &types.Trans{Hash: hashes[2], Status: types.TrxPending}

	db := memory.New()
	w := newTestWallet(t, p, db, nil)

	for _, h := range hashes {
		pendingTransfer(t, db, h)
	}

	n, err := w.ReconcilePending(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 4, p.Calls("get"))

	want := []store.Status{store.StatusConfirmed, store.StatusFailed, store.StatusPending, store.StatusPending}
	for i, h := range hashes {
		rec, err := db.Transfer(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, want[i], rec.Status, h)
	}

	// nothing left to change
	n, err = w.ReconcilePending(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTransaction(t *testing.T) {
	p := newMock()
	p.trans[testHash] = &types.Trans{Hash: testHash, Value: "0.5"}
	w := newTestWallet(t, p, nil, nil)

	tr, err := w.Transaction(context.Background(), testHash)
	require.NoError(t, err)
	assert.Equal(t, "0.5", tr.Value)

	_, err = w.Transaction(context.Background(), "0x123456")
	assert.ErrorIs(t, err, ErrInvalidHash)
	assert.Equal(t, 1, p.Calls("get"))

	_, err = w.Transaction(context.Background(), "0x"+fmt.Sprintf("%064x", 9))
	assert.ErrorIs(t, err, ErrNotFound)
}
