package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/custody/lib/store"
)

const (
	addr1 = "0xf4cefc8d1afaa51d5a5e7f57d214b60429ca4378"
	addr2 = "0x357dd3856d856197c1a000bbab4abcb97dfc92c4"
)

func TestWallets(t *testing.T) {
	ctx := context.Background()
	m := New()

	w := store.Wallet{Address: addr1, PrivateKey: "key", Owner: "u1", Balance: "0"}
	require.NoError(t, m.InsertWallet(ctx, &w))
	assert.NotEmpty(t, w.ID)
	assert.False(t, w.CreatedAt.IsZero())

	// one active wallet per owner
	err := m.InsertWallet(ctx, &store.Wallet{Address: addr2, Owner: "u1"})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	// unique addresses
	err = m.InsertWallet(ctx, &store.Wallet{Address: addr1, Owner: "u2"})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	got, err := m.ActiveWallet(ctx, "u1", false)
	require.NoError(t, err)
	assert.Empty(t, got.PrivateKey)

	got, err = m.ActiveWallet(ctx, "u1", true)
	require.NoError(t, err)
	assert.Equal(t, "key", got.PrivateKey)

	require.NoError(t, m.SetBalance(ctx, addr1, "1.5"))
	got, err = m.WalletByAddress(ctx, addr1)
	require.NoError(t, err)
	assert.Equal(t, "1.5", got.Balance)
	assert.Empty(t, got.PrivateKey)

	// soft delete frees the owner
	require.NoError(t, m.DeactivateWallet(ctx, "u1"))
	_, err = m.ActiveWallet(ctx, "u1", false)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, m.DeactivateWallet(ctx, "u1"), store.ErrNotFound)
	require.NoError(t, m.InsertWallet(ctx, &store.Wallet{Address: addr2, Owner: "u1"}))

	assert.ErrorIs(t, m.SetBalance(ctx, "0xnone", "1"), store.ErrNotFound)
}

func TestAtomic(t *testing.T) {
	ctx := context.Background()
	m := New()
	require.NoError(t, m.InsertWallet(ctx, &store.Wallet{Address: addr1, Owner: "u1", Balance: "1"}))

	boom := errors.New("boom")

	err := m.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.SetBalance(ctx, addr1, "0.5"); err != nil {
			return err
		}

		if err := tx.InsertTransfer(ctx, &store.TransferRecord{Hash: "0x01", Status: store.StatusPending}); err != nil {
			return err
		}

		return boom
	})
	assert.ErrorIs(t, err, boom)

	// nothing was written
	w, err := m.WalletByAddress(ctx, addr1)
	require.NoError(t, err)
	assert.Equal(t, "1", w.Balance)

	_, err = m.Transfer(ctx, "0x01")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = m.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.SetBalance(ctx, addr1, "0.5"); err != nil {
			return err
		}

		return tx.InsertTransfer(ctx, &store.TransferRecord{Hash: "0x01", Status: store.StatusPending})
	})
	require.NoError(t, err)

	w, err = m.WalletByAddress(ctx, addr1)
	require.NoError(t, err)
	assert.Equal(t, "0.5", w.Balance)

	r, err := m.Transfer(ctx, "0x01")
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, r.Status)
	assert.NotEmpty(t, r.ID)
}

func TestTransferStatus(t *testing.T) {
	ctx := context.Background()
	m := New()

	err := m.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, h := range []string{"0x01", "0x02", "0x03"} {
			if err := tx.InsertTransfer(ctx, &store.TransferRecord{Hash: h, Status: store.StatusPending}); err != nil {
				return err
			}
		}

		return tx.InsertTransfer(ctx, &store.TransferRecord{Hash: "0x01"})
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	_, err = m.Transfer(ctx, "0x02")
	assert.ErrorIs(t, err, store.ErrNotFound)

	t.Run("cas", func(t *testing.T) {
		require.NoError(t, m.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.InsertTransfer(ctx, &store.TransferRecord{Hash: "0x01", Status: store.StatusPending})
		}))

		ok, err := m.SetTransferStatus(ctx, "0x01", store.StatusPending, store.StatusConfirmed)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = m.SetTransferStatus(ctx, "0x01", store.StatusPending, store.StatusFailed)
		require.NoError(t, err)
		assert.False(t, ok)

		r, err := m.Transfer(ctx, "0x01")
		require.NoError(t, err)
		assert.Equal(t, store.StatusConfirmed, r.Status)
	})
}

func TestPendingTransfers(t *testing.T) {
	ctx := context.Background()
	m := New()

	require.NoError(t, m.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, h := range []string{"0x01", "0x02", "0x03"} {
			if err := tx.InsertTransfer(ctx, &store.TransferRecord{Hash: h, Status: store.StatusPending}); err != nil {
				return err
			}
		}

		return nil
	}))

	_, err := m.SetTransferStatus(ctx, "0x02", store.StatusPending, store.StatusFailed)
	require.NoError(t, err)

	rs, err := m.PendingTransfers(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, rs, 2)

	rs, err = m.PendingTransfers(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, rs, 1)
}

func TestAudits(t *testing.T) {
	m := New()

	a := store.WebhookAudit{Source: "alchemy", Event: "MINED_TRANSACTION", Payload: "{}"}
	require.NoError(t, m.InsertWebhookAudit(context.Background(), &a))
	assert.NotEmpty(t, a.ID)

	as := m.Audits()
	require.Len(t, as, 1)
	assert.Equal(t, "alchemy", as[0].Source)
}
