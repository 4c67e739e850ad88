// Package memory implements the store interface in process memory. It is meant for tests and single process
// development setups: nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tarancss/custody/lib/store"
)

// Memory implements an in-memory database.
type Memory struct {
	mu        sync.Mutex
	wallets   map[string]store.Wallet // by ID
	transfers map[string]store.TransferRecord
	audits    []store.WebhookAudit
}

// New returns an empty in-memory database.
func New() *Memory {
	return &Memory{
		wallets:   make(map[string]store.Wallet),
		transfers: make(map[string]store.TransferRecord),
	}
}

// Close does nothing.
func (m *Memory) Close() error { return nil }

func (m *Memory) find(match func(store.Wallet) bool) (store.Wallet, bool) {
	for _, w := range m.wallets {
		if match(w) {
			return w, true
		}
	}

	return store.Wallet{}, false
}

// ActiveWallet returns the wallet of owner that is not deleted.
func (m *Memory) ActiveWallet(_ context.Context, owner string, withKey bool) (store.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.find(func(w store.Wallet) bool { return w.Owner == owner && !w.Deleted })
	if !ok {
		return store.Wallet{}, store.ErrNotFound
	}

	if !withKey {
		w.PrivateKey = ""
	}

	return w, nil
}

// WalletByAddress returns the wallet holding address, deleted or not. The private key is not returned.
func (m *Memory) WalletByAddress(_ context.Context, address string) (store.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.find(func(w store.Wallet) bool { return w.Address == address })
	if !ok {
		return store.Wallet{}, store.ErrNotFound
	}

	w.PrivateKey = ""

	return w, nil
}

// InsertWallet saves w. Addresses are unique and an owner has at most one wallet not deleted.
func (m *Memory) InsertWallet(_ context.Context, w *store.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w.Init(time.Now().UTC())

	if _, ok := m.find(func(o store.Wallet) bool {
		return o.ID == w.ID || o.Address == w.Address || (!w.Deleted && !o.Deleted && o.Owner == w.Owner)
	}); ok {
		return store.ErrDuplicate
	}

	m.wallets[w.ID] = *w

	return nil
}

// DeactivateWallet soft deletes the active wallet of owner.
func (m *Memory) DeactivateWallet(_ context.Context, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.find(func(w store.Wallet) bool { return w.Owner == owner && !w.Deleted })
	if !ok {
		return store.ErrNotFound
	}

	w.Deleted = true
	w.UpdatedAt = time.Now().UTC()
	m.wallets[w.ID] = w

	return nil
}

// SetBalance updates the cached balance of the wallet holding address.
func (m *Memory) SetBalance(_ context.Context, address, balance string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.setBalance(address, balance)
}

func (m *Memory) setBalance(address, balance string) error {
	w, ok := m.find(func(w store.Wallet) bool { return w.Address == address })
	if !ok {
		return store.ErrNotFound
	}

	w.Balance = balance
	w.UpdatedAt = time.Now().UTC()
	m.wallets[w.ID] = w

	return nil
}

func (m *Memory) insertTransfer(r *store.TransferRecord) error {
	if _, ok := m.transfers[r.Hash]; ok {
		return store.ErrDuplicate
	}

	r.Init(time.Now().UTC())
	m.transfers[r.Hash] = *r

	return nil
}

// Transfer returns the transfer record with the given hash.
func (m *Memory) Transfer(_ context.Context, hash string) (store.TransferRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.transfers[hash]
	if !ok {
		return store.TransferRecord{}, store.ErrNotFound
	}

	return r, nil
}

// PendingTransfers returns up to limit pending records, oldest first.
func (m *Memory) PendingTransfers(_ context.Context, limit int) ([]store.TransferRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rs []store.TransferRecord

	for _, r := range m.transfers {
		if r.Status == store.StatusPending {
			rs = append(rs, r)
		}
	}

	sort.Slice(rs, func(i, j int) bool { return rs[i].CreatedAt.Before(rs[j].CreatedAt) })

	if limit > 0 && len(rs) > limit {
		rs = rs[:limit]
	}

	return rs, nil
}

// SetTransferStatus moves the record hash from status from to status to.
func (m *Memory) SetTransferStatus(_ context.Context, hash string, from, to store.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.transfers[hash]
	if !ok || r.Status != from {
		return false, nil
	}

	r.Status = to
	r.UpdatedAt = time.Now().UTC()
	m.transfers[hash] = r

	return true, nil
}

// InsertWebhookAudit appends a to the audit trail.
func (m *Memory) InsertWebhookAudit(_ context.Context, a *store.WebhookAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a.Init(time.Now().UTC())
	m.audits = append(m.audits, *a)

	return nil
}

// Audits returns a copy of the audit trail.
func (m *Memory) Audits() []store.WebhookAudit {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]store.WebhookAudit(nil), m.audits...)
}

// Atomic runs fn holding the database lock. Changes made by fn are discarded when it fails.
func (m *Memory) Atomic(ctx context.Context, fn func(context.Context, store.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	wallets := make(map[string]store.Wallet, len(m.wallets))
	for k, v := range m.wallets {
		wallets[k] = v
	}

	transfers := make(map[string]store.TransferRecord, len(m.transfers))
	for k, v := range m.transfers {
		transfers[k] = v
	}

	if err := fn(ctx, tx{m}); err != nil {
		m.wallets, m.transfers = wallets, transfers

		return err
	}

	return nil
}

// tx writes to the database while Atomic holds its lock.
type tx struct {
	m *Memory
}

func (t tx) SetBalance(_ context.Context, address, balance string) error {
	return t.m.setBalance(address, balance)
}

func (t tx) InsertTransfer(_ context.Context, r *store.TransferRecord) error {
	return t.m.insertTransfer(r)
}
