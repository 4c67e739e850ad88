// Package store defines the interface for database implementations of the wallet service.
package store

import (
	"context"
	"errors"
)

// DB defines the persistence required by the wallet service.
type DB interface {
	// wallets
	ActiveWallet(ctx context.Context, owner string, withKey bool) (Wallet, error)
	WalletByAddress(ctx context.Context, address string) (Wallet, error)
	InsertWallet(ctx context.Context, w *Wallet) error
	DeactivateWallet(ctx context.Context, owner string) error
	SetBalance(ctx context.Context, address, balance string) error

	// transfer records
	Transfer(ctx context.Context, hash string) (TransferRecord, error)
	PendingTransfers(ctx context.Context, limit int) ([]TransferRecord, error)
	// SetTransferStatus moves the record hash from status from to status to. It returns false when the record was
	// not found in status from.
	SetTransferStatus(ctx context.Context, hash string, from, to Status) (bool, error)

	// webhook audit trail
	InsertWebhookAudit(ctx context.Context, a *WebhookAudit) error

	// Atomic runs fn within a single storage transaction. The transaction is committed when fn returns nil and
	// rolled back otherwise.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Close() error
}

// Tx contains the writes allowed within an atomic scope.
type Tx interface {
	SetBalance(ctx context.Context, address, balance string) error
	InsertTransfer(ctx context.Context, r *TransferRecord) error
}

// Errors returned
var (
	ErrNotFound  = errors.New("data was not found in store")
	ErrDuplicate = errors.New("data already exists in store")
)
