// Package postgres implements the store interface for PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/tarancss/custody/lib/store"
)

// Schema creates the tables used by the store when missing. The partial unique index keeps at most one wallet not
// deleted per owner.
const Schema = `
CREATE TABLE IF NOT EXISTS wallets (
	id            TEXT PRIMARY KEY,
	address       TEXT NOT NULL UNIQUE,
	private_key   TEXT NOT NULL,
	mnemonic_hash TEXT NOT NULL,
	balance       TEXT NOT NULL DEFAULT '0',
	network       TEXT NOT NULL,
	owner_id      TEXT NOT NULL,
	deleted       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS wallets_owner_active ON wallets (owner_id) WHERE NOT deleted;
CREATE TABLE IF NOT EXISTS transfers (
	id         TEXT PRIMARY KEY,
	hash       TEXT NOT NULL UNIQUE,
	from_addr  TEXT NOT NULL,
	to_addr    TEXT NOT NULL,
	amount     TEXT NOT NULL,
	memo       TEXT NOT NULL DEFAULT '',
	network    TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS transfers_status ON transfers (status, created_at);
CREATE TABLE IF NOT EXISTS webhook_audits (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	event      TEXT NOT NULL,
	ip         TEXT NOT NULL,
	user_agent TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);`

// uniqueViolation is the SQLSTATE of unique constraint violations.
const uniqueViolation = "23505"

// Postgres implements a connection to a PostgreSQL database.
type Postgres struct {
	db *sql.DB
}

// New returns a postgres client connection to the specified database in 'connection' and creates the schema.
func New(connection string) (*Postgres, error) {
	db, err := sql.Open("postgres", connection)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to DB in %s: %w", connection, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	if _, err = db.ExecContext(ctx, Schema); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("cannot create schema: %w", err)
	}

	return &Postgres{db: db}, nil
}

// Close will close any database connection. Must be called at termination time.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func duplicate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", store.ErrDuplicate, pqErr.Constraint)
	}

	return err
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return store.ErrNotFound
	}

	return nil
}

const walletCols = `id, address, private_key, mnemonic_hash, balance, network, owner_id, deleted, created_at, updated_at`

func (p *Postgres) wallet(ctx context.Context, where string, arg interface{}, withKey bool) (store.Wallet, error) {
	var w store.Wallet

	err := p.db.QueryRowContext(ctx, `SELECT `+walletCols+` FROM wallets WHERE `+where, arg).Scan(
		&w.ID, &w.Address, &w.PrivateKey, &w.MnemonicHash, &w.Balance, &w.Network, &w.Owner, &w.Deleted,
		&w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return w, store.ErrNotFound
	}

	if !withKey {
		w.PrivateKey = ""
	}

	return w, err
}

// ActiveWallet returns the wallet of owner that is not deleted.
func (p *Postgres) ActiveWallet(ctx context.Context, owner string, withKey bool) (store.Wallet, error) {
	return p.wallet(ctx, `owner_id = $1 AND NOT deleted`, owner, withKey)
}

// WalletByAddress returns the wallet holding address, without its private key.
func (p *Postgres) WalletByAddress(ctx context.Context, address string) (store.Wallet, error) {
	return p.wallet(ctx, `address = $1`, address, false)
}

// InsertWallet saves w.
func (p *Postgres) InsertWallet(ctx context.Context, w *store.Wallet) error {
	w.Init(time.Now().UTC())

	_, err := p.db.ExecContext(ctx, `INSERT INTO wallets (`+walletCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		w.ID, w.Address, w.PrivateKey, w.MnemonicHash, w.Balance, w.Network, w.Owner, w.Deleted, w.CreatedAt,
		w.UpdatedAt)

	return duplicate(err)
}

// DeactivateWallet soft deletes the active wallet of owner.
func (p *Postgres) DeactivateWallet(ctx context.Context, owner string) error {
	return affected(p.db.ExecContext(ctx,
		`UPDATE wallets SET deleted = TRUE, updated_at = $2 WHERE owner_id = $1 AND NOT deleted`,
		owner, time.Now().UTC()))
}

// SetBalance updates the cached balance of the wallet holding address.
func (p *Postgres) SetBalance(ctx context.Context, address, balance string) error {
	return setBalance(ctx, p.db, address, balance)
}

func setBalance(ctx context.Context, e execer, address, balance string) error {
	return affected(e.ExecContext(ctx, `UPDATE wallets SET balance = $2, updated_at = $3 WHERE address = $1`,
		address, balance, time.Now().UTC()))
}

const transferCols = `id, hash, from_addr, to_addr, amount, memo, network, status, created_at, updated_at`

func insertTransfer(ctx context.Context, e execer, r *store.TransferRecord) error {
	r.Init(time.Now().UTC())

	_, err := e.ExecContext(ctx, `INSERT INTO transfers (`+transferCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		r.ID, r.Hash, r.From, r.To, r.Amount, r.Memo, r.Network, r.Status, r.CreatedAt, r.UpdatedAt)

	return duplicate(err)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransfer(s scanner) (store.TransferRecord, error) {
	var r store.TransferRecord

	err := s.Scan(&r.ID, &r.Hash, &r.From, &r.To, &r.Amount, &r.Memo, &r.Network, &r.Status, &r.CreatedAt,
		&r.UpdatedAt)

	return r, err
}

// Transfer returns the transfer record with the given hash.
func (p *Postgres) Transfer(ctx context.Context, hash string) (store.TransferRecord, error) {
	r, err := scanTransfer(p.db.QueryRowContext(ctx, `SELECT `+transferCols+` FROM transfers WHERE hash = $1`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return r, store.ErrNotFound
	}

	return r, err
}

// PendingTransfers returns up to limit pending records, oldest first.
func (p *Postgres) PendingTransfers(ctx context.Context, limit int) ([]store.TransferRecord, error) {
	q := `SELECT ` + transferCols + ` FROM transfers WHERE status = $1 ORDER BY created_at`
	args := []interface{}{store.StatusPending}

	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rs []store.TransferRecord

	for rows.Next() {
		r, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}

		rs = append(rs, r)
	}

	return rs, rows.Err()
}

// SetTransferStatus moves the record hash from status from to status to.
func (p *Postgres) SetTransferStatus(ctx context.Context, hash string, from, to store.Status) (bool, error) {
	err := affected(p.db.ExecContext(ctx,
		`UPDATE transfers SET status = $3, updated_at = $4 WHERE hash = $1 AND status = $2`,
		hash, from, to, time.Now().UTC()))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}

	return err == nil, err
}

// InsertWebhookAudit appends a to the audit trail.
func (p *Postgres) InsertWebhookAudit(ctx context.Context, a *store.WebhookAudit) error {
	a.Init(time.Now().UTC())

	_, err := p.db.ExecContext(ctx,
		`INSERT INTO webhook_audits (id, source, event, ip, user_agent, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.Source, a.Event, a.IP, a.UserAgent, a.Payload, a.CreatedAt)

	return err
}

// Atomic runs fn within a sql transaction, rolled back on any error.
func (p *Postgres) Atomic(ctx context.Context, fn func(context.Context, store.Tx) error) error {
	sqlTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer sqlTx.Rollback() //nolint:errcheck // no-op after commit

	if err = fn(ctx, tx{sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type tx struct {
	e execer
}

func (t tx) SetBalance(ctx context.Context, address, balance string) error {
	return setBalance(ctx, t.e, address, balance)
}

func (t tx) InsertTransfer(ctx context.Context, r *store.TransferRecord) error {
	return insertTransfer(ctx, t.e, r)
}
