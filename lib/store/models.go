package store

import (
	"time"

	"github.com/google/uuid"
)

// Wallet contains the fields of a custodial wallet saved to DB. The private key and the mnemonic hash are never
// serialized to JSON.
type Wallet struct {
	ID           string    `json:"id" bson:"_id"`
	Address      string    `json:"address" bson:"address"`
	PrivateKey   string    `json:"-" bson:"privateKey,omitempty"`
	MnemonicHash string    `json:"-" bson:"mnemonicHash,omitempty"`
	Balance      string    `json:"balance" bson:"balance"`
	Network      string    `json:"network" bson:"network"`
	Owner        string    `json:"owner" bson:"owner"`
	Deleted      bool      `json:"-" bson:"deleted"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Status of a transfer record.
type Status string

// Transfer record statuses. Confirmed and failed are terminal.
const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// TransferRecord contains the fields of an outbound transfer saved to DB. Amount is expressed in the network
// currency.
type TransferRecord struct {
	ID        string    `json:"id" bson:"_id"`
	Hash      string    `json:"hash" bson:"hash"`
	From      string    `json:"from" bson:"from"`
	To        string    `json:"to" bson:"to"`
	Amount    string    `json:"amount" bson:"amount"`
	Memo      string    `json:"memo,omitempty" bson:"memo,omitempty"`
	Network   string    `json:"network" bson:"network"`
	Status    Status    `json:"status" bson:"status"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// WebhookAudit contains one verified webhook delivery saved to DB. It is never updated.
type WebhookAudit struct {
	ID        string    `json:"id" bson:"_id"`
	Source    string    `json:"source" bson:"source"`
	Event     string    `json:"event" bson:"event"`
	IP        string    `json:"ip" bson:"ip"`
	UserAgent string    `json:"userAgent" bson:"userAgent"`
	Payload   string    `json:"payload" bson:"payload"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Init sets the ID and timestamps of a new wallet when missing.
func (w *Wallet) Init(now time.Time) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}

	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}

	w.UpdatedAt = now
}

// Init sets the ID and timestamps of a new transfer record when missing.
func (r *TransferRecord) Init(now time.Time) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}

	r.UpdatedAt = now
}

// Init sets the ID and creation time of a new audit record when missing.
func (a *WebhookAudit) Init(now time.Time) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
}
