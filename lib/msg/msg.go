// Package msg defines the interface for the message brokers the wallet service publishes its events to.
package msg

import (
	"sync"
	"time"
)

// Kinds of wallet events.
const (
	TRANSFER = "transfer" // a transfer was broadcast and recorded as pending
	STATUS   = "status"   // a recorded transfer changed status
)

// Event defines the message that the wallet service publishes to the broker.
type Event struct {
	Kind   string    `json:"kind"`
	Net    string    `json:"net"`
	Hash   string    `json:"hash"`
	From   string    `json:"from,omitempty"`
	To     string    `json:"to,omitempty"`
	Amount string    `json:"amount,omitempty"`
	Prev   string    `json:"prev,omitempty"` // previous status, STATUS events only
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// MsgBroker publishes and consumes wallet events.
type MsgBroker interface { //nolint:revive // stutter kept for readability at call sites
	Setup() error
	Close() error

	SendEvent(net string, e Event) error
	GetEvents(net string, mut *sync.Mutex) (<-chan Event, <-chan error, error)
}

// Nop is a broker that drops every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Setup() error                  { return nil }
func (Nop) Close() error                  { return nil }
func (Nop) SendEvent(string, Event) error { return nil }

// GetEvents returns channels that never deliver.
func (Nop) GetEvents(string, *sync.Mutex) (<-chan Event, <-chan error, error) {
	return make(chan Event), make(chan error), nil
}
