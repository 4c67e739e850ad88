// Package types common blockchain types.
package types

import (
	"errors"
	"time"
)

// Keypair is a freshly generated custodial key. PrivateKey is hex encoded without the 0x prefix and Mnemonic is the
// BIP-39 phrase the key was derived from.
type Keypair struct {
	Address    string
	PrivateKey string
	Mnemonic   string
}

// Transaction status constants.
const (
	TrxPending uint8 = 0
	TrxFailed  uint8 = 1
	TrxSuccess uint8 = 2
)

// Trans contains a simplified number of transaction fields. Value is expressed in the network currency (ether), not
// in its base unit.
type Trans struct {
	Block         string `json:"block"`
	Hash          string `json:"hash"`
	From          string `json:"from"`
	To            string `json:"to"`
	Value         string `json:"value"`
	Data          string `json:"data,omitempty"`
	Gas           uint64 `json:"gas"`
	Price         uint64 `json:"price"`
	Status        uint8  `json:"status"`
	Confirmations uint64 `json:"confirmations"`
	TS            uint32 `json:"ts"`
}

// Direction selects sent or received transfers of an address.
type Direction uint8

// Transfer directions.
const (
	Sent Direction = iota
	Received
)

func (d Direction) String() string {
	if d == Sent {
		return "sent"
	}

	return "received"
}

// Transfer is one asset transfer as reported by a transfers index. BlockNum is hex encoded and may be empty.
type Transfer struct {
	Hash     string `json:"hash"`
	From     string `json:"from"`
	To       string `json:"to"`
	Value    string `json:"value"`
	Asset    string `json:"asset"`
	Category string `json:"category"`
	BlockNum string `json:"blockNum"`
}

// Receipt contains the execution outcome of a mined transaction.
type Receipt struct {
	Status      uint64 `json:"status"` // 1 success, 0 failure
	BlockNumber uint64 `json:"blockNumber"`
}

// Receipt status codes.
const (
	ReceiptFailed  uint64 = 0
	ReceiptSuccess uint64 = 1
)

// ItemKind tags the shape a HistoryItem was built from.
type ItemKind uint8

// History item kinds.
const (
	KindIndexed  ItemKind = iota // address-indexed paginated listing
	KindTransfer                 // sent/received transfers index
)

func (k ItemKind) String() string {
	if k == KindIndexed {
		return "indexed"
	}

	return "transfer"
}

// Page is the pagination metadata attached to indexed history items. TotalItems and TotalPages are only known on the
// last page, when the provider returned fewer items than requested.
type Page struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"pageSize"`
	TotalItems *int `json:"totalItems,omitempty"`
	TotalPages *int `json:"totalPages,omitempty"`
}

// HistoryItem is one entry of an address history. Asset and Category are only set for KindTransfer items and Page
// only for KindIndexed items.
type HistoryItem struct {
	Kind        ItemKind  `json:"kind"`
	Hash        string    `json:"hash"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Value       string    `json:"value"`
	BlockNumber string    `json:"blockNumber"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Asset       string    `json:"asset,omitempty"`
	Category    string    `json:"category,omitempty"`
	Page        *Page     `json:"page,omitempty"`
}

// Display values for HistoryItem fields.
const (
	StatusConfirmed = "Confirmed"
	StatusFailed    = "Failed"
	Unknown         = "unknown"
	NativeAsset     = "ETH"
)

// Error codes.
var (
	ErrNotImplemented = errors.New("operation not implemented by provider")
	ErrNoTrx          = errors.New("transaction not found")
	ErrNoBlock        = errors.New("block not available yet")
	ErrNoReceipt      = errors.New("transaction receipt not available yet")
	ErrBadResponse    = errors.New("malformed response from provider")
	ErrUpstream       = errors.New("provider unavailable")
	ErrRejected       = errors.New("transaction rejected by provider")
	ErrWrongAmt       = errors.New("amount must be positive")
	ErrNoWebhook      = errors.New("no webhook configured for notifications")
)
