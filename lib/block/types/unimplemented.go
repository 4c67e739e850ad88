package types

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Unimplemented can be embedded by providers that only support part of the capability set. Every method fails with
// ErrNotImplemented.
type Unimplemented struct{}

// CreateWallet is not supported.
func (Unimplemented) CreateWallet(context.Context) (Keypair, error) {
	return Keypair{}, ErrNotImplemented
}

// Balance is not supported.
func (Unimplemented) Balance(context.Context, string) (decimal.Decimal, error) {
	return decimal.Zero, ErrNotImplemented
}

// Send is not supported.
func (Unimplemented) Send(context.Context, string, string, decimal.Decimal) (string, error) {
	return "", ErrNotImplemented
}

// Get is not supported.
func (Unimplemented) Get(context.Context, string) (*Trans, error) { return nil, ErrNotImplemented }

// History is not supported.
func (Unimplemented) History(context.Context, string, int, int) ([]HistoryItem, error) {
	return nil, ErrNotImplemented
}

// Transfers is not supported.
func (Unimplemented) Transfers(context.Context, string, Direction) ([]Transfer, error) {
	return nil, ErrNotImplemented
}

// Receipt is not supported.
func (Unimplemented) Receipt(context.Context, string) (Receipt, error) {
	return Receipt{}, ErrNotImplemented
}

// BlockTime is not supported.
func (Unimplemented) BlockTime(context.Context, string) (time.Time, error) {
	return time.Time{}, ErrNotImplemented
}

// GasPrice is not supported.
func (Unimplemented) GasPrice(context.Context) (decimal.Decimal, error) {
	return decimal.Zero, ErrNotImplemented
}

// Register is not supported.
func (Unimplemented) Register(context.Context, string) (bool, error) { return false, ErrNotImplemented }
