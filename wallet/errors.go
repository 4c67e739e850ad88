package wallet

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tarancss/custody/lib/block/types"
	"github.com/tarancss/custody/lib/lock"
)

// Errors returned by the wallet service.
var (
	ErrConflict            = errors.New("an active wallet already exists")
	ErrNotFound            = errors.New("not found")
	ErrInvalidAddress      = errors.New("invalid address: must be 0x followed by 40 hex digits")
	ErrInvalidHash         = errors.New("invalid transaction hash: must be 0x followed by 64 hex digits")
	ErrInvalidAmount       = errors.New("invalid amount: must be a positive decimal")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidOperation    = errors.New("cannot transfer to your own address")
	ErrUpstreamUnavailable = errors.New("chain data provider unavailable")
	ErrBroadcastAmbiguous  = errors.New("broadcast timed out: transaction may have been accepted")
	ErrBroadcastFailed     = errors.New("broadcast failed")
	ErrSignatureInvalid    = errors.New("invalid webhook signature")
	ErrNoOwner             = errors.New("missing owner identity")
	ErrBadRequest          = errors.New("bad request")
)

// BroadcastError is returned when a transfer was broadcast but could not be recorded. The transaction exists on
// chain and can be found by Hash.
type BroadcastError struct {
	Hash string
	Err  error
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("transfer %s was broadcast but could not be recorded: %v", e.Hash, e.Err)
}

func (e *BroadcastError) Unwrap() error { return e.Err }

// upstream classifies a failed provider read.
func upstream(err error) error {
	if errors.Is(err, types.ErrNotImplemented) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
}

// broadcast classifies a failed signed send. A timeout or cancellation leaves the outcome unknown.
func broadcast(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, types.ErrNotImplemented):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), ctx.Err() != nil:
		return fmt.Errorf("%w: %w", ErrBroadcastAmbiguous, err)
	default:
		return fmt.Errorf("%w: %w", ErrBroadcastFailed, err)
	}
}

// StatusCode returns the http status replied for err.
func StatusCode(err error) int {
	var be *BroadcastError

	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &be):
		return http.StatusInternalServerError
	case errors.Is(err, ErrConflict), errors.Is(err, lock.ErrLockHeld):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidAddress), errors.Is(err, ErrInvalidHash), errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrInvalidOperation), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoOwner):
		return http.StatusUnauthorized
	case errors.Is(err, ErrSignatureInvalid):
		return http.StatusForbidden
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrBroadcastAmbiguous):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrBroadcastFailed):
		return http.StatusBadGateway
	case errors.Is(err, types.ErrNotImplemented):
		return http.StatusNotImplemented
	}

	return http.StatusInternalServerError
}
