package wallet

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/tarancss/custody/lib/block/types"
	"github.com/tarancss/custody/lib/metrics"
	"github.com/tarancss/custody/lib/store"
	"github.com/tarancss/custody/lib/util"
)

// DefaultReconcileLimit is the number of pending transfers re-queried when no limit is given.
const DefaultReconcileLimit = 100

// Transaction returns the details of the transaction hash.
func (w *Wallet) Transaction(ctx context.Context, hash string) (*types.Trans, error) {
	if !util.IsHash(hash) {
		return nil, ErrInvalidHash
	}

	cctx, cancel := w.call(ctx)
	defer cancel()

	t, err := w.signer.Get(cctx, hash)
	switch {
	case errors.Is(err, types.ErrNoTrx):
		return nil, ErrNotFound
	case err != nil:
		return nil, upstream(err)
	}

	return t, nil
}

// ReconcilePending re-queries up to limit pending transfers and records those the chain reports as mined or failed.
// It returns the number of transfers whose status changed. Lookups that fail are logged and retried on the next
// run; the errors are returned joined.
func (w *Wallet) ReconcilePending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = DefaultReconcileLimit
	}

	recs, err := w.db.PendingTransfers(ctx, limit)
	if err != nil {
		return 0, err
	}

	var (
		n    int
		errs []error
	)

	for _, rec := range recs {
		t, err := w.Transaction(ctx, rec.Hash)
		if errors.Is(err, ErrNotFound) {
			w.log.Info("pending transfer unknown to provider", zap.String("hash", rec.Hash))

			continue
		} else if err != nil {
			w.log.Warn("cannot re-query transfer", zap.String("hash", rec.Hash), zap.Error(err))
			errs = append(errs, err)

			continue
		}

		to, ok := chainStatus(t.Status)
		if !ok {
			continue
		}

		changed, err := w.transition(ctx, rec, to)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		if changed {
			metrics.Webhooks.WithLabelValues("requery", metrics.Reconciled).Inc()
			n++
		}
	}

	return n, errors.Join(errs...)
}

func chainStatus(s uint8) (store.Status, bool) {
	switch s {
	case types.TrxSuccess:
		return store.StatusConfirmed, true
	case types.TrxFailed:
		return store.StatusFailed, true
	default:
		return "", false
	}
}
