package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tarancss/custody/lib/block/types"
	"github.com/tarancss/custody/lib/metrics"
	"github.com/tarancss/custody/lib/msg"
	"github.com/tarancss/custody/lib/store"
	"github.com/tarancss/custody/lib/util"
)

// TransferRequest contains the fields of an outbound transfer. Amount is expressed in the network currency.
type TransferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
	Memo   string `json:"memo,omitempty"`
}

// Transfer sends amount from the active wallet of owner to req.To and records it as pending.
//
// The steps run strictly in order: load and validate, check the live balance covers the amount plus the gas buffer,
// broadcast, then debit the cached balance and insert the record in one atomic scope. The balance check and the
// broadcast are not atomic with respect to the chain; a concurrent spend from outside the service is caught by the
// provider at broadcast time only. Once the broadcast succeeds nothing is rolled back: a failure to record it
// returns the record with its hash together with a *BroadcastError.
func (w *Wallet) Transfer(ctx context.Context, owner string, req TransferRequest) (store.TransferRecord, error) {
	rec, err := w.transfer(ctx, owner, req)
	if err != nil {
		metrics.Transfers.WithLabelValues(w.conf.Network, outcome(err)).Inc()

		return rec, err
	}

	metrics.Transfers.WithLabelValues(w.conf.Network, metrics.Broadcast).Inc()

	return rec, nil
}

func (w *Wallet) transfer(ctx context.Context, owner string, req TransferRequest) (store.TransferRecord, error) {
	if !util.IsAddress(req.To) {
		return store.TransferRecord{}, ErrInvalidAddress
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil || !amount.IsPositive() {
		return store.TransferRecord{}, ErrInvalidAmount
	}

	if owner == "" {
		return store.TransferRecord{}, ErrNoOwner
	}

	// one transfer per owner at a time, so two of them cannot pass the funds check on the same balance
	unlock, err := w.lk.Lock(ctx, "transfer:"+owner)
	if err != nil {
		return store.TransferRecord{}, err
	}
	defer unlock()

	wa, err := w.activeWallet(ctx, owner, true)
	if err != nil {
		return store.TransferRecord{}, err
	}

	if strings.EqualFold(wa.Address, req.To) {
		return store.TransferRecord{}, ErrInvalidOperation
	}

	log := w.log.With(zap.String("owner", owner), zap.String("address", wa.Address), zap.String("to", req.To))

	// funds check against the live balance, the cached one may be stale
	cctx, cancel := w.call(ctx)
	bal, err := w.signer.Balance(cctx, wa.Address)
	cancel()

	if err != nil {
		return store.TransferRecord{}, upstream(err)
	}

	required := amount.Add(w.conf.GasBuffer)
	if bal.LessThan(required) {
		return store.TransferRecord{}, fmt.Errorf("%w: need at least %s %s including gas, have %s", ErrInsufficientFunds,
			required, types.NativeAsset, bal)
	}

	// broadcast, irrevocable once a hash is returned
	cctx, cancel = w.call(ctx)
	hash, err := w.signer.Send(cctx, wa.PrivateKey, req.To, amount)
	if err != nil {
		err = broadcast(cctx, err)
	}
	cancel()

	if err != nil {
		log.Error("transfer not broadcast", zap.String("amount", amount.String()), zap.Error(err))

		return store.TransferRecord{}, err
	}

	remaining := bal.Sub(required)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	rec := store.TransferRecord{
		Hash:    hash,
		From:    wa.Address,
		To:      util.Normalize(req.To),
		Amount:  amount.String(),
		Memo:    req.Memo,
		Network: w.conf.Network,
		Status:  store.StatusPending,
	}

	// the chain already has the transaction: record it even if the caller went away
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.conf.Timeout)
	defer cancel()

	err = w.db.Atomic(pctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.SetBalance(ctx, wa.Address, remaining.String()); err != nil {
			return err
		}

		return tx.InsertTransfer(ctx, &rec)
	})
	if err != nil {
		log.Error("transfer broadcast but not recorded", zap.String("hash", hash), zap.Error(err))

		return rec, &BroadcastError{Hash: hash, Err: err}
	}

	log.Info("transfer broadcast", zap.String("hash", hash), zap.String("amount", rec.Amount))
	w.publish(msg.Event{
		Kind: msg.TRANSFER, Hash: hash, From: rec.From, To: rec.To, Amount: rec.Amount, Status: string(rec.Status),
	})

	return rec, nil
}

// outcome labels a failed transfer for metrics.
func outcome(err error) string {
	var be *BroadcastError

	switch {
	case errors.As(err, &be):
		return metrics.Orphaned
	case errors.Is(err, ErrBroadcastAmbiguous):
		return metrics.Ambiguous
	case errors.Is(err, ErrBroadcastFailed):
		return metrics.Failed
	}

	return metrics.Rejected
}
