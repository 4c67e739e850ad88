package wallet

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tarancss/custody/lib/metrics"
	"github.com/tarancss/custody/lib/msg"
	"github.com/tarancss/custody/lib/store"
	"github.com/tarancss/custody/lib/util"
)

// Notification types that carry an explicit outcome.
const (
	MinedTransaction   = "MINED_TRANSACTION"
	DroppedTransaction = "DROPPED_TRANSACTION"
	AddressActivity    = "ADDRESS_ACTIVITY"
)

// Receipt status values as notified.
var (
	receiptSuccess = []string{"0x1", "1", "success"}           //nolint:gochecknoglobals // constant list
	receiptFailure = []string{"0x0", "0", "failure", "failed"} //nolint:gochecknoglobals // constant list
)

// Notification is a chain event pushed by the notifier. Only the fields used for reconciliation are decoded; every
// one of them is optional.
type Notification struct {
	WebhookID string `json:"webhookId"`
	ID        string `json:"id"`
	Type      string `json:"type"`
	Event     struct {
		Network     string `json:"network"`
		Transaction *struct {
			Hash          string  `json:"hash"`
			Confirmations *int64  `json:"confirmations"`
			Status        *string `json:"status"` // receipt status, 0x1 success or 0x0 failure
		} `json:"transaction"`
		Activity []struct {
			Hash     string `json:"hash"`
			BlockNum string `json:"blockNum"`
		} `json:"activity"`
	} `json:"event"`
}

// ParseNotification decodes a notification body.
func ParseNotification(body []byte) (*Notification, error) {
	n := new(Notification)
	if err := json.Unmarshal(body, n); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}

	return n, nil
}

// Hash returns the transaction hash the notification is about, or "" if it carries none.
func (n *Notification) Hash() string {
	if t := n.Event.Transaction; t != nil && t.Hash != "" {
		return strings.ToLower(t.Hash)
	}

	for _, a := range n.Event.Activity {
		if a.Hash != "" {
			return strings.ToLower(a.Hash)
		}
	}

	return ""
}

// Candidate returns the status the notification implies. The event type wins over the confirmation count, which
// wins over the receipt status. ok is false when nothing can be inferred.
func (n *Notification) Candidate() (s store.Status, ok bool) {
	switch n.Type {
	case MinedTransaction:
		return store.StatusConfirmed, true
	case DroppedTransaction:
		return store.StatusFailed, true
	}

	t := n.Event.Transaction
	if t != nil && t.Confirmations != nil && *t.Confirmations >= 1 {
		return store.StatusConfirmed, true
	}

	for _, a := range n.Event.Activity {
		if a.BlockNum != "" {
			return store.StatusConfirmed, true
		}
	}

	if t != nil && t.Status != nil {
		switch s := strings.ToLower(*t.Status); {
		case util.In(receiptSuccess, s):
			return store.StatusConfirmed, true
		case util.In(receiptFailure, s):
			return store.StatusFailed, true
		}
	}

	return "", false
}

// Sign returns the hex encoded HMAC-SHA256 of body keyed with secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether sig is the HMAC-SHA256 of body keyed with the webhook secret. A missing secret or a
// signature that is not hex never verifies.
func (w *Wallet) VerifySignature(body []byte, sig string) bool {
	if w.conf.Secret == "" || sig == "" {
		return false
	}

	got, err := hex.DecodeString(strings.TrimSpace(sig))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(w.conf.Secret))
	mac.Write(body)

	return hmac.Equal(got, mac.Sum(nil))
}

// SignatureHeader is the request header carrying the webhook signature.
func (w *Wallet) SignatureHeader() string {
	return "x-" + w.conf.Source + "-signature"
}

// Origin identifies the sender of a webhook delivery.
type Origin struct {
	IP        string
	UserAgent string
}

// HandleWebhook authenticates a webhook delivery and reconciles the transfer it reports. Every authenticated delivery
// is saved to the audit trail before processing, whatever the outcome. Unauthenticated deliveries change nothing and
// return ErrSignatureInvalid.
func (w *Wallet) HandleWebhook(ctx context.Context, body []byte, sig string, o Origin) error {
	if !w.VerifySignature(body, sig) {
		metrics.Webhooks.WithLabelValues(w.conf.Source, metrics.BadSignature).Inc()

		return ErrSignatureInvalid
	}

	n, perr := ParseNotification(body)

	a := &store.WebhookAudit{Source: w.conf.Source, IP: o.IP, UserAgent: o.UserAgent, Payload: string(body)}
	if n != nil {
		a.Event = n.Type
	}

	a.Init(time.Now().UTC())

	if err := w.db.InsertWebhookAudit(context.WithoutCancel(ctx), a); err != nil {
		w.log.Error("cannot save webhook audit", zap.String("source", w.conf.Source), zap.Error(err))
	}

	if perr != nil {
		metrics.Webhooks.WithLabelValues(w.conf.Source, metrics.Unmatched).Inc()

		return perr
	}

	outcome, err := w.process(ctx, n)
	metrics.Webhooks.WithLabelValues(w.conf.Source, outcome).Inc()

	return err
}

// ProcessEvent reconciles the transfer record n is about. It reports whether the record status changed. Events
// without a hash or about unknown transfers are ignored.
func (w *Wallet) ProcessEvent(ctx context.Context, n *Notification) (bool, error) {
	outcome, err := w.process(ctx, n)

	return outcome == metrics.Reconciled, err
}

func (w *Wallet) process(ctx context.Context, n *Notification) (string, error) {
	hash := n.Hash()
	if hash == "" {
		return metrics.Unmatched, nil
	}

	rec, err := w.db.Transfer(ctx, hash)
	if errors.Is(err, store.ErrNotFound) {
		w.log.Debug("no transfer for event", zap.String("hash", hash), zap.String("type", n.Type))

		return metrics.Unmatched, nil
	} else if err != nil {
		return metrics.Accepted, err
	}

	to, ok := n.Candidate()
	if !ok {
		return metrics.Accepted, nil
	}

	changed, err := w.transition(ctx, rec, to)
	if changed {
		return metrics.Reconciled, err
	}

	return metrics.Accepted, err
}

// transition moves rec to status to. Equal statuses are a no-op and terminal statuses are never left. The store
// update only applies if the record is still in the status it was read with.
func (w *Wallet) transition(ctx context.Context, rec store.TransferRecord, to store.Status) (bool, error) {
	log := w.log.With(zap.String("hash", rec.Hash), zap.String("from", string(rec.Status)),
		zap.String("to", string(to)))

	if to == rec.Status {
		return false, nil
	}

	if rec.Status.Terminal() {
		log.Warn("ignored status change of final transfer")

		return false, nil
	}

	ok, err := w.db.SetTransferStatus(ctx, rec.Hash, rec.Status, to)
	if err != nil {
		return false, err
	}

	if !ok {
		log.Info("transfer status changed concurrently")

		return false, nil
	}

	metrics.StatusTransitions.WithLabelValues(string(rec.Status), string(to)).Inc()
	log.Info("transfer status changed")

	w.publish(msg.Event{
		Kind: msg.STATUS, Hash: rec.Hash, From: rec.From, To: rec.To, Amount: rec.Amount,
		Prev: string(rec.Status), Status: string(to),
	})

	return true, nil
}
