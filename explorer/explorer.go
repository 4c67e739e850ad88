// Package explorer implements the transfer explorer service. The explorer re-queries the chain data provider for the
// outcome of the transfers still recorded as pending, so their status converges even when a webhook notification is
// lost.
package explorer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tarancss/custody/lib/logger"
)

// Defaults for New.
const (
	IntervalDefault = 30 * time.Second
	BatchDefault    = 100
)

// Reconciler updates the status of up to limit pending transfers and returns how many changed.
type Reconciler interface {
	ReconcilePending(ctx context.Context, limit int) (int, error)
}

// Explorer runs rounds of pending transfer reconciliation at a fixed interval.
type Explorer struct {
	r     Reconciler
	every time.Duration
	batch int
	log   *zap.Logger

	once sync.Once
	stop chan struct{}

	mu     sync.Mutex
	rounds int
	total  int
}

// New instantiates a new explorer service that reconciles up to batch transfers every interval.
func New(r Reconciler, every time.Duration, batch int) *Explorer {
	if every <= 0 {
		every = IntervalDefault
	}

	if batch <= 0 {
		batch = BatchDefault
	}

	return &Explorer{r: r, every: every, batch: batch, log: logger.Named("explorer"), stop: make(chan struct{})}
}

// Explore starts a go routine running a reconciliation round right away and then at every interval. The returned
// channel receives a summary once the routine ends, after StopExplorer is called or ctx is done. A round in
// progress is always finished.
func (e *Explorer) Explore(ctx context.Context) chan string {
	ret := make(chan string, 1)

	go func() {
		t := time.NewTicker(e.every)
		defer t.Stop()

		for {
			e.round(ctx)

			select {
			case <-t.C:
			case <-e.stop:
				ret <- e.summary()

				return
			case <-ctx.Done():
				ret <- e.summary()

				return
			}
		}
	}()

	return ret
}

func (e *Explorer) round(ctx context.Context) {
	n, err := e.r.ReconcilePending(context.WithoutCancel(ctx), e.batch)
	if err != nil {
		e.log.Warn("reconciliation round incomplete", zap.Int("changed", n), zap.Error(err))
	} else if n > 0 {
		e.log.Info("reconciled pending transfers", zap.Int("changed", n))
	}

	e.mu.Lock()
	e.rounds++
	e.total += n
	e.mu.Unlock()
}

// Stats returns the number of rounds run and of transfers changed so far.
func (e *Explorer) Stats() (rounds, changed int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.rounds, e.total
}

func (e *Explorer) summary() string {
	rounds, changed := e.Stats()

	return fmt.Sprintf("rounds:%d changed:%d", rounds, changed)
}

// StopExplorer sends the termination signal to the explorer go routine.
func (e *Explorer) StopExplorer() {
	e.once.Do(func() { close(e.stop) })
}
