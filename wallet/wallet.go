// Package wallet implements the custodial wallet service.
//
// The service creates one custodial wallet per owner, keeps its cached balance in line with the chain, executes
// outbound transfers, lists address histories from the configured chain data providers and reconciles the status of
// recorded transfers from signed webhook notifications or explicit re-queries. A RESTful API exposes all of it.
package wallet

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tarancss/custody/lib/block"
	"github.com/tarancss/custody/lib/config"
	"github.com/tarancss/custody/lib/lock"
	"github.com/tarancss/custody/lib/logger"
	"github.com/tarancss/custody/lib/msg"
	"github.com/tarancss/custody/lib/store"
)

// Config contains the settings of the wallet service.
type Config struct {
	Network      string          // network identifier saved with wallets and transfers
	GasBuffer    decimal.Decimal // added to transfer amounts when checking funds
	Timeout      time.Duration   // bounds every provider call
	HistoryLimit int             // entries kept from merged transfer histories
	Secret       string          // webhook signing secret
	Source       string          // webhook source, the signature is read from x-<source>-signature
}

// ConfigFrom builds the wallet Config from the service configuration.
func ConfigFrom(sc config.ServiceConfig) (Config, error) {
	buf, err := sc.Buffer()
	if err != nil {
		return Config{}, err
	}

	return Config{
		Network:      sc.Network,
		GasBuffer:    buf,
		Timeout:      sc.CallTimeout(),
		HistoryLimit: sc.HistoryLimit,
		Secret:       sc.WebhookSecret,
		Source:       sc.WebhookSource,
	}, nil
}

// Wallet contains the data necessary to deliver the service
type Wallet struct {
	conf    Config
	db      store.DB                  // db connection
	bc      map[string]block.Provider // chain data providers
	signer  block.Provider            // full capability provider: keys, balances, broadcasts
	indexer block.Provider            // provider used for histories
	mb      msg.MsgBroker
	lk      lock.Locker
	log     *zap.Logger
	s       *http.Server  // http server
	ss      *http.Server  // https server
	sc      chan struct{} // http server channel used for graceful shutdowns
}

// New returns a pointer to a new Wallet service. signer and indexer name providers of bc.
func New(conf Config, dbConn store.DB, mb msg.MsgBroker, lk lock.Locker, bc map[string]block.Provider,
	signer, indexer string,
) (*Wallet, error) {
	w := &Wallet{
		conf: conf,
		db:   dbConn,
		bc:   bc,
		mb:   mb,
		lk:   lk,
		log:  logger.Named("wallet"),
		sc:   make(chan struct{}),
	}

	var ok bool
	if w.signer, ok = bc[signer]; !ok {
		return nil, fmt.Errorf("%w: signer %q", ErrNotFound, signer)
	}

	if w.indexer, ok = bc[indexer]; !ok {
		return nil, fmt.Errorf("%w: indexer %q", ErrNotFound, indexer)
	}

	if w.mb == nil {
		w.mb = msg.Nop{}
	}

	if w.lk == nil {
		w.lk = lock.NewLocal()
	}

	if w.conf.HistoryLimit <= 0 {
		w.conf.HistoryLimit = config.HistoryLimitDefault
	}

	if w.conf.Timeout <= 0 {
		w.conf.Timeout = time.Duration(config.TimeoutDefault) * time.Second
	}

	return w, nil
}

// Networks returns the names of the chain data providers available, sorted.
func (w *Wallet) Networks() []string {
	pl := make([]string, 0, len(w.bc))
	for name := range w.bc {
		pl = append(pl, name)
	}

	sort.Strings(pl)

	return pl
}

// call bounds a provider call with the configured timeout.
func (w *Wallet) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, w.conf.Timeout)
}

// publish sends e to the broker. Failures are logged only.
func (w *Wallet) publish(e msg.Event) {
	e.Net, e.Time = w.conf.Network, time.Now().UTC()

	if err := w.mb.SendEvent(w.conf.Network, e); err != nil {
		w.log.Warn("cannot publish event", zap.String("kind", e.Kind), zap.String("hash", e.Hash), zap.Error(err))
	}
}

// StopWallet shuts down the http servers implementing the RESTful API and closes gracefully the connections to
// message broker, chain data providers and database.
func (w *Wallet) StopWallet() {
	ctx, cancel := context.WithTimeout(context.Background(), w.conf.Timeout)
	defer cancel()

	if w.s != nil {
		if err := w.s.Shutdown(ctx); err != nil {
			w.log.Error("error in http server shutdown", zap.Error(err))
		}
	}

	if w.ss != nil {
		if err := w.ss.Shutdown(ctx); err != nil {
			w.log.Error("error in https server shutdown", zap.Error(err))
		}
	}

	close(w.sc) // indicate shutdowns have finished

	if err := w.mb.Close(); err != nil {
		w.log.Error("error closing message broker", zap.Error(err))
	}

	block.End(w.bc)

	if w.db != nil {
		err := w.db.Close()
		w.log.Info("disconnected database", zap.Error(err))
	}
}

// ManageEvents consumes the wallet events of the network from the broker and hands each one to handle. Messages are
// acknowledged once handle returns.
func (w *Wallet) ManageEvents(ctx context.Context, handle func(msg.Event)) error {
	mut := new(sync.Mutex)
	mut.Lock()

	eveCh, errCh, err := w.mb.GetEvents(w.conf.Network, mut)
	if err != nil {
		return err
	}

	for {
		select {
		case eve, ok := <-eveCh:
			if !ok {
				return nil
			}

			handle(eve)
			mut.Unlock()
		case e := <-errCh:
			w.log.Warn("received error from broker", zap.Error(e))
		case <-ctx.Done():
			return nil
		}
	}
}
