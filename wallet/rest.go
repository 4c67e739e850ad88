package wallet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const timeout = 15

// OwnerHeader is the request header the authentication layer sets with the identity of the caller.
const OwnerHeader = "X-Owner-Id"

type ctxKey int

const ownerKey ctxKey = iota

// WithOwner returns a copy of ctx carrying the owner identity.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}

// Owner returns the owner identity carried by ctx, if any.
func Owner(ctx context.Context) (string, bool) {
	o, ok := ctx.Value(ownerKey).(string)

	return o, ok && o != ""
}

// ownerMiddleware moves the owner identity from the request header to the request context.
func ownerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if o := strings.TrimSpace(r.Header.Get(OwnerHeader)); o != "" {
			r = r.WithContext(WithOwner(r.Context(), o))
		}

		next.ServeHTTP(rw, r)
	})
}

// authenticated rejects requests without an owner identity.
func (w *Wallet) authenticated(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if _, ok := Owner(r.Context()); !ok {
			w.reply(rw, r, 0, nil, ErrNoOwner)

			return
		}

		h(rw, r)
	}
}

// Router returns the handler of the RESTful API.
func (w *Wallet) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(ownerMiddleware)

	r.HandleFunc("/", w.homeHandler)
	r.HandleFunc("/networks", w.networksHandler).Methods(http.MethodGet)                       // chain data providers
	r.HandleFunc("/wallet", w.authenticated(w.createHandler)).Methods(http.MethodPost)         // create wallet
	r.HandleFunc("/wallet", w.authenticated(w.deactivateHandler)).Methods(http.MethodDelete)   // deactivate wallet
	r.HandleFunc("/wallet/verify", w.authenticated(w.verifyHandler)).Methods(http.MethodPost)  // check recovery phrase
	r.HandleFunc("/wallet/balance", w.authenticated(w.balanceHandler)).Methods(http.MethodGet) // refresh own balance
	r.HandleFunc("/wallet/history", w.authenticated(w.historyHandler)).Methods(http.MethodGet) // own history
	r.HandleFunc("/address/{address}", w.addrBalHandler).Methods(http.MethodGet)               // any address balance
	r.HandleFunc("/address/{address}/history", w.addrHistoryHandler).Methods(http.MethodGet)   // any address history
	r.HandleFunc("/send", w.authenticated(w.sendHandler)).Methods(http.MethodPost)             // send a transfer
	r.HandleFunc("/gasprice", w.gasHandler).Methods(http.MethodGet)                            // current gas price
	r.HandleFunc("/tx/{hash}", w.txHandler).Methods(http.MethodGet)                            // transaction details
	r.HandleFunc("/webhook", w.webhookHandler).Methods(http.MethodPost)                        // chain notifications

	return r
}

// Init sets up and starts the http/https server to service the RESTful API for a wallet service. If sslPort, ssCert
// and sslKey are informed, it will start an https (TLS) server on the specified endpoint.
func (w *Wallet) Init(endpoint, port, sslPort, sslCert, sslKey string) string {
	var err, errTLS error

	r := w.Router()

	// start http server
	if port != "" {
		w.s = &http.Server{
			Handler:      r,
			Addr:         endpoint + ":" + port,
			WriteTimeout: timeout * time.Second,
			ReadTimeout:  timeout * time.Second,
		}

		go func() {
			if e := w.s.ListenAndServe(); !errors.Is(e, http.ErrServerClosed) {
				err = e
			}
		}()

		w.log.Info("listening to API http requests", zap.String("endpoint", endpoint), zap.String("port", port))
	}
	// start https server
	if sslPort != "" && sslCert != "" && sslKey != "" {
		w.ss = &http.Server{
			Handler:      r,
			Addr:         endpoint + ":" + sslPort,
			WriteTimeout: timeout * time.Second,
			ReadTimeout:  timeout * time.Second,
		}

		go func() {
			if e := w.ss.ListenAndServeTLS(sslCert, sslKey); !errors.Is(e, http.ErrServerClosed) {
				errTLS = e
			}
		}()

		w.log.Info("listening to API https requests", zap.String("endpoint", endpoint), zap.String("port", sslPort))
	}
	// wait for servers to be shutdown
	<-w.sc

	return fmt.Sprintf("shutdown http server:%v, https server:%v", err, errTLS)
}
