package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// maxBody bounds the size of request bodies.
const maxBody = 1 << 20

// Response defines the data structure returned to the client making the http request. Body holds the JSON encoding
// of the result.
type Response struct {
	Body  string `json:"body"`
	Error string `json:"error,omitempty"`
}

// WebhookResponse is replied to every webhook delivery.
type WebhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// reply writes res with the status code of err, or status when err is nil. A non nil body is replied even with an
// error, so a transfer that was broadcast but not recorded still returns its hash.
func (w *Wallet) reply(rw http.ResponseWriter, r *http.Request, status int, body interface{}, err error) {
	var res Response

	if err != nil {
		res.Error = err.Error()
		status = StatusCode(err)
	}

	switch b := body.(type) {
	case nil:
	case string:
		res.Body = b
	default:
		tmp, mErr := json.Marshal(b)
		if mErr != nil {
			w.log.Error("cannot encode response", zap.Error(mErr))
		}

		res.Body = string(tmp)
	}

	w.log.Debug("httpreq", zap.String("remote", r.RemoteAddr), zap.String("uri", r.RequestURI),
		zap.Int("status", status), zap.Error(err))

	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(&res)
}

// decode reads the JSON request body into v.
func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}

	return nil
}

// paging reads the page and pageSize query parameters. Missing values are 0.
func paging(r *http.Request) (page, pageSize int, err error) {
	q := r.URL.Query()

	if s := q.Get("page"); s != "" {
		if page, err = strconv.Atoi(s); err != nil {
			return 0, 0, fmt.Errorf("%w: page", ErrBadRequest)
		}
	}

	if s := q.Get("pageSize"); s != "" {
		if pageSize, err = strconv.Atoi(s); err != nil {
			return 0, 0, fmt.Errorf("%w: pageSize", ErrBadRequest)
		}
	}

	return page, pageSize, nil
}

// homeHandler just replies a welcome message to the client.
func (w *Wallet) homeHandler(rw http.ResponseWriter, r *http.Request) {
	w.reply(rw, r, http.StatusOK, "Hello, this is your custodial wallet service!", nil)
}

// networksHandler replies the chain data providers available to the wallet.
func (w *Wallet) networksHandler(rw http.ResponseWriter, r *http.Request) {
	w.reply(rw, r, http.StatusOK, w.Networks(), nil)
}

func (w *Wallet) createHandler(rw http.ResponseWriter, r *http.Request) {
	owner, _ := Owner(r.Context())
	wa, err := w.CreateWallet(r.Context(), owner)

	if err != nil {
		w.reply(rw, r, 0, nil, err)

		return
	}

	w.reply(rw, r, http.StatusCreated, wa, nil)
}

func (w *Wallet) deactivateHandler(rw http.ResponseWriter, r *http.Request) {
	owner, _ := Owner(r.Context())
	if err := w.DeactivateWallet(r.Context(), owner); err != nil {
		w.reply(rw, r, 0, nil, err)

		return
	}

	w.reply(rw, r, http.StatusOK, "wallet deactivated", nil)
}

type verifyReq struct {
	Phrase string `json:"phrase"`
}

type verifyRes struct {
	Valid bool `json:"valid"`
}

// verifyHandler checks a recovery phrase against the owner's wallet.
func (w *Wallet) verifyHandler(rw http.ResponseWriter, r *http.Request) {
	var req verifyReq
	if err := decode(r, &req); err != nil {
		w.reply(rw, r, 0, nil, err)

		return
	}

	owner, _ := Owner(r.Context())
	ok, err := w.VerifyPhrase(r.Context(), owner, req.Phrase)

	w.reply(rw, r, http.StatusOK, verifyRes{Valid: ok}, err)
}

func (w *Wallet) balanceHandler(rw http.ResponseWriter, r *http.Request) {
	owner, _ := Owner(r.Context())
	bal, err := w.Balance(r.Context(), owner)

	w.reply(rw, r, http.StatusOK, bal, err)
}

// addrBalHandler replies the live balance of the address requested.
func (w *Wallet) addrBalHandler(rw http.ResponseWriter, r *http.Request) {
	bal, err := w.AddressBalance(r.Context(), mux.Vars(r)["address"])

	w.reply(rw, r, http.StatusOK, bal, err)
}

func (w *Wallet) historyHandler(rw http.ResponseWriter, r *http.Request) {
	page, size, err := paging(r)
	if err != nil {
		w.reply(rw, r, 0, nil, err)

		return
	}

	owner, _ := Owner(r.Context())
	items, err := w.OwnerHistory(r.Context(), owner, page, size)

	w.reply(rw, r, http.StatusOK, items, err)
}

func (w *Wallet) addrHistoryHandler(rw http.ResponseWriter, r *http.Request) {
	page, size, err := paging(r)
	if err != nil {
		w.reply(rw, r, 0, nil, err)

		return
	}

	items, err := w.ListHistory(r.Context(), mux.Vars(r)["address"], page, size)

	w.reply(rw, r, http.StatusOK, items, err)
}

// sendHandler sends a transfer from the owner's wallet. The record is replied even when it could not be saved after
// the broadcast, so the caller learns the hash.
func (w *Wallet) sendHandler(rw http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := decode(r, &req); err != nil {
		w.reply(rw, r, 0, nil, err)

		return
	}

	owner, _ := Owner(r.Context())
	rec, err := w.Transfer(r.Context(), owner, req)

	var be *BroadcastError
	if err != nil && !errors.As(err, &be) {
		w.reply(rw, r, 0, nil, err)

		return
	}

	w.reply(rw, r, http.StatusAccepted, rec, err)
}

// gasHandler replies the current gas price.
func (w *Wallet) gasHandler(rw http.ResponseWriter, r *http.Request) {
	g, err := w.GasPrice(r.Context())

	w.reply(rw, r, http.StatusOK, g, err)
}

// txHandler replies the details of the transaction requested.
func (w *Wallet) txHandler(rw http.ResponseWriter, r *http.Request) {
	t, err := w.Transaction(r.Context(), mux.Vars(r)["hash"])
	if err != nil {
		w.reply(rw, r, 0, nil, err)

		return
	}

	w.reply(rw, r, http.StatusOK, t, nil)
}

// clientIP returns the address of the original sender of r.
func clientIP(r *http.Request) string {
	if f := r.Header.Get("X-Forwarded-For"); f != "" {
		return strings.TrimSpace(strings.Split(f, ",")[0])
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}

	return r.RemoteAddr
}

// webhookHandler receives chain notifications. It always replies 200 so the notifier does not retry; the outcome is
// only reported in the body.
func (w *Wallet) webhookHandler(rw http.ResponseWriter, r *http.Request) {
	res := WebhookResponse{Success: true}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err == nil {
		err = w.HandleWebhook(r.Context(), body, r.Header.Get(w.SignatureHeader()),
			Origin{IP: clientIP(r), UserAgent: r.UserAgent()})
	}

	switch {
	case errors.Is(err, ErrSignatureInvalid):
		w.log.Warn("invalid webhook signature", zap.String("ip", clientIP(r)))

		res = WebhookResponse{Message: "Invalid signature"}
	case err != nil:
		w.log.Error("error handling webhook", zap.Error(err))

		res = WebhookResponse{Message: "Error processing webhook"}
	}

	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	rw.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(rw).Encode(&res)
}
