package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"moneta.org/internal/audit"
	"moneta.org/internal/auth"
	"moneta.org/internal/ledger"
	"moneta.org/internal/obs"
	"moneta.org/internal/stream"
)

type transferRequest struct {
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

type loanRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type closeRequest struct {
	User string `json:"user"`
	PIN  int    `json:"pin"`
}

func (a *API) handleAccount(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.getAccount(w, r)
	case http.MethodDelete:
		a.closeAccount(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) handleTransfers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.transfer(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost)
	}
}

func (a *API) handleLoans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.requestLoan(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost)
	}
}

func (a *API) getAccount(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := auth.SessionIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "session ended")
		return
	}
	sortByAmount := strings.EqualFold(r.URL.Query().Get("sort"), "amount")
	summary, err := a.engine.Snapshot(r.Context(), sessionID, sortByAmount)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) transfer(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := auth.SessionIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "session ended")
		return
	}
	var req transferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	to := strings.TrimSpace(req.To)
	if to == "" {
		writeError(w, r, http.StatusBadRequest, "to is required")
		return
	}

	from, _ := auth.AccountIDFromContext(r.Context())
	err := a.engine.Transfer(r.Context(), sessionID, to, req.Amount)
	obs.ObserveOperation("transfer", err)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}

	if a.stream != nil {
		currency := ""
		if acc, ok := a.engine.Directory().FindByID(from); ok {
			currency = acc.Currency()
		}
		a.stream.Publish(stream.Event{
			Kind:      stream.KindTransfer,
			AccountID: from,
			ToID:      to,
			Amount:    req.Amount,
			Currency:  currency,
			Timestamp: time.Now().UTC(),
		})
	}
	_ = audit.LogEvent(r.Context(), "ledger.transfer.execute", map[string]any{
		"to":     to,
		"amount": req.Amount.String(),
	})

	summary, err := a.engine.Snapshot(r.Context(), sessionID, false)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

func (a *API) requestLoan(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := auth.SessionIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "session ended")
		return
	}
	var req loanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	err := a.engine.RequestLoan(r.Context(), sessionID, req.Amount)
	obs.ObserveOperation("loan", err)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}

	accountID, _ := auth.AccountIDFromContext(r.Context())
	if a.stream != nil {
		a.stream.Publish(stream.Event{
			Kind:      stream.KindLoanRequested,
			AccountID: accountID,
			Amount:    req.Amount.Truncate(0),
			Timestamp: time.Now().UTC(),
		})
	}
	_ = audit.LogEvent(r.Context(), "ledger.loan.requested", map[string]any{
		"amount": req.Amount.Truncate(0).String(),
	})

	// The credit lands after the processing delay; nothing to return yet.
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "processing",
	})
}

func (a *API) closeAccount(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := auth.SessionIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "session ended")
		return
	}
	var req closeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	err := a.engine.CloseAccount(r.Context(), sessionID, strings.TrimSpace(req.User), req.PIN)
	obs.ObserveOperation("close", err)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}

	if a.stream != nil {
		a.stream.Publish(stream.Event{
			Kind:      stream.KindAccountClosed,
			AccountID: strings.TrimSpace(req.User),
			Timestamp: time.Now().UTC(),
		})
	}
	_ = audit.LogEvent(r.Context(), "ledger.account.close", map[string]any{
		"account": strings.TrimSpace(req.User),
	})
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ledger.ErrLoanNotEligible),
		errors.Is(err, ledger.ErrDuplicateShortID):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrAccountNotFound), errors.Is(err, ledger.ErrRecipientNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrBadPIN), errors.Is(err, ledger.ErrNoActiveSession):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ledger.ErrCloseMismatch):
		writeError(w, r, http.StatusForbidden, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
