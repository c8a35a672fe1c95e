package httpapi

import (
	"net/http"
	"strings"
	"time"

	"moneta.org/internal/audit"
	"moneta.org/internal/auth"
	"moneta.org/internal/ledger"
	"moneta.org/internal/obs"
)

type loginRequest struct {
	User string `json:"user"`
	PIN  int    `json:"pin"`
}

type loginResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	Account   ledger.Summary `json:"account"`
}

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.login(w, r)
	case http.MethodDelete:
		a.logout(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user := strings.TrimSpace(req.User)
	if user == "" {
		writeError(w, r, http.StatusBadRequest, "user is required")
		return
	}

	sess, err := a.engine.Authenticate(r.Context(), user, req.PIN)
	obs.ObserveOperation("authenticate", err)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}

	token, err := auth.GenerateToken(sess.ID, sess.AccountID, a.engine.SessionTTL)
	if err != nil {
		a.engine.ClearSession(sess.ID)
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	summary, err := a.engine.Snapshot(r.Context(), sess.ID, false)
	if err != nil {
		handleLedgerError(w, r, err)
		return
	}

	ctx := auth.ContextWithSession(r.Context(), sess.ID, sess.AccountID)
	_ = audit.LogEvent(ctx, "session.login", map[string]any{
		"account":    sess.AccountID,
		"expires_at": sess.ExpiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: sess.ExpiresAt,
		Account:   summary,
	})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := auth.SessionIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "session ended")
		return
	}
	a.engine.ClearSession(sessionID)
	obs.ObserveOperation("logout", nil)
	_ = audit.LogEvent(r.Context(), "session.logout", nil)
	w.WriteHeader(http.StatusNoContent)
}
