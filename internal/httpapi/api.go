package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"moneta.org/internal/audit"
	"moneta.org/internal/ledger"
	"moneta.org/internal/obs"
	"moneta.org/internal/stream"
)

// ReadyProbe reports readiness; with a database configured for the
// audit sink it pings it, otherwise the in-memory service is always ready.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer between the presentation client and the ledger.
type API struct {
	mux        *http.ServeMux
	engine     *ledger.Engine
	stream     *stream.Stream
	readyProbe ReadyProbe
	version    string

	rateBurst  int
	ratePerSec int
}

// New wires the routes and registers the API as the engine's loan
// notifier so deferred disbursements reach SSE clients and the audit log.
func New(rp ReadyProbe, version string, engine *ledger.Engine, st *stream.Stream) *API {
	a := &API{
		mux:        http.NewServeMux(),
		engine:     engine,
		stream:     st,
		readyProbe: rp,
		version:    version,
		rateBurst:  20,
		ratePerSec: 10,
	}
	engine.Loans = a

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/sessions", a.handleSessions)
	a.mux.HandleFunc("/v1/account", a.handleAccount)
	a.mux.HandleFunc("/v1/transfers", a.handleTransfers)
	a.mux.HandleFunc("/v1/loans", a.handleLoans)
	a.mux.HandleFunc("/v1/events", a.handleEvents)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = obs.Instrument(h)
	h = Logging(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	return RequestID(h)
}

// LoanDisbursed implements ledger.LoanNotifier: the deferred credit has
// landed, so fan it out and record it.
func (a *API) LoanDisbursed(accountID string, m ledger.Movement) {
	obs.ObserveLoanDisbursed()

	currency := ""
	if acc, ok := a.engine.Directory().FindByID(accountID); ok {
		currency = acc.Currency()
	}
	if a.stream != nil {
		a.stream.Publish(stream.Event{
			Kind:      stream.KindLoanDisbursed,
			AccountID: accountID,
			Amount:    m.Amount,
			Currency:  currency,
			Timestamp: m.OccurredAt,
		})
	}
	_ = audit.LogEvent(context.Background(), "ledger.loan.disbursed", map[string]any{
		"account":  accountID,
		"movement": m.ID,
		"amount":   m.Amount.String(),
	})
}

// --- Service handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "moneta-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     "moneta-api",
		"time":     time.Now().UTC().Format(time.RFC3339),
		"version":  a.version,
		"accounts": a.engine.Directory().Len(),
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
