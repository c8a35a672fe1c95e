package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"moneta.org/internal/auth"
	"moneta.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// Entry is one audit record: who did what, under which request.
type Entry struct {
	TS        time.Time      `json:"ts"`
	Event     string         `json:"event"`
	RequestID string         `json:"request_id,omitempty"`
	AccountID string         `json:"account_id,omitempty"`
	Fields    map[string]any `json:"fields"`
}

// Sink receives audit entries in addition to the JSON log line.
type Sink interface {
	Record(ctx context.Context, e Entry) error
}

var (
	sinkMu sync.RWMutex
	sink   Sink
)

// SetSink installs an additional destination for audit entries, e.g. the
// Postgres sink. Pass nil to disable.
func SetSink(s Sink) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	sink = s
}

func currentSink() Sink {
	sinkMu.RLock()
	defer sinkMu.RUnlock()
	return sink
}

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request and session
// context. A failing sink never fails the operation being audited; the
// failure itself is logged.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := Entry{
		TS:     time.Now().UTC(),
		Event:  event,
		Fields: map[string]any{},
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry.RequestID = rid
	}
	if accountID, ok := auth.AccountIDFromContext(ctx); ok {
		entry.AccountID = accountID
	}
	for k, v := range fields {
		entry.Fields[k] = v
	}

	data, err := json.Marshal(map[string]any{
		"ts":         entry.TS.Format(time.RFC3339Nano),
		"type":       "audit",
		"event":      entry.Event,
		"request_id": entry.RequestID,
		"account_id": entry.AccountID,
		"fields":     entry.Fields,
	})
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))

	if s := currentSink(); s != nil {
		if err := s.Record(ctx, entry); err != nil {
			obs.LogRequest(map[string]any{
				"level": "error",
				"msg":   "audit sink record failed",
				"event": entry.Event,
				"error": err.Error(),
			})
		}
	}
	return nil
}
