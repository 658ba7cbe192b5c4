package logging

import (
	"context"
	"encoding/json"
	"time"
)

// Outcome values carried by AuditRecord
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// AuditRecord is one finished ledger entry as shipped to the audit archive.
type AuditRecord struct {
	ArchivedAt    time.Time       `json:"archived_at"`
	RequestID     string          `json:"request_id"`
	ReceivedAt    time.Time       `json:"received_at"`
	CallerKeyHint string          `json:"caller_key_hint,omitempty"`
	Features      json.RawMessage `json:"features"`
	Outcome       string          `json:"outcome"`

	PredictedSourceEUI *float64 `json:"predicted_source_eui_wn_kbtu_sf,omitempty"`
	ModelName          string   `json:"model_name,omitempty"`
	ModelVersion       string   `json:"model_version,omitempty"`
	InferenceMs        *float64 `json:"inference_ms,omitempty"`

	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Sink receives audit records. Enqueue must not block the request path.
type Sink interface {
	Enqueue(rec *AuditRecord) error
	Shutdown(ctx context.Context) error
}

// NoopSink discards records. Used when the archive is disabled.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (s *NoopSink) Enqueue(rec *AuditRecord) error {
	return nil
}

func (s *NoopSink) Shutdown(ctx context.Context) error {
	return nil
}
