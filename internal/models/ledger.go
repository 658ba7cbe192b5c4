package models

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus is derived from which outcome record exists for an entry.
type RequestStatus string

const (
	// StatusPending means neither outcome exists: still in flight or lost.
	StatusPending   RequestStatus = "pending"
	StatusSucceeded RequestStatus = "succeeded"
	StatusFailed    RequestStatus = "failed"
)

// LedgerEntry is one inference attempt, written before inference starts
type LedgerEntry struct {
	ID            uuid.UUID `db:"id" json:"id"`
	ReceivedAt    time.Time `db:"received_at" json:"received_at"`
	Features      RawJSON   `db:"features" json:"features"`
	CallerKeyHint *string   `db:"api_key_used" json:"caller_key_hint,omitempty"`
}

// ResultRecord is the successful outcome of a ledger entry
type ResultRecord struct {
	RequestID      uuid.UUID `db:"request_id" json:"request_id"`
	PredictedValue float64   `db:"predicted_source_eui_wn_kbtu_sf" json:"predicted_value"`
	ModelName      string    `db:"model_name" json:"model_name"`
	ModelVersion   string    `db:"model_version" json:"model_version"`
	InferenceMs    float64   `db:"inference_ms" json:"inference_ms"`
	CompletedAt    time.Time `db:"completed_at" json:"completed_at"`
}

// ErrorRecord is the failed outcome of a ledger entry
type ErrorRecord struct {
	RequestID  uuid.UUID `db:"request_id" json:"request_id"`
	ErrorKind  string    `db:"error_type" json:"error_kind"`
	Message    string    `db:"message" json:"message"`
	Detail     *string   `db:"detail" json:"detail,omitempty"`
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
}

// LedgerLookup is an entry together with its outcome, if any
type LedgerLookup struct {
	Entry  LedgerEntry   `json:"entry"`
	Result *ResultRecord `json:"result,omitempty"`
	Error  *ErrorRecord  `json:"error,omitempty"`
}

// Status derives the lifecycle state from the outcome records.
func (l *LedgerLookup) Status() RequestStatus {
	switch {
	case l.Result != nil:
		return StatusSucceeded
	case l.Error != nil:
		return StatusFailed
	default:
		return StatusPending
	}
}

// Terminal reports whether an outcome has been recorded.
func (l *LedgerLookup) Terminal() bool {
	return l.Status() != StatusPending
}
