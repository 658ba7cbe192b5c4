package prediction

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Septimus4/Futurisys/internal/features"
	"github.com/Septimus4/Futurisys/internal/inference"
	"github.com/Septimus4/Futurisys/internal/ledger"
)

// Error kinds persisted as error_type and returned per batch item.
const (
	KindValidation       = "ValidationError"
	KindInferenceTimeout = "InferenceTimeout"
	KindInferenceFailure = "InferenceFailure"
	KindPersistence      = "PersistenceFailure"
	KindCanceled         = "RequestCanceled"
)

var (
	// ErrPayloadTooLarge rejects a batch body above the byte limit before parsing
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrBatchTooLarge rejects a batch with more items than allowed
	ErrBatchTooLarge = errors.New("batch too large")
	// ErrEmptyBatch rejects a batch without items
	ErrEmptyBatch = errors.New("batch must contain at least one item")
	// ErrMalformedPayload wraps JSON syntax errors in a request body
	ErrMalformedPayload = errors.New("malformed JSON payload")
)

// RequestError is an inference failure for a request that has a ledger entry.
type RequestError struct {
	RequestID uuid.UUID
	Kind      string
	Err       error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request %s: %v", e.RequestID, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// ItemError is the failure of one batch item.
type ItemError struct {
	Kind       string `json:"error"`
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"`
	Constraint string `json:"constraint,omitempty"`
}

// classify maps an inference error to its kind, a caller-facing message and
// diagnostic detail.
func classify(err error) (kind, message, detail string) {
	var failure *inference.InferenceFailure
	switch {
	case errors.Is(err, inference.ErrInferenceTimeout):
		return KindInferenceTimeout, "Prediction timeout", err.Error()
	case errors.Is(err, inference.ErrInferenceCanceled):
		return KindCanceled, "Request canceled before the prediction completed", err.Error()
	case errors.As(err, &failure):
		return KindInferenceFailure, "Model inference failed", failure.Detail
	default:
		return KindInferenceFailure, "Model inference failed", err.Error()
	}
}

// itemErrorFor converts any processing error into an item failure.
func itemErrorFor(err error) *ItemError {
	var verr *features.ValidationError
	if errors.As(err, &verr) {
		return &ItemError{Kind: KindValidation, Message: verr.Error(), Field: verr.Field, Constraint: verr.Constraint}
	}
	var perr *ledger.PersistenceError
	if errors.As(err, &perr) {
		return &ItemError{Kind: KindPersistence, Message: "Request could not be recorded"}
	}
	kind, message, _ := classify(err)
	return &ItemError{Kind: kind, Message: message}
}
