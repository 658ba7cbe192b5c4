// Package prediction runs the validate, ledger, infer, record flow for single
// requests and batches.
package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Septimus4/Futurisys/internal/features"
	"github.com/Septimus4/Futurisys/internal/inference"
	"github.com/Septimus4/Futurisys/internal/ledger"
	"github.com/Septimus4/Futurisys/internal/models"
)

// Engine runs the loaded model.
type Engine interface {
	Predict(ctx context.Context, rec features.Record) (inference.Outcome, error)
	Ready() bool
	Info() inference.ModelInfo
}

// Ledger records each attempt and its outcome.
type Ledger interface {
	BeginRequest(ctx context.Context, rec features.Record, keyHint string) (*models.LedgerEntry, error)
	BeginRaw(ctx context.Context, payload json.RawMessage, keyHint string) (*models.LedgerEntry, error)
	RecordResult(ctx context.Context, entry *models.LedgerEntry, outcome inference.Outcome) error
	RecordError(ctx context.Context, entry *models.LedgerEntry, info ledger.ErrorInfo) error
	Lookup(ctx context.Context, id uuid.UUID) (*models.LedgerLookup, error)
}

// recordTimeout bounds an outcome write once the caller's context is detached.
const recordTimeout = 5 * time.Second

// Limits bound batch requests.
type Limits struct {
	MaxBatchBytes int
	MaxBatchSize  int
	Concurrency   int
}

// DefaultLimits are the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxBatchBytes: 1 << 20, MaxBatchSize: 512, Concurrency: 8}
}

// Result is a successful single prediction.
type Result struct {
	RequestID uuid.UUID
	Outcome   inference.Outcome
	// AuditDegraded is set when the prediction could not be recorded.
	AuditDegraded bool
}

// ItemOutcome is the result of one batch item. Exactly one of Outcome and
// Error is set; RequestID is nil when no ledger entry could be created.
type ItemOutcome struct {
	Index         int
	RequestID     *uuid.UUID
	Outcome       *inference.Outcome
	Error         *ItemError
	AuditDegraded bool
}

// Service coordinates the validator, the model and the ledger.
type Service struct {
	validator *features.Validator
	engine    Engine
	ledger    Ledger
	limits    Limits
	logger    *zap.Logger
}

// NewService creates a prediction service.
func NewService(validator *features.Validator, engine Engine, ledger Ledger, limits Limits, logger *zap.Logger) *Service {
	if validator == nil {
		validator = features.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultLimits()
	if limits.MaxBatchBytes <= 0 {
		limits.MaxBatchBytes = defaults.MaxBatchBytes
	}
	if limits.MaxBatchSize <= 0 {
		limits.MaxBatchSize = defaults.MaxBatchSize
	}
	if limits.Concurrency <= 0 {
		limits.Concurrency = defaults.Concurrency
	}
	return &Service{validator: validator, engine: engine, ledger: ledger, limits: limits, logger: logger}
}

// Limits returns the effective batch limits.
func (s *Service) Limits() Limits { return s.limits }

// ModelInfo describes the loaded model; ok is false when none is ready.
func (s *Service) ModelInfo() (info inference.ModelInfo, ok bool) {
	if !s.engine.Ready() {
		return inference.ModelInfo{}, false
	}
	return s.engine.Info(), true
}

// Validate applies the schema: unknown fields are rejected, then the
// constraint table is evaluated.
func (s *Service) Validate(raw features.Raw) (features.Record, error) {
	if unknown := features.UnknownFields(raw); len(unknown) > 0 {
		return features.Record{}, &features.ValidationError{
			Field:      unknown[0],
			Constraint: features.ConstraintUnknownField,
			Message:    "extra fields not permitted",
		}
	}
	return s.validator.Validate(raw)
}

// Predict handles one request. Validation failures return before anything is
// persisted; a failed ledger entry aborts before inference.
func (s *Service) Predict(ctx context.Context, raw features.Raw, keyHint string) (*Result, error) {
	rec, err := s.Validate(raw)
	if err != nil {
		return nil, err
	}
	if !s.engine.Ready() {
		return nil, inference.ErrModelNotReady
	}

	entry, err := s.ledger.BeginRequest(ctx, rec, keyHint)
	if err != nil {
		s.logger.Error("Failed to create ledger entry", zap.Error(err))
		return nil, err
	}

	outcome, err := s.engine.Predict(ctx, rec)
	if err != nil {
		kind := s.recordFailure(ctx, entry, err)
		return nil, &RequestError{RequestID: entry.ID, Kind: kind, Err: err}
	}

	result := &Result{RequestID: entry.ID, Outcome: outcome}
	if err := s.recordResult(ctx, entry, outcome); err != nil {
		s.logger.Error("Failed to record prediction result",
			zap.String("request_id", entry.ID.String()),
			zap.Error(err))
		result.AuditDegraded = true
	}

	s.logger.Info("Prediction completed",
		zap.String("request_id", entry.ID.String()),
		zap.Float64("prediction", outcome.Value),
		zap.Float64("inference_ms", outcome.LatencyMs))
	return result, nil
}

// outcomeContext detaches an outcome write from caller cancellation so an
// entry that was begun always gets its result or error.
func outcomeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
}

func (s *Service) recordResult(ctx context.Context, entry *models.LedgerEntry, outcome inference.Outcome) error {
	ctx, cancel := outcomeContext(ctx)
	defer cancel()
	return s.ledger.RecordResult(ctx, entry, outcome)
}

func (s *Service) recordError(ctx context.Context, entry *models.LedgerEntry, info ledger.ErrorInfo) error {
	ctx, cancel := outcomeContext(ctx)
	defer cancel()
	return s.ledger.RecordError(ctx, entry, info)
}

// recordFailure writes the error record for a failed inference and returns its kind.
func (s *Service) recordFailure(ctx context.Context, entry *models.LedgerEntry, err error) string {
	kind, message, detail := classify(err)
	if rerr := s.recordError(ctx, entry, ledger.ErrorInfo{Kind: kind, Message: message, Detail: detail}); rerr != nil {
		s.logger.Error("Failed to record prediction error",
			zap.String("request_id", entry.ID.String()),
			zap.String("error_kind", kind),
			zap.Error(rerr))
	}
	s.logger.Warn("Prediction failed",
		zap.String("request_id", entry.ID.String()),
		zap.String("error_kind", kind),
		zap.Error(err))
	return kind
}

type batchEnvelope struct {
	Items []json.RawMessage `json:"items"`
}

// ParseBatch applies the byte, shape and count limits to a batch body.
func (s *Service) ParseBatch(payload []byte) ([]json.RawMessage, error) {
	if len(payload) > s.limits.MaxBatchBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(payload), s.limits.MaxBatchBytes)
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	var envelope batchEnvelope
	if err := dec.Decode(&envelope); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyBatch
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: unexpected data after batch object", ErrMalformedPayload)
	}

	if len(envelope.Items) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(envelope.Items) > s.limits.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d items exceeds %d", ErrBatchTooLarge, len(envelope.Items), s.limits.MaxBatchSize)
	}
	return envelope.Items, nil
}

// PredictBatch processes every item independently and returns one outcome per
// item in input order. Limit violations fail the whole batch before any item
// is touched.
func (s *Service) PredictBatch(ctx context.Context, payload []byte, keyHint string) ([]ItemOutcome, error) {
	items, err := s.ParseBatch(payload)
	if err != nil {
		return nil, err
	}
	if !s.engine.Ready() {
		return nil, inference.ErrModelNotReady
	}

	outcomes := make([]ItemOutcome, len(items))
	var g errgroup.Group
	g.SetLimit(s.limits.Concurrency)
	for i, item := range items {
		g.Go(func() error {
			outcomes[i] = s.processItem(ctx, i, item, keyHint)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Error != nil {
			failed++
		}
	}
	s.logger.Info("Batch prediction completed",
		zap.Int("items", len(outcomes)),
		zap.Int("failed", failed))
	return outcomes, nil
}

func (s *Service) processItem(ctx context.Context, index int, item json.RawMessage, keyHint string) ItemOutcome {
	out := ItemOutcome{Index: index}

	rec, verr := s.validateItem(item)
	if verr != nil {
		out.Error = itemErrorFor(verr)
		entry, err := s.ledger.BeginRaw(ctx, item, keyHint)
		if err != nil {
			s.logger.Error("Failed to create ledger entry for invalid item", zap.Int("index", index), zap.Error(err))
			return out
		}
		out.RequestID = &entry.ID
		info := ledger.ErrorInfo{Kind: KindValidation, Message: verr.Error()}
		if err := s.recordError(ctx, entry, info); err != nil {
			s.logger.Error("Failed to record validation error", zap.String("request_id", entry.ID.String()), zap.Error(err))
			out.AuditDegraded = true
		}
		return out
	}

	entry, err := s.ledger.BeginRequest(ctx, rec, keyHint)
	if err != nil {
		s.logger.Error("Failed to create ledger entry", zap.Int("index", index), zap.Error(err))
		out.Error = itemErrorFor(err)
		return out
	}
	out.RequestID = &entry.ID

	outcome, err := s.engine.Predict(ctx, rec)
	if err != nil {
		s.recordFailure(ctx, entry, err)
		out.Error = itemErrorFor(err)
		return out
	}

	out.Outcome = &outcome
	if err := s.recordResult(ctx, entry, outcome); err != nil {
		s.logger.Error("Failed to record prediction result", zap.String("request_id", entry.ID.String()), zap.Error(err))
		out.AuditDegraded = true
	}
	return out
}

func (s *Service) validateItem(item json.RawMessage) (features.Record, error) {
	raw, err := features.Decode(item)
	if err != nil {
		return features.Record{}, &features.ValidationError{
			Constraint: features.ConstraintType,
			Message:    "batch item must be a JSON object",
		}
	}
	return s.Validate(raw)
}

// Lookup returns a ledger entry with its outcome.
func (s *Service) Lookup(ctx context.Context, id uuid.UUID) (*models.LedgerLookup, error) {
	return s.ledger.Lookup(ctx, id)
}
