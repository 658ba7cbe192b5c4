// Package ledger records every inference attempt and exactly one outcome for it.
//
// BeginRequest must succeed before inference runs. Afterwards the caller
// records either a result or an error for the entry, never both.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Septimus4/Futurisys/internal/features"
	"github.com/Septimus4/Futurisys/internal/inference"
	"github.com/Septimus4/Futurisys/internal/logging"
	"github.com/Septimus4/Futurisys/internal/models"
	"github.com/Septimus4/Futurisys/internal/storage"
)

var (
	// ErrNotFound is returned by Lookup for unknown request ids
	ErrNotFound = errors.New("request not found")
	// ErrAlreadyRecorded is returned when an entry already has an outcome
	ErrAlreadyRecorded = errors.New("outcome already recorded")
)

// PersistenceError reports that the durable store could not be reached or
// rejected a write. Op names the ledger operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store is the durable backend of the ledger.
type Store interface {
	InsertEntry(ctx context.Context, entry *models.LedgerEntry) error
	InsertResult(ctx context.Context, result *models.ResultRecord) error
	InsertError(ctx context.Context, record *models.ErrorRecord) error
	GetLookup(ctx context.Context, id uuid.UUID) (*models.LedgerLookup, error)
}

// Cache holds finished lookups. Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, id uuid.UUID) (*models.LedgerLookup, bool)
	Set(ctx context.Context, lookup *models.LedgerLookup)
}

// ErrorInfo describes a failed attempt.
type ErrorInfo struct {
	Kind    string
	Message string
	Detail  string
}

// Ledger sequences ledger writes and serves lookups.
type Ledger struct {
	store  Store
	cache  Cache
	sink   logging.Sink
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithCache caches terminal lookups.
func WithCache(cache Cache) Option {
	return func(l *Ledger) { l.cache = cache }
}

// WithSink ships terminal records to an audit archive.
func WithSink(sink logging.Sink) Option {
	return func(l *Ledger) { l.sink = sink }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a ledger on store.
func New(store Store, logger *zap.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		store:  store,
		sink:   logging.NewNoopSink(),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// BeginRequest durably records a validated feature record.
func (l *Ledger) BeginRequest(ctx context.Context, rec features.Record, keyHint string) (*models.LedgerEntry, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode features: %w", err)
	}
	return l.BeginRaw(ctx, payload, keyHint)
}

// BeginRaw durably records a payload as received. It is used for batch items
// that fail validation so their rejection is still auditable.
func (l *Ledger) BeginRaw(ctx context.Context, payload json.RawMessage, keyHint string) (*models.LedgerEntry, error) {
	if !json.Valid(payload) {
		return nil, fmt.Errorf("ledger payload is not valid JSON")
	}
	entry := &models.LedgerEntry{
		ID:         uuid.New(),
		ReceivedAt: l.now().UTC(),
		Features:   models.RawJSON(payload),
	}
	if keyHint != "" {
		entry.CallerKeyHint = &keyHint
	}

	if err := l.store.InsertEntry(ctx, entry); err != nil {
		return nil, &PersistenceError{Op: "begin request", Err: err}
	}
	return entry, nil
}

// RecordResult stores the successful outcome of entry.
func (l *Ledger) RecordResult(ctx context.Context, entry *models.LedgerEntry, outcome inference.Outcome) error {
	result := &models.ResultRecord{
		RequestID:      entry.ID,
		PredictedValue: outcome.Value,
		ModelName:      outcome.ModelName,
		ModelVersion:   outcome.ModelVersion,
		InferenceMs:    outcome.LatencyMs,
		CompletedAt:    l.now().UTC(),
	}
	if err := l.store.InsertResult(ctx, result); err != nil {
		return l.recordFailure("record result", err)
	}

	l.archive(entry, &models.LedgerLookup{Entry: *entry, Result: result})
	return nil
}

// RecordError stores the failed outcome of entry.
func (l *Ledger) RecordError(ctx context.Context, entry *models.LedgerEntry, info ErrorInfo) error {
	record := &models.ErrorRecord{
		RequestID:  entry.ID,
		ErrorKind:  info.Kind,
		Message:    info.Message,
		OccurredAt: l.now().UTC(),
	}
	if info.Detail != "" {
		detail := info.Detail
		record.Detail = &detail
	}
	if err := l.store.InsertError(ctx, record); err != nil {
		return l.recordFailure("record error", err)
	}

	l.archive(entry, &models.LedgerLookup{Entry: *entry, Error: record})
	return nil
}

func (l *Ledger) recordFailure(op string, err error) error {
	switch {
	case errors.Is(err, storage.ErrOutcomeAlreadyRecorded):
		return ErrAlreadyRecorded
	case errors.Is(err, storage.ErrRequestNotFound):
		return ErrNotFound
	default:
		return &PersistenceError{Op: op, Err: err}
	}
}

// Lookup returns an entry and its outcome. Repeated calls return the same data.
func (l *Ledger) Lookup(ctx context.Context, id uuid.UUID) (*models.LedgerLookup, error) {
	if l.cache != nil {
		if lookup, ok := l.cache.Get(ctx, id); ok {
			return lookup, nil
		}
	}

	lookup, err := l.store.GetLookup(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrRequestNotFound) {
			return nil, ErrNotFound
		}
		return nil, &PersistenceError{Op: "lookup", Err: err}
	}

	// pending entries may still change
	if l.cache != nil && lookup.Terminal() {
		l.cache.Set(ctx, lookup)
	}
	return lookup, nil
}

// archive offers a terminal record to the audit sink without blocking the caller.
func (l *Ledger) archive(entry *models.LedgerEntry, lookup *models.LedgerLookup) {
	rec := AuditRecordFor(lookup, l.now().UTC())
	if err := l.sink.Enqueue(rec); err != nil {
		l.logger.Warn("Failed to enqueue audit record",
			zap.String("request_id", entry.ID.String()),
			zap.Error(err))
	}
}

// AuditRecordFor converts a terminal lookup into an archive record.
func AuditRecordFor(lookup *models.LedgerLookup, archivedAt time.Time) *logging.AuditRecord {
	rec := &logging.AuditRecord{
		ArchivedAt: archivedAt,
		RequestID:  lookup.Entry.ID.String(),
		ReceivedAt: lookup.Entry.ReceivedAt,
		Features:   json.RawMessage(lookup.Entry.Features),
	}
	if lookup.Entry.CallerKeyHint != nil {
		rec.CallerKeyHint = *lookup.Entry.CallerKeyHint
	}

	switch {
	case lookup.Result != nil:
		value := lookup.Result.PredictedValue
		ms := lookup.Result.InferenceMs
		rec.Outcome = logging.OutcomeSucceeded
		rec.PredictedSourceEUI = &value
		rec.InferenceMs = &ms
		rec.ModelName = lookup.Result.ModelName
		rec.ModelVersion = lookup.Result.ModelVersion
	case lookup.Error != nil:
		rec.Outcome = logging.OutcomeFailed
		rec.ErrorKind = lookup.Error.ErrorKind
		rec.ErrorMessage = lookup.Error.Message
	}
	return rec
}
