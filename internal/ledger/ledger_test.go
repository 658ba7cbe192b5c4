package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Septimus4/Futurisys/internal/inference"
	"github.com/Septimus4/Futurisys/internal/logging"
	"github.com/Septimus4/Futurisys/internal/models"
	"github.com/Septimus4/Futurisys/internal/storage"
	"github.com/Septimus4/Futurisys/internal/testhelpers"
)

var testNow = time.Date(2025, 8, 19, 10, 30, 0, 0, time.UTC)

var testOutcome = inference.Outcome{
	Value:        85,
	ModelName:    "sklearn-random-forest",
	ModelVersion: "20250819_rf_v1",
	LatencyMs:    1.5,
}

// flakyStore wraps a real store and fails selected operations
type flakyStore struct {
	Store
	failInsert bool
	failResult bool
	failLookup bool
	lookups    int
}

var errStoreDown = errors.New("connection refused")

func (s *flakyStore) InsertEntry(ctx context.Context, entry *models.LedgerEntry) error {
	if s.failInsert {
		return errStoreDown
	}
	return s.Store.InsertEntry(ctx, entry)
}

func (s *flakyStore) InsertResult(ctx context.Context, result *models.ResultRecord) error {
	if s.failResult {
		return errStoreDown
	}
	return s.Store.InsertResult(ctx, result)
}

func (s *flakyStore) GetLookup(ctx context.Context, id uuid.UUID) (*models.LedgerLookup, error) {
	s.lookups++
	if s.failLookup {
		return nil, errStoreDown
	}
	return s.Store.GetLookup(ctx, id)
}

// memorySink records enqueued audit records
type memorySink struct {
	mu      sync.Mutex
	records []*logging.AuditRecord
	err     error
}

func (s *memorySink) Enqueue(rec *logging.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memorySink) Shutdown(ctx context.Context) error { return nil }

func newStore(t *testing.T) *flakyStore {
	return &flakyStore{Store: testhelpers.SQLiteDB(t).NewLedgerRepository()}
}

func TestLedger_ResultRoundTrip(t *testing.T) {
	store := newStore(t)
	sink := &memorySink{}
	l := New(store, zap.NewNop(), WithSink(sink), WithClock(testhelpers.FixedClock(testNow)))
	ctx := context.Background()

	entry, err := l.BeginRequest(ctx, testhelpers.Record(t, nil), "3f2a9c1b")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, testNow, entry.ReceivedAt)

	lookup, err := l.Lookup(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, lookup.Status())

	require.NoError(t, l.RecordResult(ctx, entry, testOutcome))

	lookup, err = l.Lookup(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSucceeded, lookup.Status())
	assert.Equal(t, 85.0, lookup.Result.PredictedValue)
	assert.Equal(t, "3f2a9c1b", *lookup.Entry.CallerKeyHint)

	var stored map[string]any
	require.NoError(t, json.Unmarshal(lookup.Entry.Features, &stored))
	assert.Equal(t, "DOWNTOWN", stored["Neighborhood"])

	require.Len(t, sink.records, 1)
	assert.Equal(t, logging.OutcomeSucceeded, sink.records[0].Outcome)
	assert.Equal(t, entry.ID.String(), sink.records[0].RequestID)
	assert.Equal(t, 85.0, *sink.records[0].PredictedSourceEUI)
}

func TestLedger_ErrorRoundTrip(t *testing.T) {
	store := newStore(t)
	sink := &memorySink{}
	l := New(store, nil, WithSink(sink))
	ctx := context.Background()

	entry, err := l.BeginRequest(ctx, testhelpers.Record(t, nil), "")
	require.NoError(t, err)
	assert.Nil(t, entry.CallerKeyHint)

	require.NoError(t, l.RecordError(ctx, entry, ErrorInfo{Kind: "InferenceTimeout", Message: "inference timed out", Detail: "5s"}))

	lookup, err := l.Lookup(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, lookup.Status())
	assert.Nil(t, lookup.Result)
	assert.Equal(t, "InferenceTimeout", lookup.Error.ErrorKind)
	assert.Equal(t, "5s", *lookup.Error.Detail)

	require.Len(t, sink.records, 1)
	assert.Equal(t, logging.OutcomeFailed, sink.records[0].Outcome)
	assert.Equal(t, "InferenceTimeout", sink.records[0].ErrorKind)
}

func TestLedger_ExactlyOneOutcome(t *testing.T) {
	l := New(newStore(t), zap.NewNop())
	ctx := context.Background()

	entry, err := l.BeginRequest(ctx, testhelpers.Record(t, nil), "")
	require.NoError(t, err)
	require.NoError(t, l.RecordResult(ctx, entry, testOutcome))

	assert.ErrorIs(t, l.RecordResult(ctx, entry, testOutcome), ErrAlreadyRecorded)
	assert.ErrorIs(t, l.RecordError(ctx, entry, ErrorInfo{Kind: "InferenceFailure", Message: "x"}), ErrAlreadyRecorded)

	unknown := &models.LedgerEntry{ID: uuid.New()}
	assert.ErrorIs(t, l.RecordResult(ctx, unknown, testOutcome), ErrNotFound)
}

func TestLedger_BeginFailureIsPersistenceError(t *testing.T) {
	store := newStore(t)
	store.failInsert = true
	l := New(store, zap.NewNop())

	entry, err := l.BeginRequest(context.Background(), testhelpers.Record(t, nil), "")
	assert.Nil(t, entry)

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "begin request", perr.Op)
	assert.ErrorIs(t, err, errStoreDown)
}

func TestLedger_RecordFailureIsPersistenceErrorAndNotArchived(t *testing.T) {
	store := newStore(t)
	sink := &memorySink{}
	l := New(store, zap.NewNop(), WithSink(sink))
	ctx := context.Background()

	entry, err := l.BeginRequest(ctx, testhelpers.Record(t, nil), "")
	require.NoError(t, err)

	store.failResult = true
	err = l.RecordResult(ctx, entry, testOutcome)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "record result", perr.Op)
	assert.Empty(t, sink.records)

	lookup, err := l.Lookup(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, lookup.Status())
}

func TestLedger_BeginRaw(t *testing.T) {
	l := New(newStore(t), zap.NewNop())
	ctx := context.Background()

	entry, err := l.BeginRaw(ctx, json.RawMessage(`{"NumberofFloors": 0}`), "")
	require.NoError(t, err)

	lookup, err := l.Lookup(ctx, entry.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"NumberofFloors": 0}`, string(lookup.Entry.Features))

	_, err = l.BeginRaw(ctx, json.RawMessage(`{oops`), "")
	assert.Error(t, err)
}

func TestLedger_LookupNotFound(t *testing.T) {
	l := New(newStore(t), zap.NewNop())
	_, err := l.Lookup(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedger_LookupStoreDown(t *testing.T) {
	store := newStore(t)
	store.failLookup = true
	l := New(store, zap.NewNop())

	_, err := l.Lookup(context.Background(), uuid.New())
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "lookup", perr.Op)
}

func TestLedger_CachesOnlyTerminalLookups(t *testing.T) {
	store := newStore(t)
	cache := storage.NewLookupCache(10, time.Minute)
	l := New(store, zap.NewNop(), WithCache(cache))
	ctx := context.Background()

	entry, err := l.BeginRequest(ctx, testhelpers.Record(t, nil), "")
	require.NoError(t, err)

	_, err = l.Lookup(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, cache.Len())

	require.NoError(t, l.RecordResult(ctx, entry, testOutcome))

	first, err := l.Lookup(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())
	lookupsBefore := store.lookups

	second, err := l.Lookup(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, lookupsBefore, store.lookups)
	assert.Equal(t, first, second)
}

func TestLedger_SinkFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sink := &memorySink{err: errors.New("queue full")}
	l := New(newStore(t), zap.New(core), WithSink(sink))
	ctx := context.Background()

	entry, err := l.BeginRequest(ctx, testhelpers.Record(t, nil), "")
	require.NoError(t, err)
	require.NoError(t, l.RecordResult(ctx, entry, testOutcome))

	assert.Equal(t, 1, logs.FilterMessage("Failed to enqueue audit record").Len())
}

func TestAuditRecordFor_Pending(t *testing.T) {
	rec := AuditRecordFor(&models.LedgerLookup{Entry: models.LedgerEntry{ID: uuid.New()}}, testNow)
	assert.Empty(t, rec.Outcome)
	assert.Nil(t, rec.PredictedSourceEUI)
	assert.Equal(t, testNow, rec.ArchivedAt)
}
