package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Septimus4/Futurisys/internal/models"
)

// LedgerRepository handles inference ledger database operations
type LedgerRepository struct {
	db *DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// InsertEntry persists a new ledger entry
func (r *LedgerRepository) InsertEntry(ctx context.Context, entry *models.LedgerEntry) error {
	query := `
		INSERT INTO inference_request (id, received_at, features, api_key_used)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.conn.ExecContext(ctx, query, entry.ID, entry.ReceivedAt.UTC(), entry.Features, entry.CallerKeyHint)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateRequest
		}
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	return nil
}

// InsertResult records the successful outcome of an entry
func (r *LedgerRepository) InsertResult(ctx context.Context, result *models.ResultRecord) error {
	query := `
		INSERT INTO inference_result (
			request_id, predicted_source_eui_wn_kbtu_sf, model_name, model_version,
			inference_ms, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	return r.insertOutcome(ctx, result.RequestID, "result", query,
		result.RequestID, result.PredictedValue, result.ModelName, result.ModelVersion,
		result.InferenceMs, result.CompletedAt.UTC())
}

// InsertError records the failed outcome of an entry
func (r *LedgerRepository) InsertError(ctx context.Context, record *models.ErrorRecord) error {
	query := `
		INSERT INTO inference_error (request_id, error_type, message, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	return r.insertOutcome(ctx, record.RequestID, "error", query,
		record.RequestID, record.ErrorKind, record.Message, record.Detail, record.OccurredAt.UTC())
}

// insertOutcome writes a result or error row after checking, in the same
// transaction, that the entry exists and has no outcome of either kind.
func (r *LedgerRepository) insertOutcome(ctx context.Context, id uuid.UUID, kind, query string, args ...any) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin %s transaction: %w", kind, err)
	}
	defer tx.Rollback()

	if err := r.lockEntry(ctx, tx, id); err != nil {
		return err
	}

	var outcomes int
	err = tx.GetContext(ctx, &outcomes, `
		SELECT (SELECT COUNT(*) FROM inference_result WHERE request_id = $1)
		     + (SELECT COUNT(*) FROM inference_error WHERE request_id = $1)
	`, id)
	if err != nil {
		return fmt.Errorf("failed to check existing outcome: %w", err)
	}
	if outcomes > 0 {
		return ErrOutcomeAlreadyRecorded
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return ErrOutcomeAlreadyRecorded
		}
		return fmt.Errorf("failed to insert %s record: %w", kind, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s record: %w", kind, err)
	}
	return nil
}

// lockEntry confirms the entry exists. On Postgres the row is locked so a
// concurrent writer for the same id waits for this transaction.
func (r *LedgerRepository) lockEntry(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	query := `SELECT id FROM inference_request WHERE id = $1`
	if r.db.dialect == DialectPostgres {
		query += ` FOR UPDATE`
	}

	var found uuid.UUID
	if err := tx.GetContext(ctx, &found, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRequestNotFound
		}
		return fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return nil
}

// lookupRow is the LEFT JOIN of an entry with both outcome tables
type lookupRow struct {
	ID            uuid.UUID      `db:"id"`
	ReceivedAt    time.Time      `db:"received_at"`
	Features      models.RawJSON `db:"features"`
	CallerKeyHint *string        `db:"api_key_used"`

	PredictedValue sql.NullFloat64 `db:"predicted_source_eui_wn_kbtu_sf"`
	ModelName      sql.NullString  `db:"model_name"`
	ModelVersion   sql.NullString  `db:"model_version"`
	InferenceMs    sql.NullFloat64 `db:"inference_ms"`
	CompletedAt    sql.NullTime    `db:"completed_at"`

	ErrorKind  sql.NullString `db:"error_type"`
	Message    sql.NullString `db:"message"`
	Detail     *string        `db:"detail"`
	OccurredAt sql.NullTime   `db:"occurred_at"`
}

// GetLookup retrieves an entry together with its outcome
func (r *LedgerRepository) GetLookup(ctx context.Context, id uuid.UUID) (*models.LedgerLookup, error) {
	var row lookupRow
	query := `
		SELECT r.id, r.received_at, r.features, r.api_key_used,
		       res.predicted_source_eui_wn_kbtu_sf, res.model_name, res.model_version,
		       res.inference_ms, res.completed_at,
		       e.error_type, e.message, e.detail, e.occurred_at
		FROM inference_request r
		LEFT JOIN inference_result res ON res.request_id = r.id
		LEFT JOIN inference_error e ON e.request_id = r.id
		WHERE r.id = $1
	`

	err := r.db.conn.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get ledger lookup: %w", err)
	}

	lookup := &models.LedgerLookup{
		Entry: models.LedgerEntry{
			ID:            row.ID,
			ReceivedAt:    row.ReceivedAt.UTC(),
			Features:      row.Features,
			CallerKeyHint: row.CallerKeyHint,
		},
	}
	if row.CompletedAt.Valid {
		lookup.Result = &models.ResultRecord{
			RequestID:      row.ID,
			PredictedValue: row.PredictedValue.Float64,
			ModelName:      row.ModelName.String,
			ModelVersion:   row.ModelVersion.String,
			InferenceMs:    row.InferenceMs.Float64,
			CompletedAt:    row.CompletedAt.Time.UTC(),
		}
	}
	if row.OccurredAt.Valid {
		lookup.Error = &models.ErrorRecord{
			RequestID:  row.ID,
			ErrorKind:  row.ErrorKind.String,
			Message:    row.Message.String,
			Detail:     row.Detail,
			OccurredAt: row.OccurredAt.Time.UTC(),
		}
	}

	return lookup, nil
}

// CountEntries returns the number of ledger entries
func (r *LedgerRepository) CountEntries(ctx context.Context) (int, error) {
	var count int
	if err := r.db.conn.GetContext(ctx, &count, `SELECT COUNT(*) FROM inference_request`); err != nil {
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	return count, nil
}

// CountOrphans returns entries older than cutoff with neither a result nor an error
func (r *LedgerRepository) CountOrphans(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM inference_request r
		WHERE r.received_at < $1
		  AND NOT EXISTS (SELECT 1 FROM inference_result res WHERE res.request_id = r.id)
		  AND NOT EXISTS (SELECT 1 FROM inference_error e WHERE e.request_id = r.id)
	`

	var count int
	if err := r.db.conn.GetContext(ctx, &count, query, cutoff.UTC()); err != nil {
		return 0, fmt.Errorf("failed to count orphaned ledger entries: %w", err)
	}
	return count, nil
}
