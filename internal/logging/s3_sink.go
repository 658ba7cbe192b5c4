package logging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Septimus4/Futurisys/internal/queue"
)

// enqueueTimeout bounds how long Enqueue may wait on a full buffer
const enqueueTimeout = 50 * time.Millisecond

// ErrSinkClosed is returned by Enqueue after Shutdown
var ErrSinkClosed = errors.New("audit sink is shut down")

// S3SinkConfig holds configuration for the S3-backed audit sink
type S3SinkConfig struct {
	BufferSize    int           // In-memory queue size
	FlushSize     int           // Flush after this many records
	FlushInterval time.Duration // Flush at least this often when records are waiting
	MaxRetries    int           // Upload attempts before a batch is dead-lettered
	RetryBackoff  time.Duration // Initial delay between attempts
	S3Bucket      string
	S3Region      string
	S3Prefix      string // Prefix for object keys, e.g. "audit/"
	PodName       string // Distinguishes replicas writing to the same prefix
}

// BatchWriter persists a batch of records and returns where they went
type BatchWriter interface {
	WriteBatch(ctx context.Context, records []*AuditRecord) (string, error)
}

// S3Sink buffers audit records in a queue and uploads them in batches.
// Batches that still fail after retries go to the dead letter queue.
type S3Sink struct {
	queue  queue.Queue
	dlq    queue.DeadLetterQueue
	writer BatchWriter
	config S3SinkConfig
	logger *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewS3Sink starts the background flusher. The sink takes ownership of q and dlq.
func NewS3Sink(q queue.Queue, dlq queue.DeadLetterQueue, writer BatchWriter, config S3SinkConfig, logger *zap.Logger) *S3Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.FlushSize <= 0 {
		config.FlushSize = 500
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = time.Minute
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 1
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &S3Sink{
		queue:  q,
		dlq:    dlq,
		writer: writer,
		config: config,
		logger: logger.Named("audit-sink"),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

// Enqueue hands a record to the buffer without waiting on S3
func (s *S3Sink) Enqueue(rec *AuditRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()
	if err := s.queue.Enqueue(ctx, rec); err != nil {
		return fmt.Errorf("failed to buffer audit record: %w", err)
	}
	return nil
}

// Shutdown stops the flusher, uploads whatever is buffered and closes the queues.
func (s *S3Sink) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
		return fmt.Errorf("audit sink did not drain: %w", ctx.Err())
	}

	return errors.Join(s.queue.Close(), s.dlq.Close())
}

func (s *S3Sink) run(ctx context.Context) {
	defer close(s.done)

	pending := make([]*AuditRecord, 0, s.config.FlushSize)
	deadline := time.Now().Add(s.config.FlushInterval)

	for {
		wait := time.Until(deadline)
		if wait > 0 {
			items, err := s.queue.DequeueWithTimeout(ctx, s.config.FlushSize-len(pending), wait)
			if err != nil {
				if ctx.Err() != nil {
					s.drain(pending)
					return
				}
				s.logger.Error("failed to dequeue audit records", zap.Error(err))
				time.Sleep(s.config.RetryBackoff)
			}
			pending = append(pending, s.decode(items)...)
		}

		if len(pending) >= s.config.FlushSize || !time.Now().Before(deadline) {
			s.flush(ctx, pending)
			pending = pending[:0]
			deadline = time.Now().Add(s.config.FlushInterval)
		}
	}
}

// drain empties the queue after cancellation and uploads everything left
func (s *S3Sink) drain(pending []*AuditRecord) {
	ctx := context.Background()
	for {
		items, err := s.queue.DequeueWithTimeout(ctx, s.config.FlushSize, 10*time.Millisecond)
		if err != nil || len(items) == 0 {
			break
		}
		pending = append(pending, s.decode(items)...)
	}

	for start := 0; start < len(pending); start += s.config.FlushSize {
		end := min(start+s.config.FlushSize, len(pending))
		s.flush(ctx, pending[start:end])
	}
}

func (s *S3Sink) flush(ctx context.Context, batch []*AuditRecord) {
	if len(batch) == 0 {
		return
	}

	// a cancelled run context must not abort the final uploads
	ctx = context.WithoutCancel(ctx)

	backoff := s.config.RetryBackoff
	var lastErr error
	for attempt := 1; attempt <= s.config.MaxRetries; attempt++ {
		_, err := s.writer.WriteBatch(ctx, batch)
		if err == nil {
			return
		}
		lastErr = err
		s.logger.Warn("audit batch upload failed",
			zap.Int("attempt", attempt),
			zap.Int("count", len(batch)),
			zap.Error(lastErr),
		)
		if attempt < s.config.MaxRetries {
			time.Sleep(backoff)
			backoff *= 2
		}
	}

	records := make([]*AuditRecord, len(batch))
	copy(records, batch)
	if err := s.dlq.Add(ctx, records, fmt.Errorf("%w: %v", queue.ErrMaxRetriesExceeded, lastErr)); err != nil {
		s.logger.Error("failed to dead-letter audit batch",
			zap.Int("count", len(batch)),
			zap.Error(err),
		)
	}
}

// decode accepts records from the memory queue as-is and JSON from Redis
func (s *S3Sink) decode(items []interface{}) []*AuditRecord {
	records := make([]*AuditRecord, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case *AuditRecord:
			records = append(records, v)
		case json.RawMessage:
			var rec AuditRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				s.logger.Error("dropping undecodable audit record", zap.Error(err))
				continue
			}
			records = append(records, &rec)
		default:
			s.logger.Error("dropping audit record of unexpected type", zap.String("type", fmt.Sprintf("%T", item)))
		}
	}
	return records
}
