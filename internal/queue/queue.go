// Package queue buffers work that must not hold up a request, such as
// shipping finished ledger records to the audit archive.
//
// Two backends share one interface:
//
//   - MemoryQueue is channel based. Nothing survives a restart, which is fine
//     for single-instance and development deployments.
//   - RedisQueue stores items in a Redis list so several replicas can feed
//     one archive and a restart does not lose buffered items.
//
// Items that keep failing after retries go to a DeadLetterQueue.
package queue

import (
	"context"
	"time"
)

// Queue defines the interface for message queuing
type Queue interface {
	// Enqueue adds an item to the queue
	Enqueue(ctx context.Context, item interface{}) error

	// Dequeue blocks until at least one item is available and returns up to maxItems
	Dequeue(ctx context.Context, maxItems int) ([]interface{}, error)

	// DequeueWithTimeout waits at most timeout for the first item.
	// An empty slice means nothing arrived in time.
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]interface{}, error)

	// Length returns the current queue length
	Length(ctx context.Context) (int, error)

	Close() error
}

// DeadLetterQueue holds items that could not be processed
type DeadLetterQueue interface {
	Add(ctx context.Context, item interface{}, err error) error
	List(ctx context.Context, maxItems int) ([]DeadLetterItem, error)
	Remove(ctx context.Context, id string) error
	Close() error
}

// DeadLetterItem represents an item in the dead letter queue
type DeadLetterItem struct {
	ID        string      `json:"id"`
	Item      interface{} `json:"item"`
	Error     string      `json:"error"`
	Timestamp time.Time   `json:"timestamp"`
	Retries   int         `json:"retries"`
}

// Config holds queue configuration
type Config struct {
	// QueueName is the name/key for the queue
	QueueName string

	// BufferSize caps the in-memory backend; zero means ten batches
	BufferSize int

	// BatchSize is the maximum number of items handed to a consumer at once
	BatchSize int

	// BatchTimeout is how long a consumer waits before handling a partial batch
	BatchTimeout time.Duration

	// MaxRetries is the number of attempts before an item is dead-lettered
	MaxRetries int

	// RetryBackoff is the initial delay between attempts; it doubles each time
	RetryBackoff time.Duration
}

// DefaultConfig returns default queue configuration
func DefaultConfig(queueName string) *Config {
	return &Config{
		QueueName:    queueName,
		BatchSize:    100,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,
	}
}

func (c *Config) bufferSize() int {
	if c.BufferSize > 0 {
		return c.BufferSize
	}
	return c.BatchSize * 10
}
