package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestNewRedisQueue_RequiresClientAndConfig(t *testing.T) {
	client, _ := setupTestRedis(t)

	_, err := NewRedisQueue(nil, DefaultConfig("audit"))
	assert.Error(t, err)
	_, err = NewRedisQueue(client, nil)
	assert.Error(t, err)
	_, err = NewRedisDeadLetterQueue(nil, DefaultConfig("audit"))
	assert.Error(t, err)
}

func TestRedisQueue_EnqueueDequeue(t *testing.T) {
	client, mr := setupTestRedis(t)
	q, err := NewRedisQueue(client, DefaultConfig("audit"))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(ctx, map[string]int{"seq": i}))
	}

	assert.True(t, mr.Exists("queue:audit"))
	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, length)

	items, err := q.Dequeue(ctx, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)

	for i, item := range items {
		raw, ok := item.(json.RawMessage)
		require.True(t, ok, "expected json.RawMessage, got %T", item)
		var decoded map[string]int
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Equal(t, i, decoded["seq"])
	}

	length, err = q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, length)
}

func TestRedisQueue_DequeueWithTimeout(t *testing.T) {
	client, _ := setupTestRedis(t)
	q, err := NewRedisQueue(client, DefaultConfig("audit-timeout"))
	require.NoError(t, err)

	ctx := context.Background()

	items, err := q.DequeueWithTimeout(ctx, 10, time.Second)
	require.NoError(t, err)
	assert.Empty(t, items)

	require.NoError(t, q.Enqueue(ctx, "a"))
	require.NoError(t, q.Enqueue(ctx, "b"))

	items, err = q.DequeueWithTimeout(ctx, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.JSONEq(t, `"a"`, string(items[0].(json.RawMessage)))
	assert.JSONEq(t, `"b"`, string(items[1].(json.RawMessage)))
}

func TestRedisQueue_SurvivesQueueRecreation(t *testing.T) {
	client, _ := setupTestRedis(t)
	config := DefaultConfig("audit-persist")
	ctx := context.Background()

	first, err := NewRedisQueue(client, config)
	require.NoError(t, err)
	require.NoError(t, first.Enqueue(ctx, "kept"))
	require.NoError(t, first.Close())

	second, err := NewRedisQueue(client, config)
	require.NoError(t, err)
	items, err := second.DequeueWithTimeout(ctx, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.JSONEq(t, `"kept"`, string(items[0].(json.RawMessage)))
}

func TestRedisDeadLetterQueue(t *testing.T) {
	client, _ := setupTestRedis(t)
	dlq, err := NewRedisDeadLetterQueue(client, DefaultConfig("audit"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, dlq.Add(ctx, map[string]string{"batch": "one"}, errors.New("s3 unavailable")))
	require.NoError(t, dlq.Add(ctx, map[string]string{"batch": "two"}, ErrMaxRetriesExceeded))

	items, err := dlq.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)

	errorsSeen := map[string]bool{}
	for _, item := range items {
		errorsSeen[item.Error] = true
		assert.NotEmpty(t, item.ID)
		assert.False(t, item.Timestamp.IsZero())
	}
	assert.True(t, errorsSeen["s3 unavailable"])
	assert.True(t, errorsSeen[ErrMaxRetriesExceeded.Error()])

	limited, err := dlq.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, dlq.Remove(ctx, items[0].ID))
	assert.ErrorIs(t, dlq.Remove(ctx, items[0].ID), ErrItemNotFound)

	remaining, err := dlq.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}
