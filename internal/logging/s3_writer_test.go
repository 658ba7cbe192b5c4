package logging

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, params)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Writer_WriteBatch(t *testing.T) {
	putter := &fakePutter{}
	writer := NewS3WriterWithClient(putter, "eui-audit", "audit/", "pod-a", zap.NewNop())
	writer.now = func() time.Time { return time.Date(2025, 11, 30, 14, 30, 22, 123456789, time.UTC) }

	key, err := writer.WriteBatch(context.Background(), []*AuditRecord{testRecord(1), testRecord(2)})
	require.NoError(t, err)

	assert.Equal(t, "audit/2025/11/30/pod-a-20251130-143022-123456789.jsonl", key)
	require.Len(t, putter.inputs, 1)
	assert.Equal(t, "eui-audit", aws.ToString(putter.inputs[0].Bucket))
	assert.Equal(t, key, aws.ToString(putter.inputs[0].Key))
	assert.Equal(t, "application/x-ndjson", aws.ToString(putter.inputs[0].ContentType))

	scanner := bufio.NewScanner(bytes.NewReader(putter.bodies[0]))
	var ids []string
	for scanner.Scan() {
		var rec AuditRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		ids = append(ids, rec.RequestID)
	}
	assert.Equal(t, []string{"req-1", "req-2"}, ids)
}

func TestS3Writer_EmptyBatchWritesNothing(t *testing.T) {
	putter := &fakePutter{}
	writer := NewS3WriterWithClient(putter, "eui-audit", "audit/", "pod-a", nil)

	key, err := writer.WriteBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, key)
	assert.Empty(t, putter.inputs)
}

func TestS3Writer_UploadError(t *testing.T) {
	putter := &fakePutter{err: errors.New("access denied")}
	writer := NewS3WriterWithClient(putter, "eui-audit", "audit/", "pod-a", zap.NewNop())

	_, err := writer.WriteBatch(context.Background(), []*AuditRecord{testRecord(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}
