package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// ObjectPutter is the slice of the S3 API the writer needs
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Writer handles writing batches of audit records to S3
type S3Writer struct {
	client  ObjectPutter
	bucket  string
	prefix  string
	podName string
	logger  *zap.Logger
	now     func() time.Time
}

// NewS3Writer creates a writer using the default AWS credential chain
func NewS3Writer(ctx context.Context, bucket, region, prefix, podName string, logger *zap.Logger) (*S3Writer, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewS3WriterWithClient(s3.NewFromConfig(cfg), bucket, prefix, podName, logger), nil
}

// NewS3WriterWithClient creates a writer around an existing client
func NewS3WriterWithClient(client ObjectPutter, bucket, prefix, podName string, logger *zap.Logger) *S3Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Writer{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		podName: podName,
		logger:  logger.Named("s3-writer"),
		now:     time.Now,
	}
}

// objectKey lays objects out as <prefix>YYYY/MM/DD/<pod>-<stamp>-<nanos>.jsonl
func (w *S3Writer) objectKey() string {
	now := w.now().UTC()
	return fmt.Sprintf("%s%04d/%02d/%02d/%s-%s-%09d.jsonl",
		w.prefix,
		now.Year(),
		now.Month(),
		now.Day(),
		w.podName,
		now.Format("20060102-150405"),
		now.Nanosecond(),
	)
}

// WriteBatch uploads records as one JSON Lines object and returns its key.
// An empty batch writes nothing.
func (w *S3Writer) WriteBatch(ctx context.Context, records []*AuditRecord) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	written := 0
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			w.logger.Error("failed to encode audit record",
				zap.String("request_id", record.RequestID),
				zap.Error(err),
			)
			continue
		}
		written++
	}
	if written == 0 {
		return "", fmt.Errorf("no encodable records in batch of %d", len(records))
	}

	key := w.objectKey()
	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	w.logger.Info("wrote audit batch",
		zap.String("key", key),
		zap.Int("count", written),
		zap.Int("bytes", buf.Len()),
	)
	return key, nil
}
