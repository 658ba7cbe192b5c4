package logging

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Septimus4/Futurisys/internal/queue"
)

// Integration tests against an S3-compatible store. Start one with:
//
//	docker run -d -p 9000:9000 -e MINIO_ROOT_USER=minioadmin \
//	  -e MINIO_ROOT_PASSWORD=minioadmin minio/minio server /data
//
// then run MINIO_ENDPOINT=http://localhost:9000 go test ./internal/logging -run S3Integration

const testBucketName = "test-eui-audit"

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// minioClient returns a path-style client or skips when no endpoint answers
func minioClient(t *testing.T) *s3.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping S3 integration test in short mode")
	}
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set")
	}

	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			envOr("MINIO_ACCESS_KEY", "minioadmin"),
			envOr("MINIO_SECRET_KEY", "minioadmin"),
			"",
		)),
	)
	require.NoError(t, err)

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.ListBuckets(ctx, &s3.ListBucketsInput{}); err != nil {
		t.Skipf("S3 endpoint not available: %v", err)
	}

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(testBucketName)}); err != nil {
		_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(testBucketName)})
		require.NoError(t, err)
	}
	t.Cleanup(func() { emptyBucket(t, client) })
	return client
}

func emptyBucket(t *testing.T, client *s3.Client) {
	ctx := context.Background()
	out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: aws.String(testBucketName)})
	if err != nil {
		t.Logf("failed to list objects: %v", err)
		return
	}
	for _, obj := range out.Contents {
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(testBucketName), Key: obj.Key}); err != nil {
			t.Logf("failed to delete %s: %v", aws.ToString(obj.Key), err)
		}
	}
}

func countLines(t *testing.T, client *s3.Client, prefix string) int {
	t.Helper()
	ctx := context.Background()
	out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(testBucketName),
		Prefix: aws.String(prefix),
	})
	require.NoError(t, err)

	total := 0
	for _, obj := range out.Contents {
		got, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(testBucketName), Key: obj.Key})
		require.NoError(t, err)
		body, err := io.ReadAll(got.Body)
		got.Body.Close()
		require.NoError(t, err)

		scanner := bufio.NewScanner(bytes.NewReader(body))
		for scanner.Scan() {
			if len(bytes.TrimSpace(scanner.Bytes())) > 0 {
				total++
			}
		}
	}
	return total
}

func TestS3Integration_WriteBatch(t *testing.T) {
	client := minioClient(t)

	writer := NewS3WriterWithClient(client, testBucketName, "writer/", "test-pod", zap.NewNop())
	key, err := writer.WriteBatch(context.Background(), []*AuditRecord{testRecord(1), testRecord(2)})
	require.NoError(t, err)
	require.NotEmpty(t, key)

	require.Equal(t, 2, countLines(t, client, "writer/"))
}

func TestS3Integration_SinkShutdownFlushes(t *testing.T) {
	client := minioClient(t)

	writer := NewS3WriterWithClient(client, testBucketName, "sink/", "test-pod", zap.NewNop())
	sink := NewS3Sink(
		queue.NewMemoryQueue(queue.DefaultConfig("audit-it")),
		queue.NewMemoryDeadLetterQueue(),
		writer,
		S3SinkConfig{FlushSize: 4, FlushInterval: time.Hour, MaxRetries: 2, RetryBackoff: 100 * time.Millisecond},
		zap.NewNop(),
	)

	for i := 0; i < 10; i++ {
		require.NoError(t, sink.Enqueue(testRecord(i)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, sink.Shutdown(ctx))

	require.Equal(t, 10, countLines(t, client, "sink/"))
}
