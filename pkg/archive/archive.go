// Package archive best-effort mirrors dead-lettered payloads to durable
// object storage so an operator can inspect the exact bytes a provider
// sent, even after the dead_letters row itself is pruned.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/CRT-AUTO/bridge-core/pkg/store"
)

// ArchivedPayload records where a dead-lettered payload's bytes landed.
type ArchivedPayload struct {
	DeadLetterID string    `json:"dead_letter_id"`
	Bucket       string    `json:"bucket"`
	ObjectKey    string    `json:"object_key"`
	ArchivedAt   time.Time `json:"archived_at"`
}

// Sink mirrors a dead letter's raw payload to a backend object store. A
// failed archive is logged and never escalated — the dead_letters row
// already holds the payload and is the durable source of truth.
type Sink interface {
	Archive(ctx context.Context, dl store.DeadLetter) error
}

// NoopSink is used when ARCHIVE_BACKEND=none.
type NoopSink struct{}

func (NoopSink) Archive(ctx context.Context, dl store.DeadLetter) error { return nil }

// GCSSink mirrors payloads into a Google Cloud Storage bucket.
type GCSSink struct {
	Bucket string
	Client *storage.Client
	Logger *slog.Logger
}

// NewGCSSink builds a GCSSink using application-default credentials.
func NewGCSSink(ctx context.Context, bucket string) (*GCSSink, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSSink{Bucket: bucket, Client: client}, nil
}

func (g *GCSSink) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

// Archive writes dl.OriginalPayload to gs://bucket/dead-letters/<id>.json.
func (g *GCSSink) Archive(ctx context.Context, dl store.DeadLetter) error {
	key := objectKey(dl)
	w := g.Client.Bucket(g.Bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/octet-stream"

	if _, err := w.Write(dl.OriginalPayload); err != nil {
		_ = w.Close()
		g.logger().Warn("archive write failed", "dead_letter_id", dl.ID, "error", err)
		return fmt.Errorf("write GCS object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		g.logger().Warn("archive close failed", "dead_letter_id", dl.ID, "error", err)
		return fmt.Errorf("close GCS object %s: %w", key, err)
	}

	g.logger().Info("archived dead letter", "dead_letter_id", dl.ID, "bucket", g.Bucket, "object_key", key)
	return nil
}

// S3Sink mirrors payloads into an AWS S3 bucket.
type S3Sink struct {
	Bucket string
	Client *s3.Client
	Logger *slog.Logger
}

// NewS3Sink builds an S3Sink from the default AWS config chain.
func NewS3Sink(ctx context.Context, bucket string) (*S3Sink, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &S3Sink{Bucket: bucket, Client: s3.NewFromConfig(cfg)}, nil
}

func (s *S3Sink) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Archive puts dl.OriginalPayload at s3://bucket/dead-letters/<id>.json.
func (s *S3Sink) Archive(ctx context.Context, dl store.DeadLetter) error {
	key := objectKey(dl)
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(dl.OriginalPayload),
	})
	if err != nil {
		s.logger().Warn("archive put failed", "dead_letter_id", dl.ID, "error", err)
		return fmt.Errorf("put S3 object %s: %w", key, err)
	}

	s.logger().Info("archived dead letter", "dead_letter_id", dl.ID, "bucket", s.Bucket, "object_key", key)
	return nil
}

func objectKey(dl store.DeadLetter) string {
	id := dl.ID
	if id == "" {
		id = uuid.NewString()
	}
	return "dead-letters/" + id + ".json"
}

// NewSink builds the configured Sink, or NoopSink for "none"/unrecognized
// backends. A construction failure (e.g. missing cloud credentials) is
// surfaced to the caller so startup fails loudly rather than silently
// falling back to discarding archives.
func NewSink(ctx context.Context, backend, bucket string) (Sink, error) {
	switch backend {
	case "gcs":
		return NewGCSSink(ctx, bucket)
	case "s3":
		return NewS3Sink(ctx, bucket)
	default:
		return NoopSink{}, nil
	}
}
