package postgres

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sodav-monitor/sodav/pkg/observability"
	"github.com/sodav-monitor/sodav/pkg/storage"
)

// ReportArchive stores generated reports in an S3-compatible bucket.
type ReportArchive struct {
	client  *s3.Client
	bucket  string
	metrics *observability.OTelMetrics
}

// NewS3Client builds an S3 client from the storage config. Static keys are
// used when both are set, otherwise the default credential chain.
func NewS3Client(ctx context.Context, cfg storage.Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			// S3-compatible stores such as MinIO reject the newer default checksums.
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	}), nil
}

// NewReportArchive creates an archive on bucket.
func NewReportArchive(client *s3.Client, bucket string, metrics *observability.OTelMetrics) *ReportArchive {
	return &ReportArchive{client: client, bucket: bucket, metrics: metrics}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (a *ReportArchive) EnsureBucket(ctx context.Context) error {
	if _, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)}); err == nil {
		return nil
	}
	_, err := a.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(a.bucket)})
	var owned *types.BucketAlreadyOwnedByYou
	var exists *types.BucketAlreadyExists
	if err != nil && !errors.As(err, &owned) && !errors.As(err, &exists) {
		return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
	}
	return nil
}

// Put uploads body under key with a SHA-256 checksum in its metadata.
func (a *ReportArchive) Put(ctx context.Context, key string, body io.Reader, contentType string) (err error) {
	ctx, span := tracer.Start(ctx, "ReportArchive.Put",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("s3.bucket", a.bucket),
			attribute.String("s3.key", key),
			attribute.String("content.type", contentType),
		),
	)
	var size int64
	defer func() {
		a.metrics.RecordArchive(ctx, "put", size, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to upload report")
		}
		span.End()
	}()

	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read report: %w", err)
	}
	size = int64(len(data))
	span.SetAttributes(attribute.Int64("content.size", size))

	sum := sha256.Sum256(data)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
		Metadata:      map[string]string{"checksum-sha256": hex.EncodeToString(sum[:])},
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w: %w", key, storage.ErrUnavailable, err)
	}
	return nil
}

// Get opens an archived report. A missing key yields storage.ErrNotFound.
func (a *ReportArchive) Get(ctx context.Context, key string) (rc io.ReadCloser, err error) {
	ctx, span := tracer.Start(ctx, "ReportArchive.Get",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("s3.bucket", a.bucket), attribute.String("s3.key", key)),
	)
	defer span.End()

	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	var size int64
	if out != nil && out.ContentLength != nil {
		size = *out.ContentLength
	}
	a.metrics.RecordArchive(ctx, "get", size, err)
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("report %s: %w", key, storage.ErrNotFound)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get report")
		return nil, fmt.Errorf("failed to get %s: %w: %w", key, storage.ErrUnavailable, err)
	}
	return out.Body, nil
}

// HealthCheck verifies the bucket is reachable.
func (a *ReportArchive) HealthCheck(ctx context.Context) error {
	if _, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)}); err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}
