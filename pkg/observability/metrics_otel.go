package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentationName is the meter and tracer name used across the service.
const InstrumentationName = "github.com/sodav-monitor/sodav"

// OTelMetrics holds the OpenTelemetry instruments recorded by the storage
// adapters. They are exported over OTLP alongside traces.
type OTelMetrics struct {
	dbQueriesTotal    metric.Int64Counter
	dbQueryDuration   metric.Float64Histogram
	archiveOperations metric.Int64Counter
	archiveBytes      metric.Int64Histogram
	cacheLookups      metric.Int64Counter
}

// NewOTelMetrics creates instruments on the global meter provider.
func NewOTelMetrics() (*OTelMetrics, error) {
	return NewOTelMetricsWithMeter(otel.Meter(InstrumentationName))
}

// NewOTelMetricsWithMeter creates instruments on meter.
func NewOTelMetricsWithMeter(meter metric.Meter) (*OTelMetrics, error) {
	m := &OTelMetrics{}
	var err error

	m.dbQueriesTotal, err = meter.Int64Counter(
		"db.queries",
		metric.WithDescription("Database queries by operation and table"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create db.queries counter: %w", err)
	}

	m.dbQueryDuration, err = meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create db.query.duration histogram: %w", err)
	}

	m.archiveOperations, err = meter.Int64Counter(
		"archive.operations",
		metric.WithDescription("Report archive operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive.operations counter: %w", err)
	}

	m.archiveBytes, err = meter.Int64Histogram(
		"archive.bytes",
		metric.WithDescription("Bytes written to the report archive"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive.bytes histogram: %w", err)
	}

	m.cacheLookups, err = meter.Int64Counter(
		"cache.lookups",
		metric.WithDescription("In-process cache lookups by cache and result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache.lookups counter: %w", err)
	}

	return m, nil
}

func errorAttr(err error) attribute.KeyValue {
	return attribute.Bool("error", err != nil)
}

// RecordDBQuery records one query. Safe on a nil receiver.
func (m *OTelMetrics) RecordDBQuery(ctx context.Context, operation, table string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("db.operation", operation),
		attribute.String("db.sql.table", table),
		errorAttr(err),
	)
	m.dbQueriesTotal.Add(ctx, 1, attrs)
	m.dbQueryDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordArchive records one archive call. Safe on a nil receiver.
func (m *OTelMetrics) RecordArchive(ctx context.Context, operation string, bytes int64, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("archive.operation", operation),
		errorAttr(err),
	)
	m.archiveOperations.Add(ctx, 1, attrs)
	if bytes > 0 {
		m.archiveBytes.Record(ctx, bytes, attrs)
	}
}

// RecordCacheLookup records a hit or miss. Safe on a nil receiver.
func (m *OTelMetrics) RecordCacheLookup(ctx context.Context, cache string, hit bool) {
	if m == nil {
		return
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.name", cache),
		attribute.Bool("cache.hit", hit),
	))
}
