package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sodav-monitor/sodav/pkg/observability"
	"github.com/sodav-monitor/sodav/pkg/storage"
)

var tracer = otel.Tracer("github.com/sodav-monitor/sodav/pkg/storage/postgres")

// Store implements the auth, monitor and report persistence ports on one
// PostgreSQL database. Writes go to the primary; list queries may go to a
// replica.
type Store struct {
	db      *sql.DB
	reader  func() *sql.DB
	metrics *observability.OTelMetrics
	now     func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMetrics records query counts and latencies.
func WithMetrics(m *observability.OTelMetrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// WithClock overrides the time source for created/updated timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store on a single database handle.
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	s := &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
	s.reader = func() *sql.DB { return s.db }
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewStoreFromManager creates a store that reads from the manager's replicas.
func NewStoreFromManager(cm *ConnectionManager, opts ...StoreOption) *Store {
	s := NewStore(cm.Primary(), opts...)
	s.reader = cm.Replica
	return s
}

// DB returns the primary handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// begin starts a span for one query. The returned func records metrics and
// ends the span; not-found results are not marked as span errors.
func (s *Store) begin(ctx context.Context, name, operation, table string) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", operation),
			attribute.String("db.sql.table", table),
		),
	)
	start := time.Now()
	return ctx, func(err error) {
		s.metrics.RecordDBQuery(ctx, operation, table, time.Since(start), err)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// classify maps driver errors onto the storage sentinels. It returns nil
// for errors that are none of them.
func classify(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Name() == "unique_violation":
			return storage.ErrConflict
		case pqErr.Code.Name() == "foreign_key_violation":
			return storage.ErrNotFound
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "57":
			return storage.ErrUnavailable
		}
		return nil
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return storage.ErrUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return storage.ErrUnavailable
	}
	return nil
}

// wrap prefixes err with op and attaches the matching sentinel.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if sentinel := classify(err); sentinel != nil {
		return fmt.Errorf("%s: %w: %w", op, sentinel, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// requireRow turns a zero RowsAffected into storage.ErrNotFound.
func requireRow(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrap(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
