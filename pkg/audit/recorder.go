package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sodav-monitor/sodav/pkg/auth"
	"github.com/sodav-monitor/sodav/pkg/contextkeys"
)

// DBRecorder stores authentication attempts in the audit_logs table created
// by the postgres store migration.
type DBRecorder struct {
	db    *sql.DB
	newID func() string
	now   func() time.Time
}

// NewDBRecorder creates a recorder on db.
func NewDBRecorder(db *sql.DB) (*DBRecorder, error) {
	if db == nil {
		return nil, errors.New("database connection is required")
	}
	return &DBRecorder{
		db:    db,
		newID: uuid.NewString,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// RecordAuth implements auth.Recorder. The request ID and client address are
// read from ctx when the HTTP middleware put them there.
func (r *DBRecorder) RecordAuth(ctx context.Context, event *auth.Event) error {
	rec := &Record{
		ID:         r.newID(),
		OccurredAt: event.OccurredAt,
		Method:     event.Method,
		Success:    event.Success,
		UserID:     event.UserID,
		KeyID:      event.KeyID,
		Reason:     event.Reason,
	}
	if !event.Success {
		rec.Kind = event.Kind.String()
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = r.now()
	}
	rec.RequestID, _ = ctx.Value(contextkeys.RequestIDKey).(string)
	rec.ClientIP, _ = ctx.Value(contextkeys.ClientIPKey).(string)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, occurred_at, method, success, kind,
			user_id, key_id, reason, request_id, client_ip
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.OccurredAt, string(rec.Method), rec.Success, nullString(rec.Kind),
		nullString(rec.UserID), nullString(rec.KeyID), nullString(rec.Reason),
		nullString(rec.RequestID), nullString(rec.ClientIP),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// Search returns records matching filter, newest first.
func (r *DBRecorder) Search(ctx context.Context, filter Filter) ([]*Record, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if !filter.From.IsZero() {
		add("occurred_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("occurred_at < $%d", filter.To)
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.Method != "" {
		add("method = $%d", string(filter.Method))
	}
	if filter.FailuresOnly {
		where = append(where, "NOT success")
	}

	query := `SELECT id, occurred_at, method, success, kind, user_id, key_id, reason, request_id, client_ip
		FROM audit_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, pageSize(filter.Limit), max(filter.Offset, 0))
	query += fmt.Sprintf(" ORDER BY occurred_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var (
			rec                                          Record
			method                                       string
			kind, userID, keyID, reason, reqID, clientIP sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.OccurredAt, &method, &rec.Success,
			&kind, &userID, &keyID, &reason, &reqID, &clientIP); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		rec.Method = auth.Method(method)
		rec.Kind = kind.String
		rec.UserID = userID.String
		rec.KeyID = keyID.String
		rec.Reason = reason.String
		rec.RequestID = reqID.String
		rec.ClientIP = clientIP.String
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit records: %w", err)
	}
	return records, nil
}

// Cleanup deletes records older than retention and returns how many were
// removed.
func (r *DBRecorder) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	res, err := r.db.ExecContext(ctx, "DELETE FROM audit_logs WHERE occurred_at < $1", r.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up audit records: %w", err)
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func pageSize(limit int) int {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	}
	return limit
}
