package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/sodav-monitor/sodav/pkg/monitor"
)

const detectionColumns = `id, channel_id, song_id, isrc, source, confidence, detected_at, play_duration_seconds, corrected_by, corrected_at, created_at`

func scanDetection(row rowScanner) (*monitor.Detection, error) {
	var (
		d           monitor.Detection
		code        sql.NullString
		correctedBy sql.NullString
		correctedAt sql.NullTime
	)
	if err := row.Scan(&d.ID, &d.ChannelID, &d.SongID, &code, &d.Source, &d.Confidence, &d.DetectedAt,
		&d.PlayDurationSeconds, &correctedBy, &correctedAt, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.ISRC = code.String
	d.CorrectedBy = correctedBy.String
	d.CorrectedAt = timePtr(correctedAt)
	return &d, nil
}

// CreateDetection inserts a detection. An unknown channel or song yields
// storage.ErrNotFound.
func (s *Store) CreateDetection(ctx context.Context, d *monitor.Detection) (err error) {
	ctx, done := s.begin(ctx, "Store.CreateDetection", "insert", "detections")
	defer func() { done(err) }()

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.CreatedAt = s.now()
	if d.DetectedAt.IsZero() {
		d.DetectedAt = d.CreatedAt
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO detections (id, channel_id, song_id, isrc, source, confidence, detected_at, play_duration_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.ChannelID, d.SongID, nullString(d.ISRC), d.Source, d.Confidence, d.DetectedAt,
		d.PlayDurationSeconds, d.CreatedAt,
	)
	return wrap("create detection", err)
}

// GetDetection loads a detection by ID.
func (s *Store) GetDetection(ctx context.Context, id string) (d *monitor.Detection, err error) {
	ctx, done := s.begin(ctx, "Store.GetDetection", "select", "detections")
	defer func() { done(err) }()

	d, err = scanDetection(s.db.QueryRowContext(ctx, `SELECT `+detectionColumns+` FROM detections WHERE id = $1`, id))
	if err != nil {
		return nil, wrap("get detection "+id, err)
	}
	return d, nil
}

// ListDetections returns detections newest first.
func (s *Store) ListDetections(ctx context.Context, filter monitor.DetectionFilter) (out []*monitor.Detection, err error) {
	ctx, done := s.begin(ctx, "Store.ListDetections", "select", "detections")
	defer func() { done(err) }()

	rows, err := s.reader().QueryContext(ctx, `
		SELECT `+detectionColumns+` FROM detections
		WHERE ($1 = '' OR channel_id = $1)
		  AND ($2::timestamptz IS NULL OR detected_at >= $2)
		  AND ($3::timestamptz IS NULL OR detected_at < $3)
		ORDER BY detected_at DESC
		LIMIT $4 OFFSET $5`,
		filter.ChannelID, optionalTime(filter.From), optionalTime(filter.To),
		monitor.PageSize(filter.Limit), filter.Offset,
	)
	if err != nil {
		return nil, wrap("list detections", err)
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, wrap("scan detection", err)
		}
		out = append(out, d)
	}
	return out, wrap("list detections", rows.Err())
}

// CorrectDetection reassigns a detection to another song and records who
// made the correction.
func (s *Store) CorrectDetection(ctx context.Context, id, songID, code, by string, at time.Time) (d *monitor.Detection, err error) {
	ctx, done := s.begin(ctx, "Store.CorrectDetection", "update", "detections")
	defer func() { done(err) }()

	d, err = scanDetection(s.db.QueryRowContext(ctx, `
		UPDATE detections SET song_id = $2, isrc = $3, corrected_by = $4, corrected_at = $5
		WHERE id = $1
		RETURNING `+detectionColumns,
		id, songID, nullString(code), by, at,
	))
	if err != nil {
		return nil, wrap("correct detection "+id, err)
	}
	return d, nil
}

// ExtendDetection adds play time to a detection merged from a repeat
// identification.
func (s *Store) ExtendDetection(ctx context.Context, id string, playSeconds int) (err error) {
	ctx, done := s.begin(ctx, "Store.ExtendDetection", "update", "detections")
	defer func() { done(err) }()

	res, err := s.db.ExecContext(ctx,
		`UPDATE detections SET play_duration_seconds = play_duration_seconds + $2 WHERE id = $1`, id, playSeconds)
	if err != nil {
		return wrap("extend detection "+id, err)
	}
	return requireRow("extend detection "+id, res)
}

func optionalTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
