package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/sodav-monitor/sodav/pkg/monitor"
)

const channelColumns = `id, name, kind, stream_url, region, active, created_at, updated_at`

func scanChannel(row rowScanner) (*monitor.Channel, error) {
	var (
		ch     monitor.Channel
		region sql.NullString
	)
	if err := row.Scan(&ch.ID, &ch.Name, &ch.Kind, &ch.StreamURL, &region, &ch.Active, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
		return nil, err
	}
	ch.Region = region.String
	return &ch, nil
}

// CreateChannel inserts a channel, assigning an ID when empty.
func (s *Store) CreateChannel(ctx context.Context, ch *monitor.Channel) (err error) {
	ctx, done := s.begin(ctx, "Store.CreateChannel", "insert", "channels")
	defer func() { done(err) }()

	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	ch.CreatedAt = s.now()
	ch.UpdatedAt = ch.CreatedAt
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO channels (id, name, kind, stream_url, region, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		ch.ID, ch.Name, ch.Kind, ch.StreamURL, nullString(ch.Region), ch.Active, ch.CreatedAt,
	)
	return wrap("create channel", err)
}

// GetChannel loads a channel by ID.
func (s *Store) GetChannel(ctx context.Context, id string) (ch *monitor.Channel, err error) {
	ctx, done := s.begin(ctx, "Store.GetChannel", "select", "channels")
	defer func() { done(err) }()

	ch, err = scanChannel(s.db.QueryRowContext(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, id))
	if err != nil {
		return nil, wrap("get channel "+id, err)
	}
	return ch, nil
}

// ListChannels returns channels ordered by name.
func (s *Store) ListChannels(ctx context.Context, activeOnly bool) (channels []*monitor.Channel, err error) {
	ctx, done := s.begin(ctx, "Store.ListChannels", "select", "channels")
	defer func() { done(err) }()

	rows, err := s.reader().QueryContext(ctx, `
		SELECT `+channelColumns+` FROM channels
		WHERE (NOT $1 OR active)
		ORDER BY name`, activeOnly)
	if err != nil {
		return nil, wrap("list channels", err)
	}
	defer rows.Close()

	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, wrap("scan channel", err)
		}
		channels = append(channels, ch)
	}
	return channels, wrap("list channels", rows.Err())
}

// UpdateChannel replaces a channel's mutable fields.
func (s *Store) UpdateChannel(ctx context.Context, ch *monitor.Channel) (err error) {
	ctx, done := s.begin(ctx, "Store.UpdateChannel", "update", "channels")
	defer func() { done(err) }()

	ch.UpdatedAt = s.now()
	err = s.db.QueryRowContext(ctx, `
		UPDATE channels SET name = $2, kind = $3, stream_url = $4, region = $5, active = $6, updated_at = $7
		WHERE id = $1
		RETURNING created_at`,
		ch.ID, ch.Name, ch.Kind, ch.StreamURL, nullString(ch.Region), ch.Active, ch.UpdatedAt,
	).Scan(&ch.CreatedAt)
	return wrap("update channel "+ch.ID, err)
}

// DeleteChannel removes a channel and, by cascade, its detections.
func (s *Store) DeleteChannel(ctx context.Context, id string) (err error) {
	ctx, done := s.begin(ctx, "Store.DeleteChannel", "delete", "channels")
	defer func() { done(err) }()

	res, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		return wrap("delete channel "+id, err)
	}
	return requireRow("delete channel "+id, res)
}
