package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/sodav-monitor/sodav/pkg/report"
)

// AirplayRows joins detections with their channel and song for the airplay
// report, oldest first within [from, to).
func (s *Store) AirplayRows(ctx context.Context, from, to time.Time, channelID string) (out []report.AirplayRow, err error) {
	ctx, done := s.begin(ctx, "Store.AirplayRows", "select", "detections")
	defer func() { done(err) }()

	rows, err := s.reader().QueryContext(ctx, `
		SELECT c.name, d.detected_at, s.title, s.artist, COALESCE(d.isrc, s.isrc), d.play_duration_seconds
		FROM detections d
		JOIN channels c ON c.id = d.channel_id
		JOIN songs s ON s.id = d.song_id
		WHERE d.detected_at >= $1 AND d.detected_at < $2
		  AND ($3 = '' OR d.channel_id = $3)
		ORDER BY d.detected_at, c.name`,
		from, to, channelID,
	)
	if err != nil {
		return nil, wrap("query airplay", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			row  report.AirplayRow
			code sql.NullString
		)
		if err := rows.Scan(&row.Channel, &row.DetectedAt, &row.Title, &row.Artist, &code, &row.PlayDurationSeconds); err != nil {
			return nil, wrap("scan airplay row", err)
		}
		row.ISRC = code.String
		out = append(out, row)
	}
	return out, wrap("query airplay", rows.Err())
}
