package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sodav-monitor/sodav/pkg/isrc"
)

// AirplayRow is one detection joined with its channel and song.
type AirplayRow struct {
	Channel             string
	DetectedAt          time.Time
	Title               string
	Artist              string
	ISRC                string
	PlayDurationSeconds int
}

// Source loads airplay rows in [from, to), optionally for one channel.
type Source interface {
	AirplayRows(ctx context.Context, from, to time.Time, channelID string) ([]AirplayRow, error)
}

// Header is the first line of every airplay CSV.
var Header = []string{"channel", "detected_at", "title", "artist", "isrc", "duration_seconds"}

// Generator renders airplay reports.
type Generator struct {
	source Source
}

// NewGenerator creates a generator reading from source.
func NewGenerator(source Source) *Generator {
	return &Generator{source: source}
}

// AirplayCSV writes the airplay report for [from, to) to w and returns the
// number of data rows. ISRCs are written in display form.
func (g *Generator) AirplayCSV(ctx context.Context, w io.Writer, from, to time.Time, channelID string) (int, error) {
	if !to.After(from) {
		return 0, fmt.Errorf("invalid report range: %s is not after %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	rows, err := g.source.AirplayRows(ctx, from, to, channelID)
	if err != nil {
		return 0, fmt.Errorf("failed to load airplay rows: %w", err)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return 0, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.Channel,
			row.DetectedAt.UTC().Format(time.RFC3339),
			row.Title,
			row.Artist,
			isrc.Format(row.ISRC),
			strconv.Itoa(row.PlayDurationSeconds),
		}
		if err := writer.Write(record); err != nil {
			return 0, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return 0, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return len(rows), nil
}

// DayRange returns [midnight, next midnight) in UTC for the day containing t.
func DayRange(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
