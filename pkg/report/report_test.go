package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	rows      []AirplayRow
	err       error
	from, to  time.Time
	channelID string
}

func (f *fakeSource) AirplayRows(_ context.Context, from, to time.Time, channelID string) ([]AirplayRow, error) {
	f.from, f.to, f.channelID = from, to, channelID
	return f.rows, f.err
}

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func TestAirplayCSV(t *testing.T) {
	src := &fakeSource{rows: []AirplayRow{
		{Channel: "RFM", DetectedAt: day.Add(10 * time.Hour), Title: "7 Seconds", Artist: "Youssou N'Dour", ISRC: "GBAYE6900001", PlayDurationSeconds: 305},
		{Channel: "Sud FM, Dakar", DetectedAt: day.Add(11 * time.Hour), Title: "Inconnu", Artist: "Inconnu", PlayDurationSeconds: 60},
	}}

	var buf bytes.Buffer
	n, err := NewGenerator(src).AirplayCSV(context.Background(), &buf, day, day.AddDate(0, 0, 1), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "c1", src.channelID)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, Header, records[0])
	assert.Equal(t, []string{"RFM", "2024-03-01T10:00:00Z", "7 Seconds", "Youssou N'Dour", "GB-AYE-69-00001", "305"}, records[1])
	assert.Equal(t, "Sud FM, Dakar", records[2][0])
	assert.Empty(t, records[2][4])
}

func TestAirplayCSV_Errors(t *testing.T) {
	gen := NewGenerator(&fakeSource{err: errors.New("db down")})
	var buf bytes.Buffer

	_, err := gen.AirplayCSV(context.Background(), &buf, day, day.AddDate(0, 0, 1), "")
	assert.ErrorContains(t, err, "db down")

	_, err = gen.AirplayCSV(context.Background(), &buf, day, day, "")
	assert.ErrorContains(t, err, "invalid report range")
	assert.Zero(t, buf.Len())
}

func TestDayRange(t *testing.T) {
	from, to := DayRange(time.Date(2024, 3, 1, 23, 59, 0, 0, time.FixedZone("GMT+1", 3600)))
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), to)
}
