package report

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sodav-monitor/sodav/pkg/observability"
)

type memArchive struct {
	objects map[string]string
	err     error
}

func (m *memArchive) Put(_ context.Context, key string, body io.Reader, contentType string) error {
	if m.err != nil {
		return m.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.objects[key] = contentType + "|" + string(data)
	return nil
}

func TestScheduler_RunDay(t *testing.T) {
	src := &fakeSource{rows: []AirplayRow{{Channel: "RFM", DetectedAt: day.Add(time.Hour), Title: "7 Seconds", Artist: "Youssou N'Dour", ISRC: "GBAYE6900001", PlayDurationSeconds: 305}}}
	archive := &memArchive{objects: map[string]string{}}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	s := NewScheduler(NewGenerator(src), archive, "", metrics, nil)

	key, err := s.RunDay(context.Background(), "manual", day.Add(15*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "airplay/2024-03-01.csv", key)
	assert.Equal(t, day, src.from)
	assert.Equal(t, day.AddDate(0, 0, 1), src.to)
	assert.Contains(t, archive.objects[key], "text/csv|channel,detected_at")
	assert.Contains(t, archive.objects[key], "GB-AYE-69-00001")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ReportsGeneratedTotal.WithLabelValues("manual", "success")))

	archive.err = errors.New("bucket gone")
	_, err = s.RunDay(context.Background(), "manual", day)
	assert.ErrorContains(t, err, "bucket gone")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ReportsGeneratedTotal.WithLabelValues("manual", "error")))
}

func TestScheduler_RunRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(NewGenerator(&fakeSource{}), &memArchive{}, "not a schedule", nil, nil)
	assert.ErrorContains(t, s.Run(context.Background()), "invalid report schedule")
}

func TestScheduler_RunStopsWithContext(t *testing.T) {
	s := NewScheduler(NewGenerator(&fakeSource{}), &memArchive{objects: map[string]string{}}, "@every 1h", nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
