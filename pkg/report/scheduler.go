package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sodav-monitor/sodav/pkg/observability"
)

// DefaultSchedule runs the daily report at 00:05 UTC.
const DefaultSchedule = "5 0 * * *"

// Archive stores rendered reports.
type Archive interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
}

// Scheduler uploads yesterday's airplay report to the archive on a cron
// schedule.
type Scheduler struct {
	cron      *cron.Cron
	generator *Generator
	archive   Archive
	schedule  string
	metrics   *observability.Metrics
	logger    *observability.Logger
	now       func() time.Time
}

// NewScheduler creates a scheduler. An empty schedule means DefaultSchedule.
func NewScheduler(generator *Generator, archive Archive, schedule string, metrics *observability.Metrics, logger *observability.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, io.Discard)
	}
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		generator: generator,
		archive:   archive,
		schedule:  schedule,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ArchiveKey is the object key of the daily report for day.
func ArchiveKey(day time.Time) string {
	return "airplay/" + day.UTC().Format("2006-01-02") + ".csv"
}

// Run schedules the daily job and blocks until ctx is done, then waits for a
// running job to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		yesterday := s.now().AddDate(0, 0, -1)
		if _, err := s.RunDay(ctx, "cron", yesterday); err != nil {
			s.logger.WithError(err).WithField("day", yesterday.Format("2006-01-02")).Error("Daily airplay report failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid report schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.WithField("schedule", s.schedule).Info("Report scheduler started")

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("Report scheduler stopped")
	return nil
}

// RunDay renders the report for the UTC day containing day and uploads it,
// returning the archive key.
func (s *Scheduler) RunDay(ctx context.Context, trigger string, day time.Time) (key string, err error) {
	defer func() {
		if s.metrics == nil {
			return
		}
		result := "success"
		if err != nil {
			result = "error"
		}
		s.metrics.ObserveReport(trigger, result)
	}()

	from, to := DayRange(day)
	var buf bytes.Buffer
	rows, err := s.generator.AirplayCSV(ctx, &buf, from, to, "")
	if err != nil {
		return "", err
	}

	key = ArchiveKey(from)
	if err := s.archive.Put(ctx, key, &buf, "text/csv"); err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", key, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"key":     key,
		"rows":    rows,
		"trigger": trigger,
	}).Info("Airplay report archived")
	return key, nil
}
