package fingerprint

import (
	"errors"
	"fmt"
	"io"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/sodav-monitor/sodav/pkg/observability"
)

// ErrProviderUnavailable is returned while a provider's breaker is open or
// when the provider cannot be reached.
var ErrProviderUnavailable = errors.New("identification provider unavailable")

// BreakerConfig tunes a provider circuit breaker.
type BreakerConfig struct {
	MaxRequests  uint32        `yaml:"max_requests"`  // probes allowed while half-open
	Interval     time.Duration `yaml:"interval"`      // closed-state count reset
	Timeout      time.Duration `yaml:"timeout"`       // open before half-open
	MinRequests  uint32        `yaml:"min_requests"`  // requests before tripping is considered
	FailureRatio float64       `yaml:"failure_ratio"` // trip at or above this ratio
}

// DefaultBreakerConfig opens after 60% failures over at least 10 requests
// and probes again after 2 minutes.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      2 * time.Minute,
		MinRequests:  10,
		FailureRatio: 0.6,
	}
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	Provider string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d", e.Provider, e.Code)
}

// breaker wraps one provider's calls with a circuit breaker and metrics.
type breaker struct {
	name    string
	cb      *gobreaker.CircuitBreaker[[]byte]
	metrics *observability.Metrics
	logger  *observability.Logger
}

func newBreaker(name string, cfg BreakerConfig, metrics *observability.Metrics, logger *observability.Logger) *breaker {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, io.Discard)
	}
	b := &breaker{name: name, metrics: metrics, logger: logger.WithField("provider", name)}
	if metrics != nil {
		metrics.SetBreakerState(name, int(gobreaker.StateClosed))
	}

	b.cb = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		// A rejected request is the caller's fault, not the provider's.
		IsSuccessful: func(err error) bool {
			var status *StatusError
			if errors.As(err, &status) {
				return status.Code < 500 && status.Code != 429
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.WithFields(map[string]interface{}{
				"from": from.String(),
				"to":   to.String(),
			}).Warn("Provider circuit breaker state change")
			if b.metrics != nil {
				b.metrics.SetBreakerState(name, int(to))
			}
		},
	})
	return b
}

// execute runs fn through the breaker. Open-breaker rejections and
// transport failures are reported as ErrProviderUnavailable.
func (b *breaker) execute(fn func() ([]byte, error)) ([]byte, error) {
	start := time.Now()
	body, err := b.cb.Execute(fn)

	result := "success"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		result = "rejected"
		err = fmt.Errorf("%s: %w: %w", b.name, ErrProviderUnavailable, err)
	case err != nil:
		result = "error"
		var status *StatusError
		if !errors.As(err, &status) || status.Code >= 500 || status.Code == 429 {
			err = fmt.Errorf("%s: %w: %w", b.name, ErrProviderUnavailable, err)
		}
	}
	if b.metrics != nil {
		b.metrics.ObserveProvider(b.name, result, time.Since(start))
	}
	return body, err
}

// State reports the breaker state.
func (b *breaker) State() gobreaker.State {
	return b.cb.State()
}
