package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/gyeh/pricepanel/internal/metrics"
	"github.com/gyeh/pricepanel/internal/model"
)

// ResilienceConfig bounds retries and configures the circuit breaker.
type ResilienceConfig struct {
	MaxRetries      int
	BaseDelay       time.Duration
	RequestTimeout  time.Duration
	BreakerFailures int
	BreakerTimeout  time.Duration
}

// Resilient wraps a Source with bounded exponential-backoff retries and a
// circuit breaker that opens after consecutive retryable failures.
type Resilient struct {
	src     Source
	cfg     ResilienceConfig
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
	metrics *metrics.Metrics
	sleep   func(context.Context, time.Duration) error
}

// NewResilient wraps src. m may be nil.
func NewResilient(src Source, cfg ResilienceConfig, log zerolog.Logger, m *metrics.Metrics) *Resilient {
	r := &Resilient{src: src, cfg: cfg, log: log, metrics: m, sleep: Sleep}
	failures := uint32(cfg.BreakerFailures)
	if failures == 0 {
		failures = 5
	}
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "remote-source",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// Permanent errors say nothing about the service's health.
			return err == nil || !Retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			if r.metrics != nil {
				r.metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return r
}

// ListHospitals lists hospitals with retries.
func (r *Resilient) ListHospitals(ctx context.Context) ([]model.Hospital, error) {
	v, err := r.do(ctx, "list hospitals", func(ctx context.Context) (interface{}, error) {
		return r.src.ListHospitals(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Hospital), nil
}

// FetchPage fetches one page with retries.
func (r *Resilient) FetchPage(ctx context.Context, req PageRequest) ([]model.RawChargeRow, error) {
	v, err := r.do(ctx, "fetch page", func(ctx context.Context) (interface{}, error) {
		return r.src.FetchPage(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.RawChargeRow), nil
}

func (r *Resilient) do(ctx context.Context, op string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	var err error
	attempts := 0
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.cfg.BaseDelay * time.Duration(1<<(attempt-1))
			r.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("backoff", delay).Msg("retrying remote query")
			if r.metrics != nil {
				r.metrics.RemoteRetries.Inc()
			}
			if serr := r.sleep(ctx, delay); serr != nil {
				return nil, serr
			}
		}
		attempts++
		if r.metrics != nil {
			r.metrics.RemoteQueries.Inc()
		}

		var v interface{}
		v, err = r.breaker.Execute(func() (interface{}, error) {
			actx, cancel := r.attemptContext(ctx)
			defer cancel()
			return fn(actx)
		})
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if !Retryable(err) {
			break
		}
	}
	if r.metrics != nil {
		r.metrics.RemoteFailures.Inc()
	}
	return nil, fmt.Errorf("%s failed after %d attempt(s): %w", op, attempts, err)
}

func (r *Resilient) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.cfg.RequestTimeout)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
