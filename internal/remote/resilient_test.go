package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/gyeh/pricepanel/internal/metrics"
	"github.com/gyeh/pricepanel/internal/model"
)

// scriptedSource returns the scripted errors in order, then succeeds.
type scriptedSource struct {
	errs  []error
	calls int
}

func (s *scriptedSource) next() error {
	s.calls++
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func (s *scriptedSource) ListHospitals(context.Context) ([]model.Hospital, error) {
	if err := s.next(); err != nil {
		return nil, err
	}
	return []model.Hospital{{EntityID: "H1"}}, nil
}

func (s *scriptedSource) FetchPage(context.Context, PageRequest) ([]model.RawChargeRow, error) {
	if err := s.next(); err != nil {
		return nil, err
	}
	return []model.RawChargeRow{{EntityID: "H1", RowKey: 1}}, nil
}

func newTestResilient(src Source, cfg ResilienceConfig, rec *sleepRecorder) *Resilient {
	r := NewResilient(src, cfg, zerolog.Nop(), metrics.New())
	r.sleep = rec.sleep
	return r
}

func TestResilient_RetriesWithBackoff(t *testing.T) {
	src := &scriptedSource{errs: []error{
		&StatusError{StatusCode: 503},
		&StatusError{StatusCode: 429},
	}}
	rec := &sleepRecorder{}
	r := newTestResilient(src, ResilienceConfig{MaxRetries: 3, BaseDelay: 2 * time.Second, BreakerFailures: 5, BreakerTimeout: time.Minute}, rec)

	rows, err := r.FetchPage(context.Background(), PageRequest{EntityID: "H1", Limit: 10})
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(rows) != 1 || src.calls != 3 {
		t.Errorf("rows=%d calls=%d, want 1 and 3", len(rows), src.calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(rec.sleeps) != 2 || rec.sleeps[0] != want[0] || rec.sleeps[1] != want[1] {
		t.Errorf("backoff: got %v, want %v", rec.sleeps, want)
	}
}

func TestResilient_GivesUpAfterCap(t *testing.T) {
	boom := errors.New("connection reset")
	src := &scriptedSource{errs: []error{boom, boom, boom, boom, boom}}
	r := newTestResilient(src, ResilienceConfig{MaxRetries: 2, BaseDelay: time.Second, BreakerFailures: 10}, &sleepRecorder{})

	_, err := r.ListHospitals(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if src.calls != 3 {
		t.Errorf("calls: got %d, want 3", src.calls)
	}
}

func TestResilient_ClientErrorNotRetried(t *testing.T) {
	src := &scriptedSource{errs: []error{&StatusError{StatusCode: 400, Body: "bad query"}}}
	r := newTestResilient(src, ResilienceConfig{MaxRetries: 3, BaseDelay: time.Second}, &sleepRecorder{})

	_, err := r.FetchPage(context.Background(), PageRequest{})
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != 400 {
		t.Fatalf("expected StatusError 400, got %v", err)
	}
	if src.calls != 1 {
		t.Errorf("calls: got %d, want 1", src.calls)
	}
}

func TestResilient_BreakerOpens(t *testing.T) {
	boom := errors.New("timeout")
	src := &scriptedSource{errs: []error{boom, boom, boom}}
	r := newTestResilient(src, ResilienceConfig{MaxRetries: 0, BreakerFailures: 2, BreakerTimeout: time.Hour}, &sleepRecorder{})

	for i := 0; i < 2; i++ {
		if _, err := r.FetchPage(context.Background(), PageRequest{}); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	_, err := r.FetchPage(context.Background(), PageRequest{})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if src.calls != 2 {
		t.Errorf("open breaker must not reach the source: calls=%d", src.calls)
	}
}

func TestResilient_CancelDuringBackoff(t *testing.T) {
	src := &scriptedSource{errs: []error{errors.New("reset")}}
	r := NewResilient(src, ResilienceConfig{MaxRetries: 3, BaseDelay: time.Hour}, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := r.FetchPage(ctx, PageRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&StatusError{StatusCode: 500}, true},
		{&StatusError{StatusCode: 503}, true},
		{&StatusError{StatusCode: 429}, true},
		{&StatusError{StatusCode: 408}, true},
		{&StatusError{StatusCode: 404}, false},
		{&StatusError{StatusCode: 401}, false},
		{&QueryError{Status: "Error", Message: "query timeout exceeded"}, true},
		{&QueryError{Status: "Error", Message: "table not found: charges"}, false},
		{context.Canceled, false},
		{context.DeadlineExceeded, true},
		{errors.New("connection reset by peer"), true},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Errorf("Retryable(%v): got %v, want %v", tc.err, got, tc.want)
		}
	}
}
