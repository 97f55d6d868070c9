package progress

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Tracker follows one long loop over work units (partitions or entities).
type Tracker interface {
	SetStage(stage string)
	// Increment records one finished unit with its status (ok, empty, failed, skipped).
	Increment(status string)
	SetCounter(name string, value int64)
	Done()
}

// Manager creates trackers.
type Manager interface {
	NewTracker(name string, total int) Tracker
	Wait()
}

// MPBManager implements Manager using the mpb multi-progress-bar library.
type MPBManager struct {
	container *mpb.Progress
}

// NewMPBManager creates a new mpb-based progress manager.
func NewMPBManager() *MPBManager {
	return &MPBManager{container: mpb.New(mpb.WithWidth(60))}
}

// NewTracker adds a bar sized to total units.
func (m *MPBManager) NewTracker(name string, total int) Tracker {
	t := &mpbTracker{counts: make(map[string]int64)}
	t.stage.Store("")
	t.summary.Store("")
	t.bar = m.container.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(name+" ", decor.WCSyncSpaceR),
			decor.CountersNoUnit("%d/%d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WC{W: 5}),
			decor.Any(func(decor.Statistics) string {
				return " " + t.stage.Load().(string) + " " + t.summary.Load().(string)
			}),
		),
	)
	return t
}

// Wait waits for all progress bars to finish.
func (m *MPBManager) Wait() {
	m.container.Wait()
}

type mpbTracker struct {
	bar     *mpb.Bar
	stage   atomic.Value
	summary atomic.Value

	mu     sync.Mutex
	counts map[string]int64
}

func (t *mpbTracker) SetStage(stage string) {
	t.stage.Store(stage)
}

func (t *mpbTracker) Increment(status string) {
	t.mu.Lock()
	t.counts[status]++
	t.summary.Store(formatCounts(t.counts))
	t.mu.Unlock()
	t.bar.Increment()
}

func (t *mpbTracker) SetCounter(name string, value int64) {
	t.mu.Lock()
	t.counts[name] = value
	t.summary.Store(formatCounts(t.counts))
	t.mu.Unlock()
}

func (t *mpbTracker) Done() {
	// Aborting without drop keeps the bar on screen when the run stopped early.
	t.bar.Abort(false)
}

// formatCounts renders counters in a stable order.
func formatCounts(counts map[string]int64) string {
	var s string
	for _, k := range []string{"ok", "empty", "failed", "skipped", "rows"} {
		if v, ok := counts[k]; ok {
			s += fmt.Sprintf("%s=%d ", k, v)
		}
	}
	return s
}

// NoopManager is a no-op progress manager for tests and --no-progress runs.
type NoopManager struct{}

func (NoopManager) NewTracker(string, int) Tracker { return noopTracker{} }
func (NoopManager) Wait()                          {}

type noopTracker struct{}

func (noopTracker) SetStage(string)          {}
func (noopTracker) Increment(string)         {}
func (noopTracker) SetCounter(string, int64) {}
func (noopTracker) Done()                    {}
