package progress

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogManager implements Manager with throttled log lines for non-TTY
// environments (cron, CI, containers).
type LogManager struct {
	log      zerolog.Logger
	interval time.Duration
}

// NewLogManager creates a log-based progress manager.
func NewLogManager(log zerolog.Logger) *LogManager {
	return &LogManager{log: log, interval: logInterval}
}

const logInterval = 20 * time.Second

func (m *LogManager) NewTracker(name string, total int) Tracker {
	return &logTracker{
		log:      m.log.With().Str("loop", name).Logger(),
		interval: m.interval,
		total:    total,
		start:    time.Now(),
		counts:   make(map[string]int64),
	}
}

func (m *LogManager) Wait() {}

type logTracker struct {
	log      zerolog.Logger
	interval time.Duration
	total    int
	start    time.Time

	mu      sync.Mutex
	stage   string
	done    int
	counts  map[string]int64
	lastLog time.Time
}

func (t *logTracker) SetStage(stage string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stage = stage
}

func (t *logTracker) Increment(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done++
	t.counts[status]++
	t.maybeLog()
}

func (t *logTracker) SetCounter(name string, value int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[name] = value
	t.maybeLog()
}

// maybeLog emits at most one line per interval. Callers hold mu.
func (t *logTracker) maybeLog() {
	now := time.Now()
	if now.Sub(t.lastLog) < t.interval {
		return
	}
	t.lastLog = now
	t.event(t.log.Info()).Msg("progress")
}

func (t *logTracker) event(e *zerolog.Event) *zerolog.Event {
	e = e.Str("stage", t.stage).Int("done", t.done).Int("total", t.total)
	for k, v := range t.counts {
		e = e.Int64(k, v)
	}
	return e
}

func (t *logTracker) Done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.event(t.log.Info()).Dur("elapsed", time.Since(t.start).Truncate(time.Second)).Msg("finished")
}

// New picks the mpb manager for interactive runs and the log manager otherwise.
func New(log zerolog.Logger, interactive bool) Manager {
	if interactive {
		return NewMPBManager()
	}
	return NewLogManager(log)
}
