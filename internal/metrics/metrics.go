// Package metrics provides Prometheus metrics for a pipeline run.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds all run metrics. Each run owns its registry so that batch
// jobs can push a complete snapshot at exit.
type Metrics struct {
	Registry *prometheus.Registry

	Partitions     *prometheus.CounterVec
	Entities       *prometheus.CounterVec
	RemoteQueries  prometheus.Counter
	RemoteRetries  prometheus.Counter
	RemoteFailures prometheus.Counter
	BreakerState   *prometheus.GaugeVec
	RowsExtracted  *prometheus.CounterVec
	Dropped        *prometheus.CounterVec
	CleanRows      prometheus.Gauge
	PanelRows      prometheus.Gauge
	PhaseDuration  *prometheus.GaugeVec
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Partitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricepanel_partitions_total",
			Help: "Lake partitions scanned, by status",
		}, []string{"status"}),
		Entities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricepanel_entities_total",
			Help: "Remote entities processed, by status",
		}, []string{"status"}),
		RemoteQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricepanel_remote_queries_total",
			Help: "Queries issued to the remote source, retries included",
		}),
		RemoteRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricepanel_remote_retries_total",
			Help: "Remote query retries",
		}),
		RemoteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricepanel_remote_failures_total",
			Help: "Remote queries that failed after all retries",
		}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pricepanel_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"name"}),
		RowsExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricepanel_rows_extracted_total",
			Help: "Extracted charge rows, by code family",
		}, []string{"family"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricepanel_observations_dropped_total",
			Help: "Observations dropped during cleaning and assembly, by reason",
		}, []string{"reason"}),
		CleanRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pricepanel_clean_rows",
			Help: "Rate rows surviving the registry join and charge filter",
		}),
		PanelRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pricepanel_panel_rows",
			Help: "Rows in the assembled panel",
		}),
		PhaseDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pricepanel_phase_duration_seconds",
			Help: "Wall-clock duration of each pipeline phase",
		}, []string{"phase"}),
	}

	m.Registry.MustRegister(
		m.Partitions,
		m.Entities,
		m.RemoteQueries,
		m.RemoteRetries,
		m.RemoteFailures,
		m.BreakerState,
		m.RowsExtracted,
		m.Dropped,
		m.CleanRows,
		m.PanelRows,
		m.PhaseDuration,
	)

	return m
}

// Push sends the registry to a Pushgateway under job. A blank url is a no-op.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
