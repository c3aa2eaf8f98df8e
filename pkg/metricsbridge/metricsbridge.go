// Package metricsbridge exposes a PipelineProfiler snapshot as
// prometheus/client_golang metrics (spec.md's domain stack: a passive
// bridge, not an HTTP server — the caller owns the registry and the
// listener, mirroring the CounterVec/GaugeVec wiring in
// comp/core/telemetry/prom_counter_test.go and prom_gauge_test.go).
package metricsbridge

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cnstream-go/cnstream/pkg/profiler"
)

const namespace = "cnstream"

// Bridge owns one GaugeVec per profiler metric, labeled by stage and
// process region, plus three overall-process gauges. It registers
// nothing on construction; call Register to attach it to a
// *prometheus.Registry (or the default one).
type Bridge struct {
	completed *prometheus.GaugeVec
	dropped   *prometheus.GaugeVec
	counter   *prometheus.GaugeVec
	fps       *prometheus.GaugeVec
	latencyMs *prometheus.GaugeVec

	overallCompleted prometheus.Gauge
	overallFPS       prometheus.Gauge
	overallLatencyMs prometheus.Gauge
}

// New builds an unregistered Bridge.
func New() *Bridge {
	labels := []string{"stage", "process"}
	return &Bridge{
		completed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "stage_completed_total", Help: "Frames that completed a process region.",
		}, labels),
		dropped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "stage_dropped_total", Help: "Frames dropped in a process region.",
		}, labels),
		counter: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "stage_counter_total", Help: "completed + dropped for a process region.",
		}, labels),
		fps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "stage_fps", Help: "Frames per second for a process region, -1 if unmeasured.",
		}, labels),
		latencyMs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "stage_latency_ms", Help: "Mean latency in milliseconds for a process region.",
		}, labels),
		overallCompleted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "overall_completed_total", Help: "Frames that cleared every stage.",
		}),
		overallFPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "overall_fps", Help: "End-to-end frames per second.",
		}),
		overallLatencyMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "overall_latency_ms", Help: "End-to-end mean latency in milliseconds.",
		}),
	}
}

// Collectors returns every metric this bridge owns, for callers that want
// to MustRegister them individually instead of via Register.
func (b *Bridge) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		b.completed, b.dropped, b.counter, b.fps, b.latencyMs,
		b.overallCompleted, b.overallFPS, b.overallLatencyMs,
	}
}

// Register attaches every metric this bridge owns to reg.
func (b *Bridge) Register(reg *prometheus.Registry) error {
	for _, c := range b.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Observe overwrites every gauge from a fresh profiler snapshot. Call it
// on a schedule (or right before a /metrics scrape) — the bridge never
// reads the profiler on its own.
func (b *Bridge) Observe(snapshot profiler.PipelineProfile) {
	for _, mp := range snapshot.ModuleProfiles {
		for _, pp := range mp.ProcessProfiles {
			labels := prometheus.Labels{"stage": mp.ModuleName, "process": pp.ProcessName}
			b.completed.With(labels).Set(float64(pp.Completed))
			b.dropped.With(labels).Set(float64(pp.Dropped))
			b.counter.With(labels).Set(float64(pp.Counter))
			b.fps.With(labels).Set(pp.FPS)
			b.latencyMs.With(labels).Set(pp.Latency)
		}
	}
	b.overallCompleted.Set(float64(snapshot.Overall.Completed))
	b.overallFPS.Set(snapshot.Overall.FPS)
	b.overallLatencyMs.Set(snapshot.Overall.Latency)
}
