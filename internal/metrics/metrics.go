// Package metrics exposes the Policy Service's Prometheus registry:
// request outcome counters, consent latency, and process resource gauges
// sampled via gopsutil.
package metrics

import (
	"context"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/process"
)

// Registry holds every metric the Policy Service emits.
type Registry struct {
	GrantsTotal   *prometheus.CounterVec
	DenialsTotal  *prometheus.CounterVec
	RevokesTotal  *prometheus.CounterVec
	ConsentLatency *prometheus.HistogramVec
	ActiveGrants  prometheus.Gauge
	ProcessRSS    prometheus.Gauge
	ProcessCPU    prometheus.Gauge
}

// NewRegistry registers every metric against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		GrantsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "policyd",
			Name:      "grants_total",
			Help:      "Total capability grants issued, by risk level.",
		}, []string{"risk"}),
		DenialsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "policyd",
			Name:      "denials_total",
			Help:      "Total capability requests denied, by risk level.",
		}, []string{"risk"}),
		RevokesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "policyd",
			Name:      "revokes_total",
			Help:      "Total capability revocations processed.",
		}, []string{"reason"}),
		ConsentLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "policyd",
			Name:      "consent_latency_seconds",
			Help:      "Time spent waiting on a compositor consent decision.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"risk"}),
		ActiveGrants: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "policyd",
			Name:      "active_grants",
			Help:      "Current number of observable (active, unexpired) grants.",
		}),
		ProcessRSS: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "policyd",
			Name:      "process_rss_bytes",
			Help:      "Resident set size of the Policy Service process.",
		}),
		ProcessCPU: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "policyd",
			Name:      "process_cpu_percent",
			Help:      "CPU utilization percentage of the Policy Service process.",
		}),
	}
}

// RunProcessSampler updates ProcessRSS/ProcessCPU every interval until
// ctx is cancelled. Failures to read process stats are ignored — this is
// observability, not a correctness path.
func (r *Registry) RunProcessSampler(ctx context.Context, interval time.Duration) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
				r.ProcessRSS.Set(float64(mem.RSS))
			}
			if cpu, err := proc.CPUPercent(); err == nil {
				r.ProcessCPU.Set(cpu)
			}
		}
	}
}

// SampleActiveGrants reads the current count via fn and sets the gauge.
// fn is expected to be GrantStore.ActiveGrantCount, callable from any
// goroutine since it only reads.
func (r *Registry) SampleActiveGrants(fn func() int) {
	r.ActiveGrants.Set(float64(fn()))
}
