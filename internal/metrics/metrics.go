// Package metrics exposes tuner, scan and rotor activity to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/version"

	"github.com/large-farva/feedhunter/internal/frontend"
)

const namespace = "feedhunter"

// Metrics holds the collectors of one daemon. Methods are safe on a nil
// receiver so command-line tools can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	tuneAttempts   *prometheus.CounterVec
	locks          *prometheus.CounterVec
	lastSignal     *prometheus.GaugeVec
	scanActive     prometheus.Gauge
	scanProgress   prometheus.Gauge
	scansTotal     *prometheus.CounterVec
	diseqcCommands *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
}

// New creates the collectors and registers them, together with the Go,
// process and build-info collectors, on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tuneAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frontend",
			Name:      "tune_attempts_total",
			Help:      "Tune attempts by polarization.",
		}, []string{"polarization"}),
		locks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frontend",
			Name:      "locks_total",
			Help:      "Attempts that ended with a lock, by polarization.",
		}, []string{"polarization"}),
		lastSignal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "frontend",
			Name:      "last_status",
			Help:      "Status flags of the most recent poll (1 when set).",
		}, []string{"flag"}),
		scanActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "active",
			Help:      "1 while a scan is running.",
		}),
		scanProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "progress_ratio",
			Help:      "Fraction of the current scan range covered.",
		}),
		scansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "runs_total",
			Help:      "Finished scans by result.",
		}, []string{"result"}),
		diseqcCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rotor",
			Name:      "diseqc_commands_total",
			Help:      "DiSEqC frames sent, by command byte.",
		}, []string{"command"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Histogram of job run times.",
			Buckets:   []float64{1, 5, 15, 60, 180, 600, 1800, 3600},
		}, []string{"job", "result"}),
	}
	m.registry.MustRegister(
		m.tuneAttempts, m.locks, m.lastSignal,
		m.scanActive, m.scanProgress, m.scansTotal,
		m.diseqcCommands, m.jobDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		version.NewCollector(namespace),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveAttempt records one tune and its resulting status.
func (m *Metrics) ObserveAttempt(pol frontend.Polarization, st frontend.LockStatus) {
	if m == nil {
		return
	}
	m.tuneAttempts.WithLabelValues(pol.String()).Inc()
	if st.HasLock {
		m.locks.WithLabelValues(pol.String()).Inc()
	}
	for flag, set := range map[string]bool{
		"signal":  st.HasSignal,
		"carrier": st.HasCarrier,
		"viterbi": st.HasViterbi,
		"sync":    st.HasSync,
		"lock":    st.HasLock,
	} {
		v := 0.0
		if set {
			v = 1
		}
		m.lastSignal.WithLabelValues(flag).Set(v)
	}
}

// ScanStarted marks a scan as running.
func (m *Metrics) ScanStarted() {
	if m == nil {
		return
	}
	m.scanActive.Set(1)
	m.scanProgress.Set(0)
}

// ScanProgress updates the covered fraction.
func (m *Metrics) ScanProgress(offset, total uint32) {
	if m == nil {
		return
	}
	if total == 0 {
		m.scanProgress.Set(1)
		return
	}
	m.scanProgress.Set(float64(offset) / float64(total))
}

// ScanFinished clears the running flag and counts the result.
func (m *Metrics) ScanFinished(result string) {
	if m == nil {
		return
	}
	m.scanActive.Set(0)
	m.scansTotal.WithLabelValues(result).Inc()
}

// DiseqcSent counts a transmitted frame by its command byte.
func (m *Metrics) DiseqcSent(msg []byte) {
	if m == nil || len(msg) < 3 {
		return
	}
	m.diseqcCommands.WithLabelValues(commandLabel(msg[2])).Inc()
}

// JobDone records how long a job took.
func (m *Metrics) JobDone(job, result string, seconds float64) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job, result).Observe(seconds)
}

func commandLabel(b byte) string {
	switch b {
	case 0x60:
		return "stop"
	case 0x63:
		return "limits_off"
	case 0x66:
		return "limit_east"
	case 0x67:
		return "limit_west"
	case 0x68:
		return "drive_east"
	case 0x69:
		return "drive_west"
	case 0x6A:
		return "store"
	case 0x6B:
		return "goto_slot"
	case 0x6E:
		return "goto_angle"
	}
	return "other"
}
