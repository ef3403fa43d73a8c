package debug

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"csrelay/internal/detector"
)

const metricsNamespace = "csrelay"

// Metrics records cycle results on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	CyclesTotal       *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
	SegmentsSent      prometheus.Counter
	SegmentsFailed    prometheus.Counter
	LastCycleTime     prometheus.Gauge
	LastDeliveredTime prometheus.Gauge

	mu      sync.RWMutex
	last    detector.Result
	hasLast bool
	cycles  uint64
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cycles_total",
			Help:      "Poll cycles by outcome",
		}, []string{"outcome"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a poll cycle in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}),
		SegmentsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "segments_sent_total",
			Help:      "Message segments accepted by the chat API",
		}),
		SegmentsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "segments_failed_total",
			Help:      "Message segments that failed to send",
		}),
		LastCycleTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time the last cycle finished",
		}),
		LastDeliveredTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_delivered_timestamp_seconds",
			Help:      "Unix time of the last fully delivered update",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Observe records one cycle result.
func (m *Metrics) Observe(res detector.Result) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(res.Outcome.String()).Inc()
	m.CycleDuration.Observe(res.Took.Seconds())
	m.SegmentsSent.Add(float64(res.Report.Sent))
	m.SegmentsFailed.Add(float64(res.Report.Failed))

	end := res.Started.Add(res.Took)
	if res.Started.IsZero() {
		end = time.Now()
	}
	m.LastCycleTime.Set(float64(end.Unix()))
	if res.Outcome == detector.OutcomeDelivered {
		m.LastDeliveredTime.Set(float64(end.Unix()))
	}

	m.mu.Lock()
	m.last = res
	m.hasLast = true
	m.cycles++
	m.mu.Unlock()
}

// Last returns the most recent result, if any, and the cycle count.
func (m *Metrics) Last() (detector.Result, bool, uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last, m.hasLast, m.cycles
}
