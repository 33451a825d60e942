// Package metrics exports DPC scheduler counters to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"dpcqueue/src/model"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "dpcqueue"
	subsystem = "dpc"
)

// Failure reasons for rejected enqueue requests.
const (
	ReasonInvalidParameter = "invalid_parameter"
	ReasonAllocUnsafe      = "alloc_unsafe"
	ReasonAllocFailed      = "alloc_failed"
)

// Metrics for one scheduler. A nil *Metrics records nothing.
type Metrics struct {
	Enqueued       *prometheus.CounterVec
	Dispatched     *prometheus.CounterVec
	EnqueueFailed  *prometheus.CounterVec
	ServiceSeconds *prometheus.HistogramVec
	Growths        prometheus.Counter
	Slots          prometheus.Gauge
}

// Creates the scheduler metrics and registers them with reg, if not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "enqueued_total",
			Help:      "Deferred procedure calls queued, by level",
		}, []string{"level"}),
		Dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatched_total",
			Help:      "Deferred procedure calls invoked, by level",
		}, []string{"level"}),
		EnqueueFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "enqueue_failed_total",
			Help:      "Rejected enqueue requests, by reason",
		}, []string{"reason"}),
		ServiceSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "service_seconds",
			Help:      "Time spent inside deferred procedures, by level",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"level"}),
		Growths: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pool_growths_total",
			Help:      "Batch allocations of new entries",
		}),
		Slots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pool_slots",
			Help:      "Entries ever allocated (free and queued)",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Enqueued, m.Dispatched, m.EnqueueFailed,
			m.ServiceSeconds, m.Growths, m.Slots)
	}
	return m
}

// Registers gauges reading the current and maximum queue depth.
func (m *Metrics) RegisterDepth(reg prometheus.Registerer, queued, maxQueued func() float64) {
	if m == nil || reg == nil {
		return
	}
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queued",
			Help:      "Deferred procedure calls waiting for dispatch",
		}, queued),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queued_max",
			Help:      "Largest number of deferred procedure calls ever waiting",
		}, maxQueued),
	)
}

func (m *Metrics) OnEnqueue(level model.Priority) {
	if m == nil {
		return
	}
	m.Enqueued.WithLabelValues(LevelLabel(level)).Inc()
}

func (m *Metrics) OnEnqueueFailed(reason string) {
	if m == nil {
		return
	}
	m.EnqueueFailed.WithLabelValues(reason).Inc()
}

func (m *Metrics) OnDispatch(level model.Priority, service time.Duration) {
	if m == nil {
		return
	}
	label := LevelLabel(level)
	m.Dispatched.WithLabelValues(label).Inc()
	m.ServiceSeconds.WithLabelValues(label).Observe(service.Seconds())
}

func (m *Metrics) OnGrow(slots int) {
	if m == nil {
		return
	}
	m.Growths.Inc()
	m.Slots.Set(float64(slots))
}

// Label value for a level: its numeric value.
func LevelLabel(level model.Priority) string {
	return strconv.Itoa(int(level))
}
