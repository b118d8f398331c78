package metrics

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/semihalev/rendezvous/registry"
	"github.com/semihalev/zlog/v2"
)

// Metrics type
type Metrics struct {
	arrivals *prometheus.CounterVec
	outcomes *prometheus.CounterVec
	rejected *prometheus.CounterVec
	waited   prometheus.Histogram
	waiting  *waitingGauge
}

// waitingGauge is shared by every Metrics registered in the same registerer,
// so the last Bind wins.
type waitingGauge struct {
	prometheus.GaugeFunc

	source atomic.Pointer[func() int]
}

func newWaitingGauge() *waitingGauge {
	g := new(waitingGauge)
	g.GaugeFunc = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "rendezvous_waiting",
			Help: "Parties currently waiting for a partner",
		},
		g.value,
	)

	return g
}

func (g *waitingGauge) value() float64 {
	fn := g.source.Load()
	if fn == nil {
		return 0
	}

	return float64((*fn)())
}

// New return new metrics registered with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		arrivals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rendezvous_arrivals_total",
				Help: "How many parties arrived, by arrival order",
			},
			[]string{"party"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rendezvous_outcomes_total",
				Help: "How many waiting parties were released, by outcome",
			},
			[]string{"outcome"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rendezvous_rejected_total",
				Help: "How many wait requests were refused before arriving",
			},
			[]string{"reason"},
		),
		waited: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rendezvous_wait_duration_seconds",
				Help:    "How long first parties waited for a partner",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 7.5, 10},
			},
		),
		waiting: newWaitingGauge(),
	}

	m.arrivals = register(reg, m.arrivals)
	m.outcomes = register(reg, m.outcomes)
	m.rejected = register(reg, m.rejected)
	m.waited = register(reg, m.waited)
	m.waiting = register(reg, m.waiting)

	return m
}

// Bind attaches the source of the waiting gauge.
func (m *Metrics) Bind(waiting func() int) {
	m.waiting.source.Store(&waiting)
}

// Arrived implements registry.Observer.
func (m *Metrics) Arrived(_ string, first bool) {
	party := "second"
	if first {
		party = "first"
	}

	m.arrivals.WithLabelValues(party).Inc()
}

// Released implements registry.Observer.
func (m *Metrics) Released(_ string, outcome registry.Outcome, waited time.Duration) {
	m.outcomes.WithLabelValues(outcome.String()).Inc()
	m.waited.Observe(waited.Seconds())
}

// Rejected counts a refused request.
func (m *Metrics) Rejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

// register returns the collector already registered under the same name, if any.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}

		zlog.Warn("Metrics register failed", "error", err.Error())
	}

	return c
}
