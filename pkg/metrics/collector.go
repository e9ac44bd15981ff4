package metrics

import (
	"context"
	"strconv"
	"sync"

	"github.com/dbehnke/fecsim/pkg/ber"
	"github.com/dbehnke/fecsim/pkg/sweep"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector collects simulator metrics. It is a sweep sink and a trial
// observer, and owns a private Prometheus registry.
type Collector struct {
	mu sync.RWMutex

	registry *prometheus.Registry

	trialsTotal   *prometheus.CounterVec
	bitsTotal     *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	trialDuration *prometheus.HistogramVec
	pointBER      *prometheus.GaugeVec
	runsActive    prometheus.Gauge
	runsTotal     *prometheus.CounterVec

	// Plain totals for in-process readers
	trials     uint64
	bits       uint64
	bitErrors  uint64
	activeRuns map[string]bool
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		trialsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fecsim_trials_total",
				Help: "Total link trials simulated",
			},
			[]string{"modulation", "coded"},
		),
		bitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fecsim_bits_total",
				Help: "Total information bits compared",
			},
			[]string{"modulation", "coded"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fecsim_bit_errors_total",
				Help: "Total information bit errors",
			},
			[]string{"modulation", "coded"},
		),
		trialDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fecsim_trial_duration_seconds",
				Help:    "Wall time of a single trial",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"modulation", "coded"},
		),
		pointBER: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fecsim_ber",
				Help: "Most recent measured BER per operating point",
			},
			[]string{"modulation", "coded", "ebn0"},
		),
		runsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fecsim_runs_active",
				Help: "Number of sweeps in progress",
			},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fecsim_runs_total",
				Help: "Finished sweeps by final status",
			},
			[]string{"status"},
		),
		activeRuns: make(map[string]bool),
	}
}

// Registry returns the registry all collector metrics live in
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveTrial records one finished trial
func (c *Collector) ObserveTrial(res ber.TrialResult) {
	mod, coded := res.Modulation.String(), strconv.FormatBool(res.Coded)

	c.trialsTotal.WithLabelValues(mod, coded).Inc()
	c.bitsTotal.WithLabelValues(mod, coded).Add(float64(res.Bits))
	c.errorsTotal.WithLabelValues(mod, coded).Add(float64(res.Errors))
	c.trialDuration.WithLabelValues(mod, coded).Observe(res.Duration.Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()

	c.trials++
	c.bits += uint64(res.Bits)
	c.bitErrors += uint64(res.Errors)
}

// RunStarted records a sweep start
func (c *Collector) RunStarted(_ context.Context, res *sweep.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.activeRuns[res.RunID] = true
	c.runsActive.Set(float64(len(c.activeRuns)))
	return nil
}

// PointCompleted publishes the BER of a finished point
func (c *Collector) PointCompleted(_ context.Context, p sweep.Point) error {
	ebn0 := strconv.FormatFloat(p.EbN0dB, 'f', -1, 64)
	c.pointBER.WithLabelValues(p.Modulation.String(), strconv.FormatBool(p.Coded), ebn0).Set(p.BER)
	return nil
}

// RunFinished records a sweep end
func (c *Collector) RunFinished(_ context.Context, res *sweep.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.activeRuns, res.RunID)
	c.runsActive.Set(float64(len(c.activeRuns)))
	c.runsTotal.WithLabelValues(res.Status).Inc()
	return nil
}

// Reset clears the active run set (useful for testing)
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.activeRuns = make(map[string]bool)
	c.runsActive.Set(0)
	// Cumulative totals are kept
}

// GetTrials returns total trials observed
func (c *Collector) GetTrials() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.trials
}

// GetBits returns total bits compared
func (c *Collector) GetBits() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bits
}

// GetBitErrors returns total bit errors
func (c *Collector) GetBitErrors() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bitErrors
}

// GetActiveRuns returns the number of sweeps in progress
func (c *Collector) GetActiveRuns() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.activeRuns)
}
