// Package metrics exposes Prometheus collectors for evolution runs.
package metrics

import (
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors groups the run metrics. A nil *Collectors is valid and records
// nothing.
type Collectors struct {
	generations       prometheus.Counter
	evaluations       prometheus.Counter
	bestFitness       prometheus.Gauge
	avgFitness        prometheus.Gauge
	avgSize           prometheus.Gauge
	generationSeconds prometheus.Histogram
	checkpoints       *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		generations: factory.NewCounter(prometheus.CounterOpts{
			Name: "gasm_generations_total",
			Help: "Generations evaluated.",
		}),
		evaluations: factory.NewCounter(prometheus.CounterOpts{
			Name: "gasm_evaluations_total",
			Help: "Individuals scored against the dataset.",
		}),
		bestFitness: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gasm_best_fitness",
			Help: "Best fitness of the latest generation.",
		}),
		avgFitness: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gasm_avg_fitness",
			Help: "Mean finite fitness of the latest generation.",
		}),
		avgSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gasm_avg_program_size",
			Help: "Mean program length of the latest generation.",
		}),
		generationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gasm_generation_duration_seconds",
			Help:    "Wall time to breed and evaluate one generation.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
		checkpoints: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gasm_checkpoints_total",
			Help: "Checkpoint writes by result.",
		}, []string{"result"}),
	}
}

func (c *Collectors) ObserveEvaluations(n int) {
	if c == nil {
		return
	}
	c.evaluations.Add(float64(n))
}

// ObserveGeneration records the summary of a finished generation.
func (c *Collectors) ObserveGeneration(best, avg, avgSize float64, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.generations.Inc()
	if !math.IsNaN(best) {
		c.bestFitness.Set(best)
	}
	if !math.IsNaN(avg) {
		c.avgFitness.Set(avg)
	}
	c.avgSize.Set(avgSize)
	c.generationSeconds.Observe(elapsed.Seconds())
}

func (c *Collectors) ObserveCheckpoint(err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.checkpoints.WithLabelValues(result).Inc()
}
