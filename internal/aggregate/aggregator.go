// Package aggregate keeps running per-metric averages over a batch of pairs.
package aggregate

import (
	"math"
	"sync"

	apperrors "github.com/anime-shed/image-eval-go/internal/errors"
	"github.com/anime-shed/image-eval-go/pkg/models"
)

// DefaultSummaryThreshold is the comparison count a batch must exceed before
// summaries are emitted
const DefaultSummaryThreshold = 10

// Aggregator accumulates metric records. It is safe for concurrent use,
// though the batch pipeline records from a single goroutine so emission
// points stay deterministic.
type Aggregator struct {
	mu        sync.Mutex
	threshold int
	count     int
	sums      map[models.Metric]float64
	means     map[models.Metric]float64
}

// New creates an aggregator; a threshold below zero is treated as zero
func New(threshold int) *Aggregator {
	if threshold < 0 {
		threshold = 0
	}
	return &Aggregator{
		threshold: threshold,
		sums:      make(map[models.Metric]float64),
		means:     make(map[models.Metric]float64),
	}
}

// Record adds one record. Keys outside the scored metric set are ignored;
// a missing key counts as 0.
func (a *Aggregator) Record(values models.MetricValues) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.count++
	n := float64(a.count)
	for _, m := range models.ScoredMetrics() {
		v := values[m]
		a.sums[m] += v
		// incremental mean: a constant stream stays exactly constant
		a.means[m] += (v - a.means[m]) / n
	}
}

// Count returns the number of recorded comparisons
func (a *Aggregator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Threshold returns the summary threshold
func (a *Aggregator) Threshold() int {
	return a.threshold
}

// ShouldEmitSummary reports whether the count is strictly above the threshold.
// Once true it stays true for every later record.
func (a *Aggregator) ShouldEmitSummary() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count > a.threshold
}

// Averages returns the arithmetic mean of every scored metric, or an
// empty-batch error when nothing was recorded
func (a *Aggregator) Averages() (models.MetricValues, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.count == 0 {
		return nil, apperrors.NewEmptyBatchError()
	}
	out := make(models.MetricValues, len(a.means))
	for _, m := range models.ScoredMetrics() {
		mean := a.means[m]
		// infinities poison the incremental form with NaN; the plain
		// quotient keeps +Inf for a stream containing +Inf
		if math.IsNaN(mean) || math.IsInf(mean, 0) {
			mean = a.sums[m] / float64(a.count)
		}
		out[m] = mean
	}
	return out, nil
}
