package aggregate

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/anime-shed/image-eval-go/internal/errors"
	"github.com/anime-shed/image-eval-go/pkg/models"
)

func constantValues(v float64) models.MetricValues {
	out := models.MetricValues{}
	for _, m := range models.ScoredMetrics() {
		out[m] = v
	}
	return out
}

func TestAveragesEmptyBatch(t *testing.T) {
	agg := New(DefaultSummaryThreshold)
	_, err := agg.Averages()
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeEmptyBatch))
	assert.False(t, agg.ShouldEmitSummary())
}

func TestAveragesOfConstantStreamAreExact(t *testing.T) {
	for _, v := range []float64{0.1, 1.0 / 3, 0.7, 123.456, -6.2} {
		agg := New(DefaultSummaryThreshold)
		for i := 0; i < 37; i++ {
			agg.Record(constantValues(v))
		}
		avg, err := agg.Averages()
		require.NoError(t, err)
		for _, m := range models.ScoredMetrics() {
			assert.Equal(t, v, avg[m], "metric %s value %v", m, v)
		}
	}
}

func TestAveragesArithmeticMean(t *testing.T) {
	agg := New(DefaultSummaryThreshold)
	agg.Record(models.MetricValues{models.MetricSSIM: 0.5, models.MetricMSE: 10})
	agg.Record(models.MetricValues{models.MetricSSIM: 0.7, models.MetricMSE: 30})
	agg.Record(models.MetricValues{models.MetricSSIM: 0.9, models.MetricMSE: 50})

	avg, err := agg.Averages()
	require.NoError(t, err)
	assert.InDelta(t, 0.7, avg[models.MetricSSIM], 1e-12)
	assert.InDelta(t, 30.0, avg[models.MetricMSE], 1e-12)
	assert.Equal(t, 0.0, avg[models.MetricVMAF], "missing keys count as zero")
	assert.Len(t, avg, len(models.ScoredMetrics()))
}

func TestAveragesKeepInfinity(t *testing.T) {
	agg := New(DefaultSummaryThreshold)
	agg.Record(models.MetricValues{models.MetricPSNR: math.Inf(1)})
	agg.Record(models.MetricValues{models.MetricPSNR: math.Inf(1)})
	agg.Record(models.MetricValues{models.MetricPSNR: 30})

	avg, err := agg.Averages()
	require.NoError(t, err)
	assert.True(t, math.IsInf(avg[models.MetricPSNR], 1))
}

func TestShouldEmitSummaryIsStrict(t *testing.T) {
	agg := New(10)
	for i := 1; i <= 10; i++ {
		agg.Record(constantValues(1))
		assert.False(t, agg.ShouldEmitSummary(), "count %d", i)
	}
	for i := 11; i <= 15; i++ {
		agg.Record(constantValues(1))
		assert.True(t, agg.ShouldEmitSummary(), "count %d", i)
	}
	assert.Equal(t, 15, agg.Count())
}

func TestZeroThresholdEmitsFromFirstRecord(t *testing.T) {
	agg := New(0)
	assert.False(t, agg.ShouldEmitSummary())
	agg.Record(constantValues(1))
	assert.True(t, agg.ShouldEmitSummary())
	assert.Equal(t, 0, New(-4).Threshold())
}

func TestConcurrentRecords(t *testing.T) {
	agg := New(DefaultSummaryThreshold)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			agg.Record(constantValues(2))
		}()
	}
	wg.Wait()

	avg, err := agg.Averages()
	require.NoError(t, err)
	assert.Equal(t, 50, agg.Count())
	assert.Equal(t, 2.0, avg[models.MetricGSIM])
}
