package scoring

import (
	"math"

	apperrors "github.com/anime-shed/image-eval-go/internal/errors"
	"github.com/anime-shed/image-eval-go/pkg/models"
)

// Verdict thresholds. Comparisons are strict.
const (
	SignificantThreshold = 0.8
	NotableThreshold     = 0.5
	SlightThreshold      = 0.2
)

// Contribution explains one metric's share of a score
type Contribution struct {
	Metric     models.Metric `json:"metric"`
	Value      float64       `json:"value"`
	Normalized float64       `json:"normalized"`
	Weight     float64       `json:"weight"`
}

// Scorer maps metric values to a weighted score and verdict. It holds no
// mutable state; the same values always give the same result.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with the canonical weight table
func NewScorer() *Scorer {
	return &Scorer{weights: DefaultWeights()}
}

// NewScorerWithWeights creates a scorer with a custom weight table
func NewScorerWithWeights(weights Weights) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, apperrors.NewValidationError("invalid weight table", err)
	}
	return &Scorer{weights: weights}, nil
}

// Weights returns the table in use
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score computes the weighted score of a complete metric set.
// A missing metric is a contract violation and yields a MissingMetricError.
func (s *Scorer) Score(values models.MetricValues) (models.ScoreResult, error) {
	contributions, err := s.Explain(values)
	if err != nil {
		return models.ScoreResult{}, err
	}

	var sum float64
	for _, c := range contributions {
		sum += c.Weight * c.Normalized
	}
	score := sum / s.weights.Total()

	return models.ScoreResult{Score: score, Verdict: VerdictFor(score)}, nil
}

// ScoreRecord scores a record built by the evaluator; records are always complete
func (s *Scorer) ScoreRecord(rec models.MetricRecord) models.ScoreResult {
	result, err := s.Score(rec.Values())
	if err != nil {
		// Values() populates every scored metric
		panic(err)
	}
	return result
}

// Explain returns the per-metric terms of the weighted sum
func (s *Scorer) Explain(values models.MetricValues) ([]Contribution, error) {
	metrics := models.ScoredMetrics()
	out := make([]Contribution, 0, len(metrics))
	for _, m := range metrics {
		v, ok := values[m]
		if !ok {
			return nil, apperrors.NewMissingMetricError(string(m))
		}
		out = append(out, Contribution{
			Metric:     m,
			Value:      v,
			Normalized: Normalize(m, v),
			Weight:     s.weights.For(m),
		})
	}
	return out, nil
}

// Normalize maps a raw metric value to its score term. Terms are not clamped.
func Normalize(m models.Metric, v float64) float64 {
	switch m {
	case models.MetricMSE, models.MetricEdgeMSE:
		return 1 / (1 + v/20000)
	case models.MetricFFTMSE:
		return 1 / (1 + v/1e9)
	case models.MetricSSIM, models.MetricMSSSIM, models.MetricGSIM:
		return v
	case models.MetricPSNR:
		return v / 50
	case models.MetricBrisqueDiff:
		// only an improvement (negative difference) counts
		return math.Max(0, -v/100)
	case models.MetricHistCorr:
		return (v + 1) / 2
	case models.MetricEntropyDiff:
		return v / 10
	case models.MetricVMAF:
		return v / 100
	}
	return 0
}

// VerdictFor maps a score to its category
func VerdictFor(score float64) models.Verdict {
	switch {
	case score > SignificantThreshold:
		return models.VerdictSignificantlyBetter
	case score > NotableThreshold:
		return models.VerdictNotableEnhancement
	case score > SlightThreshold:
		return models.VerdictSlightImprovement
	default:
		return models.VerdictNoClearImprovement
	}
}

var defaultScorer = NewScorer()

// Score scores values with the canonical weight table
func Score(values models.MetricValues) (models.ScoreResult, error) {
	return defaultScorer.Score(values)
}
