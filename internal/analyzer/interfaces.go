package analyzer

import (
	"context"

	"github.com/anime-shed/image-eval-go/pkg/models"
)

// PairEvaluator produces the complete metric record for one base/improved pair
type PairEvaluator interface {
	Evaluate(ctx context.Context, basePath, improvedPath string) (models.MetricRecord, error)
}

// MetricCache stores finished records keyed by pair content
type MetricCache interface {
	Get(ctx context.Context, key string) (models.MetricRecord, bool, error)
	Set(ctx context.Context, key string, record models.MetricRecord) error
}
