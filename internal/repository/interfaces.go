package repository

import (
	"context"

	"github.com/anime-shed/image-eval-go/pkg/models"
)

// RunRepository persists batch runs and their per-pair outcomes
type RunRepository interface {
	// CreateRun opens a run and returns its id
	CreateRun(ctx context.Context, baseDir, improvedDir string) (string, error)

	// SavePair stores one evaluated pair of a run
	SavePair(ctx context.Context, runID string, report models.PairReport) error

	// SaveFailure stores one skipped pair of a run
	SaveFailure(ctx context.Context, runID string, failure models.PairFailure) error

	// CompleteRun closes a run with its final summary, which may be nil
	CompleteRun(ctx context.Context, runID string, final *models.BatchSummary) error

	// GetRun retrieves a run
	GetRun(ctx context.Context, runID string) (*models.RunRecord, error)

	// ListRuns returns the most recent runs first
	ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error)

	// ListPairs returns the evaluated pairs of a run in pair order
	ListPairs(ctx context.Context, runID string) ([]models.PairReport, error)

	// ListFailures returns the skipped pairs of a run in pair order
	ListFailures(ctx context.Context, runID string) ([]models.PairFailure, error)

	Close() error
}
