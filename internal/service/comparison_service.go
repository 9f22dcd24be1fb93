package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/image-eval-go/internal/aggregate"
	"github.com/anime-shed/image-eval-go/internal/analyzer"
	apperrors "github.com/anime-shed/image-eval-go/internal/errors"
	"github.com/anime-shed/image-eval-go/internal/logger"
	"github.com/anime-shed/image-eval-go/internal/observer"
	"github.com/anime-shed/image-eval-go/internal/pairing"
	"github.com/anime-shed/image-eval-go/internal/repository"
	"github.com/anime-shed/image-eval-go/internal/storage"
	"github.com/anime-shed/image-eval-go/pkg/models"
	"github.com/anime-shed/image-eval-go/pkg/scoring"
)

// ComparisonService defines the batch and single-pair comparison operations
type ComparisonService interface {
	// CompareDirectories pairs two sources and evaluates every pair. Per-pair
	// failures are reported, not returned; listing failures end the run.
	CompareDirectories(ctx context.Context, base, improved storage.Source) (*models.BatchReport, error)

	// ComparePair evaluates two local image files
	ComparePair(ctx context.Context, basePath, improvedPath string) (*models.PairReport, error)

	// CompareURLs downloads two images and evaluates them
	CompareURLs(ctx context.Context, baseURL, improvedURL string) (*models.PairReport, error)

	// Score applies the weighted score function to a metric record
	Score(values models.MetricValues) (models.ScoreResult, error)

	// GetRun returns a stored run with its pairs
	GetRun(ctx context.Context, runID string) (*models.RunResponse, error)

	// ListRuns returns the most recent stored runs
	ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error)
}

// PoolReporter is implemented by services that evaluate pairs on worker pools
type PoolReporter interface {
	// PoolStats sums the pools of running batches with the job counts of
	// finished ones. Workers counts live workers only.
	PoolStats() analyzer.PoolStats
}

// Options configures the batch pipeline
type Options struct {
	// Workers evaluating pairs; 1 evaluates pairs one after another
	Workers int
	// SummaryThreshold is the comparison count a batch must exceed before
	// an average report follows every pair
	SummaryThreshold int
	Resolver         *pairing.Resolver
}

// DefaultOptions returns the sequential pipeline with the standard threshold
func DefaultOptions() Options {
	return Options{
		Workers:          1,
		SummaryThreshold: aggregate.DefaultSummaryThreshold,
		Resolver:         pairing.NewResolver(),
	}
}

// comparisonService implements ComparisonService
type comparisonService struct {
	evaluator analyzer.PairEvaluator
	scorer    *scoring.Scorer
	fetcher   storage.ImageFetcher
	publisher observer.Subject
	runs      repository.RunRepository
	opts      Options

	poolMu   sync.Mutex
	live     map[*analyzer.WorkerPool]struct{}
	finished analyzer.PoolStats
}

// NewComparisonService creates a new comparison service. fetcher, publisher
// and runs may be nil.
func NewComparisonService(
	evaluator analyzer.PairEvaluator,
	scorer *scoring.Scorer,
	fetcher storage.ImageFetcher,
	publisher observer.Subject,
	runs repository.RunRepository,
	opts Options,
) ComparisonService {
	if scorer == nil {
		scorer = scoring.NewScorer()
	}
	if publisher == nil {
		publisher = observer.NewEventPublisher()
	}
	if opts.Resolver == nil {
		opts.Resolver = pairing.NewResolver()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &comparisonService{
		evaluator: evaluator,
		scorer:    scorer,
		fetcher:   fetcher,
		publisher: publisher,
		runs:      runs,
		opts:      opts,
		live:      make(map[*analyzer.WorkerPool]struct{}),
	}
}

// pairOutcome is the result of one pair, in either form. A dropped pair was
// cut short by cancellation and is neither reported nor counted.
type pairOutcome struct {
	index   int
	report  *models.PairReport
	failure *models.PairFailure
	dropped bool
}

// CompareDirectories implements the batch pipeline: resolve pairs, evaluate
// them on the worker pool, then feed outcomes in pair order to a single
// aggregator so output and summary points match a sequential run.
func (s *comparisonService) CompareDirectories(ctx context.Context, base, improved storage.Source) (*models.BatchReport, error) {
	resolved, err := s.opts.Resolver.ResolveSources(ctx, base, improved)
	if err != nil {
		return nil, err
	}

	report := &models.BatchReport{
		RunID:       s.createRun(ctx, base.Location(), improved.Location()),
		BaseDir:     base.Location(),
		ImprovedDir: improved.Location(),
		StartedAt:   time.Now(),
		Unmatched:   resolved.Unmatched(),
		Pairs:       []models.PairReport{},
	}
	log := logger.WithFields(logrus.Fields{"run_id": report.RunID})
	for _, c := range resolved.Collisions {
		log.WithFields(logrus.Fields{
			"side":    c.Side,
			"key":     c.Key,
			"kept":    c.Kept,
			"dropped": c.Dropped,
		}).Warn("Duplicate pairing key")
	}

	s.publish(ctx, observer.Event{
		Type:        observer.RunStarted,
		RunID:       report.RunID,
		BaseDir:     report.BaseDir,
		ImprovedDir: report.ImprovedDir,
		TotalPairs:  len(resolved.Pairs),
		Unmatched:   report.Unmatched,
	})

	agg := aggregate.New(s.opts.SummaryThreshold)
	handle := func(o pairOutcome) {
		if o.failure != nil {
			report.Failures = append(report.Failures, *o.failure)
			s.publish(ctx, observer.Event{Type: observer.PairFailed, RunID: report.RunID, Failure: o.failure})
			return
		}
		report.Pairs = append(report.Pairs, *o.report)
		agg.Record(o.report.Metrics)
		s.publish(ctx, observer.Event{Type: observer.PairEvaluated, RunID: report.RunID, Pair: o.report})

		if agg.ShouldEmitSummary() {
			summary, err := s.summarize(agg)
			if err != nil {
				log.WithError(err).Error("Failed to build batch summary")
				return
			}
			report.Summaries = append(report.Summaries, *summary)
			s.publish(ctx, observer.Event{Type: observer.SummaryEmitted, RunID: report.RunID, Summary: summary})
		}
	}

	s.evaluateAll(ctx, log, resolved.Pairs, base, improved, handle)

	if agg.Count() > 0 {
		final, err := s.summarize(agg)
		if err != nil {
			return nil, err
		}
		report.Final = final
	} else {
		log.Warn("No pair was evaluated; batch has no final summary")
	}
	report.FinishedAt = time.Now()

	s.publish(ctx, observer.Event{Type: observer.RunCompleted, RunID: report.RunID, Report: report})

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("comparison interrupted after %d of %d pairs: %w",
			len(report.Pairs)+len(report.Failures), len(resolved.Pairs), err)
	}
	return report, nil
}

// evaluateAll hands the outcome of every scheduled pair to emit, in index
// order, as soon as all earlier pairs are done. emit runs on the calling
// goroutine. Cancelling ctx stops scheduling; pairs already running finish.
func (s *comparisonService) evaluateAll(ctx context.Context, log *logrus.Entry, pairs []models.ImagePair, base, improved storage.Source, emit func(pairOutcome)) {
	results := make(chan pairOutcome, len(pairs))
	pool := analyzer.NewWorkerPool(s.opts.Workers)
	pool.Start()
	s.trackPool(pool)
	log.WithFields(logrus.Fields{"workers": pool.Size(), "pairs": len(pairs)}).Debug("Evaluating pairs")

	go func() {
		defer func() {
			pool.Close()
			pool.Wait()
			s.retirePool(pool)
			close(results)
		}()
		for i, pair := range pairs {
			i, pair := i, pair
			if ctx.Err() != nil {
				return
			}
			pool.Submit(func() {
				// queued before cancellation; skip rather than fail the pair
				if ctx.Err() != nil {
					results <- pairOutcome{index: i, dropped: true}
					return
				}
				results <- s.evaluatePair(ctx, i, pair, base, improved)
			})
		}
	}()

	// reorder buffer keyed by pair index; jobs are submitted in index order
	// so the scheduled indices always form a prefix without gaps
	pending := make(map[int]pairOutcome)
	next := 0
	for o := range results {
		pending[o.index] = o
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			if !ready.dropped {
				emit(ready)
			}
			next++
		}
	}
}

func (s *comparisonService) evaluatePair(ctx context.Context, index int, pair models.ImagePair, base, improved storage.Source) pairOutcome {
	fail := func(err error) pairOutcome {
		if ctx.Err() != nil {
			return pairOutcome{index: index, dropped: true}
		}
		return pairOutcome{index: index, failure: &models.PairFailure{
			Index:     index,
			Pair:      pair,
			ErrorType: string(apperrors.TypeOf(err)),
			Message:   err.Error(),
		}}
	}

	start := time.Now()
	basePath, cleanupBase, err := base.Materialize(ctx, pair.Base)
	if err != nil {
		return fail(err)
	}
	defer cleanupBase()
	improvedPath, cleanupImproved, err := improved.Materialize(ctx, pair.Improved)
	if err != nil {
		return fail(err)
	}
	defer cleanupImproved()

	report, err := s.evaluate(ctx, basePath, improvedPath)
	if err != nil {
		return fail(err)
	}
	report.Index = index
	report.Pair = pair
	report.DurationMs = time.Since(start).Milliseconds()
	return pairOutcome{index: index, report: report}
}

func (s *comparisonService) evaluate(ctx context.Context, basePath, improvedPath string) (*models.PairReport, error) {
	start := time.Now()
	rec, err := s.evaluator.Evaluate(ctx, basePath, improvedPath)
	if err != nil {
		return nil, err
	}
	return &models.PairReport{
		Metrics:     rec.Values(),
		Diagnostics: rec.Diagnostics(),
		Result:      s.scorer.ScoreRecord(rec),
		DurationMs:  time.Since(start).Milliseconds(),
	}, nil
}

func (s *comparisonService) trackPool(pool *analyzer.WorkerPool) {
	s.poolMu.Lock()
	defer s.poolMu.Unlock()
	s.live[pool] = struct{}{}
}

func (s *comparisonService) retirePool(pool *analyzer.WorkerPool) {
	stats := pool.GetStats()
	s.poolMu.Lock()
	defer s.poolMu.Unlock()
	delete(s.live, pool)
	s.finished.TotalJobs += stats.TotalJobs
	s.finished.CompletedJobs += stats.CompletedJobs
}

// PoolStats implements PoolReporter
func (s *comparisonService) PoolStats() analyzer.PoolStats {
	s.poolMu.Lock()
	defer s.poolMu.Unlock()
	total := s.finished
	for pool := range s.live {
		stats := pool.GetStats()
		total.Workers += stats.Workers
		total.TotalJobs += stats.TotalJobs
		total.CompletedJobs += stats.CompletedJobs
		total.ActiveWorkers += stats.ActiveWorkers
	}
	return total
}

func (s *comparisonService) summarize(agg *aggregate.Aggregator) (*models.BatchSummary, error) {
	averages, err := agg.Averages()
	if err != nil {
		return nil, err
	}
	result, err := s.scorer.Score(averages)
	if err != nil {
		return nil, err
	}
	return &models.BatchSummary{
		Comparisons: agg.Count(),
		Averages:    averages,
		Result:      result,
	}, nil
}

// createRun opens a run in the history store, falling back to an unstored id
func (s *comparisonService) createRun(ctx context.Context, baseDir, improvedDir string) string {
	if s.runs != nil {
		id, err := s.runs.CreateRun(ctx, baseDir, improvedDir)
		if err == nil {
			return id
		}
		logger.WithError(err).Warn("Failed to record run; continuing without history")
	}
	return uuid.New().String()
}

func (s *comparisonService) publish(ctx context.Context, event observer.Event) {
	s.publisher.NotifyObservers(ctx, event)
}

// ComparePair evaluates two local files
func (s *comparisonService) ComparePair(ctx context.Context, basePath, improvedPath string) (*models.PairReport, error) {
	report, err := s.evaluate(ctx, basePath, improvedPath)
	if err != nil {
		return nil, err
	}
	report.Pair = models.ImagePair{
		Key:      pairing.DeriveKey(filepath.Base(basePath), s.opts.Resolver.BaseMarker),
		Base:     basePath,
		Improved: improvedPath,
	}
	return report, nil
}

// CompareURLs fetches both images and evaluates them
func (s *comparisonService) CompareURLs(ctx context.Context, baseURL, improvedURL string) (*models.PairReport, error) {
	if s.fetcher == nil {
		return nil, apperrors.NewValidationError("image download is not configured", nil)
	}

	basePath, cleanupBase, err := s.fetcher.Fetch(ctx, baseURL)
	if err != nil {
		return nil, err
	}
	defer cleanupBase()
	improvedPath, cleanupImproved, err := s.fetcher.Fetch(ctx, improvedURL)
	if err != nil {
		return nil, err
	}
	defer cleanupImproved()

	report, err := s.ComparePair(ctx, basePath, improvedPath)
	if err != nil {
		return nil, err
	}
	report.Pair = models.ImagePair{Key: report.Pair.Key, Base: baseURL, Improved: improvedURL}
	return report, nil
}

// Score applies the configured weight table
func (s *comparisonService) Score(values models.MetricValues) (models.ScoreResult, error) {
	return s.scorer.Score(values)
}

// GetRun returns a stored run with its pairs
func (s *comparisonService) GetRun(ctx context.Context, runID string) (*models.RunResponse, error) {
	if s.runs == nil {
		return nil, apperrors.NewNotFoundError("run history is disabled", nil)
	}
	run, err := s.runs.GetRun(ctx, runID)
	if errors.Is(err, repository.ErrRunNotFound) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("run %s not found", runID), err)
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load run", err)
	}
	pairs, err := s.runs.ListPairs(ctx, runID)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load run pairs", err)
	}
	failures, err := s.runs.ListFailures(ctx, runID)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load run failures", err)
	}
	if pairs == nil {
		pairs = []models.PairReport{}
	}
	return &models.RunResponse{Run: *run, Pairs: pairs, Failures: failures}, nil
}

// ListRuns returns the most recent stored runs
func (s *comparisonService) ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	if s.runs == nil {
		return nil, apperrors.NewNotFoundError("run history is disabled", nil)
	}
	runs, err := s.runs.ListRuns(ctx, limit)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list runs", err)
	}
	return runs, nil
}
