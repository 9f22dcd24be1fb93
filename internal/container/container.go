package container

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/anime-shed/image-eval-go/internal/analyzer"
	"github.com/anime-shed/image-eval-go/internal/cache"
	"github.com/anime-shed/image-eval-go/internal/config"
	"github.com/anime-shed/image-eval-go/internal/factory"
	"github.com/anime-shed/image-eval-go/internal/logger"
	"github.com/anime-shed/image-eval-go/internal/observer"
	"github.com/anime-shed/image-eval-go/internal/repository"
	"github.com/anime-shed/image-eval-go/internal/service"
	"github.com/anime-shed/image-eval-go/internal/storage"
	"github.com/anime-shed/image-eval-go/internal/transport"
	"github.com/anime-shed/image-eval-go/pkg/scoring"
	"github.com/anime-shed/image-eval-go/pkg/validation"
)

// Container holds all application dependencies
type Container struct {
	cache     analyzer.MetricCache
	runs      repository.RunRepository
	publisher *observer.EventPublisher
	metrics   *observer.MetricsObserver
	sources   *factory.SourceFactory
	service   service.ComparisonService
	handler   http.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logger.Configure(cfg.Log.Level, cfg.Log.Format)

	// Build dependency graph
	evaluator, err := factory.NewEvaluator(cfg.Metrics)
	if err != nil {
		return nil, err
	}
	metricCache, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric cache: %w", err)
	}
	if metricCache != nil {
		evaluator = evaluator.WithCache(metricCache)
	}
	evalOpts := evaluator.Options()
	logger.WithFields(logrus.Fields{
		"skip_vmaf":    evalOpts.SkipVMAF,
		"vmaf_timeout": evalOpts.VMAFTimeout,
		"sequential":   evalOpts.Sequential,
		"cache":        cfg.Cache.Backend,
	}).Debug("Evaluator configured")

	scorer, err := scoring.NewScorerWithWeights(cfg.ScoreWeights())
	if err != nil {
		return nil, err
	}
	resolver, err := factory.NewResolver(cfg.Compare)
	if err != nil {
		return nil, err
	}

	var runs repository.RunRepository
	if cfg.Store.Path != "" {
		repo, err := repository.NewSQLiteRunRepository(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open run store: %w", err)
		}
		runs = repo
	}

	publisher := observer.NewEventPublisher()
	metricsObserver := observer.NewMetricsObserver()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(metricsObserver)
	if runs != nil {
		publisher.Subscribe(observer.NewStoreObserver(runs, logger.Logger))
	}

	fetchOpts := storage.DefaultHTTPFetcherOptions()
	fetchOpts.Timeout = cfg.Server.ImageFetchTimeout
	fetcher := storage.NewHTTPImageFetcher(fetchOpts)

	svc := service.NewComparisonService(evaluator, scorer, fetcher, publisher, runs, service.Options{
		Workers:          cfg.Compare.Workers,
		SummaryThreshold: cfg.Compare.SummaryThreshold,
		Resolver:         resolver,
	})

	sources := factory.NewSourceFactory(cfg.Azure)
	validator := validation.NewSourceValidator(cfg.Server.AllowLocalSources)
	c := &Container{
		cache:     metricCache,
		runs:      runs,
		publisher: publisher,
		metrics:   metricsObserver,
		sources:   sources,
		service:   svc,
	}
	c.handler = transport.NewHandler(svc, sources, validator, c, cfg.Server)
	return c, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Service returns the comparison service
func (c *Container) Service() service.ComparisonService {
	return c.service
}

// Sources returns the source factory
func (c *Container) Sources() *factory.SourceFactory {
	return c.sources
}

// Publisher returns the event publisher so callers can attach observers
func (c *Container) Publisher() observer.Subject {
	return c.publisher
}

// Stats returns the event counters, worker pool counters and, when the
// cache keeps them, cache lookup counters
func (c *Container) Stats() map[string]interface{} {
	stats := map[string]interface{}{"pipeline": c.metrics.GetMetrics()}
	if pools, ok := c.service.(service.PoolReporter); ok {
		stats["workers"] = pools.PoolStats()
	}
	if counters, ok := c.cache.(cache.StatsReporter); ok {
		stats["cache"] = counters.Stats()
	}
	return stats
}

// HasRunStore reports whether run history is persisted
func (c *Container) HasRunStore() bool {
	return c.runs != nil
}

// Close releases the run store and the cache connection
func (c *Container) Close() error {
	var firstErr error
	if closer, ok := c.cache.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			firstErr = err
		}
	}
	if c.runs != nil {
		if err := c.runs.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
