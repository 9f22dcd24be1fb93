package factory

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/anime-shed/image-eval-go/internal/analyzer"
	"github.com/anime-shed/image-eval-go/internal/config"
	apperrors "github.com/anime-shed/image-eval-go/internal/errors"
	"github.com/anime-shed/image-eval-go/internal/metrics"
	"github.com/anime-shed/image-eval-go/internal/pairing"
	"github.com/anime-shed/image-eval-go/internal/storage"
)

// StorageType represents different types of source backends
type StorageType string

const (
	// LocalStorage for local file system directories
	LocalStorage StorageType = "local"
	// AzureStorage for Azure blob container prefixes
	AzureStorage StorageType = "azure"
)

// StorageTypeOf reports which backend serves a source URI
func StorageTypeOf(uri string) StorageType {
	if strings.HasPrefix(uri, storage.AzureScheme+"://") {
		return AzureStorage
	}
	return LocalStorage
}

// SourceFactory opens sources by URI. The Azure client is created on first use
// so that purely local runs need no Azure credentials.
type SourceFactory struct {
	azure config.AzureConfig

	mu     sync.Mutex
	client *azblob.Client
}

// NewSourceFactory creates a source factory
func NewSourceFactory(azure config.AzureConfig) *SourceFactory {
	return &SourceFactory{azure: azure}
}

// Open returns the source for a local directory or an az://container/prefix URI
func (f *SourceFactory) Open(uri string) (storage.Source, error) {
	switch StorageTypeOf(uri) {
	case AzureStorage:
		container, prefix, err := storage.ParseAzureURI(uri)
		if err != nil {
			return nil, apperrors.NewValidationError(err.Error(), err)
		}
		client, err := f.azureClient()
		if err != nil {
			return nil, err
		}
		return storage.NewAzureSource(client, container, prefix), nil
	default:
		if uri == "" {
			return nil, apperrors.NewValidationError("source cannot be empty", nil)
		}
		return storage.NewLocalSource(uri), nil
	}
}

func (f *SourceFactory) azureClient() (*azblob.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.client != nil {
		return f.client, nil
	}
	client, err := storage.NewAzureClient(f.azure.ConnectionString, f.azure.AccountName, f.azure.AccountKey)
	if err != nil {
		return nil, apperrors.NewValidationError("azure storage is not configured", err)
	}
	f.client = client
	return client, nil
}

// NewQualityScorer returns the external BRISQUE command when one is configured,
// otherwise the in-process naturalness scorer
func NewQualityScorer(cfg config.MetricsConfig) (metrics.NoReferenceScorer, error) {
	if strings.TrimSpace(cfg.BrisqueCommand) == "" {
		return metrics.NewNaturalnessScorer(), nil
	}
	scorer, err := metrics.NewCommandScorer(cfg.BrisqueCommand, cfg.BrisqueTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid brisque command: %w", err)
	}
	return scorer, nil
}

// NewVMAFScorer returns the ffmpeg scorer, or nil when VMAF is disabled
func NewVMAFScorer(cfg config.MetricsConfig) metrics.FullReferenceScorer {
	if cfg.SkipVMAF {
		return nil
	}
	return metrics.NewFFmpegVMAF(cfg.FFmpegPath, cfg.VMAFTimeout)
}

// EvaluatorOptions maps the metrics configuration to evaluation options
func EvaluatorOptions(cfg config.MetricsConfig) analyzer.Options {
	opts := analyzer.DefaultOptions().WithEdgeThresholds(cfg.EdgeLow, cfg.EdgeHigh)
	opts.VMAFTimeout = cfg.VMAFTimeout
	opts.Sequential = cfg.Sequential
	if cfg.SkipVMAF {
		opts = opts.WithoutVMAF()
	}
	return opts
}

// NewEvaluator builds the pair evaluator described by the metrics configuration
func NewEvaluator(cfg config.MetricsConfig) (*analyzer.Evaluator, error) {
	quality, err := NewQualityScorer(cfg)
	if err != nil {
		return nil, err
	}
	return analyzer.NewEvaluator(quality, NewVMAFScorer(cfg), EvaluatorOptions(cfg)), nil
}

// NewResolver builds the pairing resolver for the configured markers and policy
func NewResolver(cfg config.CompareConfig) (*pairing.Resolver, error) {
	r := pairing.NewResolver()
	if cfg.BaseMarker != "" {
		r.BaseMarker = cfg.BaseMarker
	}
	if cfg.ImprovedMarker != "" {
		r.ImprovedMarker = cfg.ImprovedMarker
	}
	switch cfg.CollisionPolicy {
	case "", "last":
		r.Policy = pairing.LastEntryWins
	case "first":
		r.Policy = pairing.FirstEntryWins
	default:
		return nil, fmt.Errorf("unsupported collision policy: %s", cfg.CollisionPolicy)
	}
	return r, nil
}
