package analyzer

import (
	"fmt"
	"time"

	"github.com/anime-shed/image-eval-go/internal/metrics"
)

// Options configures pair evaluation
type Options struct {
	// VMAF
	SkipVMAF    bool
	VMAFTimeout time.Duration

	// Canny hysteresis thresholds for edge MSE
	EdgeLowThreshold  float64
	EdgeHighThreshold float64

	// Sequential disables the per-pair metric fan-out
	Sequential bool
}

// DefaultOptions returns default evaluation options
func DefaultOptions() Options {
	return Options{
		SkipVMAF:          false,
		VMAFTimeout:       2 * time.Minute,
		EdgeLowThreshold:  metrics.DefaultEdgeLowThreshold,
		EdgeHighThreshold: metrics.DefaultEdgeHighThreshold,
	}
}

// WithoutVMAF disables the ffmpeg metric; vmaf is reported as 0
func (opts Options) WithoutVMAF() Options {
	opts.SkipVMAF = true
	return opts
}

// WithEdgeThresholds overrides the Canny thresholds
func (opts Options) WithEdgeThresholds(low, high float64) Options {
	opts.EdgeLowThreshold = low
	opts.EdgeHighThreshold = high
	return opts
}

// fingerprint identifies the option values that change metric output
func (opts Options) fingerprint() string {
	return fmt.Sprintf("vmaf=%t edges=%g/%g", !opts.SkipVMAF, opts.EdgeLowThreshold, opts.EdgeHighThreshold)
}
