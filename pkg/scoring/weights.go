package scoring

import (
	"fmt"

	"github.com/anime-shed/image-eval-go/pkg/models"
)

// Weights is the per-metric weight table of the score function.
// The divisor of the weighted sum is always Total(), so a table can be
// rescaled without changing scores.
type Weights struct {
	MSE         float64 `json:"mse" yaml:"mse" toml:"mse"`
	EdgeMSE     float64 `json:"edge_mse" yaml:"edge_mse" toml:"edge_mse"`
	FFTMSE      float64 `json:"fft_mse" yaml:"fft_mse" toml:"fft_mse"`
	SSIM        float64 `json:"ssim" yaml:"ssim" toml:"ssim"`
	PSNR        float64 `json:"psnr" yaml:"psnr" toml:"psnr"`
	BrisqueDiff float64 `json:"brisque_diff" yaml:"brisque_diff" toml:"brisque_diff"`
	HistCorr    float64 `json:"hist_corr" yaml:"hist_corr" toml:"hist_corr"`
	EntropyDiff float64 `json:"entropy_diff" yaml:"entropy_diff" toml:"entropy_diff"`
	MSSSIM      float64 `json:"ms_ssim" yaml:"ms_ssim" toml:"ms_ssim"`
	GSIM        float64 `json:"gsim" yaml:"gsim" toml:"gsim"`
	VMAF        float64 `json:"vmaf" yaml:"vmaf" toml:"vmaf"`
}

// DefaultWeights returns the canonical eleven-metric table
func DefaultWeights() Weights {
	return Weights{
		MSE:         3,
		EdgeMSE:     3,
		FFTMSE:      3,
		SSIM:        4,
		PSNR:        3,
		BrisqueDiff: 4,
		HistCorr:    2,
		EntropyDiff: 1,
		MSSSIM:      4,
		GSIM:        4,
		VMAF:        2.5,
	}
}

// For returns the weight of a metric
func (w Weights) For(m models.Metric) float64 {
	switch m {
	case models.MetricMSE:
		return w.MSE
	case models.MetricEdgeMSE:
		return w.EdgeMSE
	case models.MetricFFTMSE:
		return w.FFTMSE
	case models.MetricSSIM:
		return w.SSIM
	case models.MetricPSNR:
		return w.PSNR
	case models.MetricBrisqueDiff:
		return w.BrisqueDiff
	case models.MetricHistCorr:
		return w.HistCorr
	case models.MetricEntropyDiff:
		return w.EntropyDiff
	case models.MetricMSSSIM:
		return w.MSSSIM
	case models.MetricGSIM:
		return w.GSIM
	case models.MetricVMAF:
		return w.VMAF
	}
	return 0
}

// Total is the sum of all weights
func (w Weights) Total() float64 {
	var total float64
	for _, m := range models.ScoredMetrics() {
		total += w.For(m)
	}
	return total
}

// Validate rejects negative weights and empty tables
func (w Weights) Validate() error {
	for _, m := range models.ScoredMetrics() {
		if w.For(m) < 0 {
			return fmt.Errorf("weight for %s must be >= 0 (got %g)", m, w.For(m))
		}
	}
	if w.Total() <= 0 {
		return fmt.Errorf("weights must sum to a positive value")
	}
	return nil
}
