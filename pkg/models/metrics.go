package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Metric names a weighted image-quality measurement
type Metric string

const (
	MetricMSE         Metric = "mse"
	MetricEdgeMSE     Metric = "edge_mse"
	MetricFFTMSE      Metric = "fft_mse"
	MetricSSIM        Metric = "ssim"
	MetricMSSSIM      Metric = "ms_ssim"
	MetricGSIM        Metric = "gsim"
	MetricPSNR        Metric = "psnr"
	MetricBrisqueDiff Metric = "brisque_diff"
	MetricHistCorr    Metric = "hist_corr"
	MetricEntropyDiff Metric = "entropy_diff"
	MetricVMAF        Metric = "vmaf"
)

var scoredMetrics = []Metric{
	MetricMSE,
	MetricSSIM,
	MetricPSNR,
	MetricBrisqueDiff,
	MetricHistCorr,
	MetricEdgeMSE,
	MetricEntropyDiff,
	MetricFFTMSE,
	MetricMSSSIM,
	MetricGSIM,
	MetricVMAF,
}

// ScoredMetrics returns the weighted metric set in report order
func ScoredMetrics() []Metric {
	out := make([]Metric, len(scoredMetrics))
	copy(out, scoredMetrics)
	return out
}

// ParseMetric resolves a metric name, case-insensitively
func ParseMetric(name string) (Metric, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, m := range scoredMetrics {
		if string(m) == name {
			return m, true
		}
	}
	return "", false
}

// MetricValues maps metric names to measurements.
// Non-finite values survive JSON as the strings "+Inf", "-Inf" and "NaN".
type MetricValues map[Metric]float64

// Clone returns an independent copy
func (v MetricValues) Clone() MetricValues {
	out := make(MetricValues, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// MarshalJSON implements json.Marshaler
func (v MetricValues) MarshalJSON() ([]byte, error) {
	raw := make(map[string]interface{}, len(v))
	for k, val := range v {
		raw[string(k)] = encodeFloat(val)
	}
	return json.Marshal(raw)
}

// UnmarshalJSON implements json.Unmarshaler
func (v *MetricValues) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseMetricValues(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseMetricValues converts a generic decoded document (JSON, YAML or TOML)
// into MetricValues. Unknown keys are rejected so typos do not silently
// become missing metrics.
func ParseMetricValues(raw map[string]interface{}) (MetricValues, error) {
	out := make(MetricValues, len(raw))
	for key, val := range raw {
		m, ok := ParseMetric(key)
		if !ok {
			return nil, fmt.Errorf("unknown metric %q", key)
		}
		f, err := decodeFloat(val)
		if err != nil {
			return nil, fmt.Errorf("metric %q: %w", key, err)
		}
		out[m] = f
	}
	return out, nil
}

func encodeFloat(f float64) interface{} {
	switch {
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	case math.IsNaN(f):
		return "NaN"
	}
	return f
}

func decodeFloat(val interface{}) (float64, error) {
	switch x := val.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "+inf", "inf", "infinity":
			return math.Inf(1), nil
		case "-inf", "-infinity":
			return math.Inf(-1), nil
		case "nan":
			return math.NaN(), nil
		}
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, fmt.Errorf("unsupported value type %T", val)
	}
}

// MetricRecord holds every measurement for one base/improved pair.
// It is built once by the evaluator and passed by value.
type MetricRecord struct {
	MSE         float64
	EdgeMSE     float64
	FFTMSE      float64
	SSIM        float64
	MSSSIM      float64
	GSIM        float64
	PSNR        float64
	BrisqueDiff float64
	HistCorr    float64
	EntropyDiff float64
	VMAF        float64

	// Diagnostics, reported but not weighted
	BrisqueBase          float64
	BrisqueImproved      float64
	EntropyBase          float64
	EntropyImproved      float64
	ColorfulnessBase     float64
	ColorfulnessImproved float64
}

// Values returns the complete weighted metric set
func (r MetricRecord) Values() MetricValues {
	return MetricValues{
		MetricMSE:         r.MSE,
		MetricEdgeMSE:     r.EdgeMSE,
		MetricFFTMSE:      r.FFTMSE,
		MetricSSIM:        r.SSIM,
		MetricMSSSIM:      r.MSSSIM,
		MetricGSIM:        r.GSIM,
		MetricPSNR:        r.PSNR,
		MetricBrisqueDiff: r.BrisqueDiff,
		MetricHistCorr:    r.HistCorr,
		MetricEntropyDiff: r.EntropyDiff,
		MetricVMAF:        r.VMAF,
	}
}

// Diagnostics returns the per-image values that are not part of the score
func (r MetricRecord) Diagnostics() Diagnostics {
	return Diagnostics{
		BrisqueBase:          r.BrisqueBase,
		BrisqueImproved:      r.BrisqueImproved,
		EntropyBase:          r.EntropyBase,
		EntropyImproved:      r.EntropyImproved,
		ColorfulnessBase:     r.ColorfulnessBase,
		ColorfulnessImproved: r.ColorfulnessImproved,
	}
}

// RecordFromValues rebuilds a record from stored values and diagnostics
func RecordFromValues(v MetricValues, d Diagnostics) MetricRecord {
	return MetricRecord{
		MSE:                  v[MetricMSE],
		EdgeMSE:              v[MetricEdgeMSE],
		FFTMSE:               v[MetricFFTMSE],
		SSIM:                 v[MetricSSIM],
		MSSSIM:               v[MetricMSSSIM],
		GSIM:                 v[MetricGSIM],
		PSNR:                 v[MetricPSNR],
		BrisqueDiff:          v[MetricBrisqueDiff],
		HistCorr:             v[MetricHistCorr],
		EntropyDiff:          v[MetricEntropyDiff],
		VMAF:                 v[MetricVMAF],
		BrisqueBase:          d.BrisqueBase,
		BrisqueImproved:      d.BrisqueImproved,
		EntropyBase:          d.EntropyBase,
		EntropyImproved:      d.EntropyImproved,
		ColorfulnessBase:     d.ColorfulnessBase,
		ColorfulnessImproved: d.ColorfulnessImproved,
	}
}

// Diagnostics are per-image values reported alongside a pair
type Diagnostics struct {
	BrisqueBase          float64 `json:"brisque_base"`
	BrisqueImproved      float64 `json:"brisque_improved"`
	EntropyBase          float64 `json:"entropy_base"`
	EntropyImproved      float64 `json:"entropy_improved"`
	ColorfulnessBase     float64 `json:"colorfulness_base"`
	ColorfulnessImproved float64 `json:"colorfulness_improved"`
}
