package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Verdict is the categorical reading of a score
type Verdict string

const (
	VerdictSignificantlyBetter Verdict = "significantly better"
	VerdictNotableEnhancement  Verdict = "notable enhancement"
	VerdictSlightImprovement   Verdict = "slight improvement"
	VerdictNoClearImprovement  Verdict = "no clear improvement"
)

// Summary returns the long-form sentence for a verdict
func (v Verdict) Summary() string {
	switch v {
	case VerdictSignificantlyBetter:
		return "The improved image is significantly better than the base image."
	case VerdictNotableEnhancement:
		return "The improved image shows notable enhancement compared to the base image."
	case VerdictSlightImprovement:
		return "The improved image has slight improvements over the base image."
	default:
		return "The improved image does not show clear improvements over the base image."
	}
}

// ScoreResult pairs a weighted score with its verdict
type ScoreResult struct {
	Score   float64 `json:"-"`
	Verdict Verdict `json:"verdict"`
}

// String renders the result the way the CLI prints it
func (r ScoreResult) String() string {
	return fmt.Sprintf("%s (Score: %.2f)", r.Verdict.Summary(), r.Score)
}

type scoreResultJSON struct {
	Score   interface{} `json:"score"`
	Verdict Verdict     `json:"verdict"`
	Summary string      `json:"summary"`
}

// MarshalJSON implements json.Marshaler; an infinite score is encoded as a string
func (r ScoreResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(scoreResultJSON{
		Score:   encodeFloat(r.Score),
		Verdict: r.Verdict,
		Summary: r.Verdict.Summary(),
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (r *ScoreResult) UnmarshalJSON(data []byte) error {
	var raw scoreResultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	score, err := decodeFloat(raw.Score)
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}
	r.Score = score
	r.Verdict = raw.Verdict
	return nil
}

// ImagePair is one matched base/improved listing entry
type ImagePair struct {
	Key      string `json:"key"`
	Base     string `json:"base"`
	Improved string `json:"improved"`
}

// PairReport is the outcome of a successfully evaluated pair
type PairReport struct {
	Index       int          `json:"index"`
	Pair        ImagePair    `json:"pair"`
	Metrics     MetricValues `json:"metrics"`
	Diagnostics Diagnostics  `json:"diagnostics"`
	Result      ScoreResult  `json:"result"`
	DurationMs  int64        `json:"duration_ms"`
}

// Record rebuilds the metric record carried by the report
func (p PairReport) Record() MetricRecord {
	return RecordFromValues(p.Metrics, p.Diagnostics)
}

// PairFailure records a skipped pair
type PairFailure struct {
	Index     int       `json:"index"`
	Pair      ImagePair `json:"pair"`
	ErrorType string    `json:"error_type"`
	Message   string    `json:"message"`
}

// BatchSummary is the verdict over the running averages after Comparisons pairs
type BatchSummary struct {
	Comparisons int          `json:"comparisons"`
	Averages    MetricValues `json:"averages"`
	Result      ScoreResult  `json:"result"`
}

// BatchReport is the full outcome of a directory comparison
type BatchReport struct {
	RunID       string         `json:"run_id"`
	BaseDir     string         `json:"base_dir"`
	ImprovedDir string         `json:"improved_dir"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Pairs       []PairReport   `json:"pairs"`
	Failures    []PairFailure  `json:"failures,omitempty"`
	Unmatched   []string       `json:"unmatched,omitempty"`
	Summaries   []BatchSummary `json:"summaries,omitempty"`
	Final       *BatchSummary  `json:"final,omitempty"`
}

// RunRecord is a stored batch run
type RunRecord struct {
	ID          string        `json:"id"`
	BaseDir     string        `json:"base_dir"`
	ImprovedDir string        `json:"improved_dir"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
	Comparisons int           `json:"comparisons"`
	Failures    int           `json:"failures"`
	Final       *BatchSummary `json:"final,omitempty"`
}
