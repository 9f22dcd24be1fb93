package models

// ScoreRequest asks the API to score an already computed metric record
type ScoreRequest struct {
	Metrics MetricValues `json:"metrics" binding:"required"`
}

// CompareRequest asks the API to fetch and compare two images
type CompareRequest struct {
	BaseURL     string `json:"base_url" binding:"required,url"`
	ImprovedURL string `json:"improved_url" binding:"required,url"`
}

// BatchRequest asks the API to compare two sources (local directories or az:// prefixes)
type BatchRequest struct {
	BaseDir     string `json:"base_dir" binding:"required"`
	ImprovedDir string `json:"improved_dir" binding:"required"`
}

// RunResponse is a stored run with its pair results
type RunResponse struct {
	Run      RunRecord     `json:"run"`
	Pairs    []PairReport  `json:"pairs"`
	Failures []PairFailure `json:"failures,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"`
	// PartialReport holds the pairs finished before a batch was interrupted
	PartialReport *BatchReport `json:"partial_report,omitempty"`
}
