package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anime-shed/image-eval-go/pkg/models"
)

// EventType represents the type of batch event
type EventType string

const (
	// RunStarted when pairing is done and evaluation begins
	RunStarted EventType = "run_started"
	// PairEvaluated when a pair has a metric record and a score
	PairEvaluated EventType = "pair_evaluated"
	// PairFailed when a pair is skipped
	PairFailed EventType = "pair_failed"
	// SummaryEmitted when the comparison count exceeds the summary threshold
	SummaryEmitted EventType = "batch_summary"
	// RunCompleted when every pair has been handled
	RunCompleted EventType = "run_completed"
)

// Event is one step of a batch run. Only the payload matching Type is set.
type Event struct {
	Type        EventType `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	RunID       string    `json:"run_id,omitempty"`
	BaseDir     string    `json:"base_dir,omitempty"`
	ImprovedDir string    `json:"improved_dir,omitempty"`

	// RunStarted
	TotalPairs int      `json:"total_pairs,omitempty"`
	Unmatched  []string `json:"unmatched,omitempty"`

	Pair    *models.PairReport   `json:"pair,omitempty"`
	Failure *models.PairFailure  `json:"failure,omitempty"`
	Summary *models.BatchSummary `json:"summary,omitempty"`
	Report  *models.BatchReport  `json:"report,omitempty"`
}

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event Event)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event Event)
}

// EventPublisher implements the Subject interface. Observers are notified
// synchronously in subscription order so console output follows pair order.
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers notifies all observers of an event
func (p *EventPublisher) NotifyObservers(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, observer := range observers {
		notify(ctx, observer, event)
	}
}

func notify(ctx context.Context, obs Observer, event Event) {
	defer func() {
		if r := recover(); r != nil {
			// Log panic but don't crash the run
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}

// LoggingObserver logs batch events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles batch events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event Event) {
	fields := logrus.Fields{
		"event_type": event.Type,
	}
	if event.RunID != "" {
		fields["run_id"] = event.RunID
	}

	switch event.Type {
	case RunStarted:
		fields["base_dir"] = event.BaseDir
		fields["improved_dir"] = event.ImprovedDir
		fields["pairs"] = event.TotalPairs
		fields["unmatched"] = len(event.Unmatched)
		o.logger.WithFields(fields).Info("Batch comparison started")
	case PairEvaluated:
		if p := event.Pair; p != nil {
			fields["key"] = p.Pair.Key
			fields["score"] = p.Result.Score
			fields["verdict"] = p.Result.Verdict
			fields["duration_ms"] = p.DurationMs
		}
		o.logger.WithFields(fields).Debug("Pair evaluated")
	case PairFailed:
		if f := event.Failure; f != nil {
			fields["key"] = f.Pair.Key
			fields["error_type"] = f.ErrorType
			fields["error"] = f.Message
		}
		o.logger.WithFields(fields).Warn("Pair skipped")
	case SummaryEmitted:
		if s := event.Summary; s != nil {
			fields["comparisons"] = s.Comparisons
			fields["score"] = s.Result.Score
			fields["verdict"] = s.Result.Verdict
		}
		o.logger.WithFields(fields).Info("Batch summary")
	case RunCompleted:
		if r := event.Report; r != nil {
			fields["pairs"] = len(r.Pairs)
			fields["failures"] = len(r.Failures)
			fields["duration"] = r.FinishedAt.Sub(r.StartedAt)
		}
		o.logger.WithFields(fields).Info("Batch comparison completed")
	default:
		o.logger.WithFields(fields).Info("Batch event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver collects counters from batch events
type MetricsObserver struct {
	mu                  sync.RWMutex
	runs                int64
	evaluatedPairs      int64
	failedPairs         int64
	summaries           int64
	totalProcessingTime time.Duration
	failuresByType      map[string]int64
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{failuresByType: make(map[string]int64)}
}

// OnEvent handles batch events by collecting counters
func (o *MetricsObserver) OnEvent(ctx context.Context, event Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.Type {
	case RunStarted:
		o.runs++
	case PairEvaluated:
		o.evaluatedPairs++
		if event.Pair != nil {
			o.totalProcessingTime += time.Duration(event.Pair.DurationMs) * time.Millisecond
		}
	case PairFailed:
		o.failedPairs++
		if event.Failure != nil {
			o.failuresByType[event.Failure.ErrorType]++
		}
	case SummaryEmitted:
		o.summaries++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current counters
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgProcessingTime := time.Duration(0)
	if o.evaluatedPairs > 0 {
		avgProcessingTime = o.totalProcessingTime / time.Duration(o.evaluatedPairs)
	}
	failures := make(map[string]int64, len(o.failuresByType))
	for k, v := range o.failuresByType {
		failures[k] = v
	}

	return map[string]interface{}{
		"runs":                  o.runs,
		"evaluated_pairs":       o.evaluatedPairs,
		"failed_pairs":          o.failedPairs,
		"summaries":             o.summaries,
		"failures_by_type":      failures,
		"total_processing_time": o.totalProcessingTime,
		"avg_processing_time":   avgProcessingTime,
	}
}
