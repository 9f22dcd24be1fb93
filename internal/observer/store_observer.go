package observer

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/anime-shed/image-eval-go/internal/repository"
)

// StoreObserver records pair outcomes and the final summary in the run history.
// The run itself is created by the pipeline so its id is known up front.
type StoreObserver struct {
	repo   repository.RunRepository
	logger *logrus.Logger
}

// NewStoreObserver creates a new store observer
func NewStoreObserver(repo repository.RunRepository, logger *logrus.Logger) *StoreObserver {
	return &StoreObserver{repo: repo, logger: logger}
}

// GetObserverName returns the observer name
func (o *StoreObserver) GetObserverName() string {
	return "store_observer"
}

// OnEvent persists the event. Store failures are logged; they never stop a run.
func (o *StoreObserver) OnEvent(ctx context.Context, event Event) {
	if event.RunID == "" {
		return
	}

	var err error
	switch event.Type {
	case PairEvaluated:
		if event.Pair != nil {
			err = o.repo.SavePair(ctx, event.RunID, *event.Pair)
		}
	case PairFailed:
		if event.Failure != nil {
			err = o.repo.SaveFailure(ctx, event.RunID, *event.Failure)
		}
	case RunCompleted:
		if event.Report != nil {
			// a completed run outlives a cancelled context
			err = o.repo.CompleteRun(context.WithoutCancel(ctx), event.RunID, event.Report.Final)
		}
	}
	if err != nil {
		o.logger.WithFields(logrus.Fields{
			"run_id":     event.RunID,
			"event_type": event.Type,
		}).WithError(err).Error("Failed to store run event")
	}
}
