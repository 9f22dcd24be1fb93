package observer

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anime-shed/image-eval-go/internal/repository"
	"github.com/anime-shed/image-eval-go/pkg/models"
)

type recordingObserver struct {
	name   string
	events []EventType
	panics bool
}

func (o *recordingObserver) OnEvent(_ context.Context, e Event) {
	o.events = append(o.events, e.Type)
	if o.panics {
		panic("boom")
	}
}

func (o *recordingObserver) GetObserverName() string { return o.name }

func pairEvent(idx int, verdict models.Verdict) Event {
	return Event{
		Type:  PairEvaluated,
		RunID: "run-1",
		Pair: &models.PairReport{
			Index: idx,
			Pair:  models.ImagePair{Key: "a", Base: "a_base.png", Improved: "a_improved.png"},
			Metrics: models.MetricValues{
				models.MetricMSE:  12.5,
				models.MetricSSIM: 0.91,
			},
			Diagnostics: models.Diagnostics{ColorfulnessBase: 10, EntropyImproved: 7.2},
			Result:      models.ScoreResult{Score: 0.42, Verdict: verdict},
			DurationMs:  200,
		},
	}
}

func TestPublisherDeliversInOrderAndSurvivesPanics(t *testing.T) {
	p := NewEventPublisher()
	bad := &recordingObserver{name: "bad", panics: true}
	good := &recordingObserver{name: "good"}
	p.Subscribe(bad)
	p.Subscribe(good)

	ctx := context.Background()
	p.NotifyObservers(ctx, Event{Type: RunStarted})
	p.NotifyObservers(ctx, pairEvent(0, models.VerdictSlightImprovement))
	p.NotifyObservers(ctx, Event{Type: RunCompleted})

	// delivery is synchronous, so no waiting is needed
	assert.Equal(t, []EventType{RunStarted, PairEvaluated, RunCompleted}, good.events)
	assert.Len(t, bad.events, 3)

	p.Unsubscribe(bad)
	p.NotifyObservers(ctx, Event{Type: RunStarted})
	assert.Len(t, bad.events, 3)
	assert.Len(t, good.events, 4)
}

func TestMetricsObserverCounts(t *testing.T) {
	o := NewMetricsObserver()
	ctx := context.Background()
	o.OnEvent(ctx, Event{Type: RunStarted})
	o.OnEvent(ctx, pairEvent(0, models.VerdictSlightImprovement))
	o.OnEvent(ctx, pairEvent(1, models.VerdictSlightImprovement))
	o.OnEvent(ctx, Event{Type: PairFailed, Failure: &models.PairFailure{ErrorType: "image_load"}})
	o.OnEvent(ctx, Event{Type: SummaryEmitted, Summary: &models.BatchSummary{}})

	m := o.GetMetrics()
	assert.Equal(t, int64(1), m["runs"])
	assert.Equal(t, int64(2), m["evaluated_pairs"])
	assert.Equal(t, int64(1), m["failed_pairs"])
	assert.Equal(t, int64(1), m["summaries"])
	assert.Equal(t, 200*time.Millisecond, m["avg_processing_time"])
	assert.Equal(t, map[string]int64{"image_load": 1}, m["failures_by_type"])
}

func TestLoggingObserverLevels(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	o := NewLoggingObserver(log)
	ctx := context.Background()

	o.OnEvent(ctx, Event{Type: RunStarted, TotalPairs: 3})
	o.OnEvent(ctx, pairEvent(0, models.VerdictSlightImprovement))
	o.OnEvent(ctx, Event{Type: PairFailed, Failure: &models.PairFailure{ErrorType: "image_load", Message: "bad"}})

	entries := hook.AllEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, logrus.InfoLevel, entries[0].Level)
	assert.Equal(t, 3, entries[0].Data["pairs"])
	assert.Equal(t, logrus.DebugLevel, entries[1].Level)
	assert.Equal(t, logrus.WarnLevel, entries[2].Level)
	assert.Equal(t, "image_load", entries[2].Data["error_type"])
}

func TestConsoleObserverPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	o := NewConsoleObserver(&buf, false)
	ctx := context.Background()

	o.OnEvent(ctx, Event{Type: RunStarted, Unmatched: []string{"c_base.png"}})
	o.OnEvent(ctx, pairEvent(0, models.VerdictSlightImprovement))
	final := &models.BatchSummary{
		Comparisons: 1,
		Averages:    models.MetricValues{models.MetricSSIM: 0.91},
		Result:      models.ScoreResult{Score: 0.42, Verdict: models.VerdictSlightImprovement},
	}
	o.OnEvent(ctx, Event{Type: RunCompleted, Report: &models.BatchReport{Final: final}})

	out := buf.String()
	assert.Contains(t, out, "Skipping c_base.png")
	assert.Contains(t, out, "Comparing a_base.png and a_improved.png:\n")
	assert.Contains(t, out, "  MSE: 12.5\n")
	assert.Contains(t, out, "  Colorfulness for a_base.png: 10\n")
	assert.Contains(t, out, "  Entropy for a_improved.png: 7.2\n")
	assert.Contains(t, out, "The improved image has slight improvements over the base image. (Score: 0.42)")
	assert.Contains(t, out, "FINAL AVERAGE\n")
	assert.Contains(t, out, "SSIM: 0.9100\n")
	assert.Contains(t, out, "Conclusion on images: ")
	assert.NotContains(t, out, "\x1b[", "color disabled")
}

func TestConsoleObserverColors(t *testing.T) {
	var buf bytes.Buffer
	o := NewConsoleObserver(&buf, true)
	o.OnEvent(context.Background(), pairEvent(0, models.VerdictSignificantlyBetter))
	assert.Contains(t, buf.String(), "\x1b[32m", "significant improvements print in green")
}

func TestProgressObserverCounts(t *testing.T) {
	o := NewProgressObserver(io.Discard)
	ctx := context.Background()
	o.OnEvent(ctx, Event{Type: RunStarted, TotalPairs: 3})
	o.OnEvent(ctx, pairEvent(0, models.VerdictSlightImprovement))
	o.OnEvent(ctx, Event{Type: PairFailed, Failure: &models.PairFailure{}})
	assert.Equal(t, int64(2), o.Current())

	o.OnEvent(ctx, Event{Type: RunCompleted})
	assert.Equal(t, int64(0), o.Current())
}

func TestStoreObserverPersistsRun(t *testing.T) {
	repo, err := repository.NewSQLiteRunRepository(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()
	runID, err := repo.CreateRun(ctx, "base", "improved")
	require.NoError(t, err)

	log, hook := test.NewNullLogger()
	o := NewStoreObserver(repo, log)

	ev := pairEvent(0, models.VerdictSlightImprovement)
	ev.RunID = runID
	o.OnEvent(ctx, ev)
	o.OnEvent(ctx, Event{Type: PairFailed, RunID: runID, Failure: &models.PairFailure{Index: 1, ErrorType: "image_load"}})
	o.OnEvent(ctx, Event{Type: RunCompleted, RunID: runID, Report: &models.BatchReport{}})
	assert.Empty(t, hook.AllEntries())

	run, err := repo.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Comparisons)
	assert.Equal(t, 1, run.Failures)
	assert.NotNil(t, run.FinishedAt)

	// writes after completion are logged, not raised
	o.OnEvent(ctx, ev)
	require.Len(t, hook.AllEntries(), 1)
	assert.True(t, strings.Contains(hook.LastEntry().Message, "Failed to store"))
}
