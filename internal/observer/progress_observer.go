package observer

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// ProgressObserver drives a terminal progress bar over the pairs of a run
type ProgressObserver struct {
	mu  sync.Mutex
	out io.Writer
	bar *progressbar.ProgressBar
}

// NewProgressObserver renders to out, usually stderr
func NewProgressObserver(out io.Writer) *ProgressObserver {
	return &ProgressObserver{out: out}
}

// GetObserverName returns the observer name
func (o *ProgressObserver) GetObserverName() string {
	return "progress_observer"
}

// OnEvent advances the bar
func (o *ProgressObserver) OnEvent(_ context.Context, event Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.Type {
	case RunStarted:
		o.bar = progressbar.NewOptions(event.TotalPairs,
			progressbar.OptionSetDescription("Comparing pairs"),
			progressbar.OptionSetWriter(o.out),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("pairs"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "█",
				SaucerHead:    "█",
				SaucerPadding: "░",
				BarStart:      "|",
				BarEnd:        "|",
			}),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionSetElapsedTime(true),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(o.out)
			}),
		)
	case PairEvaluated, PairFailed:
		if o.bar != nil {
			_ = o.bar.Add(1)
		}
	case RunCompleted:
		if o.bar != nil {
			_ = o.bar.Finish()
			o.bar = nil
		}
	}
}

// Current returns the number of pairs handled in the active run
func (o *ProgressObserver) Current() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.bar == nil {
		return 0
	}
	return int64(o.bar.State().CurrentNum)
}
