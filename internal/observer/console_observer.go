package observer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mitchellh/colorstring"

	"github.com/anime-shed/image-eval-go/pkg/models"
)

// ConsoleObserver prints the human-readable batch report: one block per pair,
// a colored verdict line, the average report once past the threshold and a
// final average.
type ConsoleObserver struct {
	mu    sync.Mutex
	out   io.Writer
	color colorstring.Colorize
}

// NewConsoleObserver writes to out; color codes are stripped when useColor is false
func NewConsoleObserver(out io.Writer, useColor bool) *ConsoleObserver {
	return &ConsoleObserver{
		out: out,
		color: colorstring.Colorize{
			Colors:  colorstring.DefaultColors,
			Disable: !useColor,
			Reset:   true,
		},
	}
}

// GetObserverName returns the observer name
func (o *ConsoleObserver) GetObserverName() string {
	return "console_observer"
}

// OnEvent renders batch events
func (o *ConsoleObserver) OnEvent(_ context.Context, event Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.Type {
	case RunStarted:
		for _, name := range event.Unmatched {
			o.printf("[yellow]Skipping %s: no counterpart in the other directory\n", name)
		}
	case PairEvaluated:
		if event.Pair != nil {
			o.printPair(*event.Pair)
		}
	case PairFailed:
		if f := event.Failure; f != nil {
			o.printf("[red]Skipping %s and %s: %s\n\n", f.Pair.Base, f.Pair.Improved, f.Message)
		}
	case SummaryEmitted:
		if event.Summary != nil {
			o.printSummary(*event.Summary, fmt.Sprintf("AVERAGE AFTER %d COMPARISONS", event.Summary.Comparisons))
		}
	case RunCompleted:
		if r := event.Report; r != nil && r.Final != nil {
			o.printSummary(*r.Final, "FINAL AVERAGE")
		}
	}
}

func (o *ConsoleObserver) printPair(p models.PairReport) {
	d := p.Diagnostics
	m := p.Metrics

	var b strings.Builder
	fmt.Fprintf(&b, "Comparing %s and %s:\n", p.Pair.Base, p.Pair.Improved)
	fmt.Fprintf(&b, "  MSE: %v\n", m[models.MetricMSE])
	fmt.Fprintf(&b, "  SSIM: %v\n", m[models.MetricSSIM])
	fmt.Fprintf(&b, "  PSNR: %v\n", m[models.MetricPSNR])
	fmt.Fprintf(&b, "  BRISQUE Difference (Improved - Base): %v\n", m[models.MetricBrisqueDiff])
	fmt.Fprintf(&b, "  Histogram Correlation: %v\n", m[models.MetricHistCorr])
	fmt.Fprintf(&b, "  Colorfulness for %s: %v\n", p.Pair.Base, d.ColorfulnessBase)
	fmt.Fprintf(&b, "  Colorfulness for %s: %v\n", p.Pair.Improved, d.ColorfulnessImproved)
	fmt.Fprintf(&b, "  Edge MSE: %v\n", m[models.MetricEdgeMSE])
	fmt.Fprintf(&b, "  Entropy for %s: %v\n", p.Pair.Base, d.EntropyBase)
	fmt.Fprintf(&b, "  Entropy for %s: %v\n", p.Pair.Improved, d.EntropyImproved)
	fmt.Fprintf(&b, "  FFT MSE: %v\n", m[models.MetricFFTMSE])
	fmt.Fprintf(&b, "  MS-SSIM: %v\n", m[models.MetricMSSSIM])
	fmt.Fprintf(&b, "  GSIM: %v\n", m[models.MetricGSIM])
	fmt.Fprintf(&b, "  VMAF: %v\n", m[models.MetricVMAF])
	fmt.Fprint(o.out, b.String())

	o.printf(verdictColor(p.Result.Verdict)+"%s\n\n", p.Result.String())
}

func (o *ConsoleObserver) printSummary(s models.BatchSummary, title string) {
	o.printf("[magenta]%s\n", title)
	for _, metric := range models.ScoredMetrics() {
		fmt.Fprintf(o.out, "%s: %.4f\n", strings.ToUpper(string(metric)), s.Averages[metric])
	}
	o.printf("[green]Conclusion on images: %s\n\n", s.Result.String())
}

// printf colorizes the format string only, so bracketed file names in
// arguments are never read as color codes
func (o *ConsoleObserver) printf(format string, args ...interface{}) {
	fmt.Fprintf(o.out, o.color.Color(format), args...)
}

func verdictColor(v models.Verdict) string {
	switch v {
	case models.VerdictSignificantlyBetter:
		return "[green]"
	case models.VerdictNotableEnhancement:
		return "[cyan]"
	case models.VerdictSlightImprovement:
		return "[yellow]"
	default:
		return "[red]"
	}
}
