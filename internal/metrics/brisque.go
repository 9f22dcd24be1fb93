package metrics

import (
	"context"
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// NoReferenceScorer rates a single image file on its own. Lower is better.
type NoReferenceScorer interface {
	Score(ctx context.Context, path string) (float64, error)
}

const (
	mscnWindow = 7
	mscnSigma  = 7.0 / 6.0
	// gaussianShape is the generalized Gaussian shape of pristine MSCN coefficients
	gaussianShape = 2.0
	naturalScales = 2
)

// NaturalnessScorer is an in-process BRISQUE-style scorer. It fits a
// generalized Gaussian to the mean-subtracted contrast-normalized (MSCN)
// coefficients at two scales and reports how far the fitted shape is from
// the Gaussian, on a 0 (pristine) to 100 scale.
type NaturalnessScorer struct{}

// NewNaturalnessScorer creates the in-process no-reference scorer
func NewNaturalnessScorer() *NaturalnessScorer {
	return &NaturalnessScorer{}
}

// Score loads the image at path and scores it
func (n *NaturalnessScorer) Score(ctx context.Context, path string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	img, err := LoadImage(path)
	if err != nil {
		return 0, err
	}
	return NaturalnessScore(ToGray(img)), nil
}

// NaturalnessScore scores a grayscale image directly
func NaturalnessScore(g *image.Gray) float64 {
	p := planeFromGray(g)
	var total float64
	scales := 0
	for s := 0; s < naturalScales; s++ {
		if p.w < mscnWindow || p.h < mscnWindow {
			break
		}
		shape := fitGGDShape(mscn(p))
		total += math.Min(1, math.Abs(shape-gaussianShape)/gaussianShape)
		scales++
		p = avgPool2(p)
	}
	if scales == 0 {
		return 100
	}
	return 100 * total / float64(scales)
}

// mscn returns (I - mu) / (sigma + 1) with a Gaussian local window
func mscn(p *plane) []float64 {
	k := gaussianKernel(mscnWindow, mscnSigma)
	mu := convolveSame(p, k)
	sq := convolveSame(mul(p, p), k)
	out := make([]float64, len(p.pix))
	for i, v := range p.pix {
		variance := sq.pix[i] - mu.pix[i]*mu.pix[i]
		if variance < 0 {
			variance = 0
		}
		out[i] = (v - mu.pix[i]) / (math.Sqrt(variance) + 1)
	}
	return out
}

var (
	ggdOnce   sync.Once
	ggdShapes []float64
	ggdRatios []float64
)

// ggdTable precomputes Gamma(1/a)Gamma(3/a)/Gamma(2/a)^2 for a in [0.2, 10)
func ggdTable() ([]float64, []float64) {
	ggdOnce.Do(func() {
		for a := 0.2; a < 10; a += 0.001 {
			l1, _ := math.Lgamma(1 / a)
			l2, _ := math.Lgamma(2 / a)
			l3, _ := math.Lgamma(3 / a)
			ggdShapes = append(ggdShapes, a)
			ggdRatios = append(ggdRatios, math.Exp(l1+l3-2*l2))
		}
	})
	return ggdShapes, ggdRatios
}

// fitGGDShape estimates the generalized Gaussian shape by moment matching
func fitGGDShape(x []float64) float64 {
	var sumSq, sumAbs float64
	for _, v := range x {
		sumSq += v * v
		sumAbs += math.Abs(v)
	}
	n := float64(len(x))
	if sumAbs/n < 1e-9 {
		return gaussianShape
	}
	rho := (sumSq / n) / math.Pow(sumAbs/n, 2)

	shapes, ratios := ggdTable()
	best, bestDiff := gaussianShape, math.Inf(1)
	for i, r := range ratios {
		if d := math.Abs(rho - r); d < bestDiff {
			best, bestDiff = shapes[i], d
		}
	}
	return best
}

// CommandScorer delegates no-reference scoring to an external program. The
// image path is appended to Args; the last field printed on stdout is the score.
type CommandScorer struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// NewCommandScorer parses a command line such as "python3 brisque.py"
func NewCommandScorer(commandLine string, timeout time.Duration) (*CommandScorer, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty scorer command")
	}
	return &CommandScorer{Command: fields[0], Args: fields[1:], Timeout: timeout}, nil
}

// Score runs the command for one image
func (c *CommandScorer) Score(ctx context.Context, path string) (float64, error) {
	args := append(append([]string{}, c.Args...), path)
	stdout, _, err := runCommand(ctx, c.Timeout, c.Command, args...)
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(stdout)
	if len(fields) == 0 {
		return 0, fmt.Errorf("%s printed no score", c.Command)
	}
	score, err := strconv.ParseFloat(fields[len(fields)-1], 64)
	if err != nil {
		return 0, fmt.Errorf("%s printed %q: %w", c.Command, fields[len(fields)-1], err)
	}
	return score, nil
}
