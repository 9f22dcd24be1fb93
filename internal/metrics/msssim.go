package metrics

import (
	"fmt"
	"image"
	"math"
)

const (
	msssimWindow = 11
	msssimSigma  = 1.5
)

// msssimWeights are the per-scale exponents of Wang et al.
var msssimWeights = []float64{0.0448, 0.2856, 0.3001, 0.2363, 0.1333}

// MSSSIM computes multi-scale structural similarity with an 11-tap Gaussian
// window (sigma 1.5) and up to five scales. Images too small for five scales
// use as many as fit, with the exponents renormalized to sum to one.
func MSSSIM(a, b *image.Gray) (float64, error) {
	if err := sameSize(a, b); err != nil {
		return 0, err
	}
	pa, pb := planeFromGray(a), planeFromGray(b)

	levels := msssimLevels(pa.w, pa.h)
	if levels == 0 {
		return 0, fmt.Errorf("ms-ssim needs at least %dx%d pixels, got %dx%d", msssimWindow, msssimWindow, pa.w, pa.h)
	}
	weights := msssimWeights[:levels]
	var wsum float64
	for _, w := range weights {
		wsum += w
	}

	kernel := gaussianKernel(msssimWindow, msssimSigma)
	result := 1.0
	for i := 0; i < levels; i++ {
		ssimVal, cs := gaussianSSIM(pa, pb, kernel)
		w := weights[i] / wsum
		if i < levels-1 {
			result *= math.Pow(math.Max(cs, 0), w)
			pa, pb = avgPool2(pa), avgPool2(pb)
			continue
		}
		result *= math.Pow(math.Max(ssimVal, 0), w)
	}
	return result, nil
}

// msssimLevels returns how many scales fit so that the coarsest one still
// holds a full window
func msssimLevels(w, h int) int {
	side := w
	if h < side {
		side = h
	}
	levels := 0
	for levels < len(msssimWeights) && side >= msssimWindow {
		levels++
		side = side/2 + side%2
	}
	return levels
}

// gaussianSSIM returns the mean SSIM and mean contrast-structure term over
// the valid region of a Gaussian-weighted window
func gaussianSSIM(a, b *plane, kernel []float64) (ssimMean, csMean float64) {
	mu1 := convolveValid(a, kernel)
	mu2 := convolveValid(b, kernel)
	s11 := convolveValid(mul(a, a), kernel)
	s22 := convolveValid(mul(b, b), kernel)
	s12 := convolveValid(mul(a, b), kernel)

	n := len(mu1.pix)
	for i := 0; i < n; i++ {
		m1, m2 := mu1.pix[i], mu2.pix[i]
		v1 := s11.pix[i] - m1*m1
		v2 := s22.pix[i] - m2*m2
		v12 := s12.pix[i] - m1*m2

		cs := (2*v12 + ssimC2) / (v1 + v2 + ssimC2)
		l := (2*m1*m2 + ssimC1) / (m1*m1 + m2*m2 + ssimC1)
		csMean += cs
		ssimMean += l * cs
	}
	return ssimMean / float64(n), csMean / float64(n)
}
