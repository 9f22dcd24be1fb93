package metrics

import (
	"image"

	"gonum.org/v1/gonum/stat"
)

const histogramBins = 256

// Histogram returns the 256-bin intensity histogram of a grayscale image
func Histogram(g *image.Gray) []float64 {
	hist := make([]float64, histogramBins)
	b := g.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := g.Pix[g.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			hist[row[x]]++
		}
	}
	return hist
}

// HistogramCorrelation computes the Pearson correlation of the two intensity
// histograms. A histogram with zero variance correlates as 1.
func HistogramCorrelation(a, b *image.Gray) (float64, error) {
	if err := sameSize(a, b); err != nil {
		return 0, err
	}
	ha, hb := Histogram(a), Histogram(b)
	if stat.Variance(ha, nil) == 0 || stat.Variance(hb, nil) == 0 {
		return 1, nil
	}
	return stat.Correlation(ha, hb, nil), nil
}

// Entropy computes the Shannon entropy (natural log) of the normalized
// intensity histogram
func Entropy(g *image.Gray) float64 {
	hist := Histogram(g)
	var total float64
	for _, v := range hist {
		total += v
	}
	if total == 0 {
		return 0
	}
	for i := range hist {
		hist[i] /= total
	}
	return stat.Entropy(hist)
}
