package metrics

import (
	"image"
	"math"
)

// gsimC stabilizes the gradient similarity ratio in flat regions
const gsimC = 170.0

// GSIM computes the mean gradient-magnitude similarity between two images.
// Each pixel contributes (2*g1*g2 + C) / (g1^2 + g2^2 + C) where g is the
// Sobel gradient magnitude, so identical images score exactly 1.
func GSIM(a, b *image.Gray) (float64, error) {
	if err := sameSize(a, b); err != nil {
		return 0, err
	}
	ga := gradientMagnitude(planeFromGray(a))
	gb := gradientMagnitude(planeFromGray(b))

	var sum float64
	for i := range ga.pix {
		g1, g2 := ga.pix[i], gb.pix[i]
		sum += (2*g1*g2 + gsimC) / (g1*g1 + g2*g2 + gsimC)
	}
	return sum / float64(len(ga.pix)), nil
}

func gradientMagnitude(p *plane) *plane {
	gx, gy := sobel(p)
	out := newPlane(p.w, p.h)
	for i := range out.pix {
		out.pix[i] = math.Hypot(gx.pix[i], gy.pix[i])
	}
	return out
}
