package metrics

import (
	"fmt"
	"image"
	"math"
)

const (
	ssimWindow = 7
	dataRange  = 255.0
	ssimK1     = 0.01
	ssimK2     = 0.03
)

var (
	ssimC1 = math.Pow(ssimK1*dataRange, 2)
	ssimC2 = math.Pow(ssimK2*dataRange, 2)
)

// SSIM computes the mean structural similarity over a 7x7 uniform window
// with reflected borders and sample covariance. The 3 pixel border is
// excluded from the mean.
func SSIM(a, b *image.Gray) (float64, error) {
	if err := sameSize(a, b); err != nil {
		return 0, err
	}
	pa, pb := planeFromGray(a), planeFromGray(b)
	if pa.w < ssimWindow || pa.h < ssimWindow {
		return 0, fmt.Errorf("ssim needs at least %dx%d pixels, got %dx%d", ssimWindow, ssimWindow, pa.w, pa.h)
	}

	k := uniformKernel(ssimWindow)
	np := float64(ssimWindow * ssimWindow)
	covNorm := np / (np - 1)

	ux := convolveSame(pa, k)
	uy := convolveSame(pb, k)
	uxx := convolveSame(mul(pa, pa), k)
	uyy := convolveSame(mul(pb, pb), k)
	uxy := convolveSame(mul(pa, pb), k)

	pad := (ssimWindow - 1) / 2
	var sum float64
	var n int
	for y := pad; y < pa.h-pad; y++ {
		for x := pad; x < pa.w-pad; x++ {
			i := y*pa.w + x
			mx, my := ux.pix[i], uy.pix[i]
			vx := covNorm * (uxx.pix[i] - mx*mx)
			vy := covNorm * (uyy.pix[i] - my*my)
			vxy := covNorm * (uxy.pix[i] - mx*my)

			num := (2*mx*my + ssimC1) * (2*vxy + ssimC2)
			den := (mx*mx + my*my + ssimC1) * (vx + vy + ssimC2)
			sum += num / den
			n++
		}
	}
	return sum / float64(n), nil
}
