package metrics

import (
	"image"
	"image/color"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Colorfulness computes the Hasler-Suesstrunk colorfulness of the first three
// channels of img. Alpha is ignored.
func Colorfulness(img image.Image) float64 {
	b := img.Bounds()
	n := b.Dx() * b.Dy()
	if n == 0 {
		return 0
	}
	rg := make([]float64, 0, n)
	yb := make([]float64, 0, n)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl := channels(img, x, y)
			rg = append(rg, r-g)
			yb = append(yb, 0.5*(r+g)-bl)
		}
	}

	meanRG, stdRG := stat.PopMeanStdDev(rg, nil)
	meanYB, stdYB := stat.PopMeanStdDev(yb, nil)
	return math.Hypot(stdRG, stdYB) + 0.3*math.Hypot(meanRG, meanYB)
}

// channels returns 8-bit RGB values without alpha premultiplication
func channels(img image.Image, x, y int) (r, g, b float64) {
	switch m := img.(type) {
	case *image.RGBA:
		i := m.PixOffset(x, y)
		return float64(m.Pix[i]), float64(m.Pix[i+1]), float64(m.Pix[i+2])
	case *image.NRGBA:
		i := m.PixOffset(x, y)
		return float64(m.Pix[i]), float64(m.Pix[i+1]), float64(m.Pix[i+2])
	}
	c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	return float64(c.R), float64(c.G), float64(c.B)
}
