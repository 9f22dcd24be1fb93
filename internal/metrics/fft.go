package metrics

import (
	"image"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// MagnitudeSpectrum returns |fftshift(fft2(g))|
func MagnitudeSpectrum(g *image.Gray) *plane {
	p := planeFromGray(g)
	w, h := p.w, p.h

	data := make([]complex128, w*h)
	for i, v := range p.pix {
		data[i] = complex(v, 0)
	}

	rowFFT := fourier.NewCmplxFFT(w)
	row := make([]complex128, w)
	for y := 0; y < h; y++ {
		rowFFT.Coefficients(row, data[y*w:(y+1)*w])
		copy(data[y*w:(y+1)*w], row)
	}

	colFFT := fourier.NewCmplxFFT(h)
	col := make([]complex128, h)
	coeffs := make([]complex128, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = data[y*w+x]
		}
		colFFT.Coefficients(coeffs, col)
		for y := 0; y < h; y++ {
			data[y*w+x] = coeffs[y]
		}
	}

	// shift the zero frequency to the center
	out := newPlane(w, h)
	for y := 0; y < h; y++ {
		sy := (y + h/2) % h
		for x := 0; x < w; x++ {
			sx := (x + w/2) % w
			out.set(sx, sy, cmplx.Abs(data[y*w+x]))
		}
	}
	return out
}

// FFTMSE computes the MSE between the centered magnitude spectra of two images
func FFTMSE(a, b *image.Gray) (float64, error) {
	if err := sameSize(a, b); err != nil {
		return 0, err
	}
	return planeMSE(MagnitudeSpectrum(a), MagnitudeSpectrum(b)), nil
}
