package metrics

import (
	"image"
	"math"
	"runtime"
	"sync"
)

// parallelPixelThreshold is the pixel count above which MSE is split into row strips
const parallelPixelThreshold = 100000

// MSE computes the mean squared error between two grayscale images of equal size
func MSE(a, b *image.Gray) (float64, error) {
	if err := sameSize(a, b); err != nil {
		return 0, err
	}
	w, h := a.Bounds().Dx(), a.Bounds().Dy()

	if w*h < parallelPixelThreshold {
		return squaredErrorRows(a, b, 0, h) / float64(w*h), nil
	}

	numWorkers := runtime.NumCPU()
	if h < numWorkers {
		numWorkers = h
	}
	rowsPerWorker := (h + numWorkers - 1) / numWorkers // ceil division

	results := make(chan float64, numWorkers)
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		startY := i * rowsPerWorker
		endY := startY + rowsPerWorker
		if endY > h {
			endY = h
		}
		if startY >= endY {
			continue
		}
		wg.Add(1)
		go func(startY, endY int) {
			defer wg.Done()
			results <- squaredErrorRows(a, b, startY, endY)
		}(startY, endY)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var total float64
	for s := range results {
		total += s
	}
	return total / float64(w*h), nil
}

func squaredErrorRows(a, b *image.Gray, startY, endY int) float64 {
	ab, bb := a.Bounds(), b.Bounds()
	w := ab.Dx()
	var sum float64
	for y := startY; y < endY; y++ {
		ra := a.Pix[a.PixOffset(ab.Min.X, ab.Min.Y+y):]
		rb := b.Pix[b.PixOffset(bb.Min.X, bb.Min.Y+y):]
		for x := 0; x < w; x++ {
			d := float64(ra[x]) - float64(rb[x])
			sum += d * d
		}
	}
	return sum
}

// PSNRFromMSE derives the peak signal-to-noise ratio for 8-bit data.
// Identical images (MSE of exactly zero) give +Inf.
func PSNRFromMSE(mse float64) float64 {
	if mse == 0 {
		return math.Inf(1)
	}
	return 20 * math.Log10(255/math.Sqrt(mse))
}

// PSNR computes the peak signal-to-noise ratio between two grayscale images
func PSNR(a, b *image.Gray) (float64, error) {
	mse, err := MSE(a, b)
	if err != nil {
		return 0, err
	}
	return PSNRFromMSE(mse), nil
}

func planeMSE(a, b *plane) float64 {
	if len(a.pix) == 0 {
		return 0
	}
	var sum float64
	for i := range a.pix {
		d := a.pix[i] - b.pix[i]
		sum += d * d
	}
	return sum / float64(len(a.pix))
}
