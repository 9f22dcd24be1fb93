package metrics

import (
	"image"
	"math"
)

// Default hysteresis thresholds for edge MSE
const (
	DefaultEdgeLowThreshold  = 100
	DefaultEdgeHighThreshold = 200
)

const (
	edgeNone = iota
	edgeWeak
	edgeStrong
)

// Canny returns a binary edge map (0 or 255) using 3x3 Sobel gradients, an
// L1 magnitude, non-maximum suppression and hysteresis between low and high.
func Canny(g *image.Gray, low, high float64) *image.Gray {
	if low > high {
		low, high = high, low
	}
	p := planeFromGray(g)
	w, h := p.w, p.h
	gx, gy := sobel(p)

	mag := newPlane(w, h)
	for i := range mag.pix {
		mag.pix[i] = math.Abs(gx.pix[i]) + math.Abs(gy.pix[i])
	}
	magAt := func(x, y int) float64 {
		if x < 0 || x >= w || y < 0 || y >= h {
			return 0
		}
		return mag.at(x, y)
	}

	const tan22 = 0.4142135623730950488

	state := make([]uint8, w*h)
	var stack []int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m := mag.at(x, y)
			if m <= low {
				continue
			}
			dx, dy := gx.at(x, y), gy.at(x, y)
			xs, ys := math.Abs(dx), math.Abs(dy)
			tg22x := xs * tan22
			tg67x := tg22x + 2*xs

			var isMax bool
			switch {
			case ys < tg22x:
				isMax = m > magAt(x-1, y) && m >= magAt(x+1, y)
			case ys > tg67x:
				isMax = m > magAt(x, y-1) && m >= magAt(x, y+1)
			default:
				s := 1
				if (dx < 0) != (dy < 0) {
					s = -1
				}
				isMax = m > magAt(x-s, y-1) && m > magAt(x+s, y+1)
			}
			if !isMax {
				continue
			}
			if m > high {
				state[y*w+x] = edgeStrong
				stack = append(stack, y*w+x)
			} else {
				state[y*w+x] = edgeWeak
			}
		}
	}

	// hysteresis: weak pixels 8-connected to a strong one become edges
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		cx, cy := idx%w, idx/w
		for ny := cy - 1; ny <= cy+1; ny++ {
			for nx := cx - 1; nx <= cx+1; nx++ {
				if nx < 0 || nx >= w || ny < 0 || ny >= h {
					continue
				}
				n := ny*w + nx
				if state[n] == edgeWeak {
					state[n] = edgeStrong
					stack = append(stack, n)
				}
			}
		}
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	for i, s := range state {
		if s == edgeStrong {
			out.Pix[i] = 255
		}
	}
	return out
}

// EdgeMSE computes the MSE between the Canny edge maps of two images
func EdgeMSE(a, b *image.Gray, low, high float64) (float64, error) {
	if err := sameSize(a, b); err != nil {
		return 0, err
	}
	return MSE(Canny(a, low, high), Canny(b, low, high))
}
