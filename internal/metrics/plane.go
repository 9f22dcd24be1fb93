package metrics

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// plane is a single-channel float image in row-major order
type plane struct {
	w, h int
	pix  []float64
}

func newPlane(w, h int) *plane {
	return &plane{w: w, h: h, pix: make([]float64, w*h)}
}

func (p *plane) at(x, y int) float64 {
	return p.pix[y*p.w+x]
}

func (p *plane) set(x, y int, v float64) {
	p.pix[y*p.w+x] = v
}

// ToGray converts any image to 8-bit ITU-R 601 luma anchored at the origin.
// Alpha is ignored: luma comes from the straight (non-premultiplied) color,
// so translucent pixels keep their brightness.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < bounds.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			row[x] = luma(c.R, c.G, c.B)
		}
	}
	return gray
}

// luma uses 16-bit fixed point weights 0.299, 0.587 and 0.114
func luma(r, g, b uint8) uint8 {
	return uint8((uint32(r)*19595 + uint32(g)*38470 + uint32(b)*7471 + 0x8000) >> 16)
}

func planeFromGray(g *image.Gray) *plane {
	b := g.Bounds()
	p := newPlane(b.Dx(), b.Dy())
	for y := 0; y < p.h; y++ {
		row := g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < p.w; x++ {
			p.pix[y*p.w+x] = float64(row[x])
		}
	}
	return p
}

func sameSize(a, b *image.Gray) error {
	if a.Bounds().Size() != b.Bounds().Size() {
		return fmt.Errorf("image sizes differ: %v vs %v", a.Bounds().Size(), b.Bounds().Size())
	}
	if a.Bounds().Empty() {
		return fmt.Errorf("empty image")
	}
	return nil
}

// mul returns the element-wise product
func mul(a, b *plane) *plane {
	out := newPlane(a.w, a.h)
	for i := range a.pix {
		out.pix[i] = a.pix[i] * b.pix[i]
	}
	return out
}

// reflectIndex mirrors i into [0, n) using half-sample symmetry (d c b a | a b c d)
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// convolveSame applies a separable kernel with reflected borders; output has the input size
func convolveSame(p *plane, kernel []float64) *plane {
	r := len(kernel) / 2
	tmp := newPlane(p.w, p.h)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			var s float64
			for k, kv := range kernel {
				s += kv * p.at(reflectIndex(x+k-r, p.w), y)
			}
			tmp.set(x, y, s)
		}
	}
	out := newPlane(p.w, p.h)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			var s float64
			for k, kv := range kernel {
				s += kv * tmp.at(x, reflectIndex(y+k-r, p.h))
			}
			out.set(x, y, s)
		}
	}
	return out
}

// convolveValid applies a separable kernel without padding; output shrinks by len(kernel)-1
func convolveValid(p *plane, kernel []float64) *plane {
	n := len(kernel)
	w, h := p.w-n+1, p.h-n+1
	if w <= 0 || h <= 0 {
		return newPlane(0, 0)
	}
	tmp := newPlane(w, p.h)
	for y := 0; y < p.h; y++ {
		for x := 0; x < w; x++ {
			var s float64
			for k, kv := range kernel {
				s += kv * p.at(x+k, y)
			}
			tmp.set(x, y, s)
		}
	}
	out := newPlane(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var s float64
			for k, kv := range kernel {
				s += kv * tmp.at(x, y+k)
			}
			out.set(x, y, s)
		}
	}
	return out
}

func uniformKernel(size int) []float64 {
	k := make([]float64, size)
	for i := range k {
		k[i] = 1 / float64(size)
	}
	return k
}

func gaussianKernel(size int, sigma float64) []float64 {
	k := make([]float64, size)
	center := float64(size/2)
	var sum float64
	for i := range k {
		d := float64(i) - center
		k[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// avgPool2 halves each dimension with a 2x2 mean. Odd sizes are padded with
// zeros on both sides and the divisor stays 4.
func avgPool2(p *plane) *plane {
	padX, padY := p.w%2, p.h%2
	w := (p.w+2*padX-2)/2 + 1
	h := (p.h+2*padY-2)/2 + 1
	out := newPlane(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var s float64
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					sx, sy := 2*x-padX+dx, 2*y-padY+dy
					if sx >= 0 && sx < p.w && sy >= 0 && sy < p.h {
						s += p.at(sx, sy)
					}
				}
			}
			out.set(x, y, s/4)
		}
	}
	return out
}

// sobel returns the 3x3 Sobel derivatives with replicated borders
func sobel(p *plane) (gx, gy *plane) {
	gx, gy = newPlane(p.w, p.h), newPlane(p.w, p.h)
	px := func(x, y int) float64 {
		return p.at(clampIndex(x, p.w), clampIndex(y, p.h))
	}
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			gx.set(x, y, -px(x-1, y-1)+px(x+1, y-1)-
				2*px(x-1, y)+2*px(x+1, y)-
				px(x-1, y+1)+px(x+1, y+1))
			gy.set(x, y, -px(x-1, y-1)-2*px(x, y-1)-px(x+1, y-1)+
				px(x-1, y+1)+2*px(x, y+1)+px(x+1, y+1))
		}
	}
	return gx, gy
}
