package metrics

import (
	"context"
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	apperrors "github.com/anime-shed/image-eval-go/internal/errors"
)

func uniformGray(w, h int, v uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

// patternGray produces a deterministic textured image
func patternGray(w, h int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.SetGray(x, y, color.Gray{Y: uint8((x*7 + y*13 + (x*y)%31) % 256)})
		}
	}
	return g
}

// stepGray is black left of column edge and white from it on
func stepGray(w, h, edge int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := edge; x < w; x++ {
			g.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	return g
}

func brighten(g *image.Gray, delta int) *image.Gray {
	out := image.NewGray(g.Rect)
	for i, v := range g.Pix {
		n := int(v) + delta
		if n > 255 {
			n = 255
		}
		out.Pix[i] = uint8(n)
	}
	return out
}

func TestToGrayIgnoresAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 64})
	img.SetNRGBA(2, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 0})

	g := ToGray(img)
	want := []uint8{124, 124, 255}
	for x, w := range want {
		if got := g.GrayAt(x, 0).Y; got != w {
			t.Errorf("pixel %d: expected luma %d, got %d", x, w, got)
		}
	}

	sub := img.SubImage(image.Rect(1, 0, 3, 1))
	g = ToGray(sub)
	if g.Bounds() != image.Rect(0, 0, 2, 1) {
		t.Fatalf("expected origin-anchored bounds, got %v", g.Bounds())
	}
	if g.GrayAt(0, 0).Y != 124 || g.GrayAt(1, 0).Y != 255 {
		t.Errorf("sub-image luma wrong: %v", g.Pix)
	}
}

func TestMSE(t *testing.T) {
	mse, err := MSE(uniformGray(10, 10, 10), uniformGray(10, 10, 20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mse != 100 {
		t.Errorf("Expected MSE 100, got %f", mse)
	}

	img := patternGray(20, 20)
	mse, err = MSE(img, img)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mse != 0 {
		t.Errorf("Expected MSE 0 for identical images, got %f", mse)
	}
}

func TestMSEParallelMatchesSequential(t *testing.T) {
	a := patternGray(500, 300)
	b := brighten(a, 3)

	mse, err := MSE(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := squaredErrorRows(a, b, 0, 300) / float64(500*300)
	if math.Abs(mse-want) > 1e-9 {
		t.Errorf("Expected %f, got %f", want, mse)
	}
}

func TestMSESizeMismatch(t *testing.T) {
	if _, err := MSE(uniformGray(10, 10, 0), uniformGray(10, 11, 0)); err == nil {
		t.Error("Expected error for images of different size")
	}
}

func TestPSNR(t *testing.T) {
	if !math.IsInf(PSNRFromMSE(0), 1) {
		t.Error("Expected +Inf PSNR for zero MSE")
	}
	want := 20 * math.Log10(255/10.0)
	if got := PSNRFromMSE(100); math.Abs(got-want) > 1e-12 {
		t.Errorf("Expected %f, got %f", want, got)
	}

	img := patternGray(16, 16)
	psnr, err := PSNR(img, img)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !math.IsInf(psnr, 1) {
		t.Errorf("Expected +Inf for identical images, got %f", psnr)
	}
}

func TestSSIM(t *testing.T) {
	img := patternGray(64, 48)
	same, err := SSIM(img, img)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(same-1) > 1e-12 {
		t.Errorf("Expected SSIM 1 for identical images, got %f", same)
	}

	other, err := SSIM(img, brighten(img, 40))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other >= same {
		t.Errorf("Expected SSIM below 1 for different images, got %f", other)
	}

	if _, err := SSIM(uniformGray(5, 5, 0), uniformGray(5, 5, 0)); err == nil {
		t.Error("Expected error for images smaller than the window")
	}
}

func TestMSSSIM(t *testing.T) {
	img := patternGray(96, 96)
	same, err := MSSSIM(img, img)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(same-1) > 1e-9 {
		t.Errorf("Expected MS-SSIM 1 for identical images, got %f", same)
	}

	other, err := MSSSIM(img, brighten(img, 60))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other >= same {
		t.Errorf("Expected MS-SSIM below 1 for different images, got %f", other)
	}

	if _, err := MSSSIM(uniformGray(10, 10, 0), uniformGray(10, 10, 0)); err == nil {
		t.Error("Expected error for images smaller than the window")
	}
}

func TestMSSSIMLevels(t *testing.T) {
	tests := []struct {
		w, h int
		want int
	}{
		{256, 256, 5},
		{512, 100, 4},
		{22, 22, 2},
		{20, 20, 1},
		{11, 11, 1},
		{10, 300, 0},
	}
	for _, tt := range tests {
		if got := msssimLevels(tt.w, tt.h); got != tt.want {
			t.Errorf("msssimLevels(%d, %d) = %d, want %d", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestGSIM(t *testing.T) {
	img := patternGray(32, 32)
	same, err := GSIM(img, img)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if same != 1 {
		t.Errorf("Expected GSIM 1 for identical images, got %f", same)
	}

	flat, err := GSIM(stepGray(32, 32, 16), uniformGray(32, 32, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flat >= 1 || flat <= 0 {
		t.Errorf("Expected GSIM in (0, 1) for an edge against a flat image, got %f", flat)
	}
}

func TestCannyStepEdge(t *testing.T) {
	edges := Canny(stepGray(32, 32, 16), DefaultEdgeLowThreshold, DefaultEdgeHighThreshold)
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			want := uint8(0)
			if x == 15 {
				want = 255
			}
			if got := edges.GrayAt(x, y).Y; got != want {
				t.Fatalf("pixel (%d,%d) = %d, want %d", x, y, got, want)
			}
		}
	}

	flat := Canny(uniformGray(32, 32, 90), DefaultEdgeLowThreshold, DefaultEdgeHighThreshold)
	for _, v := range flat.Pix {
		if v != 0 {
			t.Fatal("Expected no edges in a flat image")
		}
	}
}

func TestEdgeMSE(t *testing.T) {
	mse, err := EdgeMSE(stepGray(32, 32, 16), uniformGray(32, 32, 0), DefaultEdgeLowThreshold, DefaultEdgeHighThreshold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// one full edge column of 255 over 32x32 pixels
	want := 255.0 * 255.0 / 32
	if mse != want {
		t.Errorf("Expected %f, got %f", want, mse)
	}
}

func TestMagnitudeSpectrumOfConstantImage(t *testing.T) {
	spectrum := MagnitudeSpectrum(uniformGray(8, 8, 10))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			want := 0.0
			if x == 4 && y == 4 {
				want = 640
			}
			if got := spectrum.at(x, y); math.Abs(got-want) > 1e-9 {
				t.Errorf("spectrum (%d,%d) = %f, want %f", x, y, got, want)
			}
		}
	}
}

func TestFFTMSE(t *testing.T) {
	img := patternGray(24, 16)
	same, err := FFTMSE(img, img)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if same != 0 {
		t.Errorf("Expected 0 for identical images, got %f", same)
	}

	diff, err := FFTMSE(img, brighten(img, 20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff <= 0 {
		t.Errorf("Expected positive FFT MSE for different images, got %f", diff)
	}
}

func TestHistogramCorrelation(t *testing.T) {
	img := patternGray(40, 40)
	same, err := HistogramCorrelation(img, img)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(same-1) > 1e-12 {
		t.Errorf("Expected correlation 1 for identical images, got %f", same)
	}

	flat, err := HistogramCorrelation(uniformGray(8, 8, 3), uniformGray(8, 8, 200))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flat > 0 {
		t.Errorf("Expected non-positive correlation for disjoint spikes, got %f", flat)
	}
}

func TestEntropy(t *testing.T) {
	if e := Entropy(uniformGray(10, 10, 77)); e != 0 {
		t.Errorf("Expected 0 entropy for a flat image, got %f", e)
	}
	if e := Entropy(stepGray(10, 10, 5)); math.Abs(e-math.Ln2) > 1e-12 {
		t.Errorf("Expected ln 2 for a half black half white image, got %f", e)
	}
}

func TestColorfulness(t *testing.T) {
	gray := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for i := 0; i < len(gray.Pix); i += 4 {
		gray.Pix[i], gray.Pix[i+1], gray.Pix[i+2], gray.Pix[i+3] = 120, 120, 120, 255
	}
	if c := Colorfulness(gray); c != 0 {
		t.Errorf("Expected 0 colorfulness for a gray image, got %f", c)
	}

	red := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for i := 0; i < len(red.Pix); i += 4 {
		red.Pix[i], red.Pix[i+3] = 255, 255
	}
	// rg = 255 and yb = 127.5 everywhere: no spread, only the mean term
	want := 0.3 * math.Hypot(255, 127.5)
	if c := Colorfulness(red); math.Abs(c-want) > 1e-9 {
		t.Errorf("Expected %f, got %f", want, c)
	}
}

func TestNaturalnessScore(t *testing.T) {
	if s := NaturalnessScore(uniformGray(32, 32, 50)); s != 0 {
		t.Errorf("Expected 0 for a flat image, got %f", s)
	}
	s := NaturalnessScore(patternGray(64, 64))
	if s < 0 || s > 100 {
		t.Errorf("Expected score in [0, 100], got %f", s)
	}
	if s := NaturalnessScore(uniformGray(4, 4, 0)); s != 100 {
		t.Errorf("Expected 100 for an image too small to score, got %f", s)
	}
}

func TestParseVMAFOutput(t *testing.T) {
	output := "frame=    1 fps=0.0 q=-0.0 size=N/A\n" +
		"[Parsed_libvmaf_0 @ 0x55d5c8c0] VMAF score: 93.412871\n"
	score, err := ParseVMAFOutput(output)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 93.412871 {
		t.Errorf("Expected 93.412871, got %f", score)
	}

	if _, err := ParseVMAFOutput("no score here\n"); err == nil {
		t.Error("Expected error when no VMAF line is present")
	}
}

func TestCommandScorer(t *testing.T) {
	scorer := &CommandScorer{Command: "sh", Args: []string{"-c", "echo score 42.5", "sh"}, Timeout: 5 * time.Second}
	score, err := scorer.Score(context.Background(), "/tmp/whatever.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 42.5 {
		t.Errorf("Expected 42.5, got %f", score)
	}
}

func TestCommandScorerTimeout(t *testing.T) {
	scorer := &CommandScorer{Command: "sleep", Timeout: 50 * time.Millisecond}
	_, err := scorer.Score(context.Background(), "5")
	if err == nil {
		t.Fatal("Expected timeout error")
	}
	if !apperrors.IsType(err, apperrors.ErrorTypeTimeout) {
		t.Errorf("Expected timeout error type, got %v", err)
	}
}

func TestNewCommandScorerRejectsEmpty(t *testing.T) {
	if _, err := NewCommandScorer("   ", time.Second); err == nil {
		t.Error("Expected error for an empty command")
	}
}
