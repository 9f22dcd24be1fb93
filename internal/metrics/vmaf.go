package metrics

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FullReferenceScorer rates a distorted image against a reference image
type FullReferenceScorer interface {
	Score(ctx context.Context, distortedPath, referencePath string) (float64, error)
}

// FFmpegVMAF runs ffmpeg's libvmaf filter over a single-frame pair
type FFmpegVMAF struct {
	Binary  string
	Timeout time.Duration
}

// NewFFmpegVMAF creates a VMAF scorer; an empty binary resolves "ffmpeg" from PATH
func NewFFmpegVMAF(binary string, timeout time.Duration) *FFmpegVMAF {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegVMAF{Binary: binary, Timeout: timeout}
}

// Score returns the VMAF score on a 0-100 scale
func (f *FFmpegVMAF) Score(ctx context.Context, distortedPath, referencePath string) (float64, error) {
	args := []string{
		"-nostdin",
		"-i", distortedPath,
		"-i", referencePath,
		"-filter_complex", "libvmaf",
		"-an", "-f", "null", "-",
	}
	_, stderr, err := runCommand(ctx, f.Timeout, f.Binary, args...)
	if err != nil {
		return 0, err
	}
	return ParseVMAFOutput(stderr)
}

// ParseVMAFOutput extracts the score from the first "VMAF score" line of
// ffmpeg's log; the score is the last whitespace-separated field
func ParseVMAFOutput(output string) (float64, error) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "VMAF score") {
			continue
		}
		fields := strings.Fields(line)
		last := strings.TrimPrefix(fields[len(fields)-1], "=")
		score, err := strconv.ParseFloat(last, 64)
		if err != nil {
			return 0, fmt.Errorf("unparseable VMAF line %q: %w", line, err)
		}
		return score, nil
	}
	return 0, fmt.Errorf("no VMAF score in ffmpeg output")
}
