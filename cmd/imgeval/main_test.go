package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anime-shed/image-eval-go/pkg/models"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeImage(t *testing.T, dir, name string, shift int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	img := image.NewNRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			v := uint8((x*7 + y*3 + (x*y)%13 + shift) % 256)
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: 255 - v, B: v / 2, A: 255})
		}
	}
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

const perfectJSON = `{"mse":0,"edge_mse":0,"fft_mse":0,"ssim":1,"ms_ssim":1,"gsim":1,
"psnr":50,"brisque_diff":-100,"hist_corr":1,"entropy_diff":10,"vmaf":100}`

func TestScoreCommandFormats(t *testing.T) {
	dir := t.TempDir()

	out, _, err := execute(t, "score", writeFile(t, dir, "perfect.json", perfectJSON))
	require.NoError(t, err)
	assert.Equal(t, "The improved image is significantly better than the base image. (Score: 1.00)\n", out)

	yamlDoc := `
mse: 0
edge_mse: 0
fft_mse: 0
ssim: 0.5
ms_ssim: 0.5
gsim: 0.5
psnr: 25
brisque_diff: 0
hist_corr: 0
entropy_diff: 0
vmaf: 50
`
	out, _, err = execute(t, "score", "--explain", writeFile(t, dir, "half.yaml", yamlDoc))
	require.NoError(t, err)
	assert.Contains(t, out, "METRIC")
	assert.Regexp(t, regexp.MustCompile(`brisque_diff\s+0\.0000\s+0\.0000\s+4`), out)

	tomlDoc := "mse = 0\nssim = 1.0\n"
	_, _, err = execute(t, "score", writeFile(t, dir, "partial.toml", tomlDoc))
	assert.Error(t, err, "missing metrics")

	_, _, err = execute(t, "score", writeFile(t, dir, "metrics.csv", "mse,0"))
	assert.Error(t, err)

	_, _, err = execute(t, "score", writeFile(t, dir, "typo.json", `{"sssim":1}`))
	assert.Error(t, err)
}

func TestScoreCommandUsesConfiguredWeights(t *testing.T) {
	dir := t.TempDir()
	// only vmaf carries weight
	cfgFile := writeFile(t, dir, "weights.toml", `
[weights]
mse = 0.0
edge_mse = 0.0
fft_mse = 0.0
ssim = 0.0
psnr = 0.0
brisque_diff = 0.0
hist_corr = 0.0
entropy_diff = 0.0
ms_ssim = 0.0
gsim = 0.0
vmaf = 1.0
`)
	doc := strings.Replace(perfectJSON, `"vmaf":100`, `"vmaf":40`, 1)
	out, _, err := execute(t, "--config", cfgFile, "score", writeFile(t, dir, "m.json", doc))
	require.NoError(t, err)
	assert.Contains(t, out, "(Score: 0.40)")
}

func TestCompareCommand(t *testing.T) {
	root := t.TempDir()
	baseDir := filepath.Join(root, "base")
	improvedDir := filepath.Join(root, "improved")
	writeImage(t, baseDir, "cat_base.png", 0)
	writeImage(t, improvedDir, "cat_improved.png", 9)
	writeImage(t, baseDir, "dog_base.png", 0)
	store := filepath.Join(root, "runs.db")

	out, errOut, err := execute(t, "compare",
		"--base", baseDir, "--improved", improvedDir,
		"--skip-vmaf", "--no-color", "--store", store)
	require.NoError(t, err, errOut)

	assert.Contains(t, out, "Skipping dog_base.png")
	assert.Contains(t, out, "Comparing cat_base.png and cat_improved.png:")
	assert.Contains(t, out, "FINAL AVERAGE")
	assert.Contains(t, out, "Conclusion on images: ")
	assert.NotContains(t, out, "\x1b[")

	m := regexp.MustCompile(`Run (\S+) recorded`).FindStringSubmatch(errOut)
	require.Len(t, m, 2, errOut)
	runID := m[1]

	out, _, err = execute(t, "runs", "list", "--store", store)
	require.NoError(t, err)
	assert.Contains(t, out, runID)

	out, _, err = execute(t, "runs", "show", runID, "--store", store)
	require.NoError(t, err)
	var run models.RunResponse
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	assert.Equal(t, 1, run.Run.Comparisons)
	assert.Len(t, run.Pairs, 1)

	_, _, err = execute(t, "runs", "show", "missing", "--store", store)
	assert.Error(t, err)
}

func TestCompareDefaultsToWorkingDirectory(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "base"), "a_base.png", 0)
	writeImage(t, filepath.Join(root, "improved"), "a_improved.png", 0)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(root))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	out, _, err := execute(t, "compare", "--skip-vmaf", "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "Comparing a_base.png and a_improved.png:")
	assert.Contains(t, out, "significantly better")
}

func TestCompareMissingDirectoryFails(t *testing.T) {
	root := t.TempDir()
	_, errOut, err := execute(t, "compare",
		"--base", filepath.Join(root, "nope"), "--improved", root, "--skip-vmaf")
	require.Error(t, err)
	assert.Contains(t, errOut, "directory_not_found")
}

func TestCompareRejectsInvalidFlags(t *testing.T) {
	_, _, err := execute(t, "compare", "--workers", "0", "--skip-vmaf")
	assert.Error(t, err)

	_, _, err = execute(t, "compare", "--cache", "memcached", "--skip-vmaf")
	assert.Error(t, err)
}

func TestRunsRequiresStore(t *testing.T) {
	_, _, err := execute(t, "runs", "list")
	assert.Error(t, err)
}
