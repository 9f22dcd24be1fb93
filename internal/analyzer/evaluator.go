package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/anime-shed/image-eval-go/internal/errors"
	"github.com/anime-shed/image-eval-go/internal/logger"
	"github.com/anime-shed/image-eval-go/internal/metrics"
	"github.com/anime-shed/image-eval-go/pkg/models"
)

// Evaluator computes every metric for an image pair. It implements PairEvaluator.
type Evaluator struct {
	opts    Options
	quality metrics.NoReferenceScorer
	vmaf    metrics.FullReferenceScorer
	cache   MetricCache
}

// NewEvaluator creates an evaluator around the external scorers. vmaf may be
// nil when opts.SkipVMAF is set.
func NewEvaluator(quality metrics.NoReferenceScorer, vmaf metrics.FullReferenceScorer, opts Options) *Evaluator {
	if vmaf == nil {
		opts.SkipVMAF = true
	}
	return &Evaluator{opts: opts, quality: quality, vmaf: vmaf}
}

// WithCache returns a copy of the evaluator that reuses records for pairs
// whose file contents were seen before
func (e *Evaluator) WithCache(cache MetricCache) *Evaluator {
	c := *e
	c.cache = cache
	return &c
}

// Options returns the evaluation options
func (e *Evaluator) Options() Options {
	return e.opts
}

// loadedImage is one decoded side of a pair
type loadedImage struct {
	path string
	img  image.Image
	gray *image.Gray
}

// Evaluate loads both images and builds their metric record. Unreadable
// images and size mismatches fail with an image load error; a VMAF timeout
// fails with a metric computation error.
func (e *Evaluator) Evaluate(ctx context.Context, basePath, improvedPath string) (models.MetricRecord, error) {
	start := time.Now()
	log := logger.WithFields(logrus.Fields{"base": basePath, "improved": improvedPath})

	var cacheKey string
	if e.cache != nil {
		key, err := e.contentKey(basePath, improvedPath)
		if err != nil {
			return models.MetricRecord{}, err
		}
		cacheKey = key
		if rec, ok, err := e.cache.Get(ctx, cacheKey); err != nil {
			log.WithError(err).Warn("Metric cache lookup failed")
		} else if ok {
			log.Debug("Metric cache hit")
			return rec, nil
		}
	}

	base, err := load(basePath)
	if err != nil {
		return models.MetricRecord{}, err
	}
	improved, err := load(improvedPath)
	if err != nil {
		return models.MetricRecord{}, err
	}
	if base.img.Bounds().Size() != improved.img.Bounds().Size() {
		return models.MetricRecord{}, apperrors.NewImageLoadError(improvedPath,
			fmt.Errorf("dimensions %v differ from base %v", improved.img.Bounds().Size(), base.img.Bounds().Size()))
	}

	rec, vmafDegraded, err := e.compute(ctx, base, improved)
	if err != nil {
		return models.MetricRecord{}, err
	}

	// a zero standing in for a failed VMAF run must not outlive this call
	if e.cache != nil && !vmafDegraded {
		if err := e.cache.Set(ctx, cacheKey, rec); err != nil {
			log.WithError(err).Warn("Metric cache store failed")
		}
	}

	log.WithField("duration", time.Since(start)).Debug("Pair evaluated")
	return rec, nil
}

func load(path string) (loadedImage, error) {
	img, err := metrics.LoadImage(path)
	if err != nil {
		return loadedImage{}, apperrors.NewImageLoadError(path, err)
	}
	return loadedImage{path: path, img: img, gray: metrics.ToGray(img)}, nil
}

// metricTask fills part of a record; tasks write disjoint fields
type metricTask struct {
	name string
	run  func() error
}

// compute fills a record for a loaded pair. vmafDegraded reports that the
// VMAF field holds the fallback 0 rather than a measured score.
func (e *Evaluator) compute(ctx context.Context, base, improved loadedImage) (rec models.MetricRecord, vmafDegraded bool, err error) {
	a, b := base.gray, improved.gray

	tasks := []metricTask{
		{string(models.MetricMSE), func() (err error) {
			rec.MSE, err = metrics.MSE(a, b)
			return err
		}},
		{string(models.MetricEdgeMSE), func() (err error) {
			rec.EdgeMSE, err = metrics.EdgeMSE(a, b, e.opts.EdgeLowThreshold, e.opts.EdgeHighThreshold)
			return err
		}},
		{string(models.MetricFFTMSE), func() (err error) {
			rec.FFTMSE, err = metrics.FFTMSE(a, b)
			return err
		}},
		{string(models.MetricSSIM), func() (err error) {
			rec.SSIM, err = metrics.SSIM(a, b)
			return err
		}},
		{string(models.MetricMSSSIM), func() (err error) {
			rec.MSSSIM, err = metrics.MSSSIM(a, b)
			return err
		}},
		{string(models.MetricGSIM), func() (err error) {
			rec.GSIM, err = metrics.GSIM(a, b)
			return err
		}},
		{string(models.MetricHistCorr), func() (err error) {
			rec.HistCorr, err = metrics.HistogramCorrelation(a, b)
			return err
		}},
		{"entropy", func() error {
			rec.EntropyBase = metrics.Entropy(a)
			rec.EntropyImproved = metrics.Entropy(b)
			return nil
		}},
		{"colorfulness", func() error {
			rec.ColorfulnessBase = metrics.Colorfulness(base.img)
			rec.ColorfulnessImproved = metrics.Colorfulness(improved.img)
			return nil
		}},
		{string(models.MetricBrisqueDiff), func() (err error) {
			if rec.BrisqueBase, err = e.quality.Score(ctx, base.path); err != nil {
				return err
			}
			rec.BrisqueImproved, err = e.quality.Score(ctx, improved.path)
			return err
		}},
		{string(models.MetricVMAF), func() (err error) {
			rec.VMAF, vmafDegraded, err = e.scoreVMAF(ctx, base.path, improved.path)
			return err
		}},
	}

	if err := e.runTasks(tasks); err != nil {
		return models.MetricRecord{}, false, err
	}

	rec.PSNR = metrics.PSNRFromMSE(rec.MSE)
	rec.EntropyDiff = rec.EntropyImproved - rec.EntropyBase
	rec.BrisqueDiff = rec.BrisqueImproved - rec.BrisqueBase
	return rec, vmafDegraded, nil
}

// runTasks runs the tasks concurrently and returns the first failure in task order
func (e *Evaluator) runTasks(tasks []metricTask) error {
	errs := make([]error, len(tasks))
	if e.opts.Sequential {
		for i, t := range tasks {
			errs[i] = t.run()
		}
	} else {
		var wg sync.WaitGroup
		for i, t := range tasks {
			wg.Add(1)
			go func(i int, t metricTask) {
				defer wg.Done()
				errs[i] = t.run()
			}(i, t)
		}
		wg.Wait()
	}

	for i, err := range errs {
		if err == nil {
			continue
		}
		if _, ok := apperrors.As(err); ok && !apperrors.IsType(err, apperrors.ErrorTypeTimeout) {
			return err
		}
		return apperrors.NewMetricComputationError(tasks[i].name, err)
	}
	return nil
}

// scoreVMAF runs the full-reference scorer with the improved image as the
// distorted input. A timeout is an error; any other failure scores 0 and
// reports degraded.
func (e *Evaluator) scoreVMAF(ctx context.Context, basePath, improvedPath string) (float64, bool, error) {
	if e.opts.SkipVMAF {
		return 0, false, nil
	}
	vctx := ctx
	if e.opts.VMAFTimeout > 0 {
		var cancel context.CancelFunc
		vctx, cancel = context.WithTimeout(ctx, e.opts.VMAFTimeout)
		defer cancel()
	}

	score, err := e.vmaf.Score(vctx, improvedPath, basePath)
	if err == nil {
		return score, false, nil
	}
	if ctx.Err() != nil {
		return 0, false, ctx.Err()
	}
	if apperrors.IsType(err, apperrors.ErrorTypeTimeout) || vctx.Err() != nil {
		return 0, false, apperrors.NewTimeoutError(fmt.Sprintf("vmaf did not finish within %s", e.opts.VMAFTimeout), err)
	}
	logger.WithFields(logrus.Fields{
		"base":     basePath,
		"improved": improvedPath,
		"error":    err.Error(),
	}).Warn("Error calculating VMAF, using 0")
	return 0, true, nil
}

// contentKey hashes both files so renamed or re-uploaded images still hit the cache
func (e *Evaluator) contentKey(basePath, improvedPath string) (string, error) {
	h := sha256.New()
	for _, p := range []string{basePath, improvedPath} {
		f, err := os.Open(p)
		if err != nil {
			return "", apperrors.NewImageLoadError(p, err)
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", apperrors.NewImageLoadError(p, err)
		}
		h.Write([]byte{0})
	}
	h.Write([]byte(e.opts.fingerprint()))
	return hex.EncodeToString(h.Sum(nil)), nil
}
