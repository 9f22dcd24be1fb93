package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/image-eval-go/internal/config"
	apperrors "github.com/anime-shed/image-eval-go/internal/errors"
	"github.com/anime-shed/image-eval-go/internal/logger"
	"github.com/anime-shed/image-eval-go/internal/service"
	"github.com/anime-shed/image-eval-go/internal/storage"
	"github.com/anime-shed/image-eval-go/pkg/models"
	"github.com/anime-shed/image-eval-go/pkg/validation"
)

// SourceOpener resolves a source URI (local directory or az://) to a listing
type SourceOpener interface {
	Open(uri string) (storage.Source, error)
}

// StatsReporter exposes live pipeline counters
type StatsReporter interface {
	Stats() map[string]interface{}
}

const defaultRunListLimit = 20

// NewHandler builds the API router. stats may be nil, which leaves
// /v1/stats unregistered.
func NewHandler(
	svc service.ComparisonService,
	sources SourceOpener,
	validator *validation.SourceValidator,
	stats StatsReporter,
	cfg config.ServerConfig,
) http.Handler {
	r := gin.Default()

	// Add middleware
	r.Use(
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck)

	// evaluation routes share one per-client budget
	limit := rateLimiter(cfg.RateLimit, cfg.RateBurst)

	v1 := r.Group("/v1")
	v1.POST("/score", scoreMetrics(svc))
	v1.POST("/compare", limit, comparePair(svc, validator, cfg))
	v1.POST("/batches", limit, compareBatch(svc, sources, validator, cfg))
	v1.GET("/runs", listRuns(svc))
	v1.GET("/runs/:id", getRun(svc))
	if stats != nil {
		v1.GET("/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, stats.Stats())
		})
	}

	return r
}

func requestFields(c *gin.Context) logrus.Fields {
	return logrus.Fields{
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
		"ip":     c.ClientIP(),
	}
}

func scoreMetrics(svc service.ComparisonService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ScoreRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		result, err := svc.Score(req.Metrics)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "cannot score metrics", err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func comparePair(svc service.ComparisonService, validator *validation.SourceValidator, cfg config.ServerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		logger.WithFields(requestFields(c)).Info("Processing pair comparison request")

		var req models.CompareRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}
		for _, u := range []string{req.BaseURL, req.ImprovedURL} {
			if err := validator.ValidateImageURL(u); err != nil {
				respondError(c, apperrors.GetStatusCode(err), "invalid image URL", err)
				return
			}
		}

		report, err := svc.CompareURLs(ctx, req.BaseURL, req.ImprovedURL)
		if err != nil {
			respondError(c, determineStatusCode(err), "comparison failed", err)
			return
		}

		logger.WithFields(logrus.Fields{
			"base_url":           req.BaseURL,
			"improved_url":       req.ImprovedURL,
			"processing_time_ms": time.Since(startTime).Milliseconds(),
			"verdict":            report.Result.Verdict,
		}).Info("Pair comparison completed successfully")

		c.JSON(http.StatusOK, report)
	}
}

func compareBatch(svc service.ComparisonService, sources SourceOpener, validator *validation.SourceValidator, cfg config.ServerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		opened := make([]storage.Source, 0, 2)
		for _, uri := range []string{req.BaseDir, req.ImprovedDir} {
			if err := validator.ValidateSourceURI(uri); err != nil {
				respondError(c, apperrors.GetStatusCode(err), "invalid source", err)
				return
			}
			src, err := sources.Open(uri)
			if err != nil {
				respondError(c, determineStatusCode(err), "cannot open source", err)
				return
			}
			opened = append(opened, src)
		}

		report, err := svc.CompareDirectories(ctx, opened[0], opened[1])
		if err != nil && report != nil {
			respondPartial(c, determineStatusCode(err), err, report)
			return
		}
		if err != nil {
			respondError(c, determineStatusCode(err), "batch comparison failed", err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func listRuns(svc service.ComparisonService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultRunListLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				respondError(c, http.StatusBadRequest, "invalid limit",
					apperrors.NewValidationError(fmt.Sprintf("limit must be a positive integer, got %q", raw), err))
				return
			}
			limit = n
		}

		runs, err := svc.ListRuns(c.Request.Context(), limit)
		if err != nil {
			respondError(c, determineStatusCode(err), "cannot list runs", err)
			return
		}
		if runs == nil {
			runs = []models.RunRecord{}
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	}
}

func getRun(svc service.ComparisonService) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, err := svc.GetRun(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, determineStatusCode(err), "cannot load run", err)
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last()
			respondError(c, determineStatusCode(err.Err), "request processing failed", err.Err)
		}
	}
}

func determineStatusCode(err error) int {
	// Check if it's a custom app error first
	if appErr, ok := apperrors.As(err); ok {
		return appErr.StatusCode
	}

	// Fallback to context-based errors
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	// Log the error with context
	fields := requestFields(c)
	fields["status_code"] = code
	fields["message"] = message
	entry := logger.WithError(err).WithFields(fields)
	if code >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	resp := models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	}
	if appErr, ok := apperrors.As(err); ok {
		resp.Type = string(appErr.Type)
	}
	c.AbortWithStatusJSON(code, resp)
}

// respondPartial reports an interrupted batch together with the pairs it
// finished
func respondPartial(c *gin.Context, code int, err error, report *models.BatchReport) {
	fields := requestFields(c)
	fields["status_code"] = code
	fields["run_id"] = report.RunID
	fields["pairs"] = len(report.Pairs)
	logger.WithError(err).WithFields(fields).Warn("Batch interrupted, returning partial report")

	errType := apperrors.TypeOf(err)
	if errors.Is(err, context.DeadlineExceeded) {
		errType = apperrors.ErrorTypeTimeout
	}
	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:         http.StatusText(code),
		Type:          string(errType),
		Message:       fmt.Sprintf("batch comparison interrupted: %v", err),
		PartialReport: report,
	})
}
