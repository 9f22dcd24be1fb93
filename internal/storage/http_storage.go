package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"time"

	apperrors "github.com/anime-shed/image-eval-go/internal/errors"
)

// ImageFetcher downloads a remote image to local disk
type ImageFetcher interface {
	Fetch(ctx context.Context, imageURL string) (path string, cleanup func(), err error)
}

// HTTPFetcherOptions tunes the HTTP fetcher
type HTTPFetcherOptions struct {
	Timeout            time.Duration
	MaxAttempts        int
	RetryBackoff       time.Duration
	InsecureSkipVerify bool
}

// DefaultHTTPFetcherOptions returns three attempts with a linear 1s backoff
func DefaultHTTPFetcherOptions() HTTPFetcherOptions {
	return HTTPFetcherOptions{
		Timeout:      30 * time.Second,
		MaxAttempts:  3,
		RetryBackoff: time.Second,
	}
}

// HTTPImageFetcher implements ImageFetcher over HTTP(S) with retries
type HTTPImageFetcher struct {
	client *http.Client
	opts   HTTPFetcherOptions
}

// NewHTTPImageFetcher creates an HTTP image fetcher
func NewHTTPImageFetcher(opts HTTPFetcherOptions) *HTTPImageFetcher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,

		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipVerify,
		},
	}

	return &HTTPImageFetcher{
		opts: opts,
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,

			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
	}
}

// Fetch downloads imageURL into a temporary file. 4xx responses fail
// immediately; 5xx responses and transport errors are retried.
func (h *HTTPImageFetcher) Fetch(ctx context.Context, imageURL string) (string, func(), error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", noCleanup, apperrors.NewValidationError("invalid URL", err)
	}
	req.Header.Set("Accept", "image/png, image/jpeg, image/webp, image/gif, image/bmp, image/tiff, */*")
	req.Header.Set("User-Agent", "imgeval/1.0")

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt < h.opts.MaxAttempts; attempt++ {
		resp, err = h.client.Do(req)
		if err != nil {
			lastErr = err
			resp = nil
		} else if resp.StatusCode == http.StatusOK {
			break
		} else {
			resp.Body.Close()
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				lastErr = fmt.Errorf("client error: status code %d", resp.StatusCode)
				resp = nil
				break
			}
			lastErr = fmt.Errorf("server error: status code %d", resp.StatusCode)
			resp = nil
		}

		if attempt < h.opts.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return "", noCleanup, apperrors.NewTimeoutError("image fetch cancelled", ctx.Err())
			case <-time.After(time.Duration(attempt+1) * h.opts.RetryBackoff):
			}
		}
	}

	if resp == nil {
		if lastErr == nil {
			lastErr = fmt.Errorf("unknown error")
		}
		return "", noCleanup, apperrors.NewNetworkError(
			fmt.Sprintf("failed to fetch image after %d attempts", h.opts.MaxAttempts), lastErr)
	}
	defer resp.Body.Close()

	return spoolFile(resp.Body, urlFileName(imageURL))
}

func urlFileName(imageURL string) string {
	u, err := url.Parse(imageURL)
	if err != nil {
		return ""
	}
	return path.Base(u.Path)
}
