package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/anime-shed/image-eval-go/internal/errors"
)

// 1x1 transparent PNG
var onePixelPNG = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A,
	0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
	0x89, 0x00, 0x00, 0x00, 0x0A, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE,
	0x42, 0x60, 0x82,
}

func testFetcher() *HTTPImageFetcher {
	opts := DefaultHTTPFetcherOptions()
	opts.RetryBackoff = 10 * time.Millisecond
	return NewHTTPImageFetcher(opts)
}

// scriptedServer answers each request with the next status in codes.
func scriptedServer(t *testing.T, codes ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(hits.Add(1)) - 1
		code := http.StatusInternalServerError
		if n < len(codes) {
			code = codes[n]
		}
		if code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(onePixelPNG)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestHTTPImageFetcherRetries(t *testing.T) {
	cases := map[string]struct {
		codes    []int
		requests int32
		errPart  string
	}{
		"first attempt":            {codes: []int{200}, requests: 1},
		"recovers after 5xx":       {codes: []int{502, 200}, requests: 2},
		"4xx is final":             {codes: []int{404}, requests: 1, errPart: "client error: status code 404"},
		"4xx stops a retry run":    {codes: []int{500, 403}, requests: 2, errPart: "client error: status code 403"},
		"gives up after max tries": {codes: []int{500, 502, 503}, requests: 3, errPart: "server error: status code 503"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv, hits := scriptedServer(t, tc.codes...)

			path, cleanup, err := testFetcher().Fetch(context.Background(), srv.URL+"/pair/base.png")
			defer cleanup()

			assert.Equal(t, tc.requests, hits.Load())
			if tc.errPart != "" {
				require.Error(t, err)
				assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNetwork))
				assert.ErrorContains(t, err, tc.errPart)
				return
			}
			require.NoError(t, err)
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, onePixelPNG, data)
		})
	}
}

func TestHTTPImageFetcherRetriesDroppedConnections(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			if hj, ok := w.(http.Hijacker); ok {
				conn, _, _ := hj.Hijack()
				conn.Close()
			}
			return
		}
		w.Write(onePixelPNG)
	}))
	defer srv.Close()

	start := time.Now()
	_, cleanup, err := testFetcher().Fetch(context.Background(), srv.URL)
	defer cleanup()

	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
	// backoff grows linearly: 1 unit then 2
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestHTTPImageFetcherCancelledDuringBackoff(t *testing.T) {
	srv, _ := scriptedServer(t, 500, 500, 500)

	opts := DefaultHTTPFetcherOptions()
	opts.RetryBackoff = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, cleanup, err := NewHTTPImageFetcher(opts).Fetch(ctx, srv.URL)
	defer cleanup()

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeTimeout))
}

func TestHTTPImageFetcherSpoolsWithExtension(t *testing.T) {
	srv, _ := scriptedServer(t, 200)

	path, cleanup, err := testFetcher().Fetch(context.Background(), srv.URL+"/dir/photo.png")
	require.NoError(t, err)
	assert.Equal(t, ".png", path[len(path)-4:])

	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "cleanup removes the spooled file")
}

func TestHTTPImageFetcherRejectsBadURL(t *testing.T) {
	_, cleanup, err := testFetcher().Fetch(context.Background(), "http://[::1")
	defer cleanup()
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}
