// Package validation checks the image URLs and source URIs accepted by the API.
package validation

import (
	"net/url"
	"path/filepath"
	"slices"
	"strings"

	apperrors "github.com/anime-shed/image-eval-go/internal/errors"
	"github.com/anime-shed/image-eval-go/internal/storage"
)

// SourceValidator decides which image URLs and batch sources a caller may use
type SourceValidator struct {
	allowedSchemes []string
	allowedHosts   []string
	allowLocal     bool
}

// NewSourceValidator accepts http(s) image URLs from any host and Azure
// sources. Local directories are accepted only when allowLocal is set.
func NewSourceValidator(allowLocal bool) *SourceValidator {
	return &SourceValidator{
		allowedSchemes: []string{"http", "https"},
		allowedHosts:   []string{}, // empty means all hosts allowed
		allowLocal:     allowLocal,
	}
}

// WithAllowedHosts restricts image URLs to the given host names
func (v *SourceValidator) WithAllowedHosts(hosts ...string) *SourceValidator {
	c := *v
	c.allowedHosts = hosts
	return &c
}

// ValidateImageURL validates an image download URL
func (v *SourceValidator) ValidateImageURL(imageURL string) error {
	if strings.TrimSpace(imageURL) == "" {
		return apperrors.NewValidationError("URL cannot be empty", nil)
	}

	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return apperrors.NewValidationError("Invalid URL format", err)
	}

	if !slices.Contains(v.allowedSchemes, strings.ToLower(parsedURL.Scheme)) {
		return apperrors.NewValidationError("URL scheme not allowed", nil)
	}

	if parsedURL.Hostname() == "" {
		return apperrors.NewValidationError("URL must have a valid host", nil)
	}

	if !v.isHostAllowed(parsedURL.Hostname()) {
		return apperrors.NewValidationError("URL host not allowed", nil)
	}

	return nil
}

// ValidateSourceURI validates a batch source: an az:// URI with a container,
// or an absolute local directory when local sources are enabled
func (v *SourceValidator) ValidateSourceURI(uri string) error {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return apperrors.NewValidationError("source cannot be empty", nil)
	}

	if scheme, _, ok := strings.Cut(uri, "://"); ok {
		if scheme != storage.AzureScheme {
			return apperrors.NewValidationError("source scheme not allowed", nil)
		}
		if _, _, err := storage.ParseAzureURI(uri); err != nil {
			return apperrors.NewValidationError("invalid Azure source", err)
		}
		return nil
	}

	if !v.allowLocal {
		return apperrors.NewValidationError("local sources are disabled", nil)
	}
	if !filepath.IsAbs(uri) {
		return apperrors.NewValidationError("local source must be an absolute path", nil)
	}
	return nil
}

// isHostAllowed returns true if no host restrictions are set
func (v *SourceValidator) isHostAllowed(host string) bool {
	if len(v.allowedHosts) == 0 {
		return true
	}
	return slices.ContainsFunc(v.allowedHosts, func(allowed string) bool {
		return strings.EqualFold(host, allowed)
	})
}
