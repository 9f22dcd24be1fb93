package validation

import (
	"testing"

	apperrors "github.com/anime-shed/image-eval-go/internal/errors"
)

func expectMessage(t *testing.T, err error, want string) {
	t.Helper()
	appErr, ok := apperrors.As(err)
	if !ok {
		t.Fatalf("Expected AppError, got: %T (%v)", err, err)
	}
	if appErr.Type != apperrors.ErrorTypeValidation {
		t.Errorf("Expected validation error, got %s", appErr.Type)
	}
	if appErr.Message != want {
		t.Errorf("Expected %q error, got: %q", want, appErr.Message)
	}
}

func TestValidateImageURL_ValidURLs(t *testing.T) {
	validator := NewSourceValidator(false)

	validURLs := []string{
		"http://example.com/base.jpg",
		"https://example.com/improved.png",
		"HTTPS://cdn.example.com/path/to/image.webp",
		"http://192.168.1.1:8080/image.jpg",
	}

	for _, u := range validURLs {
		if err := validator.ValidateImageURL(u); err != nil {
			t.Errorf("Expected valid URL %s to pass validation, got error: %v", u, err)
		}
	}
}

func TestValidateImageURL_Rejections(t *testing.T) {
	validator := NewSourceValidator(false)

	tests := []struct {
		url, message string
	}{
		{"", "URL cannot be empty"},
		{"  \t", "URL cannot be empty"},
		{"://missing-scheme", "Invalid URL format"},
		{"not-a-url", "URL scheme not allowed"},
		{"ftp://example.com/image.jpg", "URL scheme not allowed"},
		{"file:///tmp/image.jpg", "URL scheme not allowed"},
		{"http://", "URL must have a valid host"},
		{"http:///path", "URL must have a valid host"},
	}

	for _, tt := range tests {
		err := validator.ValidateImageURL(tt.url)
		if err == nil {
			t.Errorf("Expected %q to fail validation", tt.url)
			continue
		}
		expectMessage(t, err, tt.message)
	}
}

func TestValidateImageURL_RestrictedHosts(t *testing.T) {
	validator := NewSourceValidator(false).WithAllowedHosts("example.com", "trusted.com")

	for _, u := range []string{"http://example.com/a.jpg", "https://Trusted.com:443/b.png"} {
		if err := validator.ValidateImageURL(u); err != nil {
			t.Errorf("Expected allowed host URL %q to pass validation, got error: %v", u, err)
		}
	}

	err := validator.ValidateImageURL("https://untrusted.com/image.png")
	if err == nil {
		t.Fatal("Expected disallowed host to fail validation")
	}
	expectMessage(t, err, "URL host not allowed")

	// the original validator stays unrestricted
	if err := NewSourceValidator(false).ValidateImageURL("https://untrusted.com/image.png"); err != nil {
		t.Errorf("Expected unrestricted validator to accept any host, got: %v", err)
	}
}

func TestValidateSourceURI(t *testing.T) {
	remoteOnly := NewSourceValidator(false)
	withLocal := NewSourceValidator(true)

	if err := remoteOnly.ValidateSourceURI("az://images/run1/base"); err != nil {
		t.Errorf("Expected Azure source to pass, got: %v", err)
	}
	if err := remoteOnly.ValidateSourceURI("az://images"); err != nil {
		t.Errorf("Expected container-only Azure source to pass, got: %v", err)
	}
	if err := withLocal.ValidateSourceURI("/data/base"); err != nil {
		t.Errorf("Expected absolute local source to pass, got: %v", err)
	}

	tests := []struct {
		validator *SourceValidator
		uri       string
		message   string
	}{
		{remoteOnly, "", "source cannot be empty"},
		{remoteOnly, "/data/base", "local sources are disabled"},
		{withLocal, "data/base", "local source must be an absolute path"},
		{remoteOnly, "s3://bucket/base", "source scheme not allowed"},
		{remoteOnly, "az:///prefix", "invalid Azure source"},
	}
	for _, tt := range tests {
		err := tt.validator.ValidateSourceURI(tt.uri)
		if err == nil {
			t.Errorf("Expected %q to fail validation", tt.uri)
			continue
		}
		expectMessage(t, err, tt.message)
	}
}
