package validation

import (
	"net/url"
	"strings"

	apperrors "github.com/anime-shed/meter-reader-go/internal/errors"
)

// BlobHostSuffix is the host suffix of Azure blob storage endpoints
const BlobHostSuffix = ".blob.core.windows.net"

// URLValidator checks remote frame sources before they are fetched.
// Host entries starting with "." match any subdomain.
type URLValidator struct {
	allowedSchemes []string
	allowedHosts   []string
}

// NewURLValidator creates a new URL validator accepting any http(s) host
func NewURLValidator() *URLValidator {
	return &URLValidator{
		allowedSchemes: []string{"http", "https"},
		allowedHosts:   []string{},
	}
}

// NewURLValidatorWithOptions creates a URL validator with custom options
func NewURLValidatorWithOptions(schemes []string, hosts []string) *URLValidator {
	return &URLValidator{
		allowedSchemes: schemes,
		allowedHosts:   hosts,
	}
}

// ValidateImageURL validates a meter photo URL
func (v *URLValidator) ValidateImageURL(imageURL string) error {
	_, err := v.parse(imageURL)
	return err
}

// ValidateBlobURL validates an Azure blob URL of the form
// https://<account>.blob.core.windows.net/<container>/<blob>.
func (v *URLValidator) ValidateBlobURL(blobURL string) error {
	parsed, err := v.parse(blobURL)
	if err != nil {
		return err
	}
	if parsed.Scheme != "https" || !strings.HasSuffix(parsed.Hostname(), BlobHostSuffix) {
		return apperrors.NewValidationError("URL is not an Azure blob endpoint", nil).
			WithContext("host", parsed.Host)
	}
	parts := strings.SplitN(strings.TrimPrefix(parsed.Path, "/"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return apperrors.NewValidationError("Blob URL must name a container and a blob", nil)
	}
	return nil
}

func (v *URLValidator) parse(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, apperrors.NewValidationError("URL cannot be empty", nil)
	}

	parsedURL, err := url.Parse(raw)
	if err != nil {
		return nil, apperrors.NewValidationError("Invalid URL format", err)
	}

	if !v.isSchemeAllowed(parsedURL.Scheme) {
		return nil, apperrors.NewValidationError("URL scheme not allowed", nil).
			WithContext("scheme", parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return nil, apperrors.NewValidationError("URL must have a valid host", nil)
	}

	if !v.isHostAllowed(parsedURL.Hostname()) {
		return nil, apperrors.NewValidationError("URL host not allowed", nil).
			WithContext("host", parsedURL.Host)
	}

	return parsedURL, nil
}

func (v *URLValidator) isSchemeAllowed(scheme string) bool {
	for _, allowed := range v.allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

// isHostAllowed returns true when no host restrictions are set
func (v *URLValidator) isHostAllowed(host string) bool {
	if len(v.allowedHosts) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, allowed := range v.allowedHosts {
		allowed = strings.ToLower(allowed)
		if strings.HasPrefix(allowed, ".") {
			if strings.HasSuffix(host, allowed) {
				return true
			}
			continue
		}
		if host == allowed {
			return true
		}
	}
	return false
}
