package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/anime-shed/meter-reader-go/internal/errors"
	"github.com/anime-shed/meter-reader-go/internal/frame"
	"github.com/anime-shed/meter-reader-go/internal/logger"
	"github.com/sirupsen/logrus"
)

// FrameFetcher loads a remote image into a Frame.
type FrameFetcher interface {
	FetchFrame(ctx context.Context, imageURL string) (*frame.Frame, error)
}

// URLValidator vets a URL before any request is made.
type URLValidator interface {
	ValidateImageURL(imageURL string) error
}

// HTTPFetcherOptions tunes retries and limits.
type HTTPFetcherOptions struct {
	Timeout            time.Duration
	Attempts           int
	Backoff            time.Duration // multiplied by the attempt number
	MaxBytes           int64
	InsecureSkipVerify bool
}

// DefaultHTTPFetcherOptions returns three attempts with 1s, 2s backoff.
func DefaultHTTPFetcherOptions() HTTPFetcherOptions {
	return HTTPFetcherOptions{
		Timeout:  30 * time.Second,
		Attempts: 3,
		Backoff:  time.Second,
		MaxBytes: 10 * 1024 * 1024,
	}
}

// HTTPFrameFetcher implements FrameFetcher over HTTP with retry on
// transient failures.
type HTTPFrameFetcher struct {
	client    *http.Client
	opts      HTTPFetcherOptions
	validator URLValidator
	log       *logrus.Entry
}

// NewHTTPFrameFetcher creates a fetcher. validator may be nil.
func NewHTTPFrameFetcher(opts HTTPFetcherOptions, validator URLValidator) *HTTPFrameFetcher {
	defaults := DefaultHTTPFetcherOptions()
	if opts.Attempts <= 0 {
		opts.Attempts = defaults.Attempts
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaults.MaxBytes
	}

	transport := &http.Transport{
		// Connection pooling sized for single image downloads
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:    10 * time.Second,
		ResponseHeaderTimeout:  10 * time.Second,
		ExpectContinueTimeout:  1 * time.Second,
		MaxResponseHeaderBytes: 4096,

		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipVerify,
		},
	}

	return &HTTPFrameFetcher{
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
		opts:      opts,
		validator: validator,
		log:       logger.Component("http_fetcher"),
	}
}

// errClientStatus marks responses that are not worth retrying.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	if e.code >= 500 {
		return fmt.Sprintf("server error: status code %d", e.code)
	}
	return fmt.Sprintf("client error: status code %d", e.code)
}

func (h *HTTPFrameFetcher) FetchFrame(ctx context.Context, imageURL string) (*frame.Frame, error) {
	if h.validator != nil {
		if err := h.validator.ValidateImageURL(imageURL); err != nil {
			return nil, err
		}
	}

	var lastErr error
	for attempt := 0; attempt < h.opts.Attempts; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * h.opts.Backoff
			h.log.WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"wait":    wait.String(),
			}).WithError(lastErr).Debug("Retrying image fetch")
			select {
			case <-ctx.Done():
				return nil, apperrors.NewCancelledError("image fetch cancelled", ctx.Err())
			case <-time.After(wait):
			}
		}

		data, err := h.get(ctx, imageURL)
		if err == nil {
			f, err := frame.DecodeBytes(data)
			if err != nil {
				return nil, apperrors.NewValidationError("failed to decode image", err)
			}
			return f, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, apperrors.NewCancelledError("image fetch cancelled", ctx.Err())
		}
		var se *statusError
		if errors.As(err, &se) && se.code < 500 {
			break
		}
	}

	return nil, apperrors.NewNetworkError(
		fmt.Sprintf("failed to fetch image after %d attempts", h.opts.Attempts), lastErr).
		WithContext("url", imageURL)
}

func (h *HTTPFrameFetcher) get(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/gif, */*")
	req.Header.Set("User-Agent", "Meter-Reader/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &statusError{code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, h.opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(data)) > h.opts.MaxBytes {
		return nil, &statusError{code: http.StatusRequestEntityTooLarge}
	}
	return data, nil
}
