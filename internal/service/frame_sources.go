package service

import (
	"context"
	"io"
	"strings"

	apperrors "github.com/anime-shed/meter-reader-go/internal/errors"
	"github.com/anime-shed/meter-reader-go/internal/frame"
	"github.com/anime-shed/meter-reader-go/internal/quality"
	"github.com/anime-shed/meter-reader-go/internal/storage"
	"github.com/anime-shed/meter-reader-go/pkg/models"
)

// FrameResolver turns the different capture inputs into decoded frames.
// Remote sources are optional; a nil fetcher or blob source reports the
// source as unconfigured.
type FrameResolver struct {
	fetcher storage.FrameFetcher
	blobs   storage.BlobSource
	live    quality.FrameSource
}

// NewFrameResolver creates a resolver. Any argument may be nil.
func NewFrameResolver(fetcher storage.FrameFetcher, blobs storage.BlobSource, live quality.FrameSource) *FrameResolver {
	return &FrameResolver{fetcher: fetcher, blobs: blobs, live: live}
}

// FromUpload decodes an uploaded image.
func (r *FrameResolver) FromUpload(rd io.Reader) (*frame.Frame, error) {
	f, err := frame.Decode(rd)
	if err != nil {
		return nil, apperrors.NewPreprocessError("failed to decode uploaded image", err)
	}
	return f, nil
}

// Resolve picks the frame named by a JSON capture request and returns it
// with the record source it came from.
func (r *FrameResolver) Resolve(ctx context.Context, req models.CaptureSourceRequest) (*frame.Frame, string, error) {
	switch {
	case req.Live:
		f, err := r.Live()
		return f, models.SourceLive, err
	case strings.TrimSpace(req.BlobURL) != "":
		if r.blobs == nil {
			return nil, "", apperrors.NewValidationError("blob storage is not configured", nil)
		}
		f, err := r.blobs.GetFrame(ctx, req.BlobURL)
		return f, models.SourceBlob, err
	case strings.TrimSpace(req.URL) != "":
		if r.fetcher == nil {
			return nil, "", apperrors.NewValidationError("URL capture is not configured", nil)
		}
		f, err := r.fetcher.FetchFrame(ctx, req.URL)
		return f, models.SourceURL, err
	default:
		return nil, "", apperrors.NewValidationError("one of url, blob_url or live is required", nil)
	}
}

// Live returns the latest camera frame.
func (r *FrameResolver) Live() (*frame.Frame, error) {
	if r.live == nil {
		return nil, apperrors.NewValidationError("live feed is not configured", nil)
	}
	f, _, ok := r.live.Latest()
	if !ok {
		return nil, apperrors.NewNotFoundError("no live frame received yet", nil)
	}
	return f, nil
}
