package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	apperrors "github.com/anime-shed/meter-reader-go/internal/errors"
	"github.com/anime-shed/meter-reader-go/internal/frame"
	"github.com/anime-shed/meter-reader-go/internal/logger"
	"github.com/sirupsen/logrus"
)

// BlobURLValidator vets a blob URL before download.
type BlobURLValidator interface {
	ValidateBlobURL(blobURL string) error
}

// BlobSource loads frames stored in Azure Blob Storage.
type BlobSource interface {
	GetFrame(ctx context.Context, blobURL string) (*frame.Frame, error)
}

type azureStorage struct {
	client    *azblob.Client
	validator BlobURLValidator
	maxBytes  int64
	log       *logrus.Entry
}

// NewAzureStorage authenticates with a shared key. validator may be nil.
func NewAzureStorage(accountName, accountKey string, validator BlobURLValidator) (BlobSource, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("invalid azure credentials: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &azureStorage{
		client:    client,
		validator: validator,
		maxBytes:  DefaultHTTPFetcherOptions().MaxBytes,
		log:       logger.Component("azure_storage"),
	}, nil
}

// ParseBlobURL splits https://<account>.blob.core.windows.net/<container>/<blob>
// into container and blob name. A "blob" query parameter overrides the path
// blob name for URLs that only carry the container in the path.
func ParseBlobURL(blobURL string) (container, blob string, err error) {
	u, err := url.Parse(blobURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid blob URL: %w", err)
	}

	path := strings.TrimPrefix(u.Path, "/")
	container, blob, _ = strings.Cut(path, "/")
	if q := u.Query().Get("blob"); q != "" {
		blob = q
	}
	if container == "" || blob == "" {
		return "", "", fmt.Errorf("blob URL %q must name a container and a blob", blobURL)
	}
	return container, blob, nil
}

func (s *azureStorage) GetFrame(ctx context.Context, blobURL string) (*frame.Frame, error) {
	if s.validator != nil {
		if err := s.validator.ValidateBlobURL(blobURL); err != nil {
			return nil, err
		}
	}
	container, blob, err := ParseBlobURL(blobURL)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid blob URL", err)
	}

	resp, err := s.client.DownloadStream(ctx, container, blob, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, apperrors.NewNotFoundError("blob not found", err).WithContext("blob", blob)
		}
		return nil, apperrors.NewNetworkError("blob download failed", err).WithContext("blob", blob)
	}
	body := resp.Body
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, s.maxBytes))
	if err != nil {
		return nil, apperrors.NewNetworkError("blob read failed", err)
	}

	f, err := frame.DecodeBytes(data)
	if err != nil {
		return nil, apperrors.NewValidationError("failed to decode image", err)
	}

	s.log.WithFields(logrus.Fields{
		"container": container,
		"blob":      blob,
		"bytes":     len(data),
	}).Debug("Fetched frame from blob storage")
	return f, nil
}
