// Package attachments validates and uploads task attachments. Only PDF
// files up to the size cap are accepted; the content type is sniffed
// from the bytes, never trusted from the request.
package attachments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxSize caps attachment uploads at 3MB.
const MaxSize = 3 << 20

// AllowedType is the only accepted attachment MIME type.
const AllowedType = "application/pdf"

var (
	// ErrTooLarge indicates the file exceeds MaxSize.
	ErrTooLarge = errors.New("attachments: file exceeds 3MB limit")
	// ErrUnsupportedType indicates the file is not a PDF.
	ErrUnsupportedType = errors.New("attachments: only PDF files are allowed")
)

// Uploader is the storage port. *gateway.Client satisfies this.
type Uploader interface {
	Upload(ctx context.Context, bucket, path, contentType string, body io.Reader) (string, error)
	SignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error)
}

// Service validates and stores attachments under per-identity paths.
type Service struct {
	uploader Uploader
	bucket   string
}

// NewService constructs an attachment service for one bucket.
func NewService(uploader Uploader, bucket string) *Service {
	return &Service{uploader: uploader, bucket: bucket}
}

// Upload validates the file and stores it under the actor's path,
// returning the URL to record on the task.
func (s *Service) Upload(ctx context.Context, identityID, filename string, file io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(file, MaxSize+1))
	if err != nil {
		return "", fmt.Errorf("attachments: read file: %w", err)
	}
	if len(data) > MaxSize {
		return "", ErrTooLarge
	}
	if http.DetectContentType(data) != AllowedType {
		return "", ErrUnsupportedType
	}

	objectPath := fmt.Sprintf("%s/%s-%s", identityID, uuid.NewString()[:8], sanitize(filename))
	url, err := s.uploader.Upload(ctx, s.bucket, objectPath, AllowedType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("attachments: upload: %w", err)
	}
	return url, nil
}

// SignedURL returns a time-limited link for a stored attachment.
func (s *Service) SignedURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error) {
	return s.uploader.SignedURL(ctx, s.bucket, objectPath, ttl)
}

// sanitize strips directories and whitespace from a client filename.
func sanitize(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.ReplaceAll(base, " ", "_")
	if base == "." || base == "/" || base == "" {
		return "attachment.pdf"
	}
	return base
}
