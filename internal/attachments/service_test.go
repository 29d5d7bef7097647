package attachments

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	bucket      string
	path        string
	contentType string
	data        []byte
	calls       int
}

func (u *fakeUploader) Upload(ctx context.Context, bucket, path, contentType string, body io.Reader) (string, error) {
	u.calls++
	u.bucket = bucket
	u.path = path
	u.contentType = contentType
	u.data, _ = io.ReadAll(body)
	return "https://cdn.example.com/" + path, nil
}

func (u *fakeUploader) SignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	return "https://cdn.example.com/" + path + "?signed=1", nil
}

func pdfBytes(size int) []byte {
	data := append([]byte("%PDF-1.7\n"), bytes.Repeat([]byte{'x'}, size)...)
	return data[:size]
}

func TestUploadAcceptsPDF(t *testing.T) {
	up := &fakeUploader{}
	s := NewService(up, "attachments")

	url, err := s.Upload(context.Background(), "user-1", "report.pdf", bytes.NewReader(pdfBytes(1024)))
	require.NoError(t, err)
	require.Equal(t, "attachments", up.bucket)
	require.Equal(t, AllowedType, up.contentType)
	require.True(t, strings.HasPrefix(up.path, "user-1/"), "path must be identity scoped")
	require.True(t, strings.HasSuffix(up.path, "report.pdf"))
	require.Contains(t, url, up.path)
}

func TestUploadRejectsNonPDF(t *testing.T) {
	up := &fakeUploader{}
	s := NewService(up, "attachments")

	_, err := s.Upload(context.Background(), "user-1", "notes.txt", strings.NewReader("plain text, not a pdf"))
	require.ErrorIs(t, err, ErrUnsupportedType)
	require.Zero(t, up.calls, "rejected files must never reach storage")
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	up := &fakeUploader{}
	s := NewService(up, "attachments")

	_, err := s.Upload(context.Background(), "user-1", "big.pdf", bytes.NewReader(pdfBytes(MaxSize+1)))
	require.ErrorIs(t, err, ErrTooLarge)
	require.Zero(t, up.calls)
}

func TestUploadAtSizeLimit(t *testing.T) {
	up := &fakeUploader{}
	s := NewService(up, "attachments")

	_, err := s.Upload(context.Background(), "user-1", "edge.pdf", bytes.NewReader(pdfBytes(MaxSize)))
	require.NoError(t, err)
	require.Len(t, up.data, MaxSize)
}

func TestSanitizeStripsDirectories(t *testing.T) {
	up := &fakeUploader{}
	s := NewService(up, "attachments")

	_, err := s.Upload(context.Background(), "user-1", "../../etc/some report.pdf", bytes.NewReader(pdfBytes(64)))
	require.NoError(t, err)
	require.NotContains(t, up.path, "..")
	require.True(t, strings.HasSuffix(up.path, "some_report.pdf"))
}
