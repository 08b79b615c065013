package attachment

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portalchat/internal/model"
)

type fakeUploader struct {
	mu    sync.Mutex
	calls int
	path  string
	size  int64
	ct    string
	err   error
}

func (f *fakeUploader) Put(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.path = objectPath
	f.size = size
	f.ct = contentType
	if f.err != nil {
		return "", f.err
	}
	io.Copy(io.Discard, r)
	return "https://cdn.example.com/" + objectPath, nil
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("photo.png", 1024, "image/png"))
	assert.NoError(t, Validate("notes.txt", 1, "text/plain; charset=utf-8"))

	var verr *ValidationError
	err := Validate("huge.pdf", MaxSizeBytes+1, "application/pdf")
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "5 MB")

	err = Validate("run.exe", 100, "application/x-msdownload")
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "not allowed")

	err = Validate("empty.png", 0, "image/png")
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "empty")
}

func TestKind(t *testing.T) {
	assert.Equal(t, model.ContentTypeImage, Kind("image/jpeg"))
	assert.Equal(t, model.ContentTypeImage, Kind("image/png; charset=binary"))
	assert.Equal(t, model.ContentTypeFile, Kind("application/pdf"))
	assert.Equal(t, model.ContentTypeFile, Kind("text/plain"))
}

func TestUploadRejectsBeforeAnyNetworkCall(t *testing.T) {
	up := &fakeUploader{}
	p := NewPipeline(up)

	_, _, err := p.Upload(context.Background(), "c1", "huge.png", MaxSizeBytes+1, "image/png", strings.NewReader("x"))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Zero(t, up.calls, "rejected files must never touch the uploader")

	_, _, err = p.Upload(context.Background(), "c1", "run.sh", 10, "application/x-sh", strings.NewReader("x"))
	require.ErrorAs(t, err, &verr)
	assert.Zero(t, up.calls)
}

func TestUploadProducesReference(t *testing.T) {
	up := &fakeUploader{}
	p := NewPipeline(up)

	att, kind, err := p.Upload(context.Background(), "conv-7", "my+holiday+photo.JPG", 2048, "image/jpeg", bytes.NewReader(make([]byte, 2048)))
	require.NoError(t, err)

	assert.Equal(t, model.ContentTypeImage, kind)
	assert.Equal(t, "my holiday photo.JPG", att.Name)
	assert.Equal(t, int64(2048), att.SizeBytes)
	assert.True(t, strings.HasPrefix(att.URL, "https://cdn.example.com/conv-7/"))
	assert.True(t, strings.HasSuffix(up.path, ".jpg"), "object path keeps a lowercased extension")
	assert.Equal(t, "image/jpeg", up.ct)
	assert.Equal(t, 1, up.calls)
}

func TestUploadNotRetriedOnFailure(t *testing.T) {
	up := &fakeUploader{err: io.ErrUnexpectedEOF}
	p := NewPipeline(up)

	_, _, err := p.Upload(context.Background(), "c1", "doc.pdf", 100, "application/pdf", strings.NewReader("x"))
	require.Error(t, err)
	assert.Equal(t, 1, up.calls, "a failed upload is surfaced, never retried silently")
}

func TestPreviewMagicNumbers(t *testing.T) {
	png := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, []byte("rest")...)

	data, err := Preview("image/png", bytes.NewReader(png))
	require.NoError(t, err)
	assert.Equal(t, png, data)

	// Declared JPEG, actual PNG bytes: rejected before any upload happens.
	_, err = Preview("image/jpeg", bytes.NewReader(png))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "does not match")
}

func TestPreviewRejectsNonImages(t *testing.T) {
	_, err := Preview("application/pdf", strings.NewReader("%PDF-1.4"))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}
