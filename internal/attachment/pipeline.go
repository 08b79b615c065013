// Package attachment validates locally selected files and uploads them to
// the object store, producing the reference a message carries. Validation is
// purely local; the single network call happens in Upload, after the user
// confirmed, and is never retried automatically.
package attachment

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/portalchat/internal/model"
)

// MaxSizeBytes is the hard attachment size limit (5 MiB).
const MaxSizeBytes = 5 << 20

// allowedTypes is the fixed allow-list: common image formats plus PDF, Word
// and plain text.
var allowedTypes = map[string]bool{
	"image/jpeg":         true,
	"image/png":          true,
	"image/gif":          true,
	"image/webp":         true,
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"text/plain": true,
}

// ValidationError carries the user-facing rejection reason.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Validate checks MIME type and size. It makes no network call.
func Validate(name string, sizeBytes int64, contentType string) error {
	if !allowedTypes[normalizeContentType(contentType)] {
		return &ValidationError{Reason: fmt.Sprintf("file type %q is not allowed", contentType)}
	}
	if sizeBytes > MaxSizeBytes {
		return &ValidationError{Reason: fmt.Sprintf("file %q exceeds the 5 MB limit", name)}
	}
	if sizeBytes <= 0 {
		return &ValidationError{Reason: "file is empty"}
	}
	return nil
}

// Kind maps an allowed MIME type to the message variant it produces.
func Kind(contentType string) model.ContentType {
	if strings.HasPrefix(normalizeContentType(contentType), "image/") {
		return model.ContentTypeImage
	}
	return model.ContentTypeFile
}

// Uploader is the object-storage collaborator: stream in, URL out.
type Uploader interface {
	Put(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string) (string, error)
}

type Pipeline struct {
	uploader Uploader
}

func NewPipeline(uploader Uploader) *Pipeline {
	return &Pipeline{uploader: uploader}
}

// Upload transmits the file and returns the attachment reference plus the
// message variant. The object path embeds a fresh correlation token because
// the eventual message id does not exist yet. Validation is re-checked here
// so the gate holds even for callers that skipped Validate.
func (p *Pipeline) Upload(ctx context.Context, conversationID, name string, sizeBytes int64, contentType string, r io.Reader) (*model.Attachment, model.ContentType, error) {
	if err := Validate(name, sizeBytes, contentType); err != nil {
		return nil, "", err
	}

	token := uuid.New().String()
	objectPath := conversationID + "/" + token + strings.ToLower(filepath.Ext(name))

	url, err := p.uploader.Put(ctx, objectPath, r, sizeBytes, normalizeContentType(contentType))
	if err != nil {
		return nil, "", fmt.Errorf("attachment upload: %w", err)
	}

	return &model.Attachment{
		URL:       url,
		Name:      displayName(name, token),
		SizeBytes: sizeBytes,
	}, Kind(contentType), nil
}

// normalizeContentType strips parameters like "; charset=utf-8".
func normalizeContentType(ct string) string {
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = ct[:idx]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// displayName keeps the base file name for display; "+" often arrives in
// place of spaces from URL-encoding clients.
func displayName(name, fallback string) string {
	base := strings.TrimSpace(strings.ReplaceAll(filepath.Base(name), "+", " "))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return fallback
	}
	return base
}
