package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/portalchat/internal/model"
)

func TestRenderMessageText(t *testing.T) {
	m := msg("m1", "alice", time.Now().UTC())
	v := RenderMessage(&m, "alice")

	assert.Equal(t, "text", v.Variant)
	assert.Equal(t, m.Content, v.Body)
	assert.True(t, v.Mine)
	assert.False(t, v.Read)
}

func TestRenderMessageImage(t *testing.T) {
	m := msg("m1", "bob", time.Now().UTC())
	m.ContentType = model.ContentTypeImage
	m.Attachment = &model.Attachment{URL: "https://cdn/img.png", Name: "img.png", SizeBytes: 1024}

	v := RenderMessage(&m, "alice")
	assert.Equal(t, "image", v.Variant)
	assert.Equal(t, "https://cdn/img.png", v.ImageURL)
	assert.Empty(t, v.Body)
	assert.False(t, v.Mine)
}

func TestRenderMessageFile(t *testing.T) {
	m := msg("m1", "bob", time.Now().UTC())
	m.ContentType = model.ContentTypeFile
	m.Attachment = &model.Attachment{URL: "https://cdn/doc.pdf", Name: "doc.pdf", SizeBytes: 3 << 20}

	v := RenderMessage(&m, "alice")
	assert.Equal(t, "file", v.Variant)
	assert.Equal(t, "https://cdn/doc.pdf", v.FileURL)
	assert.Equal(t, "doc.pdf", v.FileName)
	assert.Equal(t, "3.0 MB", v.FileSizeLabel)
}

func TestRenderMessageUnknownTypeDegradesToText(t *testing.T) {
	m := msg("m1", "bob", time.Now().UTC())
	m.ContentType = model.ContentType("sticker")
	m.Content = "unsupported payload"

	v := RenderMessage(&m, "alice")
	assert.Equal(t, "text", v.Variant)
	assert.Equal(t, "unsupported payload", v.Body)
}

func TestRenderMessageImageWithoutAttachmentFallsBack(t *testing.T) {
	m := msg("m1", "bob", time.Now().UTC())
	m.ContentType = model.ContentTypeImage

	v := RenderMessage(&m, "alice")
	assert.Equal(t, "text", v.Variant)
}

func TestRenderReadIndicator(t *testing.T) {
	m := msg("m1", "alice", time.Now().UTC())
	m.ReadBy = map[string]time.Time{"bob": time.Now().UTC()}

	v := RenderMessage(&m, "alice")
	assert.True(t, v.Read)

	// The sender's own receipt must not flip the indicator.
	m.ReadBy = map[string]time.Time{"alice": time.Now().UTC()}
	v = RenderMessage(&m, "alice")
	assert.False(t, v.Read)
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "512 B", humanSize(512))
	assert.Equal(t, "2.0 KB", humanSize(2048))
	assert.Equal(t, "1.5 MB", humanSize(3<<20/2))
}
