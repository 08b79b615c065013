package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/portalchat/internal/model"
)

// MessageView is the transport-ready projection of one message.
type MessageView struct {
	ID            string    `json:"id"`
	SenderID      string    `json:"sender_id"`
	Mine          bool      `json:"mine"`
	Variant       string    `json:"variant"` // text, image or file
	Body          string    `json:"body,omitempty"`
	ImageURL      string    `json:"image_url,omitempty"`
	FileURL       string    `json:"file_url,omitempty"`
	FileName      string    `json:"file_name,omitempty"`
	FileSizeLabel string    `json:"file_size_label,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	Read          bool      `json:"read"`
}

// RenderMessage projects a message for the given viewer. An unrecognized
// content type degrades to the text variant so old clients still show
// something instead of a hole in the thread.
func RenderMessage(m *model.Message, viewerID string) MessageView {
	v := MessageView{
		ID:        m.ID,
		SenderID:  m.SenderID,
		Mine:      m.SenderID == viewerID,
		Variant:   "text",
		Body:      m.Content,
		CreatedAt: m.CreatedAt,
		Read:      m.ReadByOther(m.SenderID),
	}

	switch m.ContentType {
	case model.ContentTypeImage:
		if m.Attachment != nil {
			v.Variant = "image"
			v.ImageURL = m.Attachment.URL
			v.FileName = m.Attachment.Name
			v.Body = ""
		}
	case model.ContentTypeFile:
		if m.Attachment != nil {
			v.Variant = "file"
			v.FileURL = m.Attachment.URL
			v.FileName = m.Attachment.Name
			v.FileSizeLabel = humanSize(m.Attachment.SizeBytes)
			v.Body = ""
		}
	}
	return v
}

// RenderMessages projects a whole window, preserving order.
func RenderMessages(msgs []model.Message, viewerID string) []MessageView {
	out := make([]MessageView, len(msgs))
	for i := range msgs {
		out[i] = RenderMessage(&msgs[i], viewerID)
	}
	return out
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func trimMessage(s string) string {
	return strings.TrimSpace(s)
}
