package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/portalchat/internal/attachment"
	"github.com/portalchat/internal/backend"
	"github.com/portalchat/internal/logger"
	"github.com/portalchat/internal/middleware"
	"github.com/portalchat/internal/model"
	"github.com/portalchat/internal/repository"
)

// AttachmentHandler uploads one file into a conversation the caller belongs
// to and returns the attachment reference plus the message variant. The
// client then sends the actual message over the socket with that reference.
type AttachmentHandler struct {
	backend  *backend.Backend
	pipeline *attachment.Pipeline
}

func NewAttachmentHandler(b *backend.Backend, p *attachment.Pipeline) *AttachmentHandler {
	return &AttachmentHandler{backend: b, pipeline: p}
}

type uploadResponse struct {
	Attachment *model.Attachment `json:"attachment"`
	Kind       model.ContentType `json:"kind"`
}

func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID := chi.URLParam(r, "conversationID")

	conv, err := h.backend.GetConversation(r.Context(), convID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		logger.Errorf("attachment upload conv=%s: %v", convID, err)
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	if conv.StudentID != userID && conv.AdvisorID != userID {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, attachment.MaxSizeBytes+4096)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	att, kind, err := h.pipeline.Upload(r.Context(), convID, header.Filename, header.Size, contentType, file)
	if err != nil {
		var verr *attachment.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusUnprocessableEntity, verr.Reason)
			return
		}
		logger.Errorf("attachment upload conv=%s user=%s: %v", convID, userID, err)
		writeError(w, http.StatusBadGateway, "upload failed")
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{Attachment: att, Kind: kind})
}
