package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/portalchat/internal/backend"
	"github.com/portalchat/internal/chat"
	"github.com/portalchat/internal/logger"
	"github.com/portalchat/internal/middleware"
	"github.com/portalchat/internal/model"
	"github.com/portalchat/internal/repository"
)

// ChatHandler serves the REST side of the messaging subsystem: the contact
// list, conversation resolution and the bounded message window. The live
// path goes through the WebSocket gateway; these endpoints back the initial
// page render and non-realtime clients.
type ChatHandler struct {
	backend  *backend.Backend
	registry *chat.Registry
}

func NewChatHandler(b *backend.Backend) *ChatHandler {
	return &ChatHandler{backend: b, registry: chat.NewRegistry(b)}
}

// Contacts returns the caller's counterpart list, already ordered.
func (h *ChatHandler) Contacts(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	role := middleware.GetRole(r.Context())

	contacts, err := h.backend.Counterparts(r.Context(), userID, role)
	if err != nil {
		logger.Errorf("contacts user=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to load contacts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contacts": contacts})
}

type resolveRequest struct {
	ContactID string `json:"contact_id"`
}

type resolveResponse struct {
	ConversationID string `json:"conversation_id"`
}

// Resolve returns the conversation for the caller and the given contact,
// creating it on first contact. Ineligible pairs answer 404: whether the
// counterpart exists at all is not the caller's business.
func (h *ChatHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	role := middleware.GetRole(r.Context())

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ContactID == "" {
		writeError(w, http.StatusBadRequest, "contact_id required")
		return
	}

	studentID, advisorID := userID, req.ContactID
	if role == model.RoleAdvisor {
		studentID, advisorID = req.ContactID, userID
	}

	conv, err := h.registry.Resolve(r.Context(), studentID, advisorID)
	if err != nil {
		if errors.Is(err, backend.ErrNotEligible) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		logger.Errorf("resolve user=%s contact=%s: %v", userID, req.ContactID, err)
		writeError(w, http.StatusInternalServerError, "failed to resolve conversation")
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{ConversationID: conv.ID})
}

// Messages returns the newest window of a conversation in display order.
// Unknown ids and foreign conversations both answer 404.
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID := chi.URLParam(r, "conversationID")

	conv, err := h.backend.GetConversation(r.Context(), convID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		logger.Errorf("messages conv=%s: %v", convID, err)
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if conv.StudentID != userID && conv.AdvisorID != userID {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	limit := queryInt(r, "limit", chat.WindowSize)
	if limit <= 0 || limit > chat.WindowSize {
		limit = chat.WindowSize
	}
	msgs, err := h.backend.LatestMessages(r.Context(), convID, limit)
	if err != nil {
		logger.Errorf("messages conv=%s: %v", convID, err)
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}

	// Newest-first from storage, chronological on the wire.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": convID,
		"messages":        chat.RenderMessages(msgs, userID),
	})
}
