package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/portalchat/internal/chat"
	"github.com/portalchat/internal/gateway"
	"github.com/portalchat/internal/logger"
	"github.com/portalchat/internal/middleware"
)

type WSHandler struct {
	hub            *gateway.Hub
	deps           chat.SessionDeps
	allowedOrigins string
}

// NewWSHandler creates the WebSocket endpoint. allowedOrigins mirrors the
// CORS setting (comma separated or "*").
func NewWSHandler(hub *gateway.Hub, deps chat.SessionDeps, allowedOrigins string) *WSHandler {
	return &WSHandler{hub: hub, deps: deps, allowedOrigins: strings.TrimSpace(allowedOrigins)}
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if h.allowedOrigins == "*" || h.allowedOrigins == "" {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range strings.Split(h.allowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	role := middleware.GetRole(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return h.checkOrigin(r) },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade: %v", err)
		return
	}

	// The request context dies with the HTTP handler; the client lives until
	// the socket closes.
	ctx, cancel := context.WithCancel(context.Background())
	client := gateway.NewClient(h.hub, conn, userID, role, h.deps)
	client.Start(ctx, cancel)
	h.hub.Register(client)
}
