package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/portalchat/internal/model"
	"github.com/portalchat/internal/repository"
)

// Identity resolves the caller from the headers the portal gateway injects
// after authenticating the request (X-Portal-User). The account is looked up
// so a stale or fabricated id never reaches a handler; the role always comes
// from the database, never from the client.
func Identity(directory *repository.DirectoryRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get("X-Portal-User"))
			if userID == "" {
				userID = strings.TrimSpace(r.URL.Query().Get("user_id"))
			}
			if userID == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			user, err := directory.GetUser(r.Context(), userID)
			if err != nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			if user.Role != model.RoleStudent && user.Role != model.RoleAdvisor {
				http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, user.ID)
			ctx = context.WithValue(ctx, RoleKey, user.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
