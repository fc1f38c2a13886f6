package server

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Tyrowin/officechat/internal/store"
)

type contextKey string

const userKey contextKey = "user"

// RequireUser is a middleware that mandates a valid bearer token and stores
// the resolved user in the request context.
func (h *Handler) RequireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := h.auth.Identify(r.Context(), bearerToken(r))
		if err != nil {
			h.logger.Debug("auth error", zap.String("path", r.URL.Path), zap.Error(err))
			w.Header().Set("WWW-Authenticate", `Bearer realm="officechat"`)
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// UserFrom returns the user stored by RequireUser.
func UserFrom(ctx context.Context) *store.User {
	u, _ := ctx.Value(userKey).(*store.User)
	return u
}

// bearerToken reads the Authorization header, falling back to the token query
// parameter used by browser WebSocket clients.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}
