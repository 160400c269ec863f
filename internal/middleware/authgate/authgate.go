package authgate

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	resp "strife_service/internal/lib/api/response"
	"strife_service/internal/lib/api/session"
	libjwt "strife_service/internal/lib/jwt"

	"github.com/go-chi/render"
)

type ctxKey struct{}

// New builds the authorization gate: it accepts a bearer Authorization header
// or the session cookie, validates the token and puts the subject user id
// into the request context. Missing token -> 401, invalid or expired -> 403.
func New(log *slog.Logger, tokenSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.ErrorCode(resp.CodeInvalidToken, "Access denied. No token provided."))

				return
			}

			userID, err := libjwt.ParseSessionToken(token, tokenSecret)
			if err != nil {
				log.Info("rejected token", slog.String("reason", err.Error()))

				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.ErrorCode(resp.CodeInvalidToken, "Invalid or expired token"))

				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID returns the authenticated subject of the request, if the gate ran.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ctxKey{}).(int64)
	return id, ok
}

func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}

	if cookie, err := r.Cookie(session.CookieName); err == nil {
		return cookie.Value
	}

	return ""
}
