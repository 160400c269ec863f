package logout

import (
	"log/slog"
	"net/http"

	resp "strife_service/internal/lib/api/response"
	"strife_service/internal/lib/api/session"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

// New clears the session cookie. Session tokens are stateless, so there is
// nothing to revoke server-side.
func New(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.logout.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		session.ClearCookie(w)

		log.Info("user logged out")

		render.JSON(w, r, resp.OK())
	}
}
