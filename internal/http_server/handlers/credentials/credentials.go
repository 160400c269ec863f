package credentials

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	resp "strife_service/internal/lib/api/response"
	sl "strife_service/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required"`
}

type Response struct {
	resp.Response
	EmailExists    bool `json:"emailExists"`
	UsernameExists bool `json:"usernameExists"`
}

type Checker interface {
	CheckCredentials(ctx context.Context, email, username string) (emailExists, usernameExists bool, err error)
}

// New answers the registration form's availability probe for an email and a
// username pair.
func New(
	log *slog.Logger,
	validate *validator.Validate,
	checker Checker,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.credentials.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		emailExists, usernameExists, err := checker.CheckCredentials(ctx, req.Email, req.Username)
		if err != nil {
			log.Error("failed to check credentials", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, Response{
			Response:       resp.OK(),
			EmailExists:    emailExists,
			UsernameExists: usernameExists,
		})
	}
}
