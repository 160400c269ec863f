package google

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"strife_service/internal/auth"
	resp "strife_service/internal/lib/api/response"
	"strife_service/internal/lib/api/session"
	sl "strife_service/internal/lib/logger"
	"strife_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	AccessToken string `json:"accessToken" validate:"required"`
}

type Response struct {
	resp.Response
	Token           string                      `json:"token,omitempty"`
	TwoFARequired   bool                        `json:"twoFARequired,omitempty"`
	StepToken       string                      `json:"stepToken,omitempty"`
	NeedsCompletion bool                        `json:"needsCompletion,omitempty"`
	RegisterToken   string                      `json:"registerToken,omitempty"`
	UserData        *models.PendingRegistration `json:"userData,omitempty"`
}

type Authenticator interface {
	LoginGoogle(ctx context.Context, accessToken string) (auth.LoginResult, error)
}

// New exchanges a Google access token for a session. Unknown Google accounts
// get back the imported profile and a registration step token instead.
func New(
	log *slog.Logger,
	validate *validator.Validate,
	authenticator Authenticator,
	sessionTTL time.Duration,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.google.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Missing access token"))

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()

		result, err := authenticator.LoginGoogle(ctx, req.AccessToken)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("Failed to fetch user info from Google"))

				return
			}

			log.Error("google login failed", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Authentication failed"))

			return
		}

		switch result.Status {
		case auth.LoginNeedsRegistration:
			render.JSON(w, r, Response{
				Response:        resp.OK(),
				NeedsCompletion: true,
				RegisterToken:   result.StepToken,
				UserData:        result.Pending,
			})

		case auth.LoginTwoFARequired:
			render.JSON(w, r, Response{
				Response:      resp.OK(),
				TwoFARequired: true,
				StepToken:     result.StepToken,
			})

		default:
			log.Info("google user logged in")

			session.SetCookie(w, result.SessionToken, sessionTTL)

			render.JSON(w, r, Response{
				Response: resp.OK(),
				Token:    result.SessionToken,
			})
		}
	}
}
