package login

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

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type Response struct {
	resp.Response
	Token         string `json:"token,omitempty"`
	TwoFARequired bool   `json:"twoFARequired,omitempty"`
	StepToken     string `json:"stepToken,omitempty"`
}

type VerifyRequest struct {
	StepToken string `json:"stepToken" validate:"required"`
	Code      string `json:"code" validate:"required,len=6,numeric"`
}

type Authenticator interface {
	Login(ctx context.Context, username, password string) (auth.LoginResult, error)
	VerifyLoginCode(ctx context.Context, stepToken, code string) (string, error)
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	authenticator Authenticator,
	sessionTTL time.Duration,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.login.New"

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

		log.Info("Request body decoded")

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		result, err := authenticator.Login(ctx, req.Username, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.ErrorCode(resp.CodeInvalidCredentials, "Invalid credentials"))

				return
			}

			log.Error("failed to login user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		if result.Status == auth.LoginTwoFARequired {
			render.JSON(w, r, Response{
				Response:      resp.OK(),
				TwoFARequired: true,
				StepToken:     result.StepToken,
			})

			return
		}

		log.Info("User logged in successfully")

		session.SetCookie(w, result.SessionToken, sessionTTL)

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Token:    result.SessionToken,
		})
	}
}

// NewVerify2FA handles the second leg of a 2FA login: step token plus a
// 6-digit code in exchange for a session token.
func NewVerify2FA(
	log *slog.Logger,
	validate *validator.Validate,
	authenticator Authenticator,
	sessionTTL time.Duration,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.login.NewVerify2FA"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req VerifyRequest

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

		token, err := authenticator.VerifyLoginCode(ctx, req.StepToken, req.Code)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCode) {
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.ErrorCode(resp.CodeInvalidToken, "Invalid 2FA code"))

				return
			}
			if errors.Is(err, auth.ErrInvalidStepToken) {
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.ErrorCode(resp.CodeInvalidToken, "Invalid or expired step token"))

				return
			}

			log.Error("failed to verify 2fa code", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("2FA login completed")

		session.SetCookie(w, token, sessionTTL)

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Token:    token,
		})
	}
}
