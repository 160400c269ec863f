package twofa

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"strife_service/internal/auth/twofa"
	resp "strife_service/internal/lib/api/response"
	sl "strife_service/internal/lib/logger"
	"strife_service/internal/middleware/authgate"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Service interface {
	Setup(ctx context.Context, userID int64) (twofa.SetupData, error)
	VerifySetup(ctx context.Context, userID int64, setupToken, code string) error
	Verify(ctx context.Context, userID int64, code string) error
	Remove(ctx context.Context, userID int64, password, code string) error
}

type SetupResponse struct {
	resp.Response
	Secret     string `json:"secret"`
	OtpauthURL string `json:"otpauthUrl"`
	SetupToken string `json:"setupToken"`
}

// NewSetup starts TOTP enrollment. The secret is returned to the client for
// QR rendering and rides back in the setup token; nothing is stored yet.
func NewSetup(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.twofa.NewSetup"

		log := requestLogger(log, op, r)

		userID, ok := authgate.UserID(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Unauthorized"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		data, err := svc.Setup(ctx, userID)
		if err != nil {
			switch {
			case errors.Is(err, twofa.ErrAlreadyEnabled):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("2FA is already enabled for this account."))

			case errors.Is(err, twofa.ErrUserNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))

			default:
				log.Error("failed to start 2fa setup", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("2fa setup started")

		render.JSON(w, r, SetupResponse{
			Response:   resp.OK(),
			Secret:     data.Secret,
			OtpauthURL: data.OtpauthURL,
			SetupToken: data.SetupToken,
		})
	}
}

type verifySetupRequest struct {
	SetupToken string `json:"setupToken" validate:"required"`
	Code       string `json:"code" validate:"required,len=6,numeric"`
}

// NewVerifySetup completes enrollment with the first valid code.
func NewVerifySetup(log *slog.Logger, validate *validator.Validate, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.twofa.NewVerifySetup"

		log := requestLogger(log, op, r)

		var req verifySetupRequest
		userID, ok := decodeAuthed(w, r, log, validate, &req)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		err := svc.VerifySetup(ctx, userID, req.SetupToken, req.Code)
		if err != nil {
			switch {
			case errors.Is(err, twofa.ErrInvalidCode):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.ErrorCode(resp.CodeInvalidToken, "Invalid 2FA code"))

			case errors.Is(err, twofa.ErrInvalidToken):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.ErrorCode(resp.CodeInvalidToken, "Invalid or expired setup token"))

			default:
				log.Error("failed to verify 2fa setup", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("2fa enabled")

		render.JSON(w, r, resp.OK())
	}
}

type verifyRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// NewVerify re-checks a code against the stored secret, used before other
// sensitive actions.
func NewVerify(log *slog.Logger, validate *validator.Validate, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.twofa.NewVerify"

		log := requestLogger(log, op, r)

		var req verifyRequest
		userID, ok := decodeAuthed(w, r, log, validate, &req)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		err := svc.Verify(ctx, userID, req.Code)
		if err != nil {
			switch {
			case errors.Is(err, twofa.ErrInvalidCode):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.ErrorCode(resp.CodeInvalidToken, "Invalid 2FA Token."))

			case errors.Is(err, twofa.ErrNotEnabled):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("2FA not setup for this user"))

			case errors.Is(err, twofa.ErrUserNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))

			default:
				log.Error("failed to verify 2fa code", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		render.JSON(w, r, resp.OK())
	}
}

type removeRequest struct {
	Password string `json:"password" validate:"required"`
	Code     string `json:"code" validate:"required,len=6,numeric"`
}

// NewRemove disables 2FA after re-verifying both the password and a current
// code.
func NewRemove(log *slog.Logger, validate *validator.Validate, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.twofa.NewRemove"

		log := requestLogger(log, op, r)

		var req removeRequest
		userID, ok := decodeAuthed(w, r, log, validate, &req)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		err := svc.Remove(ctx, userID, req.Password, req.Code)
		if err != nil {
			switch {
			case errors.Is(err, twofa.ErrInvalidPassword):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.ErrorCode(resp.CodeInvalidPassword, "Incorrect password."))

			case errors.Is(err, twofa.ErrInvalidCode):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.ErrorCode(resp.CodeInvalidToken, "Invalid 2FA code"))

			case errors.Is(err, twofa.ErrNotEnabled):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("2FA is not enabled for this account."))

			case errors.Is(err, twofa.ErrUserNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))

			default:
				log.Error("failed to remove 2fa", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("2fa removed")

		render.JSON(w, r, resp.OK())
	}
}

func requestLogger(log *slog.Logger, op string, r *http.Request) *slog.Logger {
	return log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

func decodeAuthed(
	w http.ResponseWriter,
	r *http.Request,
	log *slog.Logger,
	validate *validator.Validate,
	req any,
) (int64, bool) {
	userID, ok := authgate.UserID(r.Context())
	if !ok {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, resp.Error("Unauthorized"))

		return 0, false
	}

	if err := render.DecodeJSON(r.Body, req); err != nil {
		log.Error("Failed to decode request body", sl.Err(err))

		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, resp.Error("Failed to decode request"))

		return 0, false
	}

	if err := validate.Struct(req); err != nil {
		validateErr := err.(validator.ValidationErrors)

		log.Error("Invalid request", sl.Err(err))

		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, resp.ValidationError(validateErr))

		return 0, false
	}

	return userID, true
}
