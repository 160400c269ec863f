package register

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

const dateLayout = "2006-01-02"

// Request covers both registration paths: a password account (all credential
// fields set) or the completion of a Google signup (register_token set).
type Request struct {
	Email         string `json:"email" validate:"required_without=RegisterToken,omitempty,email"`
	DisplayName   string `json:"displayName" validate:"required_without=RegisterToken"`
	Username      string `json:"username" validate:"required_without=RegisterToken"`
	Password      string `json:"password" validate:"required_without=RegisterToken,omitempty,min=6"`
	DateOfBirth   string `json:"dateOfBirth" validate:"required"`
	RegisterToken string `json:"registerToken,omitempty"`
}

type Response struct {
	resp.Response
	UserID int64  `json:"userId"`
	Token  string `json:"token"`
}

type Registrar interface {
	Register(ctx context.Context, params auth.RegisterParams) (int64, string, error)
	RegisterFederated(ctx context.Context, registerToken string, dateOfBirth time.Time) (int64, string, error)
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	registrar Registrar,
	sessionTTL time.Duration,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.register.New"

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

		dateOfBirth, err := time.Parse(dateLayout, req.DateOfBirth)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("dateOfBirth must be YYYY-MM-DD"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		var (
			userID int64
			token  string
		)

		if req.RegisterToken != "" {
			userID, token, err = registrar.RegisterFederated(ctx, req.RegisterToken, dateOfBirth)
		} else {
			userID, token, err = registrar.Register(ctx, auth.RegisterParams{
				Email:       req.Email,
				DisplayName: req.DisplayName,
				Username:    req.Username,
				Password:    req.Password,
				DateOfBirth: dateOfBirth,
			})
		}
		if err != nil {
			if errors.Is(err, auth.ErrUserExists) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.ErrorCode(resp.CodeEmailOrUsernameTaken, "Email or username already in use"))

				return
			}
			if errors.Is(err, auth.ErrInvalidStepToken) {
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.ErrorCode(resp.CodeInvalidToken, "Invalid or expired registration token"))

				return
			}

			log.Error("failed to register user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("User registered", slog.Int64("id", userID))

		session.SetCookie(w, token, sessionTTL)

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, Response{
			Response: resp.OK(),
			UserID:   userID,
			Token:    token,
		})
	}
}
