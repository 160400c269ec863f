package profile

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	resp "strife_service/internal/lib/api/response"
	sl "strife_service/internal/lib/logger"
	"strife_service/internal/middleware/authgate"
	"strife_service/internal/models"
	"strife_service/internal/user"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

const dateLayout = "2006-01-02"

type Service interface {
	Profile(ctx context.Context, userID int64) (models.User, error)
	UpdateDisplayName(ctx context.Context, userID int64, displayName string) error
	UpdateEmail(ctx context.Context, userID int64, email string) error
	UpdateDateOfBirth(ctx context.Context, userID int64, dateOfBirth time.Time) error
	ChangeUsername(ctx context.Context, userID int64, currentPassword, newUsername string) error
	ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword string) error
}

// User is the profile as serialized to clients. The password hash and the
// TOTP secret never leave the service.
type User struct {
	ID             int64  `json:"id"`
	Email          string `json:"email"`
	DisplayName    string `json:"displayName"`
	Username       string `json:"username"`
	DateOfBirth    string `json:"dateOfBirth"`
	AvatarURL      string `json:"avatarUrl"`
	IsTwoFAEnabled bool   `json:"isTwoFAEnabled"`
	IsFederated    bool   `json:"isFederated"`
}

type ProfileResponse struct {
	resp.Response
	User User `json:"user"`
}

// NewGet returns the authenticated user's profile.
func NewGet(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.profile.NewGet"

		log := requestLogger(log, op, r)

		userID, ok := authgate.UserID(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Unauthorized"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		u, err := svc.Profile(ctx, userID)
		if err != nil {
			if errors.Is(err, user.ErrUserNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))

				return
			}

			log.Error("failed to load profile", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, ProfileResponse{
			Response: resp.OK(),
			User: User{
				ID:             u.ID,
				Email:          u.Email,
				DisplayName:    u.DisplayName,
				Username:       u.Username,
				DateOfBirth:    u.DateOfBirth.Format(dateLayout),
				AvatarURL:      u.AvatarURL,
				IsTwoFAEnabled: u.IsTwoFAEnabled,
				IsFederated:    u.IsFederated(),
			},
		})
	}
}

type displayNameRequest struct {
	DisplayName string `json:"displayName" validate:"required,max=64"`
}

func NewUpdateDisplayName(log *slog.Logger, validate *validator.Validate, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.profile.NewUpdateDisplayName"

		log := requestLogger(log, op, r)

		var req displayNameRequest
		userID, ok := decodeAuthed(w, r, log, validate, &req)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := svc.UpdateDisplayName(ctx, userID, req.DisplayName); err != nil {
			log.Error("failed to update display name", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, resp.OK())
	}
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func NewUpdateEmail(log *slog.Logger, validate *validator.Validate, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.profile.NewUpdateEmail"

		log := requestLogger(log, op, r)

		var req emailRequest
		userID, ok := decodeAuthed(w, r, log, validate, &req)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := svc.UpdateEmail(ctx, userID, req.Email); err != nil {
			if errors.Is(err, user.ErrEmailTaken) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.ErrorCode(resp.CodeEmailOrUsernameTaken, "Email already in use"))

				return
			}

			log.Error("failed to update email", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, resp.OK())
	}
}

type dateOfBirthRequest struct {
	DateOfBirth string `json:"dateOfBirth" validate:"required"`
}

func NewUpdateDateOfBirth(log *slog.Logger, validate *validator.Validate, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.profile.NewUpdateDateOfBirth"

		log := requestLogger(log, op, r)

		var req dateOfBirthRequest
		userID, ok := decodeAuthed(w, r, log, validate, &req)
		if !ok {
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

		if err := svc.UpdateDateOfBirth(ctx, userID, dateOfBirth); err != nil {
			log.Error("failed to update date of birth", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, resp.OK())
	}
}

type usernameRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewUsername     string `json:"newUsername" validate:"required,min=3,max=32"`
}

func NewUpdateUsername(log *slog.Logger, validate *validator.Validate, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.profile.NewUpdateUsername"

		log := requestLogger(log, op, r)

		var req usernameRequest
		userID, ok := decodeAuthed(w, r, log, validate, &req)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		err := svc.ChangeUsername(ctx, userID, req.CurrentPassword, req.NewUsername)
		if err != nil {
			switch {
			case errors.Is(err, user.ErrInvalidPassword):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.ErrorCode(resp.CodeInvalidPassword, "Incorrect password."))

			case errors.Is(err, user.ErrUsernameTaken):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.ErrorCode(resp.CodeUsernameTaken, "Username is already taken."))

			default:
				log.Error("failed to update username", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		render.JSON(w, r, resp.OK())
	}
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

func NewUpdatePassword(log *slog.Logger, validate *validator.Validate, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.profile.NewUpdatePassword"

		log := requestLogger(log, op, r)

		var req passwordRequest
		userID, ok := decodeAuthed(w, r, log, validate, &req)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		err := svc.ChangePassword(ctx, userID, req.CurrentPassword, req.NewPassword)
		if err != nil {
			if errors.Is(err, user.ErrInvalidPassword) {
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.ErrorCode(resp.CodeInvalidPassword, "Incorrect password."))

				return
			}

			log.Error("failed to update password", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, resp.OK())
	}
}

func requestLogger(log *slog.Logger, op string, r *http.Request) *slog.Logger {
	return log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

// decodeAuthed pulls the authenticated user id from the context and decodes
// and validates the JSON body. It writes the error response itself and
// reports success through the bool.
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
