package avatarupload

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"strife_service/internal/avatar"
	resp "strife_service/internal/lib/api/response"
	sl "strife_service/internal/lib/logger"
	"strife_service/internal/middleware/authgate"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	AvatarURL string `json:"avatarUrl"`
}

type Service interface {
	UploadAvatar(ctx context.Context, userID int64, raw []byte) (string, error)
	RemoveAvatar(ctx context.Context, userID int64) (string, error)
}

// New accepts a multipart upload under the "avatar" field, runs it through
// the processing pipeline and stores the result.
func New(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.avatarupload.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		userID, ok := authgate.UserID(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Unauthorized"))

			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, avatar.MaxUploadSize)

		if err := r.ParseMultipartForm(avatar.MaxUploadSize); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Avatar must be a multipart upload of at most 1 MiB"))

			return
		}

		file, _, err := r.FormFile("avatar")
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("No file uploaded."))

			return
		}
		defer file.Close()

		raw, err := io.ReadAll(file)
		if err != nil {
			log.Error("failed to read upload", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to read upload"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()

		url, err := svc.UploadAvatar(ctx, userID, raw)
		if err != nil {
			if errors.Is(err, avatar.ErrUnsupportedFormat) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Invalid image format. Please upload a valid image (JPEG, PNG, WebP)."))

				return
			}

			log.Error("failed to upload avatar", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("avatar uploaded")

		render.JSON(w, r, Response{
			Response:  resp.OK(),
			AvatarURL: url,
		})
	}
}

// NewDelete resets the profile to the default avatar.
func NewDelete(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.avatarupload.NewDelete"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		userID, ok := authgate.UserID(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Unauthorized"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		url, err := svc.RemoveAvatar(ctx, userID)
		if err != nil {
			log.Error("failed to remove avatar", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("avatar removed")

		render.JSON(w, r, Response{
			Response:  resp.OK(),
			AvatarURL: url,
		})
	}
}
