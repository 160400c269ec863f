package user

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	sl "strife_service/internal/lib/logger"
	"strife_service/internal/models"
	"strife_service/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidPassword = errors.New("invalid password")
	ErrUsernameTaken   = errors.New("username taken")
	ErrEmailTaken      = errors.New("email taken")
)

type Storage interface {
	UserByID(ctx context.Context, id int64) (models.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	UpdateDisplayName(ctx context.Context, userID int64, displayName string) error
	UpdateEmail(ctx context.Context, userID int64, email string) error
	UpdateDateOfBirth(ctx context.Context, userID int64, dateOfBirth time.Time) error
	UpdateUsername(ctx context.Context, userID int64, username string) error
	UpdatePassword(ctx context.Context, userID int64, passHash []byte) error
	UpdateAvatarURL(ctx context.Context, userID int64, avatarURL string) error
}

type AvatarProcessor interface {
	ProcessAndUpload(ctx context.Context, owner string, raw []byte) (string, error)
	DefaultURL() string
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, event models.Event) error
}

// Service covers profile reads, field-level profile updates and the avatar
// lifecycle.
type Service struct {
	log     *slog.Logger
	storage Storage
	avatars AvatarProcessor
	events  EventPublisher
}

func New(log *slog.Logger, storage Storage, avatars AvatarProcessor, events EventPublisher) *Service {
	return &Service{
		log:     log,
		storage: storage,
		avatars: avatars,
		events:  events,
	}
}

func (s *Service) Profile(ctx context.Context, userID int64) (models.User, error) {
	u, err := s.storage.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.User{}, ErrUserNotFound
		}

		return models.User{}, err
	}

	return u, nil
}

func (s *Service) UpdateDisplayName(ctx context.Context, userID int64, displayName string) error {
	return s.storage.UpdateDisplayName(ctx, userID, displayName)
}

func (s *Service) UpdateEmail(ctx context.Context, userID int64, email string) error {
	err := s.storage.UpdateEmail(ctx, userID, email)
	if errors.Is(err, storage.ErrUserExists) {
		return ErrEmailTaken
	}

	return err
}

func (s *Service) UpdateDateOfBirth(ctx context.Context, userID int64, dateOfBirth time.Time) error {
	return s.storage.UpdateDateOfBirth(ctx, userID, dateOfBirth)
}

// ChangeUsername renames the account after re-checking the current password.
func (s *Service) ChangeUsername(ctx context.Context, userID int64, currentPassword, newUsername string) error {
	const op = "user.ChangeUsername"

	log := s.log.With(slog.String("op", op), slog.Int64("uid", userID))

	if err := s.verifyPassword(ctx, userID, currentPassword); err != nil {
		return err
	}

	taken, err := s.storage.UsernameExists(ctx, newUsername)
	if err != nil {
		log.Error("failed to check username", sl.Err(err))
		return err
	}
	if taken {
		return ErrUsernameTaken
	}

	if err := s.storage.UpdateUsername(ctx, userID, newUsername); err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			// Lost the race to another rename.
			return ErrUsernameTaken
		}

		log.Error("failed to update username", sl.Err(err))
		return err
	}

	log.Info("username changed")

	return nil
}

// ChangePassword re-hashes and stores a new password after re-checking the
// current one.
func (s *Service) ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword string) error {
	const op = "user.ChangePassword"

	log := s.log.With(slog.String("op", op), slog.Int64("uid", userID))

	if err := s.verifyPassword(ctx, userID, currentPassword); err != nil {
		return err
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to hash password", sl.Err(err))
		return err
	}

	if err := s.storage.UpdatePassword(ctx, userID, passHash); err != nil {
		log.Error("failed to update password", sl.Err(err))
		return err
	}

	s.publish(ctx, models.Event{Kind: models.EventPasswordChanged, UserID: userID})

	log.Info("password changed")

	return nil
}

// UploadAvatar runs the raw image through the processing pipeline and points
// the profile at the stored object.
func (s *Service) UploadAvatar(ctx context.Context, userID int64, raw []byte) (string, error) {
	const op = "user.UploadAvatar"

	log := s.log.With(slog.String("op", op), slog.Int64("uid", userID))

	url, err := s.avatars.ProcessAndUpload(ctx, strconv.FormatInt(userID, 10), raw)
	if err != nil {
		return "", err
	}

	if err := s.storage.UpdateAvatarURL(ctx, userID, url); err != nil {
		log.Error("failed to update avatar url", sl.Err(err))
		return "", err
	}

	log.Info("avatar uploaded")

	return url, nil
}

// RemoveAvatar points the profile back at the default avatar. The stored
// object is left in place, matching upload-overwrite semantics.
func (s *Service) RemoveAvatar(ctx context.Context, userID int64) (string, error) {
	defaultURL := s.avatars.DefaultURL()

	if err := s.storage.UpdateAvatarURL(ctx, userID, defaultURL); err != nil {
		return "", err
	}

	return defaultURL, nil
}

func (s *Service) verifyPassword(ctx context.Context, userID int64, password string) error {
	u, err := s.storage.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return ErrUserNotFound
		}

		return err
	}

	if len(u.PassHash) == 0 ||
		bcrypt.CompareHashAndPassword(u.PassHash, []byte(password)) != nil {
		return ErrInvalidPassword
	}

	return nil
}

func (s *Service) publish(ctx context.Context, event models.Event) {
	if err := s.events.PublishEvent(ctx, event); err != nil {
		s.log.Warn("failed to publish event", slog.String("kind", event.Kind), sl.Err(err))
	}
}
