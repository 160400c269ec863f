package twofa

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"strife_service/internal/auth/totp"
	"strife_service/internal/lib/jwt"
	sl "strife_service/internal/lib/logger"
	"strife_service/internal/models"
	"strife_service/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAlreadyEnabled  = errors.New("2fa already enabled")
	ErrNotEnabled      = errors.New("2fa not enabled")
	ErrInvalidCode     = errors.New("invalid 2fa code")
	ErrInvalidToken    = errors.New("invalid or expired setup token")
	ErrInvalidPassword = errors.New("invalid password")
	ErrUserNotFound    = errors.New("user not found")
)

type UserProvider interface {
	UserByID(ctx context.Context, id int64) (models.User, error)
}

type TwoFASaver interface {
	SetTwoFA(ctx context.Context, userID int64, secret string, enabled bool) error
}

type StepTokenStore interface {
	MarkStepTokenUsed(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, event models.Event) error
}

// Service drives TOTP enrollment through its three states:
// disabled -> pending-enrollment -> enabled. A pending secret lives only
// inside the setup step token until the first code verifies.
type Service struct {
	log         *slog.Logger
	users       UserProvider
	saver       TwoFASaver
	steps       StepTokenStore
	events      EventPublisher
	totp        *totp.Engine
	tokenSecret string
	setupTTL    time.Duration
}

func New(
	log *slog.Logger,
	users UserProvider,
	saver TwoFASaver,
	steps StepTokenStore,
	events EventPublisher,
	totpEngine *totp.Engine,
	tokenSecret string,
	setupTTL time.Duration,
) *Service {
	return &Service{
		log:         log,
		users:       users,
		saver:       saver,
		steps:       steps,
		events:      events,
		totp:        totpEngine,
		tokenSecret: tokenSecret,
		setupTTL:    setupTTL,
	}
}

type SetupData struct {
	Secret     string
	OtpauthURL string
	SetupToken string
}

// Setup starts enrollment: a fresh secret is generated and returned inside a
// setup token, nothing is persisted yet.
func (s *Service) Setup(ctx context.Context, userID int64) (SetupData, error) {
	const op = "twofa.Setup"

	log := s.log.With(slog.String("op", op), slog.Int64("uid", userID))

	user, err := s.users.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return SetupData{}, ErrUserNotFound
		}

		log.Error("failed to load user", sl.Err(err))
		return SetupData{}, err
	}

	if user.IsTwoFAEnabled {
		return SetupData{}, ErrAlreadyEnabled
	}

	secret, otpauthURL, err := s.totp.GenerateSecret(user.Email)
	if err != nil {
		log.Error("failed to generate secret", sl.Err(err))
		return SetupData{}, err
	}

	setupToken, err := jwt.NewStepToken(
		jwt.PurposeTwoFASetup,
		map[string]string{
			"sub":    claimsSubject(userID),
			"secret": secret,
		},
		s.tokenSecret,
		s.setupTTL,
	)
	if err != nil {
		log.Error("failed to generate setup token", sl.Err(err))
		return SetupData{}, err
	}

	log.Info("2fa enrollment started")

	return SetupData{
		Secret:     secret,
		OtpauthURL: otpauthURL,
		SetupToken: setupToken,
	}, nil
}

// VerifySetup completes enrollment: a correct code against the pending secret
// persists it and flips the account to enabled. On a wrong code nothing
// changes and the setup token stays usable.
func (s *Service) VerifySetup(ctx context.Context, userID int64, setupToken, code string) error {
	const op = "twofa.VerifySetup"

	log := s.log.With(slog.String("op", op), slog.Int64("uid", userID))

	claims, err := jwt.ParseStepToken(setupToken, s.tokenSecret, jwt.PurposeTwoFASetup)
	if err != nil {
		log.Info("bad setup token", sl.Err(err))
		return ErrInvalidToken
	}

	sub, err := claims.Subject()
	if err != nil || sub != userID {
		return ErrInvalidToken
	}

	secret := claims.Extra["secret"]
	if secret == "" {
		return ErrInvalidToken
	}

	if !s.totp.Validate(code, secret) {
		log.Info("invalid setup code")
		return ErrInvalidCode
	}

	fresh, err := s.steps.MarkStepTokenUsed(ctx, claims.JTI, s.setupTTL)
	if err != nil {
		log.Error("failed to mark setup token used", sl.Err(err))
		return err
	}
	if !fresh {
		return ErrInvalidToken
	}

	if err := s.saver.SetTwoFA(ctx, userID, secret, true); err != nil {
		log.Error("failed to enable 2fa", sl.Err(err))
		return err
	}

	s.publish(ctx, models.Event{Kind: models.EventTwoFAEnabled, UserID: userID})

	log.Info("2fa enabled")

	return nil
}

// Verify checks a code against the stored secret of an enabled account.
func (s *Service) Verify(ctx context.Context, userID int64, code string) error {
	const op = "twofa.Verify"

	log := s.log.With(slog.String("op", op), slog.Int64("uid", userID))

	user, err := s.users.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return ErrUserNotFound
		}

		log.Error("failed to load user", sl.Err(err))
		return err
	}

	if !user.IsTwoFAEnabled || user.TwoFASecret == "" {
		return ErrNotEnabled
	}

	if !s.totp.Validate(code, user.TwoFASecret) {
		return ErrInvalidCode
	}

	return nil
}

// Remove disables 2FA. It demands both the current password and a currently
// valid code; failing either leaves the account untouched.
func (s *Service) Remove(ctx context.Context, userID int64, password, code string) error {
	const op = "twofa.Remove"

	log := s.log.With(slog.String("op", op), slog.Int64("uid", userID))

	user, err := s.users.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return ErrUserNotFound
		}

		log.Error("failed to load user", sl.Err(err))
		return err
	}

	if !user.IsTwoFAEnabled || user.TwoFASecret == "" {
		return ErrNotEnabled
	}

	if len(user.PassHash) == 0 ||
		bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)) != nil {
		log.Info("wrong password on 2fa removal")
		return ErrInvalidPassword
	}

	if !s.totp.Validate(code, user.TwoFASecret) {
		log.Info("wrong code on 2fa removal")
		return ErrInvalidCode
	}

	if err := s.saver.SetTwoFA(ctx, userID, "", false); err != nil {
		log.Error("failed to disable 2fa", sl.Err(err))
		return err
	}

	s.publish(ctx, models.Event{Kind: models.EventTwoFADisabled, UserID: userID})

	log.Info("2fa removed")

	return nil
}

func (s *Service) publish(ctx context.Context, event models.Event) {
	if err := s.events.PublishEvent(ctx, event); err != nil {
		s.log.Warn("failed to publish event", slog.String("kind", event.Kind), sl.Err(err))
	}
}

func claimsSubject(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
