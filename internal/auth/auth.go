package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"strife_service/internal/auth/totp"
	"strife_service/internal/lib/jwt"
	sl "strife_service/internal/lib/logger"
	"strife_service/internal/models"
	"strife_service/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCode        = errors.New("invalid 2fa code")
	ErrInvalidStepToken   = errors.New("invalid or expired step token")
	ErrInvalidPassword    = errors.New("invalid password")
)

// LoginStatus is the outcome variant of a login attempt. It replaces the
// overloaded multi-argument callback shape of the original flow with an
// explicit result type.
type LoginStatus int

const (
	LoginAuthenticated LoginStatus = iota
	LoginTwoFARequired
	LoginNeedsRegistration
)

type LoginResult struct {
	Status       LoginStatus
	SessionToken string
	StepToken    string
	Pending      *models.PendingRegistration
}

type UserSaver interface {
	SaveUser(ctx context.Context, u models.User) (int64, error)
	UpdateGoogleAccessToken(ctx context.Context, userID int64, accessToken string) error
}

type UserProvider interface {
	UserByID(ctx context.Context, id int64) (models.User, error)
	UserByUsername(ctx context.Context, username string) (models.User, error)
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByGoogleID(ctx context.Context, googleID string) (models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
}

// StepTokenStore enforces one-time use of consumed step tokens.
type StepTokenStore interface {
	MarkStepTokenUsed(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, event models.Event) error
}

type GoogleProvider interface {
	Userinfo(ctx context.Context, accessToken string) (models.GoogleProfile, error)
	FetchPhoto(ctx context.Context, pictureURL string) ([]byte, error)
}

// AvatarStore is the slice of the avatar pipeline the auth flow needs: the
// federated signup imports the Google photo through it.
type AvatarStore interface {
	ProcessAndUpload(ctx context.Context, owner string, raw []byte) (string, error)
	DefaultURL() string
}

type Auth struct {
	log         *slog.Logger
	usrSaver    UserSaver
	usrProvider UserProvider
	steps       StepTokenStore
	events      EventPublisher
	google      GoogleProvider
	avatars     AvatarStore
	totp        *totp.Engine
	tokenSecret string
	sessionTTL  time.Duration
	stepTTL     time.Duration
	registerTTL time.Duration
}

func New(
	log *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	steps StepTokenStore,
	events EventPublisher,
	google GoogleProvider,
	avatars AvatarStore,
	totpEngine *totp.Engine,
	tokenSecret string,
	sessionTTL, stepTTL, registerTTL time.Duration,
) *Auth {
	return &Auth{
		log:         log,
		usrSaver:    userSaver,
		usrProvider: userProvider,
		steps:       steps,
		events:      events,
		google:      google,
		avatars:     avatars,
		totp:        totpEngine,
		tokenSecret: tokenSecret,
		sessionTTL:  sessionTTL,
		stepTTL:     stepTTL,
		registerTTL: registerTTL,
	}
}

// Login checks a username/password pair. Unknown user and wrong password are
// indistinguishable to the caller. Accounts with 2FA enabled get a short-lived
// step token instead of a session.
func (a *Auth) Login(ctx context.Context, username, password string) (LoginResult, error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Info("user not found")
			return LoginResult{}, ErrInvalidCredentials
		}

		log.Error("failed to get user", sl.Err(err))
		return LoginResult{}, err
	}

	// Federated-only accounts have no password to check against.
	if len(user.PassHash) == 0 {
		return LoginResult{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		log.Info("invalid credentials")
		return LoginResult{}, ErrInvalidCredentials
	}

	if user.IsTwoFAEnabled {
		return a.twoFAStep(log, user.ID)
	}

	return a.authenticated(ctx, log, user)
}

// VerifyLoginCode completes the 2FA leg of a login. A wrong code leaves the
// step token valid so the user can retry within its TTL; a correct code
// consumes the token.
func (a *Auth) VerifyLoginCode(ctx context.Context, stepToken, code string) (string, error) {
	const op = "auth.VerifyLoginCode"

	log := a.log.With(slog.String("op", op))

	claims, err := jwt.ParseStepToken(stepToken, a.tokenSecret, jwt.PurposeTwoFALogin)
	if err != nil {
		log.Info("bad step token", sl.Err(err))
		return "", ErrInvalidStepToken
	}

	userID, err := claims.Subject()
	if err != nil {
		return "", ErrInvalidStepToken
	}

	user, err := a.usrProvider.UserByID(ctx, userID)
	if err != nil {
		log.Error("failed to load user", sl.Err(err))
		return "", ErrInvalidStepToken
	}

	if !user.IsTwoFAEnabled || user.TwoFASecret == "" {
		return "", ErrInvalidStepToken
	}

	if !a.totp.Validate(code, user.TwoFASecret) {
		log.Info("invalid 2fa code", slog.Int64("uid", user.ID))
		return "", ErrInvalidCode
	}

	fresh, err := a.steps.MarkStepTokenUsed(ctx, claims.JTI, a.stepTTL)
	if err != nil {
		log.Error("failed to mark step token used", sl.Err(err))
		return "", err
	}
	if !fresh {
		log.Warn("step token replay", slog.Int64("uid", user.ID))
		return "", ErrInvalidStepToken
	}

	token, err := jwt.NewSessionToken(user.ID, a.tokenSecret, a.sessionTTL)
	if err != nil {
		log.Error("failed to generate session token", sl.Err(err))
		return "", err
	}

	a.publish(ctx, models.Event{Kind: models.EventLoggedIn, UserID: user.ID})

	log.Info("2fa login completed", slog.Int64("uid", user.ID))

	return token, nil
}

// LoginGoogle resolves a Google access token. Known accounts log in (with the
// same 2FA step as password logins); unknown ones get a pending-registration
// step token carrying the imported profile.
func (a *Auth) LoginGoogle(ctx context.Context, accessToken string) (LoginResult, error) {
	const op = "auth.LoginGoogle"

	log := a.log.With(slog.String("op", op))

	profile, err := a.google.Userinfo(ctx, accessToken)
	if err != nil {
		log.Info("userinfo fetch failed", sl.Err(err))
		return LoginResult{}, ErrInvalidCredentials
	}

	user, err := a.usrProvider.UserByGoogleID(ctx, profile.Sub)
	if errors.Is(err, storage.ErrUserNotFound) {
		// An account registered with a password may link by email.
		user, err = a.usrProvider.UserByEmail(ctx, profile.Email)
	}
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return a.pendingRegistration(ctx, log, profile, accessToken)
		}

		log.Error("failed to get user", sl.Err(err))
		return LoginResult{}, err
	}

	// Last write wins on concurrent logins.
	if err := a.usrSaver.UpdateGoogleAccessToken(ctx, user.ID, accessToken); err != nil {
		log.Warn("failed to persist access token", sl.Err(err))
	}

	if user.IsTwoFAEnabled {
		return a.twoFAStep(log, user.ID)
	}

	return a.authenticated(ctx, log, user)
}

type RegisterParams struct {
	Email       string
	DisplayName string
	Username    string
	Password    string
	DateOfBirth time.Time
}

// Register creates a password account. Duplicate email or username yields
// ErrUserExists with no record created.
func (a *Auth) Register(ctx context.Context, params RegisterParams) (int64, string, error) {
	const op = "auth.Register"

	log := a.log.With(slog.String("op", op))

	passHash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return 0, "", fmt.Errorf("%s: %w", op, err)
	}

	user := models.User{
		Email:       params.Email,
		DisplayName: params.DisplayName,
		Username:    params.Username,
		PassHash:    passHash,
		DateOfBirth: params.DateOfBirth,
		AvatarURL:   a.avatars.DefaultURL(),
	}

	return a.saveAndIssue(ctx, log, user)
}

// RegisterFederated completes a Google signup using the pending-registration
// step token minted by LoginGoogle. The token is single-use.
func (a *Auth) RegisterFederated(ctx context.Context, registerToken string, dateOfBirth time.Time) (int64, string, error) {
	const op = "auth.RegisterFederated"

	log := a.log.With(slog.String("op", op))

	claims, err := jwt.ParseStepToken(registerToken, a.tokenSecret, jwt.PurposeRegister)
	if err != nil {
		log.Info("bad register token", sl.Err(err))
		return 0, "", ErrInvalidStepToken
	}

	fresh, err := a.steps.MarkStepTokenUsed(ctx, claims.JTI, a.registerTTL)
	if err != nil {
		log.Error("failed to mark register token used", sl.Err(err))
		return 0, "", err
	}
	if !fresh {
		return 0, "", ErrInvalidStepToken
	}

	user := models.User{
		Email:             claims.Extra["email"],
		DisplayName:       claims.Extra["display_name"],
		Username:          claims.Extra["username"],
		DateOfBirth:       dateOfBirth,
		AvatarURL:         claims.Extra["avatar_url"],
		GoogleID:          claims.Extra["google_id"],
		GoogleAccessToken: claims.Extra["access_token"],
	}
	if user.GoogleID == "" || user.Email == "" {
		return 0, "", ErrInvalidStepToken
	}

	return a.saveAndIssue(ctx, log, user)
}

// CheckCredentials reports which of the given email/username are taken.
func (a *Auth) CheckCredentials(ctx context.Context, email, username string) (emailExists, usernameExists bool, err error) {
	const op = "auth.CheckCredentials"

	emailExists, err = a.usrProvider.EmailExists(ctx, email)
	if err != nil {
		return false, false, fmt.Errorf("%s: %w", op, err)
	}

	usernameExists, err = a.usrProvider.UsernameExists(ctx, username)
	if err != nil {
		return false, false, fmt.Errorf("%s: %w", op, err)
	}

	return emailExists, usernameExists, nil
}

// VerifyPassword re-checks the current password before a sensitive action.
func (a *Auth) VerifyPassword(ctx context.Context, userID int64, password string) error {
	user, err := a.usrProvider.UserByID(ctx, userID)
	if err != nil {
		return err
	}

	if len(user.PassHash) == 0 {
		return ErrInvalidPassword
	}

	if bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)) != nil {
		return ErrInvalidPassword
	}

	return nil
}

func (a *Auth) saveAndIssue(ctx context.Context, log *slog.Logger, user models.User) (int64, string, error) {
	id, err := a.usrSaver.SaveUser(ctx, user)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Info("email or username already in use")
			return 0, "", ErrUserExists
		}

		log.Error("failed to save user", sl.Err(err))
		return 0, "", err
	}

	token, err := jwt.NewSessionToken(id, a.tokenSecret, a.sessionTTL)
	if err != nil {
		log.Error("failed to generate session token", sl.Err(err))
		return 0, "", err
	}

	a.publish(ctx, models.Event{Kind: models.EventRegistered, UserID: id, Email: user.Email})

	log.Info("user registered", slog.Int64("uid", id))

	return id, token, nil
}

func (a *Auth) authenticated(ctx context.Context, log *slog.Logger, user models.User) (LoginResult, error) {
	token, err := jwt.NewSessionToken(user.ID, a.tokenSecret, a.sessionTTL)
	if err != nil {
		log.Error("failed to generate session token", sl.Err(err))
		return LoginResult{}, err
	}

	a.publish(ctx, models.Event{Kind: models.EventLoggedIn, UserID: user.ID})

	log.Info("user logged in", slog.Int64("uid", user.ID))

	return LoginResult{
		Status:       LoginAuthenticated,
		SessionToken: token,
	}, nil
}

func (a *Auth) twoFAStep(log *slog.Logger, userID int64) (LoginResult, error) {
	stepToken, err := jwt.NewStepToken(
		jwt.PurposeTwoFALogin,
		map[string]string{"sub": fmt.Sprintf("%d", userID)},
		a.tokenSecret,
		a.stepTTL,
	)
	if err != nil {
		log.Error("failed to generate step token", sl.Err(err))
		return LoginResult{}, err
	}

	log.Info("2fa required", slog.Int64("uid", userID))

	return LoginResult{
		Status:    LoginTwoFARequired,
		StepToken: stepToken,
	}, nil
}

func (a *Auth) pendingRegistration(
	ctx context.Context,
	log *slog.Logger,
	profile models.GoogleProfile,
	accessToken string,
) (LoginResult, error) {
	username, err := a.uniqueUsername(ctx, localPart(profile.Email))
	if err != nil {
		log.Error("failed to pick username", sl.Err(err))
		return LoginResult{}, err
	}

	avatarURL := a.avatars.DefaultURL()
	if profile.Picture != "" {
		// Best effort: a failed photo import falls back to the default avatar.
		if photo, err := a.google.FetchPhoto(ctx, profile.Picture); err != nil {
			log.Warn("failed to fetch google photo", sl.Err(err))
		} else if url, err := a.avatars.ProcessAndUpload(ctx, profile.Sub, photo); err != nil {
			log.Warn("failed to process google photo", sl.Err(err))
		} else {
			avatarURL = url
		}
	}

	pending := models.PendingRegistration{
		GoogleID:    profile.Sub,
		AccessToken: accessToken,
		Email:       profile.Email,
		DisplayName: profile.Name,
		Username:    username,
		AvatarURL:   avatarURL,
	}

	registerToken, err := jwt.NewStepToken(
		jwt.PurposeRegister,
		map[string]string{
			"google_id":    pending.GoogleID,
			"access_token": pending.AccessToken,
			"email":        pending.Email,
			"display_name": pending.DisplayName,
			"username":     pending.Username,
			"avatar_url":   pending.AvatarURL,
		},
		a.tokenSecret,
		a.registerTTL,
	)
	if err != nil {
		log.Error("failed to generate register token", sl.Err(err))
		return LoginResult{}, err
	}

	log.Info("google signup pending", slog.String("google_id", profile.Sub))

	return LoginResult{
		Status:    LoginNeedsRegistration,
		StepToken: registerToken,
		Pending:   &pending,
	}, nil
}

// uniqueUsername appends _1, _2, ... to the base until the name is free.
func (a *Auth) uniqueUsername(ctx context.Context, base string) (string, error) {
	username := base

	for counter := 1; ; counter++ {
		taken, err := a.usrProvider.UsernameExists(ctx, username)
		if err != nil {
			return "", err
		}
		if !taken {
			return username, nil
		}

		username = fmt.Sprintf("%s_%d", base, counter)
	}
}

func (a *Auth) publish(ctx context.Context, event models.Event) {
	if err := a.events.PublishEvent(ctx, event); err != nil {
		a.log.Warn("failed to publish event", slog.String("kind", event.Kind), sl.Err(err))
	}
}

func localPart(email string) string {
	for i := 0; i < len(email); i++ {
		if email[i] == '@' {
			return email[:i]
		}
	}

	return email
}
