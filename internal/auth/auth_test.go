package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"strife_service/internal/auth/totp"
	"strife_service/internal/lib/jwt"
	"strife_service/internal/models"
	"strife_service/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

// wrongCode flips one digit so the result differs from the valid code.
func wrongCode(code string) string {
	b := []byte(code)
	if b[0] == '9' {
		b[0] = '0'
	} else {
		b[0]++
	}

	return string(b)
}

type fakeStore struct {
	users   map[int64]models.User
	nextID  int64
	usedJTI map[string]bool
	events  []models.Event
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[int64]models.User),
		nextID:  1,
		usedJTI: make(map[string]bool),
	}
}

func (f *fakeStore) SaveUser(_ context.Context, u models.User) (int64, error) {
	for _, existing := range f.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return 0, storage.ErrUserExists
		}
	}

	u.ID = f.nextID
	f.users[u.ID] = u
	f.nextID++

	return u.ID, nil
}

func (f *fakeStore) UpdateGoogleAccessToken(_ context.Context, userID int64, accessToken string) error {
	u := f.users[userID]
	u.GoogleAccessToken = accessToken
	f.users[userID] = u

	return nil
}

func (f *fakeStore) UserByID(_ context.Context, id int64) (models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}

	return u, nil
}

func (f *fakeStore) UserByUsername(_ context.Context, username string) (models.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}

	return models.User{}, storage.ErrUserNotFound
}

func (f *fakeStore) UserByEmail(_ context.Context, email string) (models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}

	return models.User{}, storage.ErrUserNotFound
}

func (f *fakeStore) UserByGoogleID(_ context.Context, googleID string) (models.User, error) {
	for _, u := range f.users {
		if u.GoogleID == googleID {
			return u, nil
		}
	}

	return models.User{}, storage.ErrUserNotFound
}

func (f *fakeStore) EmailExists(_ context.Context, email string) (bool, error) {
	for _, u := range f.users {
		if u.Email == email {
			return true, nil
		}
	}

	return false, nil
}

func (f *fakeStore) UsernameExists(_ context.Context, username string) (bool, error) {
	for _, u := range f.users {
		if u.Username == username {
			return true, nil
		}
	}

	return false, nil
}

func (f *fakeStore) MarkStepTokenUsed(_ context.Context, jti string, _ time.Duration) (bool, error) {
	if f.usedJTI[jti] {
		return false, nil
	}
	f.usedJTI[jti] = true

	return true, nil
}

func (f *fakeStore) PublishEvent(_ context.Context, event models.Event) error {
	f.events = append(f.events, event)
	return nil
}

type fakeGoogle struct {
	profile models.GoogleProfile
	err     error
}

func (f *fakeGoogle) Userinfo(_ context.Context, _ string) (models.GoogleProfile, error) {
	return f.profile, f.err
}

func (f *fakeGoogle) FetchPhoto(_ context.Context, _ string) ([]byte, error) {
	return nil, io.ErrUnexpectedEOF
}

type fakeAvatars struct{}

func (fakeAvatars) ProcessAndUpload(_ context.Context, _ string, _ []byte) (string, error) {
	return "http://s3/avatars/imported.jpg", nil
}

func (fakeAvatars) DefaultURL() string {
	return "http://s3/avatars/avatar-default.jpg"
}

func newTestAuth(store *fakeStore, provider GoogleProvider) *Auth {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(
		log,
		store,
		store,
		store,
		store,
		provider,
		fakeAvatars{},
		totp.New("Strife"),
		testSecret,
		72*time.Hour,
		5*time.Minute,
		10*time.Minute,
	)
}

func seedUser(t *testing.T, store *fakeStore, password string, mutate func(*models.User)) models.User {
	t.Helper()

	u := models.User{
		Email:       "alice@example.com",
		DisplayName: "Alice",
		Username:    "alice01",
		DateOfBirth: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		AvatarURL:   "http://s3/avatars/avatar-default.jpg",
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		require.NoError(t, err)
		u.PassHash = hash
	}
	if mutate != nil {
		mutate(&u)
	}

	id, err := store.SaveUser(context.Background(), u)
	require.NoError(t, err)
	u.ID = id
	store.users[id] = u

	return u
}

func TestLoginSuccess(t *testing.T) {
	store := newFakeStore()
	a := newTestAuth(store, &fakeGoogle{})
	u := seedUser(t, store, "secret1", nil)

	result, err := a.Login(context.Background(), "alice01", "secret1")
	require.NoError(t, err)

	assert.Equal(t, LoginAuthenticated, result.Status)
	require.NotEmpty(t, result.SessionToken)

	userID, err := jwt.ParseSessionToken(result.SessionToken, testSecret)
	require.NoError(t, err)
	assert.Equal(t, u.ID, userID)
}

func TestLoginWrongPassword(t *testing.T) {
	store := newFakeStore()
	a := newTestAuth(store, &fakeGoogle{})
	seedUser(t, store, "secret1", nil)

	_, err := a.Login(context.Background(), "alice01", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUnknownUser(t *testing.T) {
	store := newFakeStore()
	a := newTestAuth(store, &fakeGoogle{})

	_, err := a.Login(context.Background(), "nobody", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginFederatedOnlyAccountHasNoPassword(t *testing.T) {
	store := newFakeStore()
	a := newTestAuth(store, &fakeGoogle{})
	seedUser(t, store, "", func(u *models.User) {
		u.GoogleID = "google-sub-1"
	})

	_, err := a.Login(context.Background(), "alice01", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginTwoFARequired(t *testing.T) {
	store := newFakeStore()
	a := newTestAuth(store, &fakeGoogle{})

	engine := totp.New("Strife")
	secret, _, err := engine.GenerateSecret("alice@example.com")
	require.NoError(t, err)

	seedUser(t, store, "secret1", func(u *models.User) {
		u.TwoFASecret = secret
		u.IsTwoFAEnabled = true
	})

	result, err := a.Login(context.Background(), "alice01", "secret1")
	require.NoError(t, err)

	assert.Equal(t, LoginTwoFARequired, result.Status)
	assert.Empty(t, result.SessionToken)
	require.NotEmpty(t, result.StepToken)

	// The step token must not open a session by itself.
	_, err = jwt.ParseSessionToken(result.StepToken, testSecret)
	assert.Error(t, err)
}

func TestVerifyLoginCode(t *testing.T) {
	store := newFakeStore()
	a := newTestAuth(store, &fakeGoogle{})

	engine := totp.New("Strife")
	secret, _, err := engine.GenerateSecret("alice@example.com")
	require.NoError(t, err)

	u := seedUser(t, store, "secret1", func(u *models.User) {
		u.TwoFASecret = secret
		u.IsTwoFAEnabled = true
	})

	result, err := a.Login(context.Background(), "alice01", "secret1")
	require.NoError(t, err)
	require.Equal(t, LoginTwoFARequired, result.Status)

	code, err := engine.GenerateCodeAt(secret, time.Now())
	require.NoError(t, err)

	t.Run("wrong code keeps the step token alive", func(t *testing.T) {
		_, err := a.VerifyLoginCode(context.Background(), result.StepToken, wrongCode(code))
		assert.ErrorIs(t, err, ErrInvalidCode)
	})

	token, err := a.VerifyLoginCode(context.Background(), result.StepToken, code)
	require.NoError(t, err)

	userID, err := jwt.ParseSessionToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, u.ID, userID)

	t.Run("successful step token cannot be replayed", func(t *testing.T) {
		_, err := a.VerifyLoginCode(context.Background(), result.StepToken, code)
		assert.ErrorIs(t, err, ErrInvalidStepToken)
	})
}

func TestVerifyLoginCodeRejectsGarbageToken(t *testing.T) {
	store := newFakeStore()
	a := newTestAuth(store, &fakeGoogle{})

	_, err := a.VerifyLoginCode(context.Background(), "not-a-token", "123456")
	assert.ErrorIs(t, err, ErrInvalidStepToken)
}

func TestRegister(t *testing.T) {
	store := newFakeStore()
	a := newTestAuth(store, &fakeGoogle{})

	params := RegisterParams{
		Email:       "a@b.com",
		DisplayName: "Alice",
		Username:    "alice01",
		Password:    "secret1",
		DateOfBirth: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	id, token, err := a.Register(context.Background(), params)
	require.NoError(t, err)
	require.NotZero(t, id)
	require.NotEmpty(t, token)

	saved := store.users[id]
	assert.Equal(t, "a@b.com", saved.Email)
	assert.NotEmpty(t, saved.PassHash)
	assert.NotEqual(t, []byte("secret1"), saved.PassHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword(saved.PassHash, []byte("secret1")))
	assert.Equal(t, "http://s3/avatars/avatar-default.jpg", saved.AvatarURL)

	t.Run("duplicate is rejected and nothing is created", func(t *testing.T) {
		before := len(store.users)

		_, _, err := a.Register(context.Background(), params)
		assert.ErrorIs(t, err, ErrUserExists)
		assert.Len(t, store.users, before)
	})
}

func TestLoginGoogleNeedsRegistration(t *testing.T) {
	store := newFakeStore()
	provider := &fakeGoogle{profile: models.GoogleProfile{
		Sub:   "google-sub-9",
		Email: "bob@gmail.com",
		Name:  "Bob",
	}}
	a := newTestAuth(store, provider)

	result, err := a.LoginGoogle(context.Background(), "access-token")
	require.NoError(t, err)

	assert.Equal(t, LoginNeedsRegistration, result.Status)
	require.NotNil(t, result.Pending)
	assert.Equal(t, "bob", result.Pending.Username)
	assert.Equal(t, "google-sub-9", result.Pending.GoogleID)
	require.NotEmpty(t, result.StepToken)

	t.Run("completion creates the account", func(t *testing.T) {
		dob := time.Date(1999, 5, 5, 0, 0, 0, 0, time.UTC)

		id, token, err := a.RegisterFederated(context.Background(), result.StepToken, dob)
		require.NoError(t, err)
		require.NotEmpty(t, token)

		saved := store.users[id]
		assert.Equal(t, "google-sub-9", saved.GoogleID)
		assert.Equal(t, "bob@gmail.com", saved.Email)
		assert.Empty(t, saved.PassHash)
	})

	t.Run("register token is single use", func(t *testing.T) {
		_, _, err := a.RegisterFederated(context.Background(), result.StepToken, time.Now())
		assert.ErrorIs(t, err, ErrInvalidStepToken)
	})
}

func TestLoginGoogleUsernameCollision(t *testing.T) {
	store := newFakeStore()
	provider := &fakeGoogle{profile: models.GoogleProfile{
		Sub:   "google-sub-9",
		Email: "alice01@gmail.com",
		Name:  "Other Alice",
	}}
	a := newTestAuth(store, provider)
	seedUser(t, store, "secret1", nil) // takes "alice01"

	result, err := a.LoginGoogle(context.Background(), "access-token")
	require.NoError(t, err)

	require.Equal(t, LoginNeedsRegistration, result.Status)
	assert.Equal(t, "alice01_1", result.Pending.Username)
}

func TestLoginGoogleExistingAccount(t *testing.T) {
	store := newFakeStore()
	provider := &fakeGoogle{profile: models.GoogleProfile{
		Sub:   "google-sub-1",
		Email: "alice@example.com",
		Name:  "Alice",
	}}
	a := newTestAuth(store, provider)
	u := seedUser(t, store, "", func(u *models.User) {
		u.GoogleID = "google-sub-1"
	})

	result, err := a.LoginGoogle(context.Background(), "fresh-token")
	require.NoError(t, err)

	assert.Equal(t, LoginAuthenticated, result.Status)
	assert.NotEmpty(t, result.SessionToken)
	assert.Equal(t, "fresh-token", store.users[u.ID].GoogleAccessToken)
}

func TestLoginGoogleBadToken(t *testing.T) {
	store := newFakeStore()
	provider := &fakeGoogle{err: io.ErrUnexpectedEOF}
	a := newTestAuth(store, provider)

	_, err := a.LoginGoogle(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCheckCredentials(t *testing.T) {
	store := newFakeStore()
	a := newTestAuth(store, &fakeGoogle{})
	seedUser(t, store, "secret1", nil)

	emailExists, usernameExists, err := a.CheckCredentials(context.Background(), "alice@example.com", "free")
	require.NoError(t, err)
	assert.True(t, emailExists)
	assert.False(t, usernameExists)
}

func TestVerifyPassword(t *testing.T) {
	store := newFakeStore()
	a := newTestAuth(store, &fakeGoogle{})
	u := seedUser(t, store, "secret1", nil)

	assert.NoError(t, a.VerifyPassword(context.Background(), u.ID, "secret1"))
	assert.ErrorIs(t, a.VerifyPassword(context.Background(), u.ID, "wrong"), ErrInvalidPassword)
}
