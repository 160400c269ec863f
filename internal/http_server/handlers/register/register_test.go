package register_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"strife_service/internal/auth"
	"strife_service/internal/http_server/handlers/register"
	"strife_service/internal/lib/api/session"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistrar struct {
	registerErr  error
	federatedErr error

	gotParams auth.RegisterParams
	gotToken  string
}

func (f *fakeRegistrar) Register(_ context.Context, params auth.RegisterParams) (int64, string, error) {
	f.gotParams = params
	if f.registerErr != nil {
		return 0, "", f.registerErr
	}

	return 7, "session-token", nil
}

func (f *fakeRegistrar) RegisterFederated(_ context.Context, registerToken string, _ time.Time) (int64, string, error) {
	f.gotToken = registerToken
	if f.federatedErr != nil {
		return 0, "", f.federatedErr
	}

	return 8, "session-token", nil
}

func perform(t *testing.T, registrar register.Registrar, body any) *httptest.ResponseRecorder {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := register.New(log, validator.New(), registrar, time.Hour)

	buf, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(buf))
	rec := httptest.NewRecorder()

	handler(rec, req)

	return rec
}

func TestRegisterSuccess(t *testing.T) {
	registrar := &fakeRegistrar{}

	rec := perform(t, registrar, map[string]string{
		"email":       "alice@example.com",
		"displayName": "Alice",
		"username":    "alice01",
		"password":    "secret1",
		"dateOfBirth": "1999-04-12",
	})

	require.Equal(t, http.StatusCreated, rec.Code)

	var body register.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(7), body.UserID)
	assert.Equal(t, "session-token", body.Token)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, session.CookieName, cookies[0].Name)
	assert.Equal(t, "session-token", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	assert.Equal(t, "alice01", registrar.gotParams.Username)
	assert.Equal(t, 1999, registrar.gotParams.DateOfBirth.Year())
}

func TestRegisterDuplicate(t *testing.T) {
	registrar := &fakeRegistrar{registerErr: auth.ErrUserExists}

	rec := perform(t, registrar, map[string]string{
		"email":       "alice@example.com",
		"displayName": "Alice",
		"username":    "alice01",
		"password":    "secret1",
		"dateOfBirth": "1999-04-12",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "email_or_username_taken")
	assert.Empty(t, rec.Result().Cookies())
}

func TestRegisterValidation(t *testing.T) {
	cases := []struct {
		name string
		body map[string]string
	}{
		{"missing password", map[string]string{
			"email":       "alice@example.com",
			"displayName": "Alice",
			"username":    "alice01",
			"dateOfBirth": "1999-04-12",
		}},
		{"short password", map[string]string{
			"email":       "alice@example.com",
			"displayName": "Alice",
			"username":    "alice01",
			"password":    "abc",
			"dateOfBirth": "1999-04-12",
		}},
		{"bad email", map[string]string{
			"email":       "not-an-email",
			"displayName": "Alice",
			"username":    "alice01",
			"password":    "secret1",
			"dateOfBirth": "1999-04-12",
		}},
		{"bad date", map[string]string{
			"email":       "alice@example.com",
			"displayName": "Alice",
			"username":    "alice01",
			"password":    "secret1",
			"dateOfBirth": "12.04.1999",
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := perform(t, &fakeRegistrar{}, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRegisterFederated(t *testing.T) {
	registrar := &fakeRegistrar{}

	rec := perform(t, registrar, map[string]string{
		"registerToken": "step-token",
		"dateOfBirth":   "1999-04-12",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "step-token", registrar.gotToken)
}

func TestRegisterFederatedBadToken(t *testing.T) {
	registrar := &fakeRegistrar{federatedErr: auth.ErrInvalidStepToken}

	rec := perform(t, registrar, map[string]string{
		"registerToken": "stale",
		"dateOfBirth":   "1999-04-12",
	})

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_token")
}

func TestRegisterInternalError(t *testing.T) {
	registrar := &fakeRegistrar{registerErr: errors.New("db down")}

	rec := perform(t, registrar, map[string]string{
		"email":       "alice@example.com",
		"displayName": "Alice",
		"username":    "alice01",
		"password":    "secret1",
		"dateOfBirth": "1999-04-12",
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
