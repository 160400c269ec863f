package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestSessionTokenRoundTrip(t *testing.T) {
	token, err := NewSessionToken(42, testSecret, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := ParseSessionToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestSessionTokenExpired(t *testing.T) {
	token, err := NewSessionToken(42, testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ParseSessionToken(token, testSecret)
	assert.Error(t, err)
}

func TestSessionTokenWrongSecret(t *testing.T) {
	token, err := NewSessionToken(42, testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ParseSessionToken(token, "other-secret")
	assert.Error(t, err)
}

func TestStepTokenRoundTrip(t *testing.T) {
	token, err := NewStepToken(PurposeTwoFALogin, map[string]string{"sub": "7"}, testSecret, time.Minute)
	require.NoError(t, err)

	claims, err := ParseStepToken(token, testSecret, PurposeTwoFALogin)
	require.NoError(t, err)

	assert.NotEmpty(t, claims.JTI)
	assert.Equal(t, PurposeTwoFALogin, claims.Purpose)

	sub, err := claims.Subject()
	require.NoError(t, err)
	assert.Equal(t, int64(7), sub)
}

func TestStepTokenPurposeMismatch(t *testing.T) {
	token, err := NewStepToken(PurposeTwoFASetup, map[string]string{"sub": "7"}, testSecret, time.Minute)
	require.NoError(t, err)

	_, err = ParseStepToken(token, testSecret, PurposeTwoFALogin)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWrongPurpose)
}

func TestStepTokenExpired(t *testing.T) {
	token, err := NewStepToken(PurposeRegister, nil, testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ParseStepToken(token, testSecret, PurposeRegister)
	assert.Error(t, err)
}

func TestSessionGateRejectsStepToken(t *testing.T) {
	token, err := NewStepToken(PurposeTwoFALogin, map[string]string{"sub": "7"}, testSecret, time.Minute)
	require.NoError(t, err)

	_, err = ParseSessionToken(token, testSecret)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWrongPurpose)
}

func TestStepTokenJTIsUnique(t *testing.T) {
	first, err := NewStepToken(PurposeRegister, nil, testSecret, time.Minute)
	require.NoError(t, err)

	second, err := NewStepToken(PurposeRegister, nil, testSecret, time.Minute)
	require.NoError(t, err)

	firstClaims, err := ParseStepToken(first, testSecret, PurposeRegister)
	require.NoError(t, err)

	secondClaims, err := ParseStepToken(second, testSecret, PurposeRegister)
	require.NoError(t, err)

	assert.NotEqual(t, firstClaims.JTI, secondClaims.JTI)
}
