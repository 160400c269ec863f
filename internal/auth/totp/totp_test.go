package totp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A step boundary, so the window arithmetic below is exact.
var base = time.Unix(1699999980, 0)

func newEngineWithSecret(t *testing.T) (*Engine, string) {
	t.Helper()

	engine := New("Strife")

	secret, otpauthURL, err := engine.GenerateSecret("a@b.com")
	require.NoError(t, err)
	require.NotEmpty(t, secret)
	require.Contains(t, otpauthURL, "otpauth://totp/")
	require.Contains(t, otpauthURL, "Strife")

	return engine, secret
}

func TestValidateAtSameStep(t *testing.T) {
	engine, secret := newEngineWithSecret(t)

	code, err := engine.GenerateCodeAt(secret, base)
	require.NoError(t, err)

	assert.True(t, engine.ValidateAt(code, secret, base))
}

func TestValidateWithinSkewWindow(t *testing.T) {
	engine, secret := newEngineWithSecret(t)

	code, err := engine.GenerateCodeAt(secret, base)
	require.NoError(t, err)

	// One step of skew either way: the code stays valid from 30s before its
	// step up to 90s after the step started.
	assert.True(t, engine.ValidateAt(code, secret, base.Add(-30*time.Second)))
	assert.True(t, engine.ValidateAt(code, secret, base.Add(29*time.Second)))
	assert.True(t, engine.ValidateAt(code, secret, base.Add(59*time.Second)))
	assert.True(t, engine.ValidateAt(code, secret, base.Add(89*time.Second)))
}

func TestValidateOutsideSkewWindow(t *testing.T) {
	engine, secret := newEngineWithSecret(t)

	code, err := engine.GenerateCodeAt(secret, base)
	require.NoError(t, err)

	assert.False(t, engine.ValidateAt(code, secret, base.Add(-31*time.Second)))
	assert.False(t, engine.ValidateAt(code, secret, base.Add(90*time.Second)))
	assert.False(t, engine.ValidateAt(code, secret, base.Add(10*time.Minute)))
}

func TestValidateRejectsGarbage(t *testing.T) {
	engine, secret := newEngineWithSecret(t)

	assert.False(t, engine.ValidateAt("000000", secret, base))
	assert.False(t, engine.ValidateAt("", secret, base))
	assert.False(t, engine.ValidateAt("12345", secret, base))
}

func TestSecretsAreUnique(t *testing.T) {
	engine := New("Strife")

	first, _, err := engine.GenerateSecret("a@b.com")
	require.NoError(t, err)

	second, _, err := engine.GenerateSecret("a@b.com")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}
