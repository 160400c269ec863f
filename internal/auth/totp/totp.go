package totp

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Engine generates and validates RFC 6238 time-based one-time passwords:
// 6 digits, 30 second step, one step of allowed clock skew either way.
type Engine struct {
	issuer string
}

func New(issuer string) *Engine {
	return &Engine{
		issuer: issuer,
	}
}

// GenerateSecret creates a fresh base32 secret for an account and returns it
// together with the otpauth provisioning URL the client renders as a QR code.
func (e *Engine) GenerateSecret(accountName string) (secret, otpauthURL string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: accountName,
	})
	if err != nil {
		return "", "", err
	}

	return key.Secret(), key.URL(), nil
}

func (e *Engine) Validate(code, secret string) bool {
	return e.ValidateAt(code, secret, time.Now())
}

// ValidateAt checks a code against a secret at a given time. Split out from
// Validate so the window boundary is testable without a real clock.
func (e *Engine) ValidateAt(code, secret string, t time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, t, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})

	return err == nil && ok
}

// GenerateCodeAt produces the code a client authenticator would show at a
// given time. Used by tests.
func (e *Engine) GenerateCodeAt(secret string, t time.Time) (string, error) {
	return totp.GenerateCode(secret, t)
}
