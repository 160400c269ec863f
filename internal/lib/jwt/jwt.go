package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Step token purposes. A step token carries transient state between two legs
// of a multi-request flow and is never a session credential.
const (
	PurposeTwoFALogin = "2fa_login"
	PurposeTwoFASetup = "2fa_setup"
	PurposeRegister   = "register"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongPurpose = errors.New("wrong token purpose")
)

// StepClaims is the parsed content of a step token.
type StepClaims struct {
	JTI     string
	Purpose string
	Extra   map[string]string
}

// Subject returns the "sub" claim as a user id, if present.
func (c *StepClaims) Subject() (int64, error) {
	sub, ok := c.Extra["sub"]
	if !ok {
		return 0, fmt.Errorf("missing sub claim: %w", ErrInvalidToken)
	}

	return strconv.ParseInt(sub, 10, 64)
}

// NewSessionToken mints the long-lived session credential for a user.
func NewSessionToken(userID int64, secret string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(secret))
}

// ParseSessionToken validates a session token and returns the subject user id.
func ParseSessionToken(tokenStr, secret string) (int64, error) {
	const op = "jwt.ParseSessionToken"

	claims, err := parse(tokenStr, secret)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if _, ok := claims["purpose"]; ok {
		// A step token must not pass the authorization gate.
		return 0, fmt.Errorf("%s: %w", op, ErrWrongPurpose)
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return 0, fmt.Errorf("%s: missing sub claim: %w", op, ErrInvalidToken)
	}

	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: bad sub claim: %w", op, ErrInvalidToken)
	}

	return userID, nil
}

// NewStepToken mints a short-lived token with a purpose, a unique jti and
// arbitrary string claims.
func NewStepToken(purpose string, extra map[string]string, secret string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"jti":     uuid.NewString(),
		"purpose": purpose,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(secret))
}

// ParseStepToken validates a step token and checks it was minted for the
// expected purpose.
func ParseStepToken(tokenStr, secret, purpose string) (*StepClaims, error) {
	const op = "jwt.ParseStepToken"

	claims, err := parse(tokenStr, secret)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	gotPurpose, ok := claims["purpose"].(string)
	if !ok || gotPurpose != purpose {
		return nil, fmt.Errorf("%s: %w", op, ErrWrongPurpose)
	}

	jti, ok := claims["jti"].(string)
	if !ok {
		return nil, fmt.Errorf("%s: missing jti claim: %w", op, ErrInvalidToken)
	}

	extra := make(map[string]string)
	for k, v := range claims {
		if s, ok := v.(string); ok && k != "jti" && k != "purpose" {
			extra[k] = s
		}
	}

	return &StepClaims{
		JTI:     jti,
		Purpose: gotPurpose,
		Extra:   extra,
	}, nil
}

func parse(tokenStr, secret string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}

	parsedToken, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	if !parsedToken.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
