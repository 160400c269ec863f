package models

import "time"

type User struct {
	ID                int64
	Email             string
	DisplayName       string
	Username          string
	PassHash          []byte
	DateOfBirth       time.Time
	AvatarURL         string
	TwoFASecret       string
	IsTwoFAEnabled    bool
	GoogleID          string
	GoogleAccessToken string
}

// IsFederated reports whether the account is backed by a Google identity
// instead of a local password.
func (u *User) IsFederated() bool {
	return u.GoogleID != ""
}

// GoogleProfile is the subset of the Google userinfo response the service
// cares about.
type GoogleProfile struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// PendingRegistration carries a federated profile between the Google login
// leg and the registration leg. It lives only inside a step token.
type PendingRegistration struct {
	GoogleID    string `json:"google_id"`
	AccessToken string `json:"access_token"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Username    string `json:"username"`
	AvatarURL   string `json:"avatar_url"`
}

// Event is a security-relevant account event published to the notification
// queue.
type Event struct {
	Kind   string `json:"kind"`
	UserID int64  `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

const (
	EventRegistered      = "registered"
	EventLoggedIn        = "logged_in"
	EventTwoFAEnabled    = "twofa_enabled"
	EventTwoFADisabled   = "twofa_disabled"
	EventPasswordChanged = "password_changed"
)
