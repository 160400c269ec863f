package session

import (
	"net/http"
	"time"
)

// CookieName is the session cookie shared by the login handlers and the
// authorization gate.
const CookieName = "token"

// SetCookie delivers the session token as an HttpOnly secure cookie, in
// addition to the JSON body.
func SetCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie. Tokens are stateless, so this is
// the whole of logout.
func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
	})
}
