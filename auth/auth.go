package auth

import (
	"crypto/sha256"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"

	"sfaptracker/config"
)

var Store *sessions.CookieStore

const (
	SessionName = "sfap-session"
	MaxAge      = 86400
	emailKey    = "email"
)

func InitStore() {
	// Derive two 32-byte keys from the session key: one signs, one encrypts.
	authKey := sha256.Sum256([]byte(config.AppConfig.SessionKey + "auth"))
	encKey := sha256.Sum256([]byte(config.AppConfig.SessionKey + "encryption"))

	Store = sessions.NewCookieStore(authKey[:], encKey[:])
	Store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   MaxAge,
		HttpOnly: true,
		Secure:   config.AppConfig.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

// GetEmail returns the email stored in the session cookie, or "" when the
// request carries no valid session.
func GetEmail(r *http.Request) string {
	session, err := Store.Get(r, SessionName)
	if err != nil {
		return ""
	}
	email, _ := session.Values[emailKey].(string)
	return email
}

// SetSession starts a session for email. Only the email is stored; the user
// is loaded again on every request.
func SetSession(w http.ResponseWriter, r *http.Request, email string) error {
	// A stale cookie signed with an old key yields an error here but still
	// returns a fresh session to write into.
	session, _ := Store.Get(r, SessionName)
	session.Values[emailKey] = strings.ToLower(email)
	return session.Save(r, w)
}

func ClearSession(w http.ResponseWriter, r *http.Request) error {
	session, _ := Store.Get(r, SessionName)
	delete(session.Values, emailKey)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}
