package web

import (
	"crypto/subtle"
	"net/http"
)

const (
	SessionCookie = "eocert_session"
	CSRFCookie    = "csrf_token"
	CSRFField     = "csrf_token"
)

// SetSessionCookie writes the session cookie; an empty value expires it.
func SetSessionCookie(w http.ResponseWriter, value string, secure bool) {
	setCookie(w, SessionCookie, value, secure)
}

// SetCSRFCookie writes the double-submit CSRF cookie.
func SetCSRFCookie(w http.ResponseWriter, value string, secure bool) {
	setCookie(w, CSRFCookie, value, secure)
}

func setCookie(w http.ResponseWriter, name, value string, secure bool) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
	if value == "" {
		cookie.MaxAge = -1
	}
	http.SetCookie(w, cookie)
}

// SessionID returns the session cookie value, if any.
func SessionID(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// VerifyCSRF checks the submitted token against the CSRF cookie. When
// expected is non-empty the token must also match it.
func VerifyCSRF(r *http.Request, expected string) bool {
	formToken := r.FormValue(CSRFField)
	if formToken == "" {
		formToken = r.Header.Get("X-CSRF-Token")
	}
	cookie, err := r.Cookie(CSRFCookie)
	if err != nil || cookie.Value == "" || formToken == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(formToken)) != 1 {
		return false
	}
	if expected == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(formToken)) == 1
}
