package server

import (
	"encoding/base64"
	"net/http"
	"time"
)

// minSessionIDLength is the shortest cookie value accepted as a session id.
// Anything shorter cannot have come from the gate's own id generator.
const minSessionIDLength = 16

// readSessionCookie returns the session id carried by the request. A cookie
// that is present but malformed is treated exactly as no cookie.
func (s *Server) readSessionCookie(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(s.config.GetCookieName())
	if err != nil || cookie == nil {
		return "", false
	}
	if len(cookie.Value) < minSessionIDLength {
		return "", false
	}
	if _, err := base64.RawURLEncoding.DecodeString(cookie.Value); err != nil {
		return "", false
	}
	return cookie.Value, true
}

// SetSessionCookie binds the session id to the browser.
func (s *Server) SetSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.GetCookieName(),
		Value:    sessionID,
		Path:     "/",
		Domain:   s.config.GetCookieDomain(),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(s.config.GetSessionTTL()),
	})
}

// ClearSessionCookie expires the session cookie.
func (s *Server) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.GetCookieName(),
		Value:    "",
		Path:     "/",
		Domain:   s.config.GetCookieDomain(),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// failRequest writes a minimal error response. Collaborator failures never
// leak details or stack traces to the client.
func (s *Server) failRequest(w http.ResponseWriter, status int, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + http.StatusText(status) + `","error_description":"` + description + `"}`))
}
