package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-auth-gate/internal/errors"
)

// OAuthCallbackHandler completes the authorization-code flow. Order matters:
// the state is validated (and consumed) before any token exchange, the
// exchanged tokens are verified before any session exists, and no cookie is
// ever set on a failure path.
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := s.requestLogger(r.Context())

		// r.FormValue covers both GET query params and form_post callbacks
		state := r.FormValue("state")
		code := r.FormValue("code")
		errorParam := r.FormValue("error")
		errorDesc := r.FormValue("error_description")

		if errorParam != "" {
			logger.Warn().Str("error", errorParam).Str("description", errorDesc).Msg("authorization failed at provider")
			s.failRequest(w, http.StatusUnauthorized, "authorization failed")
			return
		}

		if code == "" || state == "" {
			s.failRequest(w, http.StatusForbidden, "missing code or state parameter")
			return
		}

		returnURL, err := s.states.Consume(r.Context(), state)
		if err != nil {
			if errors.Is(err, errors.ErrStateNotFound) {
				// Unknown or already-consumed state: possible CSRF. The code
				// is never exchanged.
				logger.Warn().Msg("callback with unknown state rejected")
				s.failRequest(w, http.StatusUnauthorized, "invalid state parameter")
				return
			}
			logger.Error().Err(err).Msg("failed to consume login state")
			s.failRequest(w, http.StatusServiceUnavailable, "state store unavailable")
			return
		}

		tokenResponse, err := s.idp.Exchange(r.Context(), code)
		if err != nil {
			// A replayed code lands here too: the provider rejects its second
			// use, and the failure propagates instead of a retry.
			logger.Warn().Err(err).Msg("token exchange failed")
			s.failRequest(w, http.StatusUnauthorized, "token exchange failed")
			return
		}
		if tokenResponse.IDToken == "" {
			s.failRequest(w, http.StatusUnauthorized, "no ID token in response")
			return
		}

		identity, err := s.verifier.Verify(r.Context(), tokenResponse.IDToken)
		if err != nil {
			if errors.Is(err, errors.ErrJWKSUnavailable) {
				s.failRequest(w, http.StatusBadGateway, "identity provider unavailable")
				return
			}
			logger.Warn().Err(err).Msg("ID token verification failed")
			s.failRequest(w, http.StatusUnauthorized, "ID token verification failed")
			return
		}

		sessionID, err := s.sessions.Create(context.WithoutCancel(r.Context()), tokenResponse.Raw)
		if err != nil {
			logger.Error().Err(err).Msg("failed to create session")
			s.failRequest(w, http.StatusServiceUnavailable, "session store unavailable")
			return
		}

		s.SetSessionCookie(w, sessionID)
		logger.Info().Str("subject", identity.Subject).Msg("session created")

		http.Redirect(w, r, sanitizeReturnURL(returnURL), http.StatusFound)
	}
}

// sanitizeReturnURL keeps post-login redirects on this site. Return URLs are
// written by the gate itself, but the store is shared infrastructure.
func sanitizeReturnURL(returnURL string) string {
	if returnURL == "" || !strings.HasPrefix(returnURL, "/") || strings.HasPrefix(returnURL, "//") {
		return "/"
	}
	return returnURL
}
