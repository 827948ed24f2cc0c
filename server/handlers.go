package server

import (
	"context"
	"encoding/json"
	"net/http"
)

// PassThroughHandler forwards an authenticated request to the protected
// application unchanged.
func (s *Server) PassThroughHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.next.ServeHTTP(w, r)
	}
}

// UserInfoHandler returns the verified claims of the authenticated principal.
func (s *Server) UserInfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			s.failRequest(w, http.StatusUnauthorized, "no authenticated identity")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(identity.Claims)
	}
}

// LogoutHandler deletes the session and expires its cookie. Logging out
// without a session is not an error.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessionID, ok := s.readSessionCookie(r); ok {
			if err := s.sessions.Delete(context.WithoutCancel(r.Context()), sessionID); err != nil {
				logger := s.requestLogger(r.Context())
				logger.Error().Err(err).Msg("failed to delete session on logout")
			}
		}
		s.ClearSessionCookie(w)
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

// HealthzHandler reports liveness, including reachability of the store the
// gate coordinates through. A gate with a dead store cannot finish a single
// login, so it must fail its health check rather than accept traffic.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.sessions.Ping(r.Context()); err != nil {
			s.logger.Error().Err(err).Msg("health check failed")
			s.failRequest(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
