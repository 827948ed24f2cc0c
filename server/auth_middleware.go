package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-auth-gate/idp"
	"github.com/jrsteele09/go-auth-gate/internal/errors"
	"github.com/jrsteele09/go-auth-gate/token/verifier"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyIdentity stores the verified identity of the request's principal
const ContextKeyIdentity ContextKey = "identity"

// ContextKeyRequestID stores the id assigned by LoggingMiddleware
const ContextKeyRequestID ContextKey = "request_id"

// IdentityFromContext returns the verified identity attached by RequireAuth.
func IdentityFromContext(ctx context.Context) (*verifier.Identity, bool) {
	identity, ok := ctx.Value(ContextKeyIdentity).(*verifier.Identity)
	return identity, ok
}

// RequestIDFromContext returns the request id assigned by LoggingMiddleware.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(ContextKeyRequestID).(string)
	return requestID, ok
}

// RequireAuth is the gate's core middleware. A request is in exactly one of
// three positions: it proves an identity (session cookie that re-verifies, or
// a Bearer token) and passes through; it is an API client with a bad Bearer
// token and is rejected; or it is an unauthenticated browser and is redirected
// into the authorization-code flow with a fresh one-time state.
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			// API clients present Bearer tokens directly; they never hold a
			// session and a redirect to the IdP would be meaningless to them.
			if token, ok := bearerToken(r); ok {
				identity, err := s.verifier.Verify(r.Context(), token)
				if err != nil {
					if errors.Is(err, errors.ErrJWKSUnavailable) {
						s.failRequest(w, http.StatusBadGateway, "identity provider unavailable")
						return
					}
					logger := s.requestLogger(r.Context())
					logger.Debug().Err(err).Msg("bearer token rejected")
					s.failRequest(w, http.StatusForbidden, "invalid token")
					return
				}
				next(w, r.WithContext(context.WithValue(r.Context(), ContextKeyIdentity, identity)))
				return
			}

			if sessionID, ok := s.readSessionCookie(r); ok {
				identity, err := s.authenticateSession(r.Context(), sessionID)
				switch {
				case err == nil:
					next(w, r.WithContext(context.WithValue(r.Context(), ContextKeyIdentity, identity)))
					return
				case errors.Is(err, errors.ErrStoreUnavailable):
					s.failRequest(w, http.StatusServiceUnavailable, "session store unavailable")
					return
				case errors.Is(err, errors.ErrJWKSUnavailable):
					s.failRequest(w, http.StatusBadGateway, "identity provider unavailable")
					return
				case errors.Is(err, errors.ErrSessionNotFound):
					// Expired in the store; nothing to delete
					s.ClearSessionCookie(w)
				default:
					// The stored tokens no longer verify. Delete the dead
					// session so it is not retried, then start a fresh login
					// rather than looping on it.
					logger := s.requestLogger(r.Context())
					logger.Info().Err(err).Msg("deleting session that no longer verifies")
					_ = s.sessions.Delete(context.WithoutCancel(r.Context()), sessionID)
					s.ClearSessionCookie(w)
				}
			}

			s.redirectToLogin(w, r)
		}
	}
}

// authenticateSession resolves a session id to a verified identity. The
// stored token response is untrusted bytes: the ID token inside it is
// re-verified on every lookup, never trusted from storage.
func (s *Server) authenticateSession(ctx context.Context, sessionID string) (*verifier.Identity, error) {
	raw, err := s.sessions.Lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	tokenResponse, err := idp.ParseTokenResponse(raw)
	if err != nil {
		return nil, err
	}
	if tokenResponse.IDToken == "" {
		return nil, errors.ErrMalformedToken
	}

	return s.verifier.Verify(ctx, tokenResponse.IDToken)
}

// redirectToLogin creates a pending state holding the user's destination and
// sends them to the identity provider. The state write is awaited before the
// redirect is issued, so the callback can never race an unwritten state, and
// it survives client disconnects.
func (s *Server) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	state, err := s.states.Create(context.WithoutCancel(r.Context()), r.URL.RequestURI())
	if err != nil {
		logger := s.requestLogger(r.Context())
		logger.Error().Err(err).Msg("failed to persist login state")
		s.failRequest(w, http.StatusServiceUnavailable, "state store unavailable")
		return
	}

	logger := s.requestLogger(r.Context())
	logger.Debug().Str("path", r.URL.Path).Msg("redirecting to identity provider")
	http.Redirect(w, r, s.idp.AuthorizeURL(state), http.StatusFound)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
