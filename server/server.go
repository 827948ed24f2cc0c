package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-auth-gate/authstate"
	"github.com/jrsteele09/go-auth-gate/idp"
	"github.com/jrsteele09/go-auth-gate/internal/config"
	"github.com/jrsteele09/go-auth-gate/sessions"
	"github.com/jrsteele09/go-auth-gate/token/verifier"
)

// TokenVerifier validates a raw ID token and returns the identity it asserts.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*verifier.Identity, error)
}

// IdentityProvider is the client side of the identity provider.
type IdentityProvider interface {
	AuthorizeURL(state string) string
	Exchange(ctx context.Context, code string) (*idp.TokenResponse, error)
}

// Server is the authentication gate. Every request either carries a valid
// session and passes through to the protected handler, or is walked through
// the authorization-code flow. All collaborators are injected at construction;
// there is no mutable global state.
type Server struct {
	env      string
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	states   *authstate.Repo
	sessions *sessions.Repo
	verifier TokenVerifier
	idp      IdentityProvider
	next     http.Handler
	logger   zerolog.Logger
}

func New(cfg config.Config, stateRepo *authstate.Repo, sessionRepo *sessions.Repo, tokenVerifier TokenVerifier, provider IdentityProvider, next http.Handler, logger zerolog.Logger) (*Server, error) {
	if next == nil {
		return nil, fmt.Errorf("[Server New] next handler is required")
	}

	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		states:   stateRepo,
		sessions: sessionRepo,
		verifier: tokenVerifier,
		idp:      provider,
		next:     next,
		logger:   logger,
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) initRoutes() {
	callbackPath := s.config.GetCallbackPath()

	// The callback is the one path never gated; it is matched exactly.
	s.RegisterRouteFunc("GET "+callbackPath, ChainMiddleware(s.OAuthCallbackHandler(), s.StdMiddleware()...))
	s.RegisterRouteFunc("POST "+callbackPath, ChainMiddleware(s.OAuthCallbackHandler(), s.StdMiddleware()...))

	s.RegisterRouteFunc("GET /healthz", s.HealthzHandler())
	s.RegisterRouteFunc("GET /logout", ChainMiddleware(s.LogoutHandler(), s.StdMiddleware()...))
	s.RegisterRouteFunc("GET /userinfo", ChainMiddleware(s.UserInfoHandler(), s.StdMiddleware(s.RequireAuth())...))

	// Everything else is the protected application
	s.RegisterRouteFunc("/", ChainMiddleware(s.PassThroughHandler(), s.StdMiddleware(s.RequireAuth())...))
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Printf("[%-19s] %s\n", displayMethod, path)
}
