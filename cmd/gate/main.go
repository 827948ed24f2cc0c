package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-auth-gate/authstate"
	"github.com/jrsteele09/go-auth-gate/idp"
	"github.com/jrsteele09/go-auth-gate/internal/config"
	"github.com/jrsteele09/go-auth-gate/kvstore"
	"github.com/jrsteele09/go-auth-gate/server"
	"github.com/jrsteele09/go-auth-gate/sessions"
	"github.com/jrsteele09/go-auth-gate/token/verifier"
)

func main() {
	logger := newLogger()
	for {
		if err := run(logger); err != nil {
			logger.Fatal().Err(err).Msg("Error running gate")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	logger.Info().Msg("Gate stopped")
}

func run(logger zerolog.Logger) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("config.New %w", err)
	}
	displayAppname(cfg.GetAppName())

	store, err := newStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("newStore %w", err)
	}
	defer store.Close()

	endpoints, err := resolveEndpoints(cfg, logger)
	if err != nil {
		return fmt.Errorf("resolveEndpoints %w", err)
	}

	provider := idp.NewClient(idp.ClientConfig{
		Endpoints:    endpoints,
		ClientID:     cfg.GetClientID(),
		ClientSecret: cfg.GetClientSecret(),
		RedirectURI:  cfg.GetRedirectURI(),
		Scopes:       cfg.GetScopes(),
		HTTPTimeout:  cfg.GetHTTPTimeout(),
	})

	keys := verifier.NewKeySet(endpoints.JWKSURL, cfg.GetJWKSCacheTTL(), &http.Client{Timeout: cfg.GetHTTPTimeout()})
	tokenVerifier := verifier.New(keys, endpoints.Issuer, cfg.GetClientID(), cfg.GetMaxTokenAge())

	next, err := newUpstreamHandler(cfg, logger)
	if err != nil {
		return fmt.Errorf("newUpstreamHandler %w", err)
	}

	gate, err := server.New(cfg,
		authstate.NewRepo(store, cfg.GetStateTTL()),
		sessions.NewRepo(store, cfg.GetSessionTTL()),
		tokenVerifier, provider, next, logger)
	if err != nil {
		return fmt.Errorf("server.New %w", err)
	}

	httpServer := &http.Server{Addr: cfg.GetPort(), Handler: gate}
	go listenAndServe(httpServer, logger)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

func newLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// newStore picks Redis when an address is configured, otherwise an in-process
// store. The in-process store is single-instance only; state and session
// tokens are not shared across replicas without Redis.
func newStore(cfg config.Config, logger zerolog.Logger) (kvstore.Store, error) {
	if cfg.GetRedisAddr() == "" {
		logger.Warn().Msg("REDIS_ADDR not set, using in-memory store")
		return kvstore.NewMemoryStore(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := kvstore.NewRedisStore(ctx, kvstore.RedisConfig{
		Addr:      cfg.GetRedisAddr(),
		Password:  cfg.GetRedisPassword(),
		DB:        cfg.GetRedisDB(),
		KeyPrefix: "gate",
	})
	if err != nil {
		return nil, err
	}
	logger.Info().Str("addr", cfg.GetRedisAddr()).Msg("Connected to redis")
	return store, nil
}

// resolveEndpoints asks the provider's OIDC metadata when discovery is
// enabled, and falls back to the conventional URL layout otherwise.
func resolveEndpoints(cfg config.Config, logger zerolog.Logger) (idp.Endpoints, error) {
	if !cfg.GetUseDiscovery() {
		return idp.DefaultEndpoints(cfg.GetIdPDomain()), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GetHTTPTimeout())
	defer cancel()

	issuer := "https://" + cfg.GetIdPDomain() + "/"
	endpoints, err := idp.Discover(ctx, issuer)
	if err != nil {
		return idp.Endpoints{}, err
	}
	logger.Info().Str("issuer", endpoints.Issuer).Msg("Discovered provider endpoints")
	return endpoints, nil
}

// newUpstreamHandler reverse-proxies authenticated traffic to UPSTREAM_URL.
// Without an upstream the gate answers authenticated requests itself, which
// is enough for smoke-testing the login flow.
func newUpstreamHandler(cfg config.Config, logger zerolog.Logger) (http.Handler, error) {
	if cfg.GetUpstreamURL() == "" {
		logger.Warn().Msg("UPSTREAM_URL not set, serving placeholder responses")
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte("authenticated\n"))
		}), nil
	}

	upstream, err := url.Parse(cfg.GetUpstreamURL())
	if err != nil {
		return nil, fmt.Errorf("invalid UPSTREAM_URL %q: %w", cfg.GetUpstreamURL(), err)
	}
	proxy := httputil.NewSingleHostReverseProxy(upstream)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("Upstream request failed")
		w.WriteHeader(http.StatusBadGateway)
	}
	return proxy, nil
}

func listenAndServe(httpServer *http.Server, logger zerolog.Logger) {
	logger.Info().Str("addr", httpServer.Addr).Msg("Gate listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
