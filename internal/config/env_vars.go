package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvVars holds every environment-provided setting. Parsed once at startup;
// a missing required value is fatal there rather than a per-request condition.
type EnvVars struct {
	Port        string `env:"PORT" envDefault:"8080"`
	AppName     string `env:"APP_NAME" envDefault:"Go Auth Gate"`
	Env         string `env:"ENV" envDefault:"DEV"`
	UpstreamURL string `env:"UPSTREAM_URL"`

	IdPDomain    string        `env:"IDP_DOMAIN,required"`
	ClientID     string        `env:"CLIENT_ID,required"`
	ClientSecret string        `env:"CLIENT_SECRET,required"`
	RedirectURI  string        `env:"REDIRECT_URI,required"`
	Scopes       string        `env:"SCOPES" envDefault:"openid profile"`
	UseDiscovery bool          `env:"OIDC_DISCOVERY" envDefault:"false"`
	MaxTokenAge  time.Duration `env:"MAX_TOKEN_AGE" envDefault:"24h"`
	JWKSCacheTTL time.Duration `env:"JWKS_CACHE_TTL" envDefault:"15m"`
	HTTPTimeout  time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`

	CookieName   string        `env:"COOKIE_NAME" envDefault:"gate_session"`
	CookieDomain string        `env:"COOKIE_DOMAIN"`
	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	StateTTL     time.Duration `env:"STATE_TTL" envDefault:"10m"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	callbackPath string
}

func newEnvVars() (*EnvVars, error) {
	vars := &EnvVars{}
	if err := env.Parse(vars); err != nil {
		return nil, fmt.Errorf("[config newEnvVars] failed to parse environment: %w", err)
	}

	redirect, err := url.Parse(vars.RedirectURI)
	if err != nil || redirect.Path == "" {
		return nil, fmt.Errorf("[config newEnvVars] REDIRECT_URI %q must be an absolute URL with a path", vars.RedirectURI)
	}
	vars.callbackPath = redirect.Path

	return vars, nil
}

var _ EnvConfig = &EnvVars{}

func (e *EnvVars) GetPort() string {
	port := e.Port
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e *EnvVars) GetAppName() string {
	return e.AppName
}

func (e *EnvVars) GetEnv() string {
	return e.Env
}

func (e *EnvVars) GetUpstreamURL() string {
	return e.UpstreamURL
}
