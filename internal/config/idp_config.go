package config

import (
	"strings"
	"time"
)

type IdentityProviderConfig interface {
	GetIdPDomain() string
	GetClientID() string
	GetClientSecret() string
	GetRedirectURI() string
	GetCallbackPath() string
	GetScopes() []string
	GetUseDiscovery() bool
	GetMaxTokenAge() time.Duration
	GetJWKSCacheTTL() time.Duration
	GetHTTPTimeout() time.Duration
}

var _ IdentityProviderConfig = &EnvVars{}

func (e *EnvVars) GetIdPDomain() string {
	return e.IdPDomain
}

func (e *EnvVars) GetClientID() string {
	return e.ClientID
}

func (e *EnvVars) GetClientSecret() string {
	return e.ClientSecret
}

func (e *EnvVars) GetRedirectURI() string {
	return e.RedirectURI
}

// GetCallbackPath returns the path component of the redirect URI. The
// middleware matches callbacks against this exact path.
func (e *EnvVars) GetCallbackPath() string {
	return e.callbackPath
}

func (e *EnvVars) GetScopes() []string {
	return strings.Fields(e.Scopes)
}

func (e *EnvVars) GetUseDiscovery() bool {
	return e.UseDiscovery
}

func (e *EnvVars) GetMaxTokenAge() time.Duration {
	return e.MaxTokenAge
}

func (e *EnvVars) GetJWKSCacheTTL() time.Duration {
	return e.JWKSCacheTTL
}

func (e *EnvVars) GetHTTPTimeout() time.Duration {
	return e.HTTPTimeout
}
