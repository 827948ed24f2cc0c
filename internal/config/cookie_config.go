package config

import "time"

type CookieConfig interface {
	GetCookieName() string
	GetCookieDomain() string
	GetSessionTTL() time.Duration
	GetStateTTL() time.Duration
}

var _ CookieConfig = &EnvVars{}

func (e *EnvVars) GetCookieName() string {
	return e.CookieName
}

func (e *EnvVars) GetCookieDomain() string {
	return e.CookieDomain
}

func (e *EnvVars) GetSessionTTL() time.Duration {
	return e.SessionTTL
}

func (e *EnvVars) GetStateTTL() time.Duration {
	return e.StateTTL
}
