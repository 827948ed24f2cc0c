package config

type Config interface {
	EnvConfig
	IdentityProviderConfig
	CookieConfig
	StoreConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetUpstreamURL() string
}

func New() (Config, error) {
	vars, err := newEnvVars()
	if err != nil {
		return nil, err
	}
	return mainConfig{vars}, nil
}

type mainConfig struct {
	*EnvVars
}
