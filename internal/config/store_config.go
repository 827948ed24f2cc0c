package config

type StoreConfig interface {
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

var _ StoreConfig = &EnvVars{}

func (e *EnvVars) GetRedisAddr() string {
	return e.RedisAddr
}

func (e *EnvVars) GetRedisPassword() string {
	return e.RedisPassword
}

func (e *EnvVars) GetRedisDB() int {
	return e.RedisDB
}
