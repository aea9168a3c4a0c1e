package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

type Config interface {
	EnvConfig
	CorsConfig
	TokenConfig
	CookieConfig
	StoreConfig
	GatewayConfig

	// Validate reports configuration the services cannot start with.
	Validate() error
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

var (
	ErrMissingAccessSecret  = errors.New("ACCESS_TOKEN_SECRET must be set")
	ErrMissingRefreshSecret = errors.New("REFRESH_TOKEN_SECRET must be set")
	ErrSharedSecret         = errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
)

type mainConfig struct {
	EnvVars
	Cors
	Tokens
	Cookies
	Store
	Gateway
}

// New reads configuration from the environment, falling back to an optional .env file
// in the working directory and then to defaults.
func New() Config {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine, the environment wins anyway
	v.AutomaticEnv()
	return newMainConfig(v)
}

// NewFromMap builds a Config from explicit values layered over the defaults. The
// environment is not consulted.
func NewFromMap(values map[string]any) Config {
	v := viper.New()
	for k, val := range values {
		v.Set(k, val)
	}
	return newMainConfig(v)
}

func newMainConfig(v *viper.Viper) mainConfig {
	setDefaults(v)
	return mainConfig{
		EnvVars: EnvVars{v: v},
		Cors:    Cors{v: v},
		Tokens:  Tokens{v: v},
		Cookies: Cookies{v: v},
		Store:   Store{v: v},
		Gateway: Gateway{v: v},
	}
}

func (c mainConfig) Validate() error {
	access := strings.TrimSpace(c.GetAccessTokenSecret())
	refresh := strings.TrimSpace(c.GetRefreshTokenSecret())
	if access == "" {
		return ErrMissingAccessSecret
	}
	if refresh == "" {
		return ErrMissingRefreshSecret
	}
	if access == refresh {
		return ErrSharedSecret
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(portEnvVar, "6001")
	v.SetDefault(appNameVar, "Cookie Auth")
	v.SetDefault(envVar, "DEV")
	v.SetDefault(logLevelVar, "info")

	v.SetDefault(allowedOriginsVar, "http://localhost:3000")

	v.SetDefault(accessTokenTTLVar, "5m")
	v.SetDefault(refreshTokenTTLVar, "168h")
	v.SetDefault(rotateRefreshVar, false)
	v.SetDefault(bcryptCostVar, 10)

	v.SetDefault(accessCookieMaxAgeVar, "24h")
	v.SetDefault(refreshCookieMaxAgeVar, "168h")
	v.SetDefault(cookieSecureVar, true)

	v.SetDefault(storeDriverVar, StoreDriverMemory)
	v.SetDefault(userCacheTTLVar, "5m")

	v.SetDefault(gatewayPortVar, "8080")
	v.SetDefault(authServiceURLVar, "http://localhost:6001")
	v.SetDefault(productServiceURLVar, "http://localhost:6002")
	v.SetDefault(upstreamTimeoutVar, "30s")
}
