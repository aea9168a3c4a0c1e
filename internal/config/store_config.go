package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	storeDriverVar  = "STORE_DRIVER"
	databaseURLVar  = "DATABASE_URL"
	redisAddrVar    = "REDIS_ADDR"
	userCacheTTLVar = "USER_CACHE_TTL"

	gatewayPortVar       = "GATEWAY_PORT"
	authServiceURLVar    = "AUTH_SERVICE_URL"
	productServiceURLVar = "PRODUCT_SERVICE_URL"
	upstreamTimeoutVar   = "UPSTREAM_TIMEOUT"
)

const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
)

type StoreConfig interface {
	GetStoreDriver() string
	GetDatabaseURL() string
	GetRedisAddr() string
	GetUserCacheTTL() time.Duration
}

type GatewayConfig interface {
	GetGatewayPort() string
	GetAuthServiceURL() string
	GetProductServiceURL() string
	GetUpstreamTimeout() time.Duration
}

type Store struct {
	v *viper.Viper
}

var _ StoreConfig = Store{}

func (s Store) GetStoreDriver() string {
	return s.v.GetString(storeDriverVar)
}

func (s Store) GetDatabaseURL() string {
	return s.v.GetString(databaseURLVar)
}

// GetRedisAddr returns the user cache address. Empty disables the cache.
func (s Store) GetRedisAddr() string {
	return s.v.GetString(redisAddrVar)
}

func (s Store) GetUserCacheTTL() time.Duration {
	return s.v.GetDuration(userCacheTTLVar)
}

type Gateway struct {
	v *viper.Viper
}

var _ GatewayConfig = Gateway{}

func (g Gateway) GetGatewayPort() string {
	return listenAddr(g.v.GetString(gatewayPortVar))
}

func (g Gateway) GetAuthServiceURL() string {
	return g.v.GetString(authServiceURLVar)
}

func (g Gateway) GetProductServiceURL() string {
	return g.v.GetString(productServiceURLVar)
}

// GetUpstreamTimeout bounds each proxied request. Exceeding it answers 504.
func (g Gateway) GetUpstreamTimeout() time.Duration {
	return g.v.GetDuration(upstreamTimeoutVar)
}
