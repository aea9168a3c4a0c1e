package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	accessSecretVar    = "ACCESS_TOKEN_SECRET"
	refreshSecretVar   = "REFRESH_TOKEN_SECRET"
	accessTokenTTLVar  = "ACCESS_TOKEN_TTL"
	refreshTokenTTLVar = "REFRESH_TOKEN_TTL"
	rotateRefreshVar   = "ROTATE_REFRESH_TOKEN"
	bcryptCostVar      = "BCRYPT_COST"

	accessCookieMaxAgeVar  = "ACCESS_COOKIE_MAX_AGE"
	refreshCookieMaxAgeVar = "REFRESH_COOKIE_MAX_AGE"
	cookieSecureVar        = "COOKIE_SECURE"
)

type TokenConfig interface {
	GetAccessTokenSecret() string
	GetRefreshTokenSecret() string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetRotateRefreshToken() bool
	GetBcryptCost() int
}

type CookieConfig interface {
	GetAccessCookieMaxAge() time.Duration
	GetRefreshCookieMaxAge() time.Duration
	GetCookieSecure() bool
}

type Tokens struct {
	v *viper.Viper
}

var _ TokenConfig = Tokens{}

func (t Tokens) GetAccessTokenSecret() string {
	return t.v.GetString(accessSecretVar)
}

func (t Tokens) GetRefreshTokenSecret() string {
	return t.v.GetString(refreshSecretVar)
}

func (t Tokens) GetAccessTokenTTL() time.Duration {
	return t.v.GetDuration(accessTokenTTLVar)
}

func (t Tokens) GetRefreshTokenTTL() time.Duration {
	return t.v.GetDuration(refreshTokenTTLVar)
}

// GetRotateRefreshToken reports whether /refresh-token also replaces the refresh token.
func (t Tokens) GetRotateRefreshToken() bool {
	return t.v.GetBool(rotateRefreshVar)
}

func (t Tokens) GetBcryptCost() int {
	return t.v.GetInt(bcryptCostVar)
}

type Cookies struct {
	v *viper.Viper
}

var _ CookieConfig = Cookies{}

// GetAccessCookieMaxAge is deliberately longer than the access token TTL; the refresh
// flow overwrites the cookie in place.
func (c Cookies) GetAccessCookieMaxAge() time.Duration {
	return c.v.GetDuration(accessCookieMaxAgeVar)
}

func (c Cookies) GetRefreshCookieMaxAge() time.Duration {
	return c.v.GetDuration(refreshCookieMaxAgeVar)
}

func (c Cookies) GetCookieSecure() bool {
	return c.v.GetBool(cookieSecureVar)
}
