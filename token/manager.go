package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-cookie-auth/users"
	"github.com/pkg/errors"
)

const (
	DefaultAccessTokenExpiry  = 5 * time.Minute
	DefaultRefreshTokenExpiry = 7 * 24 * time.Hour
)

// ErrMissingSecret is returned by New when either signing secret is empty.
var ErrMissingSecret = errors.New("token signing secret is empty")

// Manager issues and verifies access and refresh tokens. Each kind has its own
// signer so a leaked access secret cannot mint refresh tokens. It holds no mutable
// state and is safe for concurrent use.
type Manager struct {
	accessSigner       Signer
	refreshSigner      Signer
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	nowFunc            func() time.Time
}

// ManagerOption configures a Manager built by New.
type ManagerOption func(*Manager)

// WithTokenExpiry sets the lifetimes of issued tokens. Non-positive values keep the defaults.
func WithTokenExpiry(accessTokenExpiry, refreshTokenExpiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenExpiry = accessTokenExpiry
		m.refreshTokenExpiry = refreshTokenExpiry
	}
}

// WithNowFunc replaces the clock used for both issuing and verifying.
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// New creates a Manager signing access and refresh tokens with their own secrets.
// Both secrets are required.
func New(accessSecret, refreshSecret string, options ...ManagerOption) (*Manager, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, ErrMissingSecret
	}

	m := &Manager{
		accessSigner:  NewHMACSigner("access", accessSecret),
		refreshSigner: NewHMACSigner("refresh", refreshSecret),
	}

	for _, opt := range options {
		opt(m)
	}

	if m.accessTokenExpiry <= 0 {
		m.accessTokenExpiry = DefaultAccessTokenExpiry
	}
	if m.refreshTokenExpiry <= 0 {
		m.refreshTokenExpiry = DefaultRefreshTokenExpiry
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m, nil
}

// Issue signs a fresh access token and a fresh refresh token for identity.
func (m *Manager) Issue(identity users.Identity) (*Pair, error) {
	access, accessExp, err := m.IssueAccess(identity)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := m.sign(m.refreshSigner, identity, m.refreshTokenExpiry)
	if err != nil {
		return nil, errors.Wrap(err, "Manager.Issue refresh")
	}
	return &Pair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// IssueAccess signs only an access token.
func (m *Manager) IssueAccess(identity users.Identity) (string, time.Time, error) {
	access, exp, err := m.sign(m.accessSigner, identity, m.accessTokenExpiry)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "Manager.IssueAccess")
	}
	return access, exp, nil
}

// VerifyAccess checks an access token's signature, then its expiry.
func (m *Manager) VerifyAccess(raw string) (*Claims, error) {
	return m.verify(m.accessSigner, raw)
}

// VerifyRefresh checks a refresh token's signature, then its expiry.
func (m *Manager) VerifyRefresh(raw string) (*Claims, error) {
	return m.verify(m.refreshSigner, raw)
}

// AccessTokenExpiry is the lifetime given to access tokens.
func (m *Manager) AccessTokenExpiry() time.Duration {
	return m.accessTokenExpiry
}

// RefreshTokenExpiry is the lifetime given to refresh tokens.
func (m *Manager) RefreshTokenExpiry() time.Duration {
	return m.refreshTokenExpiry
}

func (m *Manager) sign(signer Signer, identity users.Identity, ttl time.Duration) (string, time.Time, error) {
	now := m.nowFunc()
	exp := now.Add(ttl)
	claims := &Claims{
		Username: identity.Username,
		Role:     identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.New().String(),
		},
	}
	signed, err := signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (m *Manager) verify(signer Signer, raw string) (*Claims, error) {
	if raw == "" {
		return nil, &VerifyError{Failure: FailureMalformed, Err: jwt.ErrTokenMalformed}
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, signer.Keyfunc,
		jwt.WithValidMethods([]string{signer.Method().Alg()}),
		jwt.WithTimeFunc(m.nowFunc),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		// The signature is checked before any claim, so an expired result is genuine.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &VerifyError{Failure: FailureExpired, Err: err}
		}
		return nil, &VerifyError{Failure: FailureMalformed, Err: err}
	}

	if claims.Username == "" || !claims.Role.Valid() {
		return nil, &VerifyError{Failure: FailureMalformed, Err: errors.New("token is missing identity claims")}
	}
	return claims, nil
}
