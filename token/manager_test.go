package token_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-cookie-auth/token"
	"github.com/jrsteele09/go-cookie-auth/users"
	"github.com/stretchr/testify/require"
)

const (
	accessSecret  = "access-secret"
	refreshSecret = "refresh-secret"
)

var alice = users.Identity{Username: "alice", Role: users.RoleUser}

// testClock is a settable clock shared by issue and verify.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newManager(t *testing.T) (*token.Manager, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	m, err := token.New(accessSecret, refreshSecret, token.WithNowFunc(clock.Now))
	require.NoError(t, err)
	return m, clock
}

func TestNew_MissingSecret(t *testing.T) {
	_, err := token.New("", refreshSecret)
	require.ErrorIs(t, err, token.ErrMissingSecret)

	_, err = token.New(accessSecret, "")
	require.ErrorIs(t, err, token.ErrMissingSecret)
}

func TestNew_TokenExpiry(t *testing.T) {
	m, err := token.New(accessSecret, refreshSecret)
	require.NoError(t, err)
	require.Equal(t, token.DefaultAccessTokenExpiry, m.AccessTokenExpiry())
	require.Equal(t, token.DefaultRefreshTokenExpiry, m.RefreshTokenExpiry())

	clock := &testClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	m, err = token.New(accessSecret, refreshSecret,
		token.WithTokenExpiry(time.Minute, time.Hour),
		token.WithNowFunc(clock.Now))
	require.NoError(t, err)
	require.Equal(t, time.Minute, m.AccessTokenExpiry())
	require.Equal(t, time.Hour, m.RefreshTokenExpiry())

	pair, err := m.Issue(alice)
	require.NoError(t, err)
	require.True(t, clock.now.Add(m.AccessTokenExpiry()).Equal(pair.AccessExpiresAt))
	require.True(t, clock.now.Add(m.RefreshTokenExpiry()).Equal(pair.RefreshExpiresAt))

	m, err = token.New(accessSecret, refreshSecret, token.WithTokenExpiry(0, -time.Second))
	require.NoError(t, err)
	require.Equal(t, token.DefaultAccessTokenExpiry, m.AccessTokenExpiry())
	require.Equal(t, token.DefaultRefreshTokenExpiry, m.RefreshTokenExpiry())
}

func TestIssue_RoundTrip(t *testing.T) {
	m, clock := newManager(t)

	pair, err := m.Issue(alice)
	require.NoError(t, err)
	require.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	require.True(t, clock.now.Add(5*time.Minute).Equal(pair.AccessExpiresAt))
	require.True(t, clock.now.Add(7*24*time.Hour).Equal(pair.RefreshExpiresAt))

	claims, err := m.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, alice, claims.Identity())
	require.True(t, pair.AccessExpiresAt.Equal(claims.Expiry()))
	require.NotEmpty(t, claims.ID)

	claims, err = m.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, alice, claims.Identity())
}

func TestVerify_Expired(t *testing.T) {
	m, clock := newManager(t)
	pair, err := m.Issue(alice)
	require.NoError(t, err)

	clock.now = clock.now.Add(5*time.Minute - time.Second)
	_, err = m.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)

	clock.now = clock.now.Add(2 * time.Second)
	_, err = m.VerifyAccess(pair.AccessToken)
	require.Equal(t, token.FailureExpired, token.FailureOf(err))

	// the refresh token outlives the access token
	_, err = m.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)

	clock.now = clock.now.Add(7 * 24 * time.Hour)
	_, err = m.VerifyRefresh(pair.RefreshToken)
	require.Equal(t, token.FailureExpired, token.FailureOf(err))
}

func TestVerify_AnyMutatedByteIsMalformed(t *testing.T) {
	m, _ := newManager(t)
	pair, err := m.Issue(alice)
	require.NoError(t, err)

	raw := pair.AccessToken
	for i := range raw {
		if raw[i] == '.' {
			continue
		}
		replacement := byte('A')
		if raw[i] == 'A' {
			replacement = 'B'
		}
		mutated := raw[:i] + string(replacement) + raw[i+1:]

		_, err := m.VerifyAccess(mutated)
		require.Equal(t, token.FailureMalformed, token.FailureOf(err), "byte %d", i)
	}
}

func TestVerify_TamperedAndExpiredIsMalformed(t *testing.T) {
	m, clock := newManager(t)
	pair, err := m.Issue(alice)
	require.NoError(t, err)

	clock.now = clock.now.Add(time.Hour)
	parts := strings.Split(pair.AccessToken, ".")
	parts[2] = strings.Repeat("A", len(parts[2]))
	_, err = m.VerifyAccess(strings.Join(parts, "."))
	require.Equal(t, token.FailureMalformed, token.FailureOf(err))
}

func TestVerify_SecretsAreNotInterchangeable(t *testing.T) {
	m, _ := newManager(t)
	pair, err := m.Issue(alice)
	require.NoError(t, err)

	_, err = m.VerifyRefresh(pair.AccessToken)
	require.Equal(t, token.FailureMalformed, token.FailureOf(err))

	_, err = m.VerifyAccess(pair.RefreshToken)
	require.Equal(t, token.FailureMalformed, token.FailureOf(err))
}

func TestVerify_RejectsForeignTokens(t *testing.T) {
	m, clock := newManager(t)
	exp := jwt.NewNumericDate(clock.now.Add(time.Minute))

	t.Run("empty", func(t *testing.T) {
		_, err := m.VerifyAccess("")
		require.Equal(t, token.FailureMalformed, token.FailureOf(err))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.VerifyAccess("not-a-jwt")
		require.Equal(t, token.FailureMalformed, token.FailureOf(err))
	})

	t.Run("alg none", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &token.Claims{
			Username:         "alice",
			Role:             users.RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp},
		})
		raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = m.VerifyAccess(raw)
		require.Equal(t, token.FailureMalformed, token.FailureOf(err))
	})

	t.Run("missing exp", func(t *testing.T) {
		raw, err := token.NewHMACSigner("access", accessSecret).Sign(&token.Claims{Username: "alice", Role: users.RoleUser})
		require.NoError(t, err)

		_, err = m.VerifyAccess(raw)
		require.Equal(t, token.FailureMalformed, token.FailureOf(err))
	})

	t.Run("missing identity", func(t *testing.T) {
		raw, err := token.NewHMACSigner("access", accessSecret).Sign(&token.Claims{
			Role:             users.RoleUser,
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp},
		})
		require.NoError(t, err)

		_, err = m.VerifyAccess(raw)
		require.Equal(t, token.FailureMalformed, token.FailureOf(err))
	})

	t.Run("unknown role", func(t *testing.T) {
		raw, err := token.NewHMACSigner("access", accessSecret).Sign(&token.Claims{
			Username:         "alice",
			Role:             "ROOT",
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp},
		})
		require.NoError(t, err)

		_, err = m.VerifyAccess(raw)
		require.Equal(t, token.FailureMalformed, token.FailureOf(err))
	})
}

func TestFailure_String(t *testing.T) {
	require.Equal(t, "EXPIRED", token.FailureExpired.String())
	require.Equal(t, "MALFORMED", token.FailureMalformed.String())
	require.Equal(t, token.Failure(0), token.FailureOf(nil))
}
