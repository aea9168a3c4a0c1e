package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-cookie-auth/users"
)

// Claims is the payload of both access and refresh tokens.
type Claims struct {
	Username string     `json:"username"`
	Role     users.Role `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() users.Identity {
	return users.Identity{Username: c.Username, Role: c.Role}
}

// Expiry returns the exp claim, or the zero time when it is absent.
func (c *Claims) Expiry() time.Time {
	if c.RegisteredClaims.ExpiresAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.ExpiresAt.Time
}

// Pair is the result of a successful issue.
type Pair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Failure discriminates why a token was rejected.
type Failure int

const (
	// FailureMalformed covers bad encoding, bad signature, wrong algorithm and
	// missing claims. The session cannot be recovered.
	FailureMalformed Failure = iota + 1
	// FailureExpired means the token was genuine but its exp has passed.
	FailureExpired
)

func (f Failure) String() string {
	switch f {
	case FailureExpired:
		return "EXPIRED"
	case FailureMalformed:
		return "MALFORMED"
	default:
		return fmt.Sprintf("Failure(%d)", int(f))
	}
}

// VerifyError is returned by the verify methods of Manager.
type VerifyError struct {
	Failure Failure
	Err     error
}

func (e *VerifyError) Error() string {
	if e.Err == nil {
		return "token " + e.Failure.String()
	}
	return "token " + e.Failure.String() + ": " + e.Err.Error()
}

func (e *VerifyError) Unwrap() error {
	return e.Err
}

// FailureOf returns the verification failure carried by err, or 0 when err is not a
// VerifyError.
func FailureOf(err error) Failure {
	var verr *VerifyError
	if errors.As(err, &verr) {
		return verr.Failure
	}
	return 0
}
