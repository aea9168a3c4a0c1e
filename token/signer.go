package token

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Signer signs and verifies one kind of token. Access and refresh tokens each get their own.
type Signer interface {
	Sign(claims jwt.Claims) (string, error)

	// Keyfunc is handed to the jwt parser.
	Keyfunc(token *jwt.Token) (any, error)

	Method() jwt.SigningMethod
}

// HMACSigner signs with HS256 under a single shared secret.
type HMACSigner struct {
	kind   string
	secret []byte
}

var _ Signer = (*HMACSigner)(nil)

// NewHMACSigner returns a signer for tokens of the given kind ("access" or "refresh").
func NewHMACSigner(kind, secret string) *HMACSigner {
	return &HMACSigner{kind: kind, secret: []byte(secret)}
}

func (h *HMACSigner) Sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(h.Method(), claims).SignedString(h.secret)
	if err != nil {
		return "", errors.Wrapf(err, "sign %s token", h.kind)
	}
	return signed, nil
}

func (h *HMACSigner) Keyfunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("%s token: unexpected signing method %v", h.kind, token.Header["alg"])
	}
	return h.secret, nil
}

func (h *HMACSigner) Method() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}
