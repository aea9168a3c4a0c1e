package server

import (
	"context"
	"net/http"

	apperrors "github.com/jrsteele09/go-cookie-auth/internal/errors"
	"github.com/jrsteele09/go-cookie-auth/users"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyUser stores the admitted *users.User
	ContextKeyUser ContextKey = "user"
)

// UserFromContext returns the user admitted by RequireSession.
func UserFromContext(ctx context.Context) (*users.User, bool) {
	u, ok := ctx.Value(ContextKeyUser).(*users.User)
	return u, ok && u != nil
}

// RequireSession admits requests carrying a valid accessToken cookie for a known user.
// Rejections are written as AUTH errors with the reason in the body and the
// X-Auth-Reason header.
func (s *Server) RequireSession() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			user, err := s.auth.Authenticate(r.Context(), tokenFromCookie(r, AccessTokenCookie))
			if err != nil {
				s.writeError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUser, user)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireRole must be chained after RequireSession.
func (s *Server) RequireRole(required users.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				s.writeError(w, r, apperrors.Auth(apperrors.ReasonTokenMissing, "Unauthorized: Token missing"))
				return
			}
			if !user.Role.AtLeast(required) {
				s.writeError(w, r, apperrors.Forbidden("Forbidden: "+string(required)+" role required"))
				return
			}
			next(w, r)
		}
	}
}
