package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/go-cookie-auth/auth"
	apperrors "github.com/jrsteele09/go-cookie-auth/internal/errors"
)

const maxBodyBytes = 1 << 20

// UserResponse is the body of every endpoint that returns a user.
type UserResponse struct {
	Message string      `json:"message,omitempty"`
	User    interface{} `json:"user"`
}

// RefreshResponse is the body of a successful POST /refresh-token.
type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// ErrorResponse is the body of every error.
type ErrorResponse struct {
	Message string           `json:"message"`
	Kind    apperrors.Kind   `json:"kind"`
	Reason  apperrors.Reason `json:"reason,omitempty"`
	Details interface{}      `json:"details,omitempty"`
}

// LoginHandler checks credentials and sets both token cookies.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.LoginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		user, pair, err := s.auth.Login(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.setPairCookies(w, pair)
		writeJSON(w, http.StatusOK, UserResponse{Message: "Login successful", User: user.Identity()})
	}
}

func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.RegisterRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		user, err := s.auth.Register(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, UserResponse{Message: "User registered successfully", User: user.Identity()})
	}
}

// RefreshTokenHandler exchanges the refreshToken cookie for a new access token. Any
// failure clears both cookies so the browser drops the dead session.
func (s *Server) RefreshTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pair, err := s.auth.Refresh(r.Context(), tokenFromCookie(r, RefreshTokenCookie))
		if err != nil {
			s.clearTokenCookies(w)
			s.writeError(w, r, err)
			return
		}

		s.setPairCookies(w, pair)
		writeJSON(w, http.StatusOK, RefreshResponse{AccessToken: pair.AccessToken})
	}
}

// LogoutHandler clears the cookies. Tokens are stateless so nothing is revoked.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.clearTokenCookies(w)
		writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
	}
}

func (s *Server) LoggedInUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			s.writeError(w, r, apperrors.Auth(apperrors.ReasonTokenMissing, "Unauthorized: Token missing"))
			return
		}
		writeJSON(w, http.StatusOK, UserResponse{User: user.Identity()})
	}
}

// UserHandler returns the stored record for an admin.
func (s *Server) UserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.auth.GetUser(r.Context(), r.PathValue("username"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, UserResponse{User: user})
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "up"})
	}
}

// writeError writes err as an ErrorResponse. Untagged errors become INTERNAL and their
// cause is only logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.AsAppError(err)

	if appErr.Kind == apperrors.KindInternal {
		s.log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", r.Header.Get(HeaderRequestID)).
			Msg("internal error")
	}

	if appErr.Reason != apperrors.ReasonNone {
		w.Header().Set(HeaderAuthReason, string(appErr.Reason))
	}
	writeJSON(w, appErr.StatusCode(), ErrorResponse{
		Message: appErr.Message,
		Kind:    appErr.Kind,
		Reason:  appErr.Reason,
		Details: appErr.Details,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.Validation("Invalid request body").WithCause(err)
	}
	return nil
}
