package auth

import (
	apperrors "github.com/jrsteele09/go-cookie-auth/internal/errors"
)

// Errors returned by Service. Each call returns a fresh value so callers may attach a
// cause without affecting other requests.

func errMissingCredentials() *apperrors.AppError {
	return apperrors.Validation("Username and password are required.")
}

func errInvalidCredentials() *apperrors.AppError {
	return apperrors.Auth(apperrors.ReasonInvalidCredentials, "Invalid username or password").WithCause(apperrors.ErrInvalidCredentials)
}

func errTokenMissing() *apperrors.AppError {
	return apperrors.Auth(apperrors.ReasonTokenMissing, "Unauthorized: Token missing").WithCause(apperrors.ErrTokenMissing)
}

func errTokenExpired() *apperrors.AppError {
	return apperrors.Auth(apperrors.ReasonTokenExpired, "Unauthorized: Token expired").WithCause(apperrors.ErrTokenExpired)
}

func errTokenInvalid() *apperrors.AppError {
	return apperrors.Auth(apperrors.ReasonTokenInvalid, "Unauthorized: Invalid token").WithCause(apperrors.ErrInvalidToken)
}

func errUserNotFound() *apperrors.AppError {
	return apperrors.Auth(apperrors.ReasonUserNotFound, "Unauthorized: User not found").WithCause(apperrors.ErrUserNotFound)
}
