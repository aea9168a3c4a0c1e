package users

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by GetByUsername when no user has the name.
	ErrNotFound = errors.New("user not found")
	// ErrAlreadyExists is returned by Create when the username is taken.
	ErrAlreadyExists = errors.New("user already exists")
)

// UserRepo is the credential store. Any other error from an implementation means the
// store itself is unavailable.
type UserRepo interface {
	GetByUsername(ctx context.Context, username string) (*User, error)
	Create(ctx context.Context, user *User) error
}
