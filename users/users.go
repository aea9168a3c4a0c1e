package users

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role is the authorization level carried in tokens and stored with the user.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ParseRole accepts the role names case-insensitively. An empty value is RoleUser.
func ParseRole(value string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(value))) {
	case "", RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role %q", value)
	}
}

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// AtLeast reports whether r grants everything required grants.
func (r Role) AtLeast(required Role) bool {
	if required == RoleAdmin {
		return r == RoleAdmin
	}
	return r.Valid()
}

type User struct {
	Username     string    `json:"username"`             // Unique username
	PasswordHash string    `json:"-"`                    // Hashed version of the user's password - never serialize
	Role         Role      `json:"role"`                 // USER or ADMIN
	CreatedAt    time.Time `json:"created_at,omitempty"` // Registration time
}

// Identity is the part of a user that travels inside tokens.
type Identity struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

func (u *User) Identity() Identity {
	return Identity{Username: u.Username, Role: u.Role}
}

// HashPassword hashes with the given bcrypt cost, falling back to bcrypt.DefaultCost
// when cost is out of range.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CheckPassword checks a password against the user's hash
func (u *User) CheckPassword(password string) bool {
	return CheckPasswordHash(password, u.PasswordHash)
}
