// Package auth implements phone+password login with JWT access tokens
// and redis-backed rotating refresh tokens.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is a login account. Admin staff and borrowers share the table;
// the role claim drives authorization.
type User struct {
	ID                int64
	PhoneNumber       string
	FullName          string
	PasswordHash      string
	Role              string
	MustResetPassword bool
	IsActive          bool
	CreatedAt         time.Time
}

// TokenPair is issued on login and on every refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // access token lifetime in seconds
}

// Claims are the custom JWT claims carried by access tokens.
type Claims struct {
	Role     string `json:"role"`
	FullName string `json:"name"`
	jwt.RegisteredClaims
}
