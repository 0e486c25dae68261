// Package auth handles sign-in, sessions and the email allow-list that gates
// every other page. There is no public registration: users are provisioned
// from the command line and must also appear on the allow-list.
package auth

import (
	"strings"
	"time"
)

// User is a provisioned account. Email is the identity and is stored
// normalized (trimmed and lowercased).
type User struct {
	Email        string     `json:"email"`
	PasswordHash string     `json:"passwordHash"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
}

// Session is the data stored in the session store for a signed-in user.
type Session struct {
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// LoginRequest is bound from the sign-in form.
type LoginRequest struct {
	Email    string `form:"email"`
	Password string `form:"password"`
}

// LoginInput is the validated sign-in data passed to the service.
type LoginInput struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// NormalizeEmail trims and lowercases an address for comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
