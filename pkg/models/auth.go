package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
	TokenTypeReset   = "password_reset"
)

type JWTClaims struct {
	UserID    int64  `json:"user_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPair is the session issued at login and rotated at refresh.
type TokenPair struct {
	AccessToken      string    `json:"-"`
	RefreshToken     string    `json:"-"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Username  string `json:"username" validate:"required,min=3,max=150"`
	FirstName string `json:"first_name" validate:"required,max=30"`
	LastName  string `json:"last_name" validate:"required,max=30"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
	Password2 string `json:"password2" validate:"required,eqfield=Password"`
}

type LoginRequest struct {
	// Email or username.
	Identifier string `json:"email" validate:"required,max=254"`
	Password   string `json:"password" validate:"required,max=128"`
}

type AuthResponse struct {
	User    *User  `json:"user,omitempty"`
	Message string `json:"message"`
}

type RateLimitInfo struct {
	Scope     string `json:"scope"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	ResetTime int64  `json:"reset_time"`
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type PasswordResetTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type PasswordResetConfirmRequest struct {
	Token           string `json:"token" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

// PasswordResetStatus answers a token validation; Email is set only for a usable token.
type PasswordResetStatus struct {
	Valid bool   `json:"valid"`
	Email string `json:"email,omitempty"`
}
