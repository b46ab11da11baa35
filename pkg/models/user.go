package models

import (
	"strings"
	"time"
)

type User struct {
	ID           int64      `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	Username     string     `json:"username" db:"username"`
	FirstName    string     `json:"first_name" db:"first_name"`
	LastName     string     `json:"last_name" db:"last_name"`
	PasswordHash string     `json:"-" db:"password_hash"`
	IsStaff      bool       `json:"is_staff" db:"is_staff"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	Phone        string     `json:"phone" db:"phone"`
	Address      string     `json:"address" db:"address"`
	Bio          string     `json:"bio" db:"bio"`
	LastLogin    *time.Time `json:"last_login,omitempty" db:"last_login"`
	DateJoined   time.Time  `json:"date_joined" db:"date_joined"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type ProfileUpdateRequest struct {
	FirstName *string `json:"first_name,omitempty" validate:"omitempty,max=30"`
	LastName  *string `json:"last_name,omitempty" validate:"omitempty,max=30"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,max=20"`
	Address   *string `json:"address,omitempty" validate:"omitempty,max=500"`
	Bio       *string `json:"bio,omitempty" validate:"omitempty,max=500"`
}

type PromoteRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}
