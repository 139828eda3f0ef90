package model

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered account. ResetToken holds the outstanding reset
// credential, nil when no reset is pending.
type User struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	IsAdmin      bool
	ResetToken   *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfileUpdateRequest fields left empty keep their current value.
type ProfileUpdateRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AdminUpdateRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type UserResponse struct {
	ID      uuid.UUID `json:"_id"`
	Name    string    `json:"name"`
	Email   string    `json:"email"`
	IsAdmin bool      `json:"isAdmin"`
	Token   string    `json:"token,omitempty"`
}

type UserUpdatedResponse struct {
	Message string       `json:"message"`
	User    UserResponse `json:"user"`
}

func NewUserResponse(u *User, token string) UserResponse {
	return UserResponse{
		ID:      u.ID,
		Name:    u.Name,
		Email:   u.Email,
		IsAdmin: u.IsAdmin,
		Token:   token,
	}
}
