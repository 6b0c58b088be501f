package dto

import (
	"time"

	"github.com/spec-kit/ticket-chat/internal/domain"
)

// LoginRequest authenticates a customer or staff account.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest creates a customer account.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries the issued token.
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// UserResponse is the wire form of an account.
type UserResponse struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

// PushTokenRequest registers a device for push delivery.
type PushTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// UnreadCountResponse reports unread message counts per ticket.
type UnreadCountResponse struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

// UserToResponse converts an account to its wire form.
func UserToResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Role:  u.Role,
	}
}
