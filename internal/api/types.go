package api

import "time"

// LoginRequest is the payload for session login.
type LoginRequest struct {
	DisplayName string `json:"display_name" validate:"required"`
	Mobile      string `json:"mobile" validate:"required"`
}

// LoginResponse carries the issued session token.
type LoginResponse struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
}

// SetBlockedRequest toggles a user's block flag.
type SetBlockedRequest struct {
	Blocked bool `json:"blocked"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
