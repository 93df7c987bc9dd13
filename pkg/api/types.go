package api

import "time"

const (
	statusSuccess = "success"
	statusError   = "error"
)

type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	TempToken  string `json:"temp_token,omitempty"`
	Remember   bool   `json:"remember,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`
}

type RememberMeLoginRequest struct {
	IdentityID string `json:"identity_id"`
	DeviceID   string `json:"device_id"`
	Token      string `json:"token"`
}

type LostPasswordRequest struct {
	Identifier string `json:"identifier"`
}

type ResetPasswordRequest struct {
	IdentityID  string `json:"identity_id"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type RememberMeResponse struct {
	DeviceID        string    `json:"device_id"`
	Token           string    `json:"token"`
	ExpiresAt       time.Time `json:"expires_at"`
	DeviceExpiresAt time.Time `json:"device_expires_at"`
}

type LoginResponse struct {
	Status          string              `json:"status"`
	Message         string              `json:"message,omitempty"`
	IdentityID      string              `json:"identity_id"`
	Method          string              `json:"method"`
	SessionToken    string              `json:"session_token"`
	ExpiresAt       time.Time           `json:"expires_at"`
	PasswordExpired bool                `json:"password_expired"`
	TempToken       string              `json:"temp_token,omitempty"`
	RememberMe      *RememberMeResponse `json:"remember_me,omitempty"`
}

type StatusResponse struct {
	Status          string `json:"status"`
	IdentityID      string `json:"identity_id"`
	LockedOut       bool   `json:"locked_out"`
	CanLogin        bool   `json:"can_login"`
	PasswordExpired bool   `json:"password_expired"`
}

type MessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
