package models

import "time"

// Authentication DTOs
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	UserType string `json:"userType"`
}

type LoginSecurity struct {
	SessionID  string    `json:"sessionId"`
	ExpiresAt  time.Time `json:"expiresAt"`
	DeviceInfo string    `json:"deviceInfo"`
}

type LoginResponse struct {
	User     PublicUser    `json:"user"`
	Token    string        `json:"token"`
	Security LoginSecurity `json:"security"`
}

type SessionInfoResponse struct {
	User           PublicUser `json:"user"`
	CurrentSession *Session   `json:"currentSession"`
	Sessions       []*Session `json:"sessions"`
}

type TerminateSessionsRequest struct {
	SessionIDs   []string `json:"sessionIds"`
	TerminateAll bool     `json:"terminateAll"`
}

type TerminateSessionsResponse struct {
	TerminatedCount int `json:"terminatedCount"`
}

// Password reset DTOs
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type VerifyCodeRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required,len=6,numeric"`
}

type VerifyCodeResponse struct {
	ResetToken string `json:"resetToken"`
}

type ResetPasswordRequest struct {
	ResetToken  string `json:"resetToken" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8"`
}

// Provisioning DTOs
type CreatePrincipalRequest struct {
	UserType string  `json:"userType" binding:"required"`
	Username string  `json:"username" binding:"required,min=3,max=20"`
	Password string  `json:"password" binding:"required,min=8"`
	Name     string  `json:"name"`
	Surname  string  `json:"surname"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Phone    *string `json:"phone"`
	ParentID string  `json:"parentId"`
	ClassID  *int    `json:"classId"`
}

// Academic DTOs
type UpdateResultRequest struct {
	Score *int `json:"score" binding:"required,min=0,max=100"`
}
