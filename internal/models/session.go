package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Session struct {
	ID         string        `json:"id"`
	UserID     string        `json:"userId"`
	UserType   PrincipalKind `json:"userType"`
	IPAddress  string        `json:"ipAddress"`
	UserAgent  string        `json:"userAgent"`
	CreatedAt  time.Time     `json:"createdAt"`
	LastActive time.Time     `json:"lastActive"`
	ExpiresAt  time.Time     `json:"expiresAt"`
}

func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Claims carries the token payload; RegisteredClaims.ID holds the session id.
type Claims struct {
	UserID   string        `json:"userId"`
	UserType PrincipalKind `json:"userType"`
	Username string        `json:"username"`
	jwt.RegisteredClaims
}
