package services

import (
	"errors"
	"fmt"
	"time"

	"school-portal/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// JWTService signs and verifies HS256 session tokens.
type JWTService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewJWTService(secret, issuer string) *JWTService {
	return &JWTService{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

// WithClock replaces the time source used for issuing and verifying.
func (s *JWTService) WithClock(now func() time.Time) *JWTService {
	s.now = now
	return s
}

func (s *JWTService) Issue(principal models.Principal, sessionID string, ttl time.Duration) (string, time.Time, error) {
	if sessionID == "" {
		return "", time.Time{}, errors.New("session id is required")
	}
	now := s.now()
	expiresAt := now.Add(ttl)

	claims := models.Claims{
		UserID:   principal.GetID(),
		UserType: principal.Kind(),
		Username: principal.GetUsername(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   principal.GetID(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("error generate token string: %w", err)
	}
	return tokenString, claims.ExpiresAt.Time, nil
}

// Verify reports whether the token is authentic, unexpired and well formed.
// The reason for a rejection is deliberately not returned.
func (s *JWTService) Verify(tokenString string) (*models.Claims, bool) {
	if tokenString == "" {
		return nil, false
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&models.Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		return nil, false
	}

	claims, ok := token.Claims.(*models.Claims)
	if !ok || !token.Valid || claims.UserID == "" || !claims.UserType.Valid() || claims.ID == "" {
		return nil, false
	}
	return claims, true
}
