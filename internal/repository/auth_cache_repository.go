package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"school-portal/internal/models"

	"github.com/redis/go-redis/v9"
)

var ErrResetNotFound = errors.New("password reset not found")

const loginAttemptsTTL = 24 * time.Hour

// PendingReset is the state kept between forgot-password and reset-password.
type PendingReset struct {
	PrincipalID string               `json:"principalId"`
	Kind        models.PrincipalKind `json:"kind"`
	Email       string               `json:"email"`
	Code        string               `json:"code,omitempty"`
}

// AuthCacheRepository keeps short-lived authentication state in Redis.
type AuthCacheRepository interface {
	IncrementLoginAttempts(ctx context.Context, username string) (int64, error)
	ResetLoginAttempts(ctx context.Context, username string) error

	SaveResetCode(ctx context.Context, reset PendingReset, ttl time.Duration) error
	GetResetCode(ctx context.Context, email string) (*PendingReset, error)
	DeleteResetCode(ctx context.Context, email string) error
	// IncrementResetAttempts counts wrong codes for the pending reset of email.
	IncrementResetAttempts(ctx context.Context, email string, ttl time.Duration) (int64, error)

	SaveResetToken(ctx context.Context, token string, reset PendingReset, ttl time.Duration) error
	// ConsumeResetToken returns the reset bound to token and deletes it atomically.
	ConsumeResetToken(ctx context.Context, token string) (*PendingReset, error)
}

type authCacheRepository struct {
	client *redis.Client
}

func NewAuthCacheRepository(client *redis.Client) AuthCacheRepository {
	return &authCacheRepository{client: client}
}

func (r *authCacheRepository) IncrementLoginAttempts(ctx context.Context, username string) (int64, error) {
	key := fmt.Sprintf("login_attempts:%s", strings.ToLower(username))

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, loginAttemptsTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment login attempts: %w", err)
	}
	return incr.Val(), nil
}

func (r *authCacheRepository) ResetLoginAttempts(ctx context.Context, username string) error {
	key := fmt.Sprintf("login_attempts:%s", strings.ToLower(username))
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to reset login attempts: %w", err)
	}
	return nil
}

func (r *authCacheRepository) SaveResetCode(ctx context.Context, reset PendingReset, ttl time.Duration) error {
	data, err := json.Marshal(reset)
	if err != nil {
		return fmt.Errorf("failed to marshal reset code: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, resetCodeKey(reset.Email), data, ttl)
	pipe.Del(ctx, resetAttemptsKey(reset.Email))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store reset code: %w", err)
	}
	return nil
}

func (r *authCacheRepository) GetResetCode(ctx context.Context, email string) (*PendingReset, error) {
	data, err := r.client.Get(ctx, resetCodeKey(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrResetNotFound
		}
		return nil, fmt.Errorf("failed to get reset code: %w", err)
	}
	return decodeReset(data)
}

func (r *authCacheRepository) DeleteResetCode(ctx context.Context, email string) error {
	if err := r.client.Del(ctx, resetCodeKey(email), resetAttemptsKey(email)).Err(); err != nil {
		return fmt.Errorf("failed to delete reset code: %w", err)
	}
	return nil
}

func (r *authCacheRepository) IncrementResetAttempts(ctx context.Context, email string, ttl time.Duration) (int64, error) {
	key := resetAttemptsKey(email)

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment reset attempts: %w", err)
	}
	return incr.Val(), nil
}

func (r *authCacheRepository) SaveResetToken(ctx context.Context, token string, reset PendingReset, ttl time.Duration) error {
	reset.Code = ""
	data, err := json.Marshal(reset)
	if err != nil {
		return fmt.Errorf("failed to marshal reset token: %w", err)
	}
	if err := r.client.Set(ctx, resetTokenKey(token), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}
	return nil
}

func (r *authCacheRepository) ConsumeResetToken(ctx context.Context, token string) (*PendingReset, error) {
	if token == "" {
		return nil, ErrResetNotFound
	}
	data, err := r.client.GetDel(ctx, resetTokenKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrResetNotFound
		}
		return nil, fmt.Errorf("failed to consume reset token: %w", err)
	}
	return decodeReset(data)
}

func decodeReset(data []byte) (*PendingReset, error) {
	var reset PendingReset
	if err := json.Unmarshal(data, &reset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reset: %w", err)
	}
	return &reset, nil
}

func resetCodeKey(email string) string {
	return fmt.Sprintf("password_reset_code:%s", strings.ToLower(email))
}

func resetAttemptsKey(email string) string {
	return fmt.Sprintf("reset_attempts:%s", strings.ToLower(email))
}

func resetTokenKey(token string) string {
	return fmt.Sprintf("password_reset_token:%s", token)
}
