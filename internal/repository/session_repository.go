package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"school-portal/internal/models"

	"github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionRepository handles session-related Redis operations
type SessionRepository interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	UpdateSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, sessionID string) (bool, error)
	DeleteUserSessions(ctx context.Context, userID string) (int, error)
	GetUserSessions(ctx context.Context, userID string) ([]*models.Session, error)
}

type sessionRepository struct {
	client *redis.Client
	now    func() time.Time
}

func NewSessionRepository(client *redis.Client) SessionRepository {
	return &sessionRepository{client: client, now: time.Now}
}

func (r *sessionRepository) CreateSession(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	if session.UserID == "" {
		return fmt.Errorf("user ID cannot be empty")
	}

	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return fmt.Errorf("session %s is already expired", session.ID)
	}

	sessionData, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	userSessionsKey := r.getUserSessionsKey(session.UserID)

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.getSessionKey(session.ID), sessionData, ttl)
	pipe.SAdd(ctx, userSessionsKey, session.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	// the index lives as long as the longest session in it
	current, err := r.client.TTL(ctx, userSessionsKey).Result()
	if err != nil {
		return fmt.Errorf("failed to read user sessions ttl: %w", err)
	}
	if current < ttl {
		if err := r.client.Expire(ctx, userSessionsKey, ttl).Err(); err != nil {
			return fmt.Errorf("failed to set expiration on user sessions: %w", err)
		}
	}
	return nil
}

func (r *sessionRepository) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	sessionData, err := r.client.Get(ctx, r.getSessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(sessionData, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if session.IsExpired(r.now()) {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

// UpdateSession rewrites the stored row keeping its remaining lifetime.
func (r *sessionRepository) UpdateSession(ctx context.Context, session *models.Session) error {
	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return ErrSessionNotFound
	}

	sessionData, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// XX: never resurrect a session deleted concurrently
	ok, err := r.client.SetXX(ctx, r.getSessionKey(session.ID), sessionData, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteSession removes a session; false means it was already gone.
func (r *sessionRepository) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}

	session, err := r.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}

	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, r.getSessionKey(sessionID))
	pipe.SRem(ctx, r.getUserSessionsKey(session.UserID), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return del.Val() > 0, nil
}

// DeleteUserSessions removes every session of the user and returns how many existed.
func (r *sessionRepository) DeleteUserSessions(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("user ID cannot be empty")
	}

	userSessionsKey := r.getUserSessionsKey(userID)
	sessionIDs, err := r.client.SMembers(ctx, userSessionsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get user sessions: %w", err)
	}
	if len(sessionIDs) == 0 {
		return 0, nil
	}

	pipe := r.client.TxPipeline()
	dels := make([]*redis.IntCmd, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		dels = append(dels, pipe.Del(ctx, r.getSessionKey(sessionID)))
	}
	pipe.Del(ctx, userSessionsKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to delete user sessions: %w", err)
	}

	deleted := 0
	for _, cmd := range dels {
		deleted += int(cmd.Val())
	}
	return deleted, nil
}

// GetUserSessions returns the user's live sessions and prunes index entries whose row expired.
func (r *sessionRepository) GetUserSessions(ctx context.Context, userID string) ([]*models.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID cannot be empty")
	}

	userSessionsKey := r.getUserSessionsKey(userID)
	sessionIDs, err := r.client.SMembers(ctx, userSessionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user session IDs: %w", err)
	}

	sessions := make([]*models.Session, 0, len(sessionIDs))
	var stale []any
	for _, sessionID := range sessionIDs {
		session, err := r.GetSession(ctx, sessionID)
		if errors.Is(err, ErrSessionNotFound) {
			stale = append(stale, sessionID)
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	if len(stale) > 0 {
		if err := r.client.SRem(ctx, userSessionsKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune user sessions: %w", err)
		}
	}
	return sessions, nil
}

func (r *sessionRepository) getSessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

func (r *sessionRepository) getUserSessionsKey(userID string) string {
	return fmt.Sprintf("user_sessions:%s", userID)
}
