package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"school-portal/internal/models"
	"school-portal/internal/repository"

	"github.com/google/uuid"
)

// SessionService provides business logic for session management
type SessionService struct {
	sessionRepo repository.SessionRepository
	now         func() time.Time
}

func NewSessionService(sessionRepo repository.SessionRepository) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		now:         time.Now,
	}
}

func (s *SessionService) Create(ctx context.Context, principal models.Principal, ipAddress, userAgent string, ttl time.Duration) (*models.Session, error) {
	now := s.now().UTC()
	session := &models.Session{
		ID:         uuid.NewString(),
		UserID:     principal.GetID(),
		UserType:   principal.Kind(),
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		CreatedAt:  now,
		LastActive: now,
		ExpiresAt:  now.Add(ttl),
	}

	if err := s.sessionRepo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// Get returns a live session or repository.ErrSessionNotFound.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	return s.sessionRepo.GetSession(ctx, sessionID)
}

// Exists reports whether the session is still live.
func (s *SessionService) Exists(ctx context.Context, sessionID string) (bool, error) {
	_, err := s.sessionRepo.GetSession(ctx, sessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Touch records activity on the session and returns the updated row.
func (s *SessionService) Touch(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.sessionRepo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	session.LastActive = s.now().UTC()
	if err := s.sessionRepo.UpdateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// ListActive returns unexpired sessions, most recently active first.
func (s *SessionService) ListActive(ctx context.Context, userID string) ([]*models.Session, error) {
	sessions, err := s.sessionRepo.GetUserSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	now := s.now()
	active := slices.DeleteFunc(sessions, func(sess *models.Session) bool {
		return sess.IsExpired(now)
	})
	slices.SortStableFunc(active, func(a, b *models.Session) int {
		return b.LastActive.Compare(a.LastActive)
	})
	return active, nil
}

// Terminate deletes the listed sessions that belong to userID. Ids of other
// users' sessions are ignored.
func (s *SessionService) Terminate(ctx context.Context, userID string, sessionIDs []string) (int, error) {
	terminated := 0
	for _, id := range slices.Compact(slices.Sorted(slices.Values(sessionIDs))) {
		session, err := s.sessionRepo.GetSession(ctx, id)
		if errors.Is(err, repository.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return terminated, err
		}
		if session.UserID != userID {
			continue
		}

		deleted, err := s.sessionRepo.DeleteSession(ctx, id)
		if err != nil {
			return terminated, err
		}
		if deleted {
			terminated++
		}
	}
	return terminated, nil
}

// TerminateAllExcept deletes every session of the user but keepID.
func (s *SessionService) TerminateAllExcept(ctx context.Context, userID, keepID string) (int, error) {
	sessions, err := s.sessionRepo.GetUserSessions(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	ids := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		if sess.ID != keepID {
			ids = append(ids, sess.ID)
		}
	}
	return s.Terminate(ctx, userID, ids)
}

func (s *SessionService) TerminateAll(ctx context.Context, userID string) (int, error) {
	return s.sessionRepo.DeleteUserSessions(ctx, userID)
}
