package repository

import (
	"context"
	"testing"
	"time"

	"school-portal/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newSession(id, userID string, ttl time.Duration) *models.Session {
	now := time.Now()
	return &models.Session{
		ID:         id,
		UserID:     userID,
		UserType:   models.KindTeacher,
		IPAddress:  "10.0.0.1",
		UserAgent:  "Mozilla/5.0",
		CreatedAt:  now,
		LastActive: now,
		ExpiresAt:  now.Add(ttl),
	}
}

func TestSessionRepository_CreateAndGet(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := NewSessionRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.CreateSession(ctx, newSession("s1", "u1", time.Hour)))

	got, err := repo.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, models.KindTeacher, got.UserType)

	assert.True(t, mr.Exists("session:s1"))
	members, err := mr.SMembers("user_sessions:u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, members)

	ttl := mr.TTL("session:s1")
	assert.InDelta(t, time.Hour.Seconds(), ttl.Seconds(), 5)
}

func TestSessionRepository_CreateRejectsExpired(t *testing.T) {
	_, client := newTestRedis(t)
	repo := NewSessionRepository(client)

	err := repo.CreateSession(context.Background(), newSession("s1", "u1", -time.Minute))
	assert.Error(t, err)
}

func TestSessionRepository_IndexOutlivesShortSessions(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := NewSessionRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.CreateSession(ctx, newSession("long", "u1", 7*24*time.Hour)))
	require.NoError(t, repo.CreateSession(ctx, newSession("short", "u1", time.Hour)))

	assert.InDelta(t, (7 * 24 * time.Hour).Seconds(), mr.TTL("user_sessions:u1").Seconds(), 5)
}

func TestSessionRepository_GetMissing(t *testing.T) {
	_, client := newTestRedis(t)
	repo := NewSessionRepository(client)

	_, err := repo.GetSession(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = repo.GetSession(context.Background(), "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionRepository_DeleteSession(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := NewSessionRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.CreateSession(ctx, newSession("s1", "u1", time.Hour)))
	require.NoError(t, repo.CreateSession(ctx, newSession("s2", "u1", time.Hour)))

	deleted, err := repo.DeleteSession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.DeleteSession(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, deleted)

	assert.False(t, mr.Exists("session:s1"))
	members, err := mr.SMembers("user_sessions:u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, members)
}

func TestSessionRepository_DeleteUserSessions(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := NewSessionRepository(client)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, repo.CreateSession(ctx, newSession(id, "u1", time.Hour)))
	}
	require.NoError(t, repo.CreateSession(ctx, newSession("other", "u2", time.Hour)))

	count, err := repo.DeleteUserSessions(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.False(t, mr.Exists("user_sessions:u1"))
	assert.True(t, mr.Exists("session:other"))

	count, err = repo.DeleteUserSessions(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSessionRepository_UpdateSession(t *testing.T) {
	_, client := newTestRedis(t)
	repo := NewSessionRepository(client)
	ctx := context.Background()

	s := newSession("s1", "u1", time.Hour)
	require.NoError(t, repo.CreateSession(ctx, s))

	s.LastActive = s.LastActive.Add(10 * time.Minute)
	require.NoError(t, repo.UpdateSession(ctx, s))

	got, err := repo.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, got.LastActive.Equal(s.LastActive))

	_, err = repo.DeleteSession(ctx, "s1")
	require.NoError(t, err)
	assert.ErrorIs(t, repo.UpdateSession(ctx, s), ErrSessionNotFound)
}

func TestSessionRepository_GetUserSessionsPrunesExpired(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := NewSessionRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.CreateSession(ctx, newSession("short", "u1", time.Minute)))
	require.NoError(t, repo.CreateSession(ctx, newSession("long", "u1", 2*time.Hour)))

	mr.FastForward(5 * time.Minute)

	sessions, err := repo.GetUserSessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "long", sessions[0].ID)

	members, err := mr.SMembers("user_sessions:u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"long"}, members)
}
