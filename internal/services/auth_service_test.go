package services

import (
	"context"
	"testing"
	"time"

	"school-portal/internal/apperror"
	"school-portal/internal/config"
	"school-portal/internal/event"
	"school-portal/internal/models"
	"school-portal/internal/repository"
	"school-portal/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type authFixture struct {
	svc        *AuthService
	sessions   *SessionService
	principals *testutil.PrincipalStore
	audit      *testutil.AuditStore
	notifier   *testutil.Notifier
	redis      *miniredis.Miniredis
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:             testSecret,
		Issuer:                "school-portal",
		SessionTTL:            24 * time.Hour,
		AdminSessionTTL:       7 * 24 * time.Hour,
		SessionCookie:         "session-token",
		AdminCookie:           "admin-session",
		ResetCodeTTL:          15 * time.Minute,
		DemoResetCode:         "123456",
		FailedLoginAlertEvery: 3,
	}
}

func newAuthFixture(t *testing.T, mutate ...func(*config.AuthConfig)) *authFixture {
	t.Helper()
	cfg := testAuthConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	mr, client := newTestRedisClient(t)
	f := &authFixture{
		sessions:   NewSessionService(repository.NewSessionRepository(client)),
		principals: testutil.NewPrincipalStore(),
		audit:      &testutil.AuditStore{},
		notifier:   &testutil.Notifier{},
		redis:      mr,
	}

	svc, err := newAuthService(
		f.principals,
		f.sessions,
		NewJWTService(cfg.JWTSecret, cfg.Issuer),
		NewAuditService(f.audit, nil),
		repository.NewAuthCacheRepository(client),
		f.notifier,
		cfg,
		bcrypt.MinCost,
	)
	require.NoError(t, err)
	f.svc = svc

	email := "parent@example.com"
	f.principals.Add(&models.Admin{Identity: models.Identity{ID: "a-1", Username: "admin", PasswordHash: testutil.MustHash(t, "admin-pass")}})
	f.principals.Add(&models.Teacher{Identity: models.Identity{ID: "t-1", Username: "teacher1", PasswordHash: testutil.MustHash(t, "teacher-pass")}})
	f.principals.Add(&models.Parent{
		Identity: models.Identity{ID: "p-1", Username: "parent1", PasswordHash: testutil.MustHash(t, "parent-pass")},
		Profile:  models.Profile{Name: "Pat", Surname: "Doe", Email: &email},
	})
	return f
}

func (f *authFixture) login(t *testing.T, username, password string) *LoginResult {
	t.Helper()
	res, err := f.svc.Login(context.Background(), LoginInput{Username: username, Password: password, IPAddress: "10.0.0.1", UserAgent: "test"})
	require.NoError(t, err)
	return res
}

func TestAuthService_LoginProbesPrincipalKinds(t *testing.T) {
	f := newAuthFixture(t)

	res := f.login(t, "teacher1", "teacher-pass")
	assert.Equal(t, models.KindTeacher, res.Principal.Kind())
	assert.Equal(t, 24*time.Hour, res.TTL)
	assert.NotEmpty(t, res.Token)

	claims, ok := f.svc.Authenticate(context.Background(), res.Token)
	require.True(t, ok)
	assert.Equal(t, "t-1", claims.UserID)
	assert.Equal(t, res.Session.ID, claims.ID)

	exists, err := f.sessions.Exists(context.Background(), res.Session.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	assert.Equal(t, []models.AuditAction{models.AuditLogin}, f.audit.Actions())
}

func TestAuthService_LoginFailuresAreIndistinguishable(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, wrongPassword := f.svc.Login(ctx, LoginInput{Username: "teacher1", Password: "nope"})
	_, unknownUser := f.svc.Login(ctx, LoginInput{Username: "ghost", Password: "nope"})
	_, wrongKind := f.svc.Login(ctx, LoginInput{Username: "teacher1", Password: "teacher-pass", UserType: "STUDENT"})

	for _, err := range []error{wrongPassword, unknownUser, wrongKind} {
		require.Error(t, err)
		assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)
		assert.Equal(t, wrongPassword.Error(), err.Error())
	}

	entries := f.audit.Entries()
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, models.AuditLoginFailed, e.Action)
		assert.Empty(t, e.UserID)
	}
	require.NotNil(t, entries[1].Changes)
	assert.Contains(t, *entries[1].Changes, `"username":"ghost"`)
}

func TestAuthService_LoginRejectsUnknownUserType(t *testing.T) {
	f := newAuthFixture(t)
	_, err := f.svc.Login(context.Background(), LoginInput{Username: "teacher1", Password: "teacher-pass", UserType: "JANITOR"})
	require.Error(t, err)
	assert.Equal(t, apperror.KindValidation, apperror.As(err).Kind)
}

func TestAuthService_AdminLogin(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, LoginInput{Username: "teacher1", Password: "teacher-pass", AdminOnly: true})
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)

	res, err := f.svc.Login(ctx, LoginInput{Username: "admin", Password: "admin-pass", AdminOnly: true})
	require.NoError(t, err)
	assert.Equal(t, models.KindAdmin, res.Principal.Kind())
	assert.Equal(t, 7*24*time.Hour, res.TTL)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), res.Session.ExpiresAt, 5*time.Second)
}

func TestAuthService_SuspiciousLoginNotification(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	for range 3 {
		_, err := f.svc.Login(ctx, LoginInput{Username: "teacher1", Password: "wrong", IPAddress: "10.9.9.9"})
		require.Error(t, err)
	}

	sent := f.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, event.TypeSuspiciousLogin, sent[0].Type)
	assert.Equal(t, "t-1", sent[0].RecipientID)
	assert.Equal(t, int64(3), sent[0].Payload["attempts"])

	f.login(t, "teacher1", "teacher-pass")
	assert.False(t, f.redis.Exists("login_attempts:teacher1"), "successful login clears the counter")
}

func TestAuthService_AuthenticateRevocation(t *testing.T) {
	ctx := context.Background()

	t.Run("stateless by default", func(t *testing.T) {
		f := newAuthFixture(t)
		res := f.login(t, "teacher1", "teacher-pass")
		_, err := f.sessions.TerminateAll(ctx, "t-1")
		require.NoError(t, err)

		_, ok := f.svc.Authenticate(ctx, res.Token)
		assert.True(t, ok)
	})

	t.Run("enforced", func(t *testing.T) {
		f := newAuthFixture(t, func(c *config.AuthConfig) { c.EnforceSessionRevocation = true })
		res := f.login(t, "teacher1", "teacher-pass")

		_, ok := f.svc.Authenticate(ctx, res.Token)
		require.True(t, ok)

		_, err := f.sessions.TerminateAll(ctx, "t-1")
		require.NoError(t, err)
		_, ok = f.svc.Authenticate(ctx, res.Token)
		assert.False(t, ok)
	})

	t.Run("garbage token", func(t *testing.T) {
		f := newAuthFixture(t)
		_, ok := f.svc.Authenticate(ctx, "not-a-token")
		assert.False(t, ok)
	})
}

func TestAuthService_Logout(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	res := f.login(t, "teacher1", "teacher-pass")
	other := f.login(t, "teacher1", "teacher-pass")

	claims, ok := f.svc.Authenticate(ctx, res.Token)
	require.True(t, ok)
	require.NoError(t, f.svc.Logout(ctx, claims, "10.0.0.1", "test"))

	exists, err := f.sessions.Exists(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = f.sessions.Exists(ctx, other.Session.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	actions := f.audit.Actions()
	assert.Equal(t, models.AuditLogout, actions[len(actions)-1])
}

func TestAuthService_TerminateAllKeepsCurrent(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	var last *LoginResult
	for range 3 {
		last = f.login(t, "teacher1", "teacher-pass")
	}
	claims, ok := f.svc.Authenticate(ctx, last.Token)
	require.True(t, ok)

	count, err := f.svc.TerminateSessions(ctx, claims, nil, true, "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	active, err := f.sessions.ListActive(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, last.Session.ID, active[0].ID)

	_, ok = f.svc.Authenticate(ctx, last.Token)
	assert.True(t, ok)
	assert.Contains(t, f.audit.Actions(), models.AuditSessionTerminated)
}

func TestAuthService_PasswordResetFlow(t *testing.T) {
	f := newAuthFixture(t, func(c *config.AuthConfig) { c.DemoResetCode = "" })
	ctx := context.Background()
	before := f.login(t, "parent1", "parent-pass")

	f.svc.RequestPasswordReset(ctx, "Parent@Example.com", "10.0.0.1", "test")
	sent := f.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, event.TypePasswordResetCode, sent[0].Type)
	assert.Equal(t, "p-1", sent[0].RecipientID)
	code, _ := sent[0].Payload["code"].(string)
	require.Len(t, code, 6)

	wrong := []byte(code)
	wrong[0] = '0' + (wrong[0]-'0'+1)%10
	_, err := f.svc.VerifyResetCode(ctx, "parent@example.com", string(wrong))
	assert.ErrorIs(t, err, apperror.ErrInvalidResetCode)

	token, err := f.svc.VerifyResetCode(ctx, "parent@example.com", code)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	_, err = f.svc.VerifyResetCode(ctx, "parent@example.com", code)
	assert.ErrorIs(t, err, apperror.ErrInvalidResetCode, "code is single use")

	err = f.svc.ResetPassword(ctx, token, "short", "", "")
	assert.Equal(t, apperror.KindValidation, apperror.As(err).Kind)

	require.NoError(t, f.svc.ResetPassword(ctx, token, "brand-new-pass", "", ""))
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "another-pass", "", ""), apperror.ErrInvalidResetToken)

	exists, err := f.sessions.Exists(ctx, before.Session.ID)
	require.NoError(t, err)
	assert.False(t, exists, "reset ends existing sessions")

	_, err = f.svc.Login(ctx, LoginInput{Username: "parent1", Password: "parent-pass"})
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)
	f.login(t, "parent1", "brand-new-pass")

	assert.Contains(t, f.audit.Actions(), models.AuditPasswordResetRequested)
	assert.Contains(t, f.audit.Actions(), models.AuditPasswordReset)
}

func TestAuthService_DemoResetCodeNeedsPendingReset(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.VerifyResetCode(ctx, "parent@example.com", "123456")
	assert.ErrorIs(t, err, apperror.ErrInvalidResetCode)

	f.svc.RequestPasswordReset(ctx, "parent@example.com", "", "")
	token, err := f.svc.VerifyResetCode(ctx, "parent@example.com", "123456")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestAuthService_ResetCodeGuessesAreLimited(t *testing.T) {
	f := newAuthFixture(t, func(c *config.AuthConfig) { c.DemoResetCode = "" })
	ctx := context.Background()

	f.svc.RequestPasswordReset(ctx, "parent@example.com", "", "")
	sent := f.notifier.Sent()
	require.Len(t, sent, 1)
	code, _ := sent[0].Payload["code"].(string)
	require.Len(t, code, 6)

	wrong := []byte(code)
	wrong[5] = '0' + (wrong[5]-'0'+1)%10
	for i := 0; i < maxResetCodeAttempts; i++ {
		_, err := f.svc.VerifyResetCode(ctx, "parent@example.com", string(wrong))
		assert.ErrorIs(t, err, apperror.ErrInvalidResetCode)
	}

	_, err := f.svc.VerifyResetCode(ctx, "parent@example.com", code)
	assert.ErrorIs(t, err, apperror.ErrInvalidResetCode, "code is discarded after too many misses")
	assert.False(t, f.redis.Exists("password_reset_code:parent@example.com"))

	f.svc.RequestPasswordReset(ctx, "parent@example.com", "", "")
	sent = f.notifier.Sent()
	require.Len(t, sent, 2)
	code, _ = sent[1].Payload["code"].(string)
	token, err := f.svc.VerifyResetCode(ctx, "parent@example.com", code)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestAuthService_ResetCodeMissesBelowLimitKeepCode(t *testing.T) {
	f := newAuthFixture(t, func(c *config.AuthConfig) { c.DemoResetCode = "" })
	ctx := context.Background()

	f.svc.RequestPasswordReset(ctx, "parent@example.com", "", "")
	code, _ := f.notifier.Sent()[0].Payload["code"].(string)
	wrong := []byte(code)
	wrong[5] = '0' + (wrong[5]-'0'+1)%10

	for i := 0; i < maxResetCodeAttempts-1; i++ {
		_, err := f.svc.VerifyResetCode(ctx, "parent@example.com", string(wrong))
		assert.ErrorIs(t, err, apperror.ErrInvalidResetCode)
	}
	_, err := f.svc.VerifyResetCode(ctx, "parent@example.com", code)
	require.NoError(t, err)
	assert.False(t, f.redis.Exists("reset_attempts:parent@example.com"))
}

func TestAuthService_ResetForUnknownEmailIsSilent(t *testing.T) {
	f := newAuthFixture(t)
	f.svc.RequestPasswordReset(context.Background(), "nobody@example.com", "", "")
	assert.Empty(t, f.notifier.Sent())
	assert.Empty(t, f.audit.Entries())
}

func TestAuthService_CreatePrincipal(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	actor := &models.Claims{UserID: "a-1", UserType: models.KindAdmin}

	req := models.CreatePrincipalRequest{
		UserType: "student",
		Username: "student1",
		Password: "student-pass",
		Name:     "Sam",
		Surname:  "Doe",
		ParentID: "p-1",
	}
	p, err := f.svc.CreatePrincipal(ctx, actor, req, "", "")
	require.NoError(t, err)
	assert.Equal(t, models.KindStudent, p.Kind())
	assert.NotEqual(t, "student-pass", p.GetPasswordHash())

	res := f.login(t, "student1", "student-pass")
	assert.Equal(t, p.GetID(), res.Principal.GetID())

	_, err = f.svc.CreatePrincipal(ctx, actor, req, "", "")
	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.As(err).Kind)

	req.Username = "orphan"
	req.ParentID = ""
	_, err = f.svc.CreatePrincipal(ctx, actor, req, "", "")
	assert.Equal(t, apperror.KindValidation, apperror.As(err).Kind)

	entries := f.audit.Entries()
	var created int
	for _, e := range entries {
		if e.Action == models.AuditCreate {
			created++
			assert.Equal(t, "a-1", e.UserID)
			assert.Equal(t, "students", e.Entity)
		}
	}
	assert.Equal(t, 1, created)
}

func TestAuthService_BootstrapAdmin(t *testing.T) {
	ctx := context.Background()

	f := newAuthFixture(t)
	require.NoError(t, f.svc.BootstrapAdmin(ctx, "root", "root-pass-123"))
	count, err := f.principals.Count(ctx, models.KindAdmin)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "existing admin means no bootstrap")

	empty := testutil.NewPrincipalStore()
	f.svc.principals = empty
	require.NoError(t, f.svc.BootstrapAdmin(ctx, "root", "root-pass-123"))
	require.NoError(t, f.svc.BootstrapAdmin(ctx, "root", "root-pass-123"))
	count, err = empty.Count(ctx, models.KindAdmin)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	f.login(t, "root", "root-pass-123")
}
