package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"school-portal/internal/apperror"
	"school-portal/internal/config"
	"school-portal/internal/event"
	"school-portal/internal/logging"
	"school-portal/internal/models"
	"school-portal/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	// a pending code is discarded after this many wrong guesses
	maxResetCodeAttempts = 5
)

// Notifier delivers out-of-band messages such as reset codes.
type Notifier interface {
	Publish(ctx context.Context, msgType event.NotificationType, recipientID string, payload map[string]any) error
}

type LoginInput struct {
	Username  string
	Password  string
	UserType  string
	IPAddress string
	UserAgent string
	// AdminOnly restricts the lookup to administrators and grants the longer admin TTL.
	AdminOnly bool
}

type LoginResult struct {
	Principal models.Principal
	Token     string
	Session   *models.Session
	TTL       time.Duration
}

type AuthService struct {
	principals repository.PrincipalRepository
	sessions   *SessionService
	tokens     *JWTService
	audit      *AuditService
	cache      repository.AuthCacheRepository
	notifier   Notifier
	cfg        config.AuthConfig

	bcryptCost int
	// compared against when no principal matches so both failure paths cost one bcrypt run
	dummyHash []byte
}

// NewAuthService wires the authenticator; notifier may be nil.
func NewAuthService(
	principals repository.PrincipalRepository,
	sessions *SessionService,
	tokens *JWTService,
	audit *AuditService,
	cache repository.AuthCacheRepository,
	notifier Notifier,
	cfg config.AuthConfig,
) (*AuthService, error) {
	return newAuthService(principals, sessions, tokens, audit, cache, notifier, cfg, bcrypt.DefaultCost)
}

func newAuthService(
	principals repository.PrincipalRepository,
	sessions *SessionService,
	tokens *JWTService,
	audit *AuditService,
	cache repository.AuthCacheRepository,
	notifier Notifier,
	cfg config.AuthConfig,
	cost int,
) (*AuthService, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare password hasher: %w", err)
	}
	return &AuthService{
		principals: principals,
		sessions:   sessions,
		tokens:     tokens,
		audit:      audit,
		cache:      cache,
		notifier:   notifier,
		cfg:        cfg,
		bcryptCost: cost,
		dummyHash:  dummy,
	}, nil
}

// Login verifies credentials, opens a session and issues its token. Every
// credential failure returns apperror.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	kinds, err := s.loginKinds(in)
	if err != nil {
		return nil, err
	}

	var principal models.Principal
	for _, kind := range kinds {
		p, err := s.principals.GetByUsername(ctx, kind, in.Username)
		if errors.Is(err, repository.ErrPrincipalNotFound) {
			continue
		}
		if err != nil {
			return nil, apperror.Internal("failed to look up user", err)
		}
		principal = p
		break
	}

	if principal == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(in.Password))
		s.loginFailed(ctx, in, nil)
		return nil, apperror.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(principal.GetPasswordHash()), []byte(in.Password)); err != nil {
		s.loginFailed(ctx, in, principal)
		return nil, apperror.ErrInvalidCredentials
	}

	ttl := s.cfg.SessionTTL
	if in.AdminOnly {
		ttl = s.cfg.AdminSessionTTL
	}

	session, err := s.sessions.Create(ctx, principal, in.IPAddress, in.UserAgent, ttl)
	if err != nil {
		return nil, apperror.Internal("failed to create session", err)
	}
	token, _, err := s.tokens.Issue(principal, session.ID, ttl)
	if err != nil {
		if _, delErr := s.sessions.Terminate(ctx, principal.GetID(), []string{session.ID}); delErr != nil {
			logging.Warn().Err(delErr).Str("session_id", session.ID).Msg("failed to remove orphaned session")
		}
		return nil, apperror.Internal("failed to issue token", err)
	}

	if err := s.cache.ResetLoginAttempts(ctx, in.Username); err != nil {
		logging.Warn().Err(err).Str("username", in.Username).Msg("failed to reset login attempts")
	}

	s.audit.Record(ctx, AuditEvent{
		UserID:    principal.GetID(),
		UserType:  principal.Kind(),
		Action:    models.AuditLogin,
		Entity:    "session",
		EntityID:  session.ID,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
	})
	logging.Info().Str("user_id", principal.GetID()).Str("user_type", string(principal.Kind())).Str("session_id", session.ID).Msg("login succeeded")

	return &LoginResult{Principal: principal, Token: token, Session: session, TTL: ttl}, nil
}

// loginKinds applies the user-type constraint before any password work.
func (s *AuthService) loginKinds(in LoginInput) ([]models.PrincipalKind, error) {
	if in.AdminOnly {
		return []models.PrincipalKind{models.KindAdmin}, nil
	}
	if in.UserType == "" {
		return models.LoginProbeOrder, nil
	}
	kind, err := models.ParsePrincipalKind(in.UserType)
	if err != nil {
		return nil, apperror.Validation("INVALID_USER_TYPE", "unknown user type")
	}
	return []models.PrincipalKind{kind}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, in LoginInput, principal models.Principal) {
	s.audit.Record(ctx, AuditEvent{
		Action:    models.AuditLoginFailed,
		Entity:    "auth",
		Changes:   map[string]any{"username": in.Username, "userType": in.UserType},
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
	})

	attempts, err := s.cache.IncrementLoginAttempts(ctx, in.Username)
	if err != nil {
		logging.Warn().Err(err).Str("username", in.Username).Msg("failed to count login attempt")
		return
	}

	every := int64(s.cfg.FailedLoginAlertEvery)
	if principal == nil || every <= 0 || attempts%every != 0 {
		return
	}

	logging.Warn().Str("user_id", principal.GetID()).Int64("attempts", attempts).Msg("suspicious login activity")
	s.notify(ctx, event.TypeSuspiciousLogin, principal.GetID(), map[string]any{
		"username":   principal.GetUsername(),
		"attempts":   attempts,
		"ip_address": in.IPAddress,
	})
}

// Authenticate resolves a token to its claims. With session revocation
// enforced the token's session must still exist.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.Claims, bool) {
	claims, ok := s.tokens.Verify(token)
	if !ok {
		return nil, false
	}
	if !s.cfg.EnforceSessionRevocation {
		return claims, true
	}

	exists, err := s.sessions.Exists(ctx, claims.ID)
	if err != nil {
		logging.Error().Err(err).Str("session_id", claims.ID).Msg("session lookup failed")
		return nil, false
	}
	if !exists {
		return nil, false
	}
	return claims, true
}

// Logout ends the caller's current session.
func (s *AuthService) Logout(ctx context.Context, claims *models.Claims, ipAddress, userAgent string) error {
	if _, err := s.sessions.Terminate(ctx, claims.UserID, []string{claims.ID}); err != nil {
		return apperror.Internal("failed to end session", err)
	}

	s.audit.Record(ctx, AuditEvent{
		UserID:    claims.UserID,
		UserType:  claims.UserType,
		Action:    models.AuditLogout,
		Entity:    "session",
		EntityID:  claims.ID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
	return nil
}

// TerminateSessions ends the listed sessions of the caller, or with all set
// every session except the current one.
func (s *AuthService) TerminateSessions(ctx context.Context, claims *models.Claims, sessionIDs []string, all bool, ipAddress, userAgent string) (int, error) {
	var (
		count int
		err   error
	)
	if all {
		count, err = s.sessions.TerminateAllExcept(ctx, claims.UserID, claims.ID)
	} else {
		count, err = s.sessions.Terminate(ctx, claims.UserID, sessionIDs)
	}
	if err != nil {
		return count, apperror.Internal("failed to terminate sessions", err)
	}

	if count > 0 {
		s.audit.Record(ctx, AuditEvent{
			UserID:    claims.UserID,
			UserType:  claims.UserType,
			Action:    models.AuditSessionTerminated,
			Entity:    "session",
			Changes:   map[string]any{"terminatedCount": count, "terminateAll": all},
			IPAddress: ipAddress,
			UserAgent: userAgent,
		})
	}
	return count, nil
}

// CurrentUser loads the principal a token belongs to.
func (s *AuthService) CurrentUser(ctx context.Context, claims *models.Claims) (models.Principal, error) {
	p, err := s.principals.GetByID(ctx, claims.UserType, claims.UserID)
	if errors.Is(err, repository.ErrPrincipalNotFound) {
		return nil, apperror.ErrUnauthenticated
	}
	if err != nil {
		return nil, apperror.Internal("failed to load user", err)
	}
	return p, nil
}

var resetKinds = []models.PrincipalKind{models.KindTeacher, models.KindStudent, models.KindParent}

// RequestPasswordReset never reports whether the email exists. Failures past
// the lookup are logged rather than returned for the same reason.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email, ipAddress, userAgent string) {
	var principal models.Principal
	for _, kind := range resetKinds {
		p, err := s.principals.GetByEmail(ctx, kind, email)
		if errors.Is(err, repository.ErrPrincipalNotFound) {
			continue
		}
		if err != nil {
			logging.Error().Err(err).Msg("password reset lookup failed")
			return
		}
		principal = p
		break
	}
	if principal == nil {
		logging.Debug().Msg("password reset requested for unknown email")
		return
	}

	code, err := generateResetCode()
	if err != nil {
		logging.Error().Err(err).Msg("failed to generate reset code")
		return
	}

	reset := repository.PendingReset{PrincipalID: principal.GetID(), Kind: principal.Kind(), Email: email, Code: code}
	if err := s.cache.SaveResetCode(ctx, reset, s.cfg.ResetCodeTTL); err != nil {
		logging.Error().Err(err).Str("user_id", principal.GetID()).Msg("failed to store reset code")
		return
	}

	s.notify(ctx, event.TypePasswordResetCode, principal.GetID(), map[string]any{
		"email":      email,
		"code":       code,
		"expires_in": s.cfg.ResetCodeTTL.String(),
	})
	s.audit.Record(ctx, AuditEvent{
		UserID:    principal.GetID(),
		UserType:  principal.Kind(),
		Action:    models.AuditPasswordResetRequested,
		Entity:    string(models.PrincipalResource(principal.Kind())),
		EntityID:  principal.GetID(),
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
}

// VerifyResetCode exchanges a valid code for a single-use reset token.
func (s *AuthService) VerifyResetCode(ctx context.Context, email, code string) (string, error) {
	pending, err := s.cache.GetResetCode(ctx, email)
	if errors.Is(err, repository.ErrResetNotFound) {
		return "", apperror.ErrInvalidResetCode
	}
	if err != nil {
		return "", apperror.Internal("failed to verify code", err)
	}

	matches := subtle.ConstantTimeCompare([]byte(code), []byte(pending.Code)) == 1
	if !matches && s.cfg.DemoResetCode != "" {
		matches = subtle.ConstantTimeCompare([]byte(code), []byte(s.cfg.DemoResetCode)) == 1
	}
	if !matches {
		s.resetCodeMissed(ctx, email)
		return "", apperror.ErrInvalidResetCode
	}

	token := uuid.NewString()
	if err := s.cache.SaveResetToken(ctx, token, *pending, s.cfg.ResetCodeTTL); err != nil {
		return "", apperror.Internal("failed to issue reset token", err)
	}
	if err := s.cache.DeleteResetCode(ctx, email); err != nil {
		logging.Warn().Err(err).Msg("failed to delete used reset code")
	}
	return token, nil
}

func (s *AuthService) resetCodeMissed(ctx context.Context, email string) {
	attempts, err := s.cache.IncrementResetAttempts(ctx, email, s.cfg.ResetCodeTTL)
	if err != nil {
		// without a count the code cannot be guessed safely
		logging.Error().Err(err).Msg("failed to count reset attempt")
		attempts = maxResetCodeAttempts
	}
	if attempts < maxResetCodeAttempts {
		return
	}

	logging.Warn().Int64("attempts", attempts).Msg("too many wrong reset codes, discarding pending reset")
	if err := s.cache.DeleteResetCode(ctx, email); err != nil {
		logging.Error().Err(err).Msg("failed to discard reset code")
	}
}

// ResetPassword stores the new password and ends every session of the principal.
func (s *AuthService) ResetPassword(ctx context.Context, resetToken, newPassword, ipAddress, userAgent string) error {
	if len(newPassword) < minPasswordLength {
		return apperror.Validation("WEAK_PASSWORD", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	pending, err := s.cache.ConsumeResetToken(ctx, resetToken)
	if errors.Is(err, repository.ErrResetNotFound) {
		return apperror.ErrInvalidResetToken
	}
	if err != nil {
		return apperror.Internal("failed to read reset token", err)
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.principals.UpdatePasswordHash(ctx, pending.Kind, pending.PrincipalID, hash); err != nil {
		if errors.Is(err, repository.ErrPrincipalNotFound) {
			return apperror.ErrInvalidResetToken
		}
		return apperror.Internal("failed to update password", err)
	}

	terminated, err := s.sessions.TerminateAll(ctx, pending.PrincipalID)
	if err != nil {
		return apperror.Internal("failed to end sessions", err)
	}

	s.audit.Record(ctx, AuditEvent{
		UserID:    pending.PrincipalID,
		UserType:  pending.Kind,
		Action:    models.AuditPasswordReset,
		Entity:    string(models.PrincipalResource(pending.Kind)),
		EntityID:  pending.PrincipalID,
		Changes:   map[string]any{"sessionsTerminated": terminated},
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
	return nil
}

// CreatePrincipal provisions an account. Callers check authorization first.
func (s *AuthService) CreatePrincipal(ctx context.Context, actor *models.Claims, req models.CreatePrincipalRequest, ipAddress, userAgent string) (models.Principal, error) {
	kind, err := models.ParsePrincipalKind(req.UserType)
	if err != nil {
		return nil, apperror.Validation("INVALID_USER_TYPE", "unknown user type")
	}
	if kind == models.KindStudent && req.ParentID == "" {
		return nil, apperror.Validation("PARENT_REQUIRED", "students need a parent")
	}

	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	identity := repository.NewIdentity(uuid.NewString(), req.Username, hash)
	profile := models.Profile{Name: req.Name, Surname: req.Surname, Email: req.Email, Phone: req.Phone}

	var principal models.Principal
	switch kind {
	case models.KindAdmin:
		principal = &models.Admin{Identity: identity}
	case models.KindTeacher:
		principal = &models.Teacher{Identity: identity, Profile: profile}
	case models.KindStudent:
		principal = &models.Student{Identity: identity, Profile: profile, ParentID: req.ParentID, ClassID: req.ClassID}
	case models.KindParent:
		principal = &models.Parent{Identity: identity, Profile: profile}
	}

	if err := s.principals.Create(ctx, principal); err != nil {
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperror.Internal("failed to create user", err)
	}

	s.audit.Record(ctx, AuditEvent{
		UserID:    actor.UserID,
		UserType:  actor.UserType,
		Action:    models.AuditCreate,
		Entity:    string(models.PrincipalResource(kind)),
		EntityID:  principal.GetID(),
		Changes:   map[string]any{"username": req.Username, "userType": kind},
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
	return principal, nil
}

// BootstrapAdmin creates the first administrator when none exists.
func (s *AuthService) BootstrapAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	count, err := s.principals.Count(ctx, models.KindAdmin)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		return err
	}
	admin := &models.Admin{Identity: repository.NewIdentity(uuid.NewString(), username, hash)}
	if err := s.principals.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}
	logging.Info().Str("username", username).Msg("bootstrap administrator created")
	return nil
}

func (s *AuthService) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", apperror.Validation("PASSWORD_TOO_LONG", "password is too long")
		}
		return "", apperror.Internal("failed to hash password", err)
	}
	return string(hash), nil
}

func (s *AuthService) notify(ctx context.Context, msgType event.NotificationType, recipientID string, payload map[string]any) {
	if s.notifier == nil {
		logging.Warn().Str("type", string(msgType)).Msg("notification dropped, no publisher configured")
		return
	}
	if err := s.notifier.Publish(ctx, msgType, recipientID, payload); err != nil {
		logging.Error().Err(err).Str("type", string(msgType)).Msg("failed to publish notification")
	}
}

func generateResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
