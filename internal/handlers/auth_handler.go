package handlers

import (
	"errors"
	"net/http"

	"school-portal/internal/config"
	"school-portal/internal/logging"
	"school-portal/internal/models"
	"school-portal/internal/repository"
	"school-portal/internal/services"
	"school-portal/utils"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService    *services.AuthService
	sessionService *services.SessionService
	cookies        cookieWriter
	production     bool
}

func NewAuthHandler(authService *services.AuthService, sessionService *services.SessionService, cfg *config.AppConfig) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		sessionService: sessionService,
		cookies:        newCookieWriter(cfg),
		production:     cfg.IsProduction(),
	}
}

func (a *AuthHandler) RegisterRoutes(public, protected *gin.RouterGroup) {
	authPub := public.Group("/auth")
	authPub.POST("/login", a.Login)
	authPub.POST("/admin-login", a.AdminLogin)
	authPub.POST("/logout", a.Logout)
	authPub.POST("/forgot-password", a.ForgotPassword)
	authPub.POST("/verify-code", a.VerifyCode)
	authPub.POST("/reset-password", a.ResetPassword)

	authPro := protected.Group("/auth")
	authPro.GET("/session", a.GetSession)
	authPro.POST("/sessions/terminate", a.TerminateSessions)
}

// Login handles principal authentication
func (a *AuthHandler) Login(c *gin.Context) {
	a.login(c, false)
}

// AdminLogin is the legacy administrator entry point with a longer session.
func (a *AuthHandler) AdminLogin(c *gin.Context) {
	a.login(c, true)
}

func (a *AuthHandler) login(c *gin.Context, adminOnly bool) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "INVALID_REQUEST_FORMAT", "username and password are required")
		return
	}

	deviceInfo := utils.GetDeviceInfo(c)
	res, err := a.authService.Login(c.Request.Context(), services.LoginInput{
		Username:  req.Username,
		Password:  req.Password,
		UserType:  req.UserType,
		IPAddress: utils.GetClientIP(c),
		UserAgent: deviceInfo,
		AdminOnly: adminOnly,
	})
	if err != nil {
		utils.SendAppError(c, err, a.production)
		return
	}

	a.cookies.set(c, adminOnly, res.Token, res.TTL)
	utils.SendSuccess(c, http.StatusOK, models.LoginResponse{
		User:  models.ToPublicUser(res.Principal),
		Token: res.Token,
		Security: models.LoginSecurity{
			SessionID:  res.Session.ID,
			ExpiresAt:  res.Session.ExpiresAt,
			DeviceInfo: deviceInfo,
		},
	})
}

// Logout ends the session of the first token that still verifies and always
// clears the cookies.
func (a *AuthHandler) Logout(c *gin.Context) {
	tokens := a.cookies.sessionTokens(c)
	if token := utils.BearerToken(c.Request); token != "" {
		tokens = append([]string{token}, tokens...)
	}

	for _, token := range tokens {
		claims, ok := a.authService.Authenticate(c.Request.Context(), token)
		if !ok {
			continue
		}
		if err := a.authService.Logout(c.Request.Context(), claims, utils.GetClientIP(c), utils.GetDeviceInfo(c)); err != nil {
			logging.Error().Err(err).Str("user_id", claims.UserID).Msg("logout failed")
		}
		break
	}

	a.cookies.clear(c)
	utils.SendSuccess(c, http.StatusOK, gin.H{"message": "logged out"})
}

func (a *AuthHandler) GetSession(c *gin.Context) {
	claims, ok := claimsFrom(c)
	if !ok {
		utils.SendError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}
	ctx := c.Request.Context()

	principal, err := a.authService.CurrentUser(ctx, claims)
	if err != nil {
		utils.SendAppError(c, err, a.production)
		return
	}

	current, err := a.sessionService.Touch(ctx, claims.ID)
	if err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		utils.SendAppError(c, err, a.production)
		return
	}

	sessions, err := a.sessionService.ListActive(ctx, claims.UserID)
	if err != nil {
		utils.SendAppError(c, err, a.production)
		return
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}

	utils.SendSuccess(c, http.StatusOK, models.SessionInfoResponse{
		User:           models.ToPublicUser(principal),
		CurrentSession: current,
		Sessions:       sessions,
	})
}

func (a *AuthHandler) TerminateSessions(c *gin.Context) {
	claims, ok := claimsFrom(c)
	if !ok {
		utils.SendError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}

	var req models.TerminateSessionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "INVALID_REQUEST_FORMAT", "invalid request format")
		return
	}
	if !req.TerminateAll && len(req.SessionIDs) == 0 {
		utils.SendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "sessionIds or terminateAll is required")
		return
	}

	count, err := a.authService.TerminateSessions(c.Request.Context(), claims, req.SessionIDs, req.TerminateAll,
		utils.GetClientIP(c), utils.GetDeviceInfo(c))
	if err != nil {
		utils.SendAppError(c, err, a.production)
		return
	}
	utils.SendSuccess(c, http.StatusOK, models.TerminateSessionsResponse{TerminatedCount: count})
}

// ForgotPassword answers the same way whether or not the email is known.
func (a *AuthHandler) ForgotPassword(c *gin.Context) {
	var req models.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "INVALID_REQUEST_FORMAT", "a valid email is required")
		return
	}

	a.authService.RequestPasswordReset(c.Request.Context(), req.Email, utils.GetClientIP(c), utils.GetDeviceInfo(c))
	utils.SendSuccess(c, http.StatusOK, gin.H{"message": "if the account exists, a verification code has been sent"})
}

func (a *AuthHandler) VerifyCode(c *gin.Context) {
	var req models.VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "INVALID_REQUEST_FORMAT", "email and a 6 digit code are required")
		return
	}

	token, err := a.authService.VerifyResetCode(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		utils.SendAppError(c, err, a.production)
		return
	}
	utils.SendSuccess(c, http.StatusOK, models.VerifyCodeResponse{ResetToken: token})
}

func (a *AuthHandler) ResetPassword(c *gin.Context) {
	var req models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "INVALID_REQUEST_FORMAT", "reset token and a password of at least 8 characters are required")
		return
	}

	err := a.authService.ResetPassword(c.Request.Context(), req.ResetToken, req.NewPassword, utils.GetClientIP(c), utils.GetDeviceInfo(c))
	if err != nil {
		utils.SendAppError(c, err, a.production)
		return
	}

	a.cookies.clear(c)
	utils.SendSuccess(c, http.StatusOK, gin.H{"message": "password updated"})
}
