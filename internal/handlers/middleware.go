package handlers

import (
	"net/http"
	"time"

	"school-portal/internal/config"
	"school-portal/internal/logging"
	"school-portal/internal/models"
	"school-portal/internal/policy"
	"school-portal/internal/services"
	"school-portal/utils"

	"github.com/gin-gonic/gin"
)

const (
	signInPath = "/sign-in"

	ctxUserID   = "userId"
	ctxUserType = "userType"
	ctxClaims   = "claims"

	headerUserID   = "X-User-ID"
	headerUserType = "X-User-Type"
)

type Middleware struct {
	authService *services.AuthService
	routes      *policy.RouteTable
	cookies     cookieWriter
}

func NewMiddleware(authService *services.AuthService, routes *policy.RouteTable, cfg *config.AppConfig) *Middleware {
	return &Middleware{
		authService: authService,
		routes:      routes,
		cookies:     newCookieWriter(cfg),
	}
}

// RequestGate guards page navigation. Unauthenticated visitors are sent to
// the sign-in page and principals outside a route's roles to their own
// dashboard.
func (m *Middleware) RequestGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		// identity headers are only ever set by the gate
		c.Request.Header.Del(headerUserID)
		c.Request.Header.Del(headerUserType)

		path := c.Request.URL.Path
		if policy.IsPublicPath(path) || policy.IsPassThroughPath(path) {
			c.Next()
			return
		}

		tokens := m.cookies.sessionTokens(c)
		if len(tokens) == 0 {
			redirect(c, signInPath)
			return
		}

		claims, ok := m.authenticateAny(c, tokens)
		if !ok {
			m.cookies.clear(c)
			redirect(c, signInPath)
			return
		}

		if !m.routes.CanEnterRoute(claims.UserType, path) {
			logging.Debug().
				Str("user_id", claims.UserID).
				Str("user_type", string(claims.UserType)).
				Str("path", path).
				Msg("route denied for role")
			redirect(c, claims.UserType.LandingPath())
			return
		}

		setIdentity(c, claims)
		c.Next()
	}
}

// RequireAPIAuth authenticates API calls from a bearer token or the session
// cookies and answers 401 JSON instead of redirecting.
func (m *Middleware) RequireAPIAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokens := m.cookies.sessionTokens(c)
		if token := utils.BearerToken(c.Request); token != "" {
			tokens = []string{token}
		}
		if len(tokens) == 0 {
			utils.SendError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
			return
		}

		claims, ok := m.authenticateAny(c, tokens)
		if !ok {
			utils.SendError(c, http.StatusUnauthorized, "INVALID_TOKEN", "token validation failed")
			return
		}

		setIdentity(c, claims)
		c.Next()
	}
}

// authenticateAny returns the claims of the first token that verifies, so a
// stale regular cookie does not hide a valid admin one.
func (m *Middleware) authenticateAny(c *gin.Context, tokens []string) (*models.Claims, bool) {
	for _, token := range tokens {
		if claims, ok := m.authService.Authenticate(c.Request.Context(), token); ok {
			return claims, true
		}
	}
	return nil, false
}

func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := logging.Info()
		if status >= http.StatusInternalServerError {
			ev = logging.Error()
		} else if status >= http.StatusBadRequest {
			ev = logging.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("ip", utils.GetClientIP(c)).
			Str("user_id", c.GetString(ctxUserID)).
			Msg("request")
	}
}

func setIdentity(c *gin.Context, claims *models.Claims) {
	c.Set(ctxUserID, claims.UserID)
	c.Set(ctxUserType, string(claims.UserType))
	c.Set(ctxClaims, claims)
	c.Request.Header.Set(headerUserID, claims.UserID)
	c.Request.Header.Set(headerUserType, string(claims.UserType))
}

// claimsFrom returns the claims placed by the auth middleware, if any.
func claimsFrom(c *gin.Context) (*models.Claims, bool) {
	v, ok := c.Get(ctxClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*models.Claims)
	return claims, ok
}

func redirect(c *gin.Context, location string) {
	c.Redirect(http.StatusTemporaryRedirect, location)
	c.Abort()
}
