package handlers

import (
	"net/http"
	"time"

	"school-portal/internal/config"

	"github.com/gin-gonic/gin"
)

type cookieWriter struct {
	sessionName string
	adminName   string
	secure      bool
}

func newCookieWriter(cfg *config.AppConfig) cookieWriter {
	return cookieWriter{
		sessionName: cfg.AuthCfg.SessionCookie,
		adminName:   cfg.AuthCfg.AdminCookie,
		secure:      cfg.IsProduction(),
	}
}

// sessionTokens lists the non-empty session cookies, regular before admin.
func (w cookieWriter) sessionTokens(c *gin.Context) []string {
	var tokens []string
	for _, name := range []string{w.sessionName, w.adminName} {
		if token, err := c.Cookie(name); err == nil && token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

func (w cookieWriter) set(c *gin.Context, admin bool, token string, ttl time.Duration) {
	name := w.sessionName
	if admin {
		name = w.adminName
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, token, int(ttl.Seconds()), "/", "", w.secure, true)
}

func (w cookieWriter) clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(w.sessionName, "", -1, "/", "", w.secure, true)
	c.SetCookie(w.adminName, "", -1, "/", "", w.secure, true)
}
