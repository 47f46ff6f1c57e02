package handlers

import (
	"net/http"
	"strings"

	"school-portal/internal/policy"
	"school-portal/utils"

	"github.com/gin-gonic/gin"
)

var dashboardPrefixes = []string{"/admin", "/teacher", "/student", "/parent", "/list"}

// PageHandler answers placeholders for the portal pages the gate protects.
type PageHandler struct{}

func NewPageHandler() *PageHandler {
	return &PageHandler{}
}

func (h *PageHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.Health)
	router.NoRoute(h.Page)
}

func (h *PageHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Page serves any known page path; everything else is a 404.
func (h *PageHandler) Page(c *gin.Context) {
	path := c.Request.URL.Path
	if c.Request.Method != http.MethodGet || !isPagePath(path) {
		utils.SendError(c, http.StatusNotFound, "NOT_FOUND", "resource not found")
		return
	}

	utils.SendSuccess(c, http.StatusOK, gin.H{
		"page":     path,
		"userType": c.GetString(ctxUserType),
	})
}

func isPagePath(p string) bool {
	if strings.HasPrefix(p, "/api/") || policy.IsPassThroughPath(p) {
		return false
	}
	if policy.IsPublicPath(p) {
		return true
	}
	for _, prefix := range dashboardPrefixes {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}
