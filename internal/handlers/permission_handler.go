package handlers

import (
	"net/http"

	"school-portal/internal/apperror"
	"school-portal/internal/config"
	"school-portal/internal/models"
	"school-portal/internal/policy"
	"school-portal/utils"

	"github.com/gin-gonic/gin"
)

type PermissionHandler struct {
	enforcer   *policy.Enforcer
	production bool
}

type permissionsResponse struct {
	UserType models.PrincipalKind `json:"userType"`
	Rules    []policy.Rule        `json:"rules"`
}

func NewPermissionHandler(enforcer *policy.Enforcer, cfg *config.AppConfig) *PermissionHandler {
	return &PermissionHandler{
		enforcer:   enforcer,
		production: cfg.IsProduction(),
	}
}

func (p *PermissionHandler) RegisterRoutes(protected *gin.RouterGroup) {
	protected.GET("/permissions/me", p.GetMyPermissions)
	protected.GET("/permissions/check", p.CheckPermission)
}

// GetMyPermissions lists the matrix rows for the caller's kind so clients can
// hide actions they would be refused.
func (p *PermissionHandler) GetMyPermissions(c *gin.Context) {
	claims, ok := claimsFrom(c)
	if !ok {
		utils.SendError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}

	rules, err := p.enforcer.RulesFor(claims.UserType)
	if err != nil {
		utils.SendAppError(c, apperror.Internal("failed to read permissions", err), p.production)
		return
	}
	utils.SendSuccess(c, http.StatusOK, permissionsResponse{UserType: claims.UserType, Rules: rules})
}

// CheckPermission answers the coarse matrix question for ?resource=&action=.
func (p *PermissionHandler) CheckPermission(c *gin.Context) {
	claims, ok := claimsFrom(c)
	if !ok {
		utils.SendError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}

	resource := models.Resource(c.Query("resource"))
	action := models.Action(c.Query("action"))
	if resource == "" || action == "" {
		utils.SendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "resource and action are required")
		return
	}

	utils.SendSuccess(c, http.StatusOK, gin.H{
		"resource": resource,
		"action":   action,
		"allowed":  p.enforcer.HasPermission(claims.UserType, resource, action),
	})
}
