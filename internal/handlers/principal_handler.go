package handlers

import (
	"net/http"

	"school-portal/internal/config"
	"school-portal/internal/models"
	"school-portal/internal/policy"
	"school-portal/internal/services"
	"school-portal/utils"

	"github.com/gin-gonic/gin"
)

// PrincipalHandler provisions accounts.
type PrincipalHandler struct {
	authService *services.AuthService
	enforcer    *policy.Enforcer
	production  bool
}

func NewPrincipalHandler(authService *services.AuthService, enforcer *policy.Enforcer, cfg *config.AppConfig) *PrincipalHandler {
	return &PrincipalHandler{
		authService: authService,
		enforcer:    enforcer,
		production:  cfg.IsProduction(),
	}
}

func (h *PrincipalHandler) RegisterRoutes(protected *gin.RouterGroup) {
	protected.POST("/principals", h.CreatePrincipal)
}

func (h *PrincipalHandler) CreatePrincipal(c *gin.Context) {
	claims, ok := claimsFrom(c)
	if !ok {
		utils.SendError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}

	var req models.CreatePrincipalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	kind, err := models.ParsePrincipalKind(req.UserType)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "INVALID_USER_TYPE", "unknown user type")
		return
	}
	if !h.enforcer.HasPermission(claims.UserType, models.PrincipalResource(kind), models.ActionCreate) {
		utils.SendError(c, http.StatusForbidden, "FORBIDDEN", "you are not allowed to create this account type")
		return
	}

	principal, err := h.authService.CreatePrincipal(c.Request.Context(), claims, req, utils.GetClientIP(c), utils.GetDeviceInfo(c))
	if err != nil {
		utils.SendAppError(c, err, h.production)
		return
	}
	utils.SendSuccess(c, http.StatusCreated, models.ToPublicUser(principal))
}
