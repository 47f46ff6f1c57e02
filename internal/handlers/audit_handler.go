package handlers

import (
	"net/http"
	"strconv"
	"time"

	"school-portal/internal/apperror"
	"school-portal/internal/config"
	"school-portal/internal/models"
	"school-portal/internal/policy"
	"school-portal/internal/services"
	"school-portal/utils"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService *services.AuditService
	enforcer     *policy.Enforcer
	production   bool
}

type archiveRequest struct {
	From time.Time `json:"from" binding:"required"`
	To   time.Time `json:"to" binding:"required"`
}

func NewAuditHandler(auditService *services.AuditService, enforcer *policy.Enforcer, cfg *config.AppConfig) *AuditHandler {
	return &AuditHandler{
		auditService: auditService,
		enforcer:     enforcer,
		production:   cfg.IsProduction(),
	}
}

func (h *AuditHandler) RegisterRoutes(protected *gin.RouterGroup) {
	auditGr := protected.Group("/audit")
	auditGr.GET("", h.ListAuditLogs)
	auditGr.POST("/archive", h.ArchiveAuditLogs)
}

func (h *AuditHandler) ListAuditLogs(c *gin.Context) {
	if _, ok := h.authorize(c, models.ActionRead); !ok {
		return
	}

	filter, err := parseAuditFilter(c)
	if err != nil {
		utils.SendAppError(c, err, h.production)
		return
	}

	entries, err := h.auditService.List(c.Request.Context(), filter)
	if err != nil {
		utils.SendAppError(c, err, h.production)
		return
	}
	utils.SendSuccess(c, http.StatusOK, entries)
}

func (h *AuditHandler) ArchiveAuditLogs(c *gin.Context) {
	claims, ok := h.authorize(c, models.ActionCreate)
	if !ok {
		return
	}

	var req archiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "INVALID_REQUEST_FORMAT", "from and to must be RFC 3339 timestamps")
		return
	}

	ctx := c.Request.Context()
	res, err := h.auditService.Archive(ctx, req.From, req.To)
	if err != nil {
		utils.SendAppError(c, err, h.production)
		return
	}

	h.auditService.Record(ctx, services.AuditEvent{
		UserID:    claims.UserID,
		UserType:  claims.UserType,
		Action:    models.AuditArchived,
		Entity:    string(models.ResourceAuditLogs),
		EntityID:  res.ObjectKey,
		Changes:   map[string]any{"entries": res.Entries},
		IPAddress: utils.GetClientIP(c),
		UserAgent: utils.GetDeviceInfo(c),
	})
	utils.SendSuccess(c, http.StatusCreated, res)
}

func (h *AuditHandler) authorize(c *gin.Context, action models.Action) (*models.Claims, bool) {
	claims, ok := claimsFrom(c)
	if !ok {
		utils.SendError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return nil, false
	}
	if !h.enforcer.HasPermission(claims.UserType, models.ResourceAuditLogs, action) {
		utils.SendAppError(c, apperror.ErrForbidden, h.production)
		return nil, false
	}
	return claims, true
}

func parseAuditFilter(c *gin.Context) (models.AuditFilter, error) {
	filter := models.AuditFilter{
		UserID: c.Query("userId"),
		Action: models.AuditAction(c.Query("action")),
	}

	for _, p := range []struct {
		key string
		dst **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		raw := c.Query(p.key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, apperror.Validation("INVALID_QUERY", p.key+" must be an RFC 3339 timestamp")
		}
		*p.dst = &t
	}

	var err error
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = queryInt(c, "offset"); err != nil {
		return filter, err
	}
	return filter, nil
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.Validation("INVALID_QUERY", key+" must be a non-negative integer")
	}
	return n, nil
}
