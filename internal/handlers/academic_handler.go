package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"school-portal/internal/apperror"
	"school-portal/internal/config"
	"school-portal/internal/models"
	"school-portal/internal/policy"
	"school-portal/internal/repository"
	"school-portal/internal/services"
	"school-portal/utils"

	"github.com/gin-gonic/gin"
)

// AcademicHandler serves role-narrowed academic records. Every mutation
// checks the permission matrix with row ownership.
type AcademicHandler struct {
	repo         repository.AcademicRepository
	enforcer     *policy.Enforcer
	auditService *services.AuditService
	production   bool
}

func NewAcademicHandler(repo repository.AcademicRepository, enforcer *policy.Enforcer, auditService *services.AuditService, cfg *config.AppConfig) *AcademicHandler {
	return &AcademicHandler{
		repo:         repo,
		enforcer:     enforcer,
		auditService: auditService,
		production:   cfg.IsProduction(),
	}
}

func (h *AcademicHandler) RegisterRoutes(protected *gin.RouterGroup) {
	protected.GET("/assignments", h.ListAssignments)
	protected.GET("/results", h.ListResults)
	protected.PUT("/results/:id", h.UpdateResult)
	protected.DELETE("/results/:id", h.DeleteResult)
	protected.GET("/students/:id", h.GetStudent)
}

func (h *AcademicHandler) ListAssignments(c *gin.Context) {
	claims, ok := h.authorize(c, models.ResourceAssignments, models.ActionRead)
	if !ok {
		return
	}

	assignments, err := h.repo.ListAssignments(c.Request.Context(), scopeOf(claims))
	if err != nil {
		utils.SendAppError(c, apperror.Internal("failed to list assignments", err), h.production)
		return
	}
	if assignments == nil {
		assignments = []*models.Assignment{}
	}
	utils.SendSuccess(c, http.StatusOK, assignments)
}

func (h *AcademicHandler) ListResults(c *gin.Context) {
	claims, ok := h.authorize(c, models.ResourceResults, models.ActionRead)
	if !ok {
		return
	}

	results, err := h.repo.ListResults(c.Request.Context(), scopeOf(claims))
	if err != nil {
		utils.SendAppError(c, apperror.Internal("failed to list results", err), h.production)
		return
	}
	if results == nil {
		results = []*models.Result{}
	}
	utils.SendSuccess(c, http.StatusOK, results)
}

func (h *AcademicHandler) UpdateResult(c *gin.Context) {
	claims, ok := h.authorize(c, models.ResourceResults, models.ActionUpdate)
	if !ok {
		return
	}
	id, ok := resultID(c)
	if !ok {
		return
	}

	var req models.UpdateResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "score must be between 0 and 100")
		return
	}

	ctx := c.Request.Context()
	result, ok := h.ownedResult(c, claims, id, models.ActionUpdate)
	if !ok {
		return
	}

	previous := result.Score
	if err := h.repo.UpdateResultScore(ctx, id, *req.Score); err != nil {
		h.sendRepoError(c, err)
		return
	}
	result.Score = *req.Score

	h.auditService.Record(ctx, services.AuditEvent{
		UserID:    claims.UserID,
		UserType:  claims.UserType,
		Action:    models.AuditUpdate,
		Entity:    string(models.ResourceResults),
		EntityID:  strconv.Itoa(id),
		Changes:   map[string]int{"from": previous, "to": *req.Score},
		IPAddress: utils.GetClientIP(c),
		UserAgent: utils.GetDeviceInfo(c),
	})
	utils.SendSuccess(c, http.StatusOK, result)
}

func (h *AcademicHandler) DeleteResult(c *gin.Context) {
	claims, ok := h.authorize(c, models.ResourceResults, models.ActionDelete)
	if !ok {
		return
	}
	id, ok := resultID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, ok := h.ownedResult(c, claims, id, models.ActionDelete); !ok {
		return
	}
	if err := h.repo.DeleteResult(ctx, id); err != nil {
		h.sendRepoError(c, err)
		return
	}

	h.auditService.Record(ctx, services.AuditEvent{
		UserID:    claims.UserID,
		UserType:  claims.UserType,
		Action:    models.AuditDelete,
		Entity:    string(models.ResourceResults),
		EntityID:  strconv.Itoa(id),
		IPAddress: utils.GetClientIP(c),
		UserAgent: utils.GetDeviceInfo(c),
	})
	utils.SendSuccess(c, http.StatusOK, gin.H{"deleted": id})
}

func (h *AcademicHandler) GetStudent(c *gin.Context) {
	claims, ok := h.authorize(c, models.ResourceStudents, models.ActionRead)
	if !ok {
		return
	}

	student, err := h.repo.GetStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.sendRepoError(c, err)
		return
	}
	if !h.enforcer.CanPerform(claims.UserType, models.ResourceStudents, models.ActionRead, student.VisibleTo(scopeOf(claims))) {
		utils.SendAppError(c, apperror.ErrForbidden, h.production)
		return
	}
	utils.SendSuccess(c, http.StatusOK, student)
}

// authorize applies the coarse matrix check before any row is read.
func (h *AcademicHandler) authorize(c *gin.Context, resource models.Resource, action models.Action) (*models.Claims, bool) {
	claims, ok := claimsFrom(c)
	if !ok {
		utils.SendError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return nil, false
	}
	if !h.enforcer.HasPermission(claims.UserType, resource, action) {
		utils.SendAppError(c, apperror.ErrForbidden, h.production)
		return nil, false
	}
	return claims, true
}

func (h *AcademicHandler) ownedResult(c *gin.Context, claims *models.Claims, id int, action models.Action) (*models.Result, bool) {
	result, err := h.repo.GetResult(c.Request.Context(), id)
	if err != nil {
		h.sendRepoError(c, err)
		return nil, false
	}
	if !h.enforcer.CanPerform(claims.UserType, models.ResourceResults, action, result.OwnedBy(scopeOf(claims))) {
		utils.SendAppError(c, apperror.ErrForbidden, h.production)
		return nil, false
	}
	return result, true
}

func (h *AcademicHandler) sendRepoError(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrRecordNotFound) {
		utils.SendAppError(c, apperror.NotFound("NOT_FOUND", "record not found"), h.production)
		return
	}
	utils.SendAppError(c, apperror.Internal("academic query failed", err), h.production)
}

func resultID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		utils.SendError(c, http.StatusBadRequest, "INVALID_ID", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func scopeOf(claims *models.Claims) models.RowScope {
	return models.RowScope{UserID: claims.UserID, Kind: claims.UserType}
}
