package handlers

import (
	"school-portal/internal/config"
	"school-portal/internal/policy"
	"school-portal/internal/repository"
	"school-portal/internal/services"

	"github.com/gin-gonic/gin"
)

// RouterDeps holds everything the HTTP layer needs.
type RouterDeps struct {
	Config         *config.AppConfig
	AuthService    *services.AuthService
	SessionService *services.SessionService
	AuditService   *services.AuditService
	AcademicRepo   repository.AcademicRepository
	Enforcer       *policy.Enforcer
	Routes         *policy.RouteTable
}

func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	middleware := NewMiddleware(deps.AuthService, deps.Routes, deps.Config)
	router.Use(gin.Recovery(), RequestLogger(), middleware.RequestGate())

	api := router.Group("/api")
	protected := api.Group("", middleware.RequireAPIAuth())

	NewAuthHandler(deps.AuthService, deps.SessionService, deps.Config).RegisterRoutes(api, protected)
	NewPrincipalHandler(deps.AuthService, deps.Enforcer, deps.Config).RegisterRoutes(protected)
	NewAcademicHandler(deps.AcademicRepo, deps.Enforcer, deps.AuditService, deps.Config).RegisterRoutes(protected)
	NewAuditHandler(deps.AuditService, deps.Enforcer, deps.Config).RegisterRoutes(protected)
	NewPermissionHandler(deps.Enforcer, deps.Config).RegisterRoutes(protected)
	NewPageHandler().RegisterRoutes(router)

	return router
}
