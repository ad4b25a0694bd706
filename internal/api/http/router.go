package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/aquafarm-service/internal/api/http/handlers"
	"github.com/spec-kit/aquafarm-service/internal/auth"
	"github.com/spec-kit/aquafarm-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Permissions    *handlers.PermissionsHandler
	AuthMiddleware *auth.Middleware
	Engine         *auth.Engine
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.RegisterAdmin)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/refresh", cfg.Auth.Refresh)

	protected := authGroup.Group("", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	protected.Post("/users", auth.RequireRole(domain.AdminRoles...), cfg.Auth.RegisterSubUser)
	protected.Post("/logout", cfg.Auth.Logout)
	protected.Post("/password/change", cfg.Auth.ChangePassword)

	me := app.Group("/me", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	me.Get("", cfg.Auth.Me)
	me.Put("/profile", cfg.Auth.UpdateProfile)
	me.Get("/ponds", auth.ScopeToAssignedResources(cfg.Engine), cfg.Permissions.MyPonds)

	perms := app.Group("/permissions", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	perms.Get("/:userID", auth.RequireOwnershipOrAdmin("userID"), cfg.Permissions.GetEffective)
	perms.Put("/:userID", auth.RequireRole(domain.AdminRoles...), auth.RequirePermission(cfg.Engine, domain.FlagEdit, domain.FeatureUserManage), cfg.Permissions.SetOverride)
	perms.Put("/:userID/ponds", auth.RequireRole(domain.AdminRoles...), cfg.Permissions.AssignPonds)
	perms.Delete("/:userID/:feature", auth.RequireRole(domain.AdminRoles...), auth.RequirePermission(cfg.Engine, domain.FlagEdit, domain.FeatureUserManage), cfg.Permissions.Revoke)
}
