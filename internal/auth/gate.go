package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/aquafarm-service/internal/domain"
	apperrors "github.com/spec-kit/aquafarm-service/pkg/util"
)

const assignedPondsKey = "auth_assigned_ponds"

// RequireAuthenticated ensures a principal was loaded by the middleware.
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthenticated("authentication required")
		}
		return c.Next()
	}
}

// RequireRole ensures the caller holds at least one of the allowed roles.
// Every role on the identity counts, not just the primary one.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthenticated("authentication required")
		}
		if len(allowed) == 0 {
			return c.Next()
		}
		for _, role := range allowed {
			if principal.Identity.HasRole(role) {
				return c.Next()
			}
		}
		return apperrors.NewForbidden("insufficient role", map[string]any{"role": string(principal.Role())})
	}
}

// RequirePermission passes only when every listed feature grants the flag.
func RequirePermission(engine *Engine, flag string, features ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthenticated("authentication required")
		}

		matrix, err := engine.Resolve(c.Context(), principal.Identity.ID, principal.Identity.AccountID, principal.Role())
		if err != nil {
			return apperrors.MapError(err)
		}

		var missing []string
		for _, feature := range features {
			if !matrix[feature].Flag(flag) {
				missing = append(missing, feature)
			}
		}
		if len(missing) > 0 {
			return apperrors.NewForbidden("missing permissions", map[string]any{
				"missing_permissions": missing,
				"flag":                flag,
			})
		}
		return c.Next()
	}
}

// RequireAnyPermission passes when at least one listed feature grants the flag.
func RequireAnyPermission(engine *Engine, flag string, features ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthenticated("authentication required")
		}

		matrix, err := engine.Resolve(c.Context(), principal.Identity.ID, principal.Identity.AccountID, principal.Role())
		if err != nil {
			return apperrors.MapError(err)
		}

		for _, feature := range features {
			if matrix[feature].Flag(flag) {
				return c.Next()
			}
		}
		return apperrors.NewForbidden("missing permissions", map[string]any{
			"missing_permissions": features,
			"flag":                flag,
		})
	}
}

// RequireOwnershipOrAdmin allows admins through and otherwise requires the
// route's owner parameter to match the caller's user ID.
func RequireOwnershipOrAdmin(ownerParam string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthenticated("authentication required")
		}
		if principal.Role().IsAdmin() {
			return c.Next()
		}
		if c.Params(ownerParam) != principal.Identity.ID {
			return apperrors.NewForbidden("not the resource owner", nil)
		}
		return c.Next()
	}
}

// ScopeToAssignedResources restricts scoped roles to the assigned pond list
// on their permission record; unscoped roles see everything. The resolved
// list is attached to the request for downstream filtering.
func ScopeToAssignedResources(engine *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthenticated("authentication required")
		}
		if principal.Role().IsUnscoped() {
			return c.Next()
		}

		ponds, err := engine.AssignedPonds(c.Context(), principal.Identity.ID, principal.Identity.AccountID)
		if err != nil {
			return apperrors.MapError(err)
		}
		if ponds == nil {
			ponds = []string{}
		}
		c.Locals(assignedPondsKey, ponds)
		return c.Next()
	}
}

// AssignedPondsFromContext returns the scoping list set by
// ScopeToAssignedResources. ok is false for unscoped callers.
func AssignedPondsFromContext(c *fiber.Ctx) ([]string, bool) {
	val := c.Locals(assignedPondsKey)
	if val == nil {
		return nil, false
	}
	ponds, ok := val.([]string)
	return ponds, ok
}
