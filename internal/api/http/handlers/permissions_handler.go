package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/aquafarm-service/internal/api/dto"
	"github.com/spec-kit/aquafarm-service/internal/auth"
	"github.com/spec-kit/aquafarm-service/internal/service"
	apperrors "github.com/spec-kit/aquafarm-service/pkg/util"
)

// PermissionsHandler exposes effective-matrix reads and override writes.
type PermissionsHandler struct {
	perms *service.PermissionService
}

// NewPermissionsHandler constructs handler.
func NewPermissionsHandler(permService *service.PermissionService) *PermissionsHandler {
	return &PermissionsHandler{perms: permService}
}

// GetEffective handles GET /permissions/:userID.
func (h *PermissionsHandler) GetEffective(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("authentication required")
	}

	matrix, err := h.perms.GetEffective(c.Context(), principal.Identity, c.Params("userID"))
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": matrix})
}

// SetOverride handles PUT /permissions/:userID.
func (h *PermissionsHandler) SetOverride(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("authentication required")
	}

	var req dto.SetOverrideRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Feature == "" || len(req.Flags) == 0 {
		return apperrors.NewValidationError("feature and flags required", nil)
	}

	if err := h.perms.SetOverride(c.Context(), principal.Identity, c.Params("userID"), req.Feature, req.Flags); err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"updated": true}})
}

// Revoke handles DELETE /permissions/:userID/:feature.
func (h *PermissionsHandler) Revoke(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("authentication required")
	}

	if err := h.perms.Revoke(c.Context(), principal.Identity, c.Params("userID"), c.Params("feature")); err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"revoked": true}})
}

// MyPonds handles GET /me/ponds: the caller's own resource scope. Unscoped
// roles get an explicit marker instead of a list.
func (h *PermissionsHandler) MyPonds(c *fiber.Ctx) error {
	if _, ok := auth.PrincipalFromContext(c); !ok {
		return apperrors.NewUnauthenticated("authentication required")
	}

	ponds, scoped := auth.AssignedPondsFromContext(c)
	if !scoped {
		return c.JSON(fiber.Map{"data": fiber.Map{"scoped": false}})
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"scoped": true, "ponds": ponds}})
}

// AssignPonds handles PUT /permissions/:userID/ponds.
func (h *PermissionsHandler) AssignPonds(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("authentication required")
	}

	var req dto.AssignPondsRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	if err := h.perms.AssignPonds(c.Context(), principal.Identity, c.Params("userID"), req.PondIDs); err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"assigned": true}})
}
