package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/aquafarm-service/internal/api/dto"
	"github.com/spec-kit/aquafarm-service/internal/auth"
	"github.com/spec-kit/aquafarm-service/internal/service"
	apperrors "github.com/spec-kit/aquafarm-service/pkg/util"
)

// AuthHandler exposes signup, login and token lifecycle endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// RegisterAdmin handles POST /auth/register.
func (h *AuthHandler) RegisterAdmin(c *fiber.Ctx) error {
	var req dto.AdminRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		return apperrors.NewValidationError("name, email, password required", nil)
	}

	identity, err := h.auth.RegisterAdmin(c.Context(), req.Name, req.Email, req.Password, req.Plan)
	if err != nil {
		return apperrors.MapError(err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": identity})
}

// RegisterSubUser handles POST /auth/users (admin token required).
func (h *AuthHandler) RegisterSubUser(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("authentication required")
	}

	var req dto.SubUserRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" || req.Name == "" || req.Role == "" {
		return apperrors.NewValidationError("name, email, password, role required", nil)
	}

	identity, err := h.auth.RegisterSubUser(c.Context(), principal.Identity, req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		return apperrors.MapError(err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": identity})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	identity, pair, err := h.auth.Login(c.Context(), req.Email, req.Password, req.Email+"|"+c.IP())
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return apperrors.NewUnauthenticated("invalid credentials")
		}
		return apperrors.MapError(err)
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"user": identity,
			"auth": dto.TokenPairResponse{
				AccessToken:      pair.AccessToken,
				AccessExpiresAt:  pair.AccessExpiresAt,
				RefreshToken:     pair.RefreshToken,
				RefreshExpiresAt: pair.RefreshExpiresAt,
			},
		},
	})
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.RefreshToken == "" {
		return apperrors.NewValidationError("refresh_token required", nil)
	}

	token, exp, err := h.auth.RefreshAccess(c.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrExpired):
			return apperrors.NewUnauthenticated("refresh token expired")
		case errors.Is(err, auth.ErrWrongKind):
			return apperrors.NewUnauthenticated("refresh token required")
		case errors.Is(err, auth.ErrMalformedToken), errors.Is(err, auth.ErrBadSignature),
			errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUserNotFound):
			return apperrors.NewUnauthenticated("invalid refresh token")
		}
		return apperrors.MapError(err)
	}

	return c.JSON(fiber.Map{"data": dto.TokenResponse{Token: token, ExpiresAt: exp}})
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("authentication required")
	}
	if err := h.auth.Logout(c.Context(), principal.Identity); err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"logged_out": true}})
}

// ChangePassword handles POST /auth/password/change.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("authentication required")
	}

	var req dto.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return apperrors.NewValidationError("current_password and new_password required", nil)
	}

	if err := h.auth.ChangePassword(c.Context(), principal.Identity, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return apperrors.NewUnauthenticated("invalid credentials")
		}
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"changed": true}})
}

// UpdateProfile handles PUT /me/profile.
func (h *AuthHandler) UpdateProfile(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("authentication required")
	}

	var req dto.ProfileUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	if err := h.auth.UpdateProfile(c.Context(), principal.Identity, req.Fields); err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": principal.Identity})
}

// Me handles GET /me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("authentication required")
	}
	return c.JSON(fiber.Map{"data": principal.Identity})
}
