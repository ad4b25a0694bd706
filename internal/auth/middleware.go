package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/aquafarm-service/internal/domain"
	"github.com/spec-kit/aquafarm-service/internal/repository"
	apperrors "github.com/spec-kit/aquafarm-service/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller: the live identity plus the
// claims snapshot from the presented access token.
type Principal struct {
	Identity *domain.Identity
	Claims   *Claims
}

// Role returns the caller's current primary role.
func (p *Principal) Role() domain.Role {
	return p.Identity.PrimaryRole()
}

// Middleware validates bearer access tokens and loads principals through the
// identity cache, falling back to the credential store on a miss.
type Middleware struct {
	tokens     *TokenManager
	cache      *IdentityCache
	identities repository.IdentityRepository
}

// NewMiddleware constructs middleware.
func NewMiddleware(tokens *TokenManager, cache *IdentityCache, identities repository.IdentityRepository) *Middleware {
	return &Middleware{tokens: tokens, cache: cache, identities: identities}
}

// Handle enforces authentication for protected routes. Every failure here is
// the 401 class; permission failures are the gate's business.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthenticated("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthenticated("invalid authorization header")
	}

	claims, err := m.tokens.Parse(parts[1], domain.TokenKindAccess)
	if err != nil {
		switch {
		case errors.Is(err, ErrExpired):
			return apperrors.NewUnauthenticated("token expired")
		case errors.Is(err, ErrWrongKind):
			return apperrors.NewUnauthenticated("access token required")
		default:
			return apperrors.NewUnauthenticated("invalid token")
		}
	}

	identity := m.cache.Get(claims.UserID)
	if identity == nil {
		identity, err = m.identities.GetByID(c.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewUnauthenticated("identity not found")
			}
			return apperrors.MapError(err)
		}
		m.cache.Put(identity)
	}
	if identity.Status != domain.IdentityStatusActive {
		return apperrors.NewUnauthenticated("identity suspended")
	}

	c.Locals(principalKey, &Principal{Identity: identity, Claims: claims})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated principal.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
