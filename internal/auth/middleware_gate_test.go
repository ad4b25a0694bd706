package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/aquafarm-service/internal/domain"
	apperrors "github.com/spec-kit/aquafarm-service/pkg/util"
)

type gateEnv struct {
	app    *fiber.App
	store  *fakeIdentityStore
	cache  *IdentityCache
	tokens *TokenManager
	engine *Engine
}

func newGateEnv(t *testing.T) *gateEnv {
	t.Helper()

	store := newFakeIdentityStore()
	cache := NewIdentityCache(store, time.Hour, zap.NewNop())
	tokens := NewTokenManager("gate-secret", 0, 0)
	engine := NewEngine(newFakePermissionStore())
	mw := NewMiddleware(tokens, cache, store)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).JSON(fiber.Map{"code": de.Code, "message": de.Message})
		},
	})

	ok := func(c *fiber.Ctx) error {
		principal, _ := PrincipalFromContext(c)
		return c.JSON(fiber.Map{"id": principal.Identity.ID})
	}

	protected := app.Group("/", mw.Handle, RequireAuthenticated())
	protected.Get("/me", ok)
	protected.Get("/admin", RequireRole(domain.AdminRoles...), ok)
	protected.Get("/feed", RequirePermission(engine, domain.FlagEdit, domain.FeatureFeedManage), ok)
	protected.Get("/bank", RequirePermission(engine, domain.FlagEdit, domain.FeatureBankManage), ok)
	protected.Get("/users/:userID", RequireOwnershipOrAdmin("userID"), ok)
	protected.Get("/ponds", ScopeToAssignedResources(engine), func(c *fiber.Ctx) error {
		ponds, scoped := AssignedPondsFromContext(c)
		return c.JSON(fiber.Map{"scoped": scoped, "ponds": ponds})
	})

	return &gateEnv{app: app, store: store, cache: cache, tokens: tokens, engine: engine}
}

func (e *gateEnv) seed(t *testing.T, id string, roles ...string) *domain.Identity {
	t.Helper()
	identity := domain.NewIdentity(id, "acct-1", "Test User", id+"@example.com", "", roles)
	require.NoError(t, e.store.Insert(context.Background(), identity))
	return identity
}

func (e *gateEnv) bearer(t *testing.T, identity *domain.Identity) string {
	t.Helper()
	token, _, err := e.tokens.Generate(identity.ID, identity.AccountID, identity.Roles, domain.TokenKindAccess)
	require.NoError(t, err)
	return "Bearer " + token
}

func (e *gateEnv) get(t *testing.T, path, auth string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := e.app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := make(map[string]any)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &body))
	}
	return resp, body
}

func TestMiddlewareRejectsAnonymous(t *testing.T) {
	env := newGateEnv(t)

	resp, body := env.get(t, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHENTICATED", body["code"])

	resp, _ = env.get(t, "/me", "Token abc")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMiddlewareRejectsRefreshTokenOnAccessRoute(t *testing.T) {
	env := newGateEnv(t)
	worker := env.seed(t, "worker-1", "worker")

	refresh, _, err := env.tokens.Generate(worker.ID, worker.AccountID, worker.Roles, domain.TokenKindRefresh)
	require.NoError(t, err)

	resp, body := env.get(t, "/me", "Bearer "+refresh)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "access token required", body["message"])
}

func TestMiddlewareRejectsUnknownAndSuspended(t *testing.T) {
	env := newGateEnv(t)

	ghost := domain.NewIdentity("ghost", "acct-1", "Ghost", "ghost@example.com", "", []string{"worker"})
	resp, _ := env.get(t, "/me", env.bearer(t, ghost))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	suspended := domain.NewIdentity("frozen", "acct-1", "Frozen", "frozen@example.com", "", []string{"worker"})
	suspended.Status = domain.IdentityStatusSuspended
	require.NoError(t, env.store.Insert(context.Background(), suspended))
	resp, _ = env.get(t, "/me", env.bearer(t, suspended))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMiddlewareLoadsFromStoreAndCaches(t *testing.T) {
	env := newGateEnv(t)
	worker := env.seed(t, "worker-1", "worker")

	require.Equal(t, 0, env.cache.Len())
	resp, body := env.get(t, "/me", env.bearer(t, worker))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "worker-1", body["id"])
	assert.Equal(t, 1, env.cache.Len())
}

func TestRoleGateForbidsWithoutUnauthenticating(t *testing.T) {
	env := newGateEnv(t)
	worker := env.seed(t, "worker-1", "worker")
	owner := env.seed(t, "owner-1", "owner")

	// A valid principal with the wrong role is the 403 class, never 401.
	resp, body := env.get(t, "/admin", env.bearer(t, worker))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", body["code"])

	resp, _ = env.get(t, "/admin", env.bearer(t, owner))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.get(t, "/admin", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// A secondary role satisfies the gate; the primary is not special here.
	hybrid := env.seed(t, "hybrid-1", "worker", "manager")
	resp, _ = env.get(t, "/admin", env.bearer(t, hybrid))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPermissionGateResolvesRolesAndOverrides(t *testing.T) {
	env := newGateEnv(t)
	worker := env.seed(t, "worker-1", "worker")
	auth := env.bearer(t, worker)

	// Workers carry feed edit from the role layer but no bank access.
	resp, _ := env.get(t, "/feed", auth)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.get(t, "/bank", auth)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	require.NoError(t, env.engine.SetOverride(context.Background(), worker.ID, worker.AccountID,
		domain.FeatureBankManage, map[string]bool{domain.FlagEdit: true}, "owner-1"))
	resp, _ = env.get(t, "/bank", auth)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOwnershipGate(t *testing.T) {
	env := newGateEnv(t)
	worker := env.seed(t, "worker-1", "worker")
	owner := env.seed(t, "owner-1", "owner")

	resp, _ := env.get(t, "/users/worker-1", env.bearer(t, worker))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.get(t, "/users/owner-1", env.bearer(t, worker))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Admin roles bypass the ownership check.
	resp, _ = env.get(t, "/users/worker-1", env.bearer(t, owner))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestScopeGate(t *testing.T) {
	env := newGateEnv(t)
	worker := env.seed(t, "worker-1", "worker")
	owner := env.seed(t, "owner-1", "owner")

	// No assignment yet: scoped callers get an empty list, not a free pass.
	_, body := env.get(t, "/ponds", env.bearer(t, worker))
	assert.Equal(t, true, body["scoped"])
	assert.Empty(t, body["ponds"])

	require.NoError(t, env.engine.SetAssignedPonds(context.Background(), worker.ID, worker.AccountID,
		[]string{"pond-1", "pond-2"}, "owner-1"))
	_, body = env.get(t, "/ponds", env.bearer(t, worker))
	assert.Equal(t, []any{"pond-1", "pond-2"}, body["ponds"])

	_, body = env.get(t, "/ponds", env.bearer(t, owner))
	assert.Equal(t, false, body["scoped"])
}
