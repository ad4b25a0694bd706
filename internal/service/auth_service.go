package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/aquafarm-service/internal/auth"
	"github.com/spec-kit/aquafarm-service/internal/config"
	"github.com/spec-kit/aquafarm-service/internal/domain"
	"github.com/spec-kit/aquafarm-service/internal/events"
	"github.com/spec-kit/aquafarm-service/internal/observability"
	"github.com/spec-kit/aquafarm-service/internal/repository"
	apperrors "github.com/spec-kit/aquafarm-service/pkg/util"
)

// AuthService coordinates signup, login, token refresh and logout flows.
type AuthService struct {
	identities repository.IdentityRepository
	cache      *auth.IdentityCache
	tokens     *auth.TokenManager
	ledger     *auth.Ledger
	limiter    *auth.LoginLimiter
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	bcryptCost int
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	Identities repository.IdentityRepository
	Cache      *auth.IdentityCache
	Tokens     *auth.TokenManager
	Limiter    *auth.LoginLimiter
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher()
	}
	return &AuthService{
		identities: deps.Identities,
		cache:      deps.Cache,
		tokens:     deps.Tokens,
		ledger:     auth.NewLedger(deps.Tokens),
		limiter:    deps.Limiter,
		dispatcher: dispatcher,
		metrics:    deps.Metrics,
		bcryptCost: cfg.BcryptCost,
	}
}

// TokenManager exposes the underlying codec for middleware wiring.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokens
}

// RegisterAdmin creates a new account together with its owner identity.
func (s *AuthService) RegisterAdmin(ctx context.Context, name, email, password, plan string) (*domain.Identity, error) {
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	accountID := uuid.NewString()
	identity := domain.NewIdentity(uuid.NewString(), accountID, name, email, hash, []string{string(domain.RoleOwner)})
	identity.Subscription = domain.Subscription{Plan: plan, ExpiresAt: time.Now().UTC().AddDate(0, 1, 0)}

	if err := s.identities.Insert(ctx, identity); err != nil {
		return nil, err
	}
	s.cache.Put(identity)
	s.publish(ctx, events.EventIdentityCreated, identity.ID, identity.AccountID, identity.ID, nil)
	return identity, nil
}

// RegisterSubUser creates an identity under the actor's account. The actor
// must hold an admin role; sub-users cannot be owners.
func (s *AuthService) RegisterSubUser(ctx context.Context, actor *domain.Identity, name, email, password, role string) (*domain.Identity, error) {
	if !actor.PrimaryRole().IsAdmin() {
		return nil, apperrors.NewForbidden("admin role required to create users", nil)
	}
	if !domain.ValidRole(role) || domain.Role(role) == domain.RoleOwner {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": role})
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	identity := domain.NewIdentity(uuid.NewString(), actor.AccountID, name, email, hash, []string{role})
	identity.Subscription = actor.Subscription

	if err := s.identities.Insert(ctx, identity); err != nil {
		return nil, err
	}
	s.cache.Put(identity)
	s.publish(ctx, events.EventIdentityCreated, identity.ID, identity.AccountID, actor.ID, nil)
	return identity, nil
}

// Login authenticates by password and issues an access/refresh token pair.
// A brand-new refresh token is always minted, even when five valid sessions
// already exist; the oldest one is evicted.
func (s *AuthService) Login(ctx context.Context, email, password, clientKey string) (*domain.Identity, *domain.TokenPair, error) {
	if !s.limiter.Allow(ctx, clientKey) {
		s.metrics.RecordLogin("rate_limited")
		return nil, nil, apperrors.NewRateLimited("too many login attempts")
	}

	identity, err := s.loadByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.failLogin(ctx, email, "unknown identity")
			return nil, nil, auth.ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if err := auth.ComparePassword(identity.PasswordHash, password); err != nil {
		s.failLogin(ctx, email, "bad password")
		return nil, nil, auth.ErrInvalidCredentials
	}
	if identity.Status != domain.IdentityStatusActive {
		s.failLogin(ctx, email, "suspended")
		return nil, nil, auth.ErrInvalidCredentials
	}

	accessToken, accessExp, err := s.tokens.Generate(identity.ID, identity.AccountID, identity.Roles, domain.TokenKindAccess)
	if err != nil {
		return nil, nil, err
	}
	_, refreshToken, refreshExp, err := s.ledger.Cleanup(identity, true)
	if err != nil {
		return nil, nil, err
	}

	identity.Touch(time.Now())
	if err := s.persist(ctx, identity); err != nil {
		return nil, nil, err
	}
	s.cache.Put(identity)
	s.limiter.Reset(ctx, clientKey)
	s.metrics.RecordLogin("ok")
	s.publish(ctx, events.EventLoginSucceeded, identity.ID, identity.AccountID, identity.ID, nil)

	return identity, &domain.TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// RefreshAccess mints a new access token from a valid refresh token. The
// ledger is pruned of expired entries first, but the presented refresh token
// is deliberately not rotated; only password login mints refresh tokens.
func (s *AuthService) RefreshAccess(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, err := s.tokens.Parse(refreshToken, domain.TokenKindRefresh)
	if err != nil {
		return "", time.Time{}, err
	}

	identity, err := s.loadByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", time.Time{}, auth.ErrUserNotFound
		}
		return "", time.Time{}, err
	}

	if !s.ledger.Validate(identity, refreshToken) {
		return "", time.Time{}, auth.ErrInvalidCredentials
	}
	hasValid, _, _, err := s.ledger.Cleanup(identity, false)
	if err != nil {
		return "", time.Time{}, err
	}
	if !hasValid {
		return "", time.Time{}, auth.ErrInvalidCredentials
	}

	accessToken, accessExp, err := s.tokens.Generate(identity.ID, identity.AccountID, identity.Roles, domain.TokenKindAccess)
	if err != nil {
		return "", time.Time{}, err
	}

	identity.Touch(time.Now())
	if err := s.persist(ctx, identity); err != nil {
		return "", time.Time{}, err
	}
	s.cache.Put(identity)
	s.metrics.RecordTokenRefresh()
	return accessToken, accessExp, nil
}

// Logout revokes every refresh token on the identity.
func (s *AuthService) Logout(ctx context.Context, identity *domain.Identity) error {
	identity.RefreshTokens = nil
	identity.Touch(time.Now())
	if err := s.persist(ctx, identity); err != nil {
		return err
	}
	s.cache.Put(identity)
	s.publish(ctx, events.EventLogout, identity.ID, identity.AccountID, identity.ID, nil)
	return nil
}

// ChangePassword verifies the current password before storing the new hash.
func (s *AuthService) ChangePassword(ctx context.Context, identity *domain.Identity, currentPassword, newPassword string) error {
	if err := auth.ComparePassword(identity.PasswordHash, currentPassword); err != nil {
		return auth.ErrInvalidCredentials
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	identity.PasswordHash = hash
	identity.Touch(time.Now())
	if err := s.persist(ctx, identity); err != nil {
		return err
	}
	s.cache.Put(identity)
	return nil
}

// Identity-defining fields that the profile surface may never rewrite.
var protectedProfileFields = map[string]struct{}{
	"id":         {},
	"account_id": {},
	"email":      {},
	"roles":      {},
	"status":     {},
}

// UpdateProfile merges free-form profile attributes into the identity. The
// typed name field is written directly; everything else lands in the
// additional-fields side map. Previous values go into the audit payload.
func (s *AuthService) UpdateProfile(ctx context.Context, identity *domain.Identity, fields map[string]any) error {
	if len(fields) == 0 {
		return apperrors.NewValidationError("no profile fields given", nil)
	}

	previous := make(map[string]any, len(fields))
	for name := range fields {
		if _, locked := protectedProfileFields[name]; locked {
			return apperrors.NewValidationError("field cannot be changed", map[string]any{"field": name})
		}
		if prev, ok := identity.Field(name); ok {
			previous[name] = prev
		}
	}

	for name, value := range fields {
		if name == "name" {
			if v, ok := value.(string); ok && v != "" {
				identity.Name = v
			}
			continue
		}
		identity.SetField(name, value)
	}

	identity.Touch(time.Now())
	if err := s.persist(ctx, identity); err != nil {
		return err
	}
	s.cache.Put(identity)
	s.publish(ctx, events.EventProfileUpdated, identity.ID, identity.AccountID, identity.ID,
		events.ProfileUpdatedPayload{Fields: fields, Previous: previous})
	return nil
}

// UpdateSettings merges the given keys into the identity's settings map.
func (s *AuthService) UpdateSettings(ctx context.Context, identity *domain.Identity, settings map[string]any) error {
	if identity.Settings == nil {
		identity.Settings = map[string]any{"timezone": domain.DefaultTimezone}
	}
	for k, v := range settings {
		identity.Settings[k] = v
	}
	identity.Touch(time.Now())
	if err := s.persist(ctx, identity); err != nil {
		return err
	}
	s.cache.Put(identity)
	return nil
}

// loadByEmail prefers the cached instance when one exists so recent,
// not-yet-flushed mutations are not lost.
func (s *AuthService) loadByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	stored, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if cached := s.cache.Get(stored.ID); cached != nil {
		return cached, nil
	}
	return stored, nil
}

func (s *AuthService) loadByID(ctx context.Context, userID string) (*domain.Identity, error) {
	if cached := s.cache.Get(userID); cached != nil {
		return cached, nil
	}
	return s.identities.GetByID(ctx, userID)
}

// persist writes the identity with one optimistic-lock retry: on a version
// conflict the stored version is re-read and the write reapplied once.
func (s *AuthService) persist(ctx context.Context, identity *domain.Identity) error {
	err := s.identities.Update(ctx, identity)
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VERSION_MISMATCH" {
		return err
	}

	stored, rerr := s.identities.GetByID(ctx, identity.ID)
	if rerr != nil {
		return err
	}
	identity.Version = stored.Version
	return s.identities.Update(ctx, identity)
}

func (s *AuthService) failLogin(ctx context.Context, email, reason string) {
	s.metrics.RecordLogin("bad_credentials")
	s.publish(ctx, events.EventLoginFailed, "", "", "", events.LoginFailedPayload{Email: email, Reason: reason})
}

func (s *AuthService) publish(ctx context.Context, typ events.EventType, userID, accountID, actorID string, payload any) {
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		UserID:    userID,
		AccountID: accountID,
		ActorID:   actorID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}
