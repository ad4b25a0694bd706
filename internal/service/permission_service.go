package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/aquafarm-service/internal/auth"
	"github.com/spec-kit/aquafarm-service/internal/domain"
	"github.com/spec-kit/aquafarm-service/internal/events"
	"github.com/spec-kit/aquafarm-service/internal/repository"
	apperrors "github.com/spec-kit/aquafarm-service/pkg/util"
)

// PermissionService exposes permission administration on top of the
// resolution engine, scoped to the actor's account.
type PermissionService struct {
	engine     *auth.Engine
	identities repository.IdentityRepository
	dispatcher events.Dispatcher
}

// NewPermissionService builds the service.
func NewPermissionService(engine *auth.Engine, identities repository.IdentityRepository, dispatcher events.Dispatcher) *PermissionService {
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher()
	}
	return &PermissionService{engine: engine, identities: identities, dispatcher: dispatcher}
}

// Engine exposes the resolution engine for gate wiring.
func (s *PermissionService) Engine() *auth.Engine {
	return s.engine
}

// GetEffective resolves the target user's effective matrix. The target must
// belong to the actor's account.
func (s *PermissionService) GetEffective(ctx context.Context, actor *domain.Identity, userID string) (domain.PermissionMatrix, error) {
	target, err := s.sameAccountTarget(ctx, actor, userID)
	if err != nil {
		return nil, err
	}
	return s.engine.Resolve(ctx, target.ID, target.AccountID, target.PrimaryRole())
}

// SetOverride applies per-flag override changes for one feature on the
// target user, stamping the actor.
func (s *PermissionService) SetOverride(ctx context.Context, actor *domain.Identity, userID, feature string, flags map[string]bool) error {
	target, err := s.sameAccountTarget(ctx, actor, userID)
	if err != nil {
		return err
	}
	if err := s.engine.SetOverride(ctx, target.ID, target.AccountID, feature, flags, actor.ID); err != nil {
		if errors.Is(err, auth.ErrUnknownFeature) {
			return apperrors.NewUnknownFeature(feature)
		}
		return err
	}
	s.publish(ctx, events.EventPermissionChanged, target, actor, events.PermissionChangedPayload{Feature: feature, Flags: flags})
	return nil
}

// Revoke drops every stored override flag for the feature on the target.
func (s *PermissionService) Revoke(ctx context.Context, actor *domain.Identity, userID, feature string) error {
	target, err := s.sameAccountTarget(ctx, actor, userID)
	if err != nil {
		return err
	}
	if err := s.engine.Revoke(ctx, target.ID, target.AccountID, feature, actor.ID); err != nil {
		if errors.Is(err, auth.ErrUnknownFeature) {
			return apperrors.NewUnknownFeature(feature)
		}
		return err
	}
	s.publish(ctx, events.EventPermissionRevoked, target, actor, events.PermissionChangedPayload{Feature: feature})
	return nil
}

// AssignPonds replaces the target's assigned-resource list.
func (s *PermissionService) AssignPonds(ctx context.Context, actor *domain.Identity, userID string, pondIDs []string) error {
	target, err := s.sameAccountTarget(ctx, actor, userID)
	if err != nil {
		return err
	}
	return s.engine.SetAssignedPonds(ctx, target.ID, target.AccountID, pondIDs, actor.ID)
}

func (s *PermissionService) sameAccountTarget(ctx context.Context, actor *domain.Identity, userID string) (*domain.Identity, error) {
	if userID == actor.ID {
		return actor, nil
	}
	target, err := s.identities.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": userID})
		}
		return nil, err
	}
	if target.AccountID != actor.AccountID {
		return nil, apperrors.NewForbidden("user belongs to another account", nil)
	}
	return target, nil
}

func (s *PermissionService) publish(ctx context.Context, typ events.EventType, target, actor *domain.Identity, payload any) {
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		UserID:    target.ID,
		AccountID: target.AccountID,
		ActorID:   actor.ID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}
