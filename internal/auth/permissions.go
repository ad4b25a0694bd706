package auth

import (
	"context"
	"fmt"

	"github.com/spec-kit/aquafarm-service/internal/domain"
	"github.com/spec-kit/aquafarm-service/internal/repository"
)

// Engine resolves effective permission matrices by layering the all-false
// template, the role-default overlay, and the persisted per-user override.
// Later layers win, but only for flags they explicitly set to true; a layer
// that is silent on a flag never clears an earlier true.
type Engine struct {
	store repository.PermissionRepository
}

// NewEngine builds the resolution engine on top of the override store.
func NewEngine(store repository.PermissionRepository) *Engine {
	return &Engine{store: store}
}

// Resolve returns the dense effective matrix for a (user, account, role)
// triple, covering every template feature. It is evaluated fresh on every
// call; with no store mutation in between the result is identical.
func (e *Engine) Resolve(ctx context.Context, userID, accountID string, role domain.Role) (domain.PermissionMatrix, error) {
	matrix := domain.Template()

	for feature, cell := range domain.RoleOverlay(role) {
		matrix[feature] = matrix[feature].Merge(cell.Sparse())
	}

	override, err := e.store.Get(ctx, userID, accountID)
	if err != nil {
		return nil, fmt.Errorf("load permission override: %w", err)
	}
	if override != nil {
		for feature, sparse := range override.Flags {
			if !domain.KnownFeature(feature) {
				continue
			}
			matrix[feature] = matrix[feature].Merge(sparse)
		}
	}
	return matrix, nil
}

// Check resolves the matrix and returns one flag. Unknown features are false,
// never an error.
func (e *Engine) Check(ctx context.Context, userID, accountID string, role domain.Role, feature, flag string) (bool, error) {
	matrix, err := e.Resolve(ctx, userID, accountID, role)
	if err != nil {
		return false, err
	}
	cell, ok := matrix[feature]
	if !ok {
		return false, nil
	}
	return cell.Flag(flag), nil
}

// SetOverride applies per-flag changes for one feature. True flags are
// persisted; false flags are removed from storage so absence keeps meaning
// false. Flags not named in the call are left untouched. The feature must
// exist in the template and every flag name must be known.
func (e *Engine) SetOverride(ctx context.Context, userID, accountID, feature string, flags map[string]bool, actor string) error {
	if !domain.KnownFeature(feature) {
		return fmt.Errorf("%w: %s", ErrUnknownFeature, feature)
	}
	for name := range flags {
		if !domain.ValidFlag(name) {
			return fmt.Errorf("%w: %s.%s", ErrUnknownFeature, feature, name)
		}
	}

	cell := make(map[string]bool, 4)
	existing, err := e.store.Get(ctx, userID, accountID)
	if err != nil {
		return fmt.Errorf("load permission override: %w", err)
	}
	if existing != nil {
		for name, v := range existing.Flags[feature] {
			if v {
				cell[name] = true
			}
		}
	}
	for name, v := range flags {
		if v {
			cell[name] = true
		} else {
			delete(cell, name)
		}
	}

	if len(cell) == 0 {
		return e.store.RemoveFeature(ctx, userID, accountID, feature, actor)
	}
	return e.store.SetFeature(ctx, userID, accountID, feature, cell, actor)
}

// Revoke removes every stored flag for the feature, restoring the role
// default on the next resolve.
func (e *Engine) Revoke(ctx context.Context, userID, accountID, feature, actor string) error {
	if !domain.KnownFeature(feature) {
		return fmt.Errorf("%w: %s", ErrUnknownFeature, feature)
	}
	return e.store.RemoveFeature(ctx, userID, accountID, feature, actor)
}

// SetAssignedPonds replaces the explicit resource list on the user's
// permission record.
func (e *Engine) SetAssignedPonds(ctx context.Context, userID, accountID string, pondIDs []string, actor string) error {
	return e.store.SetAssignedPonds(ctx, userID, accountID, pondIDs, actor)
}

// AssignedPonds returns the explicit resource list attached to the user's
// permission record. Nil means nothing assigned.
func (e *Engine) AssignedPonds(ctx context.Context, userID, accountID string) ([]string, error) {
	override, err := e.store.Get(ctx, userID, accountID)
	if err != nil {
		return nil, fmt.Errorf("load permission override: %w", err)
	}
	if override == nil {
		return nil, nil
	}
	return override.AssignedPonds, nil
}
