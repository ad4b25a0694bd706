package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/aquafarm-service/internal/domain"
)

// PermissionRepository persists sparse per-user permission overrides keyed by
// (user, account). Only true flags are ever stored; absence means false.
type PermissionRepository interface {
	// Get returns the override document, or nil when none exists.
	Get(ctx context.Context, userID, accountID string) (*domain.PermissionOverride, error)
	// SetFeature replaces the stored cell for one feature with the given
	// sparse true-flag set, stamping the actor and time.
	SetFeature(ctx context.Context, userID, accountID, feature string, flags map[string]bool, actor string) error
	// RemoveFeature deletes every stored flag for the feature, restoring the
	// role default on the next resolve.
	RemoveFeature(ctx context.Context, userID, accountID, feature, actor string) error
	// SetAssignedPonds replaces the assigned-resource list on the record.
	SetAssignedPonds(ctx context.Context, userID, accountID string, pondIDs []string, actor string) error
}

type permissionRepository struct {
	pool *pgxpool.Pool
}

// NewPermissionRepository returns a Postgres-backed implementation.
func NewPermissionRepository(pool *pgxpool.Pool) PermissionRepository {
	return &permissionRepository{pool: pool}
}

func (r *permissionRepository) Get(ctx context.Context, userID, accountID string) (*domain.PermissionOverride, error) {
	const query = `
        SELECT flags, assigned_ponds, updated_by, EXTRACT(EPOCH FROM updated_at)::bigint
        FROM permission_overrides WHERE user_id=$1 AND account_id=$2`

	ov := domain.PermissionOverride{UserID: userID, AccountID: accountID}
	var flagsPayload []byte
	err := r.pool.QueryRow(ctx, query, userID, accountID).Scan(
		&flagsPayload,
		&ov.AssignedPonds,
		&ov.UpdatedBy,
		&ov.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(flagsPayload) > 0 {
		if err := json.Unmarshal(flagsPayload, &ov.Flags); err != nil {
			return nil, fmt.Errorf("unmarshal override flags: %w", err)
		}
	}
	return &ov, nil
}

func (r *permissionRepository) SetFeature(ctx context.Context, userID, accountID, feature string, flags map[string]bool, actor string) error {
	cell, err := json.Marshal(map[string]map[string]bool{feature: flags})
	if err != nil {
		return fmt.Errorf("marshal override cell: %w", err)
	}

	// jsonb || replaces the feature key wholesale with the new sparse cell.
	const query = `
        INSERT INTO permission_overrides (user_id, account_id, flags, updated_by, updated_at)
        VALUES ($1, $2, $3, $4, NOW())
        ON CONFLICT (user_id, account_id)
        DO UPDATE SET flags = permission_overrides.flags || EXCLUDED.flags,
                      updated_by = EXCLUDED.updated_by,
                      updated_at = NOW()`

	_, err = r.pool.Exec(ctx, query, userID, accountID, cell, actor)
	return err
}

func (r *permissionRepository) RemoveFeature(ctx context.Context, userID, accountID, feature, actor string) error {
	const query = `
        UPDATE permission_overrides
        SET flags = flags - $3, updated_by = $4, updated_at = NOW()
        WHERE user_id=$1 AND account_id=$2`

	_, err := r.pool.Exec(ctx, query, userID, accountID, feature, actor)
	return err
}

func (r *permissionRepository) SetAssignedPonds(ctx context.Context, userID, accountID string, pondIDs []string, actor string) error {
	const query = `
        INSERT INTO permission_overrides (user_id, account_id, flags, assigned_ponds, updated_by, updated_at)
        VALUES ($1, $2, '{}'::jsonb, $3, $4, NOW())
        ON CONFLICT (user_id, account_id)
        DO UPDATE SET assigned_ponds = EXCLUDED.assigned_ponds,
                      updated_by = EXCLUDED.updated_by,
                      updated_at = NOW()`

	_, err := r.pool.Exec(ctx, query, userID, accountID, pondIDs, actor)
	return err
}
