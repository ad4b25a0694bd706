package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/aquafarm-service/internal/domain"
	util "github.com/spec-kit/aquafarm-service/pkg/util"
)

// IdentityRepository is the credential-store adapter over the identities
// collection. Identity documents are stored as JSONB rows keyed by user ID
// with an optimistic-lock version column.
type IdentityRepository interface {
	Insert(ctx context.Context, identity *domain.Identity) error
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
	// Update writes the document iff the version still matches, bumping it on
	// success. A concurrent write surfaces as VERSION_MISMATCH.
	Update(ctx context.Context, identity *domain.Identity) error
	Delete(ctx context.Context, id string) error
}

type identityRepository struct {
	pool *pgxpool.Pool
}

// NewIdentityRepository returns a Postgres-backed implementation.
func NewIdentityRepository(pool *pgxpool.Pool) IdentityRepository {
	return &identityRepository{pool: pool}
}

// identityDoc is the persisted shape; it carries the credential and token
// fields the API-facing JSON of domain.Identity deliberately omits.
type identityDoc struct {
	ID               string              `json:"id"`
	AccountID        string              `json:"account_id"`
	Name             string              `json:"name"`
	Email            string              `json:"email"`
	PasswordHash     string              `json:"password_hash"`
	Roles            []string            `json:"roles"`
	RefreshTokens    []string            `json:"refresh_tokens"`
	Settings         map[string]any      `json:"settings"`
	Subscription     domain.Subscription `json:"subscription"`
	Status           string              `json:"status"`
	LastActivity     time.Time           `json:"last_activity"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
	AdditionalFields map[string]any      `json:"additional_fields,omitempty"`
}

func toDoc(i *domain.Identity) identityDoc {
	return identityDoc{
		ID:               i.ID,
		AccountID:        i.AccountID,
		Name:             i.Name,
		Email:            i.Email,
		PasswordHash:     i.PasswordHash,
		Roles:            i.Roles,
		RefreshTokens:    i.RefreshTokens,
		Settings:         i.Settings,
		Subscription:     i.Subscription,
		Status:           string(i.Status),
		LastActivity:     i.LastActivity,
		CreatedAt:        i.CreatedAt,
		UpdatedAt:        i.UpdatedAt,
		AdditionalFields: i.AdditionalFields,
	}
}

func fromDoc(doc identityDoc, version int64) *domain.Identity {
	return &domain.Identity{
		ID:               doc.ID,
		AccountID:        doc.AccountID,
		Name:             doc.Name,
		Email:            doc.Email,
		PasswordHash:     doc.PasswordHash,
		Roles:            doc.Roles,
		RefreshTokens:    doc.RefreshTokens,
		Settings:         doc.Settings,
		Subscription:     doc.Subscription,
		Status:           domain.IdentityStatus(doc.Status),
		LastActivity:     doc.LastActivity,
		Version:          version,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
		AdditionalFields: doc.AdditionalFields,
	}
}

func (r *identityRepository) Insert(ctx context.Context, identity *domain.Identity) error {
	payload, err := json.Marshal(toDoc(identity))
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}

	const query = `
        INSERT INTO identities (id, account_id, email, doc, version)
        VALUES ($1, $2, $3, $4, 1)`

	if _, err := r.pool.Exec(ctx, query, identity.ID, identity.AccountID, identity.Email, payload); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return util.NewDuplicateIdentity(identity.Email)
		}
		return err
	}
	identity.Version = 1
	return nil
}

func (r *identityRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	const query = `SELECT doc, version FROM identities WHERE id=$1`
	return r.getOne(ctx, query, id)
}

func (r *identityRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	const query = `SELECT doc, version FROM identities WHERE email=$1`
	return r.getOne(ctx, query, email)
}

func (r *identityRepository) getOne(ctx context.Context, query string, arg any) (*domain.Identity, error) {
	var (
		payload []byte
		version int64
	)
	if err := r.pool.QueryRow(ctx, query, arg).Scan(&payload, &version); err != nil {
		return nil, err
	}
	var doc identityDoc
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal identity: %w", err)
	}
	return fromDoc(doc, version), nil
}

func (r *identityRepository) Update(ctx context.Context, identity *domain.Identity) error {
	identity.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(toDoc(identity))
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}

	const query = `
        UPDATE identities SET doc=$1, email=$2, version=version+1, updated_at=NOW()
        WHERE id=$3 AND version=$4`

	cmd, err := r.pool.Exec(ctx, query, payload, identity.Email, identity.ID, identity.Version)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return util.NewVersionMismatch()
	}
	identity.Version++
	return nil
}

func (r *identityRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM identities WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
