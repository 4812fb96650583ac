package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/marsha-lti/internal/models"
)

// SocialIdentityRepository persists SSO identities attached to users.
type SocialIdentityRepository struct {
	db *sqlx.DB
}

// NewSocialIdentityRepository constructs the repository.
func NewSocialIdentityRepository(db *sqlx.DB) *SocialIdentityRepository {
	return &SocialIdentityRepository{db: db}
}

func (r *SocialIdentityRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListByUser returns the identities of a user, oldest first.
func (r *SocialIdentityRepository) ListByUser(ctx context.Context, exec sqlx.ExtContext, userID string) ([]models.SocialIdentity, error) {
	const query = `SELECT id, user_id, provider, uid, created_at, modified_at FROM social_identities
        WHERE user_id = $1 ORDER BY created_at ASC, id ASC`
	var identities []models.SocialIdentity
	if err := sqlx.SelectContext(ctx, r.exec(exec), &identities, query, userID); err != nil {
		return nil, fmt.Errorf("list social identities: %w", err)
	}
	return identities, nil
}

// Reassign moves an identity to another user.
func (r *SocialIdentityRepository) Reassign(ctx context.Context, exec sqlx.ExtContext, identityID, userID string) error {
	const query = `UPDATE social_identities SET user_id = $2, modified_at = $3 WHERE id = $1`
	return r.affectOne(ctx, exec, "reassign social identity", query, identityID, userID, time.Now().UTC())
}

// Delete removes an identity.
func (r *SocialIdentityRepository) Delete(ctx context.Context, exec sqlx.ExtContext, identityID string) error {
	return deleteByID(ctx, r.exec(exec), "social_identities", models.SocialIdentityDeletion, identityID)
}

func (r *SocialIdentityRepository) affectOne(ctx context.Context, exec sqlx.ExtContext, op, query string, args ...interface{}) error {
	result, err := r.exec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
