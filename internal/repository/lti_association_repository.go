package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/marsha-lti/internal/models"
)

// LtiAssociationRepository persists bindings between LTI users and accounts.
type LtiAssociationRepository struct {
	db *sqlx.DB
}

// NewLtiAssociationRepository constructs the repository.
func NewLtiAssociationRepository(db *sqlx.DB) *LtiAssociationRepository {
	return &LtiAssociationRepository{db: db}
}

// FindBySiteAndUser returns the association of an LTI user on a consumer site.
func (r *LtiAssociationRepository) FindBySiteAndUser(ctx context.Context, consumerSiteID, ltiUserID string) (*models.LtiUserAssociation, error) {
	const query = `SELECT a.id, a.consumer_site_id, s.name AS consumer_site_name, a.lti_user_id, a.user_id, a.created_at
        FROM lti_user_associations a JOIN consumer_sites s ON s.id = a.consumer_site_id
        WHERE a.consumer_site_id = $1 AND a.lti_user_id = $2`
	var association models.LtiUserAssociation
	if err := r.db.GetContext(ctx, &association, query, consumerSiteID, ltiUserID); err != nil {
		return nil, err
	}
	return &association, nil
}

// Create inserts an association. Unique violations are returned untouched so
// callers can map them.
func (r *LtiAssociationRepository) Create(ctx context.Context, association *models.LtiUserAssociation) error {
	if association.ID == "" {
		association.ID = uuid.NewString()
	}
	if association.CreatedAt.IsZero() {
		association.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO lti_user_associations (id, consumer_site_id, lti_user_id, user_id, created_at)
        VALUES (:id, :consumer_site_id, :lti_user_id, :user_id, :created_at)`
	_, err := r.db.NamedExecContext(ctx, query, association)
	return err
}
