package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/marsha-lti/internal/models"
)

// ResourceRepository persists resources of every kind.
type ResourceRepository struct {
	db *sqlx.DB
}

// NewResourceRepository constructs the repository.
func NewResourceRepository(db *sqlx.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

func (r *ResourceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const resourceColumns = `r.id, r.seq, r.kind, r.playlist_id, r.lti_id, r.title, r.description, r.upload_state,
        r.uploaded_on, r.duplicated_from_id, r.created_by_id, r.created_at, r.updated_at, r.deleted_at`

// FindByID returns a live resource.
func (r *ResourceRepository) FindByID(ctx context.Context, id string) (*models.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources r WHERE r.id = $1 AND r.deleted_at IS NULL`
	var resource models.Resource
	if err := r.db.GetContext(ctx, &resource, query, id); err != nil {
		return nil, err
	}
	return &resource, nil
}

// FindInCourse returns the live resource of the given kind and lti id whose
// playlist is bound to the (course, consumer site) pair.
func (r *ResourceRepository) FindInCourse(ctx context.Context, exec sqlx.ExtContext, kind models.ResourceKind, ltiID, contextID, consumerSiteID string) (*models.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources r
        JOIN playlists p ON p.id = r.playlist_id
        WHERE r.kind = $1 AND r.lti_id = $2 AND p.lti_id = $3 AND p.consumer_site_id = $4
        AND r.deleted_at IS NULL AND p.deleted_at IS NULL
        ORDER BY r.uploaded_on DESC NULLS LAST, r.seq ASC
        LIMIT 1`
	var resource models.Resource
	if err := sqlx.GetContext(ctx, r.exec(exec), &resource, query, kind, ltiID, contextID, consumerSiteID); err != nil {
		return nil, err
	}
	return &resource, nil
}

// ListCandidates returns every live resource of the given kind and lti id,
// most authoritative first.
func (r *ResourceRepository) ListCandidates(ctx context.Context, exec sqlx.ExtContext, kind models.ResourceKind, ltiID string) ([]models.ResourceCandidate, error) {
	query := `SELECT ` + resourceColumns + `, p.lti_id AS playlist_lti_id,
        p.consumer_site_id AS playlist_consumer_site_id, p.organization_id AS playlist_organization_id,
        p.is_portable_to_playlist, p.is_portable_to_consumer_site
        FROM resources r
        JOIN playlists p ON p.id = r.playlist_id
        WHERE r.kind = $1 AND r.lti_id = $2 AND r.deleted_at IS NULL AND p.deleted_at IS NULL
        ORDER BY r.uploaded_on DESC NULLS LAST, r.seq ASC`
	var candidates []models.ResourceCandidate
	if err := sqlx.SelectContext(ctx, r.exec(exec), &candidates, query, kind, ltiID); err != nil {
		return nil, fmt.Errorf("list resource candidates: %w", err)
	}
	return candidates, nil
}

// Create inserts a resource and fills in its creation sequence.
func (r *ResourceRepository) Create(ctx context.Context, exec sqlx.ExtContext, resource *models.Resource) error {
	if resource.ID == "" {
		resource.ID = uuid.NewString()
	}
	if resource.UploadState == "" {
		resource.UploadState = models.UploadPending
	}
	now := time.Now().UTC()
	resource.CreatedAt = now
	resource.UpdatedAt = now

	const query = `INSERT INTO resources (id, kind, playlist_id, lti_id, title, description, upload_state,
        uploaded_on, duplicated_from_id, created_by_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING seq`
	row := r.exec(exec).QueryRowxContext(ctx, query,
		resource.ID, resource.Kind, resource.PlaylistID, resource.LTIID, resource.Title, resource.Description,
		resource.UploadState, resource.UploadedOn, resource.DuplicatedFromID, resource.CreatedByID,
		resource.CreatedAt, resource.UpdatedAt,
	)
	if err := row.Scan(&resource.Seq); err != nil {
		return fmt.Errorf("create resource: %w", err)
	}
	return nil
}
