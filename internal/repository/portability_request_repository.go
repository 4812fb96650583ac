package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/marsha-lti/internal/models"
)

// PortabilityRequestRepository persists portability requests.
type PortabilityRequestRepository struct {
	db *sqlx.DB
}

// NewPortabilityRequestRepository constructs the repository.
func NewPortabilityRequestRepository(db *sqlx.DB) *PortabilityRequestRepository {
	return &PortabilityRequestRepository{db: db}
}

func (r *PortabilityRequestRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const portabilityRequestColumns = `id, for_playlist_id, from_playlist_id, from_lti_consumer_site_id, from_lti_user_id,
        from_user_id, updated_by_user_id, state, created_at, updated_at`

// Create inserts a pending request.
func (r *PortabilityRequestRepository) Create(ctx context.Context, request *models.PortabilityRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	request.CreatedAt = now
	request.UpdatedAt = now
	if request.State == "" {
		request.State = models.PortabilityPending
	}
	const query = `INSERT INTO portability_requests (id, for_playlist_id, from_playlist_id, from_lti_consumer_site_id,
        from_lti_user_id, from_user_id, updated_by_user_id, state, created_at, updated_at)
        VALUES (:id, :for_playlist_id, :from_playlist_id, :from_lti_consumer_site_id,
        :from_lti_user_id, :from_user_id, :updated_by_user_id, :state, :created_at, :updated_at)`
	_, err := r.db.NamedExecContext(ctx, query, request)
	return err
}

// FindByID returns a request. Inside a transaction the row is locked.
func (r *PortabilityRequestRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.PortabilityRequest, error) {
	query := `SELECT ` + portabilityRequestColumns + ` FROM portability_requests WHERE id = $1`
	if exec != nil {
		query += ` FOR UPDATE`
	}
	var request models.PortabilityRequest
	if err := sqlx.GetContext(ctx, r.exec(exec), &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// UpdateState moves a pending request to its final state.
func (r *PortabilityRequestRepository) UpdateState(ctx context.Context, exec sqlx.ExtContext, request *models.PortabilityRequest) error {
	request.UpdatedAt = time.Now().UTC()
	const query = `UPDATE portability_requests SET state = $2, updated_by_user_id = $3, updated_at = $4
        WHERE id = $1 AND state = 'pending'`
	result, err := r.exec(exec).ExecContext(ctx, query, request.ID, request.State, request.UpdatedByUserID, request.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update portability request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("portability request rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
