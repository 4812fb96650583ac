package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/marsha-lti/internal/models"
)

// OwnedRelation names a table column pointing at the user that created or
// requested the row.
type OwnedRelation string

const (
	OwnedPlaylists             OwnedRelation = "playlists"
	OwnedResources             OwnedRelation = "resources"
	OwnedPassports             OwnedRelation = "lti_passports"
	OwnedPortabilityRequests   OwnedRelation = "portability_requests"
	UpdatedPortabilityRequests OwnedRelation = "portability_requests_updated"
)

var ownedRelationColumns = map[OwnedRelation]struct{ table, column, label string }{
	OwnedPlaylists:             {"playlists", "created_by_id", "title"},
	OwnedResources:             {"resources", "created_by_id", "title"},
	OwnedPassports:             {"lti_passports", "created_by_id", "oauth_consumer_key"},
	OwnedPortabilityRequests:   {"portability_requests", "from_user_id", "id::text"},
	UpdatedPortabilityRequests: {"portability_requests", "updated_by_user_id", "id::text"},
}

// OwnedRow is a row whose ownership moved. Label is for display and may
// repeat across rows.
type OwnedRow struct {
	ID    string `db:"id"`
	Label string `db:"label"`
}

// AccountRelationRepository lists and moves everything hanging off a user
// account. Move operations skip rows the target user already has an
// equivalent of; those stay on the source user.
type AccountRelationRepository struct {
	db *sqlx.DB
}

// NewAccountRelationRepository constructs the repository.
func NewAccountRelationRepository(db *sqlx.DB) *AccountRelationRepository {
	return &AccountRelationRepository{db: db}
}

func (r *AccountRelationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListOrganizationAccesses returns the organization accesses of a user.
func (r *AccountRelationRepository) ListOrganizationAccesses(ctx context.Context, exec sqlx.ExtContext, userID string) ([]models.OrganizationAccess, error) {
	const query = `SELECT a.id, a.user_id, a.organization_id, o.name AS organization_name, a.role, a.created_at
        FROM organization_accesses a JOIN organizations o ON o.id = a.organization_id
        WHERE a.user_id = $1 ORDER BY a.created_at, a.id`
	var accesses []models.OrganizationAccess
	if err := sqlx.SelectContext(ctx, r.exec(exec), &accesses, query, userID); err != nil {
		return nil, fmt.Errorf("list organization accesses: %w", err)
	}
	return accesses, nil
}

// MoveOrganizationAccesses re-points organization accesses from one user to another.
func (r *AccountRelationRepository) MoveOrganizationAccesses(ctx context.Context, exec sqlx.ExtContext, fromUserID, toUserID string) ([]models.OrganizationAccess, error) {
	const query = `UPDATE organization_accesses a SET user_id = $2
        WHERE a.user_id = $1 AND NOT EXISTS (
            SELECT 1 FROM organization_accesses t WHERE t.user_id = $2 AND t.organization_id = a.organization_id)
        RETURNING a.id, a.user_id, a.organization_id,
            (SELECT name FROM organizations WHERE id = a.organization_id) AS organization_name, a.role, a.created_at`
	var moved []models.OrganizationAccess
	if err := sqlx.SelectContext(ctx, r.exec(exec), &moved, query, fromUserID, toUserID); err != nil {
		return nil, fmt.Errorf("move organization accesses: %w", err)
	}
	return moved, nil
}

// ListConsumerSiteAccesses returns the consumer site accesses of a user.
func (r *AccountRelationRepository) ListConsumerSiteAccesses(ctx context.Context, exec sqlx.ExtContext, userID string) ([]models.ConsumerSiteAccess, error) {
	const query = `SELECT a.id, a.user_id, a.consumer_site_id, s.name AS consumer_site_name, a.role, a.created_at
        FROM consumer_site_accesses a JOIN consumer_sites s ON s.id = a.consumer_site_id
        WHERE a.user_id = $1 ORDER BY a.created_at, a.id`
	var accesses []models.ConsumerSiteAccess
	if err := sqlx.SelectContext(ctx, r.exec(exec), &accesses, query, userID); err != nil {
		return nil, fmt.Errorf("list consumer site accesses: %w", err)
	}
	return accesses, nil
}

// MoveConsumerSiteAccesses re-points consumer site accesses from one user to another.
func (r *AccountRelationRepository) MoveConsumerSiteAccesses(ctx context.Context, exec sqlx.ExtContext, fromUserID, toUserID string) ([]models.ConsumerSiteAccess, error) {
	const query = `UPDATE consumer_site_accesses a SET user_id = $2
        WHERE a.user_id = $1 AND NOT EXISTS (
            SELECT 1 FROM consumer_site_accesses t WHERE t.user_id = $2 AND t.consumer_site_id = a.consumer_site_id)
        RETURNING a.id, a.user_id, a.consumer_site_id,
            (SELECT name FROM consumer_sites WHERE id = a.consumer_site_id) AS consumer_site_name, a.role, a.created_at`
	var moved []models.ConsumerSiteAccess
	if err := sqlx.SelectContext(ctx, r.exec(exec), &moved, query, fromUserID, toUserID); err != nil {
		return nil, fmt.Errorf("move consumer site accesses: %w", err)
	}
	return moved, nil
}

// ListPlaylistAccesses returns the playlist accesses of a user.
func (r *AccountRelationRepository) ListPlaylistAccesses(ctx context.Context, exec sqlx.ExtContext, userID string) ([]models.PlaylistAccess, error) {
	const query = `SELECT a.id, a.user_id, a.playlist_id, p.title AS playlist_title, a.role, a.created_at
        FROM playlist_accesses a JOIN playlists p ON p.id = a.playlist_id
        WHERE a.user_id = $1 ORDER BY a.created_at, a.id`
	var accesses []models.PlaylistAccess
	if err := sqlx.SelectContext(ctx, r.exec(exec), &accesses, query, userID); err != nil {
		return nil, fmt.Errorf("list playlist accesses: %w", err)
	}
	return accesses, nil
}

// MovePlaylistAccesses re-points playlist accesses from one user to another.
func (r *AccountRelationRepository) MovePlaylistAccesses(ctx context.Context, exec sqlx.ExtContext, fromUserID, toUserID string) ([]models.PlaylistAccess, error) {
	const query = `UPDATE playlist_accesses a SET user_id = $2
        WHERE a.user_id = $1 AND NOT EXISTS (
            SELECT 1 FROM playlist_accesses t WHERE t.user_id = $2 AND t.playlist_id = a.playlist_id)
        RETURNING a.id, a.user_id, a.playlist_id,
            (SELECT title FROM playlists WHERE id = a.playlist_id) AS playlist_title, a.role, a.created_at`
	var moved []models.PlaylistAccess
	if err := sqlx.SelectContext(ctx, r.exec(exec), &moved, query, fromUserID, toUserID); err != nil {
		return nil, fmt.Errorf("move playlist accesses: %w", err)
	}
	return moved, nil
}

// ListLtiAssociations returns the LTI user associations of a user.
func (r *AccountRelationRepository) ListLtiAssociations(ctx context.Context, exec sqlx.ExtContext, userID string) ([]models.LtiUserAssociation, error) {
	const query = `SELECT a.id, a.consumer_site_id, s.name AS consumer_site_name, a.lti_user_id, a.user_id, a.created_at
        FROM lti_user_associations a JOIN consumer_sites s ON s.id = a.consumer_site_id
        WHERE a.user_id = $1 ORDER BY a.created_at, a.id`
	var associations []models.LtiUserAssociation
	if err := sqlx.SelectContext(ctx, r.exec(exec), &associations, query, userID); err != nil {
		return nil, fmt.Errorf("list lti associations: %w", err)
	}
	return associations, nil
}

// MoveLtiAssociations re-points LTI associations from one user to another.
// An association is unique per (consumer site, lti user) so every row moves.
func (r *AccountRelationRepository) MoveLtiAssociations(ctx context.Context, exec sqlx.ExtContext, fromUserID, toUserID string) ([]models.LtiUserAssociation, error) {
	const query = `UPDATE lti_user_associations a SET user_id = $2
        WHERE a.user_id = $1
        RETURNING a.id, a.consumer_site_id,
            (SELECT name FROM consumer_sites WHERE id = a.consumer_site_id) AS consumer_site_name,
            a.lti_user_id, a.user_id, a.created_at`
	var moved []models.LtiUserAssociation
	if err := sqlx.SelectContext(ctx, r.exec(exec), &moved, query, fromUserID, toUserID); err != nil {
		return nil, fmt.Errorf("move lti associations: %w", err)
	}
	return moved, nil
}

// ReassignOwned re-points an ownership column from one user to another and
// returns the id and label of each moved row.
func (r *AccountRelationRepository) ReassignOwned(ctx context.Context, exec sqlx.ExtContext, relation OwnedRelation, fromUserID, toUserID string) ([]OwnedRow, error) {
	owned, ok := ownedRelationColumns[relation]
	if !ok {
		return nil, fmt.Errorf("unknown owned relation %q", relation)
	}
	query := fmt.Sprintf(`UPDATE %[1]s SET %[2]s = $2 WHERE %[2]s = $1 RETURNING id::text AS id, COALESCE(%[3]s, '') AS label`, owned.table, owned.column, owned.label)
	var rows []OwnedRow
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rows, query, fromUserID, toUserID); err != nil {
		return nil, fmt.Errorf("reassign %s: %w", relation, err)
	}
	return rows, nil
}
