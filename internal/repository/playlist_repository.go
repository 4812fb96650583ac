package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/marsha-lti/internal/models"
)

// PlaylistRepository persists playlists and their portability grants.
type PlaylistRepository struct {
	db *sqlx.DB
}

// NewPlaylistRepository constructs the repository.
func NewPlaylistRepository(db *sqlx.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

func (r *PlaylistRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const playlistColumns = `id, title, lti_id, consumer_site_id, organization_id, created_by_id,
        is_portable_to_playlist, is_portable_to_consumer_site, is_public, is_claimable,
        created_at, updated_at, deleted_at`

// FindByID returns a live playlist.
func (r *PlaylistRepository) FindByID(ctx context.Context, id string) (*models.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE id = $1 AND deleted_at IS NULL`
	var playlist models.Playlist
	if err := r.db.GetContext(ctx, &playlist, query, id); err != nil {
		return nil, err
	}
	return &playlist, nil
}

// FindByLTI returns the live playlist bound to a (consumer site, course) pair.
func (r *PlaylistRepository) FindByLTI(ctx context.Context, exec sqlx.ExtContext, consumerSiteID, ltiID string) (*models.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists
        WHERE consumer_site_id = $1 AND lti_id = $2 AND deleted_at IS NULL`
	var playlist models.Playlist
	if err := sqlx.GetContext(ctx, r.exec(exec), &playlist, query, consumerSiteID, ltiID); err != nil {
		return nil, err
	}
	return &playlist, nil
}

// GetOrCreateLTI inserts the playlist unless one already exists for its
// (consumer site, lti id) pair, in which case playlist is overwritten with the
// stored row. It reports whether a row was inserted.
func (r *PlaylistRepository) GetOrCreateLTI(ctx context.Context, exec sqlx.ExtContext, playlist *models.Playlist) (bool, error) {
	if playlist == nil || playlist.ConsumerSiteID == nil || playlist.LTIID == nil {
		return false, fmt.Errorf("playlist consumer site and lti id are required")
	}
	if playlist.ID == "" {
		playlist.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	playlist.CreatedAt = now
	playlist.UpdatedAt = now

	target := r.exec(exec)
	const insert = `INSERT INTO playlists (id, title, lti_id, consumer_site_id, organization_id, created_by_id,
        is_portable_to_playlist, is_portable_to_consumer_site, is_public, is_claimable, created_at, updated_at)
        VALUES (:id, :title, :lti_id, :consumer_site_id, :organization_id, :created_by_id,
        :is_portable_to_playlist, :is_portable_to_consumer_site, :is_public, :is_claimable, :created_at, :updated_at)
        ON CONFLICT (consumer_site_id, lti_id) WHERE deleted_at IS NULL AND lti_id IS NOT NULL DO NOTHING`
	result, err := sqlx.NamedExecContext(ctx, target, insert, playlist)
	if err != nil {
		return false, fmt.Errorf("insert lti playlist: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("lti playlist rows affected: %w", err)
	}
	if affected == 1 {
		return true, nil
	}

	existing, err := r.FindByLTI(ctx, target, *playlist.ConsumerSiteID, *playlist.LTIID)
	if err != nil {
		return false, fmt.Errorf("load concurrent lti playlist: %w", err)
	}
	*playlist = *existing
	return false, nil
}

// ListPortableSources returns the playlists granted portability into target.
func (r *PlaylistRepository) ListPortableSources(ctx context.Context, exec sqlx.ExtContext, targetPlaylistID string) ([]string, error) {
	const query = `SELECT source_playlist_id FROM playlist_portabilities WHERE target_playlist_id = $1 ORDER BY created_at`
	var sources []string
	if err := sqlx.SelectContext(ctx, r.exec(exec), &sources, query, targetPlaylistID); err != nil {
		return nil, fmt.Errorf("list playlist portabilities: %w", err)
	}
	return sources, nil
}

// CreatePortability records a source→target grant. Existing grants are kept.
func (r *PlaylistRepository) CreatePortability(ctx context.Context, exec sqlx.ExtContext, portability *models.PlaylistPortability) error {
	if portability.ID == "" {
		portability.ID = uuid.NewString()
	}
	if portability.CreatedAt.IsZero() {
		portability.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO playlist_portabilities (id, source_playlist_id, target_playlist_id, created_at)
        VALUES (:id, :source_playlist_id, :target_playlist_id, :created_at)
        ON CONFLICT (source_playlist_id, target_playlist_id) DO NOTHING`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, portability); err != nil {
		return fmt.Errorf("create playlist portability: %w", err)
	}
	return nil
}

// SoftDelete stamps deleted_at on a playlist.
func (r *PlaylistRepository) SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	return deleteByID(ctx, r.exec(exec), "playlists", models.PlaylistDeletion, id)
}
