package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/marsha-lti/internal/models"
)

// ConsumerSiteRepository reads consumer sites and the passports pointing at them.
type ConsumerSiteRepository struct {
	db *sqlx.DB
}

// NewConsumerSiteRepository constructs the repository.
func NewConsumerSiteRepository(db *sqlx.DB) *ConsumerSiteRepository {
	return &ConsumerSiteRepository{db: db}
}

const consumerSiteColumns = `id, name, domain, disable_vod_conversion, created_at, updated_at, deleted_at`

// FindByID returns a live consumer site.
func (r *ConsumerSiteRepository) FindByID(ctx context.Context, id string) (*models.ConsumerSite, error) {
	query := `SELECT ` + consumerSiteColumns + ` FROM consumer_sites WHERE id = $1 AND deleted_at IS NULL`
	var site models.ConsumerSite
	if err := r.db.GetContext(ctx, &site, query, id); err != nil {
		return nil, err
	}
	return &site, nil
}

// FindByDomain returns the live consumer site registered for a domain.
func (r *ConsumerSiteRepository) FindByDomain(ctx context.Context, domain string) (*models.ConsumerSite, error) {
	query := `SELECT ` + consumerSiteColumns + ` FROM consumer_sites WHERE domain = $1 AND deleted_at IS NULL`
	var site models.ConsumerSite
	if err := r.db.GetContext(ctx, &site, query, domain); err != nil {
		return nil, err
	}
	return &site, nil
}

// FindPassportSite resolves an oauth consumer key to its consumer site. Playlist
// passports resolve through the playlist's consumer site.
func (r *ConsumerSiteRepository) FindPassportSite(ctx context.Context, consumerKey string) (*models.PassportSite, error) {
	const query = `SELECT p.id AS passport_id, p.oauth_consumer_key, p.is_enabled,
        cs.id AS "site.id", cs.name AS "site.name", cs.domain AS "site.domain",
        cs.disable_vod_conversion AS "site.disable_vod_conversion", cs.created_at AS "site.created_at",
        cs.updated_at AS "site.updated_at", cs.deleted_at AS "site.deleted_at"
        FROM lti_passports p
        LEFT JOIN playlists pl ON pl.id = p.playlist_id
        JOIN consumer_sites cs ON cs.id = COALESCE(p.consumer_site_id, pl.consumer_site_id)
        WHERE p.oauth_consumer_key = $1 AND cs.deleted_at IS NULL`
	var passport models.PassportSite
	if err := r.db.GetContext(ctx, &passport, query, consumerKey); err != nil {
		return nil, fmt.Errorf("find passport %s: %w", consumerKey, err)
	}
	return &passport, nil
}
