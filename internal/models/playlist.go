package models

import "time"

// Playlist groups resources. LTI playlists are bound to one consumer site and
// one external course identifier.
type Playlist struct {
	ID                       string     `db:"id" json:"id"`
	Title                    string     `db:"title" json:"title"`
	LTIID                    *string    `db:"lti_id" json:"lti_id,omitempty"`
	ConsumerSiteID           *string    `db:"consumer_site_id" json:"consumer_site_id,omitempty"`
	OrganizationID           *string    `db:"organization_id" json:"organization_id,omitempty"`
	CreatedByID              *string    `db:"created_by_id" json:"created_by_id,omitempty"`
	IsPortableToPlaylist     bool       `db:"is_portable_to_playlist" json:"is_portable_to_playlist"`
	IsPortableToConsumerSite bool       `db:"is_portable_to_consumer_site" json:"is_portable_to_consumer_site"`
	IsPublic                 bool       `db:"is_public" json:"is_public"`
	IsClaimable              bool       `db:"is_claimable" json:"is_claimable"`
	CreatedAt                time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt                *time.Time `db:"deleted_at" json:"-"`
}

// PlaylistPortability is a permanent grant letting resources of the source
// playlist be duplicated into the target playlist.
type PlaylistPortability struct {
	ID               string    `db:"id" json:"id"`
	SourcePlaylistID string    `db:"source_playlist_id" json:"source_playlist_id"`
	TargetPlaylistID string    `db:"target_playlist_id" json:"target_playlist_id"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// PortabilityRequestState enumerates the request lifecycle.
type PortabilityRequestState string

const (
	PortabilityPending  PortabilityRequestState = "pending"
	PortabilityAccepted PortabilityRequestState = "accepted"
	PortabilityRejected PortabilityRequestState = "rejected"
)

// PortabilityRequest asks the owners of ForPlaylist to let FromPlaylist reuse its content.
type PortabilityRequest struct {
	ID                    string                  `db:"id" json:"id"`
	ForPlaylistID         string                  `db:"for_playlist_id" json:"for_playlist_id"`
	FromPlaylistID        string                  `db:"from_playlist_id" json:"from_playlist_id"`
	FromLTIConsumerSiteID *string                 `db:"from_lti_consumer_site_id" json:"from_lti_consumer_site_id,omitempty"`
	FromLTIUserID         *string                 `db:"from_lti_user_id" json:"from_lti_user_id,omitempty"`
	FromUserID            *string                 `db:"from_user_id" json:"from_user_id,omitempty"`
	UpdatedByUserID       *string                 `db:"updated_by_user_id" json:"updated_by_user_id,omitempty"`
	State                 PortabilityRequestState `db:"state" json:"state"`
	CreatedAt             time.Time               `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time               `db:"updated_at" json:"updated_at"`
}
