package models

import "time"

// Organization owns playlists in standalone mode.
type Organization struct {
	ID        string     `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"-"`
}

// ConsumerSite is an LMS installation launching content through LTI.
type ConsumerSite struct {
	ID                   string     `db:"id" json:"id"`
	Name                 string     `db:"name" json:"name"`
	Domain               string     `db:"domain" json:"domain"`
	DisableVODConversion bool       `db:"disable_vod_conversion" json:"disable_vod_conversion"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt            *time.Time `db:"deleted_at" json:"-"`
}

// LtiPassport identifies a consumer site (or a single playlist) to the LTI
// signature verification layer.
type LtiPassport struct {
	ID               string    `db:"id" json:"id"`
	OAuthConsumerKey string    `db:"oauth_consumer_key" json:"oauth_consumer_key"`
	SharedSecret     string    `db:"shared_secret" json:"-"`
	ConsumerSiteID   *string   `db:"consumer_site_id" json:"consumer_site_id,omitempty"`
	PlaylistID       *string   `db:"playlist_id" json:"playlist_id,omitempty"`
	IsEnabled        bool      `db:"is_enabled" json:"is_enabled"`
	CreatedByID      *string   `db:"created_by_id" json:"created_by_id,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// PassportSite is a passport joined with the consumer site it resolves to.
type PassportSite struct {
	PassportID       string       `db:"passport_id" json:"passport_id"`
	OAuthConsumerKey string       `db:"oauth_consumer_key" json:"oauth_consumer_key"`
	IsEnabled        bool         `db:"is_enabled" json:"is_enabled"`
	Site             ConsumerSite `db:"site" json:"site"`
}
