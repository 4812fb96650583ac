package models

import (
	"strings"
	"time"
)

// User is an authentication principal.
type User struct {
	ID         string    `db:"id" json:"id"`
	Username   string    `db:"username" json:"username"`
	Email      *string   `db:"email" json:"email,omitempty"`
	FullName   string    `db:"full_name" json:"full_name"`
	DateJoined time.Time `db:"date_joined" json:"date_joined"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// SocialIdentity links a user to one external SSO provider uid.
type SocialIdentity struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Provider   string    `db:"provider" json:"provider"`
	UID        string    `db:"uid" json:"uid"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	ModifiedAt time.Time `db:"modified_at" json:"modified_at"`
}

// SocialUID is the "<org_uid>:<email>" convention used by SAML providers.
// Either half may be absent.
type SocialUID struct {
	OrgUID *string
	Email  *string
}

// ParseSocialUID splits uid on its first colon.
func ParseSocialUID(uid string) SocialUID {
	org, email, found := strings.Cut(uid, ":")
	parsed := SocialUID{OrgUID: &org}
	if found {
		parsed.Email = &email
	}
	return parsed
}

// String formats the uid back to its stored form.
func (u SocialUID) String() string {
	var b strings.Builder
	if u.OrgUID != nil {
		b.WriteString(*u.OrgUID)
	}
	if u.Email != nil {
		b.WriteByte(':')
		b.WriteString(*u.Email)
	}
	return b.String()
}

// OrgUIDValue returns the organization uid or "" when absent.
func (u SocialUID) OrgUIDValue() string {
	if u.OrgUID == nil {
		return ""
	}
	return *u.OrgUID
}

// SameAccountAs reports whether both uids name the same account under a
// different organization uid: prefixes differ, email suffixes are equal.
func (u SocialUID) SameAccountAs(other SocialUID) bool {
	if u.Email == nil || other.Email == nil || *u.Email != *other.Email {
		return false
	}
	return !equalPtr(u.OrgUID, other.OrgUID)
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// OrganizationAccess grants a user a role in an organization.
type OrganizationAccess struct {
	ID               string    `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"user_id"`
	OrganizationID   string    `db:"organization_id" json:"organization_id"`
	OrganizationName string    `db:"organization_name" json:"organization_name"`
	Role             string    `db:"role" json:"role"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// ConsumerSiteAccess grants a user a role on a consumer site.
type ConsumerSiteAccess struct {
	ID               string    `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"user_id"`
	ConsumerSiteID   string    `db:"consumer_site_id" json:"consumer_site_id"`
	ConsumerSiteName string    `db:"consumer_site_name" json:"consumer_site_name"`
	Role             string    `db:"role" json:"role"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// PlaylistAccess grants a user a role on a playlist.
type PlaylistAccess struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	PlaylistID    string    `db:"playlist_id" json:"playlist_id"`
	PlaylistTitle string    `db:"playlist_title" json:"playlist_title"`
	Role          string    `db:"role" json:"role"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// LtiUserAssociation binds an LTI user of a consumer site to one user.
type LtiUserAssociation struct {
	ID               string    `db:"id" json:"id"`
	ConsumerSiteID   string    `db:"consumer_site_id" json:"consumer_site_id"`
	ConsumerSiteName string    `db:"consumer_site_name" json:"consumer_site_name,omitempty"`
	LTIUserID        string    `db:"lti_user_id" json:"lti_user_id"`
	UserID           string    `db:"user_id" json:"user_id"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}
