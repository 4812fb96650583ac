package models

import (
	"sort"
	"time"
)

// ResourceKind identifies the content type stored behind a resource.
type ResourceKind string

const (
	ResourceVideo            ResourceKind = "video"
	ResourceDocument         ResourceKind = "document"
	ResourceMarkdownDocument ResourceKind = "markdown_document"
	ResourceClassroom        ResourceKind = "classroom"
)

// Valid reports whether k is a known kind.
func (k ResourceKind) Valid() bool {
	switch k {
	case ResourceVideo, ResourceDocument, ResourceMarkdownDocument, ResourceClassroom:
		return true
	}
	return false
}

// UploadState tracks the processing lifecycle of a resource's file.
type UploadState string

const (
	UploadPending    UploadState = "pending"
	UploadProcessing UploadState = "processing"
	UploadReady      UploadState = "ready"
	UploadError      UploadState = "error"
)

// Resource is a video, document or any other content living in one playlist.
type Resource struct {
	ID               string       `db:"id" json:"id"`
	Seq              int64        `db:"seq" json:"-"`
	Kind             ResourceKind `db:"kind" json:"kind"`
	PlaylistID       string       `db:"playlist_id" json:"playlist_id"`
	LTIID            string       `db:"lti_id" json:"lti_id"`
	Title            string       `db:"title" json:"title"`
	Description      string       `db:"description" json:"description"`
	UploadState      UploadState  `db:"upload_state" json:"upload_state"`
	UploadedOn       *time.Time   `db:"uploaded_on" json:"uploaded_on,omitempty"`
	DuplicatedFromID *string      `db:"duplicated_from_id" json:"duplicated_from_id,omitempty"`
	CreatedByID      *string      `db:"created_by_id" json:"created_by_id,omitempty"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`
	DeletedAt        *time.Time   `db:"deleted_at" json:"-"`
}

// IsReady reports whether the resource file finished processing.
func (r Resource) IsReady() bool {
	return r.UploadState == UploadReady
}

// ResourceCandidate is a resource sharing an lti_id with a launch, joined with
// the playlist attributes the portability rules need.
type ResourceCandidate struct {
	Resource
	PlaylistLTIID            *string `db:"playlist_lti_id"`
	PlaylistConsumerSiteID   *string `db:"playlist_consumer_site_id"`
	PlaylistOrganizationID   *string `db:"playlist_organization_id"`
	IsPortableToPlaylist     bool    `db:"is_portable_to_playlist"`
	IsPortableToConsumerSite bool    `db:"is_portable_to_consumer_site"`
}

// LatestUploadFirst orders candidates so the authoritative one comes first:
// most recent uploaded_on, never-uploaded last, then creation sequence.
func LatestUploadFirst(a, b ResourceCandidate) bool {
	switch {
	case a.UploadedOn != nil && b.UploadedOn == nil:
		return true
	case a.UploadedOn == nil && b.UploadedOn != nil:
		return false
	case a.UploadedOn != nil && b.UploadedOn != nil && !a.UploadedOn.Equal(*b.UploadedOn):
		return a.UploadedOn.After(*b.UploadedOn)
	}
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.ID < b.ID
}

// MostAuthoritative returns the candidate LatestUploadFirst ranks first.
func MostAuthoritative(candidates []ResourceCandidate) (ResourceCandidate, bool) {
	if len(candidates) == 0 {
		return ResourceCandidate{}, false
	}
	sorted := append([]ResourceCandidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool { return LatestUploadFirst(sorted[i], sorted[j]) })
	return sorted[0], true
}
