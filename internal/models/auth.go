package models

import "github.com/golang-jwt/jwt/v5"

// ResourcePermissions lists what the token holder may do on the resource.
type ResourcePermissions struct {
	CanUpdate bool `json:"can_update"`
}

// ResourceClaims is the JWT payload handed to the LTI frontend after a launch.
type ResourceClaims struct {
	ResourceID     string              `json:"resource_id,omitempty"`
	ResourceKind   ResourceKind        `json:"resource_kind"`
	PlaylistID     string              `json:"playlist_id,omitempty"`
	ConsumerSiteID string              `json:"consumer_site_id"`
	ContextID      string              `json:"context_id"`
	LTIUserID      string              `json:"lti_user_id,omitempty"`
	UserID         string              `json:"user_id,omitempty"`
	Roles          []string            `json:"roles"`
	IsInstructor   bool                `json:"is_instructor"`
	Permissions    ResourcePermissions `json:"permissions"`
	jwt.RegisteredClaims
}
