package dto

import "github.com/noah-isme/marsha-lti/internal/models"

// LaunchRequest carries the LTI launch parameters forwarded by the signature
// verification layer.
type LaunchRequest struct {
	OAuthConsumerKey  string `json:"oauth_consumer_key" form:"oauth_consumer_key" validate:"required"`
	ResourceLinkID    string `json:"resource_link_id" form:"resource_link_id" validate:"required"`
	ResourceLinkTitle string `json:"resource_link_title" form:"resource_link_title"`
	ContextID         string `json:"context_id" form:"context_id" validate:"required"`
	ContextTitle      string `json:"context_title" form:"context_title"`
	UserID            string `json:"user_id" form:"user_id"`
	Roles             string `json:"roles" form:"roles" validate:"required"`
}

// LaunchState reports whether the launch resolved to a resource.
type LaunchState string

const (
	LaunchStateAvailable    LaunchState = "available"
	LaunchStateNotAvailable LaunchState = "not_available"
)

// LaunchResponse is returned to the LTI frontend.
type LaunchResponse struct {
	State        LaunchState         `json:"state"`
	Kind         models.ResourceKind `json:"kind"`
	Resource     *models.Resource    `json:"resource,omitempty"`
	IsInstructor bool                `json:"is_instructor"`
	UserID       *string             `json:"user_id,omitempty"`
	Token        string              `json:"jwt"`
}
