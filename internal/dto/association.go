package dto

// CreateAssociationRequest binds the LTI user of the current token to an account.
type CreateAssociationRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

// AssociationResponse describes a stored association.
type AssociationResponse struct {
	ConsumerSiteID string `json:"consumer_site_id"`
	LTIUserID      string `json:"lti_user_id"`
	UserID         string `json:"user_id"`
}
