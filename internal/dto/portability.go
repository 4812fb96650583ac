package dto

// CreatePortabilityRequest asks for access to another playlist's content.
type CreatePortabilityRequest struct {
	ForPlaylistID string `json:"for_playlist" validate:"required,uuid"`
}
