package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/marsha-lti/internal/models"
	appErrors "github.com/noah-isme/marsha-lti/pkg/errors"
)

type resourceReader interface {
	FindByID(ctx context.Context, id string) (*models.Resource, error)
}

// ResourceService serves resources to resource token holders.
type ResourceService struct {
	resources resourceReader
}

func NewResourceService(resources resourceReader) *ResourceService {
	return &ResourceService{resources: resources}
}

// Get returns the resource when the token was issued for it or for its
// playlist.
func (s *ResourceService) Get(ctx context.Context, claims *models.ResourceClaims, id string) (*models.Resource, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	resource, err := s.resources.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "resource not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resource")
	}
	if claims.ResourceID != resource.ID && (claims.PlaylistID == "" || claims.PlaylistID != resource.PlaylistID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token does not grant access to this resource")
	}
	return resource, nil
}
