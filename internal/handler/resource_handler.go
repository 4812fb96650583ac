package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/marsha-lti/internal/models"
	"github.com/noah-isme/marsha-lti/pkg/response"
)

type resourceService interface {
	Get(ctx context.Context, claims *models.ResourceClaims, id string) (*models.Resource, error)
}

// ResourceHandler exposes resources to resource token holders.
type ResourceHandler struct {
	service resourceService
}

func NewResourceHandler(service resourceService) *ResourceHandler {
	return &ResourceHandler{service: service}
}

// Get godoc
// @Summary Get a resource
// @Tags Resources
// @Security ResourceToken
// @Produce json
// @Param id path string true "Resource ID"
// @Success 200 {object} response.Envelope{data=models.Resource}
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /resources/{id} [get]
func (h *ResourceHandler) Get(c *gin.Context) {
	resource, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, resource)
}
