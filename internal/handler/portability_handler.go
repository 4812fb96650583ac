package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/marsha-lti/internal/dto"
	"github.com/noah-isme/marsha-lti/internal/models"
	appErrors "github.com/noah-isme/marsha-lti/pkg/errors"
	"github.com/noah-isme/marsha-lti/pkg/response"
)

type portabilityService interface {
	Request(ctx context.Context, claims *models.ResourceClaims, forPlaylistID string) (*models.PortabilityRequest, error)
	Accept(ctx context.Context, claims *models.ResourceClaims, id string) (*models.PortabilityRequest, error)
	Reject(ctx context.Context, claims *models.ResourceClaims, id string) (*models.PortabilityRequest, error)
}

// PortabilityHandler exposes portability request endpoints.
type PortabilityHandler struct {
	service  portabilityService
	validate *validator.Validate
}

func NewPortabilityHandler(service portabilityService, validate *validator.Validate) *PortabilityHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &PortabilityHandler{service: service, validate: validate}
}

// Create godoc
// @Summary Request portability to another playlist
// @Tags Portability
// @Security ResourceToken
// @Accept json
// @Produce json
// @Param payload body dto.CreatePortabilityRequest true "Target playlist"
// @Success 201 {object} response.Envelope{data=models.PortabilityRequest}
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /portability-requests [post]
func (h *PortabilityHandler) Create(c *gin.Context) {
	var req dto.CreatePortabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid portability payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid portability payload"))
		return
	}

	request, err := h.service.Request(c.Request.Context(), claimsFromContext(c), req.ForPlaylistID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// Accept godoc
// @Summary Accept a portability request
// @Tags Portability
// @Security ResourceToken
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope{data=models.PortabilityRequest}
// @Failure 403 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /portability-requests/{id}/accept [post]
func (h *PortabilityHandler) Accept(c *gin.Context) {
	request, err := h.service.Accept(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, request)
}

// Reject godoc
// @Summary Reject a portability request
// @Tags Portability
// @Security ResourceToken
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope{data=models.PortabilityRequest}
// @Failure 403 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /portability-requests/{id}/reject [post]
func (h *PortabilityHandler) Reject(c *gin.Context) {
	request, err := h.service.Reject(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, request)
}
