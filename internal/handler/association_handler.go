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

type associationService interface {
	Associate(ctx context.Context, consumerSiteID, ltiUserID, userID string) (*models.LtiUserAssociation, error)
}

// AssociationHandler binds the LTI user of a resource token to an account.
type AssociationHandler struct {
	service  associationService
	validate *validator.Validate
}

func NewAssociationHandler(service associationService, validate *validator.Validate) *AssociationHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &AssociationHandler{service: service, validate: validate}
}

// Create godoc
// @Summary Associate the token's LTI user with an account
// @Tags LTI
// @Security ResourceToken
// @Accept json
// @Produce json
// @Param payload body dto.CreateAssociationRequest true "Account"
// @Success 201 {object} response.Envelope{data=dto.AssociationResponse}
// @Failure 409 {object} response.Envelope
// @Router /lti-user-associations [post]
func (h *AssociationHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if claims.LTIUserID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token carries no lti user"))
		return
	}

	var req dto.CreateAssociationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid association payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid association payload"))
		return
	}

	association, err := h.service.Associate(c.Request.Context(), claims.ConsumerSiteID, claims.LTIUserID, req.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.AssociationResponse{
		ConsumerSiteID: association.ConsumerSiteID,
		LTIUserID:      association.LTIUserID,
		UserID:         association.UserID,
	})
}
