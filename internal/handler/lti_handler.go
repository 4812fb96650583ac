package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/marsha-lti/internal/dto"
	"github.com/noah-isme/marsha-lti/internal/models"
	appErrors "github.com/noah-isme/marsha-lti/pkg/errors"
	"github.com/noah-isme/marsha-lti/pkg/response"
)

type launchService interface {
	Launch(ctx context.Context, kind models.ResourceKind, req dto.LaunchRequest) (*dto.LaunchResponse, error)
}

// LtiHandler serves LTI launches forwarded by the signature verification
// layer.
type LtiHandler struct {
	service launchService
}

func NewLtiHandler(service launchService) *LtiHandler {
	return &LtiHandler{service: service}
}

// Launch godoc
// @Summary Resolve an LTI launch
// @Description Returns the resource the launch lands on and a resource token. Students launching a link with no portable content get state not_available.
// @Tags LTI
// @Accept x-www-form-urlencoded
// @Accept json
// @Produce json
// @Param kind path string true "Resource kind" Enums(video, document, markdown_document, classroom)
// @Param payload body dto.LaunchRequest true "Launch parameters"
// @Success 200 {object} response.Envelope{data=dto.LaunchResponse}
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /lti/{kind}/launch [post]
func (h *LtiHandler) Launch(c *gin.Context) {
	var req dto.LaunchRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid launch payload"))
		return
	}

	resp, err := h.service.Launch(c.Request.Context(), models.ResourceKind(c.Param("kind")), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, resp)
}
