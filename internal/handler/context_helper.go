package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/marsha-lti/internal/middleware"
	"github.com/noah-isme/marsha-lti/internal/models"
)

func claimsFromContext(c *gin.Context) *models.ResourceClaims {
	claims, ok := middleware.Claims(c)
	if !ok {
		return nil
	}
	return claims
}
