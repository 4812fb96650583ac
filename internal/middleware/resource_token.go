package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/marsha-lti/internal/models"
	appErrors "github.com/noah-isme/marsha-lti/pkg/errors"
	"github.com/noah-isme/marsha-lti/pkg/response"
)

// ContextClaimsKey is the gin context key storing resource token claims.
const ContextClaimsKey = "resourceClaims"

// TokenValidator parses resource tokens.
type TokenValidator interface {
	Validate(token string) (*models.ResourceClaims, error)
}

// ResourceJWT requires a valid resource token in the Authorization header.
func ResourceJWT(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Abort(c, appErrors.ErrUnauthorized)
			return
		}

		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			response.Abort(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			return
		}

		claims, err := tokens.Validate(strings.TrimSpace(token))
		if err != nil {
			response.Abort(c, err)
			return
		}

		c.Set(ContextClaimsKey, claims)
		c.Next()
	}
}

// Claims returns the resource token claims attached by ResourceJWT.
func Claims(c *gin.Context) (*models.ResourceClaims, bool) {
	value, exists := c.Get(ContextClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*models.ResourceClaims)
	return claims, ok && claims != nil
}

// InstructorOnly rejects tokens not issued to an instructor or administrator.
func InstructorOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			response.Abort(c, appErrors.ErrUnauthorized)
			return
		}
		if !claims.IsInstructor {
			response.Abort(c, appErrors.Clone(appErrors.ErrForbidden, "instructor role required"))
			return
		}
		c.Next()
	}
}
