package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-crm-api/internal/middleware"
	"github.com/noah-isme/student-crm-api/internal/models"
)

// claimsFromContext returns the claims the JWT middleware stored, or nil on
// routes that ran without it.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, _ := value.(*models.JWTClaims)
	return claims
}
