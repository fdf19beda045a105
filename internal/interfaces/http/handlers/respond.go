// internal/interfaces/http/handlers/respond.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/your-org/pos-backend/internal/pkg/apperr"
)

// respondError maps a service error onto the HTTP status and payload shape
// shared by every endpoint
func respondError(c *gin.Context, err error) {
	payload := gin.H{
		"error": err.Error(),
	}
	if details := apperr.Details(err); len(details) > 0 {
		payload["details"] = details
	}
	c.JSON(apperr.HTTPStatus(err), payload)
}
