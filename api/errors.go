package api

import (
	"net/http"

	"github.com/Domenick1991/ferrybook/internal/domain"
	"github.com/gin-gonic/gin"
)

// respondError maps the domain error taxonomy to HTTP semantics. Internal
// identifiers beyond the booking code never leak into responses.
func respondError(c *gin.Context, err error) {
	switch {
	case domain.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case domain.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case domain.IsConflict(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case domain.IsAuth(err):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case domain.IsGateway(err):
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable, please retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
