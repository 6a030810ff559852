package api

import (
	"net/http"
	"strconv"

	"github.com/Domenick1991/ferrybook/internal/service/departures"
	"github.com/gin-gonic/gin"
)

type DepartureHandler struct {
	service departures.DepartureUseCase
}

func NewDepartureHandler(service departures.DepartureUseCase) *DepartureHandler {
	return &DepartureHandler{service: service}
}

func (h *DepartureHandler) Register(router *gin.RouterGroup) {
	router.GET("/", h.list)
	router.GET("/:id", h.get)
}

func (h *DepartureHandler) list(c *gin.Context) {
	departures, err := h.service.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, departures)
}

func (h *DepartureHandler) get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	departure, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, departure)
}
