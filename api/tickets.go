package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/Domenick1991/ferrybook/internal/domain"
	"github.com/Domenick1991/ferrybook/internal/service/ticket"
	"github.com/gin-gonic/gin"
)

type TicketHandler struct {
	service ticket.TicketUseCase
}

type validationResponse struct {
	Valid         string `json:"valid"`
	Reason        string `json:"reason,omitempty"`
	TicketCode    string `json:"ticket_code"`
	BookingCode   string `json:"booking_code,omitempty"`
	PassengerName string `json:"passenger_name,omitempty"`
	SeatLabel     string `json:"seat_label,omitempty"`
	DepartureTime string `json:"departure_time,omitempty"`
	CheckedInAt   string `json:"checked_in_at,omitempty"`
}

func NewTicketHandler(service ticket.TicketUseCase) *TicketHandler {
	return &TicketHandler{service: service}
}

func (h *TicketHandler) Register(router *gin.RouterGroup) {
	router.GET("/:code/validate", h.validate)
	router.POST("/:code/checkin", h.checkIn)
}

func (h *TicketHandler) validate(c *gin.Context) {
	result, err := h.service.Validate(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toValidationResponse(c.Param("code"), result))
}

func (h *TicketHandler) checkIn(c *gin.Context) {
	operatorID := actorFrom(c).AccountID
	if operatorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "operator identity is required"})
		return
	}

	result, err := h.service.CheckIn(c.Request.Context(), c.Param("code"), operatorID)
	if err != nil {
		if errors.Is(err, domain.ErrTicketAlreadyUsed) && result != nil {
			resp := toValidationResponse(c.Param("code"), result.Validation)
			resp.Valid = "false"
			resp.Reason = "ticket already used"
			if result.Ticket.CheckedInAt != nil {
				resp.CheckedInAt = result.Ticket.CheckedInAt.Format(time.RFC3339)
			}
			c.JSON(http.StatusConflict, resp)
			return
		}
		respondError(c, err)
		return
	}

	resp := toValidationResponse(c.Param("code"), result.Validation)
	resp.Valid = "true"
	resp.CheckedInAt = result.CheckedInAt.Format(time.RFC3339)
	c.JSON(http.StatusOK, resp)
}

func toValidationResponse(code string, v *ticket.ValidationResult) validationResponse {
	resp := validationResponse{
		Valid:      "false",
		Reason:     v.Reason,
		TicketCode: code,
	}
	if v.OK {
		resp.Valid = "true"
	}
	if v.BookingCode != "" {
		resp.BookingCode = v.BookingCode
	}
	if !v.DepartureTime.IsZero() {
		resp.DepartureTime = v.DepartureTime.Format(time.RFC3339)
	}
	if v.Passenger != nil {
		resp.PassengerName = v.Passenger.FullName
		resp.SeatLabel = v.Passenger.SeatLabel
	}
	if v.CheckedInAt != nil {
		resp.CheckedInAt = v.CheckedInAt.Format(time.RFC3339)
	}
	return resp
}
