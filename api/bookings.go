package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/ferrybook/internal/domain"
	"github.com/Domenick1991/ferrybook/internal/service/booking"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type createBookingRequest struct {
	DepartureID int64 `json:"departure_id" binding:"required"`
	Passengers  []struct {
		FullName   string `json:"full_name"`
		IdentityNo string `json:"identity_no"`
	} `json:"passengers" binding:"required"`
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

type passengerResponse struct {
	FullName  string `json:"full_name"`
	SeatLabel string `json:"seat_label,omitempty"`
}

type ticketResponse struct {
	Code        string `json:"code"`
	Status      string `json:"status"`
	QRPayload   string `json:"qr_payload"`
	CheckedInAt string `json:"checked_in_at,omitempty"`
}

type bookingResponse struct {
	Code           string              `json:"code"`
	Status         string              `json:"status"`
	DepartureID    int64               `json:"departure_id"`
	PassengerCount int                 `json:"passenger_count"`
	TotalCents     int64               `json:"total_cents"`
	ExpiresAt      string              `json:"expires_at"`
	Passengers     []passengerResponse `json:"passengers,omitempty"`
	PaymentStatus  string              `json:"payment_status,omitempty"`
	Tickets        []ticketResponse    `json:"tickets,omitempty"`
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("/", h.create)
	router.GET("/:code", h.get)
	router.DELETE("/:code", h.cancel)
}

func (h *BookingHandler) create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := booking.CreateBookingInput{
		DepartureID: req.DepartureID,
		AccountID:   actorFrom(c).AccountID,
	}
	for _, p := range req.Passengers {
		input.Passengers = append(input.Passengers, booking.PassengerInput{
			FullName:   p.FullName,
			IdentityNo: p.IdentityNo,
		})
	}

	detail, err := h.service.Create(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toBookingResponse(detail))
}

func (h *BookingHandler) get(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}

	actor := actorFrom(c)
	if !actor.Admin && actor.AccountID != detail.Booking.AccountID {
		c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrBookingNotFound.Error()})
		return
	}

	c.JSON(http.StatusOK, toBookingResponse(detail))
}

func (h *BookingHandler) cancel(c *gin.Context) {
	var req cancelBookingRequest
	_ = c.ShouldBindJSON(&req)

	updated, err := h.service.Cancel(c.Request.Context(), c.Param("code"), actorFrom(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, bookingResponse{
		Code:           updated.Code,
		Status:         string(updated.Status),
		DepartureID:    updated.DepartureID,
		PassengerCount: updated.PassengerCount,
		TotalCents:     updated.TotalCents,
		ExpiresAt:      updated.ExpiresAt.Format(time.RFC3339),
	})
}

func toBookingResponse(detail *booking.BookingDetail) bookingResponse {
	resp := bookingResponse{
		Code:           detail.Booking.Code,
		Status:         string(detail.Booking.Status),
		DepartureID:    detail.Booking.DepartureID,
		PassengerCount: detail.Booking.PassengerCount,
		TotalCents:     detail.Booking.TotalCents,
		ExpiresAt:      detail.Booking.ExpiresAt.Format(time.RFC3339),
	}
	for _, p := range detail.Passengers {
		resp.Passengers = append(resp.Passengers, passengerResponse{FullName: p.FullName, SeatLabel: p.SeatLabel})
	}
	if detail.Payment != nil {
		resp.PaymentStatus = string(detail.Payment.Status)
	}
	for _, t := range detail.Tickets {
		tr := ticketResponse{Code: t.Code, Status: string(t.Status), QRPayload: t.QRPayload}
		if t.CheckedInAt != nil {
			tr.CheckedInAt = t.CheckedInAt.Format(time.RFC3339)
		}
		resp.Tickets = append(resp.Tickets, tr)
	}
	return resp
}
