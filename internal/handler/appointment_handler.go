package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-workflow-api/internal/dto"
	"github.com/noah-isme/clinic-workflow-api/internal/models"
	"github.com/noah-isme/clinic-workflow-api/pkg/response"
)

type appointmentService interface {
	Create(ctx context.Context, req dto.CreateAppointmentRequest, actor *models.Actor) (*models.Appointment, error)
	Get(ctx context.Context, id int64) (*models.Appointment, error)
	Update(ctx context.Context, id int64, req dto.UpdateAppointmentRequest, actor *models.Actor) (*models.Appointment, error)
}

// AppointmentHandler exposes booking and scheduling endpoints.
type AppointmentHandler struct {
	service appointmentService
}

// NewAppointmentHandler constructs the handler.
func NewAppointmentHandler(service appointmentService) *AppointmentHandler {
	return &AppointmentHandler{service: service}
}

// Create godoc
// @Summary Book an appointment
// @Description Public booking; a bearer token, when present, attributes the booking to the caller.
// @Tags Appointments
// @Accept json
// @Produce json
// @Param payload body dto.CreateAppointmentRequest true "Booking"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /appointments [post]
func (h *AppointmentHandler) Create(c *gin.Context) {
	var req dto.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid appointment payload"))
		return
	}
	appointment, err := h.service.Create(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "appointment booked", appointment)
}

// Get godoc
// @Summary Get appointment
// @Tags Appointments
// @Produce json
// @Param id path int true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /appointments/{id} [get]
func (h *AppointmentHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	appointment, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appointment, nil)
}

// Update godoc
// @Summary Update or reschedule an appointment
// @Description Applies a partial patch of status, date, time, staff and branch.
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path int true "Appointment ID"
// @Param payload body dto.UpdateAppointmentRequest true "Patch"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /appointments/{id} [patch]
func (h *AppointmentHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UpdateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid appointment patch"))
		return
	}
	appointment, err := h.service.Update(c.Request.Context(), id, req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "appointment updated", appointment)
}
