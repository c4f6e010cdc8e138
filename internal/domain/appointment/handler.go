package appointment

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"appointments/internal/pkg/metrics"
	"appointments/internal/pkg/response"
	"appointments/internal/pkg/validator"
)

type Handler struct {
	service *Service
	metrics *metrics.Metrics
}

// NewHandler builds the HTTP handler. m may be nil.
func NewHandler(service *Service, m *metrics.Metrics) *Handler {
	return &Handler{service: service, metrics: m}
}

// Create godoc
// @Summary		Create appointment
// @Tags		Appointments
// @Accept		json
// @Produce		json
// @Param		request	body		CreateAppointmentRequest	true	"Appointment data"
// @Success		201		{object}	map[string]interface{}
// @Failure		400		{object}	map[string]interface{}
// @Failure		409		{object}	map[string]interface{}
// @Router		/appointments [POST]
func (h *Handler) Create(c *gin.Context) {
	var req CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.reject("create", "validation")
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		h.reject("create", "validation")
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", errs)
		return
	}

	a, err := h.service.Book(c.Request.Context(), req.UserName, req.AppointmentTime)
	if err != nil {
		h.respondError(c, "create", err)
		return
	}

	if h.metrics != nil {
		h.metrics.AppointmentsCreated.Inc()
	}
	response.Success(c, http.StatusCreated, gin.H{"id": a.ID})
}

// List godoc
// @Summary		List appointments
// @Tags		Appointments
// @Produce		json
// @Param		status		query		string	false	"active or cancelled"
// @Param		page		query		int		false	"Page number"	default(1)
// @Param		page_size	query		int		false	"Page size"		default(10)
// @Success		200			{object}	map[string]interface{}
// @Failure		400			{object}	map[string]interface{}
// @Router		/appointments [GET]
func (h *Handler) List(c *gin.Context) {
	q := ListAppointmentsQuery{Page: 1, PageSize: h.service.DefaultPageSize()}
	if err := c.ShouldBindQuery(&q); err != nil {
		h.reject("list", "validation")
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid query parameters")
		return
	}
	if errs := validator.Validate(q); errs != nil {
		h.reject("list", "validation")
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid query parameters", errs)
		return
	}
	filter, err := q.toFilter()
	if err != nil {
		h.respondError(c, "list", err)
		return
	}

	res, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, "list", err)
		return
	}

	response.Success(c, http.StatusOK, toListResponse(res))
}

// Get godoc
// @Summary		Get appointment
// @Tags		Appointments
// @Produce		json
// @Param		id	path		int	true	"Appointment ID"
// @Success		200	{object}	map[string]interface{}
// @Failure		404	{object}	map[string]interface{}
// @Router		/appointments/{id} [GET]
func (h *Handler) Get(c *gin.Context) {
	id, ok := h.parseID(c, "get")
	if !ok {
		return
	}

	a, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "get", err)
		return
	}

	response.Success(c, http.StatusOK, toAppointmentResponse(a))
}

// Cancel godoc
// @Summary		Cancel appointment
// @Tags		Appointments
// @Produce		json
// @Param		id	path		int	true	"Appointment ID"
// @Success		200	{object}	map[string]interface{}
// @Failure		400	{object}	map[string]interface{}
// @Failure		404	{object}	map[string]interface{}
// @Router		/appointments/{id}/cancel [PATCH]
func (h *Handler) Cancel(c *gin.Context) {
	id, ok := h.parseID(c, "cancel")
	if !ok {
		return
	}

	a, err := h.service.Cancel(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "cancel", err)
		return
	}

	if h.metrics != nil {
		h.metrics.AppointmentsCancelled.Inc()
	}
	response.Success(c, http.StatusOK, CancelAppointmentResponse{
		ID:      a.ID,
		Status:  a.Status.String(),
		Message: "Appointment cancelled",
	})
}

func (h *Handler) parseID(c *gin.Context, op string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.reject(op, "validation")
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid appointment id")
		return 0, false
	}
	return id, true
}

// respondError maps engine errors to responses. Anything that is not a
// business outcome is attached to the context for ErrorLogger and answered
// with a generic body.
func (h *Handler) respondError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		h.reject(op, "validation")
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid data")
	case errors.Is(err, ErrAlreadyExists):
		h.reject(op, "already_exists")
		response.Error(c, http.StatusConflict, "APPOINTMENT_EXISTS", "Appointment already exists for the selected time")
	case errors.Is(err, ErrNotFound):
		h.reject(op, "not_found")
		response.Error(c, http.StatusNotFound, "APPOINTMENT_NOT_FOUND", "Appointment not found")
	case errors.Is(err, ErrAlreadyCancelled):
		h.reject(op, "already_cancelled")
		response.Error(c, http.StatusBadRequest, "APPOINTMENT_ALREADY_CANCELLED", "Appointment is already cancelled")
	default:
		if h.metrics != nil {
			h.metrics.StoreFailures.WithLabelValues(op).Inc()
		}
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

func (h *Handler) reject(op, reason string) {
	if h.metrics != nil {
		h.metrics.Rejections.WithLabelValues(op, reason).Inc()
	}
}
