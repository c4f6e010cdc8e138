package appointment

import "time"

// CreateAppointmentRequest is the POST body. appointment_time must carry an
// offset, e.g. "2025-06-10T14:00:00-03:00".
type CreateAppointmentRequest struct {
	UserName        string `json:"user_name" validate:"required"`
	AppointmentTime string `json:"appointment_time" validate:"required"`
}

type ListAppointmentsQuery struct {
	Status   string `form:"status" validate:"omitempty,oneof=active cancelled"`
	Page     int    `form:"page" validate:"gte=1,lte=1000000"`
	PageSize int    `form:"page_size" validate:"gte=1"`
}

func (q ListAppointmentsQuery) toFilter() (ListFilter, error) {
	f := ListFilter{Page: q.Page, PageSize: q.PageSize}
	if q.Status != "" {
		st, err := ParseStatus(q.Status)
		if err != nil {
			return ListFilter{}, ErrValidation
		}
		f.Status = &st
	}
	return f, nil
}

type AppointmentResponse struct {
	ID              int64   `json:"id"`
	UserName        string  `json:"user_name"`
	AppointmentTime string  `json:"appointment_time"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
	CancelledAt     *string `json:"cancelled_at,omitempty"`
}

type ListAppointmentsResponse struct {
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
	Total    int64                 `json:"total"`
	Items    []AppointmentResponse `json:"items"`
}

type CancelAppointmentResponse struct {
	ID      int64  `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// formatTime keeps sub-second digits, so distinct instants never render
// alike.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func toAppointmentResponse(a *Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:              a.ID,
		UserName:        a.UserName,
		AppointmentTime: formatTime(a.AppointmentTime),
		Status:          a.Status.String(),
		CreatedAt:       formatTime(a.CreatedAt),
	}
	if a.CancelledAt != nil {
		s := formatTime(*a.CancelledAt)
		resp.CancelledAt = &s
	}
	return resp
}

func toListResponse(res *ListResult) ListAppointmentsResponse {
	items := make([]AppointmentResponse, 0, len(res.Items))
	for i := range res.Items {
		items = append(items, toAppointmentResponse(&res.Items[i]))
	}
	return ListAppointmentsResponse{
		Page:     res.Page,
		PageSize: res.PageSize,
		Total:    res.Total,
		Items:    items,
	}
}
