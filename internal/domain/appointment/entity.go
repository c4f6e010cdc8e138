package appointment

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an appointment. The zero value is not a
// valid status; only StatusActive and StatusCancelled exist.
type Status uint8

const (
	StatusActive Status = iota + 1
	StatusCancelled
)

const (
	statusActiveText    = "active"
	statusCancelledText = "cancelled"
)

// ParseStatus maps the stored/wire representation to a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case statusActiveText:
		return StatusActive, nil
	case statusCancelledText:
		return StatusCancelled, nil
	default:
		return 0, fmt.Errorf("unknown appointment status %q", s)
	}
}

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusCancelled
}

func (s Status) String() string {
	switch s {
	case StatusActive:
		return statusActiveText
	case StatusCancelled:
		return statusCancelledText
	default:
		return "invalid"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid appointment status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Appointment is one booking of a user for an instant. AppointmentTime is
// always UTC.
type Appointment struct {
	ID              int64      `json:"id"`
	UserName        string     `json:"user_name"`
	AppointmentTime time.Time  `json:"appointment_time"`
	Status          Status     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
}

func (a *Appointment) IsActive() bool {
	return a.Status == StatusActive
}

func (a *Appointment) IsCancelled() bool {
	return a.Status == StatusCancelled
}

// ListFilter selects a page of appointments. A nil Status lists every status.
type ListFilter struct {
	Status   *Status
	Page     int
	PageSize int
}

// ListResult is one page plus the filtered total before pagination.
type ListResult struct {
	Items    []Appointment
	Total    int64
	Page     int
	PageSize int
}
