package appointment

import (
	"context"
	"time"
)

// Session is a transaction-scoped handle to the appointment store. Every
// session ends with exactly one Commit or Rollback.
type Session interface {
	// FindActive returns the active appointment for the pair, or nil.
	FindActive(ctx context.Context, userName string, at time.Time) (*Appointment, error)
	// Insert persists a and fills its identifier. Uniqueness violations are
	// reported as ErrDuplicate.
	Insert(ctx context.Context, a *Appointment) error
	// GetByID returns the appointment, or nil when it does not exist.
	GetByID(ctx context.Context, id int64) (*Appointment, error)
	UpdateStatus(ctx context.Context, id int64, status Status, at time.Time) error
	Count(ctx context.Context, status *Status) (int64, error)
	// List returns appointments ordered by appointment time, then id.
	List(ctx context.Context, status *Status, offset, limit int) ([]Appointment, error)
	// Commit reports deferred uniqueness violations as ErrDuplicate.
	Commit() error
	Rollback() error
}

// SessionFactory opens sessions; one per public operation.
type SessionFactory interface {
	Begin(ctx context.Context) (Session, error)
}

type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })
