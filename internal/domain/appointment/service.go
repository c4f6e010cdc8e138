package appointment

import (
	"context"
	"errors"
	"math"
	"time"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Service is the booking engine. It holds no per-request state; every
// operation runs in its own store session and the store's uniqueness
// constraint is the only coordination between concurrent requests.
type Service struct {
	sessions        SessionFactory
	policy          *Policy
	clock           Clock
	defaultPageSize int
	maxPageSize     int
}

type Option func(*Service)

func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithPageSizes sets the page size used when a caller gives none and the
// upper bound page sizes are clamped to.
func WithPageSizes(defaultSize, maxSize int) Option {
	return func(s *Service) {
		if defaultSize > 0 {
			s.defaultPageSize = defaultSize
		}
		if maxSize > 0 {
			s.maxPageSize = maxSize
		}
	}
}

func NewService(sessions SessionFactory, policy *Policy, opts ...Option) *Service {
	if policy == nil {
		policy = DefaultPolicy()
	}
	s := &Service{
		sessions:        sessions,
		policy:          policy,
		clock:           SystemClock,
		defaultPageSize: DefaultPageSize,
		maxPageSize:     MaxPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) DefaultPageSize() int { return s.defaultPageSize }

// Book validates client input and creates the appointment. appointmentTime
// must be an ISO-8601 timestamp carrying an offset.
func (s *Service) Book(ctx context.Context, userName, appointmentTime string) (*Appointment, error) {
	name, err := NormalizeUserName(userName)
	if err != nil {
		return nil, err
	}
	at, err := s.policy.Validate(appointmentTime, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, name, at)
}

// Create stores a new active appointment. Inputs are trusted to be
// normalized and policy-checked already.
//
// The FindActive lookup only short-circuits the common duplicate; two
// concurrent requests can both pass it, in which case the store constraint
// rejects the loser at insert or commit time.
func (s *Service) Create(ctx context.Context, userName string, at time.Time) (*Appointment, error) {
	at = at.UTC().Truncate(TimePrecision)

	var created *Appointment
	err := s.inSession(ctx, "create", func(sess Session) error {
		existing, err := sess.FindActive(ctx, userName, at)
		if err != nil {
			return storeError("create: find active", err)
		}
		if existing != nil {
			return ErrAlreadyExists
		}

		a := &Appointment{
			UserName:        userName,
			AppointmentTime: at,
			Status:          StatusActive,
		}
		if err := sess.Insert(ctx, a); err != nil {
			if errors.Is(err, ErrDuplicate) {
				return ErrAlreadyExists
			}
			return storeError("create: insert", err)
		}
		created = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Cancel flips an active appointment to cancelled. Concurrent cancels of the
// same id are last-write-wins: both may report success.
func (s *Service) Cancel(ctx context.Context, id int64) (*Appointment, error) {
	var cancelled *Appointment
	err := s.inSession(ctx, "cancel", func(sess Session) error {
		a, err := sess.GetByID(ctx, id)
		if err != nil {
			return storeError("cancel: get", err)
		}
		if a == nil {
			return ErrNotFound
		}
		if a.IsCancelled() {
			return ErrAlreadyCancelled
		}

		now := s.clock.Now().UTC()
		if err := sess.UpdateStatus(ctx, id, StatusCancelled, now); err != nil {
			return storeError("cancel: update status", err)
		}
		a.Status = StatusCancelled
		a.UpdatedAt = now
		a.CancelledAt = &now
		cancelled = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Appointment, error) {
	var found *Appointment
	err := s.inSession(ctx, "get", func(sess Session) error {
		a, err := sess.GetByID(ctx, id)
		if err != nil {
			return storeError("get", err)
		}
		if a == nil {
			return ErrNotFound
		}
		found = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// List returns one page ordered by appointment time. Page and PageSize must
// be positive (ErrValidation otherwise); PageSize is clamped to the maximum.
// A page whose offset does not fit in an int is ErrValidation.
func (s *Service) List(ctx context.Context, f ListFilter) (*ListResult, error) {
	if f.Page < 1 || f.PageSize < 1 {
		return nil, ErrValidation
	}
	if f.Status != nil && !f.Status.Valid() {
		return nil, ErrValidation
	}
	pageSize := f.PageSize
	if pageSize > s.maxPageSize {
		pageSize = s.maxPageSize
	}
	if f.Page-1 > math.MaxInt/pageSize {
		return nil, ErrValidation
	}
	offset := (f.Page - 1) * pageSize

	res := &ListResult{Page: f.Page, PageSize: pageSize}
	err := s.inSession(ctx, "list", func(sess Session) error {
		total, err := sess.Count(ctx, f.Status)
		if err != nil {
			return storeError("list: count", err)
		}
		items, err := sess.List(ctx, f.Status, offset, pageSize)
		if err != nil {
			return storeError("list: fetch", err)
		}
		res.Total = total
		res.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Items == nil {
		res.Items = []Appointment{}
	}
	return res, nil
}

// inSession runs fn in one store session. The session is rolled back on every
// path that does not end in a successful commit, panics included.
func (s *Service) inSession(ctx context.Context, op string, fn func(Session) error) error {
	sess, err := s.sessions.Begin(ctx)
	if err != nil {
		return storeError(op+": begin", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = sess.Rollback()
		}
	}()

	if err := fn(sess); err != nil {
		return err
	}
	if err := sess.Commit(); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return ErrAlreadyExists
		}
		return storeError(op+": commit", err)
	}
	committed = true
	return nil
}
