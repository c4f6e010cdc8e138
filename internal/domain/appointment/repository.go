package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	pgUniqueViolation = "23505"

	uniqueActiveIndex = "uq_active_appointment_per_user"
)

type appointmentModel struct {
	ID              int64      `gorm:"column:id;primaryKey;autoIncrement"`
	UserName        string     `gorm:"column:user_name;type:varchar(100);not null"`
	AppointmentTime time.Time  `gorm:"column:appointment_time;not null"`
	Status          string     `gorm:"column:status;type:varchar(16);not null;check:ck_appointments_status_valid,status IN ('active','cancelled')"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
	CancelledAt     *time.Time `gorm:"column:cancelled_at"`
}

func (appointmentModel) TableName() string { return "appointments" }

func toDomainAppointment(m appointmentModel) (*Appointment, error) {
	status, err := ParseStatus(m.Status)
	if err != nil {
		return nil, err
	}
	a := &Appointment{
		ID:              m.ID,
		UserName:        m.UserName,
		AppointmentTime: m.AppointmentTime.UTC(),
		Status:          status,
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
	}
	if m.CancelledAt != nil {
		t := m.CancelledAt.UTC()
		a.CancelledAt = &t
	}
	return a, nil
}

func toAppointmentModel(a *Appointment) appointmentModel {
	return appointmentModel{
		ID:              a.ID,
		UserName:        a.UserName,
		AppointmentTime: a.AppointmentTime.UTC(),
		Status:          a.Status.String(),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
		CancelledAt:     a.CancelledAt,
	}
}

// Migrate creates the appointments table and its indexes. The unique index
// covers (user_name, appointment_time, status) for active rows only, so
// cancelled history never collides with itself.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&appointmentModel{}); err != nil {
		return fmt.Errorf("migrate appointments: %w", err)
	}
	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS ` + uniqueActiveIndex + `
			ON appointments (user_name, appointment_time, status)
			WHERE status = 'active'`,
		`CREATE INDEX IF NOT EXISTS ix_appointments_status_time
			ON appointments (status, appointment_time)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migrate appointments indexes: %w", err)
		}
	}
	return nil
}

// Store opens gorm-backed sessions, one database transaction each.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Begin(ctx context.Context) (Session, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &gormSession{tx: tx}, nil
}

type gormSession struct {
	tx *gorm.DB
}

func (s *gormSession) FindActive(ctx context.Context, userName string, at time.Time) (*Appointment, error) {
	var rows []appointmentModel
	err := s.tx.WithContext(ctx).
		Where("user_name = ?", userName).
		Where("appointment_time = ?", at.UTC()).
		Where("status = ?", StatusActive.String()).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return toDomainAppointment(rows[0])
}

func (s *gormSession) Insert(ctx context.Context, a *Appointment) error {
	m := toAppointmentModel(a)
	if err := s.tx.WithContext(ctx).Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return errors.Join(ErrDuplicate, err)
		}
		return err
	}
	created, err := toDomainAppointment(m)
	if err != nil {
		return err
	}
	*a = *created
	return nil
}

func (s *gormSession) GetByID(ctx context.Context, id int64) (*Appointment, error) {
	var m appointmentModel
	err := s.tx.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toDomainAppointment(m)
}

func (s *gormSession) UpdateStatus(ctx context.Context, id int64, status Status, at time.Time) error {
	updates := map[string]any{
		"status":     status.String(),
		"updated_at": at.UTC(),
	}
	if status == StatusCancelled {
		updates["cancelled_at"] = at.UTC()
	}
	err := s.tx.WithContext(ctx).
		Model(&appointmentModel{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil && isUniqueViolation(err) {
		return errors.Join(ErrDuplicate, err)
	}
	return err
}

func (s *gormSession) Count(ctx context.Context, status *Status) (int64, error) {
	var total int64
	err := s.filtered(ctx, status).Count(&total).Error
	return total, err
}

func (s *gormSession) List(ctx context.Context, status *Status, offset, limit int) ([]Appointment, error) {
	var rows []appointmentModel
	err := s.filtered(ctx, status).
		Order("appointment_time ASC").
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]Appointment, 0, len(rows))
	for _, r := range rows {
		a, err := toDomainAppointment(r)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, nil
}

func (s *gormSession) Commit() error {
	if err := s.tx.Commit().Error; err != nil {
		if isUniqueViolation(err) {
			return errors.Join(ErrDuplicate, err)
		}
		return err
	}
	return nil
}

func (s *gormSession) Rollback() error {
	return s.tx.Rollback().Error
}

func (s *gormSession) filtered(ctx context.Context, status *Status) *gorm.DB {
	q := s.tx.WithContext(ctx).Model(&appointmentModel{})
	if status != nil {
		q = q.Where("status = ?", status.String())
	}
	return q
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}

	// postgres "duplicate key value violates unique constraint" and sqlite
	// "UNIQUE constraint failed" both carry this phrase.
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
