package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"appointments/internal/config"
	"appointments/internal/database"
	"appointments/internal/domain/appointment"
	"appointments/internal/pkg/logger"
)

var demoUsers = []string{
	"Ana Lopez", "Bruno Diaz", "Carla Gomez", "Diego Fernandez",
	"Elena Ruiz", "Facundo Perez", "Gabriela Sosa", "Hernan Castro",
}

func main() {
	day := flag.String("day", "", "local date to fill, YYYY-MM-DD (default: tomorrow)")
	step := flag.Duration("step", 30*time.Minute, "spacing between demo appointments")
	cancelEvery := flag.Int("cancel-every", 4, "cancel every n-th created appointment, 0 to disable")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.New("info").Fatal("invalid configuration", "error", err)
	}
	log := logger.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	db, err := database.ConnectWithPool(cfg.Database.URL, database.PoolConfig{}, log)
	if err != nil {
		log.Fatal("db connect failed", "error", err)
	}
	defer func() { _ = database.Close(db) }()

	if err := appointment.Migrate(db); err != nil {
		log.Fatal("migration failed", "error", err)
	}

	policy := appointment.NewPolicy(cfg.Booking.MinAdvance, cfg.Booking.UTCOffset, cfg.Booking.OpenAt, cfg.Booking.CloseAt)
	svc := appointment.NewService(appointment.NewStore(db), policy)

	date, err := seedDate(*day, policy.Location)
	if err != nil {
		log.Fatal("invalid -day", "error", err)
	}

	ctx := context.Background()
	var created, skipped, cancelled int
	for i, at := range daySlots(date, cfg.Booking.OpenAt, cfg.Booking.CloseAt, *step) {
		user := demoUsers[i%len(demoUsers)]
		a, err := svc.Book(ctx, user, at.Format(time.RFC3339))
		switch {
		case errors.Is(err, appointment.ErrAlreadyExists), errors.Is(err, appointment.ErrValidation):
			skipped++
			continue
		case err != nil:
			log.Fatal("seed failed", "user", user, "at", at, "error", err)
		}
		created++

		if *cancelEvery > 0 && created%*cancelEvery == 0 {
			if _, err := svc.Cancel(ctx, a.ID); err != nil {
				log.Fatal("seed cancel failed", "id", a.ID, "error", err)
			}
			cancelled++
		}
	}

	log.Info("seed completed", "day", date.Format("2006-01-02"), "created", created, "cancelled", cancelled, "skipped", skipped)
}

func seedDate(raw string, loc *time.Location) (time.Time, error) {
	if raw == "" {
		now := time.Now().In(loc).AddDate(0, 0, 1)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc), nil
	}
	d, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", raw, err)
	}
	return d, nil
}

// daySlots lists the instants from open to close inclusive, step apart.
func daySlots(day time.Time, openAt, closeAt, step time.Duration) []time.Time {
	if step <= 0 {
		step = 30 * time.Minute
	}
	var out []time.Time
	for off := openAt; off <= closeAt; off += step {
		out = append(out, day.Add(off))
	}
	return out
}
