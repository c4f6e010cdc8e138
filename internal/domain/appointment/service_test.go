package appointment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"appointments/internal/database"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:appointment_test_%s?mode=memory&cache=shared", name)
	db, err := database.Connect(dsn)
	require.NoError(t, err, "failed to open sqlite db")
	require.NoError(t, Migrate(db), "failed to migrate db")
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func setupTestService(t *testing.T, opts ...Option) (*Service, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	clock := ClockFunc(func() time.Time { return policyNow })
	opts = append([]Option{WithClock(clock)}, opts...)
	return NewService(NewStore(db), DefaultPolicy(), opts...), db
}

func slot(i int) time.Time {
	// 09:00 at UTC-3 plus i quarter hours.
	return time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC).Add(time.Duration(i) * 15 * time.Minute)
}

func TestService_Book_Scenario(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	a, err := svc.Book(ctx, "Ana Lopez", "2025-06-10T14:00:00-03:00")
	require.NoError(t, err)
	assert.NotZero(t, a.ID)
	assert.Equal(t, "Ana Lopez", a.UserName)
	assert.Equal(t, StatusActive, a.Status)
	assert.Equal(t, "2025-06-10T17:00:00Z", a.AppointmentTime.Format(time.RFC3339))

	stored, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-10T17:00:00Z", stored.AppointmentTime.Format(time.RFC3339))
	assert.Equal(t, StatusActive, stored.Status)

	_, err = svc.Book(ctx, "Ana Lopez", "2025-06-10T14:00:00-03:00")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// Same instant written with another offset is the same slot.
	_, err = svc.Book(ctx, "  Ana Lopez ", "2025-06-10T17:00:00Z")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestService_Book_ValidationErrors(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	cases := []struct {
		name, user, at string
	}{
		{"naive timestamp", "Ana Lopez", "2025-06-10T14:00:00"},
		{"before lead time", "Ana Lopez", "2025-06-01T09:02:00-03:00"},
		{"outside business hours", "Ana Lopez", "2025-06-10T20:00:00-03:00"},
		{"empty name", "   ", "2025-06-10T14:00:00-03:00"},
		{"bad characters", "Ana; DROP", "2025-06-10T14:00:00-03:00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Book(ctx, tc.user, tc.at)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	var count int64
	require.NoError(t, db.Table("appointments").Count(&count).Error)
	assert.Zero(t, count)
}

func TestService_Create_DifferentUsersSameTime(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, "Ana Lopez", slot(4))
	require.NoError(t, err)
	b, err := svc.Create(ctx, "Bruno Diaz", slot(4))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestService_Create_ConcurrentSameSlot(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
		others    []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Create(ctx, "Ana Lopez", slot(8))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrAlreadyExists):
				conflicts++
			default:
				others = append(others, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Empty(t, others)
	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)

	var active int64
	require.NoError(t, db.Table("appointments").
		Where("user_name = ? AND status = ?", "Ana Lopez", "active").
		Count(&active).Error)
	assert.Equal(t, int64(1), active)
}

func TestService_Cancel(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, "Ana Lopez", slot(2))
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, cancelled.ID)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	assert.True(t, cancelled.CancelledAt.Equal(policyNow))

	stored, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)
	require.NotNil(t, stored.CancelledAt)

	_, err = svc.Cancel(ctx, a.ID)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
}

func TestService_Cancel_NotFound(t *testing.T) {
	svc, _ := setupTestService(t)

	_, err := svc.Cancel(context.Background(), 4242)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Get(context.Background(), 4242)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_RebookAfterCancel(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, "Ana Lopez", slot(6))
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, first.ID)
	require.NoError(t, err)

	second, err := svc.Create(ctx, "Ana Lopez", slot(6))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	// Cancelled history rows for the same slot do not collide.
	_, err = svc.Cancel(ctx, second.ID)
	require.NoError(t, err)

	res, err := svc.List(ctx, ListFilter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Total)
	for _, item := range res.Items {
		assert.Equal(t, StatusCancelled, item.Status)
	}
}

func TestService_List_Pagination(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	order := rand.New(rand.NewSource(7)).Perm(25)
	for _, i := range order {
		_, err := svc.Create(ctx, fmt.Sprintf("User %02d", i+1), slot(i))
		require.NoError(t, err)
	}

	res, err := svc.List(ctx, ListFilter{Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(25), res.Total)
	assert.Equal(t, 2, res.Page)
	assert.Equal(t, 10, res.PageSize)
	require.Len(t, res.Items, 10)
	for i, item := range res.Items {
		assert.Equal(t, fmt.Sprintf("User %02d", i+11), item.UserName)
		assert.True(t, item.AppointmentTime.Equal(slot(i+10)))
	}

	last, err := svc.List(ctx, ListFilter{Page: 3, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, last.Items, 5)

	beyond, err := svc.List(ctx, ListFilter{Page: 9, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(25), beyond.Total)
	assert.NotNil(t, beyond.Items)
	assert.Empty(t, beyond.Items)
}

func TestService_List_StatusFilter(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		a, err := svc.Create(ctx, "Ana Lopez", slot(i))
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}
	_, err := svc.Cancel(ctx, ids[1])
	require.NoError(t, err)

	active := StatusActive
	res, err := svc.List(ctx, ListFilter{Status: &active, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Total)
	assert.Equal(t, ids[0], res.Items[0].ID)
	assert.Equal(t, ids[2], res.Items[1].ID)

	cancelled := StatusCancelled
	res, err = svc.List(ctx, ListFilter{Status: &cancelled, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Total)
	assert.Equal(t, ids[1], res.Items[0].ID)

	res, err = svc.List(ctx, ListFilter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Total)
}

func TestService_List_TiesOrderedByID(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	for _, name := range []string{"Zoe", "Ana", "Mia"} {
		_, err := svc.Create(ctx, name, slot(3))
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, "Early", slot(1))
	require.NoError(t, err)

	res, err := svc.List(ctx, ListFilter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, res.Items, 4)
	names := []string{res.Items[0].UserName, res.Items[1].UserName, res.Items[2].UserName, res.Items[3].UserName}
	assert.Equal(t, []string{"Early", "Zoe", "Ana", "Mia"}, names)
}

func TestService_List_InvalidPaging(t *testing.T) {
	svc, _ := setupTestService(t, WithPageSizes(10, 50))
	ctx := context.Background()

	for _, f := range []ListFilter{
		{Page: 0, PageSize: 10},
		{Page: 1, PageSize: 0},
		{Page: -1, PageSize: 10},
		{Page: 1, PageSize: 10, Status: new(Status)},
	} {
		_, err := svc.List(ctx, f)
		assert.ErrorIs(t, err, ErrValidation, "filter %+v", f)
	}

	res, err := svc.List(ctx, ListFilter{Page: 1, PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 50, res.PageSize)
}

func TestMigrate_Constraints(t *testing.T) {
	db := setupTestDB(t)
	at := slot(0)

	err := db.Exec(`INSERT INTO appointments (user_name, appointment_time, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`, "Ana", at, "pending", at, at).Error
	assert.Error(t, err, "status check constraint")

	insertActive := func() error {
		return db.Exec(`INSERT INTO appointments (user_name, appointment_time, status, created_at, updated_at)
			VALUES (?, ?, 'active', ?, ?)`, "Ana", at, at, at).Error
	}
	require.NoError(t, insertActive())
	err = insertActive()
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))

	// Idempotent.
	require.NoError(t, Migrate(db))
}

func TestService_List_PageOffsetOverflow(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "Ana Lopez", slot(0))
	require.NoError(t, err)

	_, err = svc.List(ctx, ListFilter{Page: 4611686018427387904, PageSize: 100})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.List(ctx, ListFilter{Page: math.MaxInt, PageSize: 2})
	assert.ErrorIs(t, err, ErrValidation)

	res, err := svc.List(ctx, ListFilter{Page: 1000000, PageSize: 100})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.Equal(t, int64(1), res.Total)
}

func TestService_Book_SubSecondTimesStayDistinct(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	a, err := svc.Book(ctx, "Ana Lopez", "2025-06-10T14:00:00.5-03:00")
	require.NoError(t, err)
	b, err := svc.Book(ctx, "Ana Lopez", "2025-06-10T14:00:00.7-03:00")
	require.NoError(t, err)

	_, err = svc.Book(ctx, "Ana Lopez", "2025-06-10T17:00:00.500Z")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	res, err := svc.List(ctx, ListFilter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	out := toListResponse(res)
	require.Len(t, out.Items, 2)
	assert.Equal(t, a.ID, out.Items[0].ID)
	assert.Equal(t, "2025-06-10T17:00:00.5Z", out.Items[0].AppointmentTime)
	assert.Equal(t, b.ID, out.Items[1].ID)
	assert.Equal(t, "2025-06-10T17:00:00.7Z", out.Items[1].AppointmentTime)

	stored, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, stored.AppointmentTime.Equal(a.AppointmentTime))
}
