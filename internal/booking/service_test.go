package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"arcade-rental-backend/internal/db"
	"arcade-rental-backend/internal/events"
	"arcade-rental-backend/internal/kst"
	"arcade-rental-backend/internal/lifecycle"
	"arcade-rental-backend/internal/model"
	"arcade-rental-backend/internal/store"
)

const bookingDate = "2025-03-31"

// recorder captures dispatched lifecycle events.
type recorder struct {
	mu     sync.Mutex
	events []events.LifecycleEvent
}

func (r *recorder) Dispatch(ev events.LifecycleEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) statuses() []lifecycle.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []lifecycle.Status
	for _, ev := range r.events {
		out = append(out, ev.To)
	}
	return out
}

type fixture struct {
	db       *gorm.DB
	store    store.Store
	svc      *Service
	clock    *kst.ManualClock
	events   *recorder
	poolType model.DeviceType
	devices  []model.Device
	solo     model.DeviceType
	soloDev  model.Device
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(gormDB))
	return gormDB
}

func slot(start, end int, youth, twoP bool) model.TimeSlotDefinition {
	return model.TimeSlotDefinition{
		StartHour:   start,
		EndHour:     end,
		SlotType:    model.SlotNormal,
		IsYouthTime: youth,
		CreditOptions: []model.CreditOption{
			{Type: model.CreditFreeplay, Hours: []int{1, 2, 3, 4}, Prices: map[int]int{1: 10000, 2: 20000, 3: 28000, 4: 35000}},
			{Type: model.CreditFixed, Hours: []int{2}, Prices: map[int]int{2: 15000}, FixedCredits: 10},
		},
		Enable2P:     twoP,
		Price2PExtra: 5000,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gormDB := newTestDB(t)

	pool := model.DeviceType{
		Name:        "maimai",
		DeviceCount: 2,
		TimeSlots: []model.TimeSlotDefinition{
			slot(10, 12, false, false),
			slot(12, 14, true, false),
			slot(22, 26, false, true),
		},
	}
	require.NoError(t, gormDB.Create(&pool).Error)
	devs := []model.Device{
		{DeviceTypeID: pool.ID, DeviceNumber: 1},
		{DeviceTypeID: pool.ID, DeviceNumber: 2},
	}
	require.NoError(t, gormDB.Create(&devs).Error)

	solo := model.DeviceType{
		Name:           "sound voltex",
		DeviceCount:    1,
		MaxRentalUnits: 1,
		TimeSlots:      []model.TimeSlotDefinition{slot(22, 26, false, false)},
	}
	require.NoError(t, gormDB.Create(&solo).Error)
	soloDev := model.Device{DeviceTypeID: solo.ID, DeviceNumber: 1}
	require.NoError(t, gormDB.Create(&soloDev).Error)

	st := store.NewGormStore(gormDB)
	clock := kst.NewManualClock(time.Date(2025, 3, 29, 9, 0, 0, 0, kst.Location))
	rec := &recorder{}
	return &fixture{
		db:       gormDB,
		store:    st,
		svc:      NewService(st, clock, DefaultPolicy(), rec),
		clock:    clock,
		events:   rec,
		poolType: pool,
		devices:  devs,
		solo:     solo,
		soloDev:  soloDev,
	}
}

func (f *fixture) book(t *testing.T, user string, deviceID *int64, start, end int) model.Reservation {
	t.Helper()
	r, err := f.svc.CreateReservation(context.Background(), Request{
		UserID:       user,
		Date:         bookingDate,
		DeviceTypeID: f.poolType.ID,
		DeviceID:     deviceID,
		StartHour:    start,
		EndHour:      end,
		CreditType:   model.CreditFreeplay,
		PlayerCount:  1,
	})
	require.NoError(t, err)
	return r
}

func idPtr(v int64) *int64 { return &v }

func TestCreateReservation(t *testing.T) {
	f := newFixture(t)

	r := f.book(t, "alice", nil, 22, 26)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, lifecycle.StatusPending, r.Status)
	assert.Equal(t, "250331-001", r.ReservationNumber)
	assert.Equal(t, "22:00", r.StartTime)
	assert.Equal(t, "02:00", r.EndTime)
	assert.Equal(t, 35000, r.TotalAmount)
	assert.Nil(t, r.DeviceID)
	assert.Equal(t, time.Date(2025, 3, 31, 13, 0, 0, 0, time.UTC), r.StartsAt.UTC())
	assert.Equal(t, time.Date(2025, 3, 31, 17, 0, 0, 0, time.UTC), r.EndsAt.UTC())

	second := f.book(t, "bob", idPtr(f.devices[0].ID), 10, 12)
	assert.Equal(t, "250331-002", second.ReservationNumber)
	assert.Equal(t, f.devices[0].ID, *second.DeviceID)

	assert.Equal(t, []lifecycle.Status{lifecycle.StatusPending, lifecycle.StatusPending}, f.events.statuses())
}

func TestCreateReservationTwoPlayerPricing(t *testing.T) {
	f := newFixture(t)
	r, err := f.svc.CreateReservation(context.Background(), Request{
		UserID: "alice", Date: bookingDate, DeviceTypeID: f.poolType.ID,
		StartHour: 22, EndHour: 26, CreditType: model.CreditFreeplay, PlayerCount: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 35000+5000, r.TotalAmount)
}

// Scenario A: an approved overnight booking blocks an overlapping request on the same device.
func TestCreateReservationOvernightDeviceConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateReservation(ctx, Request{
		UserID: "alice", Date: bookingDate, DeviceID: idPtr(f.soloDev.ID),
		StartHour: 22, EndHour: 26, CreditType: model.CreditFreeplay, PlayerCount: 1,
	})
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, first.ID, ApproveInput{OperatorID: "op"})
	require.NoError(t, err)

	_, err = f.svc.CreateReservation(ctx, Request{
		UserID: "bob", Date: bookingDate, DeviceID: idPtr(f.soloDev.ID),
		StartHour: 24, EndHour: 27, CreditType: model.CreditFreeplay, PlayerCount: 1,
	})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ReasonDeviceConflict, conflict.Reason)
	require.Len(t, conflict.Intervals, 1)
	assert.Equal(t, 22, conflict.Intervals[0].Start)
	assert.Equal(t, 26, conflict.Intervals[0].End)
}

// Scenario B: capacity two, both units taken 10-12.
func TestCreateReservationCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.book(t, "alice", idPtr(f.devices[0].ID), 10, 12)
	f.book(t, "bob", idPtr(f.devices[1].ID), 10, 12)

	_, err := f.svc.CreateReservation(ctx, Request{
		UserID: "carol", Date: bookingDate, DeviceTypeID: f.poolType.ID,
		StartHour: 10, EndHour: 12, CreditType: model.CreditFreeplay, PlayerCount: 1,
	})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ReasonCapacity, conflict.Reason)
	require.NotNil(t, conflict.Remaining)
	assert.Equal(t, 0, *conflict.Remaining)

	views, err := f.svc.AvailableSlots(ctx, SlotQuery{Date: bookingDate, DeviceTypeID: f.poolType.ID})
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, 0, views[0].Remaining)
	assert.Equal(t, 2, views[1].Remaining)
	assert.Equal(t, map[model.CreditType]int{model.CreditFreeplay: 2}, views[0].CreditBreakdown)

	f.book(t, "carol", nil, 12, 14)
}

// Scenario E: two identical concurrent requests, exactly one wins.
func TestCreateReservationConcurrent(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, user := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(i int, user string) {
			defer wg.Done()
			_, errs[i] = f.svc.CreateReservation(context.Background(), Request{
				UserID: user, Date: bookingDate, DeviceID: idPtr(f.soloDev.ID),
				StartHour: 22, EndHour: 26, CreditType: model.CreditFreeplay, PlayerCount: 1,
			})
		}(i, user)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		var conflict *ConflictError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &conflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	var count int64
	require.NoError(t, f.db.Model(&model.Reservation{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreateReservationValidation(t *testing.T) {
	f := newFixture(t)
	base := Request{
		UserID: "alice", Date: bookingDate, DeviceTypeID: f.poolType.ID,
		StartHour: 10, EndHour: 12, CreditType: model.CreditFreeplay, PlayerCount: 1,
	}

	testCases := []struct {
		name   string
		mutate func(r *Request)
		field  string
	}{
		{"missing user", func(r *Request) { r.UserID = "" }, "user_id"},
		{"bad date", func(r *Request) { r.Date = "31/03/2025" }, "date"},
		{"no target", func(r *Request) { r.DeviceTypeID = 0 }, "device_type_id"},
		{"end before start", func(r *Request) { r.EndHour = 9 }, "end_hour"},
		{"past close", func(r *Request) { r.StartHour, r.EndHour = 27, 30 }, "end_hour"},
		{"too long", func(r *Request) { r.StartHour, r.EndHour = 10, 15 }, "end_hour"},
		{"too many players", func(r *Request) { r.PlayerCount = 3 }, "player_count"},
		{"2P not offered", func(r *Request) { r.PlayerCount = 2 }, "player_count"},
		{"unknown credit", func(r *Request) { r.CreditType = "coins" }, "credit_type"},
		{"credit not offered for duration slot", func(r *Request) { r.CreditType = model.CreditUnlimited }, "credit_type"},
		{"inside lead time", func(r *Request) { r.Date = "2025-03-30"; r.StartHour, r.EndHour = 8, 10 }, "start_hour"},
		{"too far ahead", func(r *Request) { r.Date = "2025-04-30" }, "date"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			_, err := f.svc.CreateReservation(context.Background(), req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestCreateReservationUserRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.book(t, "alice", idPtr(f.devices[0].ID), 10, 12)

	// Same user, same hours, other unit.
	_, err := f.svc.CreateReservation(ctx, Request{
		UserID: "alice", Date: bookingDate, DeviceID: idPtr(f.devices[1].ID),
		StartHour: 11, EndHour: 13, CreditType: model.CreditFreeplay, PlayerCount: 1,
	})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ReasonUserOverlap, conflict.Reason)

	f.book(t, "alice", nil, 14, 16)
	f.book(t, "alice", nil, 22, 26)

	_, err = f.svc.CreateReservation(ctx, Request{
		UserID: "alice", Date: "2025-04-01", DeviceTypeID: f.poolType.ID,
		StartHour: 10, EndHour: 12, CreditType: model.CreditFreeplay, PlayerCount: 1,
	})
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ReasonUserLimit, conflict.Reason)
}

func TestCreateReservationMaintenanceDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetDeviceStatus(ctx, f.devices[0].ID, lifecycle.DeviceMaintenance)
	require.NoError(t, err)

	_, err = f.svc.CreateReservation(ctx, Request{
		UserID: "alice", Date: bookingDate, DeviceID: idPtr(f.devices[0].ID),
		StartHour: 10, EndHour: 12, CreditType: model.CreditFreeplay, PlayerCount: 1,
	})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ReasonMaintenance, conflict.Reason)
}

func TestCreateReservationUnknownDevice(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateReservation(context.Background(), Request{
		UserID: "alice", Date: bookingDate, DeviceID: idPtr(999),
		StartHour: 10, EndHour: 12, CreditType: model.CreditFreeplay, PlayerCount: 1,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

// collidingStore makes every insert look like a reservation number collision.
type collidingStore struct {
	store.Store
	attempts int
}

type collidingTx struct{ store.BookingTx }

func (collidingTx) Insert(*model.Reservation) error {
	return fmt.Errorf("insert: %w", store.ErrDuplicateNumber)
}

func (c *collidingStore) Book(ctx context.Context, key string, fn func(tx store.BookingTx) error) error {
	c.attempts++
	return c.Store.Book(ctx, key, func(tx store.BookingTx) error {
		return fn(collidingTx{tx})
	})
}

func TestCreateReservationNumberRetriesExhaust(t *testing.T) {
	f := newFixture(t)
	cs := &collidingStore{Store: f.store}
	svc := NewService(cs, f.clock, DefaultPolicy(), nil)

	_, err := svc.CreateReservation(context.Background(), Request{
		UserID: "alice", Date: bookingDate, DeviceTypeID: f.poolType.ID,
		StartHour: 10, EndHour: 12, CreditType: model.CreditFreeplay, PlayerCount: 1,
	})
	assert.ErrorIs(t, err, ErrSequenceExhausted)
	assert.Equal(t, 3, cs.attempts)
}

func TestCreateReservationSkipsNumbersAlreadyIssued(t *testing.T) {
	f := newFixture(t)

	// An imported row holds -001 while the date has no counter yet.
	legacy := model.Reservation{
		ID:                uuid.NewString(),
		UserID:            "legacy",
		DeviceTypeID:      f.poolType.ID,
		Date:              bookingDate,
		StartHour:         10,
		EndHour:           12,
		StartTime:         "10:00",
		EndTime:           "12:00",
		StartsAt:          time.Date(2025, 3, 31, 1, 0, 0, 0, time.UTC),
		EndsAt:            time.Date(2025, 3, 31, 3, 0, 0, 0, time.UTC),
		Status:            lifecycle.StatusCancelled,
		CreditType:        model.CreditFreeplay,
		PlayerCount:       1,
		ReservationNumber: "250331-001",
	}
	require.NoError(t, f.db.Create(&legacy).Error)

	r := f.book(t, "alice", nil, 14, 16)
	assert.Equal(t, "250331-002", r.ReservationNumber)

	next := f.book(t, "bob", nil, 14, 16)
	assert.Equal(t, "250331-003", next.ReservationNumber)

	var seq model.ReservationSequence
	require.NoError(t, f.db.Where("date = ?", bookingDate).Take(&seq).Error)
	assert.Equal(t, 3, seq.LastValue)
}

func TestAvailableSlotsYouthFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	minorBirth := time.Date(2012, 5, 1, 0, 0, 0, 0, kst.Location)
	adultBirth := time.Date(1990, 5, 1, 0, 0, 0, 0, kst.Location)
	require.NoError(t, f.db.Create(&model.User{ID: "kid", BirthDate: &minorBirth}).Error)
	require.NoError(t, f.db.Create(&model.User{ID: "grown", BirthDate: &adultBirth}).Error)

	for _, tc := range []struct {
		user  string
		slots int
	}{
		{"kid", 2},
		{"grown", 3},
		{"stranger", 3},
		{"", 3},
	} {
		views, err := f.svc.AvailableSlots(ctx, SlotQuery{Date: bookingDate, DeviceTypeID: f.poolType.ID, UserID: tc.user})
		require.NoError(t, err)
		assert.Len(t, views, tc.slots, tc.user)
		if tc.user == "kid" {
			for _, v := range views {
				assert.False(t, v.Definition.IsYouthTime)
			}
		}
	}

	tests := []struct {
		name       string
		start, end int
	}{
		{"whole youth slot", 12, 14},
		{"inside youth slot", 12, 13},
		{"straddling youth slot", 11, 13},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateReservation(ctx, Request{
				UserID: "kid", Date: bookingDate, DeviceTypeID: f.poolType.ID,
				StartHour: tt.start, EndHour: tt.end, CreditType: model.CreditFreeplay, PlayerCount: 1,
			})
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "start_hour", verr.Field)
		})
	}

	// Adults may book inside youth time, and minors may book outside it.
	_, err := f.svc.CreateReservation(ctx, Request{
		UserID: "grown", Date: bookingDate, DeviceTypeID: f.poolType.ID,
		StartHour: 12, EndHour: 13, CreditType: model.CreditFreeplay, PlayerCount: 1,
	})
	assert.NoError(t, err)
	_, err = f.svc.CreateReservation(ctx, Request{
		UserID: "kid", Date: bookingDate, DeviceTypeID: f.poolType.ID,
		StartHour: 10, EndHour: 12, CreditType: model.CreditFreeplay, PlayerCount: 1,
	})
	assert.NoError(t, err)
}

func TestAvailableSlotsDeviceSelector(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, "alice", idPtr(f.devices[0].ID), 10, 12)

	views, err := f.svc.AvailableSlots(ctx, SlotQuery{Date: bookingDate, DeviceID: idPtr(f.devices[0].ID)})
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, 0, views[0].Remaining)
	assert.Equal(t, 1, views[1].Remaining)
	assert.Equal(t, 1, views[2].Remaining)

	views, err = f.svc.AvailableSlots(ctx, SlotQuery{Date: bookingDate, DeviceID: idPtr(f.devices[1].ID)})
	require.NoError(t, err)
	assert.Equal(t, 1, views[0].Remaining)

	_, err = f.svc.SetDeviceStatus(ctx, f.devices[1].ID, lifecycle.DeviceMaintenance)
	require.NoError(t, err)
	views, err = f.svc.AvailableSlots(ctx, SlotQuery{Date: bookingDate, DeviceID: idPtr(f.devices[1].ID)})
	require.NoError(t, err)
	for _, v := range views {
		assert.Equal(t, 0, v.Remaining)
	}
}

func TestAvailableSlotsValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AvailableSlots(context.Background(), SlotQuery{Date: "tomorrow", DeviceTypeID: f.poolType.ID})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "date", verr.Field)

	_, err = f.svc.AvailableSlots(context.Background(), SlotQuery{Date: bookingDate})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "device_type_id", verr.Field)
}
