package schedule

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcade-rental-backend/internal/kst"
	"arcade-rental-backend/internal/model"
)

func TestOccupiedUnits(t *testing.T) {
	occ := []Occupant{
		{ReservationID: "a", DeviceID: ptr(1), Interval: Interval{Start: 10, End: 14}},
		{ReservationID: "b", DeviceID: ptr(1), Interval: Interval{Start: 14, End: 16}},
		{ReservationID: "c", DeviceID: ptr(2), Interval: Interval{Start: 12, End: 13}},
		{ReservationID: "d", Interval: Interval{Start: 13, End: 15}},
		{ReservationID: "e", Interval: Interval{Start: 13, End: 15}},
	}

	// device 1 counted once even though two of its reservations overlap the window
	assert.Equal(t, 2+2, OccupiedUnits(occ, Interval{Start: 12, End: 16}))
	assert.Equal(t, 2, OccupiedUnits(occ, Interval{Start: 10, End: 13}))
	assert.Equal(t, 0, OccupiedUnits(occ, Interval{Start: 16, End: 18}))
	assert.Equal(t, 3, PeakUnits(occ, Interval{Start: 12, End: 16}))
}

func TestRemainingNeverNegative(t *testing.T) {
	occ := []Occupant{
		{ReservationID: "a", DeviceID: ptr(1), Interval: Interval{Start: 10, End: 12}},
		{ReservationID: "b", DeviceID: ptr(2), Interval: Interval{Start: 10, End: 12}},
		{ReservationID: "c", Interval: Interval{Start: 10, End: 12}},
	}
	assert.Equal(t, 0, Remaining(2, occ, Interval{Start: 10, End: 12}))
	assert.Equal(t, 1, Remaining(4, occ, Interval{Start: 10, End: 12}))
}

// Scenario B: two units, one approved 10-12 and one pending 11-13.
func TestAllocateScenarioB(t *testing.T) {
	defs := []model.TimeSlotDefinition{
		{ID: 1, StartHour: 10, EndHour: 12},
		{ID: 2, StartHour: 12, EndHour: 14},
		{ID: 3, StartHour: 14, EndHour: 16},
	}
	occ := []Occupant{
		{ReservationID: "a", DeviceID: ptr(1), Interval: Interval{Start: 10, End: 12}, CreditType: model.CreditFreeplay},
		{ReservationID: "b", DeviceID: ptr(2), Interval: Interval{Start: 11, End: 13}, CreditType: model.CreditFixed},
	}

	views := Allocate(defs, occ, 2, false)
	require.Len(t, views, 3)
	assert.Equal(t, 0, views[0].Remaining)
	assert.Equal(t, 1, views[1].Remaining)
	assert.Equal(t, 2, views[2].Remaining)
	assert.Equal(t, map[model.CreditType]int{model.CreditFreeplay: 1, model.CreditFixed: 1}, views[0].CreditBreakdown)
	assert.Equal(t, map[model.CreditType]int{model.CreditFixed: 1}, views[1].CreditBreakdown)
	assert.Empty(t, views[2].CreditBreakdown)
}

func TestAllocateYouthFilter(t *testing.T) {
	defs := []model.TimeSlotDefinition{
		{ID: 1, StartHour: 10, EndHour: 12, IsYouthTime: true},
		{ID: 2, StartHour: 22, EndHour: 26},
	}

	assert.Len(t, Allocate(defs, nil, 1, false), 2)

	views := Allocate(defs, nil, 1, true)
	require.Len(t, views, 1)
	assert.Equal(t, int64(2), views[0].Definition.ID)
}

func TestIsYouth(t *testing.T) {
	now := time.Date(2025, 3, 31, 12, 0, 0, 0, kst.Location)
	minor := time.Date(2010, 4, 1, 0, 0, 0, 0, kst.Location)
	adult := time.Date(2009, 3, 31, 0, 0, 0, 0, kst.Location)

	assert.True(t, IsYouth(&minor, now))
	assert.False(t, IsYouth(&adult, now))
	assert.False(t, IsYouth(nil, now))
}

func TestMatchDefinition(t *testing.T) {
	defs := []model.TimeSlotDefinition{{ID: 7, StartHour: 22, EndHour: 26}}
	d, ok := MatchDefinition(defs, Interval{Start: 22, End: 26})
	assert.True(t, ok)
	assert.Equal(t, int64(7), d.ID)
	_, ok = MatchDefinition(defs, Interval{Start: 22, End: 24})
	assert.False(t, ok)
}

// Pool admission gated on PeakUnits must keep every hour at or below capacity.
func TestPeakUnitsCapacityProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 200; round++ {
		units := 1 + rng.Intn(4)
		var admitted []Occupant
		for i := 0; i < 30; i++ {
			start := rng.Intn(kst.MaxExtendedHour)
			end := start + 1 + rng.Intn(4)
			if end > kst.MaxExtendedHour {
				end = kst.MaxExtendedHour
			}
			iv := Interval{Start: start, End: end}
			if PeakUnits(admitted, iv) < units {
				admitted = append(admitted, Occupant{Interval: iv})
			}
		}

		for h := 0; h < kst.MaxExtendedHour; h++ {
			n := OccupiedUnits(admitted, Interval{Start: h, End: h + 1})
			require.LessOrEqual(t, n, units, "round %d hour %d", round, h)
		}
	}
}
