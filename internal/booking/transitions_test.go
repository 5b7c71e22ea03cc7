package booking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcade-rental-backend/internal/lifecycle"
	"arcade-rental-backend/internal/store"
)

func TestApproveAssignsDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.book(t, "alice", nil, 22, 26)
	approved, err := f.svc.Approve(ctx, r.ID, ApproveInput{OperatorID: "op-1", DeviceID: idPtr(f.devices[1].ID)})
	require.NoError(t, err)

	assert.Equal(t, lifecycle.StatusApproved, approved.Status)
	assert.Equal(t, "op-1", approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)
	require.NotNil(t, approved.DeviceID)
	assert.Equal(t, f.devices[1].ID, *approved.DeviceID)
	assert.Equal(t, []lifecycle.Status{lifecycle.StatusPending, lifecycle.StatusApproved}, f.events.statuses())
}

func TestApproveAssignmentConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.book(t, "alice", idPtr(f.devices[0].ID), 10, 12)
	pooled := f.book(t, "bob", nil, 11, 13)

	_, err := f.svc.Approve(ctx, pooled.ID, ApproveInput{OperatorID: "op", DeviceID: idPtr(f.devices[0].ID)})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ReasonDeviceConflict, conflict.Reason)

	got, err := f.svc.Get(ctx, pooled.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusPending, got.Status)
	assert.Nil(t, got.DeviceID)

	_, err = f.svc.Approve(ctx, pooled.ID, ApproveInput{OperatorID: "op", DeviceID: idPtr(f.soloDev.ID)})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "device_id", verr.Field)
}

func TestApproveTwiceIsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.book(t, "alice", nil, 10, 12)
	_, err := f.svc.Approve(ctx, r.ID, ApproveInput{OperatorID: "op"})
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, r.ID, ApproveInput{OperatorID: "op"})
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.book(t, "alice", nil, 10, 12)

	_, err := f.svc.Reject(ctx, r.ID, "op", "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "reason", verr.Field)

	rejected, err := f.svc.Reject(ctx, r.ID, "op", "machine reserved for tournament")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusRejected, rejected.Status)
	assert.Equal(t, "machine reserved for tournament", rejected.RejectionReason)

	// Rejected rows stop blocking.
	views, err := f.svc.AvailableSlots(ctx, SlotQuery{Date: bookingDate, DeviceTypeID: f.poolType.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, views[0].Remaining)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.book(t, "alice", nil, 10, 12)

	_, err := f.svc.Cancel(ctx, r.ID, lifecycle.TriggerUser, "mallory", "")
	assert.ErrorIs(t, err, ErrNotOwner)

	cancelled, err := f.svc.Cancel(ctx, r.ID, lifecycle.TriggerUser, "alice", "plans changed")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusCancelled, cancelled.Status)
	assert.Equal(t, "plans changed", cancelled.CancelReason)

	_, err = f.svc.Cancel(ctx, r.ID, lifecycle.TriggerOperator, "op", "")
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	_, err = f.svc.Cancel(ctx, "missing", lifecycle.TriggerOperator, "op", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCheckIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.book(t, "alice", nil, 22, 26)
	_, err := f.svc.Approve(ctx, r.ID, ApproveInput{OperatorID: "op"})
	require.NoError(t, err)

	_, err = f.svc.CheckIn(ctx, r.ID, nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "device_id", verr.Field)

	checked, err := f.svc.CheckIn(ctx, r.ID, idPtr(f.devices[0].ID))
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusCheckedIn, checked.Status)
	require.NotNil(t, checked.CheckInAt)
	assert.Equal(t, f.devices[0].ID, *checked.DeviceID)
}

func TestCheckInFromPendingIsInvalid(t *testing.T) {
	f := newFixture(t)
	r := f.book(t, "alice", idPtr(f.devices[0].ID), 10, 12)

	_, err := f.svc.CheckIn(context.Background(), r.ID, nil)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
}

func TestSetDeviceStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetDeviceStatus(ctx, f.devices[0].ID, "broken")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = f.svc.SetDeviceStatus(ctx, f.devices[0].ID, lifecycle.DeviceInUse)
	require.NoError(t, err)
	_, err = f.svc.SetDeviceStatus(ctx, f.devices[0].ID, lifecycle.DeviceMaintenance)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ReasonDeviceInUse, conflict.Reason)

	dev, err := f.svc.SetDeviceStatus(ctx, f.devices[0].ID, lifecycle.DeviceAvailable)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.DeviceAvailable, dev.Status)

	_, err = f.svc.SetDeviceStatus(ctx, 999, lifecycle.DeviceAvailable)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestKeyedMutexReleasesKeys(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")
	unlock()
	assert.Empty(t, k.locks)
}
