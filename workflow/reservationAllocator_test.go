package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/DhruviKhanpara/LMS-sub001/models"
	"github.com/DhruviKhanpara/LMS-sub001/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReservationAllocator_OldestReservationFirst(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(t, store, &testClock{now: baseTime})

	first := store.addUser("ola")
	second := store.addUser("pia")
	book := store.addBook("Persuasion", 1)
	r2 := store.addReservation(second.ID, book.ID, models.ReservationStatusReserved, baseTime.Add(-time.Hour))
	r1 := store.addReservation(first.ID, book.ID, models.ReservationStatusReserved, baseTime.Add(-2*time.Hour))

	summary, err := e.Allocator.Run(context.Background(), Scope{})
	require.NoError(t, err)
	assert.Equal(t, RunSummary{Processed: 1, Updated: 1}, summary)

	assert.Equal(t, models.ReservationStatusAllocated, store.reservations[r1.ID].Status)
	assert.Equal(t, baseTime, *store.reservations[r1.ID].AllocatedAt)
	assert.Equal(t, models.ReservationStatusReserved, store.reservations[r2.ID].Status)
	assert.Equal(t, 0, store.books[book.ID].AvailableCopies)

	msgs := store.outboxOf(models.OutboxMessageTypeReservationAllocated)
	require.Len(t, msgs, 1)
	assert.Equal(t, first.ID, msgs[0].UserId)
}

func TestReservationAllocator_ExpiredAllocationMovesToNext(t *testing.T) {
	store := newMemStore()
	store.setConfig(KeyAllocationDueDays, "2")
	clock := &testClock{now: baseTime}
	e := newTestEngine(t, store, clock)

	first := store.addUser("quinn")
	second := store.addUser("rae")
	book := store.addBook("Rebecca", 1)
	r1 := store.addReservation(first.ID, book.ID, models.ReservationStatusReserved, baseTime.Add(-2*time.Hour))
	r2 := store.addReservation(second.ID, book.ID, models.ReservationStatusReserved, baseTime.Add(-time.Hour))

	_, err := e.Allocator.Run(context.Background(), Scope{})
	require.NoError(t, err)
	require.Equal(t, models.ReservationStatusAllocated, store.reservations[r1.ID].Status)

	// still inside the pickup window
	clock.Advance(utils.Days(2))
	_, err = e.Allocator.Run(context.Background(), Scope{})
	require.NoError(t, err)
	require.Equal(t, models.ReservationStatusAllocated, store.reservations[r1.ID].Status)

	clock.Advance(time.Minute)
	_, err = e.Allocator.Run(context.Background(), Scope{})
	require.NoError(t, err)

	expired := store.reservations[r1.ID]
	assert.Equal(t, models.ReservationStatusReserved, expired.Status)
	assert.Equal(t, 1, expired.TransferAllocationCount)
	assert.Nil(t, expired.AllocatedAt)
	assert.Equal(t, clock.now.Add(utils.Days(2)), expired.AllocateAfter)
	assert.Equal(t, models.ReservationStatusAllocated, store.reservations[r2.ID].Status)
	assert.Equal(t, 0, store.books[book.ID].AvailableCopies)
}

func TestReservationAllocator_ForceCancelAtTransferLimit(t *testing.T) {
	store := newMemStore()
	store.setConfig(KeyAllocationDueDays, "1")
	store.setConfig(KeyMaxTransferAllocationCount, "2")
	clock := &testClock{now: baseTime}
	e := newTestEngine(t, store, clock)

	user := store.addUser("sam")
	book := store.addBook("Lolita", 1)
	r := store.addReservation(user.ID, book.ID, models.ReservationStatusReserved, baseTime.Add(-time.Hour))

	// allocate, expire, reallocate, expire
	for i := 0; i < 4; i++ {
		_, err := e.Allocator.Run(context.Background(), Scope{})
		require.NoError(t, err)
		clock.Advance(utils.Days(1) + time.Minute)
	}

	got := store.reservations[r.ID]
	assert.Equal(t, models.ReservationStatusCancelled, got.Status)
	assert.Equal(t, models.CancelReasonAllocationTransferLimitReached, got.CancelReason)
	assert.Equal(t, 2, got.TransferAllocationCount)
	assert.Equal(t, 1, store.books[book.ID].AvailableCopies)
	assert.Len(t, store.outboxOf(models.OutboxMessageTypeReservationCancelled), 1)
	assert.Len(t, store.outboxOf(models.OutboxMessageTypeReservationAllocated), 2)
}

func TestReservationAllocator_RespectsAllocateAfter(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(t, store, &testClock{now: baseTime})

	user := store.addUser("tia")
	book := store.addBook("Kindred", 1)
	r := store.addReservation(user.ID, book.ID, models.ReservationStatusReserved, baseTime.Add(-time.Hour))
	held := store.reservations[r.ID]
	held.AllocateAfter = baseTime.Add(time.Hour)
	store.reservations[r.ID] = held

	summary, err := e.Allocator.Run(context.Background(), Scope{})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Updated)
	assert.Equal(t, models.ReservationStatusReserved, store.reservations[r.ID].Status)
	assert.Equal(t, 1, store.books[book.ID].AvailableCopies)
}

func TestReservationAllocator_NoCopiesNoChange(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(t, store, &testClock{now: baseTime})

	user := store.addUser("uma")
	book := store.addBook("Atonement", 0)
	r := store.addReservation(user.ID, book.ID, models.ReservationStatusReserved, baseTime.Add(-time.Hour))

	_, err := e.Allocator.Run(context.Background(), Scope{})
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusReserved, store.reservations[r.ID].Status)
	assert.Empty(t, store.outbox)
	assert.Empty(t, store.audits)
}
