package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickin/dock-slot-service/internal/model"
)

func TestGridDenseDefaults(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	grid, err := fx.ledger.GetGrid(ctx, testTenant, fx.today())
	require.NoError(t, err)
	assert.Equal(t, 6*4, len(grid.Slots))
	assert.Empty(t, grid.Buckets)

	for _, s := range grid.Slots {
		if s.Time == "20:30" {
			assert.Equal(t, model.SlotClosed, s.Status, "reserve slot defaults to closed")
		} else {
			assert.Equal(t, model.SlotAvailable, s.Status)
		}
		assert.Empty(t, s.Occupant)
	}

	// Reading the grid is idempotent.
	again, err := fx.ledger.GetGrid(ctx, testTenant, fx.today())
	require.NoError(t, err)
	assert.Equal(t, grid, again)
}

func TestGridOverlaysBookings(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("D1", baseLat, baseLng)
	ctx := context.Background()

	_, err := fx.book(BookSlotInput{DistributorCode: "D1", Amount: 90000, Position: "B"})
	require.NoError(t, err)
	half, err := fx.book(BookSlotInput{Contributor: "sales-2", DistributorCode: "D1", Amount: 20000})
	require.NoError(t, err)

	grid, err := fx.ledger.GetGrid(ctx, testTenant, fx.today())
	require.NoError(t, err)

	var booked *GridSlot
	for i := range grid.Slots {
		s := &grid.Slots[i]
		if s.Time == "12:00" && s.Position == "B" {
			booked = s
		}
	}
	require.NotNil(t, booked)
	assert.Equal(t, model.SlotBooked, booked.Status)
	assert.Equal(t, "sales-1", booked.Occupant)

	require.Len(t, grid.Buckets, 1)
	b := grid.Buckets[0]
	assert.Equal(t, half.MergeKey, b.MergeKey)
	assert.Equal(t, int64(20000), b.TotalAmount)
	assert.Equal(t, model.TripPartial, b.TripStatus)
	assert.InDelta(t, baseLat, b.Lat, 1e-9)
}

func TestGridReserveRowOpensWithRules(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.now = fx.now.Add(6 * time.Hour) // move past 17:00
	_, err := fx.ledger.ToggleReserveSlot(ctx, testTenant, true, "")
	require.NoError(t, err)

	grid, err := fx.ledger.GetGrid(ctx, testTenant, fx.today())
	require.NoError(t, err)
	for _, s := range grid.Slots {
		if s.Time == "20:30" {
			assert.Equal(t, model.SlotAvailable, s.Status)
		}
	}
}
