package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickin/dock-slot-service/internal/model"
	"github.com/tickin/dock-slot-service/internal/repository"
)

func TestConfirmMergeBucket(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("D1", baseLat, baseLng)
	ctx := context.Background()

	res, err := fx.book(BookSlotInput{DistributorCode: "D1", Amount: 40000})
	require.NoError(t, err)

	// Below threshold: confirmation is a policy violation.
	_, err = fx.ledger.ConfirmMergeBucket(ctx, testTenant, fx.today(), "12:00", res.MergeKey, "manager-1")
	assert.ErrorIs(t, err, repository.ErrPolicy)

	_, err = fx.book(BookSlotInput{Contributor: "sales-2", DistributorCode: "D1", Amount: 40000})
	require.NoError(t, err)

	bucket, err := fx.ledger.ConfirmMergeBucket(ctx, testTenant, fx.today(), "12:00", res.MergeKey, "manager-1")
	require.NoError(t, err)
	assert.Equal(t, model.TripConfirmed, bucket.TripStatus)

	// Every member booking moved to CONFIRMED with the bucket.
	members, err := fx.bookings.ListByMergeKey(ctx, testTenant, fx.today(), "12:00", res.MergeKey)
	require.NoError(t, err)
	require.Len(t, members, 2)
	for _, m := range members {
		assert.Equal(t, model.BookingConfirmed, m.Status)
	}

	// Confirming twice is a conflict; an unknown bucket is not found.
	_, err = fx.ledger.ConfirmMergeBucket(ctx, testTenant, fx.today(), "12:00", res.MergeKey, "manager-1")
	assert.ErrorIs(t, err, repository.ErrConflict)
	_, err = fx.ledger.ConfirmMergeBucket(ctx, testTenant, fx.today(), "12:00", "GHOST", "manager-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestMoveBookingBetweenBuckets(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("D1", baseLat, baseLng)
	fx.seedDistributor("FAR", baseLat+0.30, baseLng)
	ctx := context.Background()

	a, err := fx.book(BookSlotInput{DistributorCode: "D1", Amount: 30000})
	require.NoError(t, err)
	b, err := fx.book(BookSlotInput{Contributor: "sales-2", DistributorCode: "FAR", Amount: 10000})
	require.NoError(t, err)
	require.NotEqual(t, a.MergeKey, b.MergeKey)

	moved, err := fx.ledger.MoveBooking(ctx, testTenant, b.BookingID, b.MergeKey, a.MergeKey, "manager-1")
	require.NoError(t, err)
	assert.Equal(t, a.MergeKey, moved.MergeKey)
	assert.Equal(t, model.BookingPendingConfirm, moved.Status)

	// Amounts moved with the booking: nothing duplicated, nothing lost.
	src := fx.pooledBucket(fx.today(), "12:00", b.MergeKey)
	dst := fx.pooledBucket(fx.today(), "12:00", a.MergeKey)
	assert.Equal(t, int64(0), src.TotalAmount)
	assert.Equal(t, int64(40000), dst.TotalAmount)

	// Moving it again from its old bucket is a conflict.
	_, err = fx.ledger.MoveBooking(ctx, testTenant, b.BookingID, b.MergeKey, a.MergeKey, "manager-1")
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestMoveBookingCreatesDestination(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("D1", baseLat, baseLng)
	ctx := context.Background()

	res, err := fx.book(BookSlotInput{DistributorCode: "D1", Amount: 30000})
	require.NoError(t, err)

	moved, err := fx.ledger.MoveBooking(ctx, testTenant, res.BookingID, res.MergeKey, "OVERFLOW-1", "manager-1")
	require.NoError(t, err)
	assert.Equal(t, "OVERFLOW-1", moved.MergeKey)

	dst := fx.pooledBucket(fx.today(), "12:00", "OVERFLOW-1")
	assert.Equal(t, int64(30000), dst.TotalAmount)
	assert.Equal(t, int64(80000), dst.MaxAmount)
	assert.Equal(t, model.TripPartial, dst.TripStatus)
}

func TestMoveBookingReconcilesTripStatus(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("D1", baseLat, baseLng)
	ctx := context.Background()

	first, err := fx.book(BookSlotInput{DistributorCode: "D1", Amount: 50000})
	require.NoError(t, err)
	second, err := fx.book(BookSlotInput{Contributor: "sales-2", DistributorCode: "D1", Amount: 30000})
	require.NoError(t, err)
	require.Equal(t, model.TripReadyForConfirm, second.TripStatus)

	// Draining the bucket below its threshold downgrades it.
	_, err = fx.ledger.MoveBooking(ctx, testTenant, second.BookingID, second.MergeKey, "OVERFLOW-1", "manager-1")
	require.NoError(t, err)
	src := fx.pooledBucket(fx.today(), "12:00", first.MergeKey)
	assert.Equal(t, model.TripPartial, src.TripStatus)
	assert.Equal(t, int64(50000), src.TotalAmount)
}

func TestMoveIntoConfirmedBucketRejected(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("D1", baseLat, baseLng)
	fx.seedDistributor("FAR", baseLat+0.30, baseLng)
	ctx := context.Background()

	a, err := fx.book(BookSlotInput{DistributorCode: "D1", Amount: 40000})
	require.NoError(t, err)
	_, err = fx.book(BookSlotInput{Contributor: "sales-2", DistributorCode: "D1", Amount: 40000})
	require.NoError(t, err)
	_, err = fx.ledger.ConfirmMergeBucket(ctx, testTenant, fx.today(), "12:00", a.MergeKey, "manager-1")
	require.NoError(t, err)

	b, err := fx.book(BookSlotInput{Contributor: "sales-3", DistributorCode: "FAR", Amount: 10000})
	require.NoError(t, err)

	_, err = fx.ledger.MoveBooking(ctx, testTenant, b.BookingID, b.MergeKey, a.MergeKey, "manager-1")
	assert.ErrorIs(t, err, repository.ErrConflict)

	// The source bucket kept its amount after the failed move.
	src := fx.pooledBucket(fx.today(), "12:00", b.MergeKey)
	assert.Equal(t, int64(10000), src.TotalAmount)
}

func TestSetBucketThreshold(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("D1", baseLat, baseLng)
	ctx := context.Background()

	res, err := fx.book(BookSlotInput{DistributorCode: "D1", Amount: 30000})
	require.NoError(t, err)

	// Lowering the threshold below the running total flips the bucket
	// to ready.
	bucket, err := fx.ledger.SetBucketThreshold(ctx, testTenant, fx.today(), "12:00", res.MergeKey, 25000)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), bucket.MaxAmount)
	assert.Equal(t, model.TripReadyForConfirm, bucket.TripStatus)

	// Raising it back downgrades again.
	bucket, err = fx.ledger.SetBucketThreshold(ctx, testTenant, fx.today(), "12:00", res.MergeKey, 90000)
	require.NoError(t, err)
	assert.Equal(t, model.TripPartial, bucket.TripStatus)

	_, err = fx.ledger.SetBucketThreshold(ctx, testTenant, fx.today(), "12:00", "GHOST", 1000)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = fx.ledger.SetBucketThreshold(ctx, testTenant, fx.today(), "12:00", res.MergeKey, 0)
	assert.ErrorIs(t, err, repository.ErrValidation)
}

func TestSetGlobalThreshold(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("D1", baseLat, baseLng)
	ctx := context.Background()

	require.NoError(t, fx.ledger.SetGlobalThreshold(ctx, testTenant, 50000))

	// An amount that was HALF under the default is FULL now.
	res, err := fx.book(BookSlotInput{DistributorCode: "D1", Amount: 60000, Position: "A"})
	require.NoError(t, err)
	assert.Equal(t, model.TypeFull, res.Type)

	// New buckets are seeded with the tenant threshold.
	half, err := fx.book(BookSlotInput{Contributor: "sales-2", DistributorCode: "D1", Amount: 20000})
	require.NoError(t, err)
	assert.Equal(t, int64(50000), half.MaxAmount)

	err = fx.ledger.SetGlobalThreshold(ctx, testTenant, 0)
	assert.ErrorIs(t, err, repository.ErrValidation)
}

func TestDisableAndEnableExclusiveSlot(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("D1", baseLat, baseLng)
	ctx := context.Background()

	require.NoError(t, fx.ledger.DisableSlot(ctx, testTenant, fx.today(), "12:00", "A", ""))

	_, err := fx.book(BookSlotInput{DistributorCode: "D1", Amount: 90000, Position: "A"})
	assert.ErrorIs(t, err, repository.ErrPolicy)

	require.NoError(t, fx.ledger.EnableSlot(ctx, testTenant, fx.today(), "12:00", "A", ""))
	_, err = fx.book(BookSlotInput{DistributorCode: "D1", Amount: 90000, Position: "A"})
	require.NoError(t, err)

	// A booked position cannot be disabled out from under its holder.
	err = fx.ledger.DisableSlot(ctx, testTenant, fx.today(), "12:00", "A", "")
	assert.ErrorIs(t, err, repository.ErrConflict)

	// Exactly one of position or merge key must identify the target.
	err = fx.ledger.DisableSlot(ctx, testTenant, fx.today(), "12:00", "", "")
	assert.ErrorIs(t, err, repository.ErrValidation)
	err = fx.ledger.DisableSlot(ctx, testTenant, fx.today(), "12:00", "A", "SOME-KEY")
	assert.ErrorIs(t, err, repository.ErrValidation)
}

func TestDisablePooledBucketDivertsToQueue(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("D1", baseLat, baseLng)
	ctx := context.Background()

	res, err := fx.book(BookSlotInput{DistributorCode: "D1", Amount: 20000})
	require.NoError(t, err)
	require.NoError(t, fx.ledger.DisableSlot(ctx, testTenant, fx.today(), "12:00", "", res.MergeKey))

	// New contributions for the disabled bucket overflow to the queue.
	queued, err := fx.book(BookSlotInput{Contributor: "sales-2", DistributorCode: "D1", Amount: 5000})
	require.NoError(t, err)
	assert.Equal(t, model.BookingWaiting, queued.Status)

	require.NoError(t, fx.ledger.EnableSlot(ctx, testTenant, fx.today(), "12:00", "", res.MergeKey))
	again, err := fx.book(BookSlotInput{Contributor: "sales-3", DistributorCode: "D1", Amount: 5000})
	require.NoError(t, err)
	assert.Equal(t, model.BookingPendingConfirm, again.Status)
}
