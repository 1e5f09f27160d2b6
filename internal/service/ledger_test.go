package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickin/dock-slot-service/internal/model"
	q "github.com/tickin/dock-slot-service/internal/queue"
	"github.com/tickin/dock-slot-service/internal/repository"
)

const (
	baseLat = 17.3850
	baseLng = 78.4867
)

func TestBookFullClaimsPosition(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("D1", baseLat, baseLng)

	res, err := fx.book(BookSlotInput{DistributorCode: "D1", Amount: 90000, Position: "A"})
	require.NoError(t, err)
	assert.Equal(t, model.TypeFull, res.Type)
	assert.Equal(t, model.BookingConfirmed, res.Status)
	assert.Equal(t, "A", res.Position)
	assert.NotEmpty(t, res.BookingID)

	// The same position cannot be claimed twice.
	_, err = fx.book(BookSlotInput{Contributor: "sales-2", DistributorCode: "D1", Amount: 90000, Position: "A"})
	assert.ErrorIs(t, err, repository.ErrConflict)

	// A different position on the same slot is still free.
	res, err = fx.book(BookSlotInput{Contributor: "sales-2", DistributorCode: "D1", Amount: 90000, Position: "B"})
	require.NoError(t, err)
	assert.Equal(t, "B", res.Position)
}

func TestBookFullRequiresPosition(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("D1", baseLat, baseLng)

	_, err := fx.book(BookSlotInput{DistributorCode: "D1", Amount: 90000})
	assert.ErrorIs(t, err, repository.ErrValidation)

	_, err = fx.book(BookSlotInput{DistributorCode: "D1", Amount: 90000, Position: "Z"})
	assert.ErrorIs(t, err, repository.ErrValidation)
}

func TestBookFullRaceSingleWinner(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("D1", baseLat, baseLng)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fx.ledger.BookSlot(context.Background(), BookSlotInput{
				Tenant:          testTenant,
				Date:            fx.today(),
				Time:            "14:00",
				Contributor:     "sales-" + string(rune('a'+i)),
				DistributorCode: "D1",
				Amount:          90000,
				Position:        "C",
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, repository.ErrConflict)
		}
	}
	assert.Equal(t, 1, wins, "exactly one caller must claim the position")
}

func TestBookHalfMintsBucket(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("D1", baseLat, baseLng)

	res, err := fx.book(BookSlotInput{DistributorCode: "D1", Amount: 20000})
	require.NoError(t, err)
	assert.Equal(t, model.TypeHalf, res.Type)
	assert.Equal(t, model.BookingPendingConfirm, res.Status)
	assert.Equal(t, mergeKeyFor(baseLat, baseLng), res.MergeKey)
	assert.False(t, res.Blink)
	assert.Equal(t, int64(20000), res.TotalAmount)
	assert.Equal(t, int64(80000), res.MaxAmount)
	assert.Equal(t, model.TripPartial, res.TripStatus)
}

func TestBookHalfGeoMerge(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("NEAR", baseLat, baseLng)
	fx.seedDistributor("CLOSE", baseLat+0.22, baseLng) // ~24 km north, inside the radius
	fx.seedDistributor("FAR", baseLat+0.30, baseLng)   // ~33 km north, outside

	first, err := fx.book(BookSlotInput{DistributorCode: "NEAR", Amount: 20000})
	require.NoError(t, err)

	// A contribution within the merge radius joins the existing bucket
	// and flags the merge for the UI.
	merged, err := fx.book(BookSlotInput{Contributor: "sales-2", DistributorCode: "CLOSE", Amount: 15000})
	require.NoError(t, err)
	assert.Equal(t, first.MergeKey, merged.MergeKey)
	assert.True(t, merged.Blink)
	assert.Equal(t, int64(35000), merged.TotalAmount)

	// A contribution outside the radius mints its own bucket.
	far, err := fx.book(BookSlotInput{Contributor: "sales-3", DistributorCode: "FAR", Amount: 10000})
	require.NoError(t, err)
	assert.NotEqual(t, first.MergeKey, far.MergeKey)
	assert.False(t, far.Blink)
	assert.Equal(t, int64(10000), far.TotalAmount)
}

// Membership is inclusive at exactly the radius. A pure-latitude
// displacement of 1 degree is 6371*pi/180 = 111.19 km, so 0.2240
// degrees sits at 24.91 km and 0.2253 at 25.05 km, tightly straddling
// the 25 km cutoff.
func TestGeoMergeRadiusBoundary(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("ANCHOR", baseLat, baseLng)
	fx.seedDistributor("EDGE-IN", baseLat+0.2240, baseLng)
	fx.seedDistributor("EDGE-OUT", baseLat+0.2253, baseLng)

	first, err := fx.book(BookSlotInput{DistributorCode: "ANCHOR", Amount: 20000})
	require.NoError(t, err)

	in, err := fx.book(BookSlotInput{Contributor: "sales-2", DistributorCode: "EDGE-IN", Amount: 5000})
	require.NoError(t, err)
	assert.Equal(t, first.MergeKey, in.MergeKey)
	assert.True(t, in.Blink)

	out, err := fx.book(BookSlotInput{Contributor: "sales-3", DistributorCode: "EDGE-OUT", Amount: 5000})
	require.NoError(t, err)
	assert.NotEqual(t, first.MergeKey, out.MergeKey)
	assert.False(t, out.Blink)
	assert.Equal(t, int64(5000), out.TotalAmount)
}

func TestBookHalfReachesThreshold(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("D1", baseLat, baseLng)

	_, err := fx.book(BookSlotInput{DistributorCode: "D1", Amount: 50000})
	require.NoError(t, err)
	res, err := fx.book(BookSlotInput{Contributor: "sales-2", DistributorCode: "D1", Amount: 30000})
	require.NoError(t, err)
	assert.Equal(t, int64(80000), res.TotalAmount)
	assert.Equal(t, model.TripReadyForConfirm, res.TripStatus)
}

func TestBookHalfAgainstConfirmedBucketQueues(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("D1", baseLat, baseLng)

	_, err := fx.book(BookSlotInput{DistributorCode: "D1", Amount: 40000})
	require.NoError(t, err)
	res, err := fx.book(BookSlotInput{Contributor: "sales-2", DistributorCode: "D1", Amount: 40000})
	require.NoError(t, err)
	_, err = fx.ledger.ConfirmMergeBucket(context.Background(), testTenant, fx.today(), "12:00", res.MergeKey, "manager-1")
	require.NoError(t, err)

	// New money for the confirmed bucket overflows into the waiting queue.
	queued, err := fx.book(BookSlotInput{Contributor: "sales-3", DistributorCode: "D1", Amount: 5000})
	require.NoError(t, err)
	assert.Equal(t, model.BookingWaiting, queued.Status)
	assert.Equal(t, res.MergeKey, queued.MergeKey)
	assert.NotEmpty(t, queued.WaitingID)

	// The bucket total is untouched by the queued contribution.
	bucket := fx.pooledBucket(fx.today(), "12:00", res.MergeKey)
	assert.Equal(t, int64(80000), bucket.TotalAmount)

	entries, err := fx.waiting.ListByBucket(context.Background(), testTenant, fx.today(), "12:00", res.MergeKey)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(5000), entries[0].Amount)
}

func TestDuplicateOrderRejected(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("D1", baseLat, baseLng)

	_, err := fx.book(BookSlotInput{DistributorCode: "D1", Amount: 20000, OrderRef: "ORD-7"})
	require.NoError(t, err)

	// Same order, same day: rejected on both paths.
	_, err = fx.book(BookSlotInput{Contributor: "sales-2", DistributorCode: "D1", Amount: 20000, OrderRef: "ORD-7"})
	assert.ErrorIs(t, err, repository.ErrConflict)
	_, err = fx.book(BookSlotInput{Contributor: "sales-2", DistributorCode: "D1", Amount: 90000, Position: "A", OrderRef: "ORD-7"})
	assert.ErrorIs(t, err, repository.ErrConflict)

	// The same order may book again on another day.
	_, err = fx.book(BookSlotInput{Date: fx.tomorrow(), DistributorCode: "D1", Amount: 20000, OrderRef: "ORD-7"})
	assert.NoError(t, err)
}

// The duplicate-order rule must hold at the storage layer, not just in
// the pre-check: two writers inserting the same order against different
// positions never see each other's uncommitted row, so the unique key
// on active_order_ref has to stop the second insert.
func TestDuplicateOrderUniqueKey(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	ins := func(position, orderRef string) error {
		tx, err := fx.db.BeginTx(ctx, nil)
		require.NoError(t, err)
		b := &model.Booking{
			Tenant: testTenant, Date: fx.today(), Time: "12:00",
			Type: model.TypeFull, Position: position,
			Contributor: "sales-1", DistributorCode: "D1", DistributorName: "Dist One",
			Lat: baseLat, Lng: baseLng, Amount: 90000,
			OrderRef: orderRef, Status: model.BookingConfirmed,
		}
		if err := fx.bookings.InsertTx(ctx, tx, b); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	}

	require.NoError(t, ins("A", "ORD-9"))
	assert.Error(t, ins("B", "ORD-9"))

	// Bookings without an order reference are unconstrained.
	require.NoError(t, ins("C", ""))
	assert.NoError(t, ins("D", ""))
}

func TestDateWindow(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("D1", baseLat, baseLng)

	yesterday := fx.now.AddDate(0, 0, -1).Format("2006-01-02")
	dayAfter := fx.now.AddDate(0, 0, 2).Format("2006-01-02")

	_, err := fx.book(BookSlotInput{Date: yesterday, DistributorCode: "D1", Amount: 20000})
	assert.ErrorIs(t, err, repository.ErrValidation)
	_, err = fx.book(BookSlotInput{Date: dayAfter, DistributorCode: "D1", Amount: 20000})
	assert.ErrorIs(t, err, repository.ErrValidation)
	_, err = fx.book(BookSlotInput{Date: "not-a-date", DistributorCode: "D1", Amount: 20000})
	assert.ErrorIs(t, err, repository.ErrValidation)

	_, err = fx.book(BookSlotInput{Date: fx.tomorrow(), DistributorCode: "D1", Amount: 20000})
	assert.NoError(t, err)
}

func TestReserveSlotGate(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("D1", baseLat, baseLng)
	ctx := context.Background()

	// Closed by default.
	_, err := fx.book(BookSlotInput{Time: "20:30", DistributorCode: "D1", Amount: 20000})
	assert.ErrorIs(t, err, repository.ErrPolicy)

	// A manager cannot open it before the open-after time (clock is noon).
	_, err = fx.ledger.ToggleReserveSlot(ctx, testTenant, true, "")
	assert.ErrorIs(t, err, repository.ErrPolicy)

	// After 17:00 local time it can be opened and booked.
	fx.now = time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	rules, err := fx.ledger.ToggleReserveSlot(ctx, testTenant, true, "")
	require.NoError(t, err)
	assert.True(t, rules.ReserveEnabled)
	assert.Equal(t, "17:00", rules.ReserveOpenAfter)

	res, err := fx.book(BookSlotInput{Time: "20:30", DistributorCode: "D1", Amount: 20000})
	require.NoError(t, err)
	assert.Equal(t, model.BookingPendingConfirm, res.Status)
}

func TestCancelSlot(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("D1", baseLat, baseLng)
	ctx := context.Background()

	res, err := fx.book(BookSlotInput{DistributorCode: "D1", Amount: 90000, Position: "A"})
	require.NoError(t, err)

	// Cancelling someone else's claim is a conflict, and the slot stays
	// with its holder.
	err = fx.ledger.CancelSlot(ctx, CancelSlotInput{
		Tenant: testTenant, Date: fx.today(), Time: "12:00", Position: "A", Contributor: "someone-else",
	})
	assert.ErrorIs(t, err, repository.ErrConflict)
	_, err = fx.book(BookSlotInput{Contributor: "sales-3", DistributorCode: "D1", Amount: 90000, Position: "A"})
	assert.ErrorIs(t, err, repository.ErrConflict)

	// Cancelling a position nobody booked is a miss, not a conflict.
	err = fx.ledger.CancelSlot(ctx, CancelSlotInput{
		Tenant: testTenant, Date: fx.today(), Time: "12:00", Position: "D", Contributor: "sales-1",
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	err = fx.ledger.CancelSlot(ctx, CancelSlotInput{
		Tenant: testTenant, Date: fx.today(), Time: "12:00", Position: "A", Contributor: "sales-1",
	})
	require.NoError(t, err)

	// The position is free again and the booking row is gone.
	tx, err := fx.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = fx.bookings.GetTx(ctx, tx, res.BookingID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_ = tx.Rollback()

	_, err = fx.book(BookSlotInput{Contributor: "sales-2", DistributorCode: "D1", Amount: 90000, Position: "A"})
	assert.NoError(t, err)
}

func TestClusterAssignmentPreemptsGeo(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("D1", baseLat, baseLng)
	ctx := context.Background()

	// An existing nearby bucket would normally absorb this contribution.
	_, err := fx.book(BookSlotInput{DistributorCode: "D1", Amount: 20000})
	require.NoError(t, err)

	require.NoError(t, fx.ledger.AssignCluster(ctx, testTenant, fx.today(), "ORD-9", "D1", "NORTH-RUN"))

	res, err := fx.book(BookSlotInput{Contributor: "sales-2", DistributorCode: "D1", Amount: 15000, OrderRef: "ORD-9"})
	require.NoError(t, err)
	assert.Equal(t, "NORTH-RUN", res.MergeKey)
	assert.False(t, res.Blink)

	// Without the pinned order the geo path still wins.
	res, err = fx.book(BookSlotInput{Contributor: "sales-3", DistributorCode: "D1", Amount: 15000})
	require.NoError(t, err)
	assert.Equal(t, mergeKeyFor(baseLat, baseLng), res.MergeKey)
}

func TestHalfBookingNeedsCoordinates(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("NOWHERE", 0, 0)

	_, err := fx.book(BookSlotInput{DistributorCode: "NOWHERE", Amount: 20000})
	assert.ErrorIs(t, err, repository.ErrUnresolvedLocation)

	// A full booking does not depend on the coordinate.
	_, err = fx.book(BookSlotInput{DistributorCode: "NOWHERE", Amount: 90000, Position: "A"})
	assert.NoError(t, err)
}

func TestBucketTotalMatchesMemberBookings(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("D1", baseLat, baseLng)

	amounts := []int64{12000, 7000, 23000}
	var mergeKey string
	for i, a := range amounts {
		res, err := fx.book(BookSlotInput{Contributor: "sales-" + string(rune('a'+i)), DistributorCode: "D1", Amount: a})
		require.NoError(t, err)
		mergeKey = res.MergeKey
	}
	bucket := fx.pooledBucket(fx.today(), "12:00", mergeKey)
	members, err := fx.bookings.ListByMergeKey(context.Background(), testTenant, fx.today(), "12:00", mergeKey)
	require.NoError(t, err)

	var sum int64
	for _, m := range members {
		sum += m.Amount
	}
	assert.Equal(t, bucket.TotalAmount, sum)
}

func TestBookingEventsEmitted(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("D1", baseLat, baseLng)

	res, err := fx.book(BookSlotInput{DistributorCode: "D1", Amount: 20000, OrderRef: "ORD-1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(fx.recorder.byType(q.EventSlotBooked)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	e := fx.recorder.byType(q.EventSlotBooked)[0]
	assert.Equal(t, testTenant, e.Tenant)
	assert.Equal(t, res.BookingID, e.BookingID)
	assert.Equal(t, res.MergeKey, e.MergeKey)
	assert.Equal(t, "ORD-1", e.OrderRef)
	assert.NotEmpty(t, e.EmittedAt)
}

func TestJoinWaitingQueueExplicit(t *testing.T) {
	fx := newFixture(t)
	fx.seedDistributor("D1", baseLat, baseLng)
	ctx := context.Background()

	// The referenced bucket must exist.
	_, err := fx.ledger.JoinWaitingQueue(ctx, JoinWaitingQueueInput{
		Tenant: testTenant, Date: fx.today(), Time: "12:00",
		MergeKey: "GHOST", Contributor: "sales-1", DistributorCode: "D1", Amount: 1000,
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	res, err := fx.book(BookSlotInput{DistributorCode: "D1", Amount: 20000})
	require.NoError(t, err)

	entry, err := fx.ledger.JoinWaitingQueue(ctx, JoinWaitingQueueInput{
		Tenant: testTenant, Date: fx.today(), Time: "12:00",
		MergeKey: res.MergeKey, Contributor: "sales-2", DistributorCode: "D1", Amount: 4000,
	})
	require.NoError(t, err)
	assert.Equal(t, model.BookingWaiting, entry.Status)
	assert.NotEmpty(t, entry.ID)
}
