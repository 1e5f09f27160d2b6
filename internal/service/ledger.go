// Package service implements the capacity ledger: the booking,
// cancellation and manager-override workflows over the slot grid.
package service

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/tickin/dock-slot-service/internal/geo"
	"github.com/tickin/dock-slot-service/internal/model"
	q "github.com/tickin/dock-slot-service/internal/queue"
	"github.com/tickin/dock-slot-service/internal/repository"
)

// Settings carries the static slot-grid configuration the ledger
// operates against. Times and Positions define the dense grid;
// ReserveTime names the gated final slot.
type Settings struct {
	Times            []string
	Positions        []string
	ReserveTime      string
	ReserveOpenAfter string // fallback when tenant rules carry none
	DefaultThreshold int64  // fallback when tenant rules carry none
	MergeRadiusKm    float64
	TZ               *time.Location
}

// Ledger coordinates every mutation of the slot grid. All multi-record
// effects run inside one database transaction, and every capacity
// mutation inside those transactions is a conditional write, so
// concurrent callers for the same slot serialize correctly regardless
// of which process they arrive on.
type Ledger struct {
	db       *sql.DB
	capacity *repository.CapacityRepo
	bookings *repository.BookingRepo
	waiting  *repository.WaitingQueueRepo
	rules    *repository.RulesRepo
	locator  *Locator
	events   EventPublisher
	settings Settings
	now      func() time.Time
}

// NewLedger wires a Ledger from its collaborators. The events
// publisher may be nil, in which case no events are emitted.
func NewLedger(db *sql.DB, capacity *repository.CapacityRepo, bookings *repository.BookingRepo,
	waiting *repository.WaitingQueueRepo, rules *repository.RulesRepo,
	locator *Locator, events EventPublisher, settings Settings) *Ledger {
	if settings.TZ == nil {
		settings.TZ = time.UTC
	}
	return &Ledger{
		db:       db,
		capacity: capacity,
		bookings: bookings,
		waiting:  waiting,
		rules:    rules,
		locator:  locator,
		events:   events,
		settings: settings,
		now:      time.Now,
	}
}

// SetClock overrides the ledger's wall clock. Tests use this to pin
// the reserve-slot gate and the booking date window.
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

// BookSlotInput is the caller-supplied portion of a booking request.
type BookSlotInput struct {
	Tenant          string
	Date            string // YYYY-MM-DD
	Time            string // HH:MM
	Contributor     string
	DistributorCode string
	Amount          int64
	Position        string // required for FULL, ignored for HALF
	OrderRef        string
}

// BookSlotResult reports what the booking produced: an exclusive claim,
// a pooled contribution, or a waiting-queue entry.
type BookSlotResult struct {
	BookingID   string `json:"booking_id,omitempty"`
	WaitingID   string `json:"waiting_id,omitempty"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Position    string `json:"position,omitempty"`
	MergeKey    string `json:"merge_key,omitempty"`
	Blink       bool   `json:"blink"`
	TotalAmount int64  `json:"total_amount,omitempty"`
	MaxAmount   int64  `json:"max_amount,omitempty"`
	TripStatus  string `json:"trip_status,omitempty"`
}

// BookSlot places one booking. Amounts at or above the effective
// threshold claim a whole position (FULL); smaller amounts are pooled
// into a geo-matched merge bucket (HALF). Contributions against a
// bucket that is already confirmed or disabled land in the waiting
// queue instead of failing.
func (l *Ledger) BookSlot(ctx context.Context, in BookSlotInput) (*BookSlotResult, error) {
	if in.Tenant == "" || in.Contributor == "" || in.DistributorCode == "" {
		return nil, fmt.Errorf("%w: tenant, contributor and distributor code are required", repository.ErrValidation)
	}
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", repository.ErrValidation)
	}
	if !contains(l.settings.Times, in.Time) {
		return nil, fmt.Errorf("%w: unknown slot time %q", repository.ErrValidation, in.Time)
	}
	if err := l.checkDateWindow(in.Date); err != nil {
		return nil, err
	}

	rules, err := l.rules.Get(ctx, in.Tenant)
	if err != nil {
		return nil, err
	}
	if in.Time == l.settings.ReserveTime {
		if err := l.checkReserveGate(rules); err != nil {
			return nil, err
		}
	}
	threshold := l.effectiveThreshold(rules)

	if in.Amount >= threshold {
		return l.bookExclusive(ctx, in)
	}
	return l.bookPooled(ctx, in, threshold)
}

// bookExclusive claims one whole position for the contributor. The
// claim is an AVAILABLE -> BOOKED conditional transition (or a keyed
// insert for slots still in their dense default), so two contributors
// racing for the same position cannot both win.
func (l *Ledger) bookExclusive(ctx context.Context, in BookSlotInput) (*BookSlotResult, error) {
	if in.Position == "" {
		return nil, fmt.Errorf("%w: position is required for a full-vehicle booking", repository.ErrValidation)
	}
	if !contains(l.settings.Positions, in.Position) {
		return nil, fmt.Errorf("%w: unknown position %q", repository.ErrValidation, in.Position)
	}

	loc, name := l.lookupOptional(ctx, in.Tenant, in.DistributorCode)

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if in.OrderRef != "" {
		dup, err := l.bookings.HasActiveByOrderTx(ctx, tx, in.Tenant, in.Date, in.OrderRef)
		if err != nil {
			return nil, err
		}
		if dup {
			return nil, fmt.Errorf("%w: order %s already has an active booking", repository.ErrConflict, in.OrderRef)
		}
	}

	rec, err := l.capacity.GetExclusiveTx(ctx, tx, in.Tenant, in.Date, in.Time, in.Position)
	if err != nil {
		return nil, err
	}
	switch {
	case rec == nil:
		// Dense default: the slot exists implicitly as AVAILABLE, so
		// materialize it BOOKED in one insert. The unique key makes the
		// loser of a creation race fail here.
		rec = &model.SlotCapacity{
			Tenant:   in.Tenant,
			Date:     in.Date,
			Time:     in.Time,
			Kind:     model.KindExclusive,
			Position: in.Position,
			Status:   model.SlotBooked,
			Occupant: in.Contributor,
		}
		if err := l.capacity.InsertTx(ctx, tx, rec); err != nil {
			return nil, fmt.Errorf("%w: position %s is no longer available", repository.ErrConflict, in.Position)
		}
	case rec.Status == model.SlotAvailable:
		if err := l.capacity.ClaimExclusiveTx(ctx, tx, in.Tenant, in.Date, in.Time, in.Position, in.Contributor); err != nil {
			return nil, err
		}
	case rec.Status == model.SlotBooked:
		return nil, fmt.Errorf("%w: position %s is already booked", repository.ErrConflict, in.Position)
	default: // CLOSED or DISABLED
		return nil, fmt.Errorf("%w: position %s is not open for booking", repository.ErrPolicy, in.Position)
	}

	b := &model.Booking{
		Tenant:          in.Tenant,
		Date:            in.Date,
		Time:            in.Time,
		Type:            model.TypeFull,
		Position:        in.Position,
		Contributor:     in.Contributor,
		DistributorCode: in.DistributorCode,
		DistributorName: name,
		Lat:             loc.Lat,
		Lng:             loc.Lng,
		Amount:          in.Amount,
		OrderRef:        in.OrderRef,
		Status:          model.BookingConfirmed,
	}
	if err := l.bookings.InsertTx(ctx, tx, b); err != nil {
		if in.OrderRef != "" {
			// The active_order_ref key caught a duplicate that slipped
			// past the pre-check under concurrency.
			return nil, fmt.Errorf("%w: order %s already has an active booking", repository.ErrConflict, in.OrderRef)
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	l.emit(q.SlotEvent{
		EventType: q.EventSlotBooked,
		Tenant:    in.Tenant, Date: in.Date, Time: in.Time,
		Actor: in.Contributor, OrderRef: in.OrderRef,
		BookingID: b.BookingID, Position: in.Position, Amount: in.Amount,
	})
	return &BookSlotResult{
		BookingID: b.BookingID,
		Type:      model.TypeFull,
		Status:    model.BookingConfirmed,
		Position:  in.Position,
	}, nil
}

// bookPooled routes a sub-threshold contribution into a merge bucket.
// An explicit cluster assignment pre-empts geo matching; otherwise the
// nearest bucket centroid within the merge radius wins, and a fresh
// bucket keyed by the contributor's coordinate is minted when nothing
// is close enough.
func (l *Ledger) bookPooled(ctx context.Context, in BookSlotInput, threshold int64) (*BookSlotResult, error) {
	loc, err := l.locator.Resolve(ctx, in.Tenant, in.DistributorCode)
	if err != nil {
		return nil, err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if in.OrderRef != "" {
		dup, err := l.bookings.HasActiveByOrderTx(ctx, tx, in.Tenant, in.Date, in.OrderRef)
		if err != nil {
			return nil, err
		}
		if dup {
			return nil, fmt.Errorf("%w: order %s already has an active booking", repository.ErrConflict, in.OrderRef)
		}
	}

	mergeKey, blink, err := l.resolveMergeKey(ctx, tx, in, loc)
	if err != nil {
		return nil, err
	}

	bucket, err := l.capacity.GetPooledTx(ctx, tx, in.Tenant, in.Date, in.Time, mergeKey)
	if err != nil {
		return nil, err
	}
	if bucket != nil && (bucket.TripStatus == model.TripConfirmed || bucket.Status == model.SlotDisabled) {
		// Bucket closed to new money: overflow into the waiting queue.
		w := &model.WaitingEntry{
			Tenant: in.Tenant, Date: in.Date, Time: in.Time,
			MergeKey: mergeKey, Contributor: in.Contributor,
			DistributorCode: in.DistributorCode, Amount: in.Amount,
		}
		if err := l.waiting.InsertTx(ctx, tx, w); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		committed = true
		l.emit(q.SlotEvent{
			EventType: q.EventWaitingJoined,
			Tenant:    in.Tenant, Date: in.Date, Time: in.Time,
			Actor: in.Contributor, OrderRef: in.OrderRef,
			MergeKey: mergeKey, Amount: in.Amount,
		})
		return &BookSlotResult{
			WaitingID: w.ID,
			Type:      model.TypeHalf,
			Status:    model.BookingWaiting,
			MergeKey:  mergeKey,
		}, nil
	}

	if bucket == nil {
		bucket = &model.SlotCapacity{
			Tenant:     in.Tenant,
			Date:       in.Date,
			Time:       in.Time,
			Kind:       model.KindPooled,
			MergeKey:   mergeKey,
			Status:     model.SlotAvailable,
			MaxAmount:  threshold,
			TripStatus: model.TripPartial,
			Lat:        loc.Lat,
			Lng:        loc.Lng,
		}
		if err := l.capacity.InsertTx(ctx, tx, bucket); err != nil {
			return nil, fmt.Errorf("%w: bucket %s changed concurrently", repository.ErrConflict, mergeKey)
		}
	}
	if err := l.capacity.AddAmountTx(ctx, tx, in.Tenant, in.Date, in.Time, mergeKey, in.Amount, blink); err != nil {
		return nil, err
	}

	b := &model.Booking{
		Tenant:          in.Tenant,
		Date:            in.Date,
		Time:            in.Time,
		Type:            model.TypeHalf,
		MergeKey:        mergeKey,
		Contributor:     in.Contributor,
		DistributorCode: in.DistributorCode,
		DistributorName: loc.Name,
		Lat:             loc.Lat,
		Lng:             loc.Lng,
		Amount:          in.Amount,
		OrderRef:        in.OrderRef,
		Status:          model.BookingPendingConfirm,
	}
	if err := l.bookings.InsertTx(ctx, tx, b); err != nil {
		if in.OrderRef != "" {
			return nil, fmt.Errorf("%w: order %s already has an active booking", repository.ErrConflict, in.OrderRef)
		}
		return nil, err
	}

	// Re-read the bucket after the credit; when the running total
	// reached the threshold, flag it ready for manager confirmation.
	bucket, err = l.capacity.GetPooledTx(ctx, tx, in.Tenant, in.Date, in.Time, mergeKey)
	if err != nil {
		return nil, err
	}
	if bucket == nil {
		return nil, fmt.Errorf("%w: bucket %s disappeared mid-transaction", repository.ErrConflict, mergeKey)
	}
	if bucket.TotalAmount >= bucket.MaxAmount && bucket.TripStatus == model.TripPartial {
		err := l.capacity.SetTripStatusTx(ctx, tx, in.Tenant, in.Date, in.Time, mergeKey,
			model.TripPartial, model.TripReadyForConfirm)
		if err != nil && err != repository.ErrConflict {
			return nil, err
		}
		if err == nil {
			bucket.TripStatus = model.TripReadyForConfirm
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	l.emit(q.SlotEvent{
		EventType: q.EventSlotBooked,
		Tenant:    in.Tenant, Date: in.Date, Time: in.Time,
		Actor: in.Contributor, OrderRef: in.OrderRef,
		BookingID: b.BookingID, MergeKey: mergeKey, Amount: in.Amount,
	})
	return &BookSlotResult{
		BookingID:   b.BookingID,
		Type:        model.TypeHalf,
		Status:      model.BookingPendingConfirm,
		MergeKey:    mergeKey,
		Blink:       blink,
		TotalAmount: bucket.TotalAmount,
		MaxAmount:   bucket.MaxAmount,
		TripStatus:  bucket.TripStatus,
	}, nil
}

// resolveMergeKey decides which bucket a pooled contribution belongs
// to: an explicit cluster assignment first, then the nearest existing
// bucket within the merge radius, then a fresh coordinate-derived key.
// blink is true when the contribution joins a pre-existing bucket.
func (l *Ledger) resolveMergeKey(ctx context.Context, tx *sql.Tx, in BookSlotInput, loc Location) (string, bool, error) {
	if in.OrderRef != "" {
		clusterID, err := l.rules.ClusterForTx(ctx, tx, in.Tenant, in.Date, in.OrderRef, in.DistributorCode)
		if err != nil {
			return "", false, err
		}
		if clusterID != "" {
			existing, err := l.capacity.GetPooledTx(ctx, tx, in.Tenant, in.Date, in.Time, clusterID)
			if err != nil {
				return "", false, err
			}
			return clusterID, existing != nil, nil
		}
	}

	buckets, err := l.capacity.ListPooledByTimeTx(ctx, tx, in.Tenant, in.Date, in.Time)
	if err != nil {
		return "", false, err
	}
	bestKey := ""
	bestDist := l.settings.MergeRadiusKm
	for _, b := range buckets {
		if !geo.Known(b.Lat, b.Lng) {
			continue
		}
		d := geo.DistanceKm(loc.Lat, loc.Lng, b.Lat, b.Lng)
		// Ties keep the first bucket in merge-key order.
		if d <= bestDist && (bestKey == "" || d < bestDist) {
			bestKey, bestDist = b.MergeKey, d
		}
	}
	if bestKey != "" {
		return bestKey, true, nil
	}
	return mergeKeyFor(loc.Lat, loc.Lng), false, nil
}

// mergeKeyFor derives the canonical bucket key from a coordinate.
// Four decimal places (~11 m) keep keys stable for the same site
// across bookings while staying unique between sites.
func mergeKeyFor(lat, lng float64) string {
	return fmt.Sprintf("GEO_%.4f_%.4f", lat, lng)
}

// CancelSlotInput identifies the exclusive booking to release.
type CancelSlotInput struct {
	Tenant      string
	Date        string
	Time        string
	Position    string
	Contributor string
}

// CancelSlot releases a full-vehicle booking: the position returns to
// AVAILABLE and the booking row is deleted. Only the holding
// contributor may cancel. Pooled contributions are not cancellable
// through this path; reshaping a bucket is a manager move.
func (l *Ledger) CancelSlot(ctx context.Context, in CancelSlotInput) error {
	if in.Tenant == "" || in.Date == "" || in.Time == "" || in.Position == "" || in.Contributor == "" {
		return fmt.Errorf("%w: tenant, date, time, position and contributor are required", repository.ErrValidation)
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	b, err := l.bookings.FindExclusiveTx(ctx, tx, in.Tenant, in.Date, in.Time, in.Position, in.Contributor)
	if err == repository.ErrNotFound {
		// Distinguish "nothing to cancel" from "held by someone else":
		// cancelling another contributor's claim is a conflict, not a miss.
		rec, gerr := l.capacity.GetExclusiveTx(ctx, tx, in.Tenant, in.Date, in.Time, in.Position)
		if gerr != nil {
			return gerr
		}
		if rec != nil && rec.Status == model.SlotBooked {
			return fmt.Errorf("%w: position %s is held by another contributor", repository.ErrConflict, in.Position)
		}
		return err
	}
	if err != nil {
		return err
	}
	if err := l.capacity.ReleaseExclusiveTx(ctx, tx, in.Tenant, in.Date, in.Time, in.Position, in.Contributor); err != nil {
		return err
	}
	if err := l.bookings.DeleteTx(ctx, tx, b.BookingID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	l.emit(q.SlotEvent{
		EventType: q.EventSlotCancelled,
		Tenant:    in.Tenant, Date: in.Date, Time: in.Time,
		Actor: in.Contributor, OrderRef: b.OrderRef,
		BookingID: b.BookingID, Position: in.Position, Amount: b.Amount,
	})
	return nil
}

// JoinWaitingQueueInput identifies the bucket to queue behind.
type JoinWaitingQueueInput struct {
	Tenant          string
	Date            string
	Time            string
	MergeKey        string
	Contributor     string
	DistributorCode string
	Amount          int64
}

// JoinWaitingQueue explicitly enqueues a contribution behind a bucket,
// regardless of the bucket's state. The referenced bucket must exist.
func (l *Ledger) JoinWaitingQueue(ctx context.Context, in JoinWaitingQueueInput) (*model.WaitingEntry, error) {
	if in.Tenant == "" || in.Date == "" || in.Time == "" || in.MergeKey == "" || in.Contributor == "" {
		return nil, fmt.Errorf("%w: tenant, date, time, merge key and contributor are required", repository.ErrValidation)
	}
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", repository.ErrValidation)
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	bucket, err := l.capacity.GetPooledTx(ctx, tx, in.Tenant, in.Date, in.Time, in.MergeKey)
	if err != nil {
		return nil, err
	}
	if bucket == nil {
		return nil, fmt.Errorf("%w: bucket %s", repository.ErrNotFound, in.MergeKey)
	}
	w := &model.WaitingEntry{
		Tenant: in.Tenant, Date: in.Date, Time: in.Time,
		MergeKey: in.MergeKey, Contributor: in.Contributor,
		DistributorCode: in.DistributorCode, Amount: in.Amount,
	}
	if err := l.waiting.InsertTx(ctx, tx, w); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	l.emit(q.SlotEvent{
		EventType: q.EventWaitingJoined,
		Tenant:    in.Tenant, Date: in.Date, Time: in.Time,
		Actor: in.Contributor, MergeKey: in.MergeKey, Amount: in.Amount,
	})
	return w, nil
}

// checkDateWindow accepts only today or tomorrow in the tenant-local
// timezone. Same-day operations are the whole point of the grid; far
// future dates indicate a caller bug.
func (l *Ledger) checkDateWindow(date string) error {
	if _, err := time.ParseInLocation("2006-01-02", date, l.settings.TZ); err != nil {
		return fmt.Errorf("%w: bad date %q", repository.ErrValidation, date)
	}
	now := l.now().In(l.settings.TZ)
	today := now.Format("2006-01-02")
	tomorrow := now.AddDate(0, 0, 1).Format("2006-01-02")
	if date != today && date != tomorrow {
		return fmt.Errorf("%w: date %s is outside the booking window", repository.ErrValidation, date)
	}
	return nil
}

// checkReserveGate enforces the reserve-slot policy: the final time
// slot accepts bookings only after a manager enabled it, and only once
// the local clock passes the configured open-after time.
func (l *Ledger) checkReserveGate(rules *model.Rules) error {
	if rules == nil || !rules.ReserveEnabled {
		return fmt.Errorf("%w: reserve slot is not open", repository.ErrPolicy)
	}
	openAfter := rules.ReserveOpenAfter
	if openAfter == "" {
		openAfter = l.settings.ReserveOpenAfter
	}
	// Zero-padded HH:MM strings compare correctly as text.
	if l.now().In(l.settings.TZ).Format("15:04") < openAfter {
		return fmt.Errorf("%w: reserve slot opens after %s", repository.ErrPolicy, openAfter)
	}
	return nil
}

// effectiveThreshold resolves the FULL/HALF boundary: per-tenant rules
// first, then the service-wide default.
func (l *Ledger) effectiveThreshold(rules *model.Rules) int64 {
	if rules != nil && rules.DefaultThreshold > 0 {
		return rules.DefaultThreshold
	}
	return l.settings.DefaultThreshold
}

// lookupOptional resolves a distributor location for paths where the
// coordinate is informational only (exclusive bookings). Failures
// degrade to an unknown coordinate instead of failing the booking.
func (l *Ledger) lookupOptional(ctx context.Context, tenant, code string) (Location, string) {
	loc, err := l.locator.Resolve(ctx, tenant, code)
	if err != nil {
		return Location{}, ""
	}
	return loc, loc.Name
}

// emit publishes one event without blocking the caller. Booking state
// is already committed when emit runs; delivery failures are logged
// and dropped.
func (l *Ledger) emit(event q.SlotEvent) {
	if l.events == nil {
		return
	}
	event.EmittedAt = l.now().UTC().Format(time.RFC3339)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.events.Publish(ctx, event); err != nil {
			log.Printf("ledger: event %s publish failed: %v", event.EventType, err)
		}
	}()
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
