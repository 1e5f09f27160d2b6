package service

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/tickin/dock-slot-service/internal/model"
	q "github.com/tickin/dock-slot-service/internal/queue"
	"github.com/tickin/dock-slot-service/internal/repository"
)

// Manager overrides. These run with the same transactional discipline
// as the booking path, so a manager edit racing a live booking resolves
// through the conditional writes rather than trampling it.

// withTx runs fn inside one transaction, committing only on success.
func (l *Ledger) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
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
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// ConfirmMergeBucket locks a bucket in as a dispatched trip: the bucket
// becomes CONFIRMED and every pending member booking with it. The
// running total must have reached the bucket's threshold; confirming a
// short bucket is a policy violation, not a conflict.
func (l *Ledger) ConfirmMergeBucket(ctx context.Context, tenant, date, slotTime, mergeKey, actor string) (*model.SlotCapacity, error) {
	if tenant == "" || date == "" || slotTime == "" || mergeKey == "" {
		return nil, fmt.Errorf("%w: tenant, date, time and merge key are required", repository.ErrValidation)
	}
	var bucket *model.SlotCapacity
	err := l.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		bucket, err = l.capacity.GetPooledTx(ctx, tx, tenant, date, slotTime, mergeKey)
		if err != nil {
			return err
		}
		if bucket == nil {
			return fmt.Errorf("%w: bucket %s", repository.ErrNotFound, mergeKey)
		}
		if bucket.TripStatus == model.TripConfirmed {
			return fmt.Errorf("%w: bucket %s is already confirmed", repository.ErrConflict, mergeKey)
		}
		if bucket.TotalAmount < bucket.MaxAmount {
			return fmt.Errorf("%w: bucket total %d is below threshold %d",
				repository.ErrPolicy, bucket.TotalAmount, bucket.MaxAmount)
		}
		if err := l.capacity.SetTripStatusTx(ctx, tx, tenant, date, slotTime, mergeKey,
			bucket.TripStatus, model.TripConfirmed); err != nil {
			return err
		}
		if _, err := l.bookings.ConfirmByMergeKeyTx(ctx, tx, tenant, date, slotTime, mergeKey); err != nil {
			return err
		}
		bucket.TripStatus = model.TripConfirmed
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.emit(q.SlotEvent{
		EventType: q.EventBucketConfirmed,
		Tenant:    tenant, Date: date, Time: slotTime,
		Actor: actor, MergeKey: mergeKey, Amount: bucket.TotalAmount,
	})
	return bucket, nil
}

// MoveBooking reassigns one pooled booking from its current bucket to
// another, debiting the source and crediting the destination in the
// same transaction so no amount is ever duplicated or lost. The
// destination bucket is created on demand; moving into a confirmed
// bucket is rejected.
func (l *Ledger) MoveBooking(ctx context.Context, tenant, bookingID, fromMergeKey, toMergeKey, actor string) (*model.Booking, error) {
	if bookingID == "" || fromMergeKey == "" || toMergeKey == "" {
		return nil, fmt.Errorf("%w: booking id, source and destination merge keys are required", repository.ErrValidation)
	}
	if fromMergeKey == toMergeKey {
		return nil, fmt.Errorf("%w: source and destination buckets are the same", repository.ErrValidation)
	}
	var b *model.Booking
	err := l.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		b, err = l.bookings.GetTx(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if b.Tenant != tenant || b.Type != model.TypeHalf {
			return fmt.Errorf("%w: booking %s is not a pooled booking of this tenant", repository.ErrValidation, bookingID)
		}
		if b.Status == model.BookingCancelled {
			return fmt.Errorf("%w: booking %s is cancelled", repository.ErrConflict, bookingID)
		}
		if b.MergeKey != fromMergeKey {
			return fmt.Errorf("%w: booking %s is not in bucket %s", repository.ErrConflict, bookingID, fromMergeKey)
		}

		if err := l.capacity.DebitAmountTx(ctx, tx, tenant, b.Date, b.Time, fromMergeKey, b.Amount); err != nil {
			return err
		}

		dest, err := l.capacity.GetPooledTx(ctx, tx, tenant, b.Date, b.Time, toMergeKey)
		if err != nil {
			return err
		}
		if dest != nil && (dest.TripStatus == model.TripConfirmed || dest.Status == model.SlotDisabled) {
			return fmt.Errorf("%w: bucket %s is closed to new contributions", repository.ErrConflict, toMergeKey)
		}
		if dest == nil {
			rules, err := l.rules.GetTx(ctx, tx, tenant)
			if err != nil {
				return err
			}
			dest = &model.SlotCapacity{
				Tenant:     tenant,
				Date:       b.Date,
				Time:       b.Time,
				Kind:       model.KindPooled,
				MergeKey:   toMergeKey,
				Status:     model.SlotAvailable,
				MaxAmount:  l.effectiveThreshold(rules),
				TripStatus: model.TripPartial,
				Lat:        b.Lat,
				Lng:        b.Lng,
			}
			if err := l.capacity.InsertTx(ctx, tx, dest); err != nil {
				return fmt.Errorf("%w: bucket %s changed concurrently", repository.ErrConflict, toMergeKey)
			}
		}
		if err := l.capacity.AddAmountTx(ctx, tx, tenant, b.Date, b.Time, toMergeKey, b.Amount, false); err != nil {
			return err
		}
		if err := l.bookings.MoveTx(ctx, tx, bookingID, fromMergeKey, toMergeKey, model.BookingPendingConfirm); err != nil {
			return err
		}
		b.MergeKey = toMergeKey
		b.Status = model.BookingPendingConfirm

		// Both buckets may have crossed the threshold boundary.
		if err := l.reconcileTripStatusTx(ctx, tx, tenant, b.Date, b.Time, fromMergeKey); err != nil {
			return err
		}
		return l.reconcileTripStatusTx(ctx, tx, tenant, b.Date, b.Time, toMergeKey)
	})
	if err != nil {
		return nil, err
	}
	l.emit(q.SlotEvent{
		EventType: q.EventBookingMoved,
		Tenant:    tenant, Date: b.Date, Time: b.Time,
		Actor: actor, OrderRef: b.OrderRef,
		BookingID: bookingID, MergeKey: toMergeKey, Amount: b.Amount,
	})
	return b, nil
}

// reconcileTripStatusTx aligns a bucket's PARTIAL/READY_FOR_CONFIRM
// marker with its running total after an amount change. CONFIRMED is
// terminal and never touched here.
func (l *Ledger) reconcileTripStatusTx(ctx context.Context, tx *sql.Tx, tenant, date, slotTime, mergeKey string) error {
	bucket, err := l.capacity.GetPooledTx(ctx, tx, tenant, date, slotTime, mergeKey)
	if err != nil || bucket == nil {
		return err
	}
	switch {
	case bucket.TripStatus == model.TripPartial && bucket.TotalAmount >= bucket.MaxAmount:
		err = l.capacity.SetTripStatusTx(ctx, tx, tenant, date, slotTime, mergeKey,
			model.TripPartial, model.TripReadyForConfirm)
	case bucket.TripStatus == model.TripReadyForConfirm && bucket.TotalAmount < bucket.MaxAmount:
		err = l.capacity.SetTripStatusTx(ctx, tx, tenant, date, slotTime, mergeKey,
			model.TripReadyForConfirm, model.TripPartial)
	default:
		return nil
	}
	if err == repository.ErrConflict {
		// Another writer already transitioned it; the state we wanted holds.
		return nil
	}
	return err
}

// SetBucketThreshold overrides the dispatch threshold of one bucket
// and realigns its trip status against the new boundary.
func (l *Ledger) SetBucketThreshold(ctx context.Context, tenant, date, slotTime, mergeKey string, max int64) (*model.SlotCapacity, error) {
	if max <= 0 {
		return nil, fmt.Errorf("%w: threshold must be positive", repository.ErrValidation)
	}
	var bucket *model.SlotCapacity
	err := l.withTx(ctx, func(tx *sql.Tx) error {
		if err := l.capacity.SetMaxAmountTx(ctx, tx, tenant, date, slotTime, mergeKey, max); err != nil {
			return err
		}
		if err := l.reconcileTripStatusTx(ctx, tx, tenant, date, slotTime, mergeKey); err != nil {
			return err
		}
		var err error
		bucket, err = l.capacity.GetPooledTx(ctx, tx, tenant, date, slotTime, mergeKey)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bucket, nil
}

// SetGlobalThreshold sets the tenant-wide FULL/HALF boundary. Existing
// buckets keep the threshold they were seeded with; only new buckets
// pick up the change.
func (l *Ledger) SetGlobalThreshold(ctx context.Context, tenant string, threshold int64) error {
	if tenant == "" {
		return fmt.Errorf("%w: tenant is required", repository.ErrValidation)
	}
	if threshold <= 0 {
		return fmt.Errorf("%w: threshold must be positive", repository.ErrValidation)
	}
	return l.withTx(ctx, func(tx *sql.Tx) error {
		rules, err := l.rules.GetTx(ctx, tx, tenant)
		if err != nil {
			return err
		}
		if rules == nil {
			rules = &model.Rules{Tenant: tenant, ReserveOpenAfter: l.settings.ReserveOpenAfter}
		}
		rules.DefaultThreshold = threshold
		return l.rules.Upsert(ctx, tx, rules)
	})
}

var hhmmRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// ToggleReserveSlot opens or closes the gated final time slot for a
// tenant. Enabling before the open-after wall-clock time is rejected:
// the reserve slot exists for end-of-day overflow, not early booking.
func (l *Ledger) ToggleReserveSlot(ctx context.Context, tenant string, enabled bool, openAfter string) (*model.Rules, error) {
	if tenant == "" {
		return nil, fmt.Errorf("%w: tenant is required", repository.ErrValidation)
	}
	if openAfter != "" && !hhmmRe.MatchString(openAfter) {
		return nil, fmt.Errorf("%w: open-after must be HH:MM, got %q", repository.ErrValidation, openAfter)
	}
	var rules *model.Rules
	err := l.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		rules, err = l.rules.GetTx(ctx, tx, tenant)
		if err != nil {
			return err
		}
		if rules == nil {
			rules = &model.Rules{Tenant: tenant, ReserveOpenAfter: l.settings.ReserveOpenAfter}
		}
		if openAfter != "" {
			rules.ReserveOpenAfter = openAfter
		}
		if rules.ReserveOpenAfter == "" {
			rules.ReserveOpenAfter = l.settings.ReserveOpenAfter
		}
		if enabled && l.now().In(l.settings.TZ).Format("15:04") < rules.ReserveOpenAfter {
			return fmt.Errorf("%w: reserve slot cannot open before %s", repository.ErrPolicy, rules.ReserveOpenAfter)
		}
		rules.ReserveEnabled = enabled
		return l.rules.Upsert(ctx, tx, rules)
	})
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// DisableSlot takes one exclusive position or one pooled bucket out of
// service. A BOOKED position cannot be disabled; cancel it first.
func (l *Ledger) DisableSlot(ctx context.Context, tenant, date, slotTime, position, mergeKey string) error {
	return l.setAvailability(ctx, tenant, date, slotTime, position, mergeKey, false)
}

// EnableSlot returns a disabled position or bucket to service.
func (l *Ledger) EnableSlot(ctx context.Context, tenant, date, slotTime, position, mergeKey string) error {
	return l.setAvailability(ctx, tenant, date, slotTime, position, mergeKey, true)
}

func (l *Ledger) setAvailability(ctx context.Context, tenant, date, slotTime, position, mergeKey string, enable bool) error {
	if tenant == "" || date == "" || slotTime == "" {
		return fmt.Errorf("%w: tenant, date and time are required", repository.ErrValidation)
	}
	if (position == "") == (mergeKey == "") {
		return fmt.Errorf("%w: exactly one of position or merge key is required", repository.ErrValidation)
	}
	return l.withTx(ctx, func(tx *sql.Tx) error {
		if mergeKey != "" {
			status := model.SlotDisabled
			if enable {
				status = model.SlotAvailable
			}
			return l.capacity.SetPooledStatusTx(ctx, tx, tenant, date, slotTime, mergeKey, status)
		}
		rec, err := l.capacity.GetExclusiveTx(ctx, tx, tenant, date, slotTime, position)
		if err != nil {
			return err
		}
		if rec == nil {
			if enable {
				// Absent record already means AVAILABLE.
				return nil
			}
			rec = &model.SlotCapacity{
				Tenant:   tenant,
				Date:     date,
				Time:     slotTime,
				Kind:     model.KindExclusive,
				Position: position,
				Status:   model.SlotDisabled,
			}
			return l.capacity.InsertTx(ctx, tx, rec)
		}
		if enable {
			return l.capacity.SetExclusiveStatusTx(ctx, tx, tenant, date, slotTime, position,
				model.SlotAvailable, model.SlotDisabled, model.SlotClosed)
		}
		// BOOKED deliberately missing from the allowed set.
		return l.capacity.SetExclusiveStatusTx(ctx, tx, tenant, date, slotTime, position,
			model.SlotDisabled, model.SlotAvailable, model.SlotClosed)
	})
}

// AssignCluster pins a (date, order, distributor) to a named merge
// group. Subsequent pooled bookings for that order and distributor
// bypass geo matching and land in the named bucket.
func (l *Ledger) AssignCluster(ctx context.Context, tenant, date, orderRef, distributorCode, clusterID string) error {
	if tenant == "" || date == "" || orderRef == "" || distributorCode == "" || clusterID == "" {
		return fmt.Errorf("%w: tenant, date, order, distributor and cluster id are required", repository.ErrValidation)
	}
	return l.withTx(ctx, func(tx *sql.Tx) error {
		return l.rules.AssignCluster(ctx, tx, &model.ClusterAssignment{
			Tenant:          tenant,
			Date:            date,
			OrderRef:        orderRef,
			DistributorCode: distributorCode,
			ClusterID:       clusterID,
		})
	})
}
