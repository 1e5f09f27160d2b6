package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/tickin/dock-slot-service/internal/model"
)

// BookingRepo provides data access to the slot_bookings table. One row
// exists per individual contribution. Exclusive bookings are deleted
// on cancellation; pooled bookings are retained with a CANCELLED
// status so bucket history survives for audit.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingCols = `booking_id, tenant, slot_date, slot_time, booking_type, position,
	merge_key, contributor, distributor_code, distributor_name, lat, lng, amount,
	order_ref, status, created_at, updated_at`

func scanBooking(row interface{ Scan(...any) error }) (*model.Booking, error) {
	var b model.Booking
	err := row.Scan(&b.BookingID, &b.Tenant, &b.Date, &b.Time, &b.Type, &b.Position,
		&b.MergeKey, &b.Contributor, &b.DistributorCode, &b.DistributorName,
		&b.Lat, &b.Lng, &b.Amount, &b.OrderRef, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// InsertTx inserts a booking within the provided transaction,
// generating the booking ID when unset. active_order_ref is written
// only for active bookings carrying an order reference; the unique key
// over (tenant, slot_date, active_order_ref) then rejects a second
// active booking for the same order, whichever capacity row it targets.
func (r *BookingRepo) InsertTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	if b.BookingID == "" {
		b.BookingID = uuid.NewString()
	}
	ts := nowStamp()
	b.CreatedAt, b.UpdatedAt = ts, ts
	var activeRef any
	if b.OrderRef != "" && b.Status != model.BookingCancelled {
		activeRef = b.OrderRef
	}
	const q = `INSERT INTO slot_bookings (` + bookingCols + `, active_order_ref)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, b.BookingID, b.Tenant, b.Date, b.Time, b.Type,
		b.Position, b.MergeKey, b.Contributor, b.DistributorCode, b.DistributorName,
		b.Lat, b.Lng, b.Amount, b.OrderRef, b.Status, b.CreatedAt, b.UpdatedAt, activeRef)
	return err
}

// HasActiveByOrderTx reports whether the originating order already has
// a non-cancelled booking in this tenant/date. This is the friendly
// pre-check for a clean error message; the unique key on
// active_order_ref is the backstop that holds under concurrent inserts.
func (r *BookingRepo) HasActiveByOrderTx(ctx context.Context, tx *sql.Tx, tenant, date, orderRef string) (bool, error) {
	const q = `SELECT COUNT(*) FROM slot_bookings
	           WHERE tenant = ? AND slot_date = ? AND order_ref = ? AND status <> ?`
	var n int
	if err := tx.QueryRowContext(ctx, q, tenant, date, orderRef, model.BookingCancelled).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetTx loads one booking by ID, returning ErrNotFound when absent.
func (r *BookingRepo) GetTx(ctx context.Context, tx *sql.Tx, bookingID string) (*model.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM slot_bookings WHERE booking_id = ?`
	b, err := scanBooking(tx.QueryRowContext(ctx, q, bookingID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return b, err
}

// DeleteTx removes a booking row (exclusive cancellation path).
// Returns ErrNotFound when no row matched.
func (r *BookingRepo) DeleteTx(ctx context.Context, tx *sql.Tx, bookingID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM slot_bookings WHERE booking_id = ?`, bookingID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindExclusiveTx locates the active booking occupying one exclusive
// slot key, used when cancelling by (date, time, position, occupant).
func (r *BookingRepo) FindExclusiveTx(ctx context.Context, tx *sql.Tx, tenant, date, slotTime, position, contributor string) (*model.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM slot_bookings
	           WHERE tenant = ? AND slot_date = ? AND slot_time = ? AND position = ?
	             AND contributor = ? AND booking_type = ? AND status <> ?`
	b, err := scanBooking(tx.QueryRowContext(ctx, q, tenant, date, slotTime, position,
		contributor, model.TypeFull, model.BookingCancelled))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return b, err
}

// MoveTx rewrites a booking's merge key and status in one statement,
// conditioned on the booking still pointing at the expected source
// bucket. Used by the manager move operation.
func (r *BookingRepo) MoveTx(ctx context.Context, tx *sql.Tx, bookingID, fromMergeKey, toMergeKey, status string) error {
	const q = `UPDATE slot_bookings SET merge_key = ?, status = ?, updated_at = ?
	           WHERE booking_id = ? AND merge_key = ? AND status <> ?`
	res, err := tx.ExecContext(ctx, q, toMergeKey, status, nowStamp(),
		bookingID, fromMergeKey, model.BookingCancelled)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// ConfirmByMergeKeyTx advances every pending member booking of a
// bucket to CONFIRMED. Returns the number of bookings advanced.
func (r *BookingRepo) ConfirmByMergeKeyTx(ctx context.Context, tx *sql.Tx, tenant, date, slotTime, mergeKey string) (int64, error) {
	const q = `UPDATE slot_bookings SET status = ?, updated_at = ?
	           WHERE tenant = ? AND slot_date = ? AND slot_time = ? AND merge_key = ?
	             AND status = ?`
	res, err := tx.ExecContext(ctx, q, model.BookingConfirmed, nowStamp(),
		tenant, date, slotTime, mergeKey, model.BookingPendingConfirm)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListByMergeKey returns all non-cancelled bookings of one bucket,
// oldest first. Plain read used for views and invariant checks.
func (r *BookingRepo) ListByMergeKey(ctx context.Context, tenant, date, slotTime, mergeKey string) ([]model.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM slot_bookings
	           WHERE tenant = ? AND slot_date = ? AND slot_time = ? AND merge_key = ?
	             AND status <> ?
	           ORDER BY created_at, booking_id`
	rows, err := r.db.QueryContext(ctx, q, tenant, date, slotTime, mergeKey, model.BookingCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}
