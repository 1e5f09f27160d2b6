package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/tickin/dock-slot-service/internal/model"
)

// CapacityRepo provides data access to the slot_capacity table, the
// sole shared mutable resource of the booking ledger. Every mutation is
// a single conditional statement — "update succeeds only if the row is
// in the expected state" — so concurrent writers for the same key can
// never both win. Multi-record effects are composed by the service
// layer inside one transaction using the ...Tx variants.
type CapacityRepo struct {
	db *sql.DB
}

// NewCapacityRepo returns a CapacityRepo bound to the given database.
func NewCapacityRepo(db *sql.DB) *CapacityRepo { return &CapacityRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions.
func (r *CapacityRepo) DB() *sql.DB { return r.db }

const capacityCols = `id, tenant, slot_date, slot_time, kind, position, merge_key,
	status, occupant, total_amount, max_amount, trip_status, lat, lng, blink,
	created_at, updated_at`

func scanCapacity(row interface{ Scan(...any) error }) (*model.SlotCapacity, error) {
	var c model.SlotCapacity
	var blink int
	err := row.Scan(&c.ID, &c.Tenant, &c.Date, &c.Time, &c.Kind, &c.Position,
		&c.MergeKey, &c.Status, &c.Occupant, &c.TotalAmount, &c.MaxAmount,
		&c.TripStatus, &c.Lat, &c.Lng, &blink, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Blink = blink != 0
	return &c, nil
}

// nowStamp returns the UTC timestamp written into created_at/updated_at.
func nowStamp() string { return time.Now().UTC().Format(time.RFC3339) }

// InsertTx inserts a capacity record. The composite unique key
// (tenant, date, time, position, mergeKey) arbitrates creation races:
// when two writers mint the same key concurrently, exactly one insert
// succeeds and the loser surfaces the constraint error.
func (r *CapacityRepo) InsertTx(ctx context.Context, tx *sql.Tx, c *model.SlotCapacity) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	ts := nowStamp()
	c.CreatedAt, c.UpdatedAt = ts, ts
	blink := 0
	if c.Blink {
		blink = 1
	}
	const q = `INSERT INTO slot_capacity (` + capacityCols + `)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, c.ID, c.Tenant, c.Date, c.Time, c.Kind,
		c.Position, c.MergeKey, c.Status, c.Occupant, c.TotalAmount, c.MaxAmount,
		c.TripStatus, c.Lat, c.Lng, blink, c.CreatedAt, c.UpdatedAt)
	return err
}

// GetExclusiveTx loads the exclusive-slot record for one
// (tenant, date, time, position) key. Absent rows are a valid state
// (the slot is in its dense default); (nil, nil) is returned for them.
func (r *CapacityRepo) GetExclusiveTx(ctx context.Context, tx *sql.Tx, tenant, date, slotTime, position string) (*model.SlotCapacity, error) {
	const q = `SELECT ` + capacityCols + ` FROM slot_capacity
	           WHERE tenant = ? AND slot_date = ? AND slot_time = ? AND position = ? AND kind = ?`
	c, err := scanCapacity(tx.QueryRowContext(ctx, q, tenant, date, slotTime, position, model.KindExclusive))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// GetPooledTx loads the pooled-bucket record for one merge key, or
// (nil, nil) when the bucket has not been created yet.
func (r *CapacityRepo) GetPooledTx(ctx context.Context, tx *sql.Tx, tenant, date, slotTime, mergeKey string) (*model.SlotCapacity, error) {
	const q = `SELECT ` + capacityCols + ` FROM slot_capacity
	           WHERE tenant = ? AND slot_date = ? AND slot_time = ? AND merge_key = ? AND kind = ?`
	c, err := scanCapacity(tx.QueryRowContext(ctx, q, tenant, date, slotTime, mergeKey, model.KindPooled))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// ListPooledByTimeTx returns every pooled bucket for a time slot,
// ordered by merge key so geo scans are deterministic.
func (r *CapacityRepo) ListPooledByTimeTx(ctx context.Context, tx *sql.Tx, tenant, date, slotTime string) ([]model.SlotCapacity, error) {
	const q = `SELECT ` + capacityCols + ` FROM slot_capacity
	           WHERE tenant = ? AND slot_date = ? AND slot_time = ? AND kind = ?
	           ORDER BY merge_key`
	rows, err := tx.QueryContext(ctx, q, tenant, date, slotTime, model.KindPooled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SlotCapacity
	for rows.Next() {
		c, err := scanCapacity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ListByDate returns all persisted capacity records for a tenant/date,
// exclusive overrides and pooled buckets alike, ordered by key. Used
// by the grid builder; plain read outside any transaction.
func (r *CapacityRepo) ListByDate(ctx context.Context, tenant, date string) ([]model.SlotCapacity, error) {
	const q = `SELECT ` + capacityCols + ` FROM slot_capacity
	           WHERE tenant = ? AND slot_date = ?
	           ORDER BY slot_time, kind, position, merge_key`
	rows, err := r.db.QueryContext(ctx, q, tenant, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SlotCapacity
	for rows.Next() {
		c, err := scanCapacity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ClaimExclusiveTx transitions an existing exclusive slot AVAILABLE ->
// BOOKED for the given occupant. It returns ErrConflict when the slot
// is not currently AVAILABLE (another contributor won the race, or the
// slot is closed/disabled). Absent rows must be created with InsertTx
// first; the unique key resolves concurrent creations.
func (r *CapacityRepo) ClaimExclusiveTx(ctx context.Context, tx *sql.Tx, tenant, date, slotTime, position, occupant string) error {
	const q = `UPDATE slot_capacity
	           SET status = ?, occupant = ?, updated_at = ?
	           WHERE tenant = ? AND slot_date = ? AND slot_time = ? AND position = ?
	             AND kind = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, model.SlotBooked, occupant, nowStamp(),
		tenant, date, slotTime, position, model.KindExclusive, model.SlotAvailable)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// ReleaseExclusiveTx resets a BOOKED exclusive slot to AVAILABLE,
// conditioned on the slot being held by the exact occupant. Returns
// ErrConflict when the occupant does not match or the slot is not
// currently BOOKED.
func (r *CapacityRepo) ReleaseExclusiveTx(ctx context.Context, tx *sql.Tx, tenant, date, slotTime, position, occupant string) error {
	const q = `UPDATE slot_capacity
	           SET status = ?, occupant = '', updated_at = ?
	           WHERE tenant = ? AND slot_date = ? AND slot_time = ? AND position = ?
	             AND kind = ? AND status = ? AND occupant = ?`
	res, err := tx.ExecContext(ctx, q, model.SlotAvailable, nowStamp(),
		tenant, date, slotTime, position, model.KindExclusive, model.SlotBooked, occupant)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// SetExclusiveStatusTx moves an exclusive slot into the target status,
// conditioned on its current status being one of the allowed values.
// Disabling a BOOKED slot is rejected this way: BOOKED is simply never
// in the allowed set. Returns ErrConflict when no row matched.
func (r *CapacityRepo) SetExclusiveStatusTx(ctx context.Context, tx *sql.Tx, tenant, date, slotTime, position, target string, allowedFrom ...string) error {
	q := `UPDATE slot_capacity SET status = ?, updated_at = ?
	      WHERE tenant = ? AND slot_date = ? AND slot_time = ? AND position = ?
	        AND kind = ? AND status IN (`
	args := []any{target, nowStamp(), tenant, date, slotTime, position, model.KindExclusive}
	for i, s := range allowedFrom {
		if i > 0 {
			q += ","
		}
		q += "?"
		args = append(args, s)
	}
	q += ")"
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// AddAmountTx atomically credits a pooled bucket. The increment is a
// single statement so concurrent contributions never lose an update,
// and it is guarded against buckets already closed to new money.
// Returns ErrConflict when the bucket is CONFIRMED or disabled.
func (r *CapacityRepo) AddAmountTx(ctx context.Context, tx *sql.Tx, tenant, date, slotTime, mergeKey string, amount int64, blink bool) error {
	b := 0
	if blink {
		b = 1
	}
	const q = `UPDATE slot_capacity
	           SET total_amount = total_amount + ?, blink = ?, updated_at = ?
	           WHERE tenant = ? AND slot_date = ? AND slot_time = ? AND merge_key = ?
	             AND kind = ? AND trip_status <> ? AND status <> ?`
	res, err := tx.ExecContext(ctx, q, amount, b, nowStamp(),
		tenant, date, slotTime, mergeKey, model.KindPooled, model.TripConfirmed, model.SlotDisabled)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// DebitAmountTx atomically debits a pooled bucket, failing with
// ErrConflict when the debit would drive the running total negative or
// the bucket is already CONFIRMED.
func (r *CapacityRepo) DebitAmountTx(ctx context.Context, tx *sql.Tx, tenant, date, slotTime, mergeKey string, amount int64) error {
	const q = `UPDATE slot_capacity
	           SET total_amount = total_amount - ?, updated_at = ?
	           WHERE tenant = ? AND slot_date = ? AND slot_time = ? AND merge_key = ?
	             AND kind = ? AND trip_status <> ? AND total_amount >= ?`
	res, err := tx.ExecContext(ctx, q, amount, nowStamp(),
		tenant, date, slotTime, mergeKey, model.KindPooled, model.TripConfirmed, amount)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// SetTripStatusTx transitions a bucket between trip statuses,
// conditioned on the expected current status. Returns ErrConflict when
// the bucket was not in the expected state.
func (r *CapacityRepo) SetTripStatusTx(ctx context.Context, tx *sql.Tx, tenant, date, slotTime, mergeKey, from, to string) error {
	const q = `UPDATE slot_capacity SET trip_status = ?, updated_at = ?
	           WHERE tenant = ? AND slot_date = ? AND slot_time = ? AND merge_key = ?
	             AND kind = ? AND trip_status = ?`
	res, err := tx.ExecContext(ctx, q, to, nowStamp(),
		tenant, date, slotTime, mergeKey, model.KindPooled, from)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// SetMaxAmountTx overwrites the dispatch threshold of one bucket.
// Returns ErrNotFound when the bucket does not exist.
func (r *CapacityRepo) SetMaxAmountTx(ctx context.Context, tx *sql.Tx, tenant, date, slotTime, mergeKey string, max int64) error {
	const q = `UPDATE slot_capacity SET max_amount = ?, updated_at = ?
	           WHERE tenant = ? AND slot_date = ? AND slot_time = ? AND merge_key = ? AND kind = ?`
	res, err := tx.ExecContext(ctx, q, max, nowStamp(),
		tenant, date, slotTime, mergeKey, model.KindPooled)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPooledStatusTx toggles a bucket's availability (used by manager
// disable/enable). Returns ErrNotFound when the bucket does not exist.
func (r *CapacityRepo) SetPooledStatusTx(ctx context.Context, tx *sql.Tx, tenant, date, slotTime, mergeKey, status string) error {
	const q = `UPDATE slot_capacity SET status = ?, updated_at = ?
	           WHERE tenant = ? AND slot_date = ? AND slot_time = ? AND merge_key = ? AND kind = ?`
	res, err := tx.ExecContext(ctx, q, status, nowStamp(),
		tenant, date, slotTime, mergeKey, model.KindPooled)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
