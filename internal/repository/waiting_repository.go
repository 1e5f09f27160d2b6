package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/tickin/dock-slot-service/internal/model"
)

// WaitingQueueRepo provides data access to the waiting_queue table.
// Entries are FIFO by creation time within one bucket; the ledger only
// appends here, consumption is a manual manager workflow.
type WaitingQueueRepo struct {
	db *sql.DB
}

// NewWaitingQueueRepo returns a WaitingQueueRepo bound to the database.
func NewWaitingQueueRepo(db *sql.DB) *WaitingQueueRepo { return &WaitingQueueRepo{db: db} }

// InsertTx appends a waiting entry within the provided transaction.
func (r *WaitingQueueRepo) InsertTx(ctx context.Context, tx *sql.Tx, w *model.WaitingEntry) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	w.Status = model.BookingWaiting
	w.CreatedAt = nowStamp()
	const q = `INSERT INTO waiting_queue
	           (id, tenant, slot_date, slot_time, merge_key, contributor, distributor_code, amount, status, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, w.ID, w.Tenant, w.Date, w.Time, w.MergeKey,
		w.Contributor, w.DistributorCode, w.Amount, w.Status, w.CreatedAt)
	return err
}

// ListByBucket returns the queued entries of one bucket, oldest first.
func (r *WaitingQueueRepo) ListByBucket(ctx context.Context, tenant, date, slotTime, mergeKey string) ([]model.WaitingEntry, error) {
	const q = `SELECT id, tenant, slot_date, slot_time, merge_key, contributor,
	                  distributor_code, amount, status, created_at
	           FROM waiting_queue
	           WHERE tenant = ? AND slot_date = ? AND slot_time = ? AND merge_key = ?
	           ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, q, tenant, date, slotTime, mergeKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.WaitingEntry
	for rows.Next() {
		var w model.WaitingEntry
		if err := rows.Scan(&w.ID, &w.Tenant, &w.Date, &w.Time, &w.MergeKey,
			&w.Contributor, &w.DistributorCode, &w.Amount, &w.Status, &w.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
