package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/tickin/dock-slot-service/internal/model"
)

// RulesRepo provides data access to the per-tenant slot_rules row and
// the cluster_assignments table. Rules are read on every booking call
// and mutated only by manager operations, so the write paths are plain
// upserts rather than conditional transitions.
type RulesRepo struct {
	db *sql.DB
}

// NewRulesRepo returns a RulesRepo bound to the given database.
func NewRulesRepo(db *sql.DB) *RulesRepo { return &RulesRepo{db: db} }

// GetTx loads the rules row for a tenant within a transaction.
// (nil, nil) is returned when the tenant has no explicit rules yet.
func (r *RulesRepo) GetTx(ctx context.Context, tx *sql.Tx, tenant string) (*model.Rules, error) {
	const q = `SELECT tenant, reserve_enabled, reserve_open_after, default_threshold, updated_at
	           FROM slot_rules WHERE tenant = ?`
	return scanRules(tx.QueryRowContext(ctx, q, tenant))
}

// Get is the non-transactional variant of GetTx.
func (r *RulesRepo) Get(ctx context.Context, tenant string) (*model.Rules, error) {
	const q = `SELECT tenant, reserve_enabled, reserve_open_after, default_threshold, updated_at
	           FROM slot_rules WHERE tenant = ?`
	return scanRules(r.db.QueryRowContext(ctx, q, tenant))
}

func scanRules(row *sql.Row) (*model.Rules, error) {
	var m model.Rules
	var enabled int
	err := row.Scan(&m.Tenant, &enabled, &m.ReserveOpenAfter, &m.DefaultThreshold, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.ReserveEnabled = enabled != 0
	return &m, nil
}

// Upsert writes the full rules row for a tenant, creating it when
// absent. Update-then-insert inside the caller's transaction; the
// tenant primary key resolves concurrent creations.
func (r *RulesRepo) Upsert(ctx context.Context, tx *sql.Tx, m *model.Rules) error {
	enabled := 0
	if m.ReserveEnabled {
		enabled = 1
	}
	ts := nowStamp()
	const up = `UPDATE slot_rules
	            SET reserve_enabled = ?, reserve_open_after = ?, default_threshold = ?, updated_at = ?
	            WHERE tenant = ?`
	res, err := tx.ExecContext(ctx, up, enabled, m.ReserveOpenAfter, m.DefaultThreshold, ts, m.Tenant)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	const ins = `INSERT INTO slot_rules
	             (tenant, reserve_enabled, reserve_open_after, default_threshold, updated_at)
	             VALUES (?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, ins, m.Tenant, enabled, m.ReserveOpenAfter, m.DefaultThreshold, ts)
	return err
}

// ClusterForTx resolves the explicit cluster assignment for one
// (date, order, distributor), returning "" when none exists. Explicit
// assignments take precedence over geo matching in the booking path.
func (r *RulesRepo) ClusterForTx(ctx context.Context, tx *sql.Tx, tenant, date, orderRef, distributorCode string) (string, error) {
	const q = `SELECT cluster_id FROM cluster_assignments
	           WHERE tenant = ? AND slot_date = ? AND order_ref = ? AND distributor_code = ?`
	var clusterID string
	err := tx.QueryRowContext(ctx, q, tenant, date, orderRef, distributorCode).Scan(&clusterID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return clusterID, nil
}

// AssignCluster upserts one cluster assignment. Assignments only
// influence bookings made after the write; existing buckets are never
// reshuffled.
func (r *RulesRepo) AssignCluster(ctx context.Context, tx *sql.Tx, a *model.ClusterAssignment) error {
	const up = `UPDATE cluster_assignments SET cluster_id = ?
	            WHERE tenant = ? AND slot_date = ? AND order_ref = ? AND distributor_code = ?`
	res, err := tx.ExecContext(ctx, up, a.ClusterID, a.Tenant, a.Date, a.OrderRef, a.DistributorCode)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = nowStamp()
	const ins = `INSERT INTO cluster_assignments
	             (id, tenant, slot_date, order_ref, distributor_code, cluster_id, created_at)
	             VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, ins, a.ID, a.Tenant, a.Date, a.OrderRef, a.DistributorCode, a.ClusterID, a.CreatedAt)
	return err
}
