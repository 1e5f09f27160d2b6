package repository

import (
	"context"
	"database/sql"

	"github.com/tickin/dock-slot-service/internal/model"
)

// DistributorRepo provides data access to the normalized distributor
// registry. The registry is written once by the directory import and
// read as the fallback of the location lookup; field names are fixed
// by the schema, so lookups never probe alternate spellings.
type DistributorRepo struct {
	db *sql.DB
}

// NewDistributorRepo returns a DistributorRepo bound to the database.
func NewDistributorRepo(db *sql.DB) *DistributorRepo { return &DistributorRepo{db: db} }

const distributorCols = `code, tenant, name, location, lat, lng, maps_link`

// GetByCode loads one registry row, returning ErrNotFound when absent.
func (r *DistributorRepo) GetByCode(ctx context.Context, tenant, code string) (*model.Distributor, error) {
	const q = `SELECT ` + distributorCols + ` FROM distributors WHERE tenant = ? AND code = ?`
	var d model.Distributor
	err := r.db.QueryRowContext(ctx, q, tenant, code).Scan(
		&d.Code, &d.Tenant, &d.Name, &d.Location, &d.Lat, &d.Lng, &d.MapsLink)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListByTenant returns the whole registry of one tenant, used to build
// the in-memory location directory at startup.
func (r *DistributorRepo) ListByTenant(ctx context.Context, tenant string) ([]model.Distributor, error) {
	const q = `SELECT ` + distributorCols + ` FROM distributors WHERE tenant = ? ORDER BY code`
	rows, err := r.db.QueryContext(ctx, q, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Distributor
	for rows.Next() {
		var d model.Distributor
		if err := rows.Scan(&d.Code, &d.Tenant, &d.Name, &d.Location, &d.Lat, &d.Lng, &d.MapsLink); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Upsert writes one registry row, creating it when absent. Used by the
// directory import, which normalizes the source data before calling.
func (r *DistributorRepo) Upsert(ctx context.Context, d *model.Distributor) error {
	const up = `UPDATE distributors SET name = ?, location = ?, lat = ?, lng = ?, maps_link = ?
	            WHERE tenant = ? AND code = ?`
	res, err := r.db.ExecContext(ctx, up, d.Name, d.Location, d.Lat, d.Lng, d.MapsLink, d.Tenant, d.Code)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	const ins = `INSERT INTO distributors (` + distributorCols + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, ins, d.Code, d.Tenant, d.Name, d.Location, d.Lat, d.Lng, d.MapsLink)
	return err
}
