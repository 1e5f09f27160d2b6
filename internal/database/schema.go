package database

import (
	"context"
	"database/sql"
)

// Schema holds the DDL for the four ledger collections plus the
// distributor registry and cluster assignments. The statements stay in
// the portable SQL subset so the same repositories run against MySQL in
// production and in-memory SQLite in tests. Timestamps are written by
// the application as RFC3339 strings; IDs are UUIDs generated in Go, so
// no auto-increment column is needed.
var Schema = []string{
	// One row per (tenant, date, time, position) exclusive slot or
	// (tenant, date, time, mergeKey) pooled bucket. The unused key
	// column holds "" so a single unique constraint covers both kinds.
	`CREATE TABLE IF NOT EXISTS slot_capacity (
		id           VARCHAR(36)  NOT NULL,
		tenant       VARCHAR(32)  NOT NULL,
		slot_date    VARCHAR(10)  NOT NULL,
		slot_time    VARCHAR(5)   NOT NULL,
		kind         VARCHAR(12)  NOT NULL,
		position     VARCHAR(8)   NOT NULL,
		merge_key    VARCHAR(64)  NOT NULL,
		status       VARCHAR(16)  NOT NULL,
		occupant     VARCHAR(64)  NOT NULL,
		total_amount BIGINT       NOT NULL,
		max_amount   BIGINT       NOT NULL,
		trip_status  VARCHAR(24)  NOT NULL,
		lat          DOUBLE       NOT NULL,
		lng          DOUBLE       NOT NULL,
		blink        TINYINT      NOT NULL,
		created_at   VARCHAR(32)  NOT NULL,
		updated_at   VARCHAR(32)  NOT NULL,
		PRIMARY KEY (id),
		UNIQUE (tenant, slot_date, slot_time, position, merge_key)
	)`,
	// active_order_ref mirrors order_ref only while the booking is
	// active (NULL otherwise); the unique key on it is what enforces
	// "at most one active booking per order per tenant/day" even when
	// two writers insert against disjoint capacity rows. NULLs never
	// collide, so bookings without an order are unconstrained.
	`CREATE TABLE IF NOT EXISTS slot_bookings (
		booking_id       VARCHAR(36)  NOT NULL,
		tenant           VARCHAR(32)  NOT NULL,
		slot_date        VARCHAR(10)  NOT NULL,
		slot_time        VARCHAR(5)   NOT NULL,
		booking_type     VARCHAR(8)   NOT NULL,
		position         VARCHAR(8)   NOT NULL,
		merge_key        VARCHAR(64)  NOT NULL,
		contributor      VARCHAR(64)  NOT NULL,
		distributor_code VARCHAR(32)  NOT NULL,
		distributor_name VARCHAR(128) NOT NULL,
		lat              DOUBLE       NOT NULL,
		lng              DOUBLE       NOT NULL,
		amount           BIGINT       NOT NULL,
		order_ref        VARCHAR(64)  NOT NULL,
		active_order_ref VARCHAR(64),
		status           VARCHAR(32)  NOT NULL,
		created_at       VARCHAR(32)  NOT NULL,
		updated_at       VARCHAR(32)  NOT NULL,
		PRIMARY KEY (booking_id),
		UNIQUE (tenant, slot_date, active_order_ref)
	)`,
	`CREATE TABLE IF NOT EXISTS waiting_queue (
		id               VARCHAR(36) NOT NULL,
		tenant           VARCHAR(32) NOT NULL,
		slot_date        VARCHAR(10) NOT NULL,
		slot_time        VARCHAR(5)  NOT NULL,
		merge_key        VARCHAR(64) NOT NULL,
		contributor      VARCHAR(64) NOT NULL,
		distributor_code VARCHAR(32) NOT NULL,
		amount           BIGINT      NOT NULL,
		status           VARCHAR(16) NOT NULL,
		created_at       VARCHAR(32) NOT NULL,
		PRIMARY KEY (id)
	)`,
	`CREATE TABLE IF NOT EXISTS slot_rules (
		tenant             VARCHAR(32) NOT NULL,
		reserve_enabled    TINYINT     NOT NULL,
		reserve_open_after VARCHAR(5)  NOT NULL,
		default_threshold  BIGINT      NOT NULL,
		updated_at         VARCHAR(32) NOT NULL,
		PRIMARY KEY (tenant)
	)`,
	`CREATE TABLE IF NOT EXISTS cluster_assignments (
		id               VARCHAR(36) NOT NULL,
		tenant           VARCHAR(32) NOT NULL,
		slot_date        VARCHAR(10) NOT NULL,
		order_ref        VARCHAR(64) NOT NULL,
		distributor_code VARCHAR(32) NOT NULL,
		cluster_id       VARCHAR(64) NOT NULL,
		created_at       VARCHAR(32) NOT NULL,
		PRIMARY KEY (id),
		UNIQUE (tenant, slot_date, order_ref, distributor_code)
	)`,
	`CREATE TABLE IF NOT EXISTS distributors (
		code      VARCHAR(32)  NOT NULL,
		tenant    VARCHAR(32)  NOT NULL,
		name      VARCHAR(128) NOT NULL,
		location  VARCHAR(64)  NOT NULL,
		lat       DOUBLE       NOT NULL,
		lng       DOUBLE       NOT NULL,
		maps_link VARCHAR(512) NOT NULL,
		PRIMARY KEY (tenant, code)
	)`,
}

// Migrate applies the schema statements in order. Each statement is
// idempotent (CREATE TABLE IF NOT EXISTS), so Migrate is safe to run on
// every startup.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
