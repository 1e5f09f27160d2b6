package model

// WaitingEntry is an overflow record created when a pooled contribution
// targets a bucket that is already confirmed or disabled. Entries are
// consumed only by manual intervention; the ledger never auto-promotes
// them.
type WaitingEntry struct {
	ID              string
	Tenant          string
	Date            string
	Time            string
	MergeKey        string
	Contributor     string
	DistributorCode string
	Amount          int64
	Status          string // always WAITING while queued
	CreatedAt       string
}
