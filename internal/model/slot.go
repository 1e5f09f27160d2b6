package model

// Statuses for exclusive (FULL) slots. An absent capacity record means
// the slot is in its default state: AVAILABLE, or CLOSED for the
// reserve slot while it is gated off.
const (
	SlotAvailable = "AVAILABLE"
	SlotBooked    = "BOOKED"
	SlotClosed    = "CLOSED"
	SlotDisabled  = "DISABLED"
)

// Trip statuses for pooled (HALF) merge buckets.
const (
	TripPartial         = "PARTIAL"
	TripReadyForConfirm = "READY_FOR_CONFIRM"
	TripConfirmed       = "CONFIRMED"
)

// Capacity record kinds. An EXCLUSIVE record is keyed by position, a
// POOLED record by merge key; the unused key column holds "".
const (
	KindExclusive = "EXCLUSIVE"
	KindPooled    = "POOLED"
)

// SlotCapacity is the single shared mutable resource of the ledger.
// One row exists per (tenant, date, time, position) for exclusive
// slots and per (tenant, date, time, mergeKey) for pooled buckets.
//
// Fields:
//  ID          – primary key (UUID).
//  Tenant      – owning company code.
//  Date        – delivery date, YYYY-MM-DD.
//  Time        – slot time, HH:MM.
//  Kind        – EXCLUSIVE or POOLED.
//  Position    – vehicle position (exclusive records only, "" otherwise).
//  MergeKey    – bucket identifier (pooled records only, "" otherwise).
//  Status      – exclusive slot state (AVAILABLE/BOOKED/CLOSED/DISABLED).
//  Occupant    – contributor holding an exclusive slot, if BOOKED.
//  TotalAmount – accumulated monetary value of a pooled bucket.
//  MaxAmount   – dispatch threshold for a pooled bucket.
//  TripStatus  – pooled bucket state (PARTIAL/READY_FOR_CONFIRM/CONFIRMED).
//  Lat, Lng    – bucket centroid coordinate (anchor of geo matching).
//  Blink       – true when the latest contribution merged into a
//                pre-existing bucket (UI highlight).
type SlotCapacity struct {
	ID          string
	Tenant      string
	Date        string
	Time        string
	Kind        string
	Position    string
	MergeKey    string
	Status      string
	Occupant    string
	TotalAmount int64
	MaxAmount   int64
	TripStatus  string
	Lat         float64
	Lng         float64
	Blink       bool
	CreatedAt   string
	UpdatedAt   string
}
