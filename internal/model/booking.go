package model

// Booking types. A booking whose amount meets the effective threshold
// occupies a whole vehicle position (FULL); smaller contributions are
// pooled into merge buckets (HALF).
const (
	TypeFull = "FULL"
	TypeHalf = "HALF"
)

// Booking statuses.
const (
	BookingConfirmed      = "CONFIRMED"
	BookingPendingConfirm = "PENDING_MANAGER_CONFIRM"
	BookingWaiting        = "WAITING"
	BookingCancelled      = "CANCELLED"
)

// Booking is one individual contribution against the day's capacity.
// Exclusive bookings are deleted on cancellation; pooled bookings are
// retained with a CANCELLED marker so bucket history survives.
//
// Fields:
//  BookingID       – primary key (UUID).
//  Tenant          – owning company code.
//  Date, Time      – target slot key.
//  Type            – FULL or HALF.
//  Position        – claimed position (FULL only, "" otherwise).
//  MergeKey        – target bucket (HALF only, "" otherwise).
//  Contributor     – identity of the booking caller.
//  DistributorCode – distributor the booking is placed for.
//  DistributorName – resolved display name.
//  Lat, Lng        – distributor coordinate at booking time.
//  Amount          – monetary value of the contribution.
//  OrderRef        – originating order reference (duplicate guard).
//  Status          – CONFIRMED / PENDING_MANAGER_CONFIRM / WAITING / CANCELLED.
type Booking struct {
	BookingID       string
	Tenant          string
	Date            string
	Time            string
	Type            string
	Position        string
	MergeKey        string
	Contributor     string
	DistributorCode string
	DistributorName string
	Lat             float64
	Lng             float64
	Amount          int64
	OrderRef        string
	Status          string
	CreatedAt       string
	UpdatedAt       string
}
