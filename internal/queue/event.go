// Package queue defines message payloads exchanged over the message broker.
package queue

// Event types emitted by the capacity ledger. The timeline collaborator
// consumes these to build the per-order audit trail.
const (
	EventSlotBooked      = "SLOT_BOOKED"
	EventSlotCancelled   = "SLOT_CANCELLED"
	EventBucketConfirmed = "BUCKET_CONFIRMED"
	EventBookingMoved    = "BOOKING_MOVED"
	EventWaitingJoined   = "WAITING_JOINED"
)

// SlotEvent is published on every booking, confirmation, move,
// cancellation and waiting-queue enqueue. It carries enough context for
// downstream consumers to log or notify without querying the ledger.
// The ledger never blocks on or depends on delivery.
type SlotEvent struct {
	EventType string `json:"event_type"`
	Tenant    string `json:"tenant"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Actor     string `json:"actor"`
	OrderRef  string `json:"order_ref,omitempty"`
	BookingID string `json:"booking_id,omitempty"`
	Position  string `json:"position,omitempty"`
	MergeKey  string `json:"merge_key,omitempty"`
	Amount    int64  `json:"amount,omitempty"`
	EmittedAt string `json:"emitted_at"`
}
