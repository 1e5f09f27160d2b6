// Package repository defines the error taxonomy shared by every
// repository and by the ledger service built on top of them. These
// sentinel values let higher layers such as handlers distinguish
// failure kinds without string matching: use errors.Is against the
// sentinels and fmt.Errorf("%w: ...") to add context when returning
// them. None of these errors are retried inside the ledger; contention
// is always surfaced to the caller.
package repository

import "errors"

// ErrValidation is returned for missing or malformed input, including
// a booking date outside the today/tomorrow window and a FULL booking
// without a position. Handlers translate it into HTTP 400.
var ErrValidation = errors.New("validation error")

// ErrConflict is returned when a conditional write loses: the slot is
// already occupied, the originating order already has an active
// booking, or a move would drive a bucket balance negative. Handlers
// translate it into HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrNotFound is returned when a referenced bucket, booking, slot or
// distributor does not exist. Handlers translate it into HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrPolicy is returned when an operation is well-formed but forbidden
// by tenant rules: the reserve slot is not open, or a bucket is being
// confirmed below its threshold. Handlers translate it into HTTP 422.
var ErrPolicy = errors.New("policy violation")

// ErrUnresolvedLocation is returned when a HALF booking cannot be
// geo-merged because no coordinate can be derived for the distributor.
var ErrUnresolvedLocation = errors.New("distributor location unresolved")
