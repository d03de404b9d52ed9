/*
errors.go - Centralized error types for the supply engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Callers match with errors.Is/errors.As; the API layer maps them to
  HTTP statuses via the predicate helpers at the bottom.

PROPAGATION POLICY:
  Business-rule rejections (insufficient stock, unresolved distributor,
  forbidden actor) are returned to the caller unchanged and never
  retried automatically. ErrPersistenceFailed triggers a compensating
  reservation release in the coordinator and is safe to retry with the
  same client-supplied order ID.

SEE ALSO:
  - ledger.go: Raises stock and reservation errors
  - fulfillment.go: Raises placement and decision errors
*/
package supply

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnknownBatch is returned when a referenced batch doesn't exist.
	ErrUnknownBatch = errors.New("unknown batch")

	// ErrUnknownOrder is returned when a referenced order doesn't exist.
	ErrUnknownOrder = errors.New("unknown order")

	// ErrInsufficientStock is returned when a reservation exceeds the
	// batch's unreserved quantity. Wait for restock; do not retry.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrDistributorUnresolved is returned when a batch has no TRANSPORT
	// trace event yet, so no actor can own the order.
	ErrDistributorUnresolved = errors.New("no distributor assigned to batch")

	// ErrOutOfOrderEvent is returned when an appended event would precede
	// the batch's latest event. Timestamps are assigned server-side, so
	// this only surfaces for explicitly backdated appends.
	ErrOutOfOrderEvent = errors.New("trace event out of order")

	// ErrInvalidReservationState is returned when releasing or consuming
	// a reservation that was already finalized.
	ErrInvalidReservationState = errors.New("reservation already finalized")

	// ErrOrderAlreadyFinalized is returned on any transition attempted
	// from a terminal order state.
	ErrOrderAlreadyFinalized = errors.New("order already finalized")

	// ErrForbidden is returned when an actor other than the authorized
	// one attempts a transition.
	ErrForbidden = errors.New("actor not authorized for this order")

	// ErrPersistenceFailed is returned when an order cannot be stored.
	// The coordinator rolls back the reservation before surfacing it.
	ErrPersistenceFailed = errors.New("persistence failed")

	// ErrInvalidQuantity is returned for zero or negative order quantities.
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStockError reports how short the batch is.
type InsufficientStockError struct {
	BatchID   BatchID
	Available Quantity
	Requested Quantity
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for batch %s: available %v, requested %v",
		e.BatchID, e.Available.Value, e.Requested.Value)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// OutOfOrderEventError reports the timestamp conflict.
type OutOfOrderEventError struct {
	BatchID   BatchID
	Attempted time.Time
	Latest    time.Time
}

func (e *OutOfOrderEventError) Error() string {
	return fmt.Sprintf("out-of-order event for batch %s: %s precedes latest %s",
		e.BatchID, e.Attempted.Format(time.RFC3339), e.Latest.Format(time.RFC3339))
}

func (e *OutOfOrderEventError) Unwrap() error {
	return ErrOutOfOrderEvent
}

// ForbiddenError reports which actor was rejected for which order.
type ForbiddenError struct {
	OrderID OrderID
	ActorID string
	Action  string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("actor %s may not %s order %s", e.ActorID, e.Action, e.OrderID)
}

func (e *ForbiddenError) Unwrap() error {
	return ErrForbidden
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is a business-rule rejection
// of the caller's input rather than a server fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrDistributorUnresolved) ||
		errors.Is(err, ErrOutOfOrderEvent) ||
		errors.Is(err, ErrOrderAlreadyFinalized) ||
		errors.Is(err, ErrInvalidReservationState) ||
		errors.Is(err, ErrInvalidQuantity)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownBatch) || errors.Is(err, ErrUnknownOrder)
}

// IsForbidden returns true for authorization rejections.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}
