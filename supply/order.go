/*
order.go - Order state machine

PURPOSE:
  Owns the legal transitions of an order:

    PENDING -> APPROVED   (by the order's distributor)
    PENDING -> REJECTED   (by the order's distributor)
    PENDING -> CANCELLED  (by the owning consumer)

  APPROVED, REJECTED and CANCELLED are terminal. Any transition from a
  terminal state fails with ErrOrderAlreadyFinalized; any transition by
  the wrong actor fails with ErrForbidden.

  Transitions here are pure state changes. The ledger side effects
  (consume on approval, release on rejection/cancellation) are applied
  by the fulfillment coordinator, under the same per-order gate.

SEE ALSO:
  - fulfillment.go: Persists transitions and applies ledger effects
*/
package supply

import "time"

// Approve transitions PENDING -> APPROVED. Only the distributor the
// order was resolved to may approve.
func (o *Order) Approve(actor DistributorID, at time.Time) error {
	if o.Status.IsTerminal() {
		return ErrOrderAlreadyFinalized
	}
	if actor != o.DistributorID {
		return &ForbiddenError{OrderID: o.ID, ActorID: string(actor), Action: "approve"}
	}

	o.Status = OrderApproved
	o.DecidedBy = string(actor)
	o.DecidedAt = &at
	o.UpdatedAt = at
	return nil
}

// Reject transitions PENDING -> REJECTED. Only the distributor the
// order was resolved to may reject.
func (o *Order) Reject(actor DistributorID, reason string, at time.Time) error {
	if o.Status.IsTerminal() {
		return ErrOrderAlreadyFinalized
	}
	if actor != o.DistributorID {
		return &ForbiddenError{OrderID: o.ID, ActorID: string(actor), Action: "reject"}
	}

	o.Status = OrderRejected
	o.DecidedBy = string(actor)
	o.DecidedAt = &at
	o.RejectionReason = reason
	o.UpdatedAt = at
	return nil
}

// Cancel transitions PENDING -> CANCELLED. Only the owning consumer
// may cancel, and only before any distributor decision.
func (o *Order) Cancel(actor ConsumerID, at time.Time) error {
	if o.Status.IsTerminal() {
		return ErrOrderAlreadyFinalized
	}
	if actor != o.ConsumerID {
		return &ForbiddenError{OrderID: o.ID, ActorID: string(actor), Action: "cancel"}
	}

	o.Status = OrderCancelled
	o.UpdatedAt = at
	return nil
}
