/*
store.go - Persistence interfaces for batches, trace events, and orders

PURPOSE:
  Defines the boundary between the engine and the database. Batch,
  TraceEvent and Order records must survive process restarts; ledger
  state is deliberately NOT persisted — it is rebuilt from Order
  records (see ledger.go), so it can never be trusted stale.

APPEND-ONLY CONTRACT:
  TraceLog has no update or delete operations. Orders are inserted once
  and only their status fields ever change, always through the order
  state machine. Batches are inserted once; only trace projections
  (status, location, distributor) are updated.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite store
  - supply/store: In-memory store for tests and dev

SEE ALSO:
  - trace.go: Uses BatchStore + TraceLog
  - fulfillment.go: Uses OrderStore
*/
package supply

import "context"

// =============================================================================
// BATCH STORE
// =============================================================================

// BatchStore persists batch records. Batches are never deleted.
type BatchStore interface {
	// SaveBatch inserts a new batch. QuantityTotal is immutable after
	// this call; there is no operation that changes it.
	SaveBatch(ctx context.Context, b Batch) error

	// GetBatch returns the batch or nil if it doesn't exist.
	GetBatch(ctx context.Context, id BatchID) (*Batch, error)

	// ListBatches returns all batches.
	ListBatches(ctx context.Context) ([]Batch, error)

	// UpdateBatchProjection updates the trace-derived fields (status,
	// current location, distributor). Called only by the trace service
	// after a successful append.
	UpdateBatchProjection(ctx context.Context, id BatchID, status EventType, location string, distributorID DistributorID) error
}

// =============================================================================
// TRACE LOG - Append-only
// =============================================================================

// TraceLog persists custody events. APPEND-ONLY: no update, no delete.
type TraceLog interface {
	// AppendEvent persists one event. The caller (trace service) has
	// already assigned Seq and Timestamp under the per-batch gate.
	AppendEvent(ctx context.Context, e TraceEvent) error

	// LoadTrace returns all events for a batch ordered oldest to newest.
	LoadTrace(ctx context.Context, id BatchID) ([]TraceEvent, error)

	// LatestEvent returns the most recent event for a batch, or nil if
	// the batch has no events yet.
	LatestEvent(ctx context.Context, id BatchID) (*TraceEvent, error)
}

// =============================================================================
// ORDER STORE
// =============================================================================

// OrderStore persists orders. Orders are never deleted; they are the
// financial/audit record the ledger is rebuilt from.
type OrderStore interface {
	// SaveOrder inserts a new order. Inserting an ID that already
	// exists is a conflict; callers rely on this for idempotent retry.
	SaveOrder(ctx context.Context, o Order) error

	// UpdateOrderStatus persists a status transition (status, decision
	// audit fields). Never touches quantity or identity fields.
	UpdateOrderStatus(ctx context.Context, o Order) error

	// GetOrder returns the order or nil if it doesn't exist.
	GetOrder(ctx context.Context, id OrderID) (*Order, error)

	// ListOrdersByConsumer returns the consumer's orders, newest first.
	ListOrdersByConsumer(ctx context.Context, id ConsumerID) ([]Order, error)

	// ListOrdersByDistributor returns the distributor's orders, newest first.
	ListOrdersByDistributor(ctx context.Context, id DistributorID) ([]Order, error)

	// ListOrders returns every order. Used to rebuild the ledger.
	ListOrders(ctx context.Context) ([]Order, error)
}

// Store is what a full backing implementation provides.
type Store interface {
	BatchStore
	TraceLog
	OrderStore
}
