/*
fulfillment.go - Order placement and decision orchestration

PURPOSE:
  The coordinator that ties the trace store, the inventory ledger and
  the order store together. Placement admits an order only if the batch
  has enough unreserved stock; decisions convert or release the hold.

PLACEMENT FLOW:
  1. Load batch                  -> ErrUnknownBatch if absent
  2. Resolve distributor         -> ErrDistributorUnresolved if no
     TRANSPORT event (the trace is the authority, never the batch row)
  3. Reserve quantity            -> InsufficientStockError propagated
  4. Build PENDING order: uuid order ID, consumer snapshot, expected
     delivery = latest TRANSPORT timestamp + transit lead time
  5. Persist; on failure the reservation is released (compensating
     action) and ErrPersistenceFailed surfaces. Retrying with the same
     client-supplied order ID is idempotent.

CART CHECKOUT:
  Each line item is an independent unit of work. A failure on one item
  does NOT roll back reservations already committed for earlier items;
  the caller reports partial success per item. This preserves the
  observed product behavior rather than imposing all-or-nothing
  semantics nobody asked for.

CONCURRENCY:
  Decisions and cancellations serialize per order ID, so a second
  concurrent approve/reject observes the terminal state and fails with
  ErrOrderAlreadyFinalized. Stock admission itself is serialized per
  batch inside the ledger.

SEE ALSO:
  - ledger.go: Reserve/Release/Consume semantics
  - order.go: The pure transition rules
*/
package supply

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// FULFILLMENT SERVICE
// =============================================================================

type FulfillmentService struct {
	store  Store
	ledger *InventoryLedger
	trace  *TraceService

	mu    sync.Mutex
	gates map[OrderID]*sync.Mutex

	now func() time.Time
}

func NewFulfillmentService(store Store, ledger *InventoryLedger, trace *TraceService) *FulfillmentService {
	return &FulfillmentService{
		store:  store,
		ledger: ledger,
		trace:  trace,
		gates:  make(map[OrderID]*sync.Mutex),
		now:    time.Now,
	}
}

func (s *FulfillmentService) gate(id OrderID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gates[id]
	if !ok {
		g = &sync.Mutex{}
		s.gates[id] = g
	}
	return g
}

// =============================================================================
// BATCH CREATION - Origin of quantityTotal
// =============================================================================

// CreateBatch persists a new batch and opens its ledger entry. The
// quantity recorded here is immutable; every later stock movement goes
// through the ledger.
func (s *FulfillmentService) CreateBatch(ctx context.Context, b Batch) (*Batch, error) {
	if !b.QuantityTotal.IsPositive() {
		return nil, fmt.Errorf("create batch: %w", ErrInvalidQuantity)
	}
	if b.ID == "" {
		b.ID = BatchID("BATCH-" + uuid.NewString())
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now().UTC()
	}

	if err := s.store.SaveBatch(ctx, b); err != nil {
		return nil, fmt.Errorf("save batch %s: %w", b.ID, err)
	}
	s.ledger.RegisterBatch(b.ID, b.QuantityTotal)
	return &b, nil
}

// =============================================================================
// ORDER PLACEMENT
// =============================================================================

// PlaceOrderRequest is a single admission request.
//
// OrderID may be supplied by the client for idempotent retry; when
// empty a collision-resistant ID is generated.
type PlaceOrderRequest struct {
	OrderID    OrderID
	BatchID    BatchID
	ConsumerID ConsumerID
	Quantity   Quantity
	Snapshot   ConsumerSnapshot
}

// PlaceOrder admits a consumer order against a batch's unreserved
// stock. See the file header for the exact flow and failure modes.
func (s *FulfillmentService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	// Idempotent retry: same client-generated ID returns the already
	// admitted order without touching the ledger again.
	if req.OrderID != "" {
		existing, err := s.store.GetOrder(ctx, req.OrderID)
		if err != nil {
			return nil, fmt.Errorf("load order %s: %w", req.OrderID, err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	batch, err := s.store.GetBatch(ctx, req.BatchID)
	if err != nil {
		return nil, fmt.Errorf("load batch %s: %w", req.BatchID, err)
	}
	if batch == nil {
		return nil, fmt.Errorf("place order: batch %s: %w", req.BatchID, ErrUnknownBatch)
	}

	distributorID, transport, err := s.trace.ResolveCurrentDistributor(ctx, req.BatchID)
	if err != nil {
		return nil, err
	}

	quantity := Quantity{Value: req.Quantity.Value, Unit: batch.QuantityTotal.Unit}
	reservationID, err := s.ledger.Reserve(req.BatchID, quantity)
	if err != nil {
		return nil, err
	}

	orderID := req.OrderID
	if orderID == "" {
		orderID = OrderID("ORD-" + uuid.NewString())
	}

	placedAt := s.now().UTC()
	order := Order{
		ID:               orderID,
		BatchID:          batch.ID,
		ConsumerID:       req.ConsumerID,
		DistributorID:    distributorID,
		ReservationID:    reservationID,
		Product:          batch.CropName,
		Quantity:         quantity,
		UnitCost:         batch.CostPerUnit,
		Snapshot:         normalizeSnapshot(req.Snapshot),
		Status:           OrderPending,
		PlacedAt:         placedAt,
		ExpectedDelivery: transport.Timestamp.Add(TransitLeadTime),
		UpdatedAt:        placedAt,
	}

	if err := s.store.SaveOrder(ctx, order); err != nil {
		// Compensate: a failed admission must leave the ledger exactly
		// as it was before the call.
		if relErr := s.ledger.Release(reservationID); relErr != nil {
			return nil, fmt.Errorf("save order %s: %v (release failed: %v): %w", orderID, err, relErr, ErrPersistenceFailed)
		}
		return nil, fmt.Errorf("save order %s: %v: %w", orderID, err, ErrPersistenceFailed)
	}

	return &order, nil
}

// normalizeSnapshot fills the address fallback the way the consumer
// checkout always has.
func normalizeSnapshot(snap ConsumerSnapshot) ConsumerSnapshot {
	if strings.TrimSpace(snap.Address) == "" {
		snap.Address = "Address not set"
	}
	return snap
}

// =============================================================================
// CART CHECKOUT - Per-item units of work
// =============================================================================

// CheckoutResult reports the outcome for one cart line.
type CheckoutResult struct {
	Request PlaceOrderRequest
	Order   *Order
	Err     error
}

// Checkout places each cart item independently. Earlier successes are
// never rolled back by a later failure; inspect each result.
func (s *FulfillmentService) Checkout(ctx context.Context, items []PlaceOrderRequest) []CheckoutResult {
	results := make([]CheckoutResult, 0, len(items))
	for _, item := range items {
		order, err := s.PlaceOrder(ctx, item)
		results = append(results, CheckoutResult{Request: item, Order: order, Err: err})
	}
	return results
}

// =============================================================================
// DECISIONS
// =============================================================================

// Decide applies a distributor's APPROVED or REJECTED decision to a
// pending order. The transition is persisted first, then the ledger
// hold is consumed or released; the per-order gate keeps the pair
// atomic with respect to concurrent decisions.
func (s *FulfillmentService) Decide(ctx context.Context, distributorID DistributorID, orderID OrderID, decision OrderStatus, reason string) (*Order, error) {
	if decision != OrderApproved && decision != OrderRejected {
		return nil, fmt.Errorf("decision must be %s or %s, got %q", OrderApproved, OrderRejected, decision)
	}

	g := s.gate(orderID)
	g.Lock()
	defer g.Unlock()

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if order == nil {
		return nil, fmt.Errorf("decide: order %s: %w", orderID, ErrUnknownOrder)
	}

	at := s.now().UTC()
	if decision == OrderApproved {
		err = order.Approve(distributorID, at)
	} else {
		err = order.Reject(distributorID, reason, at)
	}
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateOrderStatus(ctx, *order); err != nil {
		return nil, fmt.Errorf("persist decision for order %s: %v: %w", orderID, err, ErrPersistenceFailed)
	}

	if decision == OrderApproved {
		err = s.ledger.Consume(order.ReservationID)
	} else {
		err = s.ledger.Release(order.ReservationID)
	}
	if err != nil {
		return nil, fmt.Errorf("finalize reservation for order %s: %w", orderID, err)
	}

	return order, nil
}

// CancelOrder lets the owning consumer withdraw a PENDING order. The
// hold returns to available stock.
func (s *FulfillmentService) CancelOrder(ctx context.Context, consumerID ConsumerID, orderID OrderID) (*Order, error) {
	g := s.gate(orderID)
	g.Lock()
	defer g.Unlock()

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if order == nil {
		return nil, fmt.Errorf("cancel: order %s: %w", orderID, ErrUnknownOrder)
	}

	if err := order.Cancel(consumerID, s.now().UTC()); err != nil {
		return nil, err
	}

	if err := s.store.UpdateOrderStatus(ctx, *order); err != nil {
		return nil, fmt.Errorf("persist cancellation for order %s: %v: %w", orderID, err, ErrPersistenceFailed)
	}

	if err := s.ledger.Release(order.ReservationID); err != nil {
		return nil, fmt.Errorf("release reservation for order %s: %w", orderID, err)
	}

	return order, nil
}

// =============================================================================
// STARTUP
// =============================================================================

// RecoverLedger rebuilds the in-memory ledger from persisted batches
// and orders. Called once at startup before serving traffic.
func (s *FulfillmentService) RecoverLedger(ctx context.Context) error {
	batches, err := s.store.ListBatches(ctx)
	if err != nil {
		return fmt.Errorf("list batches: %w", err)
	}
	orders, err := s.store.ListOrders(ctx)
	if err != nil {
		return fmt.Errorf("list orders: %w", err)
	}
	return s.ledger.Rebuild(batches, orders)
}
