/*
ledger.go - Inventory accounting per batch

PURPOSE:
  Tracks reserved vs. available quantity for every batch. This is the
  single correctness-critical data path in the system: two concurrent
  placements must never both succeed when only one unit of stock
  remains.

ACCOUNTING MODEL:
  Every batch has exactly one entry:

    available = quantityTotal - reserved - consumed

  reserved    sum of quantities held by PENDING orders
  consumed    sum of quantities of APPROVED orders (approval is terminal
              consumption; there is no separate delivery confirmation)

  INVARIANT: available >= 0 at all times, and
             reserved + consumed + available == quantityTotal.

RESERVATION LIFECYCLE:
  Reserve  -> active      (holds stock; handle returned to the caller)
  Release  -> released    (REJECTED/CANCELLED; stock returns to available)
  Consume  -> consumed    (APPROVED; stock permanently spent)

  Release/Consume on an already-finalized reservation fails with
  ErrInvalidReservationState. Holds have no automatic expiry; they are
  only released by an explicit decision.

CONCURRENCY:
  Each entry carries its own mutex, so reserve/release/consume are
  linearizable per batch while operations on different batches proceed
  independently. No cross-batch locking exists.

REBUILD:
  The ledger is never persisted. On startup it is rebuilt from Order
  records alone (Rebuild), so a stale cached quantity can never become
  the source of truth.

SEE ALSO:
  - fulfillment.go: The only caller of Reserve/Release/Consume
  - store.go: Order records the rebuild reads
*/
package supply

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// =============================================================================
// LEDGER ENTRY
// =============================================================================

type reservationState int

const (
	reservationActive reservationState = iota
	reservationReleased
	reservationConsumed
)

type reservation struct {
	id       ReservationID
	quantity Quantity
	state    reservationState
}

type ledgerEntry struct {
	mu           sync.Mutex
	total        Quantity
	reserved     Quantity
	consumed     Quantity
	reservations map[ReservationID]*reservation
}

func (e *ledgerEntry) availableLocked() Quantity {
	return e.total.Sub(e.reserved).Sub(e.consumed)
}

// StockSnapshot is the ledger's view of one batch at read time.
type StockSnapshot struct {
	BatchID   BatchID
	Total     Quantity
	Reserved  Quantity
	Consumed  Quantity
	Available Quantity
}

// =============================================================================
// INVENTORY LEDGER
// =============================================================================

// InventoryLedger owns all reserved/consumed accounting. No other
// component mutates stock state.
type InventoryLedger struct {
	mu      sync.RWMutex
	entries map[BatchID]*ledgerEntry
	index   map[ReservationID]BatchID
}

func NewInventoryLedger() *InventoryLedger {
	return &InventoryLedger{
		entries: make(map[BatchID]*ledgerEntry),
		index:   make(map[ReservationID]BatchID),
	}
}

// RegisterBatch creates the ledger entry for a new batch. Idempotent:
// re-registering an existing batch leaves its accounting untouched.
func (l *InventoryLedger) RegisterBatch(id BatchID, total Quantity) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[id]; ok {
		return
	}
	l.entries[id] = &ledgerEntry{
		total:        total,
		reserved:     total.Zero(),
		consumed:     total.Zero(),
		reservations: make(map[ReservationID]*reservation),
	}
}

func (l *InventoryLedger) entry(id BatchID) (*ledgerEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[id]
	return e, ok
}

// Reserve holds quantity against the batch's available stock and
// returns a handle used later to release or consume the hold.
//
// Fails with ErrUnknownBatch, ErrInvalidQuantity, or an
// InsufficientStockError when quantity exceeds available. The check
// and the increment happen under the per-batch lock, so concurrent
// reservations can never jointly overdraw the batch.
func (l *InventoryLedger) Reserve(batchID BatchID, quantity Quantity) (ReservationID, error) {
	return l.reserveAs(batchID, quantity, ReservationID(uuid.NewString()))
}

func (l *InventoryLedger) reserveAs(batchID BatchID, quantity Quantity, id ReservationID) (ReservationID, error) {
	if !quantity.IsPositive() {
		return "", ErrInvalidQuantity
	}

	e, ok := l.entry(batchID)
	if !ok {
		return "", fmt.Errorf("reserve %v on batch %s: %w", quantity.Value, batchID, ErrUnknownBatch)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if quantity.GreaterThan(e.availableLocked()) {
		return "", &InsufficientStockError{
			BatchID:   batchID,
			Available: e.availableLocked(),
			Requested: quantity,
		}
	}

	e.reserved = e.reserved.Add(quantity)
	e.reservations[id] = &reservation{id: id, quantity: quantity, state: reservationActive}

	l.mu.Lock()
	l.index[id] = batchID
	l.mu.Unlock()

	return id, nil
}

// Release returns a held quantity to available. Used when the owning
// order is REJECTED or CANCELLED.
func (l *InventoryLedger) Release(id ReservationID) error {
	return l.finalize(id, reservationReleased)
}

// Consume finalizes a hold as permanently spent. Used when the owning
// order is APPROVED.
func (l *InventoryLedger) Consume(id ReservationID) error {
	return l.finalize(id, reservationConsumed)
}

func (l *InventoryLedger) finalize(id ReservationID, to reservationState) error {
	l.mu.RLock()
	batchID, ok := l.index[id]
	l.mu.RUnlock()
	if !ok {
		return fmt.Errorf("reservation %s: %w", id, ErrInvalidReservationState)
	}

	e, ok := l.entry(batchID)
	if !ok {
		return fmt.Errorf("reservation %s on batch %s: %w", id, batchID, ErrUnknownBatch)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.reservations[id]
	if !ok || r.state != reservationActive {
		return fmt.Errorf("reservation %s: %w", id, ErrInvalidReservationState)
	}

	r.state = to
	e.reserved = e.reserved.Sub(r.quantity)
	if to == reservationConsumed {
		e.consumed = e.consumed.Add(r.quantity)
	}
	return nil
}

// Stock returns the live reserved/consumed/available view of a batch.
func (l *InventoryLedger) Stock(batchID BatchID) (StockSnapshot, error) {
	e, ok := l.entry(batchID)
	if !ok {
		return StockSnapshot{}, fmt.Errorf("batch %s: %w", batchID, ErrUnknownBatch)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return StockSnapshot{
		BatchID:   batchID,
		Total:     e.total,
		Reserved:  e.reserved,
		Consumed:  e.consumed,
		Available: e.availableLocked(),
	}, nil
}

// =============================================================================
// REBUILD - Derive ledger state from order records
// =============================================================================

// Rebuild discards all in-memory accounting and re-derives it from the
// persisted records: every PENDING order becomes an active reservation
// (under its original reservation ID, so later decisions still find
// it), every APPROVED order becomes consumption. Terminal REJECTED and
// CANCELLED orders hold nothing.
func (l *InventoryLedger) Rebuild(batches []Batch, orders []Order) error {
	l.mu.Lock()
	l.entries = make(map[BatchID]*ledgerEntry)
	l.index = make(map[ReservationID]BatchID)
	l.mu.Unlock()

	for _, b := range batches {
		l.RegisterBatch(b.ID, b.QuantityTotal)
	}

	for _, o := range orders {
		switch o.Status {
		case OrderPending:
			if _, err := l.reserveAs(o.BatchID, o.Quantity, o.ReservationID); err != nil {
				return fmt.Errorf("rebuild order %s: %w", o.ID, err)
			}
		case OrderApproved:
			if _, err := l.reserveAs(o.BatchID, o.Quantity, o.ReservationID); err != nil {
				return fmt.Errorf("rebuild order %s: %w", o.ID, err)
			}
			if err := l.Consume(o.ReservationID); err != nil {
				return fmt.Errorf("rebuild order %s: %w", o.ID, err)
			}
		}
	}
	return nil
}
