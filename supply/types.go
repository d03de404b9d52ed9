/*
Package supply contains the core traceability and fulfillment engine.

PURPOSE:
  This package owns the data model and algorithms that keep batch
  inventory, custody history, and order state consistent under
  concurrent access. Everything else in the system (dashboards, auth,
  messaging) is presentational glue around these types.

KEY CONCEPTS IN THIS FILE (types.go):
  - Quantity: A decimal amount with a unit (e.g., 100 kg, 40 crates)
  - Batch: One harvested lot; quantityTotal is immutable after creation
  - TraceEvent: An immutable custody record appended to a batch
  - Order: A consumer's request to buy a quantity from a batch

DESIGN PRINCIPLES:
  1. Immutability: quantityTotal and trace events are never mutated
  2. Precision: decimal.Decimal for quantities and money, never float
  3. Type Safety: Strong ID types prevent mixing batch/order/actor IDs
  4. Snapshots: Delivery details are captured at placement and never
     re-read from a mutable profile

SEE ALSO:
  - ledger.go: Reserved/consumed/available accounting per batch
  - trace.go: Append-only custody history
  - fulfillment.go: Order placement and decision orchestration
*/
package supply

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// QUANTITY - Decimal amount with unit
// =============================================================================

type Unit string

const (
	UnitKg     Unit = "kg"
	UnitTonnes Unit = "tonnes"
	UnitLitres Unit = "litres"
	UnitCrates Unit = "crates"
	UnitDozens Unit = "dozens"
)

type Quantity struct {
	Value decimal.Decimal
	Unit  Unit
}

func NewQuantity(value float64, unit Unit) Quantity {
	return Quantity{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewQuantityFromInt(value int, unit Unit) Quantity {
	return Quantity{Value: decimal.NewFromInt(int64(value)), Unit: unit}
}

func (q Quantity) Zero() Quantity              { return Quantity{Value: decimal.Zero, Unit: q.Unit} }
func (q Quantity) Add(o Quantity) Quantity     { return Quantity{Value: q.Value.Add(o.Value), Unit: q.Unit} }
func (q Quantity) Sub(o Quantity) Quantity     { return Quantity{Value: q.Value.Sub(o.Value), Unit: q.Unit} }
func (q Quantity) IsZero() bool                { return q.Value.IsZero() }
func (q Quantity) IsNegative() bool            { return q.Value.IsNegative() }
func (q Quantity) IsPositive() bool            { return q.Value.IsPositive() }
func (q Quantity) GreaterThan(o Quantity) bool { return q.Value.GreaterThan(o.Value) }
func (q Quantity) LessThan(o Quantity) bool    { return q.Value.LessThan(o.Value) }
func (q Quantity) Equal(o Quantity) bool       { return q.Value.Equal(o.Value) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type BatchID string
type CropID string
type FarmerID string
type DistributorID string
type ConsumerID string
type OrderID string
type ReservationID string

// =============================================================================
// BATCH - One harvested lot
// =============================================================================

// Batch represents one traceable lot of harvested produce.
//
// INVARIANT: QuantityTotal is immutable after creation. All consumption
// is tracked by the InventoryLedger, never by mutating this field.
// Batches are never deleted; Status, CurrentLocation and DistributorID
// are projections maintained from the trace and may lag it, so the
// authoritative current distributor is always resolved from the trace.
type Batch struct {
	ID           BatchID
	CropID       CropID
	CropName     string
	FarmerID     FarmerID

	QuantityTotal Quantity
	HarvestDate   time.Time
	CostPerUnit   decimal.Decimal

	// Cultivation details shown in the marketplace.
	PesticideName string
	PesticideType string
	CropImage     string

	// Trace projections. Status mirrors the latest event type;
	// DistributorID is the actor of the latest TRANSPORT event.
	Status          EventType
	CurrentLocation string
	DistributorID   DistributorID

	CreatedAt time.Time
}

// TotalCost is the full value of the lot at the farmer's unit price.
func (b Batch) TotalCost() decimal.Decimal {
	return b.CostPerUnit.Mul(b.QuantityTotal.Value)
}

// =============================================================================
// TRACE EVENT - Immutable custody record
// =============================================================================

type EventType string

const (
	EventHarvest      EventType = "HARVEST"
	EventWarehouseIn  EventType = "WAREHOUSE_IN"
	EventWarehouseOut EventType = "WAREHOUSE_OUT"
	EventTransport    EventType = "TRANSPORT"
	EventDelivered    EventType = "DELIVERED"
)

// KnownEventType reports whether t is one of the custody event types.
func KnownEventType(t EventType) bool {
	switch t {
	case EventHarvest, EventWarehouseIn, EventWarehouseOut, EventTransport, EventDelivered:
		return true
	}
	return false
}

// TraceEvent is one custody/location record attached to a batch.
//
// INVARIANTS:
//   - Immutable once appended; never edited or removed
//   - Seq is monotonic per batch, starting at 1
//   - Timestamp is assigned server-side at append time and is
//     monotonically non-decreasing within a batch
type TraceEvent struct {
	BatchID   BatchID
	Seq       int64
	EventType EventType
	Location  string
	HandledBy string
	ActorID   string
	Timestamp time.Time
}

// =============================================================================
// ORDER - A consumer's request to buy from a batch
// =============================================================================

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderApproved  OrderStatus = "APPROVED"
	OrderRejected  OrderStatus = "REJECTED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderApproved || s == OrderRejected || s == OrderCancelled
}

// ConsumerSnapshot is the delivery detail captured at placement time.
// It is never re-read from the consumer profile after the fact.
type ConsumerSnapshot struct {
	FullName    string
	PhoneNumber string
	Address     string
}

// DeliveryFeeRate is the flat delivery surcharge applied at checkout.
var DeliveryFeeRate = decimal.NewFromFloat(0.1)

// TransitLeadTime is how long delivery takes after the batch enters
// transport. ExpectedDelivery = latest TRANSPORT timestamp + lead time.
const TransitLeadTime = 10 * 24 * time.Hour

// Order is a financial/audit record and is never deleted.
//
// DistributorID is resolved from the batch trace at placement and is
// immutable thereafter. Quantity is held in the ledger as a reservation
// (ReservationID) until the order reaches a terminal state.
type Order struct {
	ID            OrderID
	BatchID       BatchID
	ConsumerID    ConsumerID
	DistributorID DistributorID
	ReservationID ReservationID

	Product  string
	Quantity Quantity
	UnitCost decimal.Decimal

	Snapshot ConsumerSnapshot

	Status           OrderStatus
	PlacedAt         time.Time
	ExpectedDelivery time.Time

	DecidedBy       string
	DecidedAt       *time.Time
	RejectionReason string

	UpdatedAt time.Time
}

// ItemCost is the produce cost before the delivery fee.
func (o Order) ItemCost() decimal.Decimal {
	return o.UnitCost.Mul(o.Quantity.Value)
}

// DeliveryFee is the flat-rate delivery surcharge.
func (o Order) DeliveryFee() decimal.Decimal {
	return o.ItemCost().Mul(DeliveryFeeRate)
}

// Total is what the consumer pays.
func (o Order) Total() decimal.Decimal {
	return o.ItemCost().Add(o.DeliveryFee())
}
