/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract.
  Field names are camelCase to match the dashboard clients.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data
  carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/farmchain/trace-engine/supply"
)

// =============================================================================
// BATCHES
// =============================================================================

// CreateBatchRequest is the farmer-initiated batch registration.
type CreateBatchRequest struct {
	BatchID       string  `json:"batchId,omitempty"`
	CropID        string  `json:"cropId"`
	CropName      string  `json:"cropName"`
	FarmerID      string  `json:"farmerId"`
	Quantity      float64 `json:"quantity"`
	QuantityUnit  string  `json:"quantityUnit"`
	CustomUnit    string  `json:"customUnit,omitempty"`
	HarvestDate   string  `json:"harvestDate"`
	CostPerUnit   string  `json:"costPerUnit"`
	PesticideName string  `json:"pesticideName,omitempty"`
	PesticideType string  `json:"pesticideType,omitempty"`
	CropImage     string  `json:"cropImage,omitempty"`
}

// BatchDTO is a batch in API responses, with live stock when known.
type BatchDTO struct {
	BatchID         string `json:"batchId"`
	CropID          string `json:"cropId"`
	CropName        string `json:"cropName"`
	FarmerID        string `json:"farmerId"`
	Quantity        string `json:"quantity"`
	QuantityUnit    string `json:"quantityUnit"`
	HarvestDate     string `json:"harvestDate"`
	CostPerUnit     string `json:"costPerUnit"`
	TotalCost       string `json:"totalCost"`
	PesticideName   string `json:"pesticideName,omitempty"`
	PesticideType   string `json:"pesticideType,omitempty"`
	CropImage       string `json:"cropImage,omitempty"`
	Status          string `json:"status,omitempty"`
	CurrentLocation string `json:"currentLocation,omitempty"`
	DistributorID   string `json:"distributorId,omitempty"`

	Reserved  string `json:"reserved,omitempty"`
	Consumed  string `json:"consumed,omitempty"`
	Available string `json:"available,omitempty"`
}

// =============================================================================
// TRACE
// =============================================================================

// AppendTraceRequest appends one custody event.
type AppendTraceRequest struct {
	BatchID   string `json:"batchId"`
	EventType string `json:"eventType"`
	Location  string `json:"location"`
	HandledBy string `json:"handledBy"`
	ActorID   string `json:"actorId"`
}

// TraceEventDTO is one custody record in API responses.
type TraceEventDTO struct {
	TraceID   int64  `json:"traceId"`
	BatchID   string `json:"batchId"`
	EventType string `json:"eventType"`
	Location  string `json:"location"`
	HandledBy string `json:"handledBy"`
	ActorID   string `json:"actorId"`
	Timestamp string `json:"timestamp"`
}

func toTraceEventDTO(e supply.TraceEvent) TraceEventDTO {
	return TraceEventDTO{
		TraceID:   e.Seq,
		BatchID:   string(e.BatchID),
		EventType: string(e.EventType),
		Location:  e.Location,
		HandledBy: e.HandledBy,
		ActorID:   e.ActorID,
		Timestamp: e.Timestamp.Format(time.RFC3339),
	}
}

// =============================================================================
// ORDERS
// =============================================================================

// PlaceOrderRequest is one admission request. OrderID is optional; when
// supplied, retrying the same ID is idempotent.
type PlaceOrderRequest struct {
	OrderID     string  `json:"orderId,omitempty"`
	BatchID     string  `json:"batchId"`
	ConsumerID  string  `json:"consumerId"`
	Quantity    float64 `json:"quantity"`
	FullName    string  `json:"fullName"`
	PhoneNumber string  `json:"phoneNumber"`
	Address     string  `json:"address"`
}

// CheckoutRequest is a multi-item cart placement.
type CheckoutRequest struct {
	Items []PlaceOrderRequest `json:"items"`
}

// CheckoutItemDTO reports the per-item outcome of a checkout. Items are
// independent: earlier successes stand even when a later item fails.
type CheckoutItemDTO struct {
	BatchID string    `json:"batchId"`
	Order   *OrderDTO `json:"order,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// DecideOrderRequest carries the deciding distributor and an optional
// rejection reason.
type DecideOrderRequest struct {
	DistributorID string `json:"distributorId"`
	Status        string `json:"status,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// CancelOrderRequest carries the owning consumer.
type CancelOrderRequest struct {
	ConsumerID string `json:"consumerId"`
}

// OrderDTO is an order in API responses.
type OrderDTO struct {
	OrderID          string `json:"orderId"`
	BatchID          string `json:"batchId"`
	ConsumerID       string `json:"consumerId"`
	DistributorID    string `json:"distributorId"`
	Product          string `json:"product"`
	Quantity         string `json:"quantity"`
	Unit             string `json:"unit"`
	UnitCost         string `json:"unitCost"`
	ItemCost         string `json:"itemCost"`
	DeliveryFee      string `json:"deliveryFee"`
	Total            string `json:"total"`
	FullName         string `json:"fullName,omitempty"`
	PhoneNumber      string `json:"phoneNumber,omitempty"`
	Address          string `json:"address,omitempty"`
	Status           string `json:"status"`
	PlacedAt         string `json:"placedAt"`
	ExpectedDelivery string `json:"expectedDelivery"`
	DecidedBy        string `json:"decidedBy,omitempty"`
	DecidedAt        string `json:"decidedAt,omitempty"`
	RejectionReason  string `json:"rejectionReason,omitempty"`
}

func toOrderDTO(o supply.Order) OrderDTO {
	dto := OrderDTO{
		OrderID:          string(o.ID),
		BatchID:          string(o.BatchID),
		ConsumerID:       string(o.ConsumerID),
		DistributorID:    string(o.DistributorID),
		Product:          o.Product,
		Quantity:         o.Quantity.Value.String(),
		Unit:             string(o.Quantity.Unit),
		UnitCost:         o.UnitCost.String(),
		ItemCost:         o.ItemCost().String(),
		DeliveryFee:      o.DeliveryFee().String(),
		Total:            o.Total().String(),
		FullName:         o.Snapshot.FullName,
		PhoneNumber:      o.Snapshot.PhoneNumber,
		Address:          o.Snapshot.Address,
		Status:           string(o.Status),
		PlacedAt:         o.PlacedAt.Format(time.RFC3339),
		ExpectedDelivery: o.ExpectedDelivery.Format(time.RFC3339),
		DecidedBy:        o.DecidedBy,
		RejectionReason:  o.RejectionReason,
	}
	if o.DecidedAt != nil {
		dto.DecidedAt = o.DecidedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// MARKETPLACE & STATS
// =============================================================================

// MarketplaceItemDTO is one purchasable listing.
type MarketplaceItemDTO struct {
	BatchID       string `json:"batchId"`
	CropName      string `json:"cropName"`
	FarmerID      string `json:"farmerId"`
	FarmLocation  string `json:"farmLocation,omitempty"`
	HarvestedAt   string `json:"harvestedAt,omitempty"`
	FarmingType   string `json:"farmingType,omitempty"`
	Pesticides    string `json:"pesticides,omitempty"`
	CropImage     string `json:"cropImage,omitempty"`
	Available     string `json:"available"`
	Unit          string `json:"unit"`
	CostPerUnit   string `json:"costPerUnit"`
	DistributorID string `json:"distributorId"`
	TransportedAt string `json:"transportedAt"`
}

// ShipmentStatsDTO is the distributor dashboard chart source.
type ShipmentStatsDTO struct {
	DistributorID string         `json:"distributorId"`
	Counts        map[string]int `json:"counts"`
}

// AnomalyDTO is the per-batch status signal.
type AnomalyDTO struct {
	BatchID string `json:"batchId"`
	Level   string `json:"level"`
	Code    string `json:"code"`
	Detail  string `json:"detail"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
