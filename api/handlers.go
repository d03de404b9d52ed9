/*
handlers.go - HTTP API handlers for the supply engine

PURPOSE:
  Exposes the traceability and fulfillment engine via REST. Handles
  HTTP request/response, JSON serialization, and delegates to the
  domain services.

ENDPOINTS:
  Batches:
    POST   /api/batches                    Register a batch
    GET    /api/batches                    List batches with live stock
    GET    /api/batches/{batchId}          Batch detail with live stock
    GET    /api/batches/{batchId}/anomaly  Status signal for a batch

  Trace:
    POST   /api/trace                      Append a custody event
    GET    /api/trace/batch/{batchId}      Full custody history

  Marketplace:
    GET    /api/marketplace                Purchasable batches

  Orders:
    POST   /api/orders                     Place one order
    POST   /api/orders/checkout            Place a cart (per-item results)
    GET    /api/orders/consumer/{id}       Consumer's orders
    GET    /api/orders/distributor/{id}    Distributor's orders
    PUT    /api/orders/{orderId}/status    Approve or reject (distributor)
    POST   /api/orders/{orderId}/cancel    Cancel (owning consumer)

  Distributors:
    GET    /api/distributors/{id}/stats    Shipment counts by stage

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input
  - 403: Actor not authorized for the order
  - 404: Batch or order not found
  - 409: Business-rule rejection (stock, ordering, terminal state)
  - 500: Internal errors, persistence failures

SECURITY NOTE:
  Actor identity is taken from the request body; there is no
  authentication layer here. Session handling is an external
  collaborator of this engine.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/farmchain/trace-engine/supply"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Fulfillment *supply.FulfillmentService
	Query       *supply.QueryService
	Trace       *supply.TraceService
	Anomaly     supply.AnomalyAssessor
}

func NewHandler(fulfillment *supply.FulfillmentService, query *supply.QueryService, trace *supply.TraceService, anomaly supply.AnomalyAssessor) *Handler {
	return &Handler{
		Fulfillment: fulfillment,
		Query:       query,
		Trace:       trace,
		Anomaly:     anomaly,
	}
}

// =============================================================================
// BATCH HANDLERS
// =============================================================================

// CreateBatch registers a new harvested lot.
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	harvestDate, err := time.Parse("2006-01-02", req.HarvestDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid harvestDate format (use YYYY-MM-DD)", err)
		return
	}
	costPerUnit, err := parseDecimal(req.CostPerUnit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid costPerUnit", err)
		return
	}

	unit := req.QuantityUnit
	if unit == "Other" && req.CustomUnit != "" {
		unit = req.CustomUnit
	}

	batch, err := h.Fulfillment.CreateBatch(r.Context(), supply.Batch{
		ID:            supply.BatchID(req.BatchID),
		CropID:        supply.CropID(req.CropID),
		CropName:      req.CropName,
		FarmerID:      supply.FarmerID(req.FarmerID),
		QuantityTotal: supply.NewQuantity(req.Quantity, supply.Unit(unit)),
		HarvestDate:   harvestDate,
		CostPerUnit:   costPerUnit,
		PesticideName: req.PesticideName,
		PesticideType: req.PesticideType,
		CropImage:     req.CropImage,
	})
	if err != nil {
		writeDomainError(w, "Failed to create batch", err)
		return
	}

	writeJSON(w, http.StatusCreated, h.toBatchDTO(*batch))
}

// ListBatches returns all batches with live stock figures.
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.Query.ListBatches(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list batches", err)
		return
	}

	dtos := make([]BatchDTO, len(batches))
	for i, b := range batches {
		dtos[i] = h.toBatchDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBatch returns one batch with live stock figures.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id := supply.BatchID(chi.URLParam(r, "batchId"))

	batch, err := h.Query.GetBatch(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get batch", err)
		return
	}
	if batch == nil {
		writeError(w, http.StatusNotFound, "Batch not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, h.toBatchDTO(*batch))
}

// GetBatchAnomaly returns the deterministic status signal for a batch.
func (h *Handler) GetBatchAnomaly(w http.ResponseWriter, r *http.Request) {
	id := supply.BatchID(chi.URLParam(r, "batchId"))

	signal, err := h.Anomaly.Assess(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to assess batch", err)
		return
	}
	writeJSON(w, http.StatusOK, AnomalyDTO{
		BatchID: string(signal.BatchID),
		Level:   string(signal.Level),
		Code:    signal.Code,
		Detail:  signal.Detail,
	})
}

func (h *Handler) toBatchDTO(b supply.Batch) BatchDTO {
	dto := BatchDTO{
		BatchID:         string(b.ID),
		CropID:          string(b.CropID),
		CropName:        b.CropName,
		FarmerID:        string(b.FarmerID),
		Quantity:        b.QuantityTotal.Value.String(),
		QuantityUnit:    string(b.QuantityTotal.Unit),
		HarvestDate:     b.HarvestDate.Format("2006-01-02"),
		CostPerUnit:     b.CostPerUnit.String(),
		TotalCost:       b.TotalCost().String(),
		PesticideName:   b.PesticideName,
		PesticideType:   b.PesticideType,
		CropImage:       b.CropImage,
		Status:          string(b.Status),
		CurrentLocation: b.CurrentLocation,
		DistributorID:   string(b.DistributorID),
	}
	if stock, err := h.Query.Stock(b.ID); err == nil {
		dto.Reserved = stock.Reserved.Value.String()
		dto.Consumed = stock.Consumed.Value.String()
		dto.Available = stock.Available.Value.String()
	}
	return dto
}

// =============================================================================
// TRACE HANDLERS
// =============================================================================

// AppendTrace appends a custody event to a batch.
func (h *Handler) AppendTrace(w http.ResponseWriter, r *http.Request) {
	var req AppendTraceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !supply.KnownEventType(supply.EventType(req.EventType)) {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Unknown eventType %q", req.EventType), nil)
		return
	}

	event, err := h.Trace.AppendEvent(r.Context(),
		supply.BatchID(req.BatchID), supply.EventType(req.EventType),
		req.Location, req.HandledBy, req.ActorID)
	if err != nil {
		writeDomainError(w, "Failed to append trace event", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTraceEventDTO(*event))
}

// GetTraceForBatch returns the full custody history, oldest to newest.
func (h *Handler) GetTraceForBatch(w http.ResponseWriter, r *http.Request) {
	id := supply.BatchID(chi.URLParam(r, "batchId"))

	events, err := h.Trace.Trace(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to load trace", err)
		return
	}

	dtos := make([]TraceEventDTO, len(events))
	for i, e := range events {
		dtos[i] = toTraceEventDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// MARKETPLACE
// =============================================================================

// ListMarketplace returns purchasable batches with live availability.
func (h *Handler) ListMarketplace(w http.ResponseWriter, r *http.Request) {
	items, err := h.Query.ListAvailableBatches(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load marketplace", err)
		return
	}

	dtos := make([]MarketplaceItemDTO, len(items))
	for i, item := range items {
		dtos[i] = MarketplaceItemDTO{
			BatchID:       string(item.Batch.ID),
			CropName:      item.Batch.CropName,
			FarmerID:      string(item.Batch.FarmerID),
			FarmLocation:  item.FarmLocation,
			HarvestedAt:   item.HarvestedAt.Format(time.RFC3339),
			FarmingType:   item.Batch.PesticideType,
			Pesticides:    item.Batch.PesticideName,
			CropImage:     item.Batch.CropImage,
			Available:     item.Available.Value.String(),
			Unit:          string(item.Available.Unit),
			CostPerUnit:   item.Batch.CostPerUnit.String(),
			DistributorID: string(item.DistributorID),
			TransportedAt: item.TransportedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ORDER HANDLERS
// =============================================================================

// PlaceOrder admits a single order against a batch's unreserved stock.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	order, err := h.Fulfillment.PlaceOrder(r.Context(), toPlaceRequest(req))
	if err != nil {
		writeDomainError(w, "Failed to place order", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderDTO(*order))
}

// Checkout places every cart item independently and reports per-item
// outcomes. A failed item never rolls back earlier successes.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "Cart is empty", nil)
		return
	}

	items := make([]supply.PlaceOrderRequest, len(req.Items))
	for i, item := range req.Items {
		items[i] = toPlaceRequest(item)
	}

	results := h.Fulfillment.Checkout(r.Context(), items)
	dtos := make([]CheckoutItemDTO, len(results))
	allFailed := true
	for i, res := range results {
		dto := CheckoutItemDTO{BatchID: string(res.Request.BatchID)}
		if res.Err != nil {
			dto.Error = res.Err.Error()
		} else {
			allFailed = false
			o := toOrderDTO(*res.Order)
			dto.Order = &o
		}
		dtos[i] = dto
	}

	status := http.StatusCreated
	if allFailed {
		status = http.StatusConflict
	}
	writeJSON(w, status, dtos)
}

func toPlaceRequest(req PlaceOrderRequest) supply.PlaceOrderRequest {
	return supply.PlaceOrderRequest{
		OrderID:    supply.OrderID(req.OrderID),
		BatchID:    supply.BatchID(req.BatchID),
		ConsumerID: supply.ConsumerID(req.ConsumerID),
		Quantity:   supply.NewQuantity(req.Quantity, ""),
		Snapshot: supply.ConsumerSnapshot{
			FullName:    req.FullName,
			PhoneNumber: req.PhoneNumber,
			Address:     req.Address,
		},
	}
}

// ListOrdersByConsumer returns the consumer's orders, newest first.
func (h *Handler) ListOrdersByConsumer(w http.ResponseWriter, r *http.Request) {
	id := supply.ConsumerID(chi.URLParam(r, "consumerId"))

	orders, err := h.Query.ListOrdersForConsumer(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list orders", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTOs(orders))
}

// ListOrdersByDistributor returns the distributor's orders, newest first.
func (h *Handler) ListOrdersByDistributor(w http.ResponseWriter, r *http.Request) {
	id := supply.DistributorID(chi.URLParam(r, "distributorId"))

	orders, err := h.Query.ListOrdersForDistributor(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list orders", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTOs(orders))
}

func toOrderDTOs(orders []supply.Order) []OrderDTO {
	dtos := make([]OrderDTO, len(orders))
	for i, o := range orders {
		dtos[i] = toOrderDTO(o)
	}
	return dtos
}

// UpdateOrderStatus applies a distributor's APPROVED/REJECTED decision.
// Status comes from the query string (matching the dashboard client) or
// the body; cancellation is a separate consumer-only endpoint.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := supply.OrderID(chi.URLParam(r, "orderId"))

	var req DecideOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	status := r.URL.Query().Get("status")
	if status == "" {
		status = req.Status
	}
	decision := supply.OrderStatus(status)
	if decision != supply.OrderApproved && decision != supply.OrderRejected {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("status must be %s or %s", supply.OrderApproved, supply.OrderRejected), nil)
		return
	}

	order, err := h.Fulfillment.Decide(r.Context(),
		supply.DistributorID(req.DistributorID), orderID, decision, req.Reason)
	if err != nil {
		writeDomainError(w, "Failed to update order status", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(*order))
}

// CancelOrder lets the owning consumer withdraw a PENDING order.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := supply.OrderID(chi.URLParam(r, "orderId"))

	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	order, err := h.Fulfillment.CancelOrder(r.Context(), supply.ConsumerID(req.ConsumerID), orderID)
	if err != nil {
		writeDomainError(w, "Failed to cancel order", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(*order))
}

// =============================================================================
// DISTRIBUTOR STATS
// =============================================================================

// GetDistributorStats returns shipment counts by custody stage.
func (h *Handler) GetDistributorStats(w http.ResponseWriter, r *http.Request) {
	id := supply.DistributorID(chi.URLParam(r, "distributorId"))

	stats, err := h.Query.ShipmentStatsForDistributor(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load stats", err)
		return
	}

	counts := make(map[string]int, len(stats.Counts))
	for stage, n := range stats.Counts {
		counts[string(stage)] = n
	}
	writeJSON(w, http.StatusOK, ShipmentStatsDTO{
		DistributorID: string(stats.DistributorID),
		Counts:        counts,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// writeDomainError maps engine errors to HTTP statuses. The specific
// business reason always reaches the client: insufficient stock and an
// unresolved distributor require different corrective action.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case supply.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case supply.IsForbidden(err):
		writeError(w, http.StatusForbidden, message, err)
	case supply.IsClientError(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("value is required")
	}
	return decimal.NewFromString(s)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
