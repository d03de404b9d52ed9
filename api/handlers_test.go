package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmchain/trace-engine/api"
	"github.com/farmchain/trace-engine/supply"
	"github.com/farmchain/trace-engine/supply/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	server *httptest.Server
	trace  *supply.TraceService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mem := store.NewMemory()
	ledger := supply.NewInventoryLedger()
	trace := supply.NewTraceService(mem, mem)
	fulfillment := supply.NewFulfillmentService(mem, ledger, trace)
	query := supply.NewQueryService(mem, ledger, trace)
	anomaly := supply.NewTraceGapAssessor(trace)

	router := api.NewRouter(api.NewHandler(fulfillment, query, trace, anomaly))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{server: srv, trace: trace}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func decodeInto[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), "body: %s", data)
	return v
}

// createBatch registers a batch over HTTP and returns its ID.
func (ts *testServer) createBatch(t *testing.T, quantity float64) string {
	t.Helper()
	resp, body := ts.do(t, http.MethodPost, "/api/batches", api.CreateBatchRequest{
		CropID:       "crop-1",
		CropName:     "Tomatoes",
		FarmerID:     "farmer-1",
		Quantity:     quantity,
		QuantityUnit: "kg",
		HarvestDate:  "2026-08-20",
		CostPerUnit:  "5",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", body)
	return decodeInto[api.BatchDTO](t, body).BatchID
}

// transport walks a batch to TRANSPORT custody so it is purchasable.
func (ts *testServer) transport(t *testing.T, batchID, distributor string) {
	t.Helper()
	for _, req := range []api.AppendTraceRequest{
		{BatchID: batchID, EventType: "HARVEST", Location: "Green Acres", HandledBy: "farmer", ActorID: "farmer-1"},
		{BatchID: batchID, EventType: "TRANSPORT", Location: "Route 1", HandledBy: "driver", ActorID: distributor},
	} {
		resp, body := ts.do(t, http.MethodPost, "/api/trace", req)
		require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", body)
	}
}

func orderReq(batchID, consumer string, quantity float64) api.PlaceOrderRequest {
	return api.PlaceOrderRequest{
		BatchID:     batchID,
		ConsumerID:  consumer,
		Quantity:    quantity,
		FullName:    "Jean Mugisha",
		PhoneNumber: "0788-000-111",
		Address:     "12 Market St",
	}
}

// =============================================================================
// BATCH ENDPOINT TESTS
// =============================================================================

func TestAPI_CreateAndGetBatch(t *testing.T) {
	ts := newTestServer(t)

	batchID := ts.createBatch(t, 100)

	resp, body := ts.do(t, http.MethodGet, "/api/batches/"+batchID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	dto := decodeInto[api.BatchDTO](t, body)
	assert.Equal(t, "Tomatoes", dto.CropName)
	assert.Equal(t, "100", dto.Quantity)
	assert.Equal(t, "100", dto.Available)
	assert.Equal(t, "500", dto.TotalCost)
}

func TestAPI_GetBatch_NotFound(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do(t, http.MethodGet, "/api/batches/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_CreateBatch_BadHarvestDate(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do(t, http.MethodPost, "/api/batches", api.CreateBatchRequest{
		CropName: "Maize", FarmerID: "f1", Quantity: 10, QuantityUnit: "kg",
		HarvestDate: "20/08/2026", CostPerUnit: "2",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// TRACE ENDPOINT TESTS
// =============================================================================

func TestAPI_TraceLifecycle(t *testing.T) {
	ts := newTestServer(t)
	batchID := ts.createBatch(t, 100)
	ts.transport(t, batchID, "dist-1")

	resp, body := ts.do(t, http.MethodGet, "/api/trace/batch/"+batchID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := decodeInto[[]api.TraceEventDTO](t, body)
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].TraceID)
	assert.Equal(t, "HARVEST", events[0].EventType)
	assert.Equal(t, "TRANSPORT", events[1].EventType)
}

func TestAPI_AppendTrace_UnknownEventType(t *testing.T) {
	ts := newTestServer(t)
	batchID := ts.createBatch(t, 100)

	resp, _ := ts.do(t, http.MethodPost, "/api/trace", api.AppendTraceRequest{
		BatchID: batchID, EventType: "TELEPORTED",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_AppendTrace_UnknownBatch(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do(t, http.MethodPost, "/api/trace", api.AppendTraceRequest{
		BatchID: "nope", EventType: "HARVEST",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// MARKETPLACE TESTS
// =============================================================================

func TestAPI_Marketplace_ShowsLiveAvailability(t *testing.T) {
	ts := newTestServer(t)
	batchID := ts.createBatch(t, 100)
	ts.transport(t, batchID, "dist-1")
	ts.createBatch(t, 50) // never transported, must not be listed

	resp, body := ts.do(t, http.MethodPost, "/api/orders", orderReq(batchID, "c1", 30))
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", body)

	resp, body = ts.do(t, http.MethodGet, "/api/marketplace", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	items := decodeInto[[]api.MarketplaceItemDTO](t, body)
	require.Len(t, items, 1, "only transported batches are purchasable")
	assert.Equal(t, batchID, items[0].BatchID)
	assert.Equal(t, "70", items[0].Available)
	assert.Equal(t, "dist-1", items[0].DistributorID)
}

// =============================================================================
// ORDER ENDPOINT TESTS
// =============================================================================

func TestAPI_OrderLifecycle(t *testing.T) {
	// Place -> over-ask rejected -> approve -> second decision conflicts.

	ts := newTestServer(t)
	batchID := ts.createBatch(t, 100)
	ts.transport(t, batchID, "dist-1")

	resp, body := ts.do(t, http.MethodPost, "/api/orders", orderReq(batchID, "c1", 60))
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", body)
	order := decodeInto[api.OrderDTO](t, body)
	assert.Equal(t, "PENDING", order.Status)
	assert.Equal(t, "dist-1", order.DistributorID)
	assert.Equal(t, "300", order.ItemCost)
	assert.Equal(t, "30", order.DeliveryFee)
	assert.Equal(t, "330", order.Total)

	resp, _ = ts.do(t, http.MethodPost, "/api/orders", orderReq(batchID, "c2", 50))
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "insufficient stock is a conflict")

	resp, body = ts.do(t, http.MethodPut,
		fmt.Sprintf("/api/orders/%s/status?status=APPROVED", order.OrderID),
		api.DecideOrderRequest{DistributorID: "dist-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)
	decided := decodeInto[api.OrderDTO](t, body)
	assert.Equal(t, "APPROVED", decided.Status)
	assert.Equal(t, "dist-1", decided.DecidedBy)

	resp, _ = ts.do(t, http.MethodPut,
		fmt.Sprintf("/api/orders/%s/status?status=REJECTED", order.OrderID),
		api.DecideOrderRequest{DistributorID: "dist-1", Reason: "late"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "terminal orders cannot be re-decided")
}

func TestAPI_PlaceOrder_NoDistributor(t *testing.T) {
	ts := newTestServer(t)
	batchID := ts.createBatch(t, 100)

	resp, _ := ts.do(t, http.MethodPost, "/api/orders", orderReq(batchID, "c1", 10))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_UpdateOrderStatus_WrongDistributor(t *testing.T) {
	ts := newTestServer(t)
	batchID := ts.createBatch(t, 100)
	ts.transport(t, batchID, "dist-1")

	resp, body := ts.do(t, http.MethodPost, "/api/orders", orderReq(batchID, "c1", 10))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	order := decodeInto[api.OrderDTO](t, body)

	resp, _ = ts.do(t, http.MethodPut,
		fmt.Sprintf("/api/orders/%s/status?status=APPROVED", order.OrderID),
		api.DecideOrderRequest{DistributorID: "dist-2"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAPI_UpdateOrderStatus_InvalidStatus(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do(t, http.MethodPut, "/api/orders/O1/status?status=CANCELLED",
		api.DecideOrderRequest{DistributorID: "dist-1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_CancelOrder(t *testing.T) {
	ts := newTestServer(t)
	batchID := ts.createBatch(t, 100)
	ts.transport(t, batchID, "dist-1")

	resp, body := ts.do(t, http.MethodPost, "/api/orders", orderReq(batchID, "c1", 60))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	order := decodeInto[api.OrderDTO](t, body)

	resp, body = ts.do(t, http.MethodPost, "/api/orders/"+order.OrderID+"/cancel",
		api.CancelOrderRequest{ConsumerID: "c1"})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)
	assert.Equal(t, "CANCELLED", decodeInto[api.OrderDTO](t, body).Status)

	// The hold is back: a 100 kg order now fits.
	resp, _ = ts.do(t, http.MethodPost, "/api/orders", orderReq(batchID, "c2", 100))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestAPI_Checkout_PartialSuccess(t *testing.T) {
	ts := newTestServer(t)
	b1 := ts.createBatch(t, 100)
	ts.transport(t, b1, "dist-1")
	b2 := ts.createBatch(t, 20)
	ts.transport(t, b2, "dist-1")

	resp, body := ts.do(t, http.MethodPost, "/api/orders/checkout", api.CheckoutRequest{
		Items: []api.PlaceOrderRequest{
			orderReq(b1, "c1", 60),
			orderReq(b2, "c1", 30), // only 20 available
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "partial success is still created")

	items := decodeInto[[]api.CheckoutItemDTO](t, body)
	require.Len(t, items, 2)
	assert.NotNil(t, items[0].Order)
	assert.Empty(t, items[0].Error)
	assert.Nil(t, items[1].Order)
	assert.NotEmpty(t, items[1].Error)
}

func TestAPI_Checkout_AllFailed(t *testing.T) {
	ts := newTestServer(t)
	b1 := ts.createBatch(t, 10)
	ts.transport(t, b1, "dist-1")

	resp, _ := ts.do(t, http.MethodPost, "/api/orders/checkout", api.CheckoutRequest{
		Items: []api.PlaceOrderRequest{orderReq(b1, "c1", 50)},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_OrderLists(t *testing.T) {
	ts := newTestServer(t)
	batchID := ts.createBatch(t, 100)
	ts.transport(t, batchID, "dist-1")

	resp, _ := ts.do(t, http.MethodPost, "/api/orders", orderReq(batchID, "c1", 10))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := ts.do(t, http.MethodGet, "/api/orders/consumer/c1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeInto[[]api.OrderDTO](t, body), 1)

	resp, body = ts.do(t, http.MethodGet, "/api/orders/distributor/dist-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeInto[[]api.OrderDTO](t, body), 1)

	resp, body = ts.do(t, http.MethodGet, "/api/orders/consumer/someone-else", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeInto[[]api.OrderDTO](t, body))
}

// =============================================================================
// DASHBOARD TESTS
// =============================================================================

func TestAPI_DistributorStats(t *testing.T) {
	ts := newTestServer(t)
	batchID := ts.createBatch(t, 100)
	ts.transport(t, batchID, "dist-1")

	resp, body := ts.do(t, http.MethodGet, "/api/distributors/dist-1/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stats := decodeInto[api.ShipmentStatsDTO](t, body)
	assert.Equal(t, "dist-1", stats.DistributorID)
	assert.Equal(t, 1, stats.Counts["TRANSPORT"])
	assert.Equal(t, 0, stats.Counts["DELIVERED"])
}

func TestAPI_BatchAnomaly(t *testing.T) {
	ts := newTestServer(t)
	batchID := ts.createBatch(t, 100)

	// Walk the batch to a WAREHOUSE_OUT dead end.
	_, err := ts.trace.AppendEvent(context.Background(), supply.BatchID(batchID),
		supply.EventWarehouseOut, "Depot 4", "staff", "wh-1")
	require.NoError(t, err)

	resp, body := ts.do(t, http.MethodGet, "/api/batches/"+batchID+"/anomaly", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	signal := decodeInto[api.AnomalyDTO](t, body)
	assert.Equal(t, "warning", signal.Level)
	assert.Equal(t, "untracked_handoff", signal.Code)
}
