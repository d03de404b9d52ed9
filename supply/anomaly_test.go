package supply_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmchain/trace-engine/supply"
)

func TestTraceGapAssessor_NoEvents(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.fulfillment.CreateBatch(context.Background(), supply.Batch{ID: "B1", QuantityTotal: kg(10)})
	require.NoError(t, err)

	signal, err := supply.NewTraceGapAssessor(e.trace).Assess(context.Background(), "B1")
	require.NoError(t, err)
	assert.Equal(t, supply.AnomalyNone, signal.Level)
	assert.Equal(t, "no_custody_data", signal.Code)
}

func TestTraceGapAssessor_DeliveredIsAlwaysClean(t *testing.T) {
	// A delivered batch is never flagged, no matter how old its trail.

	e := newTestEngine(t)
	ctx := context.Background()
	_, err := e.fulfillment.CreateBatch(ctx, supply.Batch{ID: "B1", QuantityTotal: kg(10)})
	require.NoError(t, err)

	old := time.Now().UTC().Add(-30 * 24 * time.Hour)
	_, err = e.trace.AppendEventAt(ctx, "B1", supply.EventHarvest, "Green Acres", "farmer-1", "farmer-1", old)
	require.NoError(t, err)
	_, err = e.trace.AppendEventAt(ctx, "B1", supply.EventDelivered, "12 Market St", "driver", "dist-1", old.Add(time.Hour))
	require.NoError(t, err)

	signal, err := supply.NewTraceGapAssessor(e.trace).Assess(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, supply.AnomalyNone, signal.Level)
	assert.Equal(t, "ok", signal.Code)
}

func TestTraceGapAssessor_UntrackedHandoff(t *testing.T) {
	// GIVEN: A batch whose latest event is WAREHOUSE_OUT
	// WHEN: It is assessed
	// THEN: A warning flags the missing transport custody

	e := newTestEngine(t)
	ctx := context.Background()
	_, err := e.fulfillment.CreateBatch(ctx, supply.Batch{ID: "B1", QuantityTotal: kg(10)})
	require.NoError(t, err)
	_, err = e.trace.AppendEvent(ctx, "B1", supply.EventWarehouseIn, "Depot 4", "staff", "wh-1")
	require.NoError(t, err)
	_, err = e.trace.AppendEvent(ctx, "B1", supply.EventWarehouseOut, "Depot 4", "staff", "wh-1")
	require.NoError(t, err)

	signal, err := supply.NewTraceGapAssessor(e.trace).Assess(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, supply.AnomalyWarning, signal.Level)
	assert.Equal(t, "untracked_handoff", signal.Code)
	assert.NotEmpty(t, signal.Detail)
}

func TestTraceGapAssessor_StalledCustody(t *testing.T) {
	// GIVEN: A batch in transport with no event for 8 days
	// WHEN: It is assessed against a 7-day stall threshold
	// THEN: A stalled_custody warning is raised

	e := newTestEngine(t)
	ctx := context.Background()
	_, err := e.fulfillment.CreateBatch(ctx, supply.Batch{ID: "B1", QuantityTotal: kg(10)})
	require.NoError(t, err)

	stale := time.Now().UTC().Add(-8 * 24 * time.Hour)
	_, err = e.trace.AppendEventAt(ctx, "B1", supply.EventTransport, "Route 1", "driver", "dist-1", stale)
	require.NoError(t, err)

	signal, err := supply.NewTraceGapAssessor(e.trace).Assess(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, supply.AnomalyWarning, signal.Level)
	assert.Equal(t, "stalled_custody", signal.Code)
}

func TestTraceGapAssessor_FreshTransportIsClean(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.seedTransportedBatch(t, "B1", 10, "dist-1")

	signal, err := supply.NewTraceGapAssessor(e.trace).Assess(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, supply.AnomalyNone, signal.Level)
}

func TestTraceGapAssessor_UnknownBatch(t *testing.T) {
	e := newTestEngine(t)

	_, err := supply.NewTraceGapAssessor(e.trace).Assess(context.Background(), "nope")
	assert.ErrorIs(t, err, supply.ErrUnknownBatch)
}
