/*
query.go - Read-side projections

PURPOSE:
  The consumer marketplace, the per-role order lists, and the
  distributor shipment stats. Every projection reads the ledger and the
  order store directly at request time; there is no cache that can
  drift from them.

SEE ALSO:
  - ledger.go: Live availability
  - anomaly.go: The per-batch status signal shown next to listings
*/
package supply

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// QUERY SERVICE
// =============================================================================

type QueryService struct {
	store  Store
	ledger *InventoryLedger
	trace  *TraceService
}

func NewQueryService(store Store, ledger *InventoryLedger, trace *TraceService) *QueryService {
	return &QueryService{store: store, ledger: ledger, trace: trace}
}

// MarketplaceItem is one purchasable listing: a batch in transport,
// joined with its harvest provenance and live availability.
type MarketplaceItem struct {
	Batch         Batch
	DistributorID DistributorID
	Available     Quantity

	// From the HARVEST event, when one exists.
	FarmLocation string
	HarvestedAt  time.Time

	// From the latest TRANSPORT event.
	TransportedAt time.Time
}

// ListAvailableBatches returns every batch a consumer can order from:
// batches with a resolvable distributor, carrying availability read
// from the ledger at call time.
func (q *QueryService) ListAvailableBatches(ctx context.Context) ([]MarketplaceItem, error) {
	batches, err := q.store.ListBatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}

	items := make([]MarketplaceItem, 0, len(batches))
	for _, b := range batches {
		distributorID, transport, err := q.trace.ResolveCurrentDistributor(ctx, b.ID)
		if errors.Is(err, ErrDistributorUnresolved) {
			continue // not yet in transport, not purchasable
		}
		if err != nil {
			return nil, err
		}

		stock, err := q.ledger.Stock(b.ID)
		if err != nil {
			return nil, err
		}

		item := MarketplaceItem{
			Batch:         b,
			DistributorID: distributorID,
			Available:     stock.Available,
			FarmLocation:  b.CurrentLocation,
			HarvestedAt:   b.HarvestDate,
			TransportedAt: transport.Timestamp,
		}

		// Prefer the harvest event's provenance over the batch row.
		events, err := q.trace.Trace(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		for _, e := range events {
			if e.EventType == EventHarvest {
				item.FarmLocation = e.Location
				item.HarvestedAt = e.Timestamp
				break
			}
		}

		items = append(items, item)
	}
	return items, nil
}

// GetBatch returns a batch record, or nil when it doesn't exist.
func (q *QueryService) GetBatch(ctx context.Context, id BatchID) (*Batch, error) {
	return q.store.GetBatch(ctx, id)
}

// ListBatches returns every batch record.
func (q *QueryService) ListBatches(ctx context.Context) ([]Batch, error) {
	return q.store.ListBatches(ctx)
}

// ListOrdersForConsumer returns the consumer's orders, newest first.
func (q *QueryService) ListOrdersForConsumer(ctx context.Context, id ConsumerID) ([]Order, error) {
	return q.store.ListOrdersByConsumer(ctx, id)
}

// ListOrdersForDistributor returns the distributor's orders, newest first.
func (q *QueryService) ListOrdersForDistributor(ctx context.Context, id DistributorID) ([]Order, error) {
	return q.store.ListOrdersByDistributor(ctx, id)
}

// Stock exposes the ledger view for a single batch.
func (q *QueryService) Stock(batchID BatchID) (StockSnapshot, error) {
	return q.ledger.Stock(batchID)
}

// =============================================================================
// SHIPMENT STATS - Distributor dashboard
// =============================================================================

// ShipmentStats counts a distributor's batches by their latest custody
// stage, in the fixed stage order the dashboard charts.
type ShipmentStats struct {
	DistributorID DistributorID
	Counts        map[EventType]int
}

var shipmentStages = []EventType{EventWarehouseIn, EventWarehouseOut, EventTransport, EventDelivered}

func (q *QueryService) ShipmentStatsForDistributor(ctx context.Context, id DistributorID) (*ShipmentStats, error) {
	batches, err := q.store.ListBatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}

	stats := &ShipmentStats{DistributorID: id, Counts: make(map[EventType]int, len(shipmentStages))}
	for _, stage := range shipmentStages {
		stats.Counts[stage] = 0
	}
	for _, b := range batches {
		if b.DistributorID != id {
			continue
		}
		if _, ok := stats.Counts[b.Status]; ok {
			stats.Counts[b.Status]++
		}
	}
	return stats, nil
}
