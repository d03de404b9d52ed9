// Package store provides an in-memory supply.Store for tests and dev.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/farmchain/trace-engine/supply"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	batches map[supply.BatchID]supply.Batch
	traces  map[supply.BatchID][]supply.TraceEvent
	orders  map[supply.OrderID]supply.Order
}

func NewMemory() *Memory {
	return &Memory{
		batches: make(map[supply.BatchID]supply.Batch),
		traces:  make(map[supply.BatchID][]supply.TraceEvent),
		orders:  make(map[supply.OrderID]supply.Order),
	}
}

// =============================================================================
// BATCH STORE
// =============================================================================

func (m *Memory) SaveBatch(_ context.Context, b supply.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.batches[b.ID]; ok {
		return fmt.Errorf("batch %s already exists", b.ID)
	}
	m.batches[b.ID] = b
	return nil
}

func (m *Memory) GetBatch(_ context.Context, id supply.BatchID) (*supply.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m *Memory) ListBatches(_ context.Context) ([]supply.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]supply.Batch, 0, len(m.batches))
	for _, b := range m.batches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateBatchProjection(_ context.Context, id supply.BatchID, status supply.EventType, location string, distributorID supply.DistributorID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return fmt.Errorf("batch %s not found", id)
	}
	b.Status = status
	b.CurrentLocation = location
	b.DistributorID = distributorID
	m.batches[id] = b
	return nil
}

// =============================================================================
// TRACE LOG - Append-only
// =============================================================================

func (m *Memory) AppendEvent(_ context.Context, e supply.TraceEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.traces[e.BatchID] = append(m.traces[e.BatchID], e)
	return nil
}

func (m *Memory) LoadTrace(_ context.Context, id supply.BatchID) ([]supply.TraceEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := m.traces[id]
	out := make([]supply.TraceEvent, len(events))
	copy(out, events)
	return out, nil
}

func (m *Memory) LatestEvent(_ context.Context, id supply.BatchID) (*supply.TraceEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := m.traces[id]
	if len(events) == 0 {
		return nil, nil
	}
	e := events[len(events)-1]
	return &e, nil
}

// =============================================================================
// ORDER STORE
// =============================================================================

func (m *Memory) SaveOrder(_ context.Context, o supply.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	m.orders[o.ID] = o
	return nil
}

func (m *Memory) UpdateOrderStatus(_ context.Context, o supply.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.orders[o.ID]
	if !ok {
		return fmt.Errorf("order %s not found", o.ID)
	}
	existing.Status = o.Status
	existing.DecidedBy = o.DecidedBy
	existing.DecidedAt = o.DecidedAt
	existing.RejectionReason = o.RejectionReason
	existing.UpdatedAt = o.UpdatedAt
	m.orders[o.ID] = existing
	return nil
}

func (m *Memory) GetOrder(_ context.Context, id supply.OrderID) (*supply.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *Memory) ListOrdersByConsumer(_ context.Context, id supply.ConsumerID) ([]supply.Order, error) {
	return m.listOrders(func(o supply.Order) bool { return o.ConsumerID == id })
}

func (m *Memory) ListOrdersByDistributor(_ context.Context, id supply.DistributorID) ([]supply.Order, error) {
	return m.listOrders(func(o supply.Order) bool { return o.DistributorID == id })
}

func (m *Memory) ListOrders(_ context.Context) ([]supply.Order, error) {
	return m.listOrders(func(supply.Order) bool { return true })
}

func (m *Memory) listOrders(keep func(supply.Order) bool) ([]supply.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]supply.Order, 0, len(m.orders))
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	// Newest first, ties broken by ID for stable output.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PlacedAt.Equal(out[j].PlacedAt) {
			return out[i].PlacedAt.After(out[j].PlacedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
