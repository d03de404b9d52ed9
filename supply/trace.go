/*
trace.go - Append-only custody history per batch

PURPOSE:
  Owns the ordered, append-only sequence of custody events for every
  batch (harvest -> warehouse -> transport -> delivery). The trace is
  the authority for "who currently holds this batch": the actor of the
  most recent TRANSPORT event is the current distributor, computed on
  every resolution and never cached on the batch record.

ORDERING:
  Events for a batch are totally ordered by (Seq, Timestamp). Seq is
  assigned under a per-batch gate; Timestamp is assigned server-side
  and clamped to be monotonically non-decreasing, which makes an
  out-of-order append structurally impossible on the normal path.
  Explicitly backdated appends (AppendEventAt) fail with
  ErrOutOfOrderEvent instead.

PROJECTIONS:
  After a successful append the batch record's Status, CurrentLocation
  and DistributorID are updated to mirror the latest event. These are
  display projections only; resolution always reads the trace.

SEE ALSO:
  - store.go: TraceLog persistence contract
  - fulfillment.go: Resolves the distributor at order placement
*/
package supply

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// TRACE SERVICE
// =============================================================================

// TraceService appends and reads custody events.
type TraceService struct {
	batches BatchStore
	log     TraceLog

	mu    sync.Mutex
	gates map[BatchID]*sync.Mutex

	now func() time.Time
}

func NewTraceService(batches BatchStore, log TraceLog) *TraceService {
	return &TraceService{
		batches: batches,
		log:     log,
		gates:   make(map[BatchID]*sync.Mutex),
		now:     time.Now,
	}
}

// gate returns the per-batch append lock, creating it on first use.
func (s *TraceService) gate(id BatchID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gates[id]
	if !ok {
		g = &sync.Mutex{}
		s.gates[id] = g
	}
	return g
}

// AppendEvent appends a custody event with a server-assigned timestamp.
// The timestamp never precedes the batch's latest event.
func (s *TraceService) AppendEvent(ctx context.Context, batchID BatchID, eventType EventType, location, handledBy, actorID string) (*TraceEvent, error) {
	return s.append(ctx, batchID, eventType, location, handledBy, actorID, nil)
}

// AppendEventAt appends a custody event with an explicit timestamp,
// for imported or backdated records. Fails with ErrOutOfOrderEvent if
// the timestamp would precede the batch's latest event.
func (s *TraceService) AppendEventAt(ctx context.Context, batchID BatchID, eventType EventType, location, handledBy, actorID string, at time.Time) (*TraceEvent, error) {
	return s.append(ctx, batchID, eventType, location, handledBy, actorID, &at)
}

func (s *TraceService) append(ctx context.Context, batchID BatchID, eventType EventType, location, handledBy, actorID string, at *time.Time) (*TraceEvent, error) {
	if !KnownEventType(eventType) {
		return nil, fmt.Errorf("event type %q is not a custody event", eventType)
	}

	g := s.gate(batchID)
	g.Lock()
	defer g.Unlock()

	batch, err := s.batches.GetBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("load batch %s: %w", batchID, err)
	}
	if batch == nil {
		return nil, fmt.Errorf("append %s event: batch %s: %w", eventType, batchID, ErrUnknownBatch)
	}

	latest, err := s.log.LatestEvent(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("load latest event for batch %s: %w", batchID, err)
	}

	var seq int64 = 1
	ts := s.now().UTC()
	if latest != nil {
		seq = latest.Seq + 1
		if at != nil && at.Before(latest.Timestamp) {
			return nil, &OutOfOrderEventError{BatchID: batchID, Attempted: *at, Latest: latest.Timestamp}
		}
		if ts.Before(latest.Timestamp) {
			// Clock went backwards; clamp to keep per-batch ordering.
			ts = latest.Timestamp
		}
	}
	if at != nil {
		ts = at.UTC()
	}

	event := TraceEvent{
		BatchID:   batchID,
		Seq:       seq,
		EventType: eventType,
		Location:  location,
		HandledBy: handledBy,
		ActorID:   actorID,
		Timestamp: ts,
	}

	if err := s.log.AppendEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("append event for batch %s: %w", batchID, err)
	}

	// Projection only. Resolution always reads the trace.
	distributorID := batch.DistributorID
	if eventType == EventTransport {
		distributorID = DistributorID(actorID)
	}
	if err := s.batches.UpdateBatchProjection(ctx, batchID, eventType, location, distributorID); err != nil {
		return nil, fmt.Errorf("update batch %s projection: %w", batchID, err)
	}

	return &event, nil
}

// Trace returns the batch's full custody history, oldest to newest.
func (s *TraceService) Trace(ctx context.Context, batchID BatchID) ([]TraceEvent, error) {
	batch, err := s.batches.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, fmt.Errorf("trace for batch %s: %w", batchID, ErrUnknownBatch)
	}
	return s.log.LoadTrace(ctx, batchID)
}

// =============================================================================
// DISTRIBUTOR RESOLUTION
// =============================================================================

// ResolveCurrentDistributor returns the actor of the most recent
// TRANSPORT event together with that event. Fails with
// ErrDistributorUnresolved if the batch has never entered transport.
//
// This is computed from the trace on every call. The DistributorID
// field on the batch record is a display projection and is never
// consulted here.
func (s *TraceService) ResolveCurrentDistributor(ctx context.Context, batchID BatchID) (DistributorID, *TraceEvent, error) {
	events, err := s.Trace(ctx, batchID)
	if err != nil {
		return "", nil, err
	}

	for i := len(events) - 1; i >= 0; i-- {
		if events[i].EventType == EventTransport {
			e := events[i]
			return DistributorID(e.ActorID), &e, nil
		}
	}
	return "", nil, fmt.Errorf("batch %s: %w", batchID, ErrDistributorUnresolved)
}
