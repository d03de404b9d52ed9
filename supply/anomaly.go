/*
anomaly.go - Deterministic per-batch status signal

PURPOSE:
  An extension point for surfacing "is this batch in trouble?" next to
  a listing. The contract is deliberately small: given a batch, return
  a deterministic, explainable signal derived from real data. Swap in a
  richer assessor (cold-chain sensors, ML scoring) without touching the
  callers.

  The default assessor inspects the actual custody trace: a batch that
  has not moved in too long, or that left a warehouse without entering
  transport, gets a warning with the reason spelled out.
*/
package supply

import (
	"context"
	"fmt"
	"time"
)

type AnomalyLevel string

const (
	AnomalyNone    AnomalyLevel = "none"
	AnomalyWarning AnomalyLevel = "warning"
)

// AnomalySignal is the per-batch status signal. Detail is always a
// human-readable explanation of why the level was assigned.
type AnomalySignal struct {
	BatchID BatchID
	Level   AnomalyLevel
	Code    string
	Detail  string
}

// AnomalyAssessor produces a status signal for a batch. Implementations
// must be deterministic for a given trace.
type AnomalyAssessor interface {
	Assess(ctx context.Context, batchID BatchID) (AnomalySignal, error)
}

// =============================================================================
// TRACE GAP ASSESSOR - Default implementation
// =============================================================================

// TraceGapAssessor flags batches whose custody trail has gone quiet.
type TraceGapAssessor struct {
	Trace *TraceService

	// StallThreshold is how long a non-delivered batch may sit without
	// a new custody event before it is flagged.
	StallThreshold time.Duration

	now func() time.Time
}

func NewTraceGapAssessor(trace *TraceService) *TraceGapAssessor {
	return &TraceGapAssessor{
		Trace:          trace,
		StallThreshold: 7 * 24 * time.Hour,
		now:            time.Now,
	}
}

func (a *TraceGapAssessor) Assess(ctx context.Context, batchID BatchID) (AnomalySignal, error) {
	events, err := a.Trace.Trace(ctx, batchID)
	if err != nil {
		return AnomalySignal{}, err
	}

	signal := AnomalySignal{BatchID: batchID, Level: AnomalyNone, Code: "ok", Detail: "No anomalies detected"}
	if len(events) == 0 {
		signal.Code = "no_custody_data"
		signal.Detail = "No custody events recorded yet"
		return signal, nil
	}

	latest := events[len(events)-1]
	if latest.EventType == EventDelivered {
		return signal, nil
	}

	if latest.EventType == EventWarehouseOut {
		signal.Level = AnomalyWarning
		signal.Code = "untracked_handoff"
		signal.Detail = fmt.Sprintf("Batch left warehouse at %s with no transport custody recorded",
			latest.Timestamp.Format(time.RFC3339))
		return signal, nil
	}

	if gap := a.now().UTC().Sub(latest.Timestamp); gap > a.StallThreshold {
		signal.Level = AnomalyWarning
		signal.Code = "stalled_custody"
		signal.Detail = fmt.Sprintf("No custody event for %d days since %s at %s",
			int(gap.Hours()/24), latest.EventType, latest.Location)
	}
	return signal, nil
}
