package queue

import (
	"context"
	"log"

	"markit/internal/stats"
)

// MsgRecompute marks a message carrying a subject id whose cached statistics
// need recomputing.
const MsgRecompute = "recompute"

// RecomputeRetry wraps the statistics engine so that failed recomputes are
// enqueued for the worker to retry. Mutation paths that tolerate a stale
// cache (status updates, bulk marking) keep succeeding while the queue heals
// the counters.
type RecomputeRetry struct {
	engine *stats.Engine
	q      Queue
}

// NewRecomputeRetry wires the wrapper.
func NewRecomputeRetry(engine *stats.Engine, q Queue) *RecomputeRetry {
	return &RecomputeRetry{engine: engine, q: q}
}

// Recompute delegates to the engine and enqueues the subject on failure.
func (r *RecomputeRetry) Recompute(ctx context.Context, subjectID string) (stats.SubjectTotals, error) {
	totals, err := r.engine.Recompute(ctx, subjectID)
	if err != nil {
		if perr := r.q.Publish(ctx, Message{Type: MsgRecompute, Body: []byte(subjectID)}); perr != nil {
			log.Printf("recompute retry enqueue for subject %s failed: %v", subjectID, perr)
		}
	}
	return totals, err
}
