package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/optisync/internal/model"
)

// Mutation is one user action. For react and pin, Payload.On is the desired
// end state. The view fills in the author, and the target of a send.
type Mutation struct {
	Kind     model.Kind
	TargetID string
	Payload  model.Payload
}

// Name labels the mutation in batch results.
func (m Mutation) Name() string {
	if m.Kind == model.KindSendMessage {
		return string(m.Kind)
	}
	return string(m.Kind) + ":" + m.TargetID
}

// SaveAll submits independent mutations together, such as the pin, vote and
// reaction changes of one edit sheet. Every part is enqueued in order, so all
// optimistic effects show before any request leaves; the requests then run
// concurrently and the call returns once each has an answer.
//
// Each part succeeds or fails on its own. An enqueue error, a rejection or
// an exhausted attempt budget fails that part only and never withdraws a
// sibling. Parts that needed no request (corrections, duplicates, a reaction
// already in the desired state) succeed. Responses are applied like any
// other, by Flush or Run.
func (v *View) SaveAll(ctx context.Context, muts ...Mutation) BatchResult {
	results := make([]PartResult, len(muts))
	var parts []BatchPart
	var positions []int
	for k, m := range muts {
		results[k].Name = m.Name()
		res, err := v.enqueue(m)
		if err != nil {
			results[k].Err = err
			continue
		}
		if !res.Dispatch {
			continue
		}
		intent := res.Intent
		v.inflight.Add(1)
		positions = append(positions, k)
		parts = append(parts, BatchPart{
			Name: results[k].Name,
			Run: func(ctx context.Context) error {
				defer v.inflight.Done()
				resp := v.deliver(ctx, intent)
				v.post(resp)
				return resp.Outcome.Err
			},
		})
	}

	// like dispatch: the caller going away never recalls a request
	batch := RunBatch(context.WithoutCancel(ctx), parts...)
	for j, part := range batch.Parts {
		results[positions[j]] = part
	}

	out := BatchResult{Parts: results}
	if err := out.Err(); err != nil {
		slog.Info("batch partially failed",
			"conversation_id", v.conversationID,
			"failed", len(out.Failed()),
			"total", len(out.Parts),
			"error", err,
		)
	}
	return out
}
