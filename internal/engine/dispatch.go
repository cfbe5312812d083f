package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/roach88/optisync/internal/model"
)

// DefaultMaxAttempts is the delivery budget per intent.
const DefaultMaxAttempts = 3

// DefaultRetryBackoff is the base delay between delivery attempts. The nth
// retry waits n times this long.
const DefaultRetryBackoff = 500 * time.Millisecond

// Dispatcher runs delivery work off the caller's path.
type Dispatcher interface {
	Go(fn func())
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(fn func())

// Go calls f(fn).
func (f DispatcherFunc) Go(fn func()) { f(fn) }

// GoroutineDispatcher runs each delivery on its own goroutine.
var GoroutineDispatcher Dispatcher = DispatcherFunc(func(fn func()) { go fn() })

// InlineDispatcher runs deliveries synchronously in the calling goroutine.
// Responses still go through the event queue; call View.Flush to apply them.
var InlineDispatcher Dispatcher = DispatcherFunc(func(fn func()) { fn() })

// dispatch schedules delivery of intent. The request outlives the caller's
// context and the view: closing either never cancels it.
func (v *View) dispatch(ctx context.Context, intent model.Intent) {
	ctx = context.WithoutCancel(ctx)
	v.inflight.Add(1)
	v.dispatcher.Go(func() {
		defer v.inflight.Done()
		v.post(v.deliver(ctx, intent))
	})
}

// post hands a response to the single writer.
func (v *View) post(resp Response) {
	if !v.events.Push(Event{Type: EventTypeResponse, Response: &resp}) {
		slog.Debug("response dropped: view closed",
			"correlation_id", resp.CorrelationID,
			"kind", string(resp.Kind),
		)
	}
}

// deliver calls the backend until it answers, rejects, or the attempt
// budget runs out. Transient failures are retried with linear backoff.
func (v *View) deliver(ctx context.Context, intent model.Intent) Response {
	budget := NewAttemptBudget(v.maxAttempts)
	resp := Response{
		CorrelationID: intent.CorrelationID,
		Kind:          intent.Kind,
		TargetID:      intent.TargetID,
	}

	var last error
	for {
		if err := budget.Next(intent.CorrelationID); err != nil {
			var exhausted *AttemptsExhaustedError
			if errors.As(err, &exhausted) {
				exhausted.Last = last
			}
			slog.Warn("delivery budget exhausted",
				"correlation_id", intent.CorrelationID,
				"kind", string(intent.Kind),
				"attempts", budget.Max(),
				"error", last,
			)
			resp.Outcome = Outcome{Err: err, Attempts: budget.Max()}
			return resp
		}

		out := v.call(ctx, intent)
		out.Attempts = budget.Current()
		v.metrics.DeliveryAttempt(string(intent.Kind), out.Err)

		if out.Err == nil || IsRejected(out.Err) {
			resp.Outcome = out
			return resp
		}

		last = out.Err
		slog.Debug("delivery attempt failed",
			"correlation_id", intent.CorrelationID,
			"attempt", budget.Current(),
			"error", out.Err,
		)
		if budget.Current() < budget.Max() && v.retryBackoff > 0 {
			v.sleep(time.Duration(budget.Current()) * v.retryBackoff)
		}
	}
}

// call issues the one backend request that carries intent.
func (v *View) call(ctx context.Context, intent model.Intent) Outcome {
	switch intent.Kind {
	case model.KindSendMessage:
		id, err := v.backend.SendMessage(ctx, intent.TargetID, intent.Payload.Body, intent.CorrelationID)
		return Outcome{Err: err, RecordID: id}

	case model.KindReact:
		st, err := v.backend.ToggleReaction(ctx, intent.TargetID)
		if err != nil {
			return Outcome{Err: err}
		}
		return Outcome{Reaction: &st}

	case model.KindVote:
		opts, err := v.backend.CastVote(ctx, intent.TargetID, intent.Payload.OptionID)
		if err != nil {
			return Outcome{Err: err}
		}
		return Outcome{Poll: opts}

	case model.KindPin:
		st, err := v.backend.SetPinned(ctx, intent.TargetID, intent.Payload.On)
		if err != nil {
			return Outcome{Err: err}
		}
		return Outcome{Pin: &st}

	case model.KindDelete:
		return Outcome{Err: v.backend.DeleteMessage(ctx, intent.TargetID)}
	}
	return Outcome{Err: NewInvalidIntentError(intent.Kind, intent.TargetID, "no backend call for kind")}
}
