package engine

import (
	"testing"
	"time"

	"github.com/roach88/optisync/internal/model"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestQueue(t *testing.T, ids ...string) *MutationQueue {
	t.Helper()
	return NewMutationQueue(NewRegistry(NewFixedGenerator(ids...)), NewMatcher(0), 0)
}

func msg(id, cid, author, body string, at time.Time) model.Record {
	return model.Record{
		ID:             id,
		CorrelationID:  cid,
		ConversationID: "conv1",
		AuthorID:       author,
		Body:           body,
		CreatedAt:      at,
	}
}

func sendIntent(cid, body string, at time.Time, seq int64) model.Intent {
	return model.Intent{
		CorrelationID: cid,
		Kind:          model.KindSendMessage,
		TargetID:      "conv1",
		Payload:       model.Payload{AuthorID: "me", Body: body},
		CreatedAt:     at,
		ExpiresAt:     at.Add(DefaultExpiry),
		Seq:           seq,
		Status:        model.StatusPending,
	}
}

func ids(entries []model.TimelineEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
