package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/optisync/internal/model"
	"github.com/roach88/optisync/internal/testutil"
)

func TestView_SaveAllFailuresStayPerPart(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewFakeTime(t0)
	be := newFakeBackend(clock.Now)
	be.seed(model.Snapshot{Polls: []model.PollOption{
		{PollID: "poll1", OptionID: "a", VoteCount: 1, IsSelectedByViewer: true},
		{PollID: "poll1", OptionID: "b"},
	}})
	v := newTestView(t, be, clock)
	require.NoError(t, v.Refresh(ctx))

	res := v.SaveAll(ctx,
		Mutation{Kind: model.KindPin, TargetID: "p1", Payload: model.Payload{On: true}},
		Mutation{Kind: model.KindVote, TargetID: "poll1", Payload: model.Payload{OptionID: "b"}},
		Mutation{Kind: model.KindReact, TargetID: "p1", Payload: model.Payload{On: true}},
		Mutation{Kind: model.KindVote, TargetID: "poll2"},
	)

	require.Len(t, res.Parts, 4)
	assert.Equal(t, []string{"pin:p1", "vote:poll1", "react:p1", "vote:poll2"},
		[]string{res.Parts[0].Name, res.Parts[1].Name, res.Parts[2].Name, res.Parts[3].Name})
	assert.NoError(t, res.Parts[0].Err)
	assert.True(t, IsRejected(res.Parts[1].Err))
	assert.NoError(t, res.Parts[2].Err)
	assert.Contains(t, res.Parts[3].Err.Error(), "option id is required")
	assert.False(t, res.OK())

	var batchErr *BatchError
	require.True(t, errors.As(res.Err(), &batchErr))
	assert.Len(t, batchErr.Failed, 2)
	assert.Equal(t, 4, batchErr.Total)

	v.Flush()
	assert.True(t, v.Pinned("p1"), "siblings of a failed part keep their effect")
	assert.True(t, v.Reaction("p1").IsSelectedByViewer)
	require.Len(t, v.Failures(), 1)
	assert.Equal(t, model.KindVote, v.Failures()[0].Kind)
	assert.Empty(t, v.Pending())
}

func TestView_SaveAllSkipsNoops(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewFakeTime(t0)
	be := newFakeBackend(clock.Now)
	be.seed(model.Snapshot{Reactions: []model.ReactionState{{TargetID: "p1", IsSelectedByViewer: true, AggregateCount: 1}}})
	v := newTestView(t, be, clock)
	require.NoError(t, v.Refresh(ctx))

	res := v.SaveAll(ctx, Mutation{Kind: model.KindReact, TargetID: "p1", Payload: model.Payload{On: true}})
	assert.True(t, res.OK())
	assert.Equal(t, 0, be.callCount(model.KindReact), "already in the desired state")
	assert.Empty(t, v.Pending())
}

func TestView_SaveAllOptimisticBeforeDelivery(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewFakeTime(t0)
	be := newFakeBackend(clock.Now)
	be.setOffline(true)
	v := newTestView(t, be, clock, WithMaxAttempts(1))

	res := v.SaveAll(ctx,
		Mutation{Kind: model.KindSendMessage, Payload: model.Payload{Body: "hi"}},
		Mutation{Kind: model.KindPin, TargetID: "p1", Payload: model.Payload{On: true}},
	)
	require.Len(t, res.Failed(), 2)
	assert.True(t, IsAttemptsExhausted(res.Parts[0].Err))

	v.Flush()
	assert.Equal(t, []string{"c1"}, ids(v.Timeline()), "transient failures stay pending")
	assert.True(t, v.Pinned("p1"))
	assert.Len(t, v.Pending(), 2)
}
