package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/optisync/internal/model"
)

func TestRejectionError_MatchesSentinel(t *testing.T) {
	err := Reject("DUPLICATE_VOTE", "already voted")
	assert.ErrorIs(t, err, ErrRejected)
	assert.True(t, IsRejected(err))
	assert.True(t, IsRejected(fmt.Errorf("cast vote: %w", err)), "wrapped rejection")
	assert.Equal(t, "rejected (DUPLICATE_VOTE): already voted", err.Error())

	assert.False(t, IsRejected(errors.New("timeout")))
	assert.False(t, IsRejected(nil))
}

func TestMutationError_Helpers(t *testing.T) {
	busy := NewTargetBusyError(model.KindReact, "p1", "c1")
	assert.True(t, IsTargetBusy(busy))
	assert.False(t, IsExpired(busy))
	assert.Contains(t, busy.Error(), "TARGET_BUSY")

	unknown := NewUnknownCorrelationError("c9")
	assert.True(t, IsUnknownCorrelation(fmt.Errorf("resolve: %w", unknown)))
	assert.Contains(t, unknown.Error(), "intent=c9")

	assert.True(t, IsViewClosed(errViewClosed))

	invalid := NewInvalidIntentError(model.KindVote, "poll1", "option id is required")
	assert.Contains(t, invalid.Error(), "kind=vote")
	assert.Contains(t, invalid.Error(), "target=poll1")
}

func TestMutationError_Unwrap(t *testing.T) {
	cause := Reject("FORBIDDEN", "not allowed")
	err := &MutationError{Code: ErrCodeRejected, Message: "pin refused", CorrelationID: "c1", Err: cause}

	assert.True(t, IsRejected(err))
	assert.ErrorIs(t, err, cause)
}
