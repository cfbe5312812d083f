package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBody_NFC(t *testing.T) {
	composed := "caf\u00e9"
	decomposed := "cafe\u0301"
	assert.NotEqual(t, composed, decomposed)
	assert.Equal(t, NormalizeBody(composed), NormalizeBody(decomposed))
	assert.Equal(t, "hi", NormalizeBody("  hi\n"))
}

func TestMarshalCanonical_SortedKeysNoHTMLEscape(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"b": int64(2),
		"a": "<x&y>",
		"c": []any{true, false},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<x&y>","b":2,"c":[true,false]}`, string(got))
}

func TestMarshalCanonical_RejectsFloatsAndNull(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"f": 1.5})
	assert.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"n": nil})
	assert.Error(t, err)
}

func TestFingerprint_StableAcrossMapOrder(t *testing.T) {
	a, err := Fingerprint(map[string]any{"x": "1", "y": "2"})
	require.NoError(t, err)
	b, err := Fingerprint(map[string]any{"y": "2", "x": "1"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestTimelineEntry_Canonical(t *testing.T) {
	e := TimelineEntry{
		Tag:           EntryPending,
		ID:            "c1",
		CorrelationID: "c1",
		AuthorID:      "u1",
		Body:          "hi",
		At:            time.UnixMilli(1000),
	}
	got, err := MarshalCanonical(e.Canonical())
	require.NoError(t, err)
	assert.Equal(t, `{"at":1000,"author_id":"u1","body":"hi","correlation_id":"c1","id":"c1","tag":"pending"}`, string(got))
	assert.True(t, e.Provisional())
}

func TestIntent_SlotKey(t *testing.T) {
	assert.Empty(t, Intent{Kind: KindSendMessage, TargetID: "conv"}.SlotKey())
	assert.Equal(t, "react:p1", Intent{Kind: KindReact, TargetID: "p1"}.SlotKey())
}

func TestIntent_Expired(t *testing.T) {
	now := time.Unix(100, 0)
	i := Intent{Status: StatusPending, ExpiresAt: now}
	assert.True(t, i.Expired(now))
	assert.False(t, i.Expired(now.Add(-time.Second)))

	i.Status = StatusConfirmed
	assert.False(t, i.Expired(now.Add(time.Hour)))
}

func TestSnapshot_WithReactionReplacesWholesale(t *testing.T) {
	s := Snapshot{Reactions: []ReactionState{{TargetID: "p1", AggregateCount: 3}}}
	out := s.WithReaction(ReactionState{TargetID: "p1", IsSelectedByViewer: true, AggregateCount: 4})

	r, ok := out.Reaction("p1")
	require.True(t, ok)
	assert.Equal(t, int64(4), r.AggregateCount)
	assert.True(t, r.IsSelectedByViewer)

	// original untouched
	orig, _ := s.Reaction("p1")
	assert.Equal(t, int64(3), orig.AggregateCount)
}
