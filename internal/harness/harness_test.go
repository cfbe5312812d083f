package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoldenScenarios(t *testing.T) {
	paths, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func mustParse(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	return s
}

func mustRun(t *testing.T, src string) *Result {
	t.Helper()
	result, err := Run(mustParse(t, src))
	require.NoError(t, err)
	return result
}

func TestParseScenario_Defaults(t *testing.T) {
	s := mustParse(t, `
name: defaults
description: d
steps:
  - send: hi
`)
	assert.Equal(t, "conv1", s.Conversation)
	assert.Equal(t, "me", s.Viewer)
	require.NotNil(t, s.Steps[0].Send)
	assert.Equal(t, "hi", *s.Steps[0].Send)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown field", "name: x\ndescription: d\nstep: []\n", "field step not found"},
		{"missing name", "description: d\nsteps: [{tick: true}]\n", "name is required"},
		{"missing description", "name: x\nsteps: [{tick: true}]\n", "description is required"},
		{"no steps", "name: x\ndescription: d\n", "steps list is required"},
		{"empty step", "name: x\ndescription: d\nsteps: [{}]\n", "step does nothing"},
		{"two actions", "name: x\ndescription: d\nsteps: [{tick: true, flush: true}]\n", "one action per step"},
		{"bad network", "name: x\ndescription: d\nsteps: [{network: flaky}]\n", "unknown network mode"},
		{"bad mode", "name: x\ndescription: d\nseed: {sessions: [{id: s, profile: u, mode: duo}]}\nsteps: [{tick: true}]\n", "mode must be solo or group"},
		{"bad save kind", "name: x\ndescription: d\nsteps: [{save: [{kind: star, target: p1}]}]\n", "unknown kind \"star\""},
		{"expect with error", "name: x\ndescription: d\nsteps: [{expect: {pending: 0}, error: X}]\n", "cannot carry an error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestRun_StepErrors(t *testing.T) {
	result := mustRun(t, `
name: step_errors
description: expected step errors are matched by code
seed:
  messages:
    - {id: p1, author: u1, body: post}
steps:
  - send: "   "
    error: INVALID_INTENT
  - pin: {post: p1, pinned: true}
  - vote: {poll: "", option: a}
    error: INVALID_INTENT
  - cancel: nope
    error: UNKNOWN_CORRELATION
  - dismiss: c1
    error: INVALID_INTENT
  - pin: {post: p1, pinned: true}
  - expect:
      pending: 1
      pinned: {post: p1, pinned: true}
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "INVALID_INTENT", result.Trace[0].Detail)
	assert.Equal(t, "duplicate", result.Trace[5].Detail)
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	result := mustRun(t, `
name: failing
description: a wrong expectation fails the run without stopping it
steps:
  - send: hi
  - expect:
      timeline: ["pending c1 bye"]
      pending: 2
  - flush: true
`)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "timeline")
	assert.Contains(t, result.Errors[1], "pending")
	assert.Len(t, result.Trace, 2, "steps after a failed expect still run")
}

func TestRun_UnexpectedAndMissingErrors(t *testing.T) {
	result := mustRun(t, `
name: error_mismatch
description: step errors are checked both ways
steps:
  - send: hi
    error: TARGET_BUSY
  - cancel: nope
`)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "expected error TARGET_BUSY, got none")
	assert.Contains(t, result.Errors[1], "unexpected error")
}

func TestRun_CorrectionCancelsPendingToggle(t *testing.T) {
	result := mustRun(t, `
name: correction
description: toggling back before the response arrives cancels the first toggle
seed:
  messages:
    - {id: p1, author: u1, body: post}
steps:
  - react: p1
  - react: p1
  - expect:
      reaction: {post: p1, selected: false, count: 0}
      status: {c1: gone}
      pending: 0
  # the first toggle had already reached the server; its response is
  # ignored and the server state arrives with the next refresh
  - flush: true
  - expect:
      reaction: {post: p1, selected: false, count: 0}
      pending: 0
  - refresh: true
  - expect:
      reaction: {post: p1, selected: true, count: 1}
      pending: 0
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "cancelled", result.Trace[1].Detail)
}

func TestRun_SaveFailsPartsIndependently(t *testing.T) {
	result := mustRun(t, `
name: save
description: one save fans out independent changes and a refused part fails alone
seed:
  messages:
    - {id: p1, author: u1, body: post}
  polls:
    - {id: poll1, options: [tea, coffee]}
  votes:
    - {poll: poll1, option: coffee, by: me}
steps:
  - save:
      - {kind: pin, target: p1, on: true}
      - {kind: vote, target: poll1, option: tea}
      - {kind: react, target: p1, on: true}
    error: DUPLICATE_VOTE
  - flush: true
  - expect:
      pinned: {post: p1, pinned: true}
      reaction: {post: p1, selected: true, count: 1}
      poll: {poll: poll1, options: ["tea 0", "coffee 1*"]}
      failures: [c2]
      pending: 0
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_DeleteHidesMessage(t *testing.T) {
	result := mustRun(t, `
name: delete
description: a pending delete hides the message at once
seed:
  messages:
    - {id: m1, author: me, body: oops}
    - {id: m2, author: u1, body: fine, at: 1s}
steps:
  - delete: m1
  - expect:
      timeline: ["confirmed m2 fine"]
      pending: 1
  - flush: true
  - expect:
      timeline: ["confirmed m2 fine"]
      pending: 0
  - delete: m2
  - flush: true
  - expect:
      timeline: ["confirmed m2 fine"]
      failures: [c2]
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_OthersPostsInterleave(t *testing.T) {
	result := mustRun(t, `
name: interleave
description: a pending message sorts among server records by time
seed:
  messages:
    - {id: m1, author: u1, body: first}
steps:
  - advance: 2s
  - network: offline
  - send: mine
  - flush: true
  - post: {id: m2, author: u1, body: later, at: 1s}
  - network: online
  - refresh: true
  - expect:
      timeline: ["confirmed m1 first", "pending c1 mine", "confirmed m2 later"]
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_InvalidConfig(t *testing.T) {
	_, err := Run(mustParse(t, `
name: bad_config
description: config is validated before the run
config: |
  max_attempts: 0
steps:
  - tick: true
`))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "scenario config"))
}

func TestFindScenarios(t *testing.T) {
	paths, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)
	assert.Contains(t, paths, filepath.Join("testdata", "scenarios", "offline_resend.yaml"))

	single, err := FindScenarios(paths[0])
	require.NoError(t, err)
	assert.Equal(t, paths[:1], single)

	_, err = FindScenarios("testdata/missing")
	var nf *ScenarioNotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestMarshalGolden_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/offline_resend.yaml")
	require.NoError(t, err)

	r1, err := Run(s)
	require.NoError(t, err)
	r2, err := Run(s)
	require.NoError(t, err)

	b1, err := MarshalGolden(s.Name, r1)
	require.NoError(t, err)
	b2, err := MarshalGolden(s.Name, r2)
	require.NoError(t, err)
	assert.Equal(t, string(b1), string(b2))
}
