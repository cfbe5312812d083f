package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/optisync/internal/model"
)

// Snapshot is the golden form of a run: the step trace and the final view.
type Snapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Final        FinalState
}

// toCanonicalMap converts a Snapshot to the map form model.MarshalCanonical
// accepts.
func (s *Snapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"seq":  ev.Seq,
			"step": ev.Step,
		}
		if ev.CorrelationID != "" {
			m["correlation_id"] = ev.CorrelationID
		}
		if ev.Detail != "" {
			m["detail"] = ev.Detail
		}
		trace[i] = m
	}

	timeline := make([]any, len(s.Final.Timeline))
	for i, e := range s.Final.Timeline {
		timeline[i] = e.Canonical()
	}
	presence := make([]any, len(s.Final.Presence))
	for i, p := range s.Final.Presence {
		presence[i] = p.Canonical()
	}

	return map[string]any{
		"scenario": s.ScenarioName,
		"trace":    trace,
		"final": map[string]any{
			"timeline": timeline,
			"failures": anyStrings(s.Final.Failures),
			"pending":  anyStrings(s.Final.Pending),
			"draft":    s.Final.Draft,
			"presence": presence,
		},
	}
}

// MarshalGolden returns the canonical JSON of a run.
func MarshalGolden(name string, result *Result) ([]byte, error) {
	snap := Snapshot{ScenarioName: name, Trace: result.Trace, Final: result.Final}
	return model.MarshalCanonical(snap.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the run against a golden
// file in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalGolden(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}

func anyStrings(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
