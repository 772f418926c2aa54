package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/stagehand-dev/stagehand/internal/record"
)

// TraceSnapshot captures the complete trace for a scenario execution. It is
// serialized with the canonical field encoding so golden comparisons are
// deterministic.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
}

// toCanonicalMap converts the snapshot to plain maps for the canonical
// encoder. Zero-valued event fields are omitted.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"op": event.Op,
		}
		if event.Record != 0 {
			eventMap["record"] = event.Record
		}
		if event.Version != 0 {
			eventMap["version"] = event.Version
		}
		if event.Stage != "" {
			eventMap["stage"] = event.Stage
		}
		if event.From != "" {
			eventMap["from"] = event.From
		}
		if event.To != "" {
			eventMap["to"] = event.To
		}
		if event.Class != "" {
			eventMap["class"] = event.Class
		}
		if event.Fields != nil {
			eventMap["fields"] = event.Fields
		}
		if event.Error != "" {
			eventMap["error"] = event.Error
		}
		traceList[i] = eventMap
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
}

// RunWithGolden executes a scenario and compares the trace against a golden
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

	snapshot := TraceSnapshot{
		ScenarioName: scenario.Name,
		Trace:        result.Trace,
	}
	traceJSON, err := record.MarshalCanonical(record.Fields(snapshot.toCanonicalMap()))
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)

	return result, nil
}
