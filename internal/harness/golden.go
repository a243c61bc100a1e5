package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot captures the complete trace for a scenario execution.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Session      string       `json:"session"`
	Trace        []TraceEvent `json:"trace"`
}

// NewTraceSnapshot builds the snapshot stored in a scenario's golden file.
func NewTraceSnapshot(scenario *Scenario, result *Result) TraceSnapshot {
	session := scenario.Session
	if session == "" {
		session = DefaultSession
	}
	return TraceSnapshot{
		ScenarioName: scenario.Name,
		Session:      session,
		Trace:        result.Trace,
	}
}

// Marshal renders the snapshot as indented JSON with a trailing newline.
// Field order is fixed by the struct, so equal traces are byte-equal.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can check Pass and Errors.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against the scenario's
// golden file without re-running it.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	snapshot := NewTraceSnapshot(scenario, result)
	traceJSON, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)
	return nil
}
