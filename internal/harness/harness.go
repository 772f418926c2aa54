// Package harness runs YAML conformance scenarios against the versioning
// engine. Each scenario executes in a fresh in-memory database with a
// deterministic clock, producing a trace suitable for golden file
// comparison.
package harness

import (
	"context"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/stagehand-dev/stagehand/internal/compiler"
	"github.com/stagehand-dev/stagehand/internal/reading"
	"github.com/stagehand-dev/stagehand/internal/record"
	"github.com/stagehand-dev/stagehand/internal/schema"
	"github.com/stagehand-dev/stagehand/internal/stagesql"
	"github.com/stagehand-dev/stagehand/internal/store"
	"github.com/stagehand-dev/stagehand/internal/testutil"
	"github.com/stagehand-dev/stagehand/internal/versioned"
)

// TraceEvent is one entry in a scenario's execution trace.
type TraceEvent struct {
	Op      string         `json:"op"`
	Record  int64          `json:"record,omitempty"`
	Version int64          `json:"version,omitempty"`
	Stage   string         `json:"stage,omitempty"`
	From    string         `json:"from,omitempty"`
	To      string         `json:"to,omitempty"`
	Class   string         `json:"class,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Result holds a scenario's trace and any assertion failures.
type Result struct {
	Trace  []TraceEvent
	Errors []string
}

// Passed reports whether every step and assertion succeeded.
func (r *Result) Passed() bool { return len(r.Errors) == 0 }

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Run executes a scenario in a fresh in-memory database.
func Run(scenario *Scenario) (*Result, error) {
	reg, err := loadRegistry(scenario.Specs)
	if err != nil {
		return nil, fmt.Errorf("failed to load specs: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.Provision(ctx, reg); err != nil {
		return nil, fmt.Errorf("failed to provision store: %w", err)
	}

	eng := versioned.NewWithClock(st, reg, testutil.NewDeterministicClock().Now)

	result := &Result{}
	for i, step := range scenario.Steps {
		if err := executeStep(ctx, eng, reg, &step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	evaluateAssertions(ctx, eng, reg, scenario.Assertions, result)
	return result, nil
}

// executeStep runs one operation and appends its trace event. Engine
// errors land in the trace and the result; harness-level problems (bad
// scenario values) abort the run.
func executeStep(ctx context.Context, eng *versioned.Engine, reg *schema.Registry, step *Step, result *Result) error {
	switch {
	case step.Write != nil:
		return executeWrite(ctx, eng, step.Write, result)
	case step.Publish != nil:
		return executePublish(ctx, eng, reg, step.Publish, result)
	case step.Read != nil:
		return executeRead(ctx, eng, reg, step.Read, result)
	case step.Delete != nil:
		return executeDelete(ctx, eng, reg, step.Delete, result)
	default:
		return fmt.Errorf("empty step")
	}
}

func executeWrite(ctx context.Context, eng *versioned.Engine, step *WriteStep, result *Result) error {
	snapshot, err := convertSnapshot(step.Fields)
	if err != nil {
		return err
	}

	id, version, err := eng.WriteVersion(ctx, versioned.WriteRequest{
		Class:  step.Class,
		ID:     record.ID(step.Record),
		Stage:  step.Stage,
		Fields: snapshot,
		Author: step.Author,
	})
	event := TraceEvent{Op: "write", Record: int64(id), Version: version, Stage: step.Stage}
	if err != nil {
		event.Record = step.Record
		event.Error = err.Error()
		result.addError("write failed: %v", err)
	}
	result.Trace = append(result.Trace, event)
	return nil
}

func executePublish(ctx context.Context, eng *versioned.Engine, reg *schema.Registry, step *PublishStep, result *Result) error {
	baseType, err := resolveBaseType(reg, step.Type)
	if err != nil {
		return err
	}

	err = eng.Publish(ctx, baseType, record.ID(step.Record), step.From, step.To)
	event := TraceEvent{Op: "publish", Record: step.Record, From: step.From, To: step.To}
	if err != nil {
		event.Error = err.Error()
		result.addError("publish failed: %v", err)
	}
	result.Trace = append(result.Trace, event)
	return nil
}

func executeRead(ctx context.Context, eng *versioned.Engine, reg *schema.Registry, step *ReadStep, result *Result) error {
	baseType, err := resolveBaseType(reg, step.Type)
	if err != nil {
		return err
	}

	mode := reading.StageMode(step.Stage)
	if step.Version > 0 {
		mode = reading.VersionMode(step.Version)
	}

	event := TraceEvent{Op: "read", Record: step.Record, Stage: step.Stage, Version: step.Version}
	err = reading.Scoped(ctx, mode, func(ctx context.Context) error {
		rec, err := eng.Get(ctx, baseType, record.ID(step.Record))
		if err != nil {
			return err
		}
		event.Class = rec.Class
		event.Fields = map[string]any(rec.Fields)
		return nil
	})
	if err != nil {
		event.Error = err.Error()
		result.addError("read failed: %v", err)
	}
	result.Trace = append(result.Trace, event)
	return nil
}

func executeDelete(ctx context.Context, eng *versioned.Engine, reg *schema.Registry, step *DeleteStep, result *Result) error {
	baseType, err := resolveBaseType(reg, step.Type)
	if err != nil {
		return err
	}

	err = eng.DeleteFromStage(ctx, baseType, record.ID(step.Record), step.Stage)
	event := TraceEvent{Op: "delete", Record: step.Record, Stage: step.Stage}
	if err != nil {
		event.Error = err.Error()
		result.addError("delete failed: %v", err)
	}
	result.Trace = append(result.Trace, event)
	return nil
}

func evaluateAssertions(ctx context.Context, eng *versioned.Engine, reg *schema.Registry, assertions []Assertion, result *Result) {
	for i, a := range assertions {
		baseType, err := resolveBaseType(reg, a.BaseType)
		if err != nil {
			result.addError("assertions[%d]: %v", i, err)
			continue
		}
		id := record.ID(a.Record)

		switch a.Type {
		case AssertLastVersion:
			last, err := eng.LastVersion(ctx, baseType, id)
			if err != nil {
				result.addError("assertions[%d]: last_version: %v", i, err)
			} else if last != a.Version {
				result.addError("assertions[%d]: last_version = %d, want %d", i, last, a.Version)
			}

		case AssertStageState:
			recs, err := eng.ReadForStage(ctx, baseType, a.Stage, stagesql.ByID(a.Record))
			if err != nil {
				result.addError("assertions[%d]: stage_state: %v", i, err)
				continue
			}
			if len(recs) == 0 {
				result.addError("assertions[%d]: record %d not in stage %s", i, a.Record, a.Stage)
				continue
			}
			for col, want := range a.Expect {
				wantVal, err := convertValue(want)
				if err != nil {
					result.addError("assertions[%d]: expect.%s: %v", i, col, err)
					continue
				}
				if got := recs[0].Fields[col]; got != wantVal {
					result.addError("assertions[%d]: %s = %v, want %v", i, col, got, wantVal)
				}
			}

		case AssertNotInStage:
			recs, err := eng.ReadForStage(ctx, baseType, a.Stage, stagesql.ByID(a.Record))
			if err != nil {
				result.addError("assertions[%d]: not_in_stage: %v", i, err)
			} else if len(recs) != 0 {
				result.addError("assertions[%d]: record %d unexpectedly in stage %s", i, a.Record, a.Stage)
			}

		case AssertHistoryCount:
			hist, err := eng.AllVersions(ctx, baseType, id)
			if err != nil {
				result.addError("assertions[%d]: history_count: %v", i, err)
				continue
			}
			count := 0
			for hist.Next() {
				count++
			}
			if err := hist.Err(); err != nil {
				result.addError("assertions[%d]: history_count: %v", i, err)
			} else if count != a.Count {
				result.addError("assertions[%d]: history has %d versions, want %d", i, count, a.Count)
			}
			hist.Close()
		}
	}
}

// resolveBaseType defaults to the registry's only type when the scenario
// leaves the type implicit.
func resolveBaseType(reg *schema.Registry, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	types := reg.Types()
	if len(types) != 1 {
		return "", fmt.Errorf("scenario must name a base type; registry has %d types", len(types))
	}
	return types[0], nil
}

// loadRegistry compiles CUE spec files into a registry. Parsing goes
// through the same compiler entry point the CLI loader uses.
func loadRegistry(paths []string) (*schema.Registry, error) {
	cuectx := cuecontext.New()
	var specs []schema.TypeSpec

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		v := cuectx.CompileString(string(data), cue.Filename(path))
		if err := v.Err(); err != nil {
			return nil, err
		}

		fileSpecs, err := compiler.CompileTypes(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		specs = append(specs, fileSpecs...)
	}

	return schema.NewRegistry(specs...)
}

// convertSnapshot converts YAML-parsed field maps into the storable value
// domain.
func convertSnapshot(fields map[string]map[string]any) (record.Snapshot, error) {
	snapshot := make(record.Snapshot, len(fields))
	for table, cols := range fields {
		row := make(record.Fields, len(cols))
		for col, val := range cols {
			v, err := convertValue(val)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", table, col, err)
			}
			row[col] = v
		}
		snapshot[table] = row
	}
	return snapshot, nil
}

// convertValue maps a YAML-parsed value onto the storable domain. YAML
// integers arrive as int; floats are forbidden because field values feed
// content digests.
func convertValue(val any) (any, error) {
	switch v := val.(type) {
	case nil:
		return nil, nil
	case string:
		return v, nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case bool:
		return v, nil
	case float64:
		if v == float64(int64(v)) {
			return int64(v), nil
		}
		return nil, fmt.Errorf("floats are forbidden in field values: %v", v)
	default:
		return nil, fmt.Errorf("unsupported value type %T", val)
	}
}
