package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stagehand-dev/stagehand/internal/record"
	"github.com/stagehand-dev/stagehand/internal/versioned"
)

// WriteOptions holds flags for the write command.
type WriteOptions struct {
	*RootOptions
	Record int64
	Stage  string
	Author string
}

// NewWriteCommand creates the write command.
func NewWriteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WriteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "write <class> <fields-json>",
		Short: "Write a new version of a record into a stage",
		Long: `Write a record's field set into a stage and append a snapshot to its
version history. The fields argument is JSON keyed by logical table name:

  stagehand write NewsPage '{"pages":{"title":"Hi"},"news_pages":{"summary":"s"}}' --stage draft

Omitting --record allocates a fresh record id.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.Record, "record", 0, "record id (0 allocates)")
	cmd.Flags().StringVar(&opts.Stage, "stage", "", "target stage (required)")
	cmd.Flags().StringVar(&opts.Author, "author", "", "author recorded in the version metadata")
	_ = cmd.MarkFlagRequired("stage")

	return cmd
}

func runWrite(opts *WriteOptions, class, fieldsJSON string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	snapshot, err := parseSnapshot(fieldsJSON)
	if err != nil {
		return inputError(formatter, err)
	}

	e, err := openEnv(opts.RootOptions)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error())
		return err
	}
	defer e.close()

	id, version, err := e.engine.WriteVersion(cmd.Context(), versioned.WriteRequest{
		Class:  class,
		ID:     record.ID(opts.Record),
		Stage:  opts.Stage,
		Fields: snapshot,
		Author: opts.Author,
	})
	if err != nil {
		return operationError(formatter, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(map[string]any{
			"record":  id,
			"version": version,
			"stage":   opts.Stage,
		})
	}
	return formatter.Success(fmt.Sprintf("Wrote record %d version %d to stage %s", id, version, opts.Stage))
}

// parseSnapshot decodes the JSON field argument into a snapshot, coercing
// values into the storable domain.
func parseSnapshot(arg string) (record.Snapshot, error) {
	var raw map[string]map[string]any
	if err := json.Unmarshal([]byte(arg), &raw); err != nil {
		return nil, fmt.Errorf("fields must be JSON keyed by table name: %w", err)
	}

	snapshot := make(record.Snapshot, len(raw))
	for table, cols := range raw {
		row := make(record.Fields, len(cols))
		for col, val := range cols {
			v, err := coerceValue(val)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", table, col, err)
			}
			row[col] = v
		}
		snapshot[table] = row
	}
	return snapshot, nil
}

// coerceValue maps a JSON-decoded value onto the storable domain. JSON
// numbers arrive as float64; only integral values are accepted.
func coerceValue(val any) (any, error) {
	switch v := val.(type) {
	case nil, string, bool:
		return v, nil
	case float64:
		if v == float64(int64(v)) {
			return int64(v), nil
		}
		return nil, fmt.Errorf("non-integral number %v is not storable", v)
	default:
		return nil, fmt.Errorf("unsupported value type %T", val)
	}
}
