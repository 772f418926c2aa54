package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/stagehand-dev/stagehand/internal/record"
	"github.com/stagehand-dev/stagehand/internal/schema"
	"github.com/stagehand-dev/stagehand/internal/store"
	"github.com/stagehand-dev/stagehand/internal/versioned"
)

// env bundles everything an engine-backed command needs.
type env struct {
	reg    *schema.Registry
	store  *store.Store
	engine *versioned.Engine
}

func (e *env) close() { e.store.Close() }

// openEnv loads the spec registry and opens the database. Commands that
// mutate or read records go through here; init provisions separately.
func openEnv(opts *RootOptions) (*env, error) {
	reg, err := LoadRegistry(opts.SpecsDir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading specs", err)
	}
	st, err := store.Open(opts.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "opening database", err)
	}
	return &env{reg: reg, store: st, engine: versioned.New(st, reg)}, nil
}

// newFormatter builds the output formatter for a command invocation.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// parseRecordID parses a record id argument.
func parseRecordID(arg string) (record.ID, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid record id %q", arg)
	}
	return record.ID(id), nil
}

// operationError reports an engine failure in the configured format and
// returns the matching exit error.
func operationError(formatter *OutputFormatter, err error) error {
	_ = formatter.Error(ErrCodeOperation, err.Error())
	return WrapExitError(ExitFailure, "operation failed", err)
}

// inputError reports a bad-argument failure.
func inputError(formatter *OutputFormatter, err error) error {
	_ = formatter.Error(ErrCodeBadInput, err.Error())
	return WrapExitError(ExitCommandError, "invalid input", err)
}
