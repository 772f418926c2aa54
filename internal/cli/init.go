package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command, which provisions the database
// schema for every configured type.
func NewInitCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Provision the database for the configured types",
		Long: `Create the per-stage tables and version history tables for every
type declared in the CUE specs. Provisioning is idempotent.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(opts, cmd)

			e, err := openEnv(opts)
			if err != nil {
				var loadErr *LoadError
				if errors.As(err, &loadErr) {
					_ = formatter.Error(loadErr.Code, loadErr.Message)
				} else {
					_ = formatter.Error(ErrCodeStore, err.Error())
				}
				return err
			}
			defer e.close()

			if err := e.store.Provision(cmd.Context(), e.reg); err != nil {
				_ = formatter.Error(ErrCodeStore, err.Error())
				return WrapExitError(ExitCommandError, "provisioning failed", err)
			}

			types := e.reg.Types()
			for _, name := range types {
				formatter.VerboseLog("Provisioned type: %s", name)
			}

			if formatter.Format == "json" {
				return formatter.Success(map[string]any{
					"database": opts.DBPath,
					"types":    types,
				})
			}
			return formatter.Success(fmt.Sprintf("Provisioned %d type(s) in %s", len(types), opts.DBPath))
		},
	}
}
