package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewStagesCommand creates the stages command, which lists a type's stage
// configuration.
func NewStagesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stages <type>",
		Short:         "Show a type's configured stages",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			reg, err := LoadRegistry(rootOpts.SpecsDir)
			if err != nil {
				_ = formatter.Error(ErrCodeBadSpec, err.Error())
				return WrapExitError(ExitCommandError, "loading specs", err)
			}

			d, err := reg.Descriptor(args[0])
			if err != nil {
				return operationError(formatter, err)
			}

			if formatter.Format == "json" {
				return formatter.Success(map[string]any{
					"type":                args[0],
					"stages":              d.Stages(),
					"primal":              d.PrimalStage(),
					"non_live_permission": d.NonLivePermission(),
					"classes":             d.KnownClasses(),
				})
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Type %s\n", args[0])
			for _, stage := range d.Stages() {
				marker := ""
				if stage == d.PrimalStage() {
					marker = " (primal)"
				}
				fmt.Fprintf(&b, "  %s%s\n", stage, marker)
			}
			if perm := d.NonLivePermission(); perm != "" {
				fmt.Fprintf(&b, "Non-primal stages restricted to: %s\n", perm)
			}
			return formatter.Success(b.String())
		},
	}
}
