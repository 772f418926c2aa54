package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stagehand-dev/stagehand/internal/schema"
	"github.com/stagehand-dev/stagehand/internal/typedesc"
)

// NewTypesCommand creates the types command, which lists the concrete
// classes of a hierarchy. With --stored, classes found in stored rows are
// included even when they no longer appear in the specs.
func NewTypesCommand(rootOpts *RootOptions) *cobra.Command {
	var includeStored bool

	cmd := &cobra.Command{
		Use:   "types <type>",
		Short: "List a hierarchy's concrete classes",
		Long: `List every concrete class a base type's records may carry. With --stored,
classes present in stage or history rows are included too, so records of
retired classes stay discoverable.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			e, err := openEnv(rootOpts)
			if err != nil {
				_ = formatter.Error(ErrCodeStore, err.Error())
				return err
			}
			defer e.close()

			resolver := typedesc.NewResolver(e.store, e.reg)

			configured, err := resolver.KnownTypes(args[0])
			if err != nil {
				return operationError(formatter, err)
			}

			classes := configured
			if includeStored {
				d, err := e.reg.Descriptor(args[0])
				if err != nil {
					return operationError(formatter, err)
				}
				classes, err = resolver.AllTypesIncludingObsolete(
					cmd.Context(), d.BaseTable().Name, schema.ColClass)
				if err != nil {
					return operationError(formatter, err)
				}
			}

			if formatter.Format == "json" {
				return formatter.Success(map[string]any{
					"type":    args[0],
					"classes": classes,
				})
			}

			known := make(map[string]bool, len(configured))
			for _, class := range configured {
				known[class] = true
			}
			sort.Strings(classes)

			var b strings.Builder
			fmt.Fprintf(&b, "Type %s: %d class(es)\n", args[0], len(classes))
			for _, class := range classes {
				marker := ""
				if !known[class] {
					marker = " (stored only)"
				}
				fmt.Fprintf(&b, "  %s%s\n", class, marker)
			}
			return formatter.Success(b.String())
		},
	}

	cmd.Flags().BoolVar(&includeStored, "stored", false, "include classes found only in stored rows")

	return cmd
}
