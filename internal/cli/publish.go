package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// PublishOptions holds flags for the publish command.
type PublishOptions struct {
	*RootOptions
	From string
	To   string
}

// NewPublishCommand creates the publish command.
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PublishOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "publish <type> <record>",
		Short: "Copy a record's current content from one stage to another",
		Long: `Copy a record's field set between stages atomically across its whole
table hierarchy. Publishing allocates no version; the content was already
versioned when written.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(opts.RootOptions, cmd)

			id, err := parseRecordID(args[1])
			if err != nil {
				return inputError(formatter, err)
			}

			e, err := openEnv(opts.RootOptions)
			if err != nil {
				_ = formatter.Error(ErrCodeStore, err.Error())
				return err
			}
			defer e.close()

			if err := e.engine.Publish(cmd.Context(), args[0], id, opts.From, opts.To); err != nil {
				return operationError(formatter, err)
			}

			if formatter.Format == "json" {
				return formatter.Success(map[string]any{
					"record": id,
					"from":   opts.From,
					"to":     opts.To,
				})
			}
			return formatter.Success(fmt.Sprintf("Published record %d: %s -> %s", id, opts.From, opts.To))
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "source stage (required)")
	cmd.Flags().StringVar(&opts.To, "to", "", "target stage (required)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

// NewUnpublishCommand creates the unpublish command, which removes a record
// from one stage. Version history is never touched.
func NewUnpublishCommand(rootOpts *RootOptions) *cobra.Command {
	var stage string

	cmd := &cobra.Command{
		Use:   "unpublish <type> <record>",
		Short: "Remove a record from a stage",
		Long: `Remove a record's rows from one stage across its whole hierarchy.
Other stages and the version history are untouched.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			id, err := parseRecordID(args[1])
			if err != nil {
				return inputError(formatter, err)
			}

			e, err := openEnv(rootOpts)
			if err != nil {
				_ = formatter.Error(ErrCodeStore, err.Error())
				return err
			}
			defer e.close()

			if err := e.engine.DeleteFromStage(cmd.Context(), args[0], id, stage); err != nil {
				return operationError(formatter, err)
			}

			if formatter.Format == "json" {
				return formatter.Success(map[string]any{
					"record": id,
					"stage":  stage,
				})
			}
			return formatter.Success(fmt.Sprintf("Removed record %d from stage %s", id, stage))
		},
	}

	cmd.Flags().StringVar(&stage, "stage", "", "stage to remove the record from (required)")
	_ = cmd.MarkFlagRequired("stage")

	return cmd
}
