package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stagehand-dev/stagehand/internal/reading"
)

// previewSession is the on-disk form of a pinned reading mode. It plays the
// role a session cookie plays in a request layer: the token identifies the
// browsing session and the mode sticks until cleared.
type previewSession struct {
	Token   string `json:"token"`
	Stage   string `json:"stage,omitempty"`
	Version int64  `json:"version,omitempty"`
}

func (s *previewSession) mode() reading.Mode {
	if s.Version > 0 {
		return reading.VersionMode(s.Version)
	}
	return reading.StageMode(s.Stage)
}

// sessionPath places the session file next to the database it applies to.
func sessionPath(opts *RootOptions) string { return opts.DBPath + ".session" }

func saveSession(opts *RootOptions, sess *reading.Session) error {
	data, err := json.Marshal(previewSession{
		Token:   sess.Token,
		Stage:   sess.Mode.Stage,
		Version: sess.Mode.Version,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(sessionPath(opts), data, 0o644)
}

// loadSession reads the pinned session, if one exists.
func loadSession(opts *RootOptions) (*previewSession, bool) {
	data, err := os.ReadFile(sessionPath(opts))
	if err != nil {
		return nil, false
	}
	var s previewSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false
	}
	return &s, true
}

// NewPreviewCommand creates the preview command, which pins a reading mode
// that later show commands use by default.
func NewPreviewCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		stage   string
		version int64
		clear   bool
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Pin a reading mode for later show commands",
		Long: `Pin a stage or version that later show commands read by default, the way
a browsing session pins a preview mode. Run without flags to inspect the
current session; --clear ends it. Explicit show flags override the session.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			if clear {
				if err := os.Remove(sessionPath(rootOpts)); err != nil && !os.IsNotExist(err) {
					_ = formatter.Error(ErrCodeStore, err.Error())
					return WrapExitError(ExitFailure, "clearing session", err)
				}
				return formatter.Success("preview session cleared")
			}

			if stage == "" && version <= 0 {
				sess, ok := loadSession(rootOpts)
				if !ok {
					return formatter.Success("no preview session")
				}
				if formatter.Format == "json" {
					return formatter.Success(map[string]any{
						"token":   sess.Token,
						"stage":   sess.Stage,
						"version": sess.Version,
					})
				}
				return formatter.Success(fmt.Sprintf("session %s: %s", sess.Token, sess.mode()))
			}

			mode := reading.StageMode(stage)
			if version > 0 {
				mode = reading.VersionMode(version)
			}
			sess := reading.NewSession(mode)
			if err := saveSession(rootOpts, sess); err != nil {
				_ = formatter.Error(ErrCodeStore, err.Error())
				return WrapExitError(ExitFailure, "saving session", err)
			}

			if formatter.Format == "json" {
				return formatter.Success(map[string]any{
					"token":   sess.Token,
					"stage":   mode.Stage,
					"version": mode.Version,
				})
			}
			return formatter.Success(fmt.Sprintf("session %s pinned to %s", sess.Token, mode))
		},
	}

	cmd.Flags().StringVar(&stage, "stage", "", "stage to pin")
	cmd.Flags().Int64Var(&version, "version", 0, "historical version to pin")
	cmd.Flags().BoolVar(&clear, "clear", false, "end the preview session")
	cmd.MarkFlagsMutuallyExclusive("stage", "version")
	cmd.MarkFlagsMutuallyExclusive("stage", "clear")
	cmd.MarkFlagsMutuallyExclusive("version", "clear")

	return cmd
}
