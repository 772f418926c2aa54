package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// historyEntry is one version row in command output.
type historyEntry struct {
	Version   int64  `json:"version"`
	WrittenAt string `json:"written_at"`
	Author    string `json:"author,omitempty"`
	Digest    string `json:"digest"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <type> <record>",
		Short: "List a record's version history",
		Long: `List every version of a record, oldest first, with its timestamp,
author, and content digest.`,
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

			hist, err := e.engine.AllVersions(cmd.Context(), args[0], id)
			if err != nil {
				return operationError(formatter, err)
			}
			defer hist.Close()

			var entries []historyEntry
			for hist.Next() {
				m := hist.Meta()
				entries = append(entries, historyEntry{
					Version:   m.Version,
					WrittenAt: m.WrittenAt.Format(time.RFC3339),
					Author:    m.Author,
					Digest:    m.Digest,
				})
			}
			if err := hist.Err(); err != nil {
				return operationError(formatter, err)
			}

			if formatter.Format == "json" {
				return formatter.Success(map[string]any{
					"record":   id,
					"versions": entries,
				})
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Record %d: %d version(s)\n", id, len(entries))
			for _, entry := range entries {
				author := entry.Author
				if author == "" {
					author = "-"
				}
				fmt.Fprintf(&b, "  v%d  %s  %s  %s\n", entry.Version, entry.WrittenAt, author, entry.Digest)
			}
			return formatter.Success(b.String())
		},
	}
}
