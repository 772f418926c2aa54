// Package reading carries the per-request reading mode: which stage a read
// targets, or which pinned historical version when in archive mode.
//
// The mode is request-scoped state. It travels inside a context.Context and
// is never stored in a process-wide variable, so concurrently executing
// requests cannot observe each other's mode. Nested overrides are context
// derivations: the override exists only inside the derived context, and the
// caller's context is untouched on every exit path, error or not.
package reading

import "fmt"

// Mode is the active reading mode: a stage name, or a pinned version when
// Version > 0 (archive mode). In archive mode the stage is ignored and
// reads resolve against the _versions tables only.
type Mode struct {
	Stage   string
	Version int64
}

// StageMode returns a mode reading the given stage's current rows.
func StageMode(stage string) Mode {
	return Mode{Stage: stage}
}

// VersionMode returns an archive mode pinned to one version's snapshot.
func VersionMode(version int64) Mode {
	return Mode{Version: version}
}

// IsArchive reports whether the mode pins a historical version.
func (m Mode) IsArchive() bool { return m.Version > 0 }

// IsZero reports whether the mode is unset.
func (m Mode) IsZero() bool { return m.Stage == "" && m.Version == 0 }

func (m Mode) String() string {
	if m.IsArchive() {
		return fmt.Sprintf("archive(version=%d)", m.Version)
	}
	return fmt.Sprintf("stage(%s)", m.Stage)
}
