package versioned

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/stagehand-dev/stagehand/internal/record"
)

// ErrCode categorizes engine errors.
type ErrCode string

const (
	// ErrCodeNotFound indicates the record or version does not exist in
	// the queried stage or history. Recoverable; the caller decides the
	// fallback.
	ErrCodeNotFound ErrCode = "NOT_FOUND"

	// ErrCodeIntegrity indicates the hierarchy tables disagree about
	// which rows exist for a record or version. Never retried, never
	// silently patched.
	ErrCodeIntegrity ErrCode = "INTEGRITY"

	// ErrCodeConflict indicates a concurrent version-allocation race
	// that persisted through the engine's bounded retries.
	ErrCodeConflict ErrCode = "CONFLICT"

	// ErrCodePublish indicates the atomic cross-table publish failed
	// after retries; the record remains in its pre-publish state.
	ErrCodePublish ErrCode = "PUBLISH"
)

// Error is the engine's structured error. Storage-layer errors that fit no
// category (connectivity, SQL syntax) pass through unwrapped.
type Error struct {
	Code     ErrCode
	Message  string
	Type     string // base type name
	RecordID record.ID
	Version  int64 // 0 when not version-specific
	Err      error // underlying cause, if any
}

func (e *Error) Error() string {
	switch {
	case e.Version > 0:
		return fmt.Sprintf("%s: %s (type=%s, record=%d, version=%d)", e.Code, e.Message, e.Type, e.RecordID, e.Version)
	case e.RecordID > 0:
		return fmt.Sprintf("%s: %s (type=%s, record=%d)", e.Code, e.Message, e.Type, e.RecordID)
	default:
		return fmt.Sprintf("%s: %s (type=%s)", e.Code, e.Message, e.Type)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsNotFound reports whether err is an engine not-found error.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsIntegrity reports whether err is a hierarchy-integrity error.
func IsIntegrity(err error) bool { return hasCode(err, ErrCodeIntegrity) }

// IsConflict reports whether err is a version-allocation conflict.
func IsConflict(err error) bool { return hasCode(err, ErrCodeConflict) }

// IsPublish reports whether err is a failed-publish error.
func IsPublish(err error) bool { return hasCode(err, ErrCodePublish) }

func hasCode(err error, code ErrCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

func engineErr(code ErrCode, typeName string, id record.ID, version int64, format string, args ...any) *Error {
	return &Error{
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Type:     typeName,
		RecordID: id,
		Version:  version,
	}
}

// isTransient reports whether err is a transient SQLite condition worth
// retrying (lock contention that outlived the busy timeout).
func isTransient(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
