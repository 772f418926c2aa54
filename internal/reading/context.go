package reading

import "context"

// modeKey is the context key for the reading mode.
type modeKey struct{}

// WithMode returns a context carrying the given reading mode. The parent
// context is not modified; dropping the returned context restores the
// previous mode by construction.
func WithMode(ctx context.Context, mode Mode) context.Context {
	return context.WithValue(ctx, modeKey{}, mode)
}

// FromContext returns the reading mode carried by ctx, if any.
func FromContext(ctx context.Context) (Mode, bool) {
	if v := ctx.Value(modeKey{}); v != nil {
		return v.(Mode), true
	}
	return Mode{}, false
}

// FromContextOr returns the mode carried by ctx, or fallback if none is
// set.
func FromContextOr(ctx context.Context, fallback Mode) Mode {
	if mode, ok := FromContext(ctx); ok {
		return mode
	}
	return fallback
}

// Scoped runs fn under the given mode and guarantees the caller's mode is
// unaffected afterwards, whether fn returns normally, returns an error, or
// panics. Calls nest: an inner Scoped sees the outer override as its prior
// state.
//
// Internal code that must read a fixed stage regardless of the request's
// mode (for example "always read live") uses this instead of mutating any
// shared state.
func Scoped(ctx context.Context, mode Mode, fn func(ctx context.Context) error) error {
	return fn(WithMode(ctx, mode))
}
