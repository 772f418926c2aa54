package reading

import (
	"context"

	"github.com/google/uuid"

	"github.com/stagehand-dev/stagehand/internal/schema"
)

// RequestSignal is the inbound "requested stage" signal, typically a query
// parameter or cookie parsed by the request layer.
type RequestSignal interface {
	// RequestedStage returns the stage the request asked for, if any.
	RequestedStage() (string, bool)

	// RequestedVersion returns the pinned archive version the request
	// asked for, if any.
	RequestedVersion() (int64, bool)
}

// Authorizer decides whether the current request may view restricted
// content. The engine itself never enforces visibility; the resolver only
// consults this predicate to decide whether a non-primal stage request is
// honored.
type Authorizer interface {
	CanView(ctx context.Context, permission string) bool
}

// Resolver derives a request's initial reading mode from the inbound
// signal. Requests with no signal, an unknown stage, or insufficient
// permission fall back to the primal stage.
type Resolver struct {
	Auth Authorizer
}

// Resolve returns the reading mode for a fresh request against the given
// type.
func (r *Resolver) Resolve(ctx context.Context, d *schema.Descriptor, sig RequestSignal) Mode {
	primal := StageMode(d.PrimalStage())
	if sig == nil {
		return primal
	}

	if version, ok := sig.RequestedVersion(); ok && version > 0 {
		if !r.authorized(ctx, d) {
			return primal
		}
		return VersionMode(version)
	}

	stage, ok := sig.RequestedStage()
	if !ok || !d.HasStage(stage) {
		return primal
	}
	if stage != d.PrimalStage() && !r.authorized(ctx, d) {
		return primal
	}
	return StageMode(stage)
}

func (r *Resolver) authorized(ctx context.Context, d *schema.Descriptor) bool {
	perm := d.NonLivePermission()
	if perm == "" {
		return true
	}
	if r.Auth == nil {
		return false
	}
	return r.Auth.CanView(ctx, perm)
}

// Session pins a resolved reading mode for the remainder of a browsing
// session. The token is minted once per session and handed to the request
// layer for cookie persistence.
type Session struct {
	Token string
	Mode  Mode
}

// NewSession creates a session around the given mode. Tokens are UUIDv7,
// so they sort by creation time.
func NewSession(mode Mode) *Session {
	return &Session{
		Token: uuid.Must(uuid.NewV7()).String(),
		Mode:  mode,
	}
}
