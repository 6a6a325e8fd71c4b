// Package credential provides the gate that decides whether video generation
// may proceed, and the capabilities that check for and select an API key.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// State is the cached usability of the credential.
type State string

const (
	// StateUnknown means no check has run yet.
	StateUnknown State = "UNKNOWN"
	// StateUsable means a check passed or a selection completed.
	StateUsable State = "USABLE"
	// StateUnusable means a check failed or the credential was revoked.
	StateUnusable State = "UNUSABLE"
)

// ErrEnvironmentUnsupported is returned by RequestSelection when no
// interactive selection capability exists.
var ErrEnvironmentUnsupported = errors.New("credential: API key selection is not available in this environment")

// Capability is the external credential boundary.
type Capability interface {
	// IsUsable reports whether a credential is currently available.
	IsUsable(ctx context.Context) (bool, error)

	// PromptForSelection runs the interactive selection flow. A nil error only
	// means the flow completed; it does not confirm the chosen credential.
	PromptForSelection(ctx context.Context) error
}

// Gate caches the credential state for one session.
// Only the session state machine calls Revoke.
type Gate struct {
	mu           sync.RWMutex
	state        State
	capability   Capability
	assumeUsable bool
	logger       *slog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithCapability sets the selection capability. Without one, the gate
// reports EnvironmentUnsupported on selection.
func WithCapability(c Capability) GateOption {
	return func(g *Gate) {
		g.capability = c
	}
}

// WithAssumeUsable sets the usability reported by CheckUsable when no
// capability is present (ambient configuration, e.g. a key in the environment).
func WithAssumeUsable(v bool) GateOption {
	return func(g *Gate) {
		g.assumeUsable = v
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) GateOption {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGate creates a Gate in StateUnknown.
func NewGate(opts ...GateOption) *Gate {
	g := &Gate{
		state:  StateUnknown,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns the cached state.
func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Usable reports whether the cached state is StateUsable.
func (g *Gate) Usable() bool {
	return g.State() == StateUsable
}

// HasCapability reports whether an interactive selection flow is available.
func (g *Gate) HasCapability() bool {
	return g.capability != nil
}

// CheckUsable queries the capability and caches the result.
// A failing check yields StateUnusable.
func (g *Gate) CheckUsable(ctx context.Context) State {
	next := StateUnusable
	if g.capability == nil {
		if g.assumeUsable {
			next = StateUsable
		}
	} else {
		ok, err := g.capability.IsUsable(ctx)
		if err != nil {
			g.logger.Warn("credential check failed",
				slog.String("error", err.Error()),
			)
		} else if ok {
			next = StateUsable
		}
	}

	g.set(next)
	return next
}

// RequestSelection runs the selection flow and, once it completes without
// error, optimistically marks the credential usable. A later call may still
// fail with an invalidated credential.
func (g *Gate) RequestSelection(ctx context.Context) (State, error) {
	if g.capability == nil {
		return g.State(), ErrEnvironmentUnsupported
	}

	if err := g.capability.PromptForSelection(ctx); err != nil {
		return g.State(), fmt.Errorf("credential: selection failed: %w", err)
	}

	g.set(StateUsable)
	return StateUsable, nil
}

// Revoke marks the credential unusable. Calling it repeatedly is a no-op.
func (g *Gate) Revoke() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateUnusable {
		return
	}
	g.logger.Info("credential revoked",
		slog.String("previous_state", string(g.state)),
	)
	g.state = StateUnusable
}

func (g *Gate) set(s State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = s
}
