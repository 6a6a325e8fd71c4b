// Package session provides the generation session aggregate: the state
// machine that validates requests, runs them through the executor, and
// revokes the credential when a failure says it is no longer valid.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maauso/genstudio-api/internal/credential"
	"github.com/maauso/genstudio-api/internal/executor"
	"github.com/maauso/genstudio-api/internal/generation"
)

// Status represents the current state of a Session.
type Status string

const (
	// StatusIdle indicates no generation has run, or the last attempt was rejected before starting.
	StatusIdle Status = "IDLE"
	// StatusGenerating indicates a generation is in flight.
	StatusGenerating Status = "GENERATING"
	// StatusSucceeded indicates the last generation produced a result.
	StatusSucceeded Status = "SUCCEEDED"
	// StatusFailed indicates the last generation ended with an error.
	StatusFailed Status = "FAILED"
)

// Progress messages set when a generation starts.
const (
	MsgImageStarted = "Generating your image..."
	MsgVideoStarted = "Initiating video generation..."
)

// Static errors for session operations.
var (
	// ErrGenerationInFlight is returned when starting or switching mode while generating.
	ErrGenerationInFlight = errors.New("session: generation already in progress")
	// ErrInvalidMode is returned for an unsupported mode.
	ErrInvalidMode = errors.New("session: invalid mode")
)

// Runner executes a generation request.
type Runner interface {
	Execute(ctx context.Context, req generation.Request, gate executor.CredentialState, progress executor.ProgressFunc) (string, error)
}

// Releaser frees result references that are no longer displayed.
type Releaser interface {
	Release(ctx context.Context, refs []string) error
}

// Snapshot is a point-in-time copy of a session for safe reads.
type Snapshot struct {
	ID              string
	Mode            generation.Mode
	Status          Status
	ProgressMessage string
	ResultReference string
	ErrorMessage    string
	ValidationError string
	CredentialState credential.State
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Session is the state of one generation workspace.
// At most one generation runs at a time.
type Session struct {
	mu sync.RWMutex

	id         string
	mode       generation.Mode
	status     Status
	progress   string
	result     string
	errMsg     string
	validation string
	token      string
	createdAt  time.Time
	updatedAt  time.Time

	gate     *credential.Gate
	runner   Runner
	releaser Releaser
	logger   *slog.Logger
}

// Option is a function that configures a Session.
type Option func(*Session)

// WithID sets the session ID (useful for testing).
func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// WithReleaser sets where superseded result references are released.
func WithReleaser(r Releaser) Option {
	return func(s *Session) {
		s.releaser = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an Idle session in image mode.
func New(gate *credential.Gate, runner Runner, opts ...Option) *Session {
	if gate == nil {
		gate = credential.NewGate()
	}
	now := time.Now()
	s := &Session{
		id:        uuid.NewString(),
		mode:      generation.ModeImage,
		status:    StatusIdle,
		createdAt: now,
		updatedAt: now,
		gate:      gate,
		runner:    runner,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("session_id", s.id))
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Gate returns the session's credential gate.
func (s *Session) Gate() *credential.Gate {
	return s.gate
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:              s.id,
		Mode:            s.mode,
		Status:          s.status,
		ProgressMessage: s.progress,
		ResultReference: s.result,
		ErrorMessage:    s.errMsg,
		ValidationError: s.validation,
		CredentialState: s.gate.State(),
		CreatedAt:       s.createdAt,
		UpdatedAt:       s.updatedAt,
	}
}

// SelectMode switches the generation mode and clears the previous outcome.
// The credential gate is left untouched.
func (s *Session) SelectMode(ctx context.Context, mode generation.Mode) error {
	if !mode.IsValid() {
		return ErrInvalidMode
	}

	s.mu.Lock()
	if s.status == StatusGenerating {
		s.mu.Unlock()
		return ErrGenerationInFlight
	}
	stale := s.result
	s.mode = mode
	s.status = StatusIdle
	s.result = ""
	s.errMsg = ""
	s.validation = ""
	s.updatedAt = time.Now()
	s.mu.Unlock()

	s.release(ctx, stale)
	return nil
}

// Discard ends the session: a running generation is orphaned so its result is
// released on arrival, and the current result is released now.
func (s *Session) Discard(ctx context.Context) {
	s.mu.Lock()
	stale := s.result
	s.token = ""
	s.status = StatusIdle
	s.progress = ""
	s.result = ""
	s.errMsg = ""
	s.validation = ""
	s.updatedAt = time.Now()
	s.mu.Unlock()

	s.release(ctx, stale)
}

// Start validates req and, if it passes, moves the session to Generating and
// returns the token of the new generation. A rejected request leaves the
// session Idle with a validation error and returns a *generation.Failure.
func (s *Session) Start(ctx context.Context, req generation.Request) (string, error) {
	if !req.Mode.IsValid() {
		return "", ErrInvalidMode
	}

	s.mu.Lock()
	if s.status == StatusGenerating {
		s.mu.Unlock()
		return "", ErrGenerationInFlight
	}

	stale := s.result
	s.mode = req.Mode
	s.result = ""
	s.errMsg = ""
	s.validation = ""
	s.updatedAt = time.Now()

	if f := s.check(req); f != nil {
		s.status = StatusIdle
		s.validation = f.Message
		s.mu.Unlock()
		s.release(ctx, stale)
		return "", f
	}

	s.status = StatusGenerating
	s.token = uuid.NewString()
	s.progress = MsgImageStarted
	if req.Mode == generation.ModeVideo {
		s.progress = MsgVideoStarted
	}
	token := s.token
	s.mu.Unlock()

	s.release(ctx, stale)

	s.logger.Info("generation started",
		slog.String("mode", string(req.Mode)),
		slog.String("generation_id", token),
	)
	return token, nil
}

// check runs the pre-start guards. Caller must hold s.mu.
func (s *Session) check(req generation.Request) *generation.Failure {
	if err := req.Validate(); err != nil {
		if errors.Is(err, generation.ErrEmptyPrompt) {
			return generation.NewFailure(generation.KindValidation, generation.MsgEmptyPrompt, err)
		}
		return generation.NewFailure(generation.KindValidation, "Invalid generation options: "+err.Error(), err)
	}
	if req.Mode == generation.ModeVideo && !s.gate.Usable() {
		return generation.NewFailure(generation.KindValidation, generation.MsgVideoNeedsCredential, nil)
	}
	return nil
}

// Run executes the generation identified by token and settles the session.
// Results for a token that is no longer current are discarded.
func (s *Session) Run(ctx context.Context, token string, req generation.Request) {
	if s.runner == nil {
		s.finish(ctx, token, req.Mode, "", generation.NewFailure(generation.KindEnvironmentUnsupported, generation.MsgUnknown, nil))
		return
	}

	ref, err := s.runner.Execute(ctx, req, s.gate, func(p executor.Progress) {
		s.setProgress(token, p.Message)
	})
	s.finish(ctx, token, req.Mode, ref, err)
}

// Generate starts a generation and runs it to completion.
func (s *Session) Generate(ctx context.Context, req generation.Request) (Snapshot, error) {
	token, err := s.Start(ctx, req)
	if err != nil {
		return s.Snapshot(), err
	}
	s.Run(ctx, token, req)
	return s.Snapshot(), nil
}

func (s *Session) setProgress(token, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.token || s.status != StatusGenerating {
		return
	}
	s.progress = msg
	s.updatedAt = time.Now()
}

func (s *Session) finish(ctx context.Context, token string, mode generation.Mode, ref string, err error) {
	s.mu.Lock()
	if token != s.token || s.status != StatusGenerating {
		s.mu.Unlock()
		s.logger.Warn("discarding stale generation result",
			slog.String("generation_id", token),
		)
		s.release(ctx, ref)
		return
	}

	s.progress = ""
	s.updatedAt = time.Now()
	if err == nil {
		s.status = StatusSucceeded
		s.result = ref
		s.mu.Unlock()
		s.logger.Info("generation succeeded",
			slog.String("mode", string(mode)),
			slog.String("generation_id", token),
		)
		return
	}

	s.status = StatusFailed
	s.errMsg = generation.Message(err)
	s.mu.Unlock()

	s.logger.Error("generation failed",
		slog.String("mode", string(mode)),
		slog.String("generation_id", token),
		slog.String("kind", string(generation.KindOf(err))),
		slog.String("error", err.Error()),
	)

	if shouldRevoke(mode, err) {
		s.gate.Revoke()
	}
}

func (s *Session) release(ctx context.Context, ref string) {
	if s.releaser == nil || ref == "" {
		return
	}
	if err := s.releaser.Release(context.WithoutCancel(ctx), []string{ref}); err != nil {
		s.logger.Warn("failed to release result",
			slog.String("error", err.Error()),
		)
	}
}

// shouldRevoke reports whether a failure means the user must pick a key again.
func shouldRevoke(mode generation.Mode, err error) bool {
	var f *generation.Failure
	if errors.As(err, &f) {
		switch f.Kind {
		case generation.KindCredentialInvalidated:
			return true
		case generation.KindCredentialMissing, generation.KindCredentialNotSelected:
			return mode == generation.ModeVideo
		}
	}
	return strings.Contains(generation.Message(err), "API key error")
}
