package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maauso/genstudio-api/internal/credential"
	"github.com/maauso/genstudio-api/internal/generation"
)

// Stager accepts a key to be committed by the next selection flow.
type Stager interface {
	Stage(key string)
}

// Service creates sessions and runs their generations in the background.
type Service struct {
	repo         Repository
	runner       Runner
	capability   credential.Capability
	assumeUsable bool
	releaser     Releaser
	idleTTL      time.Duration
	logger       *slog.Logger

	mu   sync.Mutex
	runs map[string]run

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// run is the background generation of one session.
type run struct {
	token  string
	cancel context.CancelFunc
}

// ServiceOption is a function that configures a Service.
type ServiceOption func(*Service)

// WithCapability sets the credential capability shared by every session's gate.
func WithCapability(c credential.Capability) ServiceOption {
	return func(s *Service) {
		s.capability = c
	}
}

// WithAssumeUsable sets the gate fallback used when no capability is configured.
func WithAssumeUsable(v bool) ServiceOption {
	return func(s *Service) {
		s.assumeUsable = v
	}
}

// WithBlobReleaser sets where superseded results are released.
func WithBlobReleaser(r Releaser) ServiceOption {
	return func(s *Service) {
		s.releaser = r
	}
}

// WithIdleTTL evicts sessions that have not changed for d and are not
// generating. Zero disables eviction.
func WithIdleTTL(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.idleTTL = d
		}
	}
}

// WithServiceLogger sets the logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a new Service.
func NewService(repo Repository, runner Runner, opts ...ServiceOption) *Service {
	root, cancel := context.WithCancel(context.Background())
	s := &Service{
		repo:   repo,
		runner: runner,
		logger: slog.Default(),
		runs:   make(map[string]run),
		root:   root,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.idleTTL > 0 {
		s.wg.Add(1)
		go s.evictLoop(max(s.idleTTL/2, time.Second))
	}
	return s
}

// CreateSession creates a session with its own credential gate and checks
// the credential once.
func (s *Service) CreateSession(ctx context.Context) (*Session, error) {
	gate := credential.NewGate(
		credential.WithCapability(s.capability),
		credential.WithAssumeUsable(s.assumeUsable),
		credential.WithLogger(s.logger),
	)
	gate.CheckUsable(ctx)

	sess := New(gate, s.runner,
		WithReleaser(s.releaser),
		WithLogger(s.logger),
	)

	if err := s.repo.Save(ctx, sess); err != nil {
		s.logger.Error("failed to save session",
			slog.String("session_id", sess.ID()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.logger.Info("session created",
		slog.String("session_id", sess.ID()),
		slog.String("credential_state", string(gate.State())),
	)
	return sess, nil
}

// GetSession retrieves a session by ID.
func (s *Service) GetSession(ctx context.Context, id string) (*Session, error) {
	return s.repo.FindByID(ctx, id)
}

// SelectMode switches the mode of a session.
func (s *Service) SelectMode(ctx context.Context, id string, mode generation.Mode) (Snapshot, error) {
	sess, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	if err := sess.SelectMode(ctx, mode); err != nil {
		return sess.Snapshot(), err
	}
	return sess.Snapshot(), nil
}

// StartGeneration validates req against the session and, if accepted, runs it
// in the background. The returned snapshot reflects the session right after
// the start attempt.
func (s *Service) StartGeneration(ctx context.Context, id string, req generation.Request) (Snapshot, error) {
	sess, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}

	token, err := sess.Start(ctx, req)
	if err != nil {
		return sess.Snapshot(), err
	}

	// The generation outlives the request; it stops when the service closes
	// or the session is deleted.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(s.root, cancel)

	s.mu.Lock()
	s.runs[id] = run{token: token, cancel: cancel}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer stop()
		defer s.forgetRun(id, token)
		sess.Run(runCtx, token, req)
	}()

	return sess.Snapshot(), nil
}

// CheckCredential re-queries the credential capability for a session.
func (s *Service) CheckCredential(ctx context.Context, id string) (credential.State, error) {
	sess, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	return sess.Gate().CheckUsable(ctx), nil
}

// SelectCredential runs the selection flow for a session. A non-empty key is
// staged first when the capability accepts staged keys.
func (s *Service) SelectCredential(ctx context.Context, id, key string) (credential.State, error) {
	sess, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	if stager, ok := s.capability.(Stager); ok && key != "" {
		stager.Stage(key)
	}

	state, err := sess.Gate().RequestSelection(ctx)
	if err != nil {
		s.logger.Warn("credential selection failed",
			slog.String("session_id", id),
			slog.String("error", err.Error()),
		)
		return state, err
	}
	return state, nil
}

// DeleteSession removes a session, cancels its running generation and
// releases its result.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	sess, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	s.remove(ctx, sess)
	s.logger.Info("session deleted",
		slog.String("session_id", id),
	)
	return nil
}

// EvictIdle deletes every session that is not generating and has not been
// updated within the idle TTL as of now. It returns the number evicted.
func (s *Service) EvictIdle(ctx context.Context, now time.Time) (int, error) {
	if s.idleTTL <= 0 {
		return 0, nil
	}
	sessions, err := s.repo.List(ctx)
	if err != nil {
		return 0, err
	}

	evicted := 0
	for _, sess := range sessions {
		snap := sess.Snapshot()
		if snap.Status == StatusGenerating || now.Sub(snap.UpdatedAt) < s.idleTTL {
			continue
		}
		s.remove(ctx, sess)
		evicted++
	}
	if evicted > 0 {
		s.logger.Info("idle sessions evicted",
			slog.Int("count", evicted),
		)
	}
	return evicted, nil
}

func (s *Service) remove(ctx context.Context, sess *Session) {
	s.mu.Lock()
	r, ok := s.runs[sess.ID()]
	delete(s.runs, sess.ID())
	s.mu.Unlock()
	if ok {
		r.cancel()
	}

	sess.Discard(ctx)
	if err := s.repo.Delete(ctx, sess.ID()); err != nil {
		s.logger.Warn("failed to delete session",
			slog.String("session_id", sess.ID()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) forgetRun(id, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[id]; ok && r.token == token {
		delete(s.runs, id)
	}
}

func (s *Service) evictLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.root.Done():
			return
		case now := <-ticker.C:
			if _, err := s.EvictIdle(context.WithoutCancel(s.root), now); err != nil {
				s.logger.Warn("idle session eviction failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Close cancels running generations and waits for them to settle.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}
