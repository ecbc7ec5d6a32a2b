package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/vstratful/orchat/internal/sdk"
)

// ErrNoClient is returned when Sessions has no backend client.
var ErrNoClient = errors.New("no client configured")

// Sessions owns the active backend session and replaces it when the user
// switches sessions, models or reasoning effort.
type Sessions struct {
	client sdk.Client
	logger *zap.Logger

	mu      sync.Mutex
	session sdk.Session
	cfg     sdk.SessionConfig
	err     error
}

// NewSessions returns a Sessions with no active session. cfg is used for
// every session it creates or resumes.
func NewSessions(client sdk.Client, cfg sdk.SessionConfig, logger *zap.Logger) *Sessions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sessions{
		client: client,
		cfg:    cfg,
		logger: logger.Named("sessions"),
	}
}

// Client returns the backend client.
func (s *Sessions) Client() sdk.Client {
	return s.client
}

// Current returns the active session, or nil.
func (s *Sessions) Current() sdk.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Config returns the configuration used for new sessions.
func (s *Sessions) Config() sdk.SessionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Err returns the error of the last failed start, if the session is unusable.
func (s *Sessions) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Ready reports whether prompts can be sent.
func (s *Sessions) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil && s.err == nil
}

// Start resumes resumeID, or creates a new session when it is empty.
func (s *Sessions) Start(ctx context.Context, resumeID string) (sdk.Session, error) {
	if resumeID != "" {
		return s.Resume(ctx, resumeID)
	}
	return s.New(ctx)
}

// New replaces the active session with a fresh one. On failure the current
// session, if any, stays active.
func (s *Sessions) New(ctx context.Context) (sdk.Session, error) {
	if s.client == nil {
		return nil, s.fail(ErrNoClient)
	}
	cfg := s.Config()
	session, err := s.client.CreateSession(ctx, cfg)
	if err != nil {
		err = fmt.Errorf("failed to create session: %w", err)
		if s.Current() == nil {
			return nil, s.fail(err)
		}
		return nil, err
	}
	s.swap(ctx, session, cfg)
	s.logger.Info("session created", zap.String("session", session.ID()), zap.String("model", cfg.Model))
	return session, nil
}

// Resume replaces the active session with the stored session id. On failure
// the current session stays active.
func (s *Sessions) Resume(ctx context.Context, id string) (sdk.Session, error) {
	if s.client == nil {
		return nil, ErrNoClient
	}
	cfg := s.Config()
	session, err := s.client.ResumeSession(ctx, id, cfg)
	if err != nil {
		err = fmt.Errorf("failed to resume session %s: %w", id, err)
		if s.Current() == nil {
			return nil, s.fail(err)
		}
		return nil, err
	}
	s.swap(ctx, session, cfg)
	s.logger.Info("session resumed", zap.String("session", id))
	return session, nil
}

// SetModel switches the model. The active session is resumed under the new
// model so its history is kept.
func (s *Sessions) SetModel(ctx context.Context, model string) error {
	return s.reconfigure(ctx, func(cfg *sdk.SessionConfig) { cfg.Model = model })
}

// SetReasoningEffort switches the reasoning effort like SetModel.
func (s *Sessions) SetReasoningEffort(ctx context.Context, effort string) error {
	return s.reconfigure(ctx, func(cfg *sdk.SessionConfig) { cfg.ReasoningEffort = effort })
}

func (s *Sessions) reconfigure(ctx context.Context, apply func(*sdk.SessionConfig)) error {
	s.mu.Lock()
	cfg := s.cfg
	apply(&cfg)
	current := s.session
	if current == nil || s.client == nil {
		s.cfg = cfg
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	session, err := s.client.ResumeSession(ctx, current.ID(), cfg)
	if err != nil {
		return fmt.Errorf("failed to reconfigure session: %w", err)
	}
	s.swap(ctx, session, cfg)
	return nil
}

func (s *Sessions) swap(ctx context.Context, next sdk.Session, cfg sdk.SessionConfig) {
	s.mu.Lock()
	prev := s.session
	s.session = next
	s.cfg = cfg
	s.err = nil
	s.mu.Unlock()

	if prev != nil && prev != next {
		if err := prev.Destroy(ctx); err != nil {
			s.logger.Warn("failed to destroy previous session", zap.String("session", prev.ID()), zap.Error(err))
		}
	}
}

func (s *Sessions) fail(err error) error {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.logger.Warn("session unavailable", zap.Error(err))
	return err
}

// Close destroys the active session.
func (s *Sessions) Close(ctx context.Context) error {
	s.mu.Lock()
	session := s.session
	s.session = nil
	s.mu.Unlock()

	if session == nil {
		return nil
	}
	return session.Destroy(ctx)
}
