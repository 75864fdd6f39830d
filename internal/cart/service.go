package cart

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"furniture-store/internal/model"
)

// Service defines the interface for cart operations keyed by session.
type Service interface {
	Lines(ctx context.Context, sessionID string) ([]model.CartLine, error)
	Add(ctx context.Context, sessionID string, line model.CartLine) (int, error)
	SetQuantity(ctx context.Context, sessionID string, key model.LineKey, n int) error
	Remove(ctx context.Context, sessionID string, key model.LineKey) error
	Clear(ctx context.Context, sessionID string) error
	Reload(ctx context.Context, sessionID string) error
	Subscribe(ctx context.Context, sessionID string) (<-chan ChangeEvent, func(), error)
}

type service struct {
	persister Persister
	logger    zerolog.Logger

	mu     sync.Mutex
	stores map[string]*Store
}

// NewService creates a new cart service. Stores are loaded from persister on first use.
func NewService(persister Persister, logger zerolog.Logger) Service {
	return &service{
		persister: persister,
		logger:    logger.With().Str("service", "cart").Logger(),
		stores:    make(map[string]*Store),
	}
}

// store returns the session's Store, loading it on first access.
func (s *service) store(ctx context.Context, sessionID string) (*Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.stores[sessionID]; ok {
		return st, nil
	}

	lines, err := s.persister.Load(ctx, sessionID)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to load cart")
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	st := newStore(sessionID, lines, s.persister, s.logger)
	s.stores[sessionID] = st
	return st, nil
}

func (s *service) Lines(ctx context.Context, sessionID string) ([]model.CartLine, error) {
	st, err := s.store(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return st.Lines(), nil
}

func (s *service) Add(ctx context.Context, sessionID string, line model.CartLine) (int, error) {
	st, err := s.store(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return st.AddOrMerge(ctx, line)
}

func (s *service) SetQuantity(ctx context.Context, sessionID string, key model.LineKey, n int) error {
	st, err := s.store(ctx, sessionID)
	if err != nil {
		return err
	}
	return st.SetQuantity(ctx, key, n)
}

func (s *service) Remove(ctx context.Context, sessionID string, key model.LineKey) error {
	st, err := s.store(ctx, sessionID)
	if err != nil {
		return err
	}
	return st.Remove(ctx, key)
}

func (s *service) Clear(ctx context.Context, sessionID string) error {
	st, err := s.store(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := st.Clear(ctx); err != nil {
		return err
	}
	s.logger.Info().Str("session_id", sessionID).Msg("cart cleared")
	return nil
}

// Reload refreshes a session already held in memory. Unknown sessions are loaded lazily
// on next use, so there is nothing to do for them.
func (s *service) Reload(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	st, ok := s.stores[sessionID]
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return st.Reload(ctx)
}

func (s *service) Subscribe(ctx context.Context, sessionID string) (<-chan ChangeEvent, func(), error) {
	st, err := s.store(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := st.Subscribe()
	return ch, cancel, nil
}
