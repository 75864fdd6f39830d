// Package cart holds per-session shopping carts and notifies listeners of changes.
package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"furniture-store/internal/model"
)

const subscriberBuffer = 8

// ChangeEvent is broadcast after every successful mutation.
type ChangeEvent struct {
	SessionID  string           `json:"sessionId"`
	Lines      []model.CartLine `json:"lines"`
	TotalUnits int              `json:"totalUnits"`
	At         time.Time        `json:"at"`
}

// Store is the cart of a single session. All mutations persist the whole line list
// before returning; a failed save leaves the in-memory cart as it was.
type Store struct {
	mu        sync.Mutex
	sessionID string
	lines     []model.CartLine
	persister Persister
	logger    zerolog.Logger

	subs    map[int]chan ChangeEvent
	nextSub int
}

func newStore(sessionID string, lines []model.CartLine, persister Persister, logger zerolog.Logger) *Store {
	return &Store{
		sessionID: sessionID,
		lines:     lines,
		persister: persister,
		logger:    logger,
		subs:      make(map[int]chan ChangeEvent),
	}
}

// Lines returns a copy of the current lines.
func (s *Store) Lines() []model.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CloneLines(s.lines)
}

// AddOrMerge inserts line or adds its quantity to an existing line with the same key.
// When the merged quantity exceeds the cap the line is stored at the cap and a
// *QuantityExceededError carrying the rejected units is returned alongside that count.
func (s *Store) AddOrMerge(ctx context.Context, line model.CartLine) (int, error) {
	if line.Quantity < 1 {
		return 0, model.ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := model.CloneLines(s.lines)
	idx := indexOf(next, line.Key())

	qty := line.Quantity
	if idx >= 0 {
		qty += next[idx].Quantity
	}

	rejected := 0
	if qty > model.MaxLineQuantity {
		rejected = qty - model.MaxLineQuantity
		qty = model.MaxLineQuantity
	}

	line.Quantity = qty
	if idx >= 0 {
		next[idx] = line
	} else {
		next = append(next, line)
	}

	if err := s.commit(ctx, next); err != nil {
		return 0, err
	}

	if rejected > 0 {
		s.logger.Debug().
			Str("session_id", s.sessionID).
			Str("line", line.Key().String()).
			Int("rejected", rejected).
			Msg("cart line clamped")
		return rejected, &QuantityExceededError{Key: line.Key(), Rejected: rejected}
	}
	return 0, nil
}

// SetQuantity replaces the quantity of an existing line.
func (s *Store) SetQuantity(ctx context.Context, key model.LineKey, n int) error {
	if n < 1 || n > model.MaxLineQuantity {
		return model.ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := model.CloneLines(s.lines)
	idx := indexOf(next, key)
	if idx < 0 {
		return model.ErrLineNotFound
	}
	next[idx].Quantity = n

	return s.commit(ctx, next)
}

// Remove deletes a line. Removing an absent line is not an error.
func (s *Store) Remove(ctx context.Context, key model.LineKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexOf(s.lines, key)
	if idx < 0 {
		return nil
	}

	next := make([]model.CartLine, 0, len(s.lines)-1)
	next = append(next, s.lines[:idx]...)
	next = append(next, s.lines[idx+1:]...)

	return s.commit(ctx, next)
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.commit(ctx, nil)
}

// Reload replaces the in-memory lines with the persisted ones and notifies listeners.
func (s *Store) Reload(ctx context.Context) error {
	lines, err := s.persister.Load(ctx, s.sessionID)
	if err != nil {
		return fmt.Errorf("failed to reload cart: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = lines
	s.broadcast()
	return nil
}

// Subscribe registers a listener. Events are dropped for a listener whose buffer is full.
// cancel closes the channel and is safe to call more than once.
func (s *Store) Subscribe() (<-chan ChangeEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan ChangeEvent, subscriberBuffer)
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// commit must be called with mu held.
func (s *Store) commit(ctx context.Context, next []model.CartLine) error {
	if err := s.persister.Save(ctx, s.sessionID, next); err != nil {
		return fmt.Errorf("failed to persist cart: %w", err)
	}
	s.lines = next
	s.broadcast()
	return nil
}

// broadcast must be called with mu held.
func (s *Store) broadcast() {
	ev := ChangeEvent{
		SessionID:  s.sessionID,
		Lines:      model.CloneLines(s.lines),
		TotalUnits: model.TotalUnits(s.lines),
		At:         time.Now().UTC(),
	}
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.logger.Debug().Str("session_id", s.sessionID).Int("subscriber", id).Msg("dropped cart event for slow subscriber")
		}
	}
}

func indexOf(lines []model.CartLine, key model.LineKey) int {
	for i, l := range lines {
		if l.Key() == key {
			return i
		}
	}
	return -1
}
