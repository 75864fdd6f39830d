package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"furniture-store/internal/model"
)

// Persister stores the full line list of a session.
type Persister interface {
	Load(ctx context.Context, sessionID string) ([]model.CartLine, error)
	Save(ctx context.Context, sessionID string, lines []model.CartLine) error
}

const changeChannel = "cart:changed"

// RedisPersister keeps each cart as a JSON array under cart:{sessionID} and announces
// every save on a pub/sub channel so other instances can reload.
type RedisPersister struct {
	client     redis.UniversalClient
	baseTTL    time.Duration
	instanceID string
	logger     zerolog.Logger
}

// NewRedisPersister creates a persister. ttl is refreshed on every save.
func NewRedisPersister(client redis.UniversalClient, ttl time.Duration, logger zerolog.Logger) *RedisPersister {
	return &RedisPersister{
		client:     client,
		baseTTL:    ttl,
		instanceID: uuid.NewString(),
		logger:     logger.With().Str("component", "cart_persister").Logger(),
	}
}

// Load returns the saved lines, or nil when the session has no cart.
func (r *RedisPersister) Load(ctx context.Context, sessionID string) ([]model.CartLine, error) {
	data, err := r.client.Get(ctx, cacheKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var lines []model.CartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return lines, nil
}

// Save overwrites the cart. An empty list deletes the key.
func (r *RedisPersister) Save(ctx context.Context, sessionID string, lines []model.CartLine) error {
	key := cacheKey(sessionID)

	if len(lines) == 0 {
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("redis delete failed: %w", err)
		}
	} else {
		data, err := json.Marshal(lines)
		if err != nil {
			return fmt.Errorf("marshal cart failed: %w", err)
		}

		ttl := r.baseTTL
		if ttl > 0 {
			ttl += time.Duration(rand.Intn(60)) * time.Second
		}
		if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
			return fmt.Errorf("redis set failed: %w", err)
		}
	}

	if err := r.client.Publish(ctx, changeChannel, r.instanceID+"|"+sessionID).Err(); err != nil {
		r.logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to announce cart change")
	}
	return nil
}

// Watch calls onChange with the session id of every cart saved by another instance.
// It blocks until ctx is cancelled.
func (r *RedisPersister) Watch(ctx context.Context, onChange func(sessionID string)) error {
	sub := r.client.Subscribe(ctx, changeChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", changeChannel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			origin, sessionID, found := strings.Cut(msg.Payload, "|")
			if !found || origin == r.instanceID {
				continue
			}
			onChange(sessionID)
		}
	}
}

func cacheKey(sessionID string) string {
	return fmt.Sprintf("cart:%s", sessionID)
}
