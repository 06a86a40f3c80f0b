package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ranops-core/server/internal/agent/model"
	errx "github.com/ranops-core/server/internal/core/error"
	logx "github.com/ranops-core/server/pkg/logger"
)

// RedisCheckpointProvider persists per-thread conversation state as a JSON
// document keyed by thread id. TTL is refreshed on every save so active
// threads stay warm and abandoned ones age out.
type RedisCheckpointProvider struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisCheckpointProvider(rdb redis.Cmdable, ttl time.Duration) *RedisCheckpointProvider {
	return &RedisCheckpointProvider{rdb: rdb, ttl: ttl}
}

func (r *RedisCheckpointProvider) stateKey(threadID string) string {
	return fmt.Sprintf("agent:thread:%s:state", threadID)
}

func (r *RedisCheckpointProvider) Load(ctx context.Context, threadID string) (*model.ConversationState, error) {
	key := r.stateKey(threadID)

	raw, err := r.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load thread state from redis")
		return nil, errx.WrapRedis(err)
	}

	var state model.ConversationState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		logx.Error().Err(err).Str("threadID", threadID).Msg("failed to unmarshal thread state")
		return nil, fmt.Errorf("unmarshal thread state: %w", err)
	}
	if state.ProcessedToolCallIDs == nil {
		state.ProcessedToolCallIDs = map[string]bool{}
	}
	return &state, nil
}

func (r *RedisCheckpointProvider) Save(ctx context.Context, threadID string, state *model.ConversationState) error {
	b, err := json.Marshal(state)
	if err != nil {
		logx.Error().Err(err).Str("threadID", threadID).Msg("failed to marshal thread state")
		return fmt.Errorf("marshal thread state: %w", err)
	}
	key := r.stateKey(threadID)

	if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save thread state to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

// Clear removes a thread's stored state.
func (r *RedisCheckpointProvider) Clear(ctx context.Context, threadID string) error {
	key := r.stateKey(threadID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete thread state from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.CheckpointProvider = (*RedisCheckpointProvider)(nil)

// MemoryCheckpointProvider keeps thread state in process memory. Useful for
// tests and single-process development without Redis.
type MemoryCheckpointProvider struct {
	mu      sync.RWMutex
	threads map[string]*model.ConversationState
}

func NewMemoryCheckpointProvider() *MemoryCheckpointProvider {
	return &MemoryCheckpointProvider{threads: map[string]*model.ConversationState{}}
}

func (m *MemoryCheckpointProvider) Load(_ context.Context, threadID string) (*model.ConversationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.threads[threadID]
	if !ok {
		return nil, nil
	}
	return state, nil
}

func (m *MemoryCheckpointProvider) Save(_ context.Context, threadID string, state *model.ConversationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[threadID] = state
	return nil
}

var _ model.CheckpointProvider = (*MemoryCheckpointProvider)(nil)
