// Package session keeps wizard snapshots between HTTP requests.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"loan-appraiser/internal/appraisal/wizard"
	"loan-appraiser/internal/common/config"
)

var (
	ErrNotFound     = errors.New("SESSION_NOT_FOUND")
	ErrUnknownStore = errors.New("UNKNOWN_SESSION_STORE")
)

const (
	defaultTTL    = 2 * time.Hour
	defaultPrefix = "appraisal:session:"
)

// Store persists wizard state by session id. Entries expire after the store's TTL,
// which every Save refreshes.
type Store interface {
	Load(ctx context.Context, id string) (wizard.State, error)
	Save(ctx context.Context, id string, s wizard.State) error
	Delete(ctx context.Context, id string) error
}

// NewStore builds the store selected by cfg. rdb is only used for the redis store.
func NewStore(cfg config.SessionConfig, rdb redis.Cmdable) (Store, error) {
	ttl := time.Duration(cfg.TTL) * time.Second
	switch cfg.Store {
	case "", config.StoreMemory:
		return NewMemoryStore(ttl), nil
	case config.StoreRedis:
		if rdb == nil {
			return nil, fmt.Errorf("%w: redis store requires a redis client", ErrUnknownStore)
		}
		return NewRedisStore(rdb, cfg.KeyPrefix, ttl), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, cfg.Store)
	}
}

// ==========================
// Memory
// ==========================

type memoryEntry struct {
	state   wizard.State
	expires time.Time
}

type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryEntry
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &MemoryStore{
		items: make(map[string]memoryEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (m *MemoryStore) Load(_ context.Context, id string) (wizard.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[id]
	if !ok {
		return wizard.State{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if m.now().After(e.expires) {
		delete(m.items, id)
		return wizard.State{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return copyState(e.state), nil
}

func (m *MemoryStore) Save(_ context.Context, id string, s wizard.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[id] = memoryEntry{state: copyState(s), expires: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	now := m.now()
	for id, e := range m.items {
		if now.After(e.expires) {
			delete(m.items, id)
			n++
		}
	}
	return n
}

func copyState(s wizard.State) wizard.State {
	values := make(map[string]any, len(s.Values))
	for k, v := range s.Values {
		values[k] = v
	}
	s.Values = values
	return s
}

// ==========================
// Redis
// ==========================

type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(id string) string { return r.prefix + id }

func (r *RedisStore) Load(ctx context.Context, id string) (wizard.State, error) {
	val, err := r.client.Get(ctx, r.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return wizard.State{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return wizard.State{}, fmt.Errorf("load session %s: %w", id, err)
	}

	var s wizard.State
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return wizard.State{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	if s.Values == nil {
		s.Values = make(map[string]any)
	}
	return s, nil
}

func (r *RedisStore) Save(ctx context.Context, id string, s wizard.State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", id, err)
	}
	if err := r.client.Set(ctx, r.key(id), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}
