// Package auth keeps the API access/refresh token pair behind an injected store and
// renews the access token when the API rejects it.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNoRefreshToken     = errors.New("NO_REFRESH_TOKEN")
	ErrTokenRefreshFailed = errors.New("TOKEN_REFRESH_FAILED")
)

// Tokens is the pair issued at login.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// TokenStore holds the token pair of one API identity. It is initialised on load
// and cleared on logout or on a failed refresh.
type TokenStore interface {
	Load(ctx context.Context) (Tokens, error)
	Save(ctx context.Context, t Tokens) error
	SaveAccess(ctx context.Context, access string) error
	ClearAccess(ctx context.Context) error
	Clear(ctx context.Context) error
}

// MemoryTokenStore keeps tokens in process memory.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens Tokens
}

func NewMemoryTokenStore(initial Tokens) *MemoryTokenStore {
	return &MemoryTokenStore{tokens: initial}
}

func (s *MemoryTokenStore) Load(context.Context) (Tokens, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens, nil
}

func (s *MemoryTokenStore) Save(_ context.Context, t Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = t
	return nil
}

func (s *MemoryTokenStore) SaveAccess(_ context.Context, access string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens.Access = access
	return nil
}

func (s *MemoryTokenStore) ClearAccess(context.Context) error {
	return s.SaveAccess(context.Background(), "")
}

func (s *MemoryTokenStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = Tokens{}
	return nil
}

// RedisTokenStore shares the token pair between API replicas.
type RedisTokenStore struct {
	client redis.Cmdable
	prefix string
}

func NewRedisTokenStore(client redis.Cmdable, prefix string) *RedisTokenStore {
	if prefix == "" {
		prefix = "appraisal:tokens:"
	}
	return &RedisTokenStore{client: client, prefix: prefix}
}

func (s *RedisTokenStore) accessKey() string  { return s.prefix + "access" }
func (s *RedisTokenStore) refreshKey() string { return s.prefix + "refresh" }

func (s *RedisTokenStore) Load(ctx context.Context) (Tokens, error) {
	vals, err := s.client.MGet(ctx, s.accessKey(), s.refreshKey()).Result()
	if err != nil {
		return Tokens{}, fmt.Errorf("load tokens: %w", err)
	}
	var t Tokens
	if len(vals) == 2 {
		t.Access, _ = vals[0].(string)
		t.Refresh, _ = vals[1].(string)
	}
	return t, nil
}

func (s *RedisTokenStore) Save(ctx context.Context, t Tokens) error {
	if err := s.client.MSet(ctx, s.accessKey(), t.Access, s.refreshKey(), t.Refresh).Err(); err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) SaveAccess(ctx context.Context, access string) error {
	if err := s.client.Set(ctx, s.accessKey(), access, 0).Err(); err != nil {
		return fmt.Errorf("save access token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) ClearAccess(ctx context.Context) error {
	if err := s.client.Del(ctx, s.accessKey()).Err(); err != nil {
		return fmt.Errorf("clear access token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.accessKey(), s.refreshKey()).Err(); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return nil
}
