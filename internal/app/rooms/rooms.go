// Package rooms issues room identifiers for the HTTP side-channel. Issuance
// is independent of live membership: joining over the signaling socket never
// consults this store.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Room is an issued identifier.
type Room struct {
	ID        string    `json:"roomId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store describes identifier issuance and lookup.
type Store interface {
	Create(ctx context.Context) (*Room, error)
	Get(ctx context.Context, id string) (*Room, error)
	Ping(ctx context.Context) error
}

// ErrNotFound is returned when an identifier was never issued.
var ErrNotFound = errors.New("room not found")

// MemoryStore keeps issued identifiers for the life of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]time.Time
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryStore) Create(_ context.Context) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for range 5 {
		id := uuid.NewString()
		if _, taken := s.rooms[id]; taken {
			continue
		}
		now := s.now().UTC()
		s.rooms[id] = now
		return &Room{ID: id, CreatedAt: now}, nil
	}
	return nil, errors.New("failed to generate unique room id")
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Room, error) {
	id = strings.TrimSpace(id)
	s.mu.RLock()
	created, ok := s.rooms[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return &Room{ID: id, CreatedAt: created}, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// RedisStore persists issued identifiers in Redis so they survive restarts
// and are shared between instances.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore builds a store scoped under prefix (e.g. "webrtc").
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	p := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if p == "" {
		p = "webrtc"
	}
	return &RedisStore{rdb: rdb, prefix: p}
}

func (s *RedisStore) roomKey(id string) string {
	return fmt.Sprintf("%s:rooms:%s", s.prefix, id)
}

// Create mints a new identifier. HSetNX guards against the unlikely case of
// a collision with an id another instance already wrote.
func (s *RedisStore) Create(ctx context.Context) (*Room, error) {
	for range 5 {
		id := uuid.NewString()
		now := time.Now().UTC()
		created, err := s.rdb.HSetNX(ctx, s.roomKey(id), "created_at", now.Format(time.RFC3339Nano)).Result()
		if err != nil {
			return nil, fmt.Errorf("create room: %w", err)
		}
		if !created {
			continue
		}
		return &Room{ID: id, CreatedAt: now}, nil
	}
	return nil, errors.New("failed to generate unique room id")
}

// Get fetches an issued identifier, returning ErrNotFound when missing.
func (s *RedisStore) Get(ctx context.Context, id string) (*Room, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}

	ts, err := s.rdb.HGet(ctx, s.roomKey(id), "created_at").Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", id, err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		createdAt = time.Time{}
	}
	return &Room{ID: id, CreatedAt: createdAt}, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
