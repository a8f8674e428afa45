package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/salon-reservations/internal/idempotency"
)

type entry struct {
	value   string
	expires time.Time
}

// Cache mirrors the redis adapters with expiring keys held in a map.
type Cache struct {
	mu   sync.Mutex
	keys map[string]entry
	now  func() time.Time
}

func NewCache() *Cache {
	return &Cache{keys: map[string]entry{}, now: time.Now}
}

func (c *Cache) setNX(key, value string, ttl time.Duration) bool {
	if e, ok := c.keys[key]; ok && c.now().Before(e.expires) {
		return false
	}
	c.keys[key] = entry{value: value, expires: c.now().Add(ttl)}
	return true
}

func (c *Cache) get(key string) (string, bool) {
	e, ok := c.keys[key]
	if !ok || !c.now().Before(e.expires) {
		return "", false
	}
	return e.value, true
}

func (c *Cache) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	token := uuid.NewString()
	return token, c.setNX("lock:"+key, token, ttl), nil
}

func (c *Cache) Unlock(_ context.Context, key, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.get("lock:" + key); ok && v == token {
		delete(c.keys, "lock:"+key)
	}
	return nil
}

func (c *Cache) FirstSeen(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setNX("seen:"+key, "1", ttl), nil
}

func (c *Cache) Forget(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, "seen:"+key)
	return nil
}

// IdempotencyStore keeps completed responses and in-flight reservations.
type IdempotencyStore struct {
	mu        sync.Mutex
	responses map[string]idempotency.Response
	cache     *Cache
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{responses: map[string]idempotency.Response{}, cache: NewCache()}
}

func (s *IdempotencyStore) Get(_ context.Context, key string) (*idempotency.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, ok := s.responses[key]
	if !ok {
		return nil, nil
	}
	resp.Result = append([]byte(nil), resp.Result...)
	return &resp, nil
}

func (s *IdempotencyStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.cache.FirstSeen(ctx, "idemp:"+key, ttl)
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.cache.Forget(ctx, "idemp:"+key)
}

func (s *IdempotencyStore) Set(_ context.Context, key string, resp idempotency.Response, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[key] = resp
	return nil
}
