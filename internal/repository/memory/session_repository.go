package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// SessionRepository holds one live session per user. A session that is not
// touched for the idle TTL expires and is handed to the eviction hook.
type SessionRepository[T any] struct {
	cache *cache.Cache
	mu    sync.Mutex
}

func NewSessionRepository[T any](idleTTL time.Duration, onEvict func(userID string, session T)) *SessionRepository[T] {
	if idleTTL <= 0 {
		idleTTL = time.Hour
	}
	cleanup := idleTTL / 6
	if cleanup < time.Second {
		cleanup = time.Second
	}

	c := cache.New(idleTTL, cleanup)
	if onEvict != nil {
		c.OnEvicted(func(key string, value interface{}) {
			onEvict(key, value.(T))
		})
	}
	return &SessionRepository[T]{
		cache: c,
	}
}

// Get returns the user's session and restarts its idle timer.
func (r *SessionRepository[T]) Get(userID uuid.UUID) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.touch(userID.String())
}

// GetOrCreate returns the user's session, creating it with create when there
// is none. Creation runs at most once per user at a time.
func (r *SessionRepository[T]) GetOrCreate(userID uuid.UUID, create func() (T, error)) (T, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := userID.String()
	if s, ok := r.touch(key); ok {
		return s, false, nil
	}

	s, err := create()
	if err != nil {
		var zero T
		return zero, false, err
	}
	r.cache.Set(key, s, cache.DefaultExpiration)
	return s, true, nil
}

// Delete drops the user's session; the eviction hook runs for it.
func (r *SessionRepository[T]) Delete(userID uuid.UUID) {
	r.cache.Delete(userID.String())
}

func (r *SessionRepository[T]) Count() int {
	return r.cache.ItemCount()
}

// Flush drops every session without running the eviction hook.
func (r *SessionRepository[T]) Flush() {
	r.cache.Flush()
}

func (r *SessionRepository[T]) touch(key string) (T, bool) {
	x, found := r.cache.Get(key)
	if !found {
		var zero T
		return zero, false
	}
	r.cache.Set(key, x, cache.DefaultExpiration)
	return x.(T), true
}
