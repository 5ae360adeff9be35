package memory

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	name string
}

func TestSessionGetOrCreateCreatesOnce(t *testing.T) {
	repo := NewSessionRepository[*fakeSession](time.Hour, nil)
	userID := uuid.New()
	created := 0
	create := func() (*fakeSession, error) {
		created++
		return &fakeSession{name: "s"}, nil
	}

	first, isNew, err := repo.GetOrCreate(userID, create)
	require.NoError(t, err)
	assert.True(t, isNew)

	second, isNew, err := repo.GetOrCreate(userID, create)
	require.NoError(t, err)
	assert.False(t, isNew)

	assert.Same(t, first, second)
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, repo.Count())
}

func TestSessionGetOrCreateKeepsNothingOnError(t *testing.T) {
	repo := NewSessionRepository[*fakeSession](time.Hour, nil)
	boom := errors.New("documents unavailable")

	_, _, err := repo.GetOrCreate(uuid.New(), func() (*fakeSession, error) { return nil, boom })

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, repo.Count())
}

func TestSessionDeleteRunsEvictionHook(t *testing.T) {
	var (
		mu      sync.Mutex
		evicted []string
	)
	repo := NewSessionRepository(time.Hour, func(userID string, s *fakeSession) {
		mu.Lock()
		evicted = append(evicted, userID+":"+s.name)
		mu.Unlock()
	})
	userID := uuid.New()
	_, _, err := repo.GetOrCreate(userID, func() (*fakeSession, error) { return &fakeSession{name: "s"}, nil })
	require.NoError(t, err)

	repo.Delete(userID)

	_, ok := repo.Get(userID)
	assert.False(t, ok)
	mu.Lock()
	assert.Equal(t, []string{userID.String() + ":s"}, evicted)
	mu.Unlock()
}

func TestSessionsAreIsolatedPerUser(t *testing.T) {
	repo := NewSessionRepository[*fakeSession](time.Hour, nil)
	alice, bob := uuid.New(), uuid.New()

	_, _, err := repo.GetOrCreate(alice, func() (*fakeSession, error) { return &fakeSession{name: "alice"}, nil })
	require.NoError(t, err)

	_, ok := repo.Get(bob)
	assert.False(t, ok)
	s, ok := repo.Get(alice)
	require.True(t, ok)
	assert.Equal(t, "alice", s.name)
}
