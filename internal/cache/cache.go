// Package cache provides a fast claim cache used to short-circuit duplicate
// item processing before the database CAS is attempted.
//
// The cache is an optimization only: the Item Store remains the source of
// truth for ownership, and a cache miss (or a disabled cache) simply means
// the pipeline pays for one more database roundtrip. Marks expire so a
// crashed run cannot hold an identity forever.
package cache

import (
	"context"
	"sync"
	"time"
)

// ClaimCache marks item identities as in flight for a run.
type ClaimCache interface {
	// TryMark attempts to mark the identity as in flight. It returns true if
	// the mark was acquired, false if another run already holds it.
	TryMark(ctx context.Context, sourceID, runID string, ttl time.Duration) (bool, error)

	// Release removes the mark. Called once the item reaches a terminal status.
	Release(ctx context.Context, sourceID string) error

	// IncrProgress increments the processed-item counter for a run. The
	// counter expires with the ttl so abandoned runs do not leak.
	IncrProgress(ctx context.Context, runID string, ttl time.Duration) error

	// Progress returns the processed-item counter for a run. found is false
	// when no counter exists (never incremented or expired).
	Progress(ctx context.Context, runID string) (count int64, found bool, err error)

	// Close releases underlying resources.
	Close() error
}

// memoryCache is the fallback used when Redis is disabled. Marks live in a
// map guarded by a mutex and expire lazily on access.
type memoryCache struct {
	mu       sync.Mutex
	marks    map[string]memoryMark
	progress map[string]memoryCounter
}

type memoryMark struct {
	runID     string
	expiresAt time.Time
}

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryCache creates an in-process claim cache.
func NewMemoryCache() ClaimCache {
	return &memoryCache{
		marks:    make(map[string]memoryMark),
		progress: make(map[string]memoryCounter),
	}
}

func (c *memoryCache) TryMark(_ context.Context, sourceID, runID string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if mark, ok := c.marks[sourceID]; ok && now.Before(mark.expiresAt) {
		// Re-marking by the same run is a no-op success.
		return mark.runID == runID, nil
	}

	c.marks[sourceID] = memoryMark{runID: runID, expiresAt: now.Add(ttl)}
	return true, nil
}

func (c *memoryCache) Release(_ context.Context, sourceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.marks, sourceID)
	return nil
}

func (c *memoryCache) IncrProgress(_ context.Context, runID string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	counter := c.progress[runID]
	if !now.Before(counter.expiresAt) {
		counter = memoryCounter{}
	}
	counter.count++
	counter.expiresAt = now.Add(ttl)
	c.progress[runID] = counter
	return nil
}

func (c *memoryCache) Progress(_ context.Context, runID string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	counter, ok := c.progress[runID]
	if !ok || !time.Now().Before(counter.expiresAt) {
		return 0, false, nil
	}
	return counter.count, true, nil
}

func (c *memoryCache) Close() error {
	return nil
}
