package auth

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/aquafarm-service/internal/domain"
	"github.com/spec-kit/aquafarm-service/internal/repository"
)

// IdentityCache is a process-wide map of live identities keyed by user ID,
// with write-back to the credential store when entries go idle. It is shared
// mutable state touched by every request; the map and the cached documents
// are guarded by a single mutex, and no Identity pointer ever crosses the
// lock boundary: Get hands out a private copy and mutations re-enter through
// Put. Construct one at startup and pass it down; the lifecycle is
// New -> Sweep (periodic) -> Shutdown.
type IdentityCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	store   repository.IdentityRepository
	logger  *zap.Logger
	idleTTL time.Duration
	now     func() time.Time

	evictions int64
}

type cacheEntry struct {
	identity     *domain.Identity
	lastActivity time.Time
}

// NewIdentityCache builds an empty cache. idleTTL controls how long an entry
// may sit untouched before a sweep reconciles and evicts it.
func NewIdentityCache(store repository.IdentityRepository, idleTTL time.Duration, logger *zap.Logger) *IdentityCache {
	if idleTTL <= 0 {
		idleTTL = 24 * time.Hour
	}
	return &IdentityCache{
		entries: make(map[string]*cacheEntry),
		store:   store,
		logger:  logger,
		idleTTL: idleTTL,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the activity clock. Intended for tests.
func (c *IdentityCache) WithClock(now func() time.Time) *IdentityCache {
	c.now = now
	return c
}

// Get returns a copy of the cached identity and touches its activity clock,
// or nil on a miss. Callers mutate their copy freely; changes only become
// visible to other requests through Put.
func (c *IdentityCache) Get(userID string) *domain.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[userID]
	if !ok {
		return nil
	}
	entry.lastActivity = c.now()
	return entry.identity.Clone()
}

// Put inserts or overwrites the cache entry for the identity. The cache keeps
// its own copy, so the caller's pointer stays private after the call.
func (c *IdentityCache) Put(identity *domain.Identity) {
	if identity == nil || identity.ID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[identity.ID] = &cacheEntry{identity: identity.Clone(), lastActivity: c.now()}
}

// Remove drops an entry without write-back.
func (c *IdentityCache) Remove(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}

// Len returns the number of cached identities.
func (c *IdentityCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Evictions returns the total number of swept entries.
func (c *IdentityCache) Evictions() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictions
}

// Sweep reconciles and evicts every entry idle for at least the idle TTL.
// Stale entries are snapshotted under the lock, store I/O happens unlocked,
// and staleness is re-checked before the final evict so a concurrent touch
// is never lost. Write-back failures are logged and the entry is evicted
// anyway; the request path never sees a sweep error.
func (c *IdentityCache) Sweep(ctx context.Context) {
	type snapshot struct {
		userID       string
		identity     *domain.Identity
		lastActivity time.Time
	}

	cutoff := c.now().Add(-c.idleTTL)

	c.mu.Lock()
	stale := make([]snapshot, 0)
	for id, entry := range c.entries {
		if entry.lastActivity.After(cutoff) {
			continue
		}
		stale = append(stale, snapshot{
			userID:       id,
			identity:     entry.identity.Clone(),
			lastActivity: entry.lastActivity,
		})
	}
	c.mu.Unlock()

	for _, snap := range stale {
		c.reconcile(ctx, snap.userID, snap.identity)

		c.mu.Lock()
		if entry, ok := c.entries[snap.userID]; ok && entry.lastActivity.Equal(snap.lastActivity) {
			delete(c.entries, snap.userID)
			c.evictions++
		}
		c.mu.Unlock()
	}
}

// reconcile writes the cached identity back to the store, but only when the
// cache is strictly newer than the stored document or their content differs.
func (c *IdentityCache) reconcile(ctx context.Context, userID string, cached *domain.Identity) {
	stored, err := c.store.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.logger.Warn("swept identity missing from store", zap.String("user_id", userID))
			return
		}
		c.logger.Warn("sweep: load stored identity failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	if !cached.LastActivity.After(stored.LastActivity) && identitiesEqual(cached, stored) {
		return
	}

	cached.Version = stored.Version
	if err := c.store.Update(ctx, cached); err != nil {
		c.logger.Warn("sweep: identity write-back failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// Shutdown flushes every entry to the store and clears the cache.
func (c *IdentityCache) Shutdown(ctx context.Context) {
	c.mu.Lock()
	remaining := make([]*domain.Identity, 0, len(c.entries))
	for _, entry := range c.entries {
		remaining = append(remaining, entry.identity.Clone())
	}
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()

	for _, identity := range remaining {
		c.reconcile(ctx, identity.ID, identity)
	}
}

// identitiesEqual compares documents ignoring the bookkeeping fields that
// always drift between cache and store.
func identitiesEqual(a, b *domain.Identity) bool {
	ac, bc := a.Clone(), b.Clone()
	ac.Version, bc.Version = 0, 0
	ac.LastActivity, bc.LastActivity = time.Time{}, time.Time{}
	ac.UpdatedAt, bc.UpdatedAt = time.Time{}, time.Time{}
	return reflect.DeepEqual(ac, bc)
}
