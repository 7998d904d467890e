// Package cache provides a read-through cache in front of a UserRepository.
//
// Lookups by username, email or id populate the cache under the key that was
// used; any Save purges the whole namespace. One user is reachable under up
// to three aliased keys, so per-key eviction would have to track the aliases
// of both the old and the new row state. Bulk invalidation keeps writes
// stale-free without that bookkeeping.
package cache

import (
	"context"
	"strconv"
	"sync"

	"auth-service/internal/domain"
	"auth-service/internal/repository"
)

type UserCache struct {
	next repository.UserRepository

	mu      sync.Mutex
	entries map[string]*domain.User
}

var _ repository.UserRepository = (*UserCache)(nil)

func New(next repository.UserRepository) *UserCache {
	return &UserCache{
		next:    next,
		entries: make(map[string]*domain.User),
	}
}

func (c *UserCache) Init(ctx context.Context) error {
	return c.next.Init(ctx)
}

// Save writes through to the store and invalidates every cached entry. The
// purge happens after the store accepted the write, so a failed save leaves
// the cache untouched and still consistent.
func (c *UserCache) Save(ctx context.Context, user *domain.User) (*domain.User, error) {
	saved, err := c.next.Save(ctx, user)
	if err != nil {
		return nil, err
	}
	c.InvalidateAll()
	return saved, nil
}

func (c *UserCache) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return c.lookup(ctx, "username:"+username, func() (*domain.User, error) {
		return c.next.FindByUsername(ctx, username)
	})
}

func (c *UserCache) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return c.lookup(ctx, "email:"+email, func() (*domain.User, error) {
		return c.next.FindByEmail(ctx, email)
	})
}

func (c *UserCache) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	return c.lookup(ctx, "id:"+strconv.FormatInt(id, 10), func() (*domain.User, error) {
		return c.next.FindByID(ctx, id)
	})
}

// FindAll is served by the store directly; list results are not cached.
func (c *UserCache) FindAll(ctx context.Context) ([]domain.User, error) {
	return c.next.FindAll(ctx)
}

func (c *UserCache) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return c.next.ExistsByUsername(ctx, username)
}

func (c *UserCache) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return c.next.ExistsByEmail(ctx, email)
}

// InvalidateAll drops every cached entry.
func (c *UserCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]*domain.User)
	c.mu.Unlock()
}

// lookup consults the cache first and falls back to the store on miss.
// Concurrent misses may fetch and populate redundantly; both hold the same
// row from the same source of truth, so last write wins harmlessly. Misses
// (ErrNotFound) are not cached.
func (c *UserCache) lookup(_ context.Context, key string, fetch func() (*domain.User, error)) (*domain.User, error) {
	c.mu.Lock()
	if user, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return user.Clone(), nil
	}
	c.mu.Unlock()

	user, err := fetch()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = user.Clone()
	c.mu.Unlock()
	return user, nil
}
