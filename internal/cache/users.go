// Package cache holds the per-entity caches: a bounded TTL cache for
// users, an opportunistic cache for online flags and a single-flight
// gated cache for the global service data. Failed fetches never enter
// any cache.
package cache

import (
	"context"
	"time"

	"github.com/c-pro/geche"
	"golang.org/x/sync/singleflight"

	"palaver/internal/types"
)

const (
	DefaultUserCapacity = 400
	DefaultUserTTL      = 5 * time.Minute
)

// UserFetch loads a user from the backend by sanitized uuid.
type UserFetch func(ctx context.Context, uuid string) (types.User, error)

// Users caches users by uuid with a write TTL and a capacity bound.
// Concurrent misses for the same uuid share one fetch.
type Users struct {
	cache    geche.Geche[string, types.User]
	capacity int
	group    singleflight.Group
	fetch    UserFetch
}

type UsersConfig struct {
	Capacity int
	TTL      time.Duration
	Fetch    UserFetch
}

func NewUsers(ctx context.Context, cfg UsersConfig) *Users {
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultUserCapacity
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultUserTTL
	}
	return &Users{
		cache:    geche.NewMapTTLCache[string, types.User](ctx, cfg.TTL, time.Minute),
		capacity: cfg.Capacity,
		fetch:    cfg.Fetch,
	}
}

// Get returns the cached user or fetches it. A fetch failure is
// returned to every joined caller and leaves the cache untouched.
func (u *Users) Get(ctx context.Context, uuid string) (types.User, error) {
	if user, err := u.cache.Get(uuid); err == nil {
		return user, nil
	}

	v, err, _ := u.group.Do(uuid, func() (any, error) {
		user, err := u.fetch(ctx, uuid)
		if err != nil {
			return types.User{}, err
		}
		// At capacity the fetched user is returned but not stored,
		// so every lookup for it hits the backend until the TTL
		// sweep (once a minute) frees slots again.
		if u.cache.Len() < u.capacity {
			u.cache.Set(uuid, user)
		}
		return user, nil
	})
	if err != nil {
		return types.User{}, err
	}
	return v.(types.User), nil
}

// Invalidate drops a cached entry, forcing the next Get to refetch.
func (u *Users) Invalidate(uuid string) {
	_ = u.cache.Del(uuid)
}
