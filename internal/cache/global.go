package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"palaver/internal/types"
)

const DefaultGlobalTTL = 5 * time.Minute

// GlobalFetch loads the service-wide metadata.
type GlobalFetch func(ctx context.Context) (types.GlobalData, error)

// Global is a single-flight TTL cache for GlobalData. At most one
// refresh is in flight; callers arriving during a refresh join its
// result. The value and its deadline are guarded by one mutex so a
// finished refresh is always fully visible before the next caller
// reads.
type Global struct {
	mu       sync.Mutex
	value    types.GlobalData
	hasValue bool
	deadline time.Time

	ttl   time.Duration
	group singleflight.Group
	fetch GlobalFetch
	now   func() time.Time
}

func NewGlobal(ttl time.Duration, fetch GlobalFetch) *Global {
	if ttl == 0 {
		ttl = DefaultGlobalTTL
	}
	return &Global{ttl: ttl, fetch: fetch, now: time.Now}
}

// Get returns the cached value while the TTL holds, unless force
// bypasses it. A failed refresh keeps the previous value cached and
// returns the error to every joined caller.
func (g *Global) Get(ctx context.Context, force bool) (types.GlobalData, error) {
	g.mu.Lock()
	if g.hasValue && !force && g.now().Before(g.deadline) {
		value := g.value
		g.mu.Unlock()
		return value, nil
	}
	g.mu.Unlock()

	v, err, _ := g.group.Do("global", func() (any, error) {
		// a refresh that finished while we queued is fresh enough,
		// even for force: it started after the forcing caller arrived
		g.mu.Lock()
		if g.hasValue && g.now().Before(g.deadline) && !force {
			value := g.value
			g.mu.Unlock()
			return value, nil
		}
		g.mu.Unlock()

		value, err := g.fetch(ctx)
		if err != nil {
			return nil, err
		}

		g.mu.Lock()
		g.value = value
		g.hasValue = true
		g.deadline = g.now().Add(g.ttl)
		g.mu.Unlock()
		return value, nil
	})
	if err != nil {
		return types.EmptyGlobalData, err
	}
	return v.(types.GlobalData), nil
}

// Cached returns the current value without touching the network.
func (g *Global) Cached() (types.GlobalData, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value, g.hasValue
}
