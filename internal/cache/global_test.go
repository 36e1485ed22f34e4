package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"palaver/internal/types"
)

func TestGlobal_TTL(t *testing.T) {
	var calls atomic.Int64
	g := NewGlobal(5*time.Minute, func(ctx context.Context) (types.GlobalData, error) {
		calls.Add(1)
		return types.GlobalData{TotalPlayers: int(calls.Load())}, nil
	})
	now := time.Unix(1000, 0)
	g.now = func() time.Time { return now }

	ctx := context.Background()
	first, err := g.Get(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	second, err := g.Get(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Errorf("two gets within TTL should fetch once, fetched %d times", calls.Load())
	}
	if first != second {
		t.Error("cached value changed without a refresh")
	}

	// TTL expiry triggers a new fetch
	now = now.Add(5*time.Minute + time.Second)
	if _, err := g.Get(ctx, false); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected refetch after TTL, got %d calls", calls.Load())
	}

	// force bypasses an unexpired TTL
	if _, err := g.Get(ctx, true); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected refetch on force, got %d calls", calls.Load())
	}
}

func TestGlobal_SingleFlight(t *testing.T) {
	var calls atomic.Int64
	release := make(chan struct{})
	g := NewGlobal(time.Minute, func(ctx context.Context) (types.GlobalData, error) {
		calls.Add(1)
		<-release
		return types.GlobalData{OnlinePlayers: 7}, nil
	})

	const n = 16
	results := make([]types.GlobalData, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := g.Get(context.Background(), false)
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = v
		}(i)
	}
	// let the callers pile up on the in-flight fetch
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("%d concurrent callers caused %d fetches, want 1", n, calls.Load())
	}
	for i, v := range results {
		if v.OnlinePlayers != 7 {
			t.Errorf("caller %d got %+v", i, v)
		}
	}
}

func TestGlobal_FailureNotCached(t *testing.T) {
	var calls atomic.Int64
	fail := true
	g := NewGlobal(time.Minute, func(ctx context.Context) (types.GlobalData, error) {
		calls.Add(1)
		if fail {
			return types.EmptyGlobalData, errors.New("backend down")
		}
		return types.GlobalData{TotalPlayers: 3}, nil
	})

	if _, err := g.Get(context.Background(), false); err == nil {
		t.Fatal("expected failure")
	}
	if _, ok := g.Cached(); ok {
		t.Error("failure must not populate the cache")
	}

	fail = false
	v, err := g.Get(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if v.TotalPlayers != 3 {
		t.Errorf("got %+v", v)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 fetches, got %d", calls.Load())
	}
}
