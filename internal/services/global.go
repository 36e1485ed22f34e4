package services

import (
	"context"
	"time"

	"palaver/internal/api"
	"palaver/internal/cache"
	"palaver/internal/types"
)

// GlobalService serves the landing-screen metadata through the
// single-flight TTL cache.
type GlobalService struct {
	client *api.Client
	cache  *cache.Global
}

func NewGlobalService(client *api.Client, ttl time.Duration) *GlobalService {
	s := &GlobalService{client: client}
	s.cache = cache.NewGlobal(ttl, s.fetch)
	return s
}

// Get returns the cached data within the TTL; force bypasses it. When
// the service is unreachable and nothing is cached, EmptyGlobalData
// comes back along with the error.
func (s *GlobalService) Get(ctx context.Context, force bool) (types.GlobalData, error) {
	data, err := s.cache.Get(ctx, force)
	if err != nil {
		if cached, ok := s.cache.Cached(); ok {
			return cached, err
		}
		return types.EmptyGlobalData, err
	}
	return data, nil
}

func (s *GlobalService) fetch(ctx context.Context) (types.GlobalData, error) {
	resp, err := s.client.Get(ctx, api.NewRequest(api.RouteGlobal))
	if err != nil {
		return types.EmptyGlobalData, err
	}
	if resp.IsError() {
		return types.EmptyGlobalData, resp.Err
	}
	total, err := resp.Int("total_players")
	if err != nil {
		return types.EmptyGlobalData, err
	}
	online, err := resp.Int("online_players")
	if err != nil {
		return types.EmptyGlobalData, err
	}
	version, err := resp.Str("latest_version")
	if err != nil {
		return types.EmptyGlobalData, err
	}
	return types.GlobalData{
		TotalPlayers:  total,
		OnlinePlayers: online,
		LatestVersion: types.ParseSemVer(version),
		Notes:         resp.StrOr("notes", ""),
	}, nil
}
