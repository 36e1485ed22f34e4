package cache

import (
	"context"
	"log/slog"

	"github.com/c-pro/geche"
	"golang.org/x/sync/singleflight"
)

const DefaultOnlineCapacity = 256

// OnlineProbe asks the backend whether a user is currently online.
type OnlineProbe func(ctx context.Context, uuid string) (bool, error)

// Online caches uuid→online flags opportunistically. The backing ring
// buffer evicts old entries as new ones arrive, so a hit is never
// guaranteed. A miss answers false immediately and triggers a
// background probe that fills the cache for next time.
type Online struct {
	self  string
	cache geche.Geche[string, bool]
	group singleflight.Group
	probe OnlineProbe
	log   *slog.Logger
}

type OnlineConfig struct {
	SelfUUID string
	Capacity int
	Probe    OnlineProbe
	Logger   *slog.Logger
}

func NewOnline(cfg OnlineConfig) *Online {
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultOnlineCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Online{
		self:  cfg.SelfUUID,
		cache: geche.NewRingBuffer[string, bool](cfg.Capacity),
		probe: cfg.Probe,
		log:   cfg.Logger,
	}
}

// IsOnline never blocks on the network. The answer for an unknown uuid
// is a conservative false while a probe runs in the background.
func (o *Online) IsOnline(uuid string) bool {
	if uuid == "" {
		return false
	}
	if uuid == o.self {
		return true
	}
	if online, err := o.cache.Get(uuid); err == nil {
		return online
	}

	go func() {
		_, _, _ = o.group.Do(uuid, func() (any, error) {
			online, err := o.probe(context.Background(), uuid)
			if err != nil {
				o.log.Debug("online probe failed", "uuid", uuid, "error", err)
				return nil, err
			}
			o.cache.Set(uuid, online)
			return online, nil
		})
	}()
	return false
}
