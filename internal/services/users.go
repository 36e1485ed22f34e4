// Package services implements the operations the UI calls into:
// user lookup, relation transitions, channel CRUD and message history,
// account management, global data and presence publishing. Every call
// is synchronous and context-aware; callers that must not block run
// them in their own goroutine.
package services

import (
	"context"
	"log/slog"
	"time"

	"palaver/internal/api"
	"palaver/internal/cache"
	"palaver/internal/notes"
	"palaver/internal/types"
)

type UserService struct {
	client *api.Client
	users  *cache.Users
	online *cache.Online
}

type UserServiceConfig struct {
	SelfUUID       string
	UserCapacity   int
	UserTTL        time.Duration
	OnlineCapacity int
	Logger         *slog.Logger
}

func NewUserService(ctx context.Context, client *api.Client, cfg UserServiceConfig) *UserService {
	s := &UserService{client: client}
	s.users = cache.NewUsers(ctx, cache.UsersConfig{
		Capacity: cfg.UserCapacity,
		TTL:      cfg.UserTTL,
		Fetch:    s.fetch,
	})
	s.online = cache.NewOnline(cache.OnlineConfig{
		SelfUUID: cfg.SelfUUID,
		Capacity: cfg.OnlineCapacity,
		Probe:    s.probeOnline,
		Logger:   cfg.Logger,
	})
	return s
}

// Get returns the user for a dashed or undashed uuid, served from the
// TTL cache when fresh.
func (s *UserService) Get(ctx context.Context, id string) (types.User, error) {
	uuid, err := types.SanitizeUUID(id)
	if err != nil {
		return types.User{}, err
	}
	return s.users.Get(ctx, uuid)
}

// IsOnline answers from the opportunistic cache and never blocks.
func (s *UserService) IsOnline(uuid string) bool {
	sanitized, err := types.SanitizeUUID(uuid)
	if err != nil {
		return false
	}
	return s.online.IsOnline(sanitized)
}

// Invalidate drops the cached snapshot, e.g. after a relation change.
func (s *UserService) Invalidate(uuid string) {
	s.users.Invalidate(uuid)
}

func (s *UserService) fetch(ctx context.Context, uuid string) (types.User, error) {
	resp, err := s.client.Get(ctx, api.NewRequest(api.RouteUser).Path(uuid))
	if err != nil {
		return types.User{}, err
	}
	if resp.IsError() {
		return types.User{}, resp.Err
	}
	return decodeUser(resp)
}

func (s *UserService) probeOnline(ctx context.Context, uuid string) (bool, error) {
	resp, err := s.client.Get(ctx, api.NewRequest(api.RouteUser).Path(uuid))
	if err != nil {
		return false, err
	}
	if resp.IsError() {
		return false, resp.Err
	}
	status, err := resp.Str("status.type")
	if err != nil {
		return false, err
	}
	return status == "online", nil
}

func decodeUser(resp *api.Response) (types.User, error) {
	rawUUID, err := resp.Str("uuid")
	if err != nil {
		return types.User{}, err
	}
	uuid, err := types.SanitizeUUID(rawUUID)
	if err != nil {
		return types.User{}, err
	}
	name, err := resp.Str("username")
	if err != nil {
		return types.User{}, err
	}
	registered, err := resp.Time("registered")
	if err != nil {
		return types.User{}, err
	}
	status, err := decodeStatus(resp, "status")
	if err != nil {
		return types.User{}, err
	}

	user := types.User{
		UUID:       uuid,
		Name:       notes.Sanitize(name),
		Relation:   types.Relation(resp.StrOr("relation", string(types.RelationNone))),
		Registered: registered,
		Status:     status,
	}
	if previous, err := resp.StrList("previous_usernames"); err == nil {
		for _, n := range previous {
			user.PreviousUsernames = append(user.PreviousUsernames, types.OldUsername{Name: n, Public: true})
		}
	}
	return user, nil
}

func decodeStatus(resp *api.Response, prefix string) (types.Status, error) {
	statusType, err := resp.Str(prefix + ".type")
	if err != nil {
		return types.Status{}, err
	}
	status := types.Status{Online: statusType == "online"}
	if lastOnline, err := resp.Time(prefix + ".last_online"); err == nil {
		status.LastOnline = lastOnline
	}
	if _, ok := resp.Get(prefix + ".activity"); ok {
		title, err := resp.Str(prefix + ".activity.title")
		if err != nil {
			return types.Status{}, err
		}
		description, err := resp.Str(prefix + ".activity.description")
		if err != nil {
			return types.Status{}, err
		}
		started, err := resp.Time(prefix + ".activity.started")
		if err != nil {
			return types.Status{}, err
		}
		// activity text is user-controlled and rendered verbatim
		status.Activity = &types.Activity{
			Title:       notes.Sanitize(title),
			Description: notes.Sanitize(description),
			StartedAt:   started,
		}
	}
	return status, nil
}
