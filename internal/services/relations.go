package services

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"palaver/internal/api"
	"palaver/internal/notify"
	"palaver/internal/types"
)

// FriendRequests holds the pending requests in both directions.
type FriendRequests struct {
	Incoming []types.User
	Outgoing []types.User
}

// RelationService drives friendship/block transitions. Every
// convenience operation funnels through SetRelation and reports the
// outcome through the notification sink.
type RelationService struct {
	client *api.Client
	users  *UserService
	notify notify.Sink
}

func NewRelationService(client *api.Client, users *UserService, sink notify.Sink) *RelationService {
	if sink == nil {
		sink = notify.Discard
	}
	return &RelationService{client: client, users: users, notify: sink}
}

// SetRelation is the single transition primitive.
func (s *RelationService) SetRelation(ctx context.Context, uuid string, target types.Relation) error {
	sanitized, err := types.SanitizeUUID(uuid)
	if err != nil {
		return err
	}
	resp, err := s.client.Post(ctx, api.NewRequest(api.RouteUser).
		Path(sanitized).Query("relation", string(target)))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return resp.Err
	}
	// the cached snapshot carries the old relation
	s.users.Invalidate(sanitized)
	return nil
}

// AddFriend sends an outgoing friend request. A 404 means the target
// account does not exist and gets its own notification.
func (s *RelationService) AddFriend(ctx context.Context, uuid string) error {
	err := s.SetRelation(ctx, uuid, types.RelationRequest)
	switch {
	case err == nil:
		s.notify.Notify("api.success.request_sent", "api.success.request_sent.desc", uuid)
	case errors.Is(err, api.ErrNotFound):
		s.notify.Notify("api.failure.request_sent", "api.failure.request_sent.not_found", uuid)
	case api.StatusOf(err) == 403:
		s.notify.Notify("api.failure.request_sent", "api.failure.request_sent.forbidden", uuid)
	default:
		s.notify.Notify("api.failure.request_sent", "api.failure.request_sent.desc", uuid)
	}
	return err
}

func (s *RelationService) AcceptFriendRequest(ctx context.Context, from types.User) error {
	if err := s.SetRelation(ctx, from.UUID, types.RelationFriend); err != nil {
		return err
	}
	s.notify.Notify("api.success.acceptFriend", "api.success.acceptFriend.desc", from.Name)
	return nil
}

func (s *RelationService) DenyFriendRequest(ctx context.Context, from types.User) error {
	if err := s.SetRelation(ctx, from.UUID, types.RelationNone); err != nil {
		return err
	}
	s.notify.Notify("api.success.denyFriend", "api.success.denyFriend.desc", from.Name)
	return nil
}

func (s *RelationService) CancelFriendRequest(ctx context.Context, to types.User) error {
	if err := s.SetRelation(ctx, to.UUID, types.RelationNone); err != nil {
		return err
	}
	s.notify.Notify("api.friends", "api.friends.request.cancelled", to.Name)
	return nil
}

func (s *RelationService) RemoveFriend(ctx context.Context, user types.User) error {
	if err := s.SetRelation(ctx, user.UUID, types.RelationNone); err != nil {
		return err
	}
	s.notify.Notify("api.success.removeFriend", "api.success.removeFriend.desc", user.Name)
	return nil
}

// BlockUser is idempotent from the caller's point of view: blocking an
// already-blocked user re-sends the request but raises no second
// state-change notification.
func (s *RelationService) BlockUser(ctx context.Context, user types.User) error {
	alreadyBlocked := user.Relation == types.RelationBlocked
	if err := s.SetRelation(ctx, user.UUID, types.RelationBlocked); err != nil {
		return err
	}
	if !alreadyBlocked {
		s.notify.Notify("api.success.blockUser", "api.success.blockUser.desc", user.Name)
	}
	return nil
}

func (s *RelationService) UnblockUser(ctx context.Context, user types.User) error {
	if err := s.SetRelation(ctx, user.UUID, types.RelationNone); err != nil {
		return err
	}
	s.notify.Notify("api.success.unblockUser", "api.success.unblockUser.desc", user.Name)
	return nil
}

// Friends lists the current friends as hydrated users.
func (s *RelationService) Friends(ctx context.Context) ([]types.User, error) {
	uuids, err := s.uuidList(ctx, api.RouteRelationsFriends)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, uuids)
}

func (s *RelationService) Blocked(ctx context.Context) ([]types.User, error) {
	uuids, err := s.uuidList(ctx, api.RouteRelationsBlocked)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, uuids)
}

func (s *RelationService) Requests(ctx context.Context) (FriendRequests, error) {
	resp, err := s.client.Get(ctx, api.NewRequest(api.RouteRelationsRequests))
	if err != nil {
		return FriendRequests{}, err
	}
	if resp.IsError() {
		return FriendRequests{}, resp.Err
	}
	in, err := resp.StrList("in")
	if err != nil {
		return FriendRequests{}, err
	}
	out, err := resp.StrList("out")
	if err != nil {
		return FriendRequests{}, err
	}

	var requests FriendRequests
	if requests.Incoming, err = s.hydrate(ctx, in); err != nil {
		return FriendRequests{}, err
	}
	if requests.Outgoing, err = s.hydrate(ctx, out); err != nil {
		return FriendRequests{}, err
	}
	return requests, nil
}

func (s *RelationService) uuidList(ctx context.Context, route api.Route) ([]string, error) {
	resp, err := s.client.Get(ctx, api.NewRequest(route))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, resp.Err
	}
	return resp.StrList("")
}

// hydrate resolves uuids to users concurrently, order preserved.
func (s *RelationService) hydrate(ctx context.Context, uuids []string) ([]types.User, error) {
	users := make([]types.User, len(uuids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, uuid := range uuids {
		g.Go(func() error {
			user, err := s.users.Get(ctx, uuid)
			if err != nil {
				return err
			}
			users[i] = user
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return users, nil
}
