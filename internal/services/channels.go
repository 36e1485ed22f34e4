package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"palaver/internal/api"
	"palaver/internal/types"
)

const MessagePageSize = 50

type ChannelService struct {
	client *api.Client
	users  *UserService
	self   string
}

func NewChannelService(client *api.Client, users *UserService, selfUUID string) *ChannelService {
	return &ChannelService{client: client, users: users, self: selfUUID}
}

// List fetches the channel id list and hydrates every channel.
func (s *ChannelService) List(ctx context.Context) ([]types.Channel, error) {
	resp, err := s.client.Get(ctx, api.NewRequest(api.RouteChannels))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, resp.Err
	}
	ids, err := resp.StrList("")
	if err != nil {
		return nil, err
	}

	channels := make([]types.Channel, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range ids {
		g.Go(func() error {
			channel, err := s.Get(ctx, id)
			if err != nil {
				return err
			}
			channels[i] = channel
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return channels, nil
}

// Get fetches one channel with its participants and buffered messages.
func (s *ChannelService) Get(ctx context.Context, id string) (types.Channel, error) {
	resp, err := s.client.Get(ctx, api.NewRequest(api.RouteChannels).Path(id))
	if err != nil {
		return types.Channel{}, err
	}
	if resp.IsError() {
		return types.Channel{}, resp.Err
	}
	return s.decodeChannel(ctx, resp)
}

// CreateGroup creates a group channel and returns the hydrated result.
// The persistence parameters are validated before anything is sent.
func (s *ChannelService) CreateGroup(ctx context.Context, name string, p types.Persistence, participantUUIDs []string) (types.Channel, error) {
	if err := p.Validate(); err != nil {
		return types.Channel{}, err
	}
	resp, err := s.client.Post(ctx, api.NewRequest(api.RouteChannels).
		Field("name", name).
		Field("persistence", p).
		Field("participants", participantUUIDs))
	if err != nil {
		return types.Channel{}, err
	}
	if resp.IsError() {
		return types.Channel{}, resp.Err
	}
	id, err := resp.Str("id")
	if err != nil {
		return types.Channel{}, err
	}
	return s.Get(ctx, id)
}

// GetOrCreateDM returns the direct channel with the given user,
// creating it if none exists yet.
func (s *ChannelService) GetOrCreateDM(ctx context.Context, uuid string) (types.Channel, error) {
	sanitized, err := types.SanitizeUUID(uuid)
	if err != nil {
		return types.Channel{}, err
	}
	resp, err := s.client.Post(ctx, api.NewRequest(api.RouteChannels).Field("dm", sanitized))
	if err != nil {
		return types.Channel{}, err
	}
	if resp.IsError() {
		return types.Channel{}, resp.Err
	}
	id, err := resp.Str("id")
	if err != nil {
		return types.Channel{}, err
	}
	return s.Get(ctx, id)
}

// Update patches name and/or persistence of an owned channel.
func (s *ChannelService) Update(ctx context.Context, id, name string, p types.Persistence) error {
	if err := p.Validate(); err != nil {
		return err
	}
	resp, err := s.client.Patch(ctx, api.NewRequest(api.RouteChannels).Path(id).
		Field("name", name).
		Field("persistence", p))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return resp.Err
	}
	return nil
}

func (s *ChannelService) Leave(ctx context.Context, id string) error {
	resp, err := s.client.Delete(ctx, api.NewRequest(api.RouteChannels).Path(id))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return resp.Err
	}
	return nil
}

// SendMessage posts a message and returns the stored message echoed by
// the server (carrying its id and authoritative timestamp).
func (s *ChannelService) SendMessage(ctx context.Context, channelID, content string) (types.ChatMessage, error) {
	resp, err := s.client.Post(ctx, api.NewRequest(api.RouteChannels).
		Path(channelID).Path("messages").
		Field("content", content))
	if err != nil {
		return types.ChatMessage{}, err
	}
	if resp.IsError() {
		return types.ChatMessage{}, resp.Err
	}
	return s.decodeMessage(ctx, resp, channelID)
}

// MessagesBefore pages backwards through history: messages strictly
// older than before, newest last.
func (s *ChannelService) MessagesBefore(ctx context.Context, channelID string, before time.Time, limit int) ([]types.ChatMessage, error) {
	if limit <= 0 {
		limit = MessagePageSize
	}
	resp, err := s.client.Get(ctx, api.NewRequest(api.RouteChannels).
		Path(channelID).Path("messages").
		Query("before", before.UTC().Format(time.RFC3339)).
		Query("limit", strconv.Itoa(limit)))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, resp.Err
	}
	return s.decodeMessages(ctx, resp, channelID)
}

func (s *ChannelService) decodeChannel(ctx context.Context, resp *api.Response) (types.Channel, error) {
	id, err := resp.Str("id")
	if err != nil {
		return types.Channel{}, err
	}
	name := resp.StrOr("name", "")

	var persistence types.Persistence
	if raw, ok := resp.Get("persistence"); ok {
		persistence, err = decodePersistence(raw)
		if err != nil {
			return types.Channel{}, err
		}
	} else {
		persistence = types.PersistChannel()
	}

	participantIDs, err := resp.StrList("participants")
	if err != nil {
		return types.Channel{}, err
	}
	participants, err := s.hydrateUsers(ctx, participantIDs)
	if err != nil {
		return types.Channel{}, err
	}

	var messages []types.ChatMessage
	if rawMessages, err := resp.List("messages"); err == nil {
		messages, err = s.decodeMessageList(ctx, rawMessages, id)
		if err != nil {
			return types.Channel{}, err
		}
	}

	kind := resp.StrOr("kind", "group")
	if kind == "dm" {
		return types.NewDM(id, name, persistence, s.self, participants, messages)
	}

	ownerID, err := resp.Str("owner")
	if err != nil {
		return types.Channel{}, err
	}
	owner, err := s.users.Get(ctx, ownerID)
	if err != nil {
		return types.Channel{}, err
	}
	// the participant list excludes the owner
	members := participants[:0:0]
	for _, p := range participants {
		if !p.Equal(owner) {
			members = append(members, p)
		}
	}
	return types.NewGroup(id, name, persistence, owner, members, messages), nil
}

func (s *ChannelService) decodeMessages(ctx context.Context, resp *api.Response, channelID string) ([]types.ChatMessage, error) {
	raw, err := resp.List("")
	if err != nil {
		return nil, err
	}
	return s.decodeMessageList(ctx, raw, channelID)
}

func (s *ChannelService) decodeMessageList(ctx context.Context, raw []any, channelID string) ([]types.ChatMessage, error) {
	messages := make([]types.ChatMessage, 0, len(raw))
	for _, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: message entry is %T", api.ErrDecode, item)
		}
		msg, err := s.decodeMessageFields(ctx, obj, channelID)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	return messages, nil
}

func (s *ChannelService) decodeMessage(ctx context.Context, resp *api.Response, channelID string) (types.ChatMessage, error) {
	obj, ok := resp.Get("")
	if !ok {
		return types.ChatMessage{}, fmt.Errorf("%w: empty message body", api.ErrDecode)
	}
	fields, ok := obj.(map[string]any)
	if !ok {
		return types.ChatMessage{}, fmt.Errorf("%w: message body is %T", api.ErrDecode, obj)
	}
	return s.decodeMessageFields(ctx, fields, channelID)
}

func (s *ChannelService) decodeMessageFields(ctx context.Context, obj map[string]any, channelID string) (types.ChatMessage, error) {
	id, _ := obj["id"].(string)
	if id == "" {
		return types.ChatMessage{}, fmt.Errorf("%w: message without id", api.ErrDecode)
	}
	senderID, _ := obj["sender"].(string)
	sender, err := s.users.Get(ctx, senderID)
	if err != nil {
		return types.ChatMessage{}, err
	}
	content, _ := obj["content"].(string)
	timestampStr, _ := obj["timestamp"].(string)
	timestamp, err := time.Parse(time.RFC3339, timestampStr)
	if err != nil {
		return types.ChatMessage{}, fmt.Errorf("%w: message timestamp: %v", api.ErrDecode, err)
	}
	if cid, ok := obj["channel_id"].(string); ok && cid != "" {
		channelID = cid
	}
	displayName, _ := obj["sender_name"].(string)
	if displayName == "" {
		displayName = sender.Name
	}
	return types.ChatMessage{
		ID:         id,
		ChannelID:  channelID,
		Sender:     sender,
		SenderName: displayName,
		Content:    content,
		Timestamp:  timestamp,
	}, nil
}

func (s *ChannelService) hydrateUsers(ctx context.Context, uuids []string) ([]types.User, error) {
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

func decodePersistence(raw any) (types.Persistence, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return types.Persistence{}, fmt.Errorf("%w: persistence is %T", api.ErrDecode, raw)
	}
	typ, _ := obj["type"].(string)
	count := 0
	if c, ok := obj["count"].(float64); ok {
		count = int(c)
	}
	var duration time.Duration
	if d, ok := obj["duration"].(float64); ok {
		duration = time.Duration(d) * time.Second
	}
	p := types.Persistence{Type: types.PersistenceType(typ), Count: count, Duration: duration}
	if err := p.Validate(); err != nil {
		return types.Persistence{}, err
	}
	return p, nil
}
