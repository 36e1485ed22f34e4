package gateway

import (
	"context"
	"encoding/json"
	"time"

	"palaver/internal/chatview"
	"palaver/internal/notify"
	"palaver/internal/types"
)

// Frame types sent by the backend.
const (
	FrameChatMessage   = "chat_message"
	FrameFriendRequest = "friend_request"
	FrameStatusUpdate  = "status_update"
	FrameChannelInvite = "channel_invite"
)

// FrameAcknowledge is sent back for events that require one.
const FrameAcknowledge = "acknowledge"

// lookupTimeout bounds sender resolution inside a handler, keeping the
// dispatch queue moving when the backend is slow. Cache hits are
// instant; only cold lookups pay it.
const lookupTimeout = 2 * time.Second

// userDirectory is the slice of the user service the event handlers
// need: resolving senders and dropping stale cache entries.
type userDirectory interface {
	Get(ctx context.Context, uuid string) (types.User, error)
	Invalidate(uuid string)
}

// Events decodes the standard backend frames and routes them to the
// chat broker and the notification sink.
type Events struct {
	client *Client
	broker *chatview.Broker
	users  userDirectory
	sink   notify.Sink
}

// BindEvents registers handlers for all standard frame types on the
// client. Call before Run.
func BindEvents(client *Client, broker *chatview.Broker, users userDirectory, sink notify.Sink) *Events {
	if sink == nil {
		sink = notify.Discard
	}
	e := &Events{client: client, broker: broker, users: users, sink: sink}
	client.Handle(FrameChatMessage, e.onChatMessage)
	client.Handle(FrameFriendRequest, e.onFriendRequest)
	client.Handle(FrameStatusUpdate, e.onStatusUpdate)
	client.Handle(FrameChannelInvite, e.onChannelInvite)
	return e
}

type wireMessage struct {
	ID         string `json:"id"`
	Channel    string `json:"channel"`
	Sender     string `json:"sender"`
	SenderName string `json:"sender_name"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
}

func (e *Events) onChatMessage(data json.RawMessage) {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		e.client.Log.Warn("malformed chat_message frame", "error", err)
		return
	}
	if wire.ID == "" {
		e.client.Log.Warn("chat_message frame missing id")
		return
	}

	msg := types.ChatMessage{
		ID:         wire.ID,
		ChannelID:  wire.Channel,
		SenderName: wire.SenderName,
		Content:    wire.Content,
	}
	if ts, err := time.Parse(time.RFC3339, wire.Timestamp); err == nil {
		msg.Timestamp = ts
	} else {
		msg.Timestamp = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	if sender, err := e.users.Get(ctx, wire.Sender); err == nil {
		msg.Sender = sender
		if msg.SenderName == "" {
			msg.SenderName = sender.Name
		}
	} else {
		e.client.Log.Debug("unresolved message sender", "uuid", wire.Sender, "error", err)
		msg.Sender = types.User{UUID: wire.Sender, Name: wire.SenderName}
	}

	if !e.broker.HasSubscribers(msg.ChannelID) {
		e.sink.Notify("api.notification.message", msg.SenderName, msg.Content)
	}
	e.broker.Dispatch(msg)
}

func (e *Events) onFriendRequest(data json.RawMessage) {
	var wire struct {
		ID   string `json:"id"`
		From string `json:"from"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		e.client.Log.Warn("malformed friend_request frame", "error", err)
		return
	}

	name := wire.From
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	if from, err := e.users.Get(ctx, wire.From); err == nil {
		name = from.Name
	}
	e.sink.Notify("api.notification.friend_request", name)

	if wire.ID != "" {
		if err := e.client.Send(FrameAcknowledge, map[string]string{"id": wire.ID}); err != nil {
			e.client.Log.Warn("failed to acknowledge friend request", "error", err)
		}
	}
}

func (e *Events) onStatusUpdate(data json.RawMessage) {
	var wire struct {
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(data, &wire); err != nil || wire.UUID == "" {
		e.client.Log.Warn("malformed status_update frame", "error", err)
		return
	}
	// next read refetches the user with the new status
	e.users.Invalidate(wire.UUID)
}

func (e *Events) onChannelInvite(data json.RawMessage) {
	var wire struct {
		ID      string `json:"id"`
		Channel string `json:"channel"`
		From    string `json:"from"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		e.client.Log.Warn("malformed channel_invite frame", "error", err)
		return
	}
	e.sink.Notify("api.notification.channel_invite", wire.Channel, wire.From)

	if wire.ID != "" {
		if err := e.client.Send(FrameAcknowledge, map[string]string{"id": wire.ID}); err != nil {
			e.client.Log.Warn("failed to acknowledge channel invite", "error", err)
		}
	}
}
