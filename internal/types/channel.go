package types

import (
	"errors"
	"time"
)

var ErrNoReceiver = errors.New("dm channel without a receiver")

type ChannelKind int

const (
	KindGroup ChannelKind = iota
	KindDM
)

// ChatMessage is an immutable message within a channel. SenderName may
// differ from Sender.Name when the sender writes under a proxy name.
type ChatMessage struct {
	ID         string
	ChannelID  string
	Sender     User
	SenderName string
	Content    string
	Timestamp  time.Time
}

// Channel is a group conversation or a direct message. For a DM the
// participant list holds exactly one entry: the receiver.
type Channel struct {
	ID           string
	Kind         ChannelKind
	Name         string
	Persistence  Persistence
	Owner        User
	Participants []User
	Messages     []ChatMessage
}

// NewGroup builds a group channel. Participants exclude the owner.
func NewGroup(id, name string, p Persistence, owner User, participants []User, messages []ChatMessage) Channel {
	return Channel{
		ID:           id,
		Kind:         KindGroup,
		Name:         name,
		Persistence:  p,
		Owner:        owner,
		Participants: participants,
		Messages:     messages,
	}
}

// NewDM builds a direct message channel. The receiver is derived from
// the user list: the single participant that is not selfUUID.
func NewDM(id, name string, p Persistence, selfUUID string, users []User, messages []ChatMessage) (Channel, error) {
	for _, u := range users {
		if u.UUID != selfUUID {
			return Channel{
				ID:           id,
				Kind:         KindDM,
				Name:         name,
				Persistence:  p,
				Participants: []User{u},
				Messages:     messages,
			}, nil
		}
	}
	return Channel{}, ErrNoReceiver
}

func (c Channel) IsDM() bool {
	return c.Kind == KindDM
}

// Receiver returns the other party of a DM.
func (c Channel) Receiver() (User, bool) {
	if !c.IsDM() || len(c.Participants) == 0 {
		return User{}, false
	}
	return c.Participants[0], true
}

// DisplayName is the name a UI should render. DMs show the receiver's
// current display name, never the stored channel name.
func (c Channel) DisplayName() string {
	if r, ok := c.Receiver(); ok {
		return r.Name
	}
	return c.Name
}

// AllUsers lists everyone in the channel. For groups the owner comes
// first, then the participants.
func (c Channel) AllUsers() []User {
	if c.IsDM() {
		return append([]User(nil), c.Participants...)
	}
	users := make([]User, 0, len(c.Participants)+1)
	users = append(users, c.Owner)
	return append(users, c.Participants...)
}
