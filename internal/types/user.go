package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidUUID = errors.New("not a valid uuid")

// SanitizeUUID normalizes a dashed or undashed uuid string to its
// canonical undashed lowercase form.
func SanitizeUUID(id string) (string, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if strings.Contains(id, "-") {
		parsed, err := uuid.Parse(id)
		if err != nil {
			return "", fmt.Errorf("%w: %q", ErrInvalidUUID, id)
		}
		return strings.ReplaceAll(parsed.String(), "-", ""), nil
	}
	if len(id) != 32 {
		return "", fmt.Errorf("%w (undashed): %q", ErrInvalidUUID, id)
	}
	for _, r := range id {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", fmt.Errorf("%w (undashed): %q", ErrInvalidUUID, id)
		}
	}
	return id, nil
}

// Relation is the friendship/block state between the current account
// and another user, as reported by the backend.
type Relation string

const (
	RelationNone    Relation = "none"
	RelationRequest Relation = "request"
	RelationFriend  Relation = "friend"
	RelationBlocked Relation = "blocked"
)

type OldUsername struct {
	Name   string
	Public bool
}

// User is an immutable snapshot of a remote user. A refreshed fetch
// produces a new value; nothing mutates a User in place.
type User struct {
	UUID              string
	Name              string
	Relation          Relation
	Registered        time.Time
	Status            Status
	PreviousUsernames []OldUsername
}

// Equal compares users by uuid only.
func (u User) Equal(other User) bool {
	return u.UUID == other.UUID
}

type Activity struct {
	Title       string
	Description string
	StartedAt   time.Time
}

type Status struct {
	Online     bool
	LastOnline time.Time
	Activity   *Activity
}

// Title returns the displayable status title. Offline users are always
// titled offline, whatever activity the backend may still carry.
func (s Status) Title() string {
	if !s.Online {
		return "api.status.title.offline"
	}
	if s.Activity == nil {
		return "api.status.title.online"
	}
	return s.Activity.Title
}

func (s Status) Description() string {
	if !s.Online || s.Activity == nil {
		return ""
	}
	return s.Activity.Description
}
