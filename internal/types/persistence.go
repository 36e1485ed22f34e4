package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrInvalidPersistence = errors.New("invalid persistence")

type PersistenceType string

const (
	PersistenceChannel       PersistenceType = "channel"
	PersistenceCount         PersistenceType = "count"
	PersistenceDuration      PersistenceType = "duration"
	PersistenceCountDuration PersistenceType = "count_duration"
)

// Persistence is the server-enforced retention rule for a channel's
// message history. Count and Duration are meaningful only for the
// types that carry them; the zero values otherwise.
type Persistence struct {
	Type     PersistenceType
	Count    int
	Duration time.Duration
}

func PersistChannel() Persistence {
	return Persistence{Type: PersistenceChannel}
}

func PersistCount(n int) Persistence {
	return Persistence{Type: PersistenceCount, Count: n}
}

func PersistDuration(d time.Duration) Persistence {
	return Persistence{Type: PersistenceDuration, Duration: d}
}

func PersistCountDuration(n int, d time.Duration) Persistence {
	return Persistence{Type: PersistenceCountDuration, Count: n, Duration: d}
}

// Validate checks the parameters before a channel create/update is
// submitted. The server enforces retention; the client only refuses to
// send nonsense.
func (p Persistence) Validate() error {
	switch p.Type {
	case PersistenceChannel:
		return nil
	case PersistenceCount:
		if p.Count < 0 {
			return fmt.Errorf("%w: negative count %d", ErrInvalidPersistence, p.Count)
		}
	case PersistenceDuration:
		if p.Duration < 0 {
			return fmt.Errorf("%w: negative duration %s", ErrInvalidPersistence, p.Duration)
		}
	case PersistenceCountDuration:
		if p.Count < 0 {
			return fmt.Errorf("%w: negative count %d", ErrInvalidPersistence, p.Count)
		}
		if p.Duration < 0 {
			return fmt.Errorf("%w: negative duration %s", ErrInvalidPersistence, p.Duration)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidPersistence, p.Type)
	}
	return nil
}

type persistenceJSON struct {
	Type     PersistenceType `json:"type"`
	Count    *int            `json:"count,omitempty"`
	Duration *int64          `json:"duration,omitempty"`
}

// MarshalJSON emits the wire form, durations in whole seconds. Only
// the fields the variant carries are present.
func (p Persistence) MarshalJSON() ([]byte, error) {
	out := persistenceJSON{Type: p.Type}
	secs := int64(p.Duration / time.Second)
	switch p.Type {
	case PersistenceChannel:
	case PersistenceCount:
		out.Count = &p.Count
	case PersistenceDuration:
		out.Duration = &secs
	case PersistenceCountDuration:
		out.Count = &p.Count
		out.Duration = &secs
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidPersistence, p.Type)
	}
	return json.Marshal(out)
}

func (p *Persistence) UnmarshalJSON(data []byte) error {
	var in persistenceJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Type {
	case PersistenceChannel:
		*p = PersistChannel()
	case PersistenceCount:
		if in.Count == nil {
			return fmt.Errorf("%w: count type without count", ErrInvalidPersistence)
		}
		*p = PersistCount(*in.Count)
	case PersistenceDuration:
		if in.Duration == nil {
			return fmt.Errorf("%w: duration type without duration", ErrInvalidPersistence)
		}
		*p = PersistDuration(time.Duration(*in.Duration) * time.Second)
	case PersistenceCountDuration:
		if in.Count == nil || in.Duration == nil {
			return fmt.Errorf("%w: count_duration type missing fields", ErrInvalidPersistence)
		}
		*p = PersistCountDuration(*in.Count, time.Duration(*in.Duration)*time.Second)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidPersistence, in.Type)
	}
	return nil
}
