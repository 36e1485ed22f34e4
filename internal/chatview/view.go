package chatview

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/muesli/reflow/wordwrap"

	"palaver/internal/types"
)

// HeaderGap is the silence between consecutive messages of the same
// sender after which the name header repeats.
const HeaderGap = 150 * time.Second

const (
	DefaultWrapWidth = 80
	DefaultPageSize  = 50
)

type EntryKind int

const (
	// EntryHeader carries the sender display name and timestamp,
	// shown above a run of messages.
	EntryHeader EntryKind = iota
	// EntryLine is one wrapped line of message content.
	EntryLine
)

// Entry is one renderable row. Origin resolves any row back to its
// full message for hover and context-menu actions.
type Entry struct {
	Kind   EntryKind
	Text   string
	Origin types.ChatMessage
}

// HistoryFetcher pages backwards through a channel's history.
type HistoryFetcher interface {
	MessagesBefore(ctx context.Context, channelID string, before time.Time, limit int) ([]types.ChatMessage, error)
}

// View is the live message view of one channel. All mutation is
// serialized by one mutex, so concurrent pagination and live delivery
// cannot interleave half-applied inserts.
type View struct {
	mu        sync.Mutex
	channelID string
	wrapWidth int
	pageSize  int
	fetcher   HistoryFetcher
	sub       *Subscription

	messages []types.ChatMessage
	seen     map[string]struct{}
	entries  []Entry

	rows     int
	offset   int
	atBottom bool
	loading  bool
}

type Config struct {
	Channel   types.Channel
	WrapWidth int
	PageSize  int
	Rows      int
	Fetcher   HistoryFetcher
}

func New(cfg Config) *View {
	if cfg.WrapWidth <= 0 {
		cfg.WrapWidth = DefaultWrapWidth
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	v := &View{
		channelID: cfg.Channel.ID,
		wrapWidth: cfg.WrapWidth,
		pageSize:  cfg.PageSize,
		fetcher:   cfg.Fetcher,
		rows:      cfg.Rows,
		seen:      map[string]struct{}{},
		atBottom:  true,
	}
	for _, msg := range cfg.Channel.Messages {
		v.insertLocked(msg)
	}
	v.rebuildLocked()
	v.offset = v.maxScrollLocked()
	return v
}

// Attach subscribes the view to live deliveries. Close undoes it.
func (v *View) Attach(broker *Broker) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sub != nil {
		return
	}
	v.sub = broker.Subscribe(v.channelID, v.Add)
}

// Close detaches the view. Late-arriving messages fall on the floor
// instead of mutating a destroyed view.
func (v *View) Close() {
	v.mu.Lock()
	sub := v.sub
	v.sub = nil
	v.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}

// Add ingests one message. Duplicates (by id) are ignored, so
// redelivery and overlapping history pages are harmless. Out-of-order
// arrivals merge into their chronological position.
func (v *View) Add(msg types.ChatMessage) {
	v.AddBatch([]types.ChatMessage{msg})
}

// AddBatch ingests a batch under a single lock, e.g. a history page.
func (v *View) AddBatch(msgs []types.ChatMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()

	wasAtBottom := v.atBottomLocked()
	changed := false
	for _, msg := range msgs {
		if v.insertLocked(msg) {
			changed = true
		}
	}
	if !changed {
		return
	}
	v.rebuildLocked()
	if wasAtBottom {
		v.offset = v.maxScrollLocked()
	}
	v.clampLocked()
}

// LoadOlder fetches the page of messages strictly older than the
// oldest loaded one (or "now" when empty). Repeated calls while a
// fetch is pending are no-ops, so scroll handlers may fire freely.
// Returns the number of new messages merged.
func (v *View) LoadOlder(ctx context.Context) (int, error) {
	if v.fetcher == nil {
		return 0, nil
	}
	v.mu.Lock()
	if v.loading {
		v.mu.Unlock()
		return 0, nil
	}
	v.loading = true
	before := time.Now()
	if len(v.messages) > 0 {
		before = v.messages[0].Timestamp
	}
	v.mu.Unlock()

	msgs, err := v.fetcher.MessagesBefore(ctx, v.channelID, before, v.pageSize)
	if err != nil {
		v.mu.Lock()
		v.loading = false
		v.mu.Unlock()
		return 0, err
	}

	// The page must be merged before loading clears, so a scroll
	// handler racing in here never re-requests the same range.
	v.mu.Lock()
	countBefore := len(v.messages)
	v.mu.Unlock()
	v.AddBatch(msgs)
	v.mu.Lock()
	defer v.mu.Unlock()
	v.loading = false
	return len(v.messages) - countBefore, nil
}

// Entries returns a snapshot of the renderable rows.
func (v *View) Entries() []Entry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Entry(nil), v.entries...)
}

// Messages returns a snapshot of the backing messages, ascending.
func (v *View) Messages() []types.ChatMessage {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]types.ChatMessage(nil), v.messages...)
}

// Scroll reports the current offset in entry rows from the top.
func (v *View) Scroll() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.offset
}

// ScrollBy moves the viewport. Scrolling past the top only reports
// wantOlder; the caller decides when to run LoadOlder.
func (v *View) ScrollBy(delta int) (wantOlder bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.offset += delta
	if v.offset < 0 {
		wantOlder = true
	}
	v.clampLocked()
	return wantOlder
}

// SetRows sets the viewport height in entry rows.
func (v *View) SetRows(rows int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rows = rows
	v.clampLocked()
}

// AtBottom reports whether the view is pinned to the newest entry.
func (v *View) AtBottom() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.atBottomLocked()
}

func (v *View) insertLocked(msg types.ChatMessage) bool {
	if _, dup := v.seen[msg.ID]; dup {
		return false
	}
	v.seen[msg.ID] = struct{}{}
	at := sort.Search(len(v.messages), func(i int) bool {
		return v.messages[i].Timestamp.After(msg.Timestamp)
	})
	v.messages = append(v.messages, types.ChatMessage{})
	copy(v.messages[at+1:], v.messages[at:])
	v.messages[at] = msg
	return true
}

// rebuildLocked recomputes the entry list from the sorted messages.
// A header goes before the first message, on any sender or display
// name change, and after a silence longer than HeaderGap.
func (v *View) rebuildLocked() {
	v.entries = v.entries[:0]
	for i, msg := range v.messages {
		if i == 0 || headerBetween(v.messages[i-1], msg) {
			v.entries = append(v.entries, Entry{Kind: EntryHeader, Text: msg.SenderName, Origin: msg})
		}
		for _, line := range strings.Split(wordwrap.String(msg.Content, v.wrapWidth), "\n") {
			v.entries = append(v.entries, Entry{Kind: EntryLine, Text: line, Origin: msg})
		}
	}
}

func headerBetween(prev, cur types.ChatMessage) bool {
	if prev.Sender.UUID != cur.Sender.UUID || prev.SenderName != cur.SenderName {
		return true
	}
	return cur.Timestamp.Sub(prev.Timestamp) > HeaderGap
}

func (v *View) maxScrollLocked() int {
	max := len(v.entries) - v.rows
	if max < 0 {
		return 0
	}
	return max
}

func (v *View) atBottomLocked() bool {
	return v.offset >= v.maxScrollLocked()
}

func (v *View) clampLocked() {
	if v.offset < 0 {
		v.offset = 0
	}
	if max := v.maxScrollLocked(); v.offset > max {
		v.offset = max
	}
	v.atBottom = v.atBottomLocked()
}
