package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"palaver/internal/api"
	"palaver/internal/types"
)

const DefaultStatusInterval = 15 * time.Second

// ActivitySource computes the current high-level activity of the user
// (menu, server list, in-game). Empty title means nothing to publish.
type ActivitySource func() (title, description string)

// StatusPublisher pushes the user's activity to the backend, skipping
// the request entirely when nothing changed since the last publish.
type StatusPublisher struct {
	client   *api.Client
	source   ActivitySource
	interval time.Duration
	log      *slog.Logger

	mu   sync.Mutex
	last *types.Activity
}

func NewStatusPublisher(client *api.Client, source ActivitySource, interval time.Duration, log *slog.Logger) *StatusPublisher {
	if interval == 0 {
		interval = DefaultStatusInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &StatusPublisher{client: client, source: source, interval: interval, log: log}
}

// Publish sends one update if the activity changed. The request
// carries the startedAt of the new activity, so elapsed time restarts
// whenever the activity actually changes.
func (p *StatusPublisher) Publish(ctx context.Context) error {
	title, description := p.source()
	if title == "" {
		return nil
	}

	p.mu.Lock()
	if p.last != nil && p.last.Title == title && p.last.Description == description {
		p.mu.Unlock()
		return nil
	}
	activity := &types.Activity{Title: title, Description: description, StartedAt: time.Now()}
	p.mu.Unlock()

	resp, err := p.client.Post(ctx, api.NewRequest(api.RouteAccountActivity).
		Field("title", activity.Title).
		Field("description", activity.Description).
		Field("started", activity.StartedAt.UTC().Format(time.RFC3339)))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return resp.Err
	}

	// Only a delivered update counts as published; a failed attempt
	// is retried on the next tick.
	p.mu.Lock()
	p.last = activity
	p.mu.Unlock()
	return nil
}

// Run publishes on a fixed cadence until the context ends. Publish
// failures are logged and retried on the next tick, never fatal.
func (p *StatusPublisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Publish(ctx); err != nil {
				p.log.Debug("status update failed", "error", err)
			}
		}
	}
}

// Last returns the most recently published activity, if any.
func (p *StatusPublisher) Last() (types.Activity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return types.Activity{}, false
	}
	return *p.last, true
}
