// Package gateway maintains the websocket connection to the backend
// and fans incoming frames out to registered handlers.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"palaver/internal/api"
)

// Frame is the gateway wire envelope. Data holds the type-specific
// payload.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Handler func(data json.RawMessage)

type Config struct {
	URL    string
	Tokens api.TokenSource
	Log    *slog.Logger
	Dialer *websocket.Dialer
}

func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("gateway URL is required")
	}
	if c.Tokens == nil {
		return errors.New("gateway requires a token source")
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
	if c.Dialer == nil {
		c.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	return nil
}

// Client is a single gateway connection. Register handlers before Run;
// Run blocks until the connection drops or ctx is cancelled, and the
// caller decides whether to reconnect.
type Client struct {
	Config

	handlers map[string][]Handler

	writeMu sync.Mutex
	conn    *websocket.Conn
}

func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		Config:   config,
		handlers: make(map[string][]Handler),
	}, nil
}

// Handle registers a handler for a frame type. Not safe to call after
// Run has started.
func (c *Client) Handle(frameType string, h Handler) {
	c.handlers[frameType] = append(c.handlers[frameType], h)
}

// frameBuffer bounds how far the read loop may run ahead of handlers.
const frameBuffer = 64

// Run dials the gateway and pumps frames until the connection drops or
// ctx is cancelled. Cancellation returns nil. Handlers run in order on
// a dedicated goroutine, so a slow handler delays later frames but
// never blocks the read loop itself.
func (c *Client) Run(ctx context.Context) error {
	token, err := c.Tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("gateway auth: %w", err)
	}

	header := http.Header{"Authorization": {token}}
	conn, _, err := c.Dialer.DialContext(ctx, c.URL, header)
	if err != nil {
		return fmt.Errorf("failed to dial gateway: %w", err)
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
	c.Log.Info("gateway connected", "url", c.URL)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// the read loop owns the connection; closing it is the only way to
	// unblock a pending read
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	frames := make(chan Frame, frameBuffer)
	defer close(frames)
	go func() {
		for frame := range frames {
			c.dispatch(frame)
		}
	}()

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("gateway read: %w", err)
		}
		select {
		case frames <- frame:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Client) dispatch(frame Frame) {
	handlers := c.handlers[frame.Type]
	if len(handlers) == 0 {
		c.Log.Debug("unhandled gateway frame", "type", frame.Type)
		return
	}
	for _, h := range handlers {
		h(frame.Data)
	}
}

// Send writes a frame to the gateway. Safe for concurrent use.
func (c *Client) Send(frameType string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return errors.New("gateway not connected")
	}
	return c.conn.WriteJSON(Frame{Type: frameType, Data: data})
}
