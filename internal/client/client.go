// Package client is a Go participant for the consultation relay. It joins a
// session on connect and reconnects with exponential backoff when the
// socket drops.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrGaveUp       = errors.New("reconnect attempts exhausted")
)

// Config describes how to reach the relay and who is joining.
type Config struct {
	URL       string
	SessionID string
	UserName  string
	UserType  string

	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	Dialer *websocket.Dialer
	Log    logrus.FieldLogger
}

func (c *Config) defaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	if c.Log == nil {
		c.Log = logrus.StandardLogger()
	}
}

// Backoff is the wait before reconnect attempt n (starting at 1): base
// doubled per attempt and capped at ceiling.
func Backoff(attempt int, base, ceiling time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	if delay > ceiling {
		return ceiling
	}
	return delay
}

// Client is safe for concurrent Send calls.
type Client struct {
	cfg      Config
	log      logrus.FieldLogger
	incoming chan []byte
	cancel   context.CancelFunc
	done     chan struct{}

	mu  sync.Mutex
	ws  *websocket.Conn
	err error
}

// Dial connects, joins the configured session, and keeps the connection
// alive in the background until ctx ends or Close is called.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	cfg.defaults()
	ctx, cancel := context.WithCancel(ctx)

	c := &Client{
		cfg:      cfg,
		log:      cfg.Log.WithFields(logrus.Fields{"component": "client", "session": cfg.SessionID}),
		incoming: make(chan []byte, 64),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	ws, err := c.connect(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	go c.run(ctx, ws)
	return c, nil
}

// Incoming yields every text frame received. It is closed once the client
// stops for good; Err then reports why.
func (c *Client) Incoming() <-chan []byte { return c.incoming }

// Err returns the terminal error after Incoming is closed.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Send writes v as a JSON text frame on the current connection.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws == nil {
		return ErrNotConnected
	}
	return c.ws.WriteJSON(v)
}

// SendChat posts a chat line as the configured participant.
func (c *Client) SendChat(text string) error {
	return c.Send(map[string]string{
		"type":       "chat-message",
		"sessionId":  c.cfg.SessionID,
		"senderName": c.cfg.UserName,
		"senderType": c.cfg.UserType,
		"message":    text,
	})
}

// Close stops reconnecting and closes the socket.
func (c *Client) Close() error {
	c.cancel()
	c.mu.Lock()
	if c.ws != nil {
		_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.ws.Close()
	}
	c.mu.Unlock()
	<-c.done
	return nil
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	ws, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	join := map[string]string{
		"type":      "join-session",
		"sessionId": c.cfg.SessionID,
		"userName":  c.cfg.UserName,
		"userType":  c.cfg.UserType,
	}
	if err := ws.WriteJSON(join); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("join %s: %w", c.cfg.SessionID, err)
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	c.log.Info("connected")
	return ws, nil
}

func (c *Client) run(ctx context.Context, ws *websocket.Conn) {
	defer close(c.done)
	defer close(c.incoming)

	for {
		c.readUntilError(ctx, ws)

		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()

		if ctx.Err() != nil {
			c.setErr(ctx.Err())
			return
		}

		c.log.Warn("disconnected")
		next, err := c.reconnect(ctx)
		if err != nil {
			c.log.Errorf("giving up: %v", err)
			c.setErr(err)
			return
		}
		ws = next
	}
}

func (c *Client) readUntilError(ctx context.Context, ws *websocket.Conn) {
	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			_ = ws.Close()
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		select {
		case c.incoming <- data:
		case <-ctx.Done():
			_ = ws.Close()
			return
		}
	}
}

func (c *Client) reconnect(ctx context.Context) (*websocket.Conn, error) {
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		delay := Backoff(attempt, c.cfg.BaseDelay, c.cfg.MaxDelay)
		c.log.Infof("reconnecting in %s (%d/%d)", delay, attempt, c.cfg.MaxAttempts)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		ws, err := c.connect(ctx)
		if err == nil {
			return ws, nil
		}
		c.log.Warnf("reconnect attempt %d failed: %v", attempt, err)
	}
	return nil, ErrGaveUp
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}
