// Package jrpcws is a JSON-RPC 2.0 client over a single WebSocket
// connection. It speaks the dialect of rpc-websockets servers: requests and
// responses are correlated by a random id, and the server may push named
// notifications at any time.
//
// A Client owns exactly one connection. It never reconnects: when the
// socket drops, pending calls fail, the owner is told through the
// IsConnected callback and the Client stays closed.
package jrpcws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeWait               = 10 * time.Second
)

type Options struct {
	URL              string
	Name             string
	HandshakeTimeout time.Duration

	// BeforeOpen runs once the socket is up, before OnOpen, IsConnected and
	// the read loop. Subscriptions made here see the very first push.
	BeforeOpen  func(*Client)
	OnOpen      func()
	OnMessage   func(Message)
	OnClose     func()
	OnError     func(error)
	IsConnected func(bool)

	Logger *zap.Logger
}

type Client struct {
	opts   Options
	logger *zap.Logger
	conn   *websocket.Conn

	writeMu sync.Mutex

	mu        sync.Mutex
	connected bool
	pending   map[string]chan *Message
	subs      map[string][]*Subscription

	closing  atomic.Bool
	shutdown sync.Once
	done     chan struct{}
	// closed once the open callbacks returned
	opened chan struct{}
}

// Dial connects to opts.URL and starts the read loop. The lifecycle
// callbacks fire before Dial returns: BeforeOpen, OnOpen and
// IsConnected(true) on success, OnError and IsConnected(false) on failure.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	opts = withDefaults(opts)
	c := &Client{
		opts:    opts,
		logger:  opts.Logger.With(zap.String("rpc", opts.Name)),
		pending: make(map[string]chan *Message),
		subs:    make(map[string][]*Subscription),
		done:    make(chan struct{}),
		opened:  make(chan struct{}),
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, opts.URL, nil)
	if err != nil {
		c.logger.Warn("jrpcws: dial failed", zap.String("url", opts.URL), zap.Error(err))
		opts.OnError(err)
		opts.IsConnected(false)
		return nil, fmt.Errorf("jrpcws: dial %s: %w", opts.URL, err)
	}

	c.conn = conn
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	c.logger.Info("jrpcws: connected", zap.String("url", opts.URL))
	opts.BeforeOpen(c)
	// calls made from the open callbacks need the read loop
	go c.readLoop()
	func() {
		defer close(c.opened)
		opts.OnOpen()
		opts.IsConnected(true)
	}()
	return c, nil
}

func withDefaults(opts Options) Options {
	if opts.Name == "" {
		opts.Name = opts.URL
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.BeforeOpen == nil {
		opts.BeforeOpen = func(*Client) {}
	}
	if opts.OnOpen == nil {
		opts.OnOpen = func() {}
	}
	if opts.OnMessage == nil {
		opts.OnMessage = func(Message) {}
	}
	if opts.OnClose == nil {
		opts.OnClose = func() {}
	}
	if opts.OnError == nil {
		opts.OnError = func(error) {}
	}
	if opts.IsConnected == nil {
		opts.IsConnected = func(bool) {}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return opts
}

func (c *Client) Name() string {
	return c.opts.Name
}

func (c *Client) URL() string {
	return c.opts.URL
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Call invokes method with params and decodes the response into result
// (which may be nil). It blocks until the response arrives, ctx is done or
// the connection drops.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	id, ch, err := c.send(method, params)
	if err != nil {
		return err
	}
	defer c.forget(id)
	return c.await(ctx, ch, result)
}

// Notify sends the request right away and waits for the response in the
// background. Failures are logged, never returned to the caller.
func (c *Client) Notify(method string, params any) {
	id, ch, err := c.send(method, params)
	if err != nil {
		c.logger.Warn("jrpcws: notify failed", zap.String("method", method), zap.Error(err))
		return
	}
	go func() {
		defer c.forget(id)
		if err := c.await(context.Background(), ch, nil); err != nil {
			c.logger.Warn("jrpcws: notify failed", zap.String("method", method), zap.Error(err))
			return
		}
		c.logger.Debug("jrpcws: notify done", zap.String("method", method))
	}()
}

func (c *Client) send(method string, params any) (string, chan *Message, error) {
	id := uuid.NewString()
	ch := make(chan *Message, 1)

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return "", nil, ErrNotConnected
	}
	c.pending[id] = ch
	c.mu.Unlock()

	err := c.write(request{
		JSONRPC: Version,
		Method:  method,
		Params:  orEmpty(params),
		ID:      id,
	})
	if err != nil {
		c.forget(id)
		return "", nil, fmt.Errorf("jrpcws: send %s: %w", method, err)
	}
	c.logger.Debug("jrpcws: request sent", zap.String("method", method), zap.String("id", id))
	return id, ch, nil
}

func (c *Client) await(ctx context.Context, ch chan *Message, result any) error {
	select {
	case msg := <-ch:
		return decodeResult(msg, result)
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		// a response may have raced the shutdown
		select {
		case msg := <-ch:
			return decodeResult(msg, result)
		default:
			return ErrConnectionClosed
		}
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// Close sends a close frame and tears the connection down. OnClose and
// IsConnected(false) fire once the read loop has exited.
func (c *Client) Close() error {
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) readLoop() {
	var readErr error
	defer func() {
		c.teardown(readErr)
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			readErr = err
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("jrpcws: dropping malformed frame", zap.Error(err))
			continue
		}
		c.dispatch(&msg)
	}
}

func (c *Client) dispatch(msg *Message) {
	c.opts.OnMessage(*msg)

	if msg.Notification != "" {
		c.notify(msg.Notification, msg.Params)
		return
	}

	id := msg.id()
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	switch {
	case ok:
		ch <- msg
	case msg.Method != "":
		c.notify(msg.Method, msg.Params)
	default:
		c.logger.Debug("jrpcws: response for unknown id", zap.String("id", id))
	}
}

func (c *Client) teardown(err error) {
	c.shutdown.Do(func() {
		c.mu.Lock()
		c.connected = false
		c.pending = make(map[string]chan *Message)
		c.mu.Unlock()
		close(c.done)
		_ = c.conn.Close()

		<-c.opened
		if c.closing.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.logger.Info("jrpcws: connection closed")
			c.opts.OnClose()
		} else {
			c.logger.Warn("jrpcws: connection lost", zap.Error(err))
			c.opts.OnError(err)
		}
		c.opts.IsConnected(false)
	})
}
