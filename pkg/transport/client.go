// Package transport is the client side of the feed's websocket connection.
// It dials the gateway, keeps the connection alive, reconnects with
// exponential backoff and turns frames into Handler calls.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mahaj/feedsync/pkg/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// History snapshots can be large; this bounds a single frame.
	maxMessageSize = 1 << 20

	sendQueueSize = 64
)

var (
	ErrNotConnected    = errors.New("transport: not connected")
	ErrSendQueueFull   = errors.New("transport: send queue full")
	errBackOffStopped  = errors.New("transport: reconnect backoff exhausted")
	errHistoryNotArray = errors.New("transport: history payload is not an array")
)

// Handler receives connection lifecycle and inbound feed events. Calls are
// made from the goroutine running Client.Run, one at a time.
type Handler interface {
	Connecting()
	Connected()
	ConnectionError(err error)
	Disconnected(err error)
	History(items []model.Message)
	Message(m model.Message)
}

// Client is a reconnecting websocket connection to a feed gateway.
type Client struct {
	url        string
	header     http.Header
	dialer     *websocket.Dialer
	log        *zap.Logger
	newBackOff func() backoff.BackOff

	mu   sync.Mutex
	send chan []byte
}

type Option func(*Client)

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithHeader(h http.Header) Option {
	return func(c *Client) { c.header = h }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithBackOff sets the reconnect policy. The factory is called once per Run.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = f }
}

func New(url string, opts ...Option) *Client {
	c := &Client{
		url:    url,
		dialer: websocket.DefaultDialer,
		log:    zap.NewNop(),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0 // never give up
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run connects and keeps reconnecting until ctx is done. It returns
// ctx.Err() on cancellation, or an error if the backoff policy gives up.
func (c *Client) Run(ctx context.Context, h Handler) error {
	b := c.newBackOff()
	for {
		h.Connecting()
		conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			h.ConnectionError(err)
		} else {
			b.Reset()
			err = c.serve(ctx, conn, h)
			if ctx.Err() != nil {
				h.Disconnected(nil)
				return ctx.Err()
			}
			h.Disconnected(err)
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("%w: %v", errBackOffStopped, err)
		}
		c.log.Info("reconnecting", zap.Duration("wait", wait), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// RequestHistory asks the gateway to resend the history snapshot.
func (c *Client) RequestHistory() error {
	frame, err := model.NewEnvelope(model.EventHistoryRequest, nil)
	if err != nil {
		return err
	}
	return c.enqueue(frame)
}

// SendMessage queues a chat message for the current connection.
func (c *Client) SendMessage(m model.OutboundMessage) error {
	frame, err := model.NewEnvelope(model.EventMessage, m)
	if err != nil {
		return err
	}
	return c.enqueue(frame)
}

func (c *Client) enqueue(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.send == nil {
		return ErrNotConnected
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (c *Client) attach(send chan []byte) {
	c.mu.Lock()
	c.send = send
	c.mu.Unlock()
}

func (c *Client) detach(send chan []byte) {
	c.mu.Lock()
	if c.send == send {
		c.send = nil
	}
	c.mu.Unlock()
}

// serve runs one connection until it fails or ctx is done.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn, h Handler) error {
	send := make(chan []byte, sendQueueSize)
	c.attach(send)
	defer c.detach(send)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.writePump(conn, send, stop)
	}()
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
		case <-stop:
		}
	}()

	h.Connected()
	err := c.readPump(conn, h)

	close(stop)
	conn.Close()
	wg.Wait()
	return err
}

// readPump pumps frames from the websocket connection to the handler.
func (c *Client) readPump(conn *websocket.Conn, h Handler) error {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		c.dispatch(frame, h)
	}
}

// writePump pumps queued frames to the websocket connection and keeps it
// alive with pings.
func (c *Client) writePump(conn *websocket.Conn, send <-chan []byte, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case <-stop:
			return
		case frame := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Warn("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) dispatch(frame []byte, h Handler) {
	env, err := model.ParseEnvelope(frame)
	if err != nil {
		c.log.Warn("dropping frame", zap.ByteString("frame", frame), zap.Error(err))
		return
	}

	switch env.Event {
	case model.EventReady:
		c.log.Info("feed ready")
	case model.EventHistory:
		items, err := decodeHistory(env.Data)
		if err != nil {
			c.log.Warn("ignoring malformed history", zap.Error(err))
			return
		}
		h.History(items)
	case model.EventMessage:
		// Whatever decodes is kept; a garbled message still shows up.
		var m model.Message
		if err := json.Unmarshal(env.Data, &m); err != nil {
			c.log.Warn("malformed message, rendering defaults", zap.Error(err))
		}
		h.Message(m)
	default:
		c.log.Debug("unknown event", zap.String("event", env.Event))
	}
}

// decodeHistory decodes a history payload. Only a payload that is not an array
// is rejected; items with wrong-typed fields keep whatever decoded.
func decodeHistory(data json.RawMessage) ([]model.Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] != '[' {
		return nil, errHistoryNotArray
	}
	var items []model.Message
	if err := json.Unmarshal(data, &items); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return nil, err
		}
	}
	return items, nil
}
