package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mahaj/feedsync/pkg/metrics"
	"github.com/mahaj/feedsync/pkg/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	maxUserLength = 64
	anonymousUser = "Anonymous"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the feed is public
	},
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte

	limiter *rate.Limiter

	// Connection id, unique per gateway process.
	ID string

	// Display name shown on this client's messages.
	User string

	// Set by Hub.Run once leave handling has run.
	left bool
}

// readPump pumps frames from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("read error", zap.String("conn", c.ID), zap.Error(err))
			}
			return
		}
		if !c.handle(frame) {
			return
		}
	}
}

// handle processes one inbound frame. It returns false once the hub is gone.
func (c *Client) handle(frame []byte) bool {
	env, err := model.ParseEnvelope(frame)
	if err != nil {
		c.hub.log.Debug("ignoring frame", zap.String("conn", c.ID), zap.Error(err))
		return true
	}

	switch env.Event {
	case model.EventHistoryRequest:
		select {
		case c.hub.historyRequests <- c:
		case <-c.hub.done:
			return false
		}

	case model.EventMessage:
		var in model.OutboundMessage
		if err := json.Unmarshal(env.Data, &in); err != nil {
			c.hub.log.Debug("ignoring malformed message", zap.String("conn", c.ID), zap.Error(err))
			return true
		}
		text := strings.TrimSpace(in.Text)
		if text == "" {
			return true
		}
		if !c.limiter.Allow() {
			metrics.GatewayMessages.WithLabelValues("rate_limited").Inc()
			c.hub.log.Info("rate limited", zap.String("conn", c.ID), zap.String("user", c.User))
			return true
		}
		msg := &model.Message{
			ID:        strings.TrimSpace(in.ID),
			User:      c.User,
			Text:      text,
			Timestamp: model.FormatTimestamp(time.Now()),
		}
		select {
		case c.hub.broadcast <- msg:
		case <-c.hub.done:
			return false
		}

	default:
		c.hub.log.Debug("unknown event", zap.String("conn", c.ID), zap.String("event", env.Event))
	}
	return true
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			// One envelope per frame; envelopes are not batched.
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs handles websocket requests from the peer. The display name comes
// from the "user" query parameter.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	user := displayName(r.URL.Query().Get("user"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, 256),
		limiter: rate.NewLimiter(h.sendRate, h.sendBurst),
		ID:      uuid.NewString(),
		User:    user,
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()
}

func displayName(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" || strings.EqualFold(name, model.SystemUser) {
		return anonymousUser
	}
	if r := []rune(name); len(r) > maxUserLength {
		name = string(r[:maxUserLength])
	}
	return name
}
