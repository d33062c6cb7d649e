// Package gateway is the reference server for a single chat feed. It keeps
// the last messages in memory, hands them to every client on connect and
// echoes each chat message to all clients with the sender's id intact, which
// is what clients rely on to confirm their optimistic sends.
package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mahaj/feedsync/pkg/idgen"
	"github.com/mahaj/feedsync/pkg/metrics"
	"github.com/mahaj/feedsync/pkg/model"
)

const defaultHistorySize = 100

type Options struct {
	// Broker defaults to an in-process broker.
	Broker Broker
	// Presence defaults to in-memory tracking.
	Presence    Presence
	HistorySize int
	// SendRate and SendBurst bound chat messages per connection. A zero
	// SendRate disables the limit.
	SendRate  float64
	SendBurst int
	Logger    *zap.Logger
}

type Hub struct {
	clients         map[*Client]bool
	register        chan *Client
	unregister      chan *Client
	broadcast       chan *model.Message
	historyRequests chan *Client
	done            chan struct{}
	mu              sync.RWMutex

	broker   Broker
	presence Presence
	history  *historyRing
	ids      *idgen.Generator
	log      *zap.Logger

	sendRate  rate.Limit
	sendBurst int
}

func NewHub(opts Options) *Hub {
	if opts.Broker == nil {
		opts.Broker = NewLocalBroker()
	}
	if opts.Presence == nil {
		opts.Presence = NewMemoryPresence()
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = defaultHistorySize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	limit := rate.Inf
	if opts.SendRate > 0 {
		limit = rate.Limit(opts.SendRate)
	}
	if opts.SendBurst <= 0 {
		opts.SendBurst = 1
	}
	return &Hub{
		clients:         make(map[*Client]bool),
		register:        make(chan *Client),
		unregister:      make(chan *Client),
		broadcast:       make(chan *model.Message),
		historyRequests: make(chan *Client),
		done:            make(chan struct{}),
		broker:          opts.Broker,
		presence:        opts.Presence,
		history:         newHistoryRing(opts.HistorySize),
		ids:             idgen.New(),
		log:             opts.Logger,
		sendRate:        limit,
		sendBurst:       opts.SendBurst,
	}
}

// Run owns client registration and publishing until ctx is done. It starts
// the broker consumer that fans messages out to clients.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	consumed := make(chan error, 1)
	go func() {
		consumed <- h.broker.Consume(ctx, h.fanout)
	}()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			<-consumed
			return ctx.Err()

		case err := <-consumed:
			h.log.Error("broker consumer stopped", zap.Error(err))
			h.closeAll()
			return err

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			metrics.GatewayClients.Inc()

			h.deliver(client, h.readyFrame())
			h.deliver(client, h.historyFrame())

			if err := h.presence.Join(ctx, client.User); err != nil {
				h.log.Warn("presence join failed", zap.String("user", client.User), zap.Error(err))
			}
			h.log.Info("client registered", zap.String("conn", client.ID), zap.String("user", client.User))
			h.publish(ctx, h.systemMessage(client.User+" joined the chat."))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			if client.left {
				continue
			}
			client.left = true
			metrics.GatewayClients.Dec()

			if err := h.presence.Leave(ctx, client.User); err != nil {
				h.log.Warn("presence leave failed", zap.String("user", client.User), zap.Error(err))
			}
			h.log.Info("client unregistered", zap.String("conn", client.ID), zap.String("user", client.User))
			h.publish(ctx, h.systemMessage(client.User+" left the chat."))

		case client := <-h.historyRequests:
			h.deliver(client, h.historyFrame())

		case msg := <-h.broadcast:
			if msg.ID == "" {
				msg.ID = h.ids.Next()
			}
			if msg.Timestamp == "" {
				msg.Timestamp = model.FormatTimestamp(time.Now())
			}
			h.publish(ctx, msg)
		}
	}
}

// Snapshot returns the retained history, oldest first.
func (h *Hub) Snapshot() []model.Message {
	return h.history.snapshot()
}

// Members returns the users currently present.
func (h *Hub) Members(ctx context.Context) ([]string, error) {
	return h.presence.Members(ctx)
}

func (h *Hub) systemMessage(text string) *model.Message {
	return &model.Message{
		ID:        h.ids.Next(),
		User:      model.SystemUser,
		Text:      text,
		Timestamp: model.FormatTimestamp(time.Now()),
	}
}

func (h *Hub) publish(ctx context.Context, msg *model.Message) {
	frame, err := model.NewEnvelope(model.EventMessage, msg)
	if err != nil {
		h.log.Error("failed to marshal message", zap.Error(err))
		return
	}
	if err := h.broker.Publish(ctx, frame); err != nil {
		metrics.GatewayMessages.WithLabelValues("publish_failed").Inc()
		h.log.Warn("failed to publish message", zap.String("id", msg.ID), zap.Error(err))
		return
	}
	metrics.GatewayMessages.WithLabelValues("published").Inc()
}

// fanout runs on the broker consumer goroutine. Chat messages are retained
// in history; system notices are delivered but not retained.
func (h *Hub) fanout(frame []byte) {
	env, err := model.ParseEnvelope(frame)
	if err != nil {
		h.log.Warn("dropping broker frame", zap.Error(err))
		return
	}
	if env.Event == model.EventMessage {
		var msg model.Message
		if err := json.Unmarshal(env.Data, &msg); err == nil && msg.User != model.SystemUser {
			h.history.add(msg)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- frame:
		default:
			h.log.Warn("dropping slow client", zap.String("conn", client.ID))
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// deliver sends one frame to one registered client. Only Run calls it.
func (h *Hub) deliver(client *Client, frame []byte) {
	if frame == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	select {
	case client.send <- frame:
	default:
		close(client.send)
		delete(h.clients, client)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

func (h *Hub) readyFrame() []byte {
	frame, err := model.NewEnvelope(model.EventReady, map[string]bool{"ok": true})
	if err != nil {
		h.log.Error("failed to marshal ready", zap.Error(err))
		return nil
	}
	return frame
}

func (h *Hub) historyFrame() []byte {
	frame, err := model.NewEnvelope(model.EventHistory, h.history.snapshot())
	if err != nil {
		h.log.Error("failed to marshal history", zap.Error(err))
		return nil
	}
	return frame
}
