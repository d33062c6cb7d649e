package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/feedsync/pkg/model"
)

type testGateway struct {
	hub    *Hub
	server *httptest.Server
	wsURL  string
}

func startGateway(t *testing.T, opts Options) *testGateway {
	t.Helper()
	hub := NewHub(opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	server := httptest.NewServer(NewMux(hub))
	t.Cleanup(func() {
		cancel()
		<-done
		server.Close()
	})
	return &testGateway{
		hub:    hub,
		server: server,
		wsURL:  "ws" + strings.TrimPrefix(server.URL, "http") + "/ws",
	}
}

func (g *testGateway) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(g.wsURL+"?user="+user, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) model.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := model.ParseEnvelope(frame)
	require.NoError(t, err)
	return env
}

func readMessage(t *testing.T, conn *websocket.Conn) model.Message {
	t.Helper()
	env := readEnvelope(t, conn)
	require.Equal(t, model.EventMessage, env.Event)
	var m model.Message
	require.NoError(t, json.Unmarshal(env.Data, &m))
	return m
}

func readHistory(t *testing.T, conn *websocket.Conn) []model.Message {
	t.Helper()
	env := readEnvelope(t, conn)
	require.Equal(t, model.EventHistory, env.Event)
	var items []model.Message
	require.NoError(t, json.Unmarshal(env.Data, &items))
	return items
}

// handshake consumes ready, history and the user's own join notice.
func handshake(t *testing.T, conn *websocket.Conn) []model.Message {
	t.Helper()
	require.Equal(t, model.EventReady, readEnvelope(t, conn).Event)
	items := readHistory(t, conn)
	join := readMessage(t, conn)
	require.Equal(t, model.SystemUser, join.User)
	return items
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	frame, err := model.NewEnvelope(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func TestConnectSendsReadyHistoryAndJoin(t *testing.T) {
	g := startGateway(t, Options{})
	conn := g.dial(t, "alice")

	assert.Equal(t, model.EventReady, readEnvelope(t, conn).Event)
	assert.Empty(t, readHistory(t, conn))

	join := readMessage(t, conn)
	assert.Equal(t, model.SystemUser, join.User)
	assert.Equal(t, "alice joined the chat.", join.Text)
	assert.NotEmpty(t, join.ID)
	assert.NotEmpty(t, join.Timestamp)
}

func TestMessageEchoKeepsClientID(t *testing.T) {
	g := startGateway(t, Options{})
	conn := g.dial(t, "alice")
	handshake(t, conn)

	send(t, conn, model.EventMessage, model.OutboundMessage{ID: "local-1", Text: "  hi there "})

	m := readMessage(t, conn)
	assert.Equal(t, "local-1", m.ID)
	assert.Equal(t, "alice", m.User)
	assert.Equal(t, "hi there", m.Text)
	_, err := time.Parse(model.TimestampLayout, m.Timestamp)
	assert.NoError(t, err)
}

func TestMessageWithoutIDIsAssignedOne(t *testing.T) {
	g := startGateway(t, Options{})
	conn := g.dial(t, "bob")
	handshake(t, conn)

	send(t, conn, model.EventMessage, model.OutboundMessage{Text: "no id"})
	m := readMessage(t, conn)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "no id", m.Text)
}

func TestEmptyTextIgnored(t *testing.T) {
	g := startGateway(t, Options{})
	conn := g.dial(t, "bob")
	handshake(t, conn)

	send(t, conn, model.EventMessage, model.OutboundMessage{ID: "e", Text: "   "})
	send(t, conn, model.EventMessage, model.OutboundMessage{ID: "x", Text: "x"})

	m := readMessage(t, conn)
	assert.Equal(t, "x", m.ID)
}

func TestBroadcastReachesOtherClients(t *testing.T) {
	g := startGateway(t, Options{})
	alice := g.dial(t, "alice")
	handshake(t, alice)

	bob := g.dial(t, "bob")
	handshake(t, bob)
	assert.Equal(t, "bob joined the chat.", readMessage(t, alice).Text)

	send(t, bob, model.EventMessage, model.OutboundMessage{ID: "b1", Text: "hello alice"})
	assert.Equal(t, "b1", readMessage(t, alice).ID)
	assert.Equal(t, "b1", readMessage(t, bob).ID)

	bob.Close()
	left := readMessage(t, alice)
	assert.Equal(t, "bob left the chat.", left.Text)
}

func TestHistoryRequestReturnsChatMessagesOnly(t *testing.T) {
	g := startGateway(t, Options{})
	conn := g.dial(t, "alice")
	handshake(t, conn)

	for _, id := range []string{"m1", "m2"} {
		send(t, conn, model.EventMessage, model.OutboundMessage{ID: id, Text: id})
		require.Equal(t, id, readMessage(t, conn).ID)
	}

	send(t, conn, model.EventHistoryRequest, nil)
	items := readHistory(t, conn)
	require.Len(t, items, 2)
	assert.Equal(t, "m1", items[0].ID)
	assert.Equal(t, "m2", items[1].ID)

	// A second client gets the same snapshot on connect.
	other := g.dial(t, "carol")
	require.Equal(t, model.EventReady, readEnvelope(t, other).Event)
	assert.Len(t, readHistory(t, other), 2)
}

func TestRateLimitDropsExcessMessages(t *testing.T) {
	g := startGateway(t, Options{SendRate: 0.001, SendBurst: 1})
	conn := g.dial(t, "spammer")
	handshake(t, conn)

	send(t, conn, model.EventMessage, model.OutboundMessage{ID: "one", Text: "one"})
	require.Equal(t, "one", readMessage(t, conn).ID)

	send(t, conn, model.EventMessage, model.OutboundMessage{ID: "two", Text: "two"})
	send(t, conn, model.EventHistoryRequest, nil)

	items := readHistory(t, conn)
	require.Len(t, items, 1)
	assert.Equal(t, "one", items[0].ID)
}

func TestPresenceEndpoint(t *testing.T) {
	g := startGateway(t, Options{})
	alice := g.dial(t, "alice")
	handshake(t, alice)
	bob := g.dial(t, "bob")
	handshake(t, bob)

	resp, err := http.Get(g.server.URL + "/presence")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var users []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&users))
	assert.Equal(t, []string{"alice", "bob"}, users)
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub := NewHub(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()
	server := httptest.NewServer(NewMux(hub))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	handshake(t, conn)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "alice", displayName(" alice "))
	assert.Equal(t, anonymousUser, displayName(""))
	assert.Equal(t, anonymousUser, displayName("system"))
	assert.Len(t, []rune(displayName(strings.Repeat("é", 100))), maxUserLength)
}
