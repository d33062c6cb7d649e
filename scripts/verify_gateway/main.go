// verify_gateway is a smoke check against a running gateway: it joins the
// feed, sends one message, waits for the echo and then checks that the
// message is in /history and the user is in /presence.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/mahaj/feedsync/pkg/idgen"
	"github.com/mahaj/feedsync/pkg/model"
	"github.com/mahaj/feedsync/pkg/transport"
)

// echoWaiter is a transport.Handler that signals once the given id comes back.
type echoWaiter struct {
	id        string
	connected chan struct{}
	echoed    chan model.Message
}

func (w *echoWaiter) Connecting() {}

func (w *echoWaiter) ConnectionError(err error) { log.Println("connection error:", err) }

func (w *echoWaiter) Disconnected(err error) {}

func (w *echoWaiter) History(items []model.Message) {}

func (w *echoWaiter) Connected() {
	select {
	case w.connected <- struct{}{}:
	default:
	}
}

func (w *echoWaiter) Message(m model.Message) {
	if m.ID == w.id {
		select {
		case w.echoed <- m:
		default:
		}
	}
}

func getJSON(addr string, v any) error {
	resp, err := http.Get(addr)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", addr, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func main() {
	httpAddr := flag.String("addr", "http://localhost:8080", "gateway http address")
	user := flag.String("user", "verify_bot", "display name")
	flag.Parse()

	base, err := url.Parse(*httpAddr)
	if err != nil {
		log.Fatal(err)
	}
	ws := *base
	ws.Scheme = "ws"
	if base.Scheme == "https" {
		ws.Scheme = "wss"
	}
	ws.Path = "/ws"
	ws.RawQuery = url.Values{"user": {*user}}.Encode()

	id := idgen.Next()
	w := &echoWaiter{id: id, connected: make(chan struct{}, 1), echoed: make(chan model.Message, 1)}
	c := transport.New(ws.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, w) }()

	// 1. Join
	select {
	case <-w.connected:
	case <-ctx.Done():
		log.Fatal("could not connect to ", ws.String())
	}

	// 2. Send and wait for the echo
	if err := c.SendMessage(model.OutboundMessage{ID: id, Text: "verify " + id}); err != nil {
		log.Fatal("send failed: ", err)
	}
	select {
	case m := <-w.echoed:
		fmt.Printf("echo: %s %s: %s\n", m.Timestamp, m.User, m.Text)
	case <-ctx.Done():
		log.Fatal("no echo for ", id)
	}

	// 3. History and presence
	var history []model.Message
	if err := getJSON(base.JoinPath("history").String(), &history); err != nil {
		log.Fatal(err)
	}
	found := false
	for _, m := range history {
		if m.ID == id {
			found = true
		}
	}
	fmt.Printf("history: %d messages, contains %s: %v\n", len(history), id, found)

	var users []string
	if err := getJSON(base.JoinPath("presence").String(), &users); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("presence: %v\n", users)

	cancel()
	<-done
	if !found {
		log.Fatal("message missing from history")
	}
}
