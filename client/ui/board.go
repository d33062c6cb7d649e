// Package ui is the terminal front end of the feed client. Board is the
// rendered list the feed writes into; Model is the bubbletea program that
// draws it.
package ui

import (
	"sync"

	"github.com/mahaj/feedsync/internal/feed"
	"github.com/mahaj/feedsync/pkg/model"
)

// Board holds the rendered messages, the minimized flag and the unread badge.
// It implements feed.Renderer, feed.Visibility and feed.UnreadSink. Handles
// are list indexes and are only valid until the next Reset.
type Board struct {
	mu      sync.Mutex
	entries []model.Message
	hidden  bool
	unread  int
	changed chan struct{}
}

var (
	_ feed.Renderer   = (*Board)(nil)
	_ feed.Visibility = (*Board)(nil)
	_ feed.UnreadSink = (*Board)(nil)
)

func NewBoard(hidden bool) *Board {
	return &Board{hidden: hidden, changed: make(chan struct{}, 1)}
}

func (b *Board) Render(m model.Message) feed.NodeHandle {
	b.mu.Lock()
	b.entries = append(b.entries, m)
	i := len(b.entries) - 1
	b.mu.Unlock()
	b.notify()
	return i
}

func (b *Board) Update(h feed.NodeHandle, m model.Message) {
	i, ok := h.(int)
	b.mu.Lock()
	if !ok || i < 0 || i >= len(b.entries) {
		b.mu.Unlock()
		return
	}
	b.entries[i] = m
	b.mu.Unlock()
	b.notify()
}

func (b *Board) Reset() {
	b.mu.Lock()
	b.entries = nil
	b.mu.Unlock()
	b.notify()
}

func (b *Board) Hidden() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hidden
}

// SetHidden minimizes or restores the feed.
func (b *Board) SetHidden(hidden bool) {
	b.mu.Lock()
	b.hidden = hidden
	b.mu.Unlock()
	b.notify()
}

func (b *Board) SetUnread(n int) {
	b.mu.Lock()
	b.unread = n
	b.mu.Unlock()
	b.notify()
}

func (b *Board) Unread() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unread
}

// Entries returns a copy of the rendered messages in display order.
func (b *Board) Entries() []model.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Message(nil), b.entries...)
}

// Changed receives a value after one or more changes. Signals coalesce, so a
// reader redraws from Entries rather than counting them.
func (b *Board) Changed() <-chan struct{} {
	return b.changed
}

// notify never blocks: the feed calls the board with its own lock held.
func (b *Board) notify() {
	select {
	case b.changed <- struct{}{}:
	default:
	}
}
