package gateway

import (
	"sync"

	"github.com/mahaj/feedsync/pkg/model"
)

// historyRing keeps the most recent messages of the feed, oldest first.
type historyRing struct {
	mu    sync.Mutex
	items []model.Message
	start int
	size  int
}

func newHistoryRing(size int) *historyRing {
	return &historyRing{items: make([]model.Message, 0, size), size: size}
}

func (r *historyRing) add(m model.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) < r.size {
		r.items = append(r.items, m)
		return
	}
	r.items[r.start] = m
	r.start = (r.start + 1) % r.size
}

func (r *historyRing) snapshot() []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Message, 0, len(r.items))
	out = append(out, r.items[r.start:]...)
	out = append(out, r.items[:r.start]...)
	return out
}
