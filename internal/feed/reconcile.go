package feed

import (
	"strings"

	"go.uber.org/zap"

	"github.com/mahaj/feedsync/pkg/metrics"
	"github.com/mahaj/feedsync/pkg/model"
)

// Outcome is what incremental apply did with a message.
type Outcome int

const (
	Discarded Outcome = iota
	Inserted
	Confirmed
)

func (o Outcome) String() string {
	switch o {
	case Discarded:
		return "discarded"
	case Inserted:
		return "inserted"
	case Confirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Message applies one live message pushed by the server.
func (f *Feed) Message(m model.Message) {
	f.Apply(m)
}

// Apply is Message that also reports what happened.
func (f *Feed) Apply(m model.Message) Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.apply(m, false)
}

// Submit renders text optimistically as a pending message and hands it to the
// transport. Sending is best-effort: a transport error is logged, not
// returned. The generated id is returned so callers can correlate the echo.
func (f *Feed) Submit(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}

	f.mu.Lock()
	id := f.nextID()
	f.apply(model.Message{
		ID:        id,
		User:      f.user,
		Text:      text,
		Timestamp: model.FormatTimestamp(f.now()),
	}, true)
	t := f.transport
	session := f.session
	f.mu.Unlock()

	if t == nil {
		return id, nil
	}
	if err := t.SendMessage(model.OutboundMessage{ID: id, Text: text}); err != nil {
		f.log.Warn("feed send failed",
			zap.String("id", id),
			zap.Uint64("session", session),
			zap.Error(err))
	}
	return id, nil
}

// apply is incremental apply. It must be called with f.mu held.
//
// A message whose id has a pending node is a confirmation and updates that
// node in place. Otherwise a seen id is a duplicate. Anything else, including
// every message without an id, becomes a new node.
func (f *Feed) apply(m model.Message, local bool) Outcome {
	outcome := f.reconcile(m, local)
	metrics.MessagesApplied.WithLabelValues(outcome.String()).Inc()
	f.log.Debug("feed message applied",
		zap.String("id", m.ID),
		zap.Bool("local", local),
		zap.Stringer("outcome", outcome))
	return outcome
}

func (f *Feed) reconcile(m model.Message, local bool) Outcome {
	if m.ID != "" {
		if n, ok := f.nodes[m.ID]; ok && n.msg.Pending && !local {
			f.confirm(n, m)
			return Confirmed
		}
		if f.seen.has(m.ID) {
			return Discarded
		}
	}
	m.Pending = local
	f.insert(m)
	f.emitInserted(1)
	return Inserted
}

func (f *Feed) confirm(n *node, m model.Message) {
	updated := n.msg
	updated.User = m.User
	updated.Text = m.Text
	updated.Timestamp = m.Timestamp
	if updated.Timestamp == "" {
		updated.Timestamp = model.FormatTimestamp(f.now())
	}
	updated.Pending = false
	f.renderer.Update(n.handle, updated)
	n.msg = updated
	f.seen.add(m.ID)
}

// bulkApply replaces the rendered list with items, in order, none pending.
// The unread tracker is squelched for the whole span and reset afterwards.
func (f *Feed) bulkApply(items []model.Message) int {
	f.unread.squelch = true
	defer func() { f.unread.squelch = false }()

	f.renderer.Reset()
	f.seen.clear()
	f.nodes = make(map[string]*node, len(items))
	f.list = f.list[:0]

	inserted := 0
	for _, m := range items {
		if f.seen.has(m.ID) {
			f.log.Debug("feed history repeats id", zap.String("id", m.ID))
			continue
		}
		m.Pending = false
		f.insert(m)
		inserted++
	}
	f.emitInserted(inserted)
	f.unread.reset()
	return inserted
}

// insert is the only path that creates a node.
func (f *Feed) insert(m model.Message) {
	n := &node{handle: f.renderer.Render(m), msg: m}
	f.list = append(f.list, n)
	if m.ID != "" {
		f.nodes[m.ID] = n
		f.seen.add(m.ID)
	}
}

func (f *Feed) emitInserted(n int) {
	if n <= 0 {
		return
	}
	for _, fn := range f.observers {
		fn(n)
	}
}
