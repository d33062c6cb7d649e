// Package feed converges a local view of a single chat feed with the
// server-authoritative stream.
//
// A Feed owns the rendered list, the set of message ids already rendered and
// the unread counter. Transport callbacks, timer callbacks and user actions all
// enter through methods on Feed and are serialized by its mutex. Renderer,
// Visibility and UnreadSink implementations are invoked with that mutex held
// and must not call back into the Feed.
package feed

import (
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mahaj/feedsync/pkg/idgen"
	"github.com/mahaj/feedsync/pkg/model"
)

// DefaultHistoryTimeout is how long a new session waits for history before
// asking for it explicitly.
const DefaultHistoryTimeout = time.Second

// ErrEmptyMessage is returned by Submit for blank input.
var ErrEmptyMessage = errors.New("feed: message text is empty")

// NodeHandle identifies a rendered node. Only the Renderer that issued it
// interprets it.
type NodeHandle interface{}

// Renderer turns messages into visible nodes.
type Renderer interface {
	Render(m model.Message) NodeHandle
	Update(h NodeHandle, m model.Message)
	// Reset removes every rendered node.
	Reset()
}

// Visibility reports whether the feed is currently hidden (minimized).
type Visibility interface {
	Hidden() bool
}

// UnreadSink receives the unread count whenever it changes.
type UnreadSink interface {
	SetUnread(n int)
}

// Transport is the outbound half of the connection.
type Transport interface {
	RequestHistory() error
	SendMessage(m model.OutboundMessage) error
}

// Timer is a cancelable one-shot callback.
type Timer interface {
	Stop() bool
}

// Clock schedules deferred callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Options wires a Feed to its collaborators. Renderer is required; everything
// else has a usable default.
type Options struct {
	Renderer   Renderer
	Transport  Transport
	Visibility Visibility
	Unread     UnreadSink
	Clock      Clock
	Logger     *zap.Logger

	// User is the display name used for optimistic local messages.
	User string
	// NextID generates ids for local sends. Defaults to idgen.Next.
	NextID func() string
	// Now stamps local messages and confirmations that carry no timestamp.
	Now func() time.Time

	HistoryTimeout time.Duration
}

type node struct {
	handle NodeHandle
	msg    model.Message
}

// Feed is the synchronization and reconciliation engine for one feed.
type Feed struct {
	mu sync.Mutex

	log            *zap.Logger
	renderer       Renderer
	transport      Transport
	clock          Clock
	user           string
	nextID         func() string
	now            func() time.Time
	historyTimeout time.Duration

	seen      seenSet
	nodes     map[string]*node
	list      []*node
	unread    *unreadTracker
	observers []func(n int)

	state      State
	session    uint64
	gotHistory bool
	requested  bool
	timer      Timer
}

func New(opts Options) *Feed {
	if opts.Renderer == nil {
		panic("feed: Options.Renderer is required")
	}
	f := &Feed{
		log:            opts.Logger,
		renderer:       opts.Renderer,
		transport:      opts.Transport,
		clock:          opts.Clock,
		user:           opts.User,
		nextID:         opts.NextID,
		now:            opts.Now,
		historyTimeout: opts.HistoryTimeout,
		seen:           make(seenSet),
		nodes:          make(map[string]*node),
		state:          StateDisconnected,
	}
	if f.log == nil {
		f.log = zap.NewNop()
	}
	if f.clock == nil {
		f.clock = systemClock{}
	}
	if f.user == "" {
		f.user = "Anonymous"
	}
	if f.nextID == nil {
		f.nextID = idgen.Next
	}
	if f.now == nil {
		f.now = time.Now
	}
	if f.historyTimeout <= 0 {
		f.historyTimeout = DefaultHistoryTimeout
	}
	f.unread = newUnreadTracker(opts.Visibility, opts.Unread)
	f.OnInsert(f.unread.inserted)
	return f
}

// OnInsert subscribes fn to insertion events. fn receives the number of nodes
// just inserted and runs with the Feed's mutex held.
func (f *Feed) OnInsert(fn func(n int)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observers = append(f.observers, fn)
}

// Reveal is called when the user restores the feed. It clears the unread
// count.
func (f *Feed) Reveal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unread.reset()
}

// Unread returns the current unread count.
func (f *Feed) Unread() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread.count
}

// SeenIDs returns the ids currently in the seen-set, sorted.
func (f *Feed) SeenIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.seen.ids()
	sort.Strings(ids)
	return ids
}

// Messages returns a copy of the rendered list in display order.
func (f *Feed) Messages() []model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Message, len(f.list))
	for i, n := range f.list {
		out[i] = n.msg
	}
	return out
}
