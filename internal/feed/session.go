package feed

import (
	"go.uber.org/zap"

	"github.com/mahaj/feedsync/pkg/metrics"
	"github.com/mahaj/feedsync/pkg/model"
)

// State is the connection lifecycle state of a Feed.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingHistory
	StateSynced
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHistory:
		return "awaiting_history"
	case StateSynced:
		return "synced"
	default:
		return "unknown"
	}
}

// State returns the current lifecycle state.
func (f *Feed) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Session returns the number of the current (or last) session. It is zero
// before the first Connected.
func (f *Feed) Session() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

// Connecting records that the transport is dialing.
func (f *Feed) Connecting() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateConnecting
}

// Connected starts a new session: the feed waits for history and nudges the
// server once if none arrives within the history timeout.
func (f *Feed) Connected() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stopTimer()
	f.session++
	f.state = StateAwaitingHistory
	f.gotHistory = false
	f.requested = false
	metrics.Sessions.Inc()

	if f.unread.hidden() {
		f.unread.reset()
	}

	session := f.session
	f.timer = f.clock.AfterFunc(f.historyTimeout, func() {
		f.historyTimedOut(session)
	})
	f.log.Info("feed connected", zap.Uint64("session", session))
}

// ConnectionError records a transport fault. The transport owns reconnection
// and will call Connected again once it succeeds.
func (f *Feed) ConnectionError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopTimer()
	f.state = StateDisconnected
	f.log.Warn("feed connection error", zap.Uint64("session", f.session), zap.Error(err))
}

// Disconnected records a closed connection. err may be nil for a clean close.
func (f *Feed) Disconnected(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopTimer()
	f.state = StateDisconnected
	if err != nil {
		f.log.Warn("feed disconnected", zap.Uint64("session", f.session), zap.Error(err))
		return
	}
	f.log.Info("feed disconnected", zap.Uint64("session", f.session))
}

// History replaces the rendered list with a server snapshot.
func (f *Feed) History(items []model.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stopTimer()
	f.gotHistory = true
	n := f.bulkApply(items)
	if f.state == StateAwaitingHistory || f.state == StateSynced {
		f.state = StateSynced
	}
	metrics.HistoryApplied.Inc()
	f.log.Info("feed history applied",
		zap.Uint64("session", f.session),
		zap.Int("items", len(items)),
		zap.Int("rendered", n))
}

func (f *Feed) historyTimedOut(session uint64) {
	f.mu.Lock()
	if session != f.session || f.gotHistory || f.requested || f.state != StateAwaitingHistory {
		f.mu.Unlock()
		return
	}
	f.requested = true
	f.timer = nil
	t := f.transport
	f.mu.Unlock()

	f.log.Info("feed requesting history", zap.Uint64("session", session))
	metrics.HistoryRequests.Inc()
	if t == nil {
		return
	}
	if err := t.RequestHistory(); err != nil {
		f.log.Warn("feed history request failed", zap.Uint64("session", session), zap.Error(err))
	}
}

func (f *Feed) stopTimer() {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}
