package feed

type nopSink struct{}

func (nopSink) SetUnread(int) {}

type alwaysVisible struct{}

func (alwaysVisible) Hidden() bool { return false }

// unreadTracker counts insertions that happen while the feed is hidden.
// squelch is raised for the duration of a history bulk apply.
type unreadTracker struct {
	count   int
	squelch bool
	vis     Visibility
	sink    UnreadSink
}

func newUnreadTracker(vis Visibility, sink UnreadSink) *unreadTracker {
	if vis == nil {
		vis = alwaysVisible{}
	}
	if sink == nil {
		sink = nopSink{}
	}
	return &unreadTracker{vis: vis, sink: sink}
}

func (u *unreadTracker) hidden() bool {
	return u.vis.Hidden()
}

func (u *unreadTracker) inserted(n int) {
	if n <= 0 || u.squelch || !u.vis.Hidden() {
		return
	}
	u.count += n
	u.sink.SetUnread(u.count)
}

func (u *unreadTracker) reset() {
	u.count = 0
	u.sink.SetUnread(0)
}
