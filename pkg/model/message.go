package model

import "time"

// Event names carried in Envelope.Event.
const (
	EventReady          = "chat_ready"
	EventHistory        = "chat_history"
	EventHistoryRequest = "chat_history_request"
	EventMessage        = "chat_message"
)

// SystemUser is the sender name the gateway uses for join/leave notices.
const SystemUser = "System"

// Message is a single feed entry as it travels over the wire and through the
// reconciliation engine. User and Text are untrusted and must be escaped by
// whatever renders them.
type Message struct {
	ID        string `json:"id,omitempty"`
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp string `json:"ts,omitempty"`

	// Pending is local UI state and never serialized.
	Pending bool `json:"-"`
}

// OutboundMessage is what a client sends when the user submits text. The
// gateway echoes ID back on the confirming chat_message.
type OutboundMessage struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// TimestampLayout matches the millisecond ISO-8601 form browsers emit.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
