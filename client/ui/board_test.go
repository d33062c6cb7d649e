package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/feedsync/pkg/model"
)

func drain(b *Board) bool {
	select {
	case <-b.Changed():
		return true
	default:
		return false
	}
}

func TestBoardRenderUpdateReset(t *testing.T) {
	b := NewBoard(false)

	h1 := b.Render(model.Message{ID: "1", Text: "one", Pending: true})
	b.Render(model.Message{ID: "2", Text: "two"})
	b.Update(h1, model.Message{ID: "1", Text: "one!"})

	entries := b.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "one!", entries[0].Text)
	assert.False(t, entries[0].Pending)

	b.Reset()
	assert.Empty(t, b.Entries())
}

func TestBoardUpdateIgnoresForeignHandles(t *testing.T) {
	b := NewBoard(false)
	b.Render(model.Message{Text: "only"})

	b.Update(5, model.Message{Text: "out of range"})
	b.Update("nope", model.Message{Text: "wrong type"})

	assert.Equal(t, "only", b.Entries()[0].Text)
}

func TestBoardChangeSignalsCoalesce(t *testing.T) {
	b := NewBoard(true)
	assert.False(t, drain(b))

	b.Render(model.Message{Text: "a"})
	b.Render(model.Message{Text: "b"})
	b.SetUnread(2)

	assert.True(t, drain(b))
	assert.False(t, drain(b), "signals are coalesced")
	assert.Equal(t, 2, b.Unread())
	assert.True(t, b.Hidden())

	b.SetHidden(false)
	assert.False(t, b.Hidden())
	assert.True(t, drain(b))
}
