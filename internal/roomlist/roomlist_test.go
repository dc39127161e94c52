package roomlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-client/internal/core"
)

func seeded() *List {
	l := New()
	l.Replace([]core.Room{
		{ID: "r1", Name: "General", LastMessage: "hello there"},
		{ID: "r2", Name: "Random", LastMessage: "cats", Unread: true},
		{ID: "r3", Name: "Go", LastMessage: "generics"},
	})
	return l
}

func TestFilter(t *testing.T) {
	l := seeded()

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{name: "all", filter: Filter{}, want: []string{"r1", "r2", "r3"}},
		{name: "unread", filter: Filter{UnreadOnly: true}, want: []string{"r2"}},
		{name: "name term", filter: Filter{Term: "RAND"}, want: []string{"r2"}},
		{name: "preview term", filter: Filter{Term: "gener"}, want: []string{"r1", "r3"}},
		{name: "unread and term", filter: Filter{UnreadOnly: true, Term: "general"}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := []string{}
			for _, r := range l.Rooms(tt.filter) {
				got = append(got, r.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMutations(t *testing.T) {
	l := seeded()

	require.True(t, l.MarkRead("r2"))
	require.True(t, l.MarkUnread("r1"))
	require.True(t, l.SetPreview("r1", "You: hi"))
	require.False(t, l.SetPreview("missing", "x"))

	r1, ok := l.Get("r1")
	require.True(t, ok)
	assert.True(t, r1.Unread)
	assert.Equal(t, "You: hi", r1.LastMessage)

	l.Upsert(core.Room{ID: "r4", Name: "New"})
	rooms := l.Rooms(Filter{})
	assert.Equal(t, "r4", rooms[0].ID)

	require.True(t, l.Remove("r4"))
	require.False(t, l.Remove("r4"))
	assert.Equal(t, 3, l.Len())

	l.SetUnread(map[string]bool{"r3": true})
	r3, _ := l.Get("r3")
	assert.True(t, r3.Unread)
}
