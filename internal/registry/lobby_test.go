package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrally/rallyd/internal/racing"
)

func TestLobbyBasics(t *testing.T) {
	l := NewLobby()
	assert.Equal(t, 0, l.Count())

	l.Push(racing.NewLobbyPlayer("t1", "alice"))
	l.Push(racing.NewLobbyPlayer("t2", "bob"))
	assert.Equal(t, 2, l.Count())

	p, ok := l.Get("t1")
	require.True(t, ok)
	assert.Equal(t, "alice", p.Name)
	assert.True(t, l.Has("t2"))
	assert.False(t, l.Has("ghost"))

	token, ok := l.TokenByName("bob")
	require.True(t, ok)
	assert.Equal(t, "t2", token)
	_, ok = l.TokenByName("carol")
	assert.False(t, ok)

	l.Pop("t1")
	assert.False(t, l.Has("t1"))
	assert.Equal(t, 1, l.Count())
}

func TestLobbyAlive(t *testing.T) {
	l := NewLobby()
	l.Push(racing.NewLobbyPlayer("t1", "alice"))

	assert.True(t, l.Alive("t1"), "fresh login counts as alive")
	assert.False(t, l.Alive("ghost"))
}
