package racing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrally/rallyd/internal/protocol"
)

func strptr(s string) *string { return &s }

func TestCustomizeJoinable(t *testing.T) {
	c := NewCustomize(nil, DefaultRoomLimit)
	c.Join(NewLobbyPlayer("t1", "alice"))

	assert.True(t, c.IsJoinable(&protocol.RaceJoin{Token: "t2"}))
	assert.False(t, c.IsJoinable(&protocol.RaceJoin{Token: "t1"}), "seated token rejoining")

	require.True(t, c.SetStart())
	assert.False(t, c.IsJoinable(&protocol.RaceJoin{Token: "t2"}), "race underway")
}

func TestCustomizeJoinableFullRoom(t *testing.T) {
	c := NewCustomize(nil, DefaultRoomLimit)
	for i := 0; i < DefaultRoomLimit; i++ {
		name := fmt.Sprintf("p%d", i)
		c.Join(NewLobbyPlayer(name, name))
	}
	assert.False(t, c.IsJoinable(&protocol.RaceJoin{Token: "late"}))
}

func TestCustomizeJoinableLocked(t *testing.T) {
	c := NewCustomize(nil, DefaultRoomLimit)
	c.Lock("hunter2")

	assert.False(t, c.IsJoinable(&protocol.RaceJoin{Token: "t1"}), "no password")
	assert.False(t, c.IsJoinable(&protocol.RaceJoin{Token: "t1", Passwd: strptr("wrong")}))
	assert.True(t, c.IsJoinable(&protocol.RaceJoin{Token: "t1", Passwd: strptr("hunter2")}))
}

func TestCustomizeRecycledWhenEmpty(t *testing.T) {
	c := NewCustomize(nil, DefaultRoomLimit)
	assert.True(t, c.NeedsRecycle())

	c.Join(NewLobbyPlayer("t1", "alice"))
	assert.False(t, c.NeedsRecycle())

	c.Leave("t1")
	assert.True(t, c.NeedsRecycle())
}

func TestCustomizeOwnerHandoff(t *testing.T) {
	c := NewCustomize(nil, DefaultRoomLimit)
	c.SetInfo(protocol.RaceInfo{Name: "room", Owner: "alice"})
	c.Join(NewLobbyPlayer("t1", "alice"))
	c.Join(NewLobbyPlayer("t2", "bob"))

	c.Tick()
	assert.Equal(t, "alice", c.Info().Owner)

	c.Leave("t1")
	c.Tick()
	assert.Equal(t, "bob", c.Info().Owner)
}

func TestCustomizePlayerStateAndConfig(t *testing.T) {
	c := NewCustomize(nil, DefaultRoomLimit)
	c.Join(NewLobbyPlayer("t1", "alice"))

	assert.True(t, c.SetPlayerState("t1", protocol.StateReady))
	assert.False(t, c.SetPlayerState("ghost", protocol.StateReady))

	cfg := protocol.RaceConfig{Car: "Group B"}
	require.True(t, c.SetPlayerConfig("t1", cfg))
	got, ok := c.PlayerConfig("t1")
	require.True(t, ok)
	assert.Equal(t, cfg, got)

	states := c.PlayerStates()
	require.Len(t, states, 1)
	assert.Equal(t, protocol.StateReady, states[0].State)
}
