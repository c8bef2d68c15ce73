package racing

import "github.com/openrally/rallyd/internal/protocol"

// DefaultRoomLimit is the seat capacity of a player-created room.
const DefaultRoomLimit = 8

// Customize is an ad-hoc player-created room: capacity-limited, optionally
// password-locked, started by an explicit owner trigger, and recycled by
// the registry once it empties.
type Customize struct {
	room *RaceRoom
}

// NewCustomize creates an empty player-created room with the given seat
// capacity; values below 2 fall back to DefaultRoomLimit.
func NewCustomize(sink ResultSink, limit int) *Customize {
	if limit < 2 {
		limit = DefaultRoomLimit
	}
	room := NewRaceRoom(sink)
	room.SetLimit(limit)
	return &Customize{room: room}
}

// Lock protects the room with a plain-equality password.
func (c *Customize) Lock(passwd string) {
	c.room.SetPasswd(passwd)
}

func (c *Customize) Join(p *LobbyPlayer) {
	c.room.Push(NewRacePlayer(p))
}

func (c *Customize) Leave(token string) {
	c.room.Pop(token)
}

func (c *Customize) Access(token string, w FrameWriter) bool {
	p, ok := c.room.Get(token)
	if !ok {
		return false
	}
	p.Conn = w
	return true
}

func (c *Customize) Detach(w FrameWriter) {
	for _, p := range c.room.Players {
		if p.Conn == w {
			p.Conn = nil
		}
	}
}

// IsJoinable rejects a full room, a race already underway, a duplicate
// token, and a locked room without the exact password.
func (c *Customize) IsJoinable(join *protocol.RaceJoin) bool {
	if c.room.IsFull() || c.room.IsRacingStarted() || c.room.HasToken(join.Token) {
		return false
	}
	if c.room.IsLocked() {
		return join.Passwd != nil && c.room.PassMatch(*join.Passwd)
	}
	return true
}

// NeedsRecycle deletes the room once the last player leaves.
func (c *Customize) NeedsRecycle() bool {
	return c.room.IsEmpty()
}

func (c *Customize) IsStarted() bool { return c.room.IsRacingStarted() }

func (c *Customize) SetStart() bool { return c.room.StartRace() }

func (c *Customize) Brief() protocol.RaceBrief {
	return protocol.RaceBrief{
		Name:    c.room.Info.Name,
		Stage:   c.room.Info.Stage,
		Owner:   c.room.Info.Owner,
		Players: len(c.room.Players),
		State:   c.room.RoomState,
	}
}

func (c *Customize) Info() protocol.RaceInfo { return c.room.Info }

func (c *Customize) SetInfo(info protocol.RaceInfo) { c.room.Info = info }

func (c *Customize) PlayerCount() int { return len(c.room.Players) }

func (c *Customize) PlayerStates() []protocol.MetaRaceState {
	return c.room.PlayerStates()
}

func (c *Customize) PlayerConfig(token string) (protocol.RaceConfig, bool) {
	if p, ok := c.room.Get(token); ok {
		return p.Cfg, true
	}
	return protocol.RaceConfig{}, false
}

func (c *Customize) SetPlayerConfig(token string, cfg protocol.RaceConfig) bool {
	p, ok := c.room.Get(token)
	if !ok {
		return false
	}
	p.Cfg = cfg
	return true
}

func (c *Customize) SetPlayerState(token string, state protocol.RaceState) bool {
	p, ok := c.room.Get(token)
	if !ok {
		return false
	}
	p.State = state
	return true
}

func (c *Customize) SetPlayerData(data protocol.MetaRaceData) bool {
	p, ok := c.room.Get(data.Token)
	if !ok {
		return false
	}
	p.Data = data
	return true
}

func (c *Customize) Prune(alive func(token string) bool) {
	c.room.Prune(alive)
}

// Tick hands ownership to whichever player sits at index 0 if the owner
// left, then refreshes visibility and advances the lifecycle.
func (c *Customize) Tick() {
	if !c.room.HasName(c.room.Info.Owner) && len(c.room.Players) > 0 {
		c.room.Info.Owner = c.room.Players[0].Name
	}
	c.room.UpdateVisibility()
	c.room.Advance()
}
