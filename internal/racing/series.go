package racing

import "github.com/openrally/rallyd/internal/protocol"

// Series is one race session: a set of players, a race configuration, and
// a lifecycle state machine, behind a membership policy that differs per
// variant. All methods are called with the registry lock held.
type Series interface {
	// Join seats a lobby player. Membership preconditions live in
	// IsJoinable, not here.
	Join(p *LobbyPlayer)

	// Leave removes a player by token.
	Leave(token string)

	// Access binds a TCP stream's write-half to the player's seat.
	Access(token string, w FrameWriter) bool

	// Detach clears the seat bound to the given write-half, if any.
	Detach(w FrameWriter)

	// IsJoinable checks the variant's join preconditions.
	IsJoinable(join *protocol.RaceJoin) bool

	// NeedsRecycle reports whether the registry should delete the session.
	NeedsRecycle() bool

	IsStarted() bool
	SetStart() bool

	Brief() protocol.RaceBrief
	Info() protocol.RaceInfo
	SetInfo(info protocol.RaceInfo)

	PlayerCount() int
	PlayerStates() []protocol.MetaRaceState
	PlayerConfig(token string) (protocol.RaceConfig, bool)
	SetPlayerConfig(token string, cfg protocol.RaceConfig) bool
	SetPlayerState(token string, state protocol.RaceState) bool
	SetPlayerData(data protocol.MetaRaceData) bool

	// Prune drops players whose token the lobby no longer recognizes.
	Prune(alive func(token string) bool)

	// Tick evaluates one scheduling frame: visibility, lifecycle, notices.
	Tick()
}
