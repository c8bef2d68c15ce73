// Package racing implements the race session engine: players, the room
// lifecycle state machine, the two series variants (player-created rooms
// and the scheduled daily challenge), and the random race generator.
package racing

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openrally/rallyd/internal/protocol"
)

// LobbyAliveWindow is how recently a lobby player must have been heard
// from to count as alive.
const LobbyAliveWindow = 60 * time.Second

// FrameWriter is the write-half of one player's TCP stream. Implemented
// by network.Connection; fakes stand in for it in tests.
type FrameWriter interface {
	WriteFrame(frame []byte) error
}

// LobbyPlayer is one logged-in identity, independent of any session.
type LobbyPlayer struct {
	Token string
	Name  string

	lastActive time.Time
}

// NewLobbyPlayer creates a lobby entry for a freshly issued token.
func NewLobbyPlayer(token, name string) *LobbyPlayer {
	return &LobbyPlayer{Token: token, Name: name, lastActive: time.Now()}
}

// Touch records a heartbeat from the player.
func (p *LobbyPlayer) Touch() {
	p.lastActive = time.Now()
}

// IsAlive reports whether the player heartbeated within the liveness window.
func (p *LobbyPlayer) IsAlive() bool {
	return time.Since(p.lastActive) < LobbyAliveWindow
}

// RacePlayer is one player's seat inside a session. Exactly one session
// owns it at a time; moving between the waiting area and the active room
// transfers the instance.
type RacePlayer struct {
	Token string
	Name  string

	// Conn is attached when the player's TCP stream authenticates into
	// this session and cleared when the socket closes. Nil means the
	// player is unreachable for broadcast; sends are skipped, not errors.
	Conn FrameWriter

	State    protocol.RaceState
	Data     protocol.MetaRaceData
	LastData protocol.MetaRaceData
	Cfg      protocol.RaceConfig

	lastRidicule time.Time
}

// NewRacePlayer seats a lobby player into a session.
func NewRacePlayer(p *LobbyPlayer) *RacePlayer {
	return &RacePlayer{Token: p.Token, Name: p.Name, lastRidicule: time.Now()}
}

// ResetRace clears all per-race state ahead of a new race.
func (p *RacePlayer) ResetRace() {
	p.State = protocol.StateDefault
	p.Data = protocol.MetaRaceData{}
	p.LastData = protocol.MetaRaceData{}
	p.Cfg = protocol.RaceConfig{}
	p.lastRidicule = time.Now()
}

// Finished reports whether the player is done with the running race,
// by finishing or retiring.
func (p *RacePlayer) Finished() bool {
	return p.State == protocol.StateRetired || p.State == protocol.StateFinished
}

// frameTarget pairs a seat's name with its write-handle, copied while the
// registry lock is held so fan-out goroutines never read live seats.
type frameTarget struct {
	name string
	conn FrameWriter
}

// snapshotTargets copies the reachable seats' write-handles. Seats without
// an attached stream are skipped.
func snapshotTargets(players []*RacePlayer) []frameTarget {
	targets := make([]frameTarget, 0, len(players))
	for _, p := range players {
		if p.Conn != nil {
			targets = append(targets, frameTarget{name: p.Name, conn: p.Conn})
		}
	}
	return targets
}

// sendTargets best-effort delivers an already encoded frame. Write failures
// are swallowed: a dead socket must never fail a broadcast for siblings.
func sendTargets(targets []frameTarget, frame []byte) {
	for _, t := range targets {
		if err := t.conn.WriteFrame(frame); err != nil {
			log.Warn().Err(err).Str("player", t.name).Msg("dropped outbound frame")
		}
	}
}
