package racing

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/openrally/rallyd/internal/protocol"
	"github.com/openrally/rallyd/internal/util"
)

// RoomRaceState is the lifecycle phase of one session, a single value per
// room rather than per player.
type RoomRaceState uint32

const (
	RoomRaceInit RoomRaceState = iota
	RoomRaceBegin
	RoomRaceReady
	RoomRaceLoading
	RoomRaceLoaded
	RoomRaceStarting
	RoomRaceStarted
	RoomRaceRunning
	RoomRaceFinished
	RoomRaceEnd
)

func (s RoomRaceState) String() string {
	switch s {
	case RoomRaceBegin:
		return "begin"
	case RoomRaceReady:
		return "ready"
	case RoomRaceLoading:
		return "loading"
	case RoomRaceLoaded:
		return "loaded"
	case RoomRaceStarting:
		return "starting"
	case RoomRaceStarted:
		return "started"
	case RoomRaceRunning:
		return "running"
	case RoomRaceFinished:
		return "finished"
	case RoomRaceEnd:
		return "end"
	default:
		return "init"
	}
}

const (
	// nominalSpeedKmh substitutes for a stationary player in the gap
	// estimate to avoid dividing by zero.
	nominalSpeedKmh = 10.0
	// etaSpeedKmh is the assumed average pace for finish-time guesses.
	etaSpeedKmh = 80.0
	// dnfFinishTime is the sentinel finish time uploaded for a player
	// who never completed the stage.
	dnfFinishTime = 3600.0

	ridiculeCheckEvery = time.Second
	ridiculeCooldown   = 10 * time.Second
	stateSyncEvery     = 500 * time.Millisecond
)

// ResultSink receives the final ranking of a finished race for
// persistence. Called on its own goroutine with a results slice the room
// never touches again, so implementations may block.
type ResultSink interface {
	SaveRaceResults(results []protocol.MetaRaceResult)
}

// RaceRoom holds the participants and lifecycle state machine shared by
// both series variants. It is not internally synchronized; the session
// registry serializes all access.
type RaceRoom struct {
	Info      protocol.RaceInfo
	Players   []*RacePlayer
	RoomState protocol.RoomState
	RaceState RoomRaceState

	limit  int
	passwd string
	sink   ResultSink

	rankTick  time.Time
	stateTick time.Time
	logger    zerolog.Logger
}

// NewRaceRoom creates an empty room. A zero limit means unbounded.
func NewRaceRoom(sink ResultSink) *RaceRoom {
	return &RaceRoom{
		sink:   sink,
		logger: util.ComponentLogger("room"),
	}
}

func (r *RaceRoom) SetLimit(limit int)   { r.limit = limit }
func (r *RaceRoom) SetPasswd(pw string)  { r.passwd = pw }
func (r *RaceRoom) IsLocked() bool       { return r.passwd != "" }
func (r *RaceRoom) PassMatch(pw string) bool { return r.passwd != "" && r.passwd == pw }

// Push appends a player; capacity is enforced by IsJoinable, not here.
func (r *RaceRoom) Push(p *RacePlayer) {
	r.Players = append(r.Players, p)
}

// Pop removes a player by token.
func (r *RaceRoom) Pop(token string) {
	kept := r.Players[:0]
	for _, p := range r.Players {
		if p.Token != token {
			kept = append(kept, p)
		}
	}
	r.Players = kept
}

// Get finds a player by token.
func (r *RaceRoom) Get(token string) (*RacePlayer, bool) {
	for _, p := range r.Players {
		if p.Token == token {
			return p, true
		}
	}
	return nil, false
}

// HasToken reports whether the token already occupies a seat.
func (r *RaceRoom) HasToken(token string) bool {
	_, ok := r.Get(token)
	return ok
}

// HasName reports whether a player with the display name is present.
func (r *RaceRoom) HasName(name string) bool {
	for _, p := range r.Players {
		if p.Name == name {
			return true
		}
	}
	return false
}

func (r *RaceRoom) IsEmpty() bool { return len(r.Players) == 0 }

func (r *RaceRoom) IsFull() bool {
	return r.limit > 0 && len(r.Players) >= r.limit
}

// IsRacingStarted reports whether the lifecycle left Init.
func (r *RaceRoom) IsRacingStarted() bool {
	return r.RaceState != RoomRaceInit
}

// StartRace flips Init to Begin. No-op when empty or already racing.
// Entering Begin resets every player and orders them to prepare with the
// room's race configuration.
func (r *RaceRoom) StartRace() bool {
	if r.IsRacingStarted() || r.IsEmpty() {
		return false
	}

	for _, p := range r.Players {
		p.ResetRace()
	}
	r.RaceState = RoomRaceBegin
	r.logger.Info().Str("race", r.Info.Name).Msg("race begins, ordering prepare")
	r.broadcast(protocol.FmtRaceCommand, &protocol.RaceCmd{Kind: protocol.CmdPrepare, Info: &r.Info})
	return true
}

// ForceReset drops the lifecycle back to Init without a series reset.
func (r *RaceRoom) ForceReset() {
	r.RaceState = RoomRaceInit
}

func (r *RaceRoom) allPlayers(pred func(*RacePlayer) bool) bool {
	for _, p := range r.Players {
		if !pred(p) {
			return false
		}
	}
	return true
}

// Advance evaluates one tick of the lifecycle table. A room that emptied
// mid-phase is forced back to Init first.
func (r *RaceRoom) Advance() {
	if r.IsEmpty() {
		if r.RaceState != RoomRaceInit {
			r.logger.Info().Str("race", r.Info.Name).Msg("room emptied mid-race, resetting")
			r.RaceState = RoomRaceInit
		}
		return
	}

	switch r.RaceState {
	case RoomRaceBegin:
		r.syncStates()
		if r.allPlayers(func(p *RacePlayer) bool { return p.State == protocol.StateReady }) {
			r.RaceState = RoomRaceReady
		}
	case RoomRaceReady:
		r.logger.Info().Str("race", r.Info.Name).Msg("ordering load")
		r.broadcast(protocol.FmtRaceCommand, &protocol.RaceCmd{Kind: protocol.CmdLoad})
		r.RaceState = RoomRaceLoading
	case RoomRaceLoading:
		r.syncStates()
		if r.allPlayers(func(p *RacePlayer) bool { return p.State == protocol.StateLoaded }) {
			r.RaceState = RoomRaceLoaded
		}
	case RoomRaceLoaded:
		r.logger.Info().Str("race", r.Info.Name).Msg("ordering start")
		r.broadcast(protocol.FmtRaceCommand, &protocol.RaceCmd{Kind: protocol.CmdStart})
		r.RaceState = RoomRaceStarting
	case RoomRaceStarting:
		r.syncStates()
		if r.allPlayers(func(p *RacePlayer) bool { return p.State == protocol.StateStarted }) {
			r.RaceState = RoomRaceStarted
		}
	case RoomRaceStarted:
		r.logger.Info().Str("race", r.Info.Name).Msg("ordering telemetry upload")
		r.broadcast(protocol.FmtRaceCommand, &protocol.RaceCmd{Kind: protocol.CmdUpload})
		r.RaceState = RoomRaceRunning
	case RoomRaceRunning:
		r.broadcastProgress()
		r.broadcastRidicule()
		if r.allPlayers((*RacePlayer).Finished) {
			r.RaceState = RoomRaceFinished
		}
	case RoomRaceFinished:
		r.logger.Info().Str("race", r.Info.Name).Msg("race finished, publishing results")
		r.SortByFinishTime()
		results := r.RaceResult()
		r.broadcast(protocol.FmtSyncRaceResult, results)
		if r.sink != nil && len(results) > 0 {
			go r.sink.SaveRaceResults(results)
		}
		r.RaceState = RoomRaceEnd
	case RoomRaceEnd:
		r.RaceState = RoomRaceInit
	}
}

// SortByProgress orders players leader-first; ties keep input order.
func (r *RaceRoom) SortByProgress() {
	sort.SliceStable(r.Players, func(i, j int) bool {
		return r.Players[i].Data.Progress > r.Players[j].Data.Progress
	})
}

// SortByFinishTime orders players fastest-first; ties keep input order.
func (r *RaceRoom) SortByFinishTime() {
	sort.SliceStable(r.Players, func(i, j int) bool {
		return r.Players[i].Data.FinishTime < r.Players[j].Data.FinishTime
	})
}

// RaceProgress computes the live ranking. Callers sort by progress first.
// The gap to the leader converts the distance deficit to seconds using the
// trailing player's own speed, substituting a nominal pace when stationary.
func (r *RaceRoom) RaceProgress() []protocol.MetaRaceProgress {
	if r.IsEmpty() {
		return nil
	}

	leader := r.Players[0]
	results := make([]protocol.MetaRaceProgress, 0, len(r.Players))
	for _, p := range r.Players {
		row := protocol.MetaRaceProgress{Name: p.Name, Progress: p.Data.Progress}
		if p.Data.StageLen > 0 {
			diffLen := (leader.Data.Progress - p.Data.Progress) / p.Data.StageLen * r.Info.StageLen
			speed := p.Data.Speed
			if speed == 0 {
				speed = nominalSpeedKmh
			}
			row.DiffFirst = diffLen / speed * 3.6
		}
		results = append(results, row)
	}
	return results
}

// RaceResult computes the final ranking. Callers sort by finish time first.
// Finishers score by position; a DNF costs a flat penalty.
func (r *RaceRoom) RaceResult() []protocol.MetaRaceResult {
	if r.IsEmpty() {
		return nil
	}

	leader := r.Players[0]
	results := make([]protocol.MetaRaceResult, 0, len(r.Players))
	for i, p := range r.Players {
		row := protocol.MetaRaceResult{
			Name:       p.Name,
			RaceCar:    p.Cfg.Car,
			SplitTime1: p.Data.SplitTime1,
			SplitTime2: p.Data.SplitTime2,
			FinishTime: p.Data.FinishTime,
			DiffTime:   p.Data.FinishTime - leader.Data.FinishTime,
		}
		if p.Data.FinishTime == dnfFinishTime {
			row.Score = -5
		} else {
			row.Score = (len(r.Players) - i) * 3
		}
		results = append(results, row)
	}
	return results
}

// GuessRemainSeconds estimates how long until the current leader finishes,
// assuming a nominal average pace. Advisory text only.
func (r *RaceRoom) GuessRemainSeconds() int {
	if r.IsEmpty() {
		return 0
	}
	p := r.Players[0]
	if p.Data.StageLen <= 0 {
		return 0
	}
	leftLen := (p.Data.StageLen - p.Data.Progress) / p.Data.StageLen * r.Info.StageLen
	return int(leftLen / etaSpeedKmh * 3.6)
}

// UpdateVisibility recomputes the derived room state shown in race lists.
func (r *RaceRoom) UpdateVisibility() {
	switch {
	case r.IsRacingStarted():
		r.RoomState = protocol.RoomRaceOn
	case r.IsLocked():
		r.RoomState = protocol.RoomLocked
	case r.IsFull():
		r.RoomState = protocol.RoomFull
	default:
		r.RoomState = protocol.RoomFree
	}
}

// PlayerStates snapshots every seat's name and race state.
func (r *RaceRoom) PlayerStates() []protocol.MetaRaceState {
	states := make([]protocol.MetaRaceState, 0, len(r.Players))
	for _, p := range r.Players {
		states = append(states, protocol.MetaRaceState{Name: p.Name, State: p.State})
	}
	return states
}

// Prune drops seats whose token is no longer accepted by the lobby.
func (r *RaceRoom) Prune(alive func(token string) bool) {
	kept := r.Players[:0]
	for _, p := range r.Players {
		if alive(p.Token) {
			kept = append(kept, p)
		} else {
			r.logger.Info().Str("player", p.Name).Str("race", r.Info.Name).Msg("pruned stale player")
		}
	}
	r.Players = kept
}

// broadcast encodes body once, snapshots every seat's write-handle, and
// fans the frame out off the tick goroutine. Individual write failures
// are swallowed per seat.
func (r *RaceRoom) broadcast(format protocol.DataFormat, body any) {
	if r.IsEmpty() {
		return
	}

	frame, err := protocol.Encode(format, body)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to encode broadcast")
		return
	}

	targets := snapshotTargets(r.Players)
	if len(targets) == 0 {
		return
	}
	go sendTargets(targets, frame)
}

// syncStates pushes the per-player state list to everyone at a low cadence
// while the room shepherds players through the pre-race phases.
func (r *RaceRoom) syncStates() {
	if time.Since(r.stateTick) < stateSyncEvery {
		return
	}
	r.stateTick = time.Now()
	r.broadcast(protocol.FmtSyncRaceState, r.PlayerStates())
}

// broadcastProgress recomputes and fans out the live ranking.
func (r *RaceRoom) broadcastProgress() {
	if r.IsEmpty() {
		return
	}
	r.SortByProgress()
	r.broadcast(protocol.FmtSyncRaceData, r.RaceProgress())
}

// broadcastRidicule taunts players who were just overtaken, at most once
// per victim per cooldown window, evaluated once a second.
func (r *RaceRoom) broadcastRidicule() {
	if time.Since(r.rankTick) < ridiculeCheckEvery {
		return
	}
	r.rankTick = time.Now()

	r.SortByProgress()
	for i, p := range r.Players {
		pos := stagePos(p.Data, r.Info.StageLen)
		lastPos := stagePos(p.LastData, r.Info.StageLen)
		if pos < lastPos || p.Data.RaceTime < 10.0 {
			p.LastData = p.Data
			continue
		}

		var winners []string
		for _, rival := range r.Players[:i] {
			rivalPos := stagePos(rival.Data, r.Info.StageLen)
			rivalLast := stagePos(rival.LastData, r.Info.StageLen)
			if rivalPos > pos && rivalLast < lastPos {
				winners = append(winners, rival.Name)
			}
		}

		if len(winners) > 0 && time.Since(p.lastRidicule) > ridiculeCooldown {
			p.lastRidicule = time.Now()
			frame, err := protocol.Encode(protocol.FmtSyncRaceRidicule, &protocol.MetaRaceRidicule{Players: winners})
			if err == nil && p.Conn != nil {
				go sendTargets([]frameTarget{{name: p.Name, conn: p.Conn}}, frame)
			}
		}

		p.LastData = p.Data
	}
}

func stagePos(data protocol.MetaRaceData, stageLen float64) float64 {
	if data.StageLen <= 0 {
		return 0
	}
	return data.Progress / data.StageLen * stageLen
}
