package racing

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/openrally/rallyd/internal/protocol"
	"github.com/openrally/rallyd/internal/util"
)

// DailyName is the fixed session name of the recurring challenge.
const DailyName = "Daily Challenge"

// DailyOwner is the display owner of the recurring challenge.
const DailyOwner = "Rally Bot"

const noticeEvery = 500 * time.Millisecond

// Daily is the recurring scheduled challenge. Players join an unbounded
// waiting area at any time; a background schedule periodically drains the
// waiting area into the active room, races it with a freshly randomized
// configuration, and returns everyone to the waiting area at race end.
type Daily struct {
	room     *RaceRoom
	pit      PitHouse
	randomer *RaceRandomer
	period   time.Duration

	startCh chan time.Time
	nextCh  chan time.Time

	nextStart  time.Time
	noticeTick time.Time
	logger     zerolog.Logger
}

// NewDaily creates the challenge session. Start must be called once to
// launch the schedule; period is the fixed interval between races.
func NewDaily(randomer *RaceRandomer, sink ResultSink, period time.Duration) *Daily {
	d := &Daily{
		room:     NewRaceRoom(sink),
		randomer: randomer.WithName(DailyName).WithOwner(DailyOwner),
		period:   period,
		startCh:  make(chan time.Time, 1),
		nextCh:   make(chan time.Time, 1),
		logger:   util.ComponentLogger("daily"),
	}
	d.room.Info.Name = DailyName
	d.room.Info.Owner = DailyOwner
	return d
}

// Start launches the schedule goroutine. It is the one long-lived task a
// session owns and dies with ctx so a torn-down session leaves no timer.
func (d *Daily) Start(ctx context.Context) {
	go d.runSchedule(ctx)
}

// runSchedule computes each next fire time aligned to the period, tells
// the tick loop about it for countdown display, sleeps until it arrives,
// and fires the start signal.
func (d *Daily) runSchedule(ctx context.Context) {
	for {
		next := time.Now().Truncate(d.period).Add(d.period)
		d.logger.Info().Time("next_start", next).Msg("next challenge scheduled")

		select {
		case d.nextCh <- next:
		default:
		}

		select {
		case <-ctx.Done():
			d.logger.Info().Msg("challenge schedule stopped")
			return
		case <-time.After(time.Until(next)):
			select {
			case d.startCh <- next:
			default:
			}
		}
	}
}

func (d *Daily) Join(p *LobbyPlayer) {
	d.pit.Push(NewRacePlayer(p))
}

func (d *Daily) Leave(token string) {
	d.room.Pop(token)
	d.pit.Pop(token)
}

func (d *Daily) Access(token string, w FrameWriter) bool {
	if p, ok := d.room.Get(token); ok {
		p.Conn = w
		return true
	}
	if p, ok := d.pit.Get(token); ok {
		p.Conn = w
		return true
	}
	return false
}

func (d *Daily) Detach(w FrameWriter) {
	for _, p := range d.room.Players {
		if p.Conn == w {
			p.Conn = nil
		}
	}
	for _, p := range d.pit.Players {
		if p.Conn == w {
			p.Conn = nil
		}
	}
}

// IsJoinable always admits: the waiting area is unbounded and unlocked.
func (d *Daily) IsJoinable(*protocol.RaceJoin) bool { return true }

// NeedsRecycle never: the challenge session is permanent.
func (d *Daily) NeedsRecycle() bool { return false }

func (d *Daily) IsStarted() bool { return d.room.IsRacingStarted() }

func (d *Daily) SetStart() bool { return d.room.StartRace() }

func (d *Daily) Brief() protocol.RaceBrief {
	return protocol.RaceBrief{
		Name:    d.room.Info.Name,
		Stage:   d.room.Info.Stage,
		Owner:   d.room.Info.Owner,
		Players: d.PlayerCount(),
		State:   d.room.RoomState,
	}
}

func (d *Daily) Info() protocol.RaceInfo { return d.room.Info }

func (d *Daily) SetInfo(info protocol.RaceInfo) { d.room.Info = info }

func (d *Daily) PlayerCount() int {
	return len(d.room.Players) + len(d.pit.Players)
}

func (d *Daily) PlayerStates() []protocol.MetaRaceState {
	states := d.room.PlayerStates()
	for _, p := range d.pit.Players {
		states = append(states, protocol.MetaRaceState{Name: p.Name, State: p.State})
	}
	return states
}

func (d *Daily) PlayerConfig(token string) (protocol.RaceConfig, bool) {
	if p, ok := d.get(token); ok {
		return p.Cfg, true
	}
	return protocol.RaceConfig{}, false
}

func (d *Daily) SetPlayerConfig(token string, cfg protocol.RaceConfig) bool {
	p, ok := d.get(token)
	if !ok {
		return false
	}
	p.Cfg = cfg
	return true
}

func (d *Daily) SetPlayerState(token string, state protocol.RaceState) bool {
	p, ok := d.get(token)
	if !ok {
		return false
	}
	p.State = state
	return true
}

// SetPlayerData accepts telemetry only from active-room players.
func (d *Daily) SetPlayerData(data protocol.MetaRaceData) bool {
	p, ok := d.room.Get(data.Token)
	if !ok {
		return false
	}
	p.Data = data
	return true
}

func (d *Daily) get(token string) (*RacePlayer, bool) {
	if p, ok := d.room.Get(token); ok {
		return p, true
	}
	return d.pit.Get(token)
}

// Prune drops stale tokens from both pools.
func (d *Daily) Prune(alive func(token string) bool) {
	d.room.Prune(alive)
	d.pit.Prune(alive)
}

// Tick drains schedule signals, recycles a finished race back into the
// waiting area, advances the lifecycle and emits waiting-area notices.
func (d *Daily) Tick() {
	d.drainSchedule()

	if d.room.RaceState == RoomRaceEnd {
		d.logger.Info().Int("players", len(d.room.Players)).Msg("challenge over, returning players to the pit house")
		for _, p := range d.room.Players {
			p.ResetRace()
			d.pit.Push(p)
		}
		d.room.Players = nil
		d.room.ForceReset()
	}

	d.room.UpdateVisibility()
	d.room.Advance()
	d.notifyPitHouse()
}

// drainSchedule consumes pending schedule signals without blocking.
func (d *Daily) drainSchedule() {
	select {
	case next := <-d.nextCh:
		d.nextStart = next
	default:
	}

	select {
	case <-d.startCh:
		d.startChallenge()
	default:
	}
}

// startChallenge randomizes a fresh configuration and races everyone who
// was waiting. Skipped when the previous race is still underway.
func (d *Daily) startChallenge() {
	if d.room.IsRacingStarted() {
		d.logger.Warn().Msg("scheduled start while race still underway, skipping")
		return
	}

	d.room.Info = d.randomer.Randomize()
	for _, p := range d.pit.Drain() {
		d.room.Push(p)
	}
	if d.room.StartRace() {
		d.logger.Info().
			Str("stage", d.room.Info.Stage).
			Int("players", len(d.room.Players)).
			Msg("daily challenge started")
	}
}

// notifyPitHouse broadcasts the countdown while idle or a rough finish
// ETA while racing. Advisory text, never used for state decisions.
func (d *Daily) notifyPitHouse() {
	if d.pit.IsEmpty() || time.Since(d.noticeTick) < noticeEvery {
		return
	}
	d.noticeTick = time.Now()

	if d.room.IsRacingStarted() {
		remain := d.room.GuessRemainSeconds()
		d.pit.NotifyNotice(fmt.Sprintf("Challenge underway with %d racers, about %ds to go.", len(d.room.Players), remain))
		return
	}
	if !d.nextStart.IsZero() {
		countdown := time.Until(d.nextStart).Round(time.Second)
		if countdown < 0 {
			countdown = 0
		}
		d.pit.NotifyNotice(fmt.Sprintf("Next challenge on [%s] starts in %s.", d.room.Info.Stage, countdown))
	}
}
