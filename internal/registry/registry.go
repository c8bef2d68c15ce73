package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openrally/rallyd/internal/protocol"
	"github.com/openrally/rallyd/internal/racing"
	"github.com/openrally/rallyd/internal/util"
)

// tickEvery is the scheduling cadence of the session loop.
const tickEvery = 50 * time.Millisecond

// CredentialChecker validates login credentials.
type CredentialChecker interface {
	Check(name, passwd string) bool
}

// SharedSecret accepts any non-empty name presenting the shared password.
type SharedSecret string

func (s SharedSecret) Check(name, passwd string) bool {
	return name != "" && passwd == string(s)
}

// ScoreStore is the persisted score lookup backing the user score queries.
type ScoreStore interface {
	OnLogin(name, passwd string) error
	Score(name string) (protocol.UserScore, bool)
}

// SessionRegistry owns the lobby and every race session. One coarse mutex
// guards all of it; operations lock, mutate and unlock, and the tick loop
// competes for the same lock.
type SessionRegistry struct {
	mu       sync.Mutex
	lobby    *Lobby
	sessions map[string]racing.Series

	checker   CredentialChecker
	scores    ScoreStore
	sink      racing.ResultSink
	roomLimit int

	logger zerolog.Logger
}

// NewSessionRegistry creates an empty registry. scores and sink may be nil
// when persistence is disabled.
func NewSessionRegistry(checker CredentialChecker, scores ScoreStore, sink racing.ResultSink) *SessionRegistry {
	return &SessionRegistry{
		lobby:     NewLobby(),
		sessions:  make(map[string]racing.Series),
		checker:   checker,
		scores:    scores,
		sink:      sink,
		roomLimit: racing.DefaultRoomLimit,
		logger:    util.ComponentLogger("registry"),
	}
}

// SetRoomLimit overrides the seat capacity of player-created rooms.
func (r *SessionRegistry) SetRoomLimit(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > 1 {
		r.roomLimit = n
	}
}

// AddSession registers a permanent session under a fixed name, used for
// the daily challenge at startup.
func (r *SessionRegistry) AddSession(name string, s racing.Series) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[name] = s
}

// Login validates credentials and issues a fresh token. A re-login under
// the same name evicts the previous token from the lobby and every session.
func (r *SessionRegistry) Login(login protocol.UserLogin) (string, bool) {
	if !r.checker.Check(login.Name, login.Passwd) {
		return "", false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.lobby.TokenByName(login.Name); ok {
		r.logger.Info().Str("player", login.Name).Msg("re-login, evicting previous token")
		r.evictLocked(old)
	}

	token := uuid.NewString()
	r.lobby.Push(racing.NewLobbyPlayer(token, login.Name))

	if r.scores != nil {
		if err := r.scores.OnLogin(login.Name, login.Passwd); err != nil {
			r.logger.Error().Err(err).Str("player", login.Name).Msg("failed to record login")
		}
	}

	r.logger.Info().Str("player", login.Name).Msg("logged in")
	return token, true
}

// Logout removes the token from the lobby and every session.
func (r *SessionRegistry) Logout(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lobby.Has(token) {
		return false
	}
	r.evictLocked(token)
	return true
}

func (r *SessionRegistry) evictLocked(token string) {
	for _, s := range r.sessions {
		s.Leave(token)
	}
	r.lobby.Pop(token)
}

// Heartbeat refreshes the token's liveness window.
func (r *SessionRegistry) Heartbeat(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.lobby.Get(token)
	if !ok {
		return false
	}
	p.Touch()
	return true
}

// Score returns the persisted score of the token's player.
func (r *SessionRegistry) Score(token string) (protocol.UserScore, bool) {
	r.mu.Lock()
	p, ok := r.lobby.Get(token)
	r.mu.Unlock()
	if !ok || r.scores == nil {
		return protocol.UserScore{}, false
	}
	return r.scores.Score(p.Name)
}

// News returns the daily challenge brief for the landing page.
func (r *SessionRegistry) News() (protocol.RaceBrief, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[racing.DailyName]
	if !ok {
		return protocol.RaceBrief{}, false
	}
	return s.Brief(), true
}

// List snapshots every session's brief, ordered by name.
func (r *SessionRegistry) List() []protocol.RaceBrief {
	r.mu.Lock()
	defer r.mu.Unlock()

	briefs := make([]protocol.RaceBrief, 0, len(r.sessions))
	for _, s := range r.sessions {
		briefs = append(briefs, s.Brief())
	}
	sort.Slice(briefs, func(i, j int) bool { return briefs[i].Name < briefs[j].Name })
	return briefs
}

// Info returns a session's race configuration.
func (r *SessionRegistry) Info(room string) (protocol.RaceInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[room]
	if !ok {
		return protocol.RaceInfo{}, false
	}
	return s.Info(), true
}

// UpdateInfo replaces a room's race configuration. Only the owner may do
// so, and only before the race starts.
func (r *SessionRegistry) UpdateInfo(upd protocol.RaceInfoUpdate) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[upd.Info.Name]
	if !ok || s.IsStarted() {
		return false
	}
	p, ok := r.lobby.Get(upd.Token)
	if !ok || p.Name != s.Info().Owner {
		return false
	}

	info := upd.Info
	info.Owner = s.Info().Owner
	s.SetInfo(info)
	return true
}

// States returns the per-player state list of a session.
func (r *SessionRegistry) States(room string) ([]protocol.MetaRaceState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[room]
	if !ok {
		return nil, false
	}
	return s.PlayerStates(), true
}

// Started reports whether a session's race left Init.
func (r *SessionRegistry) Started(room string) (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[room]
	if !ok {
		return false, false
	}
	return s.IsStarted(), true
}

// StartRace triggers a room's race. Owner only.
func (r *SessionRegistry) StartRace(room, token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[room]
	if !ok {
		return false
	}
	p, ok := r.lobby.Get(token)
	if !ok || p.Name != s.Info().Owner {
		return false
	}
	return s.SetStart()
}

// PlayerConfig looks up the token's own race config across sessions.
func (r *SessionRegistry) PlayerConfig(token string) (protocol.RaceConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if cfg, ok := s.PlayerConfig(token); ok {
			return cfg, true
		}
	}
	return protocol.RaceConfig{}, false
}

// SetPlayerConfig replaces the token's own race config wherever seated.
func (r *SessionRegistry) SetPlayerConfig(upd protocol.RaceConfigUpdate) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.SetPlayerConfig(upd.Token, upd.Cfg) {
			return true
		}
	}
	return false
}

// Create makes a new player-created room owned by the creator, seating
// them in it. Creating a name that already exists succeeds without effect.
func (r *SessionRegistry) Create(create protocol.RaceCreate) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[create.Info.Name]; ok {
		return true
	}
	p, ok := r.lobby.Get(create.Token)
	if !ok {
		return false
	}

	for _, s := range r.sessions {
		s.Leave(create.Token)
	}

	c := racing.NewCustomize(r.sink, r.roomLimit)
	info := create.Info
	info.Owner = p.Name
	c.SetInfo(info)
	if create.Locked && create.Passwd != nil {
		c.Lock(*create.Passwd)
	}
	c.Join(p)
	r.sessions[create.Info.Name] = c

	r.logger.Info().Str("race", create.Info.Name).Str("owner", p.Name).Msg("race created")
	return true
}

// Join seats the token's player in a room, leaving any previous seat.
func (r *SessionRegistry) Join(join protocol.RaceJoin) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[join.Room]
	if !ok {
		return false
	}
	p, ok := r.lobby.Get(join.Token)
	if !ok || !s.IsJoinable(&join) {
		return false
	}

	for _, other := range r.sessions {
		other.Leave(join.Token)
	}
	s.Join(p)
	return true
}

// Leave removes the token's player from a room.
func (r *SessionRegistry) Leave(leave protocol.RaceLeave) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[leave.Room]
	if !ok {
		return false
	}
	s.Leave(leave.Token)
	return true
}

// Destroy deletes a room. Owner only; the daily challenge's owner never
// matches a player so it cannot be destroyed.
func (r *SessionRegistry) Destroy(room, token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[room]
	if !ok {
		return false
	}
	p, ok := r.lobby.Get(token)
	if !ok || p.Name != s.Info().Owner {
		return false
	}

	delete(r.sessions, room)
	r.logger.Info().Str("race", room).Msg("race destroyed")
	return true
}

// Access binds a TCP stream's write-half to the player's seat in a room.
func (r *SessionRegistry) Access(access protocol.RaceAccess, w racing.FrameWriter) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[access.Room]
	if !ok {
		return false
	}
	return s.Access(access.Token, w)
}

// Detach clears the write-half from every seat bound to it.
func (r *SessionRegistry) Detach(w racing.FrameWriter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		s.Detach(w)
	}
}

// UpdatePlayerState records a player-reported race state change.
func (r *SessionRegistry) UpdatePlayerState(upd protocol.RaceUpdate) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[upd.Room]
	if !ok {
		return false
	}
	return s.SetPlayerState(upd.Token, upd.State)
}

// UpdatePlayerData records one telemetry upload.
func (r *SessionRegistry) UpdatePlayerData(data protocol.MetaRaceData) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[data.Room]
	if !ok {
		return false
	}
	return s.SetPlayerData(data)
}

// Run drives every session until ctx is cancelled: recycle empty rooms,
// sweep stale players, then tick each session's lifecycle.
func (r *SessionRegistry) Run(ctx context.Context) {
	r.logger.Info().Msg("session loop started")
	ticker := time.NewTicker(tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("session loop stopped")
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *SessionRegistry) tick() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, s := range r.sessions {
		if s.NeedsRecycle() {
			r.logger.Info().Str("race", name).Msg("recycling empty race")
			delete(r.sessions, name)
		}
	}

	alive := func(token string) bool { return r.lobby.Alive(token) }
	for _, s := range r.sessions {
		s.Prune(alive)
		s.Tick()
	}
}
