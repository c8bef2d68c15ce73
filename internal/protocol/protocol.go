// Package protocol implements the binary wire protocol spoken on the
// persistent per-player TCP stream, plus the message types shared with the
// REST facade. Every frame is a 6-byte little-endian header (2-byte payload
// length, 4-byte format discriminant) followed by a JSON payload whose byte
// length matches the header exactly.
package protocol

// DataFormat is the frame format discriminant carried in every header.
type DataFormat uint32

const (
	FmtDefault DataFormat = 0

	// Incoming from players
	FmtUserAccess  DataFormat = 1 // bind socket write-half to a race player
	FmtUpdateState DataFormat = 2 // player reports a race state change
	FmtUploadData  DataFormat = 3 // telemetry upload while running

	// Outgoing to players
	FmtRaceCommand     DataFormat = 4 // prepare/load/start/upload command
	FmtSyncRaceState   DataFormat = 5 // per-player state list
	FmtSyncRaceData    DataFormat = 6 // live progress ranking
	FmtSyncRaceResult  DataFormat = 7 // final ranking
	FmtSyncRaceNotice  DataFormat = 8 // free-text notice
	FmtSyncRaceRidicule DataFormat = 9 // overtake taunt

	FmtResponse DataFormat = 0x8000
)

// HeaderLen is the exact size of an encoded frame header.
const HeaderLen = 6

// MaxPayloadSize is the largest payload a header can declare.
const MaxPayloadSize = 65535

// Header prefixes every frame on the wire.
type Header struct {
	Length uint16
	Format DataFormat
}

// Frame is one complete header+payload unit.
type Frame struct {
	Header  Header
	Payload []byte
}

// RaceState is the per-player progression through one race.
type RaceState uint32

const (
	StateDefault RaceState = iota
	StateReady
	StateLoading
	StateLoaded
	StateStarting
	StateStarted
	StateRunning
	StateRetired
	StateFinished
)

func (s RaceState) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateRunning:
		return "running"
	case StateRetired:
		return "retired"
	case StateFinished:
		return "finished"
	default:
		return "default"
	}
}

// RoomState is the derived room visibility shown in the race list.
type RoomState uint32

const (
	RoomFree RoomState = iota
	RoomFull
	RoomLocked
	RoomRaceOn
)

func (s RoomState) String() string {
	switch s {
	case RoomFull:
		return "full"
	case RoomLocked:
		return "locked"
	case RoomRaceOn:
		return "racing"
	default:
		return "free"
	}
}

// RaceCmdKind selects the action a RaceCmd frame orders.
type RaceCmdKind uint32

const (
	CmdPrepare RaceCmdKind = iota + 1
	CmdLoad
	CmdStart
	CmdUpload
)

// RaceCmd is sent by the server to drive every player through the race
// lifecycle. Info is populated only for CmdPrepare.
type RaceCmd struct {
	Kind RaceCmdKind `json:"kind"`
	Info *RaceInfo   `json:"info,omitempty"`
}

// RaceAccess binds an inbound TCP stream to a player inside a named session.
type RaceAccess struct {
	Token string `json:"token"`
	Room  string `json:"room"`
}

// RaceJoin is a request to join a room, optionally carrying its password.
type RaceJoin struct {
	Token  string  `json:"token"`
	Room   string  `json:"room"`
	Passwd *string `json:"passwd,omitempty"`
}

// RaceLeave removes a player from a room.
type RaceLeave struct {
	Token string `json:"token"`
	Room  string `json:"room"`
}

// RaceUpdate reports a player's race state change.
type RaceUpdate struct {
	Token string    `json:"token"`
	Room  string    `json:"room"`
	State RaceState `json:"state"`
}

// MetaRaceData is one telemetry upload from a running player.
type MetaRaceData struct {
	Token      string  `json:"token"`
	Room       string  `json:"room"`
	Speed      float64 `json:"speed"`
	RaceTime   float64 `json:"racetime"`
	Progress   float64 `json:"progress"`
	StageLen   float64 `json:"stagelen"`
	SplitTime1 float64 `json:"splittime1"`
	SplitTime2 float64 `json:"splittime2"`
	FinishTime float64 `json:"finishtime"`
}

// MetaRaceState pairs a player name with their current race state.
type MetaRaceState struct {
	Name  string    `json:"name"`
	State RaceState `json:"state"`
}

// MetaRaceProgress is one row of the live ranking broadcast while racing.
type MetaRaceProgress struct {
	Name      string  `json:"name"`
	Progress  float64 `json:"progress"`
	DiffFirst float64 `json:"difffirst"`
}

// MetaRaceResult is one row of the final ranking broadcast after the race.
type MetaRaceResult struct {
	Name       string  `json:"name"`
	RaceCar    string  `json:"racecar"`
	SplitTime1 float64 `json:"splittime1"`
	SplitTime2 float64 `json:"splittime2"`
	FinishTime float64 `json:"finishtime"`
	DiffTime   float64 `json:"difftime"`
	Score      int     `json:"score"`
}

// MetaRaceRidicule names the players who just overtook the recipient.
type MetaRaceRidicule struct {
	Players []string `json:"players"`
}

// RaceInfo is a room's race configuration, immutable once a race starts.
type RaceInfo struct {
	Name      string  `json:"name"`
	Owner     string  `json:"owner"`
	Stage     string  `json:"stage"`
	StageID   uint32  `json:"stage_id"`
	StageType string  `json:"stage_type"`
	StageLen  float64 `json:"stage_len"`
	CarFixed  bool    `json:"car_fixed"`
	Car       string  `json:"car"`
	CarID     uint32  `json:"car_id"`
	Damage    uint32  `json:"damage"`
	Weather   uint32  `json:"weather"`
	Wetness   uint32  `json:"wetness"`
	SkyType   string  `json:"skytype"`
	SkyTypeID uint32  `json:"skytype_id"`
}

// RaceConfig is one player's own car/setup selection within a room.
type RaceConfig struct {
	Car     string `json:"car"`
	CarID   uint32 `json:"car_id"`
	Tyre    uint32 `json:"tyre"`
	Setup   string `json:"setup"`
	SetupID uint32 `json:"setup_id"`
}

// RaceBrief is the race-list row served by the REST facade.
type RaceBrief struct {
	Name    string    `json:"name"`
	Stage   string    `json:"stage"`
	Owner   string    `json:"owner"`
	Players int       `json:"players"`
	State   RoomState `json:"state"`
}

// UserLogin is the REST login request.
type UserLogin struct {
	Name   string `json:"name"`
	Passwd string `json:"passwd"`
}

// UserQuery carries a session token for token-keyed REST lookups.
type UserQuery struct {
	Token string `json:"token"`
}

// UserScore is a player's persisted score and license grade.
type UserScore struct {
	Name    string `json:"name"`
	License string `json:"license"`
	Score   int    `json:"score"`
}

// RaceQuery names a room for room-keyed REST lookups.
type RaceQuery struct {
	Name string `json:"name"`
}

// RaceCreate is the REST request to create a customize room.
type RaceCreate struct {
	Token  string   `json:"token"`
	Info   RaceInfo `json:"info"`
	Locked bool     `json:"locked"`
	Passwd *string  `json:"passwd,omitempty"`
}

// RaceInfoUpdate replaces a room's race configuration.
type RaceInfoUpdate struct {
	Token string   `json:"token"`
	Info  RaceInfo `json:"info"`
}

// RaceConfigUpdate replaces one player's own race config.
type RaceConfigUpdate struct {
	Token string     `json:"token"`
	Cfg   RaceConfig `json:"cfg"`
}
