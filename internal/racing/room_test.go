package racing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrally/rallyd/internal/protocol"
)

type captureConn struct {
	frames chan []byte
}

func newCaptureConn() *captureConn {
	return &captureConn{frames: make(chan []byte, 16)}
}

func (c *captureConn) WriteFrame(frame []byte) error {
	c.frames <- frame
	return nil
}

func (c *captureConn) next(t *testing.T) protocol.Frame {
	t.Helper()
	select {
	case raw := <-c.frames:
		head := protocol.ParseHeader(raw[:protocol.HeaderLen])
		return protocol.Frame{Header: head, Payload: raw[protocol.HeaderLen:]}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame arrived")
		return protocol.Frame{}
	}
}

type recordSink struct {
	mu    sync.Mutex
	saved [][]protocol.MetaRaceResult
}

func (s *recordSink) SaveRaceResults(results []protocol.MetaRaceResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, results)
}

// waitSaved blocks until the first results batch lands, since the room
// hands persistence off to a goroutine.
func (s *recordSink) waitSaved(t *testing.T) [][]protocol.MetaRaceResult {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		if len(s.saved) > 0 {
			saved := s.saved
			s.mu.Unlock()
			return saved
		}
		s.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no results persisted")
	return nil
}

func seatPlayer(r *RaceRoom, token, name string) *RacePlayer {
	p := NewRacePlayer(NewLobbyPlayer(token, name))
	r.Push(p)
	return p
}

func setAll(r *RaceRoom, state protocol.RaceState) {
	for _, p := range r.Players {
		p.State = state
	}
}

func TestRoomLifecycleFullAdvance(t *testing.T) {
	sink := &recordSink{}
	room := NewRaceRoom(sink)
	room.Info = protocol.RaceInfo{Name: "evening run", StageLen: 1000}
	seatPlayer(room, "t1", "alice")
	seatPlayer(room, "t2", "bob")

	require.True(t, room.StartRace())
	assert.Equal(t, RoomRaceBegin, room.RaceState)
	assert.False(t, room.StartRace(), "starting twice must be rejected")

	room.Advance()
	assert.Equal(t, RoomRaceBegin, room.RaceState, "waits until everyone is ready")

	setAll(room, protocol.StateReady)
	room.Advance()
	assert.Equal(t, RoomRaceReady, room.RaceState)

	room.Advance()
	assert.Equal(t, RoomRaceLoading, room.RaceState)

	setAll(room, protocol.StateLoaded)
	room.Advance()
	assert.Equal(t, RoomRaceLoaded, room.RaceState)

	room.Advance()
	assert.Equal(t, RoomRaceStarting, room.RaceState)

	setAll(room, protocol.StateStarted)
	room.Advance()
	assert.Equal(t, RoomRaceStarted, room.RaceState)

	room.Advance()
	assert.Equal(t, RoomRaceRunning, room.RaceState)

	room.Players[0].State = protocol.StateFinished
	room.Players[1].State = protocol.StateRetired
	room.Advance()
	assert.Equal(t, RoomRaceFinished, room.RaceState)

	room.Advance()
	assert.Equal(t, RoomRaceEnd, room.RaceState)
	saved := sink.waitSaved(t)
	require.Len(t, saved, 1, "results persisted exactly once")
	assert.Len(t, saved[0], 2)

	room.Advance()
	assert.Equal(t, RoomRaceInit, room.RaceState)
}

// driveToRunning walks a started room through the pre-race phases.
func driveToRunning(t *testing.T, room *RaceRoom) {
	t.Helper()
	require.True(t, room.StartRace())
	setAll(room, protocol.StateReady)
	room.Advance()
	room.Advance()
	setAll(room, protocol.StateLoaded)
	room.Advance()
	room.Advance()
	setAll(room, protocol.StateStarted)
	room.Advance()
	room.Advance()
	require.Equal(t, RoomRaceRunning, room.RaceState)
}

func TestAdvanceRanksResultsByFinishTime(t *testing.T) {
	sink := &recordSink{}
	room := NewRaceRoom(sink)
	room.Info = protocol.RaceInfo{Name: "hill sprint", StageLen: 1000}
	alice := seatPlayer(room, "t1", "alice")
	bob := seatPlayer(room, "t2", "bob")
	driveToRunning(t, room)

	// alice leads on distance but bob posts the faster time, so the
	// running ticks leave the seats ordered alice-first.
	alice.Data = protocol.MetaRaceData{Progress: 900, StageLen: 1000, FinishTime: 121.5}
	bob.Data = protocol.MetaRaceData{Progress: 800, StageLen: 1000, FinishTime: 119.0}
	room.Advance()
	require.Equal(t, RoomRaceRunning, room.RaceState)

	setAll(room, protocol.StateFinished)
	room.Advance()
	require.Equal(t, RoomRaceFinished, room.RaceState)

	room.Advance()
	require.Equal(t, RoomRaceEnd, room.RaceState)
	saved := sink.waitSaved(t)
	require.Len(t, saved, 1)
	rows := saved[0]
	require.Len(t, rows, 2)

	assert.Equal(t, "bob", rows[0].Name)
	assert.Equal(t, 6, rows[0].Score)
	assert.InDelta(t, 0.0, rows[0].DiffTime, 1e-9)

	assert.Equal(t, "alice", rows[1].Name)
	assert.Equal(t, 3, rows[1].Score)
	assert.InDelta(t, 2.5, rows[1].DiffTime, 1e-9)
}

func TestBroadcastSnapshotsWriteHandles(t *testing.T) {
	room := NewRaceRoom(nil)
	p := seatPlayer(room, "t1", "alice")
	conn := newCaptureConn()
	p.Conn = conn

	room.broadcast(protocol.FmtSyncRaceNotice, "hello")
	// Detach right after, as the registry does when the socket closes.
	// The fan-out goroutine must use the handle captured at call time.
	p.Conn = nil

	frame := conn.next(t)
	assert.Equal(t, protocol.FmtSyncRaceNotice, frame.Header.Format)
}

func TestRoomStartRaceEmptyRejected(t *testing.T) {
	room := NewRaceRoom(nil)
	assert.False(t, room.StartRace())
	assert.Equal(t, RoomRaceInit, room.RaceState)
}

func TestRoomEmptiedMidRaceResets(t *testing.T) {
	room := NewRaceRoom(nil)
	seatPlayer(room, "t1", "alice")
	require.True(t, room.StartRace())

	room.Pop("t1")
	room.Advance()
	assert.Equal(t, RoomRaceInit, room.RaceState)
}

func TestRoomStartBroadcastsPrepare(t *testing.T) {
	room := NewRaceRoom(nil)
	room.Info = protocol.RaceInfo{Name: "night stage", Stage: "Foxhill"}
	p := seatPlayer(room, "t1", "alice")
	conn := newCaptureConn()
	p.Conn = conn

	require.True(t, room.StartRace())

	frame := conn.next(t)
	assert.Equal(t, protocol.FmtRaceCommand, frame.Header.Format)
	var cmd protocol.RaceCmd
	require.NoError(t, protocol.DecodeBody(frame, &cmd))
	assert.Equal(t, protocol.CmdPrepare, cmd.Kind)
	require.NotNil(t, cmd.Info)
	assert.Equal(t, "Foxhill", cmd.Info.Stage)
}

func TestRaceProgressGapToLeader(t *testing.T) {
	room := NewRaceRoom(nil)
	room.Info.StageLen = 1000

	for _, tc := range []struct {
		name     string
		progress float64
	}{
		{"alice", 100}, {"bob", 80}, {"carol", 60},
	} {
		p := seatPlayer(room, tc.name, tc.name)
		p.Data = protocol.MetaRaceData{
			Progress: tc.progress,
			StageLen: 1000,
			Speed:    36,
		}
	}

	room.SortByProgress()
	rows := room.RaceProgress()
	require.Len(t, rows, 3)

	assert.Equal(t, "alice", rows[0].Name)
	assert.InDelta(t, 0.0, rows[0].DiffFirst, 1e-9)
	assert.InDelta(t, 2.0, rows[1].DiffFirst, 1e-9)
	assert.InDelta(t, 4.0, rows[2].DiffFirst, 1e-9)
}

func TestRaceProgressStationaryPlayerUsesNominalSpeed(t *testing.T) {
	room := NewRaceRoom(nil)
	room.Info.StageLen = 1000

	leader := seatPlayer(room, "t1", "alice")
	leader.Data = protocol.MetaRaceData{Progress: 100, StageLen: 1000, Speed: 36}
	stopped := seatPlayer(room, "t2", "bob")
	stopped.Data = protocol.MetaRaceData{Progress: 50, StageLen: 1000, Speed: 0}

	room.SortByProgress()
	rows := room.RaceProgress()
	require.Len(t, rows, 2)
	// 50 m behind at the 10 km/h fallback pace.
	assert.InDelta(t, 18.0, rows[1].DiffFirst, 1e-9)
}

func TestRaceResultScoresAndDiffTime(t *testing.T) {
	room := NewRaceRoom(nil)

	times := map[string]float64{"alice": 121.5, "bob": 119.0, "carol": 130.2}
	for name, ft := range times {
		p := seatPlayer(room, name, name)
		p.Data.FinishTime = ft
		p.Cfg.Car = "Group B"
	}

	room.SortByFinishTime()
	rows := room.RaceResult()
	require.Len(t, rows, 3)

	assert.Equal(t, "bob", rows[0].Name)
	assert.Equal(t, 9, rows[0].Score)
	assert.InDelta(t, 0.0, rows[0].DiffTime, 1e-9)

	assert.Equal(t, "alice", rows[1].Name)
	assert.Equal(t, 6, rows[1].Score)
	assert.InDelta(t, 2.5, rows[1].DiffTime, 1e-9)

	assert.Equal(t, "carol", rows[2].Name)
	assert.Equal(t, 3, rows[2].Score)
	assert.InDelta(t, 11.2, rows[2].DiffTime, 1e-9)
}

func TestRaceResultDNFPenalty(t *testing.T) {
	room := NewRaceRoom(nil)

	finisher := seatPlayer(room, "t1", "alice")
	finisher.Data.FinishTime = 140.0
	dnf := seatPlayer(room, "t2", "bob")
	dnf.Data.FinishTime = 3600.0

	room.SortByFinishTime()
	rows := room.RaceResult()
	require.Len(t, rows, 2)
	assert.Equal(t, 6, rows[0].Score)
	assert.Equal(t, -5, rows[1].Score)
}

func TestGuessRemainSeconds(t *testing.T) {
	room := NewRaceRoom(nil)
	room.Info.StageLen = 4000

	p := seatPlayer(room, "t1", "alice")
	p.Data = protocol.MetaRaceData{Progress: 2000, StageLen: 4000}

	// 2000 m left at 80 km/h.
	assert.Equal(t, 90, room.GuessRemainSeconds())
}

func TestUpdateVisibility(t *testing.T) {
	room := NewRaceRoom(nil)
	room.SetLimit(1)

	room.UpdateVisibility()
	assert.Equal(t, protocol.RoomFree, room.RoomState)

	room.SetPasswd("hunter2")
	room.UpdateVisibility()
	assert.Equal(t, protocol.RoomLocked, room.RoomState)

	room.SetPasswd("")
	seatPlayer(room, "t1", "alice")
	room.UpdateVisibility()
	assert.Equal(t, protocol.RoomFull, room.RoomState)

	require.True(t, room.StartRace())
	room.UpdateVisibility()
	assert.Equal(t, protocol.RoomRaceOn, room.RoomState)
}

func TestRoomPruneDropsStaleTokens(t *testing.T) {
	room := NewRaceRoom(nil)
	seatPlayer(room, "t1", "alice")
	seatPlayer(room, "t2", "bob")

	room.Prune(func(token string) bool { return token == "t2" })
	require.Len(t, room.Players, 1)
	assert.Equal(t, "bob", room.Players[0].Name)
}
