package network

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrally/rallyd/internal/protocol"
	"github.com/openrally/rallyd/internal/racing"
)

type stubRouter struct {
	mu       sync.Mutex
	accesses []protocol.RaceAccess
	states   []protocol.RaceUpdate
	uploads  []protocol.MetaRaceData
	detached int
}

func (r *stubRouter) Access(access protocol.RaceAccess, w racing.FrameWriter) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accesses = append(r.accesses, access)
	return true
}

func (r *stubRouter) UpdatePlayerState(upd protocol.RaceUpdate) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, upd)
	return true
}

func (r *stubRouter) UpdatePlayerData(data protocol.MetaRaceData) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads = append(r.uploads, data)
	return true
}

func (r *stubRouter) Detach(w racing.FrameWriter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detached++
}

func (r *stubRouter) snapshot() (int, int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accesses), len(r.states), len(r.uploads), r.detached
}

func encodeOrDie(t *testing.T, format protocol.DataFormat, body any) []byte {
	t.Helper()
	frame, err := protocol.Encode(format, body)
	require.NoError(t, err)
	return frame
}

func runHandler(router *stubRouter, server net.Conn) chan struct{} {
	l := NewTCPListener("", router)
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.handleConnection(context.Background(), server)
	}()
	return done
}

func waitDone(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not exit")
	}
}

func TestHandleConnectionRoutesFrames(t *testing.T) {
	client, server := net.Pipe()
	router := &stubRouter{}
	done := runHandler(router, server)

	var payload []byte
	payload = append(payload, encodeOrDie(t, protocol.FmtUserAccess,
		&protocol.RaceAccess{Token: "t1", Room: "room"})...)
	payload = append(payload, encodeOrDie(t, protocol.FmtUpdateState,
		&protocol.RaceUpdate{Token: "t1", Room: "room", State: protocol.StateReady})...)
	payload = append(payload, encodeOrDie(t, protocol.FmtUploadData,
		&protocol.MetaRaceData{Token: "t1", Room: "room", Progress: 42})...)

	// Dribble bytes to exercise reassembly across short reads.
	for _, b := range payload {
		_, err := client.Write([]byte{b})
		require.NoError(t, err)
	}
	client.Close()
	waitDone(t, done)

	accesses, states, uploads, detached := router.snapshot()
	assert.Equal(t, 1, accesses)
	assert.Equal(t, 1, states)
	assert.Equal(t, 1, uploads)
	assert.Equal(t, 1, detached, "seat released when the stream closes")

	require.Len(t, router.uploads, 1)
	assert.Equal(t, 42.0, router.uploads[0].Progress)
}

func TestHandleConnectionClosesOnMalformedPayload(t *testing.T) {
	client, server := net.Pipe()
	router := &stubRouter{}
	done := runHandler(router, server)

	// Valid header declaring a payload that is not the expected shape.
	junk := []byte(`[1,2,3]`)
	head := make([]byte, protocol.HeaderLen)
	protocol.PutHeader(head, protocol.Header{
		Length: uint16(len(junk)),
		Format: protocol.FmtUserAccess,
	})
	_, err := client.Write(append(head, junk...))
	require.NoError(t, err)

	waitDone(t, done)
	_, _, _, detached := router.snapshot()
	assert.Equal(t, 1, detached)
}

func TestHandleConnectionIgnoresUnknownFormat(t *testing.T) {
	client, server := net.Pipe()
	router := &stubRouter{}
	done := runHandler(router, server)

	unknown := encodeOrDie(t, protocol.DataFormat(0x7777), "whatever")
	known := encodeOrDie(t, protocol.FmtUpdateState,
		&protocol.RaceUpdate{Token: "t1", Room: "room", State: protocol.StateFinished})

	_, err := client.Write(append(unknown, known...))
	require.NoError(t, err)
	client.Close()
	waitDone(t, done)

	_, states, _, _ := router.snapshot()
	assert.Equal(t, 1, states, "stream survives unknown formats")
}

func TestConnectionWriteFrameAfterClose(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	conn := NewConnection(server)
	require.NoError(t, conn.Close())
	assert.True(t, conn.IsClosed())
	assert.Error(t, conn.WriteFrame([]byte{1, 2, 3}))
}
