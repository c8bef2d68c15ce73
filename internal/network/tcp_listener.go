package network

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog/log"

	"github.com/openrally/rallyd/internal/protocol"
	"github.com/openrally/rallyd/internal/racing"
)

// readBufSize is the per-connection read buffer; frames larger than one
// buffer are reassembled by the stream decoder.
const readBufSize = 1024

// Router dispatches decoded frames into the session registry.
type Router interface {
	Access(access protocol.RaceAccess, w racing.FrameWriter) bool
	UpdatePlayerState(upd protocol.RaceUpdate) bool
	UpdatePlayerData(data protocol.MetaRaceData) bool
	Detach(w racing.FrameWriter)
}

// TCPListener accepts the persistent player streams. Clients connect once
// after joining a race and keep the socket open for commands, state
// reports and telemetry.
type TCPListener struct {
	addr     string
	router   Router
	listener net.Listener
}

// NewTCPListener creates a listener bound to addr on Start.
func NewTCPListener(addr string, router Router) *TCPListener {
	return &TCPListener{addr: addr, router: router}
}

// Start begins accepting player connections until ctx is cancelled.
func (l *TCPListener) Start(ctx context.Context) error {
	// SO_REUSEADDR allows immediate rebinding after restart
	lc := ReuseAddrListenConfig()
	var err error
	l.listener, err = lc.Listen(ctx, "tcp", l.addr)
	if err != nil {
		return fmt.Errorf("failed to start TCP listener on %s: %w", l.addr, err)
	}

	log.Info().Str("addr", l.addr).Msg("TCP listener started")

	go func() {
		<-ctx.Done()
		l.listener.Close()
	}()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				log.Info().Msg("TCP listener stopping")
				return nil
			default:
				log.Error().Err(err).Msg("failed to accept connection")
				continue
			}
		}

		log.Debug().
			Str("remote", conn.RemoteAddr().String()).
			Msg("new player connection")

		go l.handleConnection(ctx, conn)
	}
}

// handleConnection reads one player stream, reassembling frames and
// routing them until the socket closes or a frame fails to parse. Bytes
// of a trailing partial frame are discarded with the connection.
func (l *TCPListener) handleConnection(ctx context.Context, rawConn net.Conn) {
	conn := NewConnection(rawConn)
	defer conn.Close()
	defer l.router.Detach(conn)

	logger := log.With().
		Str("component", "tcp_handler").
		Str("remote", rawConn.RemoteAddr().String()).
		Logger()

	var decoder protocol.StreamDecoder
	buf := make([]byte, readBufSize)

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("context cancelled, closing connection")
			return
		default:
		}

		n, err := conn.Read(buf)
		if err != nil {
			if conn.IsClosed() {
				return
			}
			logger.Debug().Err(err).Msg("stream ended")
			return
		}

		for _, frame := range decoder.Feed(buf[:n]) {
			if err := l.dispatch(conn, frame); err != nil {
				logger.Warn().Err(err).Msg("closing connection on bad frame")
				return
			}
		}
	}
}

// dispatch routes one decoded frame. A payload that fails to parse is a
// protocol violation and errors the connection; an access for an unknown
// session is silently ignored so the client may retry after joining.
func (l *TCPListener) dispatch(conn *Connection, frame protocol.Frame) error {
	switch frame.Header.Format {
	case protocol.FmtUserAccess:
		var access protocol.RaceAccess
		if err := protocol.DecodeBody(frame, &access); err != nil {
			return err
		}
		l.router.Access(access, conn)
	case protocol.FmtUpdateState:
		var upd protocol.RaceUpdate
		if err := protocol.DecodeBody(frame, &upd); err != nil {
			return err
		}
		l.router.UpdatePlayerState(upd)
	case protocol.FmtUploadData:
		var data protocol.MetaRaceData
		if err := protocol.DecodeBody(frame, &data); err != nil {
			return err
		}
		l.router.UpdatePlayerData(data)
	default:
		log.Warn().Uint32("format", uint32(frame.Header.Format)).Msg("ignoring unexpected frame format")
	}
	return nil
}

// Stop gracefully stops the TCP listener.
func (l *TCPListener) Stop() error {
	if l.listener != nil {
		return l.listener.Close()
	}
	return nil
}
