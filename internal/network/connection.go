// Package network implements the TCP listener and per-player connection
// handling for the persistent binary protocol stream.
package network

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openrally/rallyd/internal/util"
)

const writeTimeout = 10 * time.Second

// Connection wraps one player's TCP stream. Each client keeps a single
// persistent connection for race commands and telemetry; the write half is
// shared between the tick loop's broadcasts and must be serialized.
type Connection struct {
	mu     sync.Mutex
	conn   net.Conn
	logger zerolog.Logger

	connectedAt  time.Time
	lastActivity time.Time

	closed bool
}

// NewConnection wraps an existing net.Conn.
func NewConnection(conn net.Conn) *Connection {
	now := time.Now()
	return &Connection{
		conn:         conn,
		connectedAt:  now,
		lastActivity: now,
		logger:       util.ComponentLogger("connection").With().Str("remote", conn.RemoteAddr().String()).Logger(),
	}
}

// Read pulls raw bytes off the stream for the frame decoder.
func (c *Connection) Read(buf []byte) (int, error) {
	n, err := c.conn.Read(buf)
	if err != nil {
		return n, err
	}

	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()

	return n, nil
}

// WriteFrame sends an already encoded frame. Implements racing.FrameWriter.
func (c *Connection) WriteFrame(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("connection is closed")
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	c.lastActivity = time.Now()
	return nil
}

// Close closes the connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.logger.Info().Msg("connection closed")
	return c.conn.Close()
}

// IsClosed returns whether the connection has been closed.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// LastActivity returns the time of the last read/write activity.
func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// ConnectedAt returns the time the connection was established.
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// RemoteAddr returns the remote address of the connection.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
