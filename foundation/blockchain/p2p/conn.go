package p2p

import (
	"net"
	"time"
)

// Timeouts governing the lifetime of a connection, per the network
// protocol's stall-detection rules.
const (
	HandshakeTimeout = 10 * time.Second
	ReadIdleTimeout  = 60 * time.Second
	ResponseTimeout  = 30 * time.Second
	SyncStallTimeout = 120 * time.Second
)

// Conn wraps a net.Conn with framed message read/write and the idle-ping
// bookkeeping the sync state machine relies on.
type Conn struct {
	raw net.Conn
}

// NewConn wraps an established TCP connection for framed messaging.
func NewConn(raw net.Conn) *Conn {
	return &Conn{raw: raw}
}

// Send writes one framed message, enforcing ResponseTimeout as the write
// deadline.
func (c *Conn) Send(msg Message) error {
	if err := c.raw.SetWriteDeadline(time.Now().Add(ResponseTimeout)); err != nil {
		return err
	}
	return WriteMessage(c.raw, msg)
}

// Receive reads one framed message, enforcing ReadIdleTimeout as the read
// deadline. A timeout here means the peer has gone quiet and the caller
// should send a ping before giving up on the connection.
func (c *Conn) Receive() (Message, error) {
	if err := c.raw.SetReadDeadline(time.Now().Add(ReadIdleTimeout)); err != nil {
		return Message{}, err
	}
	return ReadMessage(c.raw)
}

// ReceiveWithin reads one framed message with a caller-supplied deadline,
// used for bounded request/response exchanges like get_block/get_tx.
func (c *Conn) ReceiveWithin(d time.Duration) (Message, error) {
	if err := c.raw.SetReadDeadline(time.Now().Add(d)); err != nil {
		return Message{}, err
	}
	return ReadMessage(c.raw)
}

// RemoteAddr returns the address of the peer on the other end.
func (c *Conn) RemoteAddr() string {
	return c.raw.RemoteAddr().String()
}

// Close tears down the underlying connection.
func (c *Conn) Close() error {
	return c.raw.Close()
}
