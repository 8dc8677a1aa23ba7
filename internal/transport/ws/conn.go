// Package ws provides the WebSocket transport for chat sessions, built on
// gobwas/ws. Each WebSocket message carries raw chat bytes; framing is still
// done by the chat protocol.
package ws

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Side selects the masking rules of the local endpoint.
type Side int

const (
	SideClient Side = iota
	SideServer
)

// Conn adapts a WebSocket stream to chat.Conn interface.
type Conn struct {
	conn   net.Conn
	reader *wsutil.Reader
	side   Side
	state  ws.State
	closed sync.Once

	// writeMu covers data frames, the close frame and the control replies
	// written from the read side, so frames never interleave on the wire.
	writeMu sync.Mutex
}

type readWriter struct {
	io.Reader
	io.Writer
}

// NewConn wraps an established WebSocket connection. reader, when not nil,
// holds bytes already buffered during the handshake.
func NewConn(conn net.Conn, reader *bufio.Reader, side Side) *Conn {
	var src io.Reader = conn
	if reader != nil {
		src = reader
	}
	state := ws.StateClientSide
	if side == SideServer {
		state = ws.StateServerSide
	}
	c := &Conn{conn: conn, side: side, state: state}
	c.reader = &wsutil.Reader{
		Source:         src,
		State:          state,
		CheckUTF8:      true,
		OnIntermediate: c.control,
	}
	return c
}

// Read implements chat.Conn.
// Reads the payload of the next data message; control frames are answered
// internally. A close frame from the peer reads as io.EOF.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	for {
		hdr, err := c.reader.NextFrame()
		if err != nil {
			return nil, err
		}
		if hdr.OpCode.IsControl() {
			if err := c.control(hdr, c.reader); err != nil {
				var closed wsutil.ClosedError
				if errors.As(err, &closed) {
					return nil, io.EOF
				}
				return nil, err
			}
			continue
		}
		if hdr.OpCode&ws.OpText == 0 && hdr.OpCode&ws.OpBinary == 0 {
			if err := c.reader.Discard(); err != nil {
				return nil, err
			}
			continue
		}
		return io.ReadAll(c.reader)
	}
}

// control answers ping and close frames under the write lock.
func (c *Conn) control(hdr ws.Header, r io.Reader) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.ControlFrameHandler(c.conn, c.state)(hdr, r)
}

// Write implements chat.Conn.
// Sends data as one text message.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteMessage(c.conn, c.state, ws.OpText, data)
}

// Shutdown implements chat.Conn.
// Sends a normal-closure close frame once.
func (c *Conn) Shutdown() error {
	var err error
	c.closed.Do(func() {
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		err = wsutil.WriteMessage(c.conn, c.state, ws.OpClose, body)
	})
	return err
}

// Close implements chat.Conn.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
