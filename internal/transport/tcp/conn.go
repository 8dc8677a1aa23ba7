// Package tcp provides the raw TCP stream transport for chat sessions.
package tcp

import (
	"context"
	"errors"
	"io"
	"net"
)

// readBufferSize is the chunk size of one Read.
const readBufferSize = 4096

// Conn adapts net.Conn to chat.Conn interface.
type Conn struct {
	conn   net.Conn
	reader io.Reader
	buf    []byte
}

// NewConn wraps a net.Conn.
func NewConn(conn net.Conn) *Conn {
	return NewConnWithReader(conn, conn)
}

// NewConnWithReader wraps a net.Conn whose first bytes were already
// buffered by reader, e.g. after protocol detection.
func NewConnWithReader(conn net.Conn, reader io.Reader) *Conn {
	return &Conn{
		conn:   conn,
		reader: reader,
		buf:    make([]byte, readBufferSize),
	}
}

// Read implements chat.Conn.
// Reads available bytes from the TCP connection. The returned slice is a
// copy and stays valid after the next Read.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	n, err := c.reader.Read(c.buf)
	if n > 0 {
		out := make([]byte, n)
		copy(out, c.buf[:n])
		return out, err
	}
	return nil, err
}

// Write implements chat.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
		defer func() { _ = c.conn.SetWriteDeadline(noDeadline) }()
	}
	_, err := c.conn.Write(data)
	return err
}

type halfCloser interface {
	CloseRead() error
	CloseWrite() error
}

// Shutdown implements chat.Conn.
// Half-closes both directions when the underlying stream supports it.
func (c *Conn) Shutdown() error {
	hc, ok := c.conn.(halfCloser)
	if !ok {
		return nil
	}
	return errors.Join(hc.CloseWrite(), hc.CloseRead())
}

// Close implements chat.Conn.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
