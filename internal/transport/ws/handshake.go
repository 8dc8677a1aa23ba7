package ws

import (
	"bufio"
	"context"
	"fmt"
	"net"

	"github.com/gobwas/ws"
)

// Path is the request path clients dial.
const Path = "/chat"

// Dial performs the client handshake against addr.
func Dial(ctx context.Context, addr *net.TCPAddr) (*Conn, error) {
	url := "ws://" + addr.String() + Path
	conn, reader, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	return NewConn(conn, reader, SideClient), nil
}

// Upgrade performs the server handshake on an accepted stream. reader must
// be the buffered reader the request bytes were peeked through.
func Upgrade(conn net.Conn, reader *bufio.Reader) (*Conn, error) {
	rw := readWriter{Reader: reader, Writer: conn}
	if _, err := ws.Upgrade(rw); err != nil {
		return nil, fmt.Errorf("failed to upgrade WebSocket connection: %w", err)
	}
	return NewConn(conn, reader, SideServer), nil
}
