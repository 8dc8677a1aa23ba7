package tcp

import (
	"context"
	"fmt"
	"net"
	"time"
)

var noDeadline time.Time

// Listener binds the chat endpoint and hands out accepted streams.
type Listener struct {
	listener net.Listener
}

// Listen binds addr.
func Listen(ctx context.Context, addr *net.TCPAddr) (*Listener, error) {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr.String())
	if err != nil {
		return nil, fmt.Errorf("failed to start TCP listener: %w", err)
	}
	return &Listener{listener: listener}, nil
}

// Accept waits for one inbound stream. Cancelling ctx closes the listener.
func (l *Listener) Accept(ctx context.Context) (net.Conn, error) {
	stop := context.AfterFunc(ctx, func() { l.listener.Close() })
	defer stop()

	conn, err := l.listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return conn, nil
}

// Close stops listening.
func (l *Listener) Close() error {
	return l.listener.Close()
}

// Addr returns the listening address.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Dial opens an outbound stream to addr.
func Dial(ctx context.Context, addr *net.TCPAddr) (*Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return NewConn(conn), nil
}
