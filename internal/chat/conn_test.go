package chat_test

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/iamr8/ChatConsole/internal/chat"
)

// mockConn is a mock implementation of chat.Conn for testing.
type mockConn struct {
	readCh     chan []byte
	readErr    chan error
	writtenMu  sync.Mutex
	written    [][]byte
	writeErr   error
	closeOnce  sync.Once
	closed     chan struct{}
	shutdowns  int
	remoteAddr string
}

func newMockConn(addr string) *mockConn {
	return &mockConn{
		readCh:     make(chan []byte, 10),
		readErr:    make(chan error, 1),
		closed:     make(chan struct{}),
		remoteAddr: addr,
	}
}

func (m *mockConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.closed:
		return nil, errors.New("use of closed connection")
	case err := <-m.readErr:
		return nil, err
	case data, ok := <-m.readCh:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	}
}

func (m *mockConn) Write(ctx context.Context, data []byte) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	select {
	case <-m.closed:
		return errors.New("use of closed connection")
	default:
	}
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	m.written = append(m.written, copied)
	return nil
}

func (m *mockConn) Shutdown() error {
	m.writtenMu.Lock()
	m.shutdowns++
	m.writtenMu.Unlock()
	return nil
}

func (m *mockConn) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

func (m *mockConn) RemoteAddr() string {
	return m.remoteAddr
}

func (m *mockConn) GetWritten() [][]byte {
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	return m.written
}

func (m *mockConn) Shutdowns() int {
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	return m.shutdowns
}

// Compile-time check that mockConn implements chat.Conn
var _ chat.Conn = (*mockConn)(nil)
