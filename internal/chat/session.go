package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iamr8/ChatConsole/pkg/protocol"
)

// State is the lifecycle stage of a Session.
type State int32

const (
	StateCreated State = iota
	StateConnecting
	StateListening
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateConnecting:
		return "Connecting"
	case StateListening:
		return "Listening"
	case StateOpen:
		return "Open"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

var errSessionClosed = errors.New("chat: session closed")

// shutdownGrace bounds how long Shutdown waits for an in-flight send.
const shutdownGrace = 250 * time.Millisecond

// Handler receives every user-visible message the session decodes. It runs
// on the receive loop, so it must not call Close.
type Handler func(Entry)

type Option func(*Session)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) { s.log = log }
}

func WithHandler(h Handler) Option {
	return func(s *Session) { s.handler = h }
}

// WithClock replaces time.Now for backlog timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithMaxFrameBytes bounds the bytes buffered while waiting for a frame
// marker. Zero keeps protocol.DefaultMaxFrameBytes.
func WithMaxFrameBytes(n int) Option {
	return func(s *Session) { s.maxFrameBytes = n }
}

// Session owns one connection, its receive loop and its backlog.
type Session struct {
	id            uuid.UUID
	alias         string
	log           zerolog.Logger
	handler       Handler
	now           func() time.Time
	maxFrameBytes int
	backlog       *Backlog

	mu     sync.RWMutex
	state  State
	conn   Conn
	cancel context.CancelFunc

	// writeMu keeps frames from interleaving on the wire.
	writeMu sync.Mutex

	directivesMu sync.RWMutex
	directives   map[string]string

	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSession creates a session in the Created state.
func NewSession(alias string, opts ...Option) *Session {
	s := &Session{
		id:         uuid.New(),
		alias:      alias,
		log:        zerolog.Nop(),
		now:        time.Now,
		backlog:    NewBacklog(),
		directives: make(map[string]string),
		closing:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("session", s.id.String()).Str("alias", alias).Logger()
	return s
}

func (s *Session) Backlog() *Backlog {
	return s.backlog
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) IsOpen() bool {
	return s.State() == StateOpen
}

// RemoteAddr returns the peer address, or "" before Open.
func (s *Session) RemoteAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return ""
	}
	return s.conn.RemoteAddr()
}

// Directive returns a control value announced by the peer.
func (s *Session) Directive(key string) (string, bool) {
	s.directivesMu.RLock()
	defer s.directivesMu.RUnlock()
	v, ok := s.directives[key]
	return v, ok
}

// Begin moves a Created session to Connecting or Listening.
func (s *Session) Begin(next State) error {
	if next != StateConnecting && next != StateListening {
		return fmt.Errorf("chat: cannot begin in state %s", next)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCreated {
		return fmt.Errorf("chat: cannot move from %s to %s", s.state, next)
	}
	s.state = next
	return nil
}

// Open attaches conn and starts the receive loop. A session opens once.
func (s *Session) Open(conn Conn) error {
	s.mu.Lock()
	switch s.state {
	case StateOpen:
		s.mu.Unlock()
		return errors.New("chat: session already open")
	case StateClosed:
		s.mu.Unlock()
		_ = conn.Close()
		return errSessionClosed
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.conn = conn
	s.cancel = cancel
	s.state = StateOpen
	s.mu.Unlock()

	s.log.Info().Str("remote", conn.RemoteAddr()).Msg("session open")

	s.wg.Add(1)
	go s.receiveLoop(ctx, conn)
	return nil
}

// Send writes msg as one frame. A Sent entry is recorded once the write
// completes, unless msg is internal.
func (s *Session) Send(ctx context.Context, msg protocol.Message) error {
	s.mu.RLock()
	conn, state := s.conn, s.state
	s.mu.RUnlock()
	if state != StateOpen {
		return ErrNotConnected
	}

	data, err := msg.Encode()
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	err = conn.Write(ctx, data)
	if err == nil && !msg.Internal {
		s.backlog.add(Entry{
			Direction: Sent,
			Alias:     msg.Sender,
			Body:      msg.Body,
			Created:   s.now(),
		})
	}
	s.writeMu.Unlock()

	if err != nil {
		if s.isClosing() {
			return fmt.Errorf("%w: %v", ErrNotConnected, err)
		}
		s.log.Error().Err(err).Msg("send failed, closing session")
		s.Shutdown()
		return fmt.Errorf("%w: send: %v", ErrTransport, err)
	}
	s.log.Debug().Bool("internal", msg.Internal).Int("bytes", len(data)).Msg("frame sent")
	return nil
}

// Shutdown stops both directions, releases the connection and moves the
// session to Closed. It waits at most shutdownGrace for an in-flight send
// before giving up on the graceful part. Safe to call from any goroutine,
// any number of times, but not while holding writeMu.
func (s *Session) Shutdown() {
	s.closeOnce.Do(func() {
		close(s.closing)

		s.mu.Lock()
		conn, cancel := s.conn, s.cancel
		s.state = StateClosed
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if conn == nil {
			return
		}

		locked := make(chan struct{})
		go func() {
			s.writeMu.Lock()
			close(locked)
		}()

		select {
		case <-locked:
			if err := conn.Shutdown(); err != nil {
				s.log.Debug().Err(err).Msg("shutdown")
			}
			s.closeConn(conn)
		case <-time.After(shutdownGrace):
			s.log.Warn().Dur("grace", shutdownGrace).Msg("send still in flight, closing without shutdown")
			// closing unblocks the stuck write, which releases writeMu
			s.closeConn(conn)
			<-locked
		}
		s.writeMu.Unlock()
		s.log.Info().Msg("session closed")
	})
}

func (s *Session) closeConn(conn Conn) {
	if err := conn.Close(); err != nil {
		s.log.Debug().Err(err).Msg("close")
	}
}

// Close shuts the session down and waits for the receive loop to exit.
func (s *Session) Close() error {
	s.Shutdown()
	s.wg.Wait()
	return nil
}

// Done is closed once the session starts shutting down.
func (s *Session) Done() <-chan struct{} {
	return s.closing
}

func (s *Session) isClosing() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

func (s *Session) receiveLoop(ctx context.Context, conn Conn) {
	defer s.wg.Done()

	dec := protocol.NewDecoder(s.maxFrameBytes)
	for {
		data, err := conn.Read(ctx)
		if len(data) > 0 {
			dec.Feed(data)
			s.drain(dec)
		}
		if err == nil {
			continue
		}
		if s.isClosing() {
			return
		}
		if errors.Is(err, io.EOF) {
			s.log.Info().Msg("peer closed the connection")
		} else {
			s.log.Error().Err(fmt.Errorf("%w: receive: %v", ErrTransport, err)).Msg("receive failed, closing session")
		}
		s.Shutdown()
		return
	}
}

func (s *Session) drain(dec *protocol.Decoder) {
	for {
		msg, ok, err := dec.Next()
		if err != nil {
			s.log.Warn().Err(err).Msg("dropping frame")
			if ok {
				continue
			}
			return
		}
		if !ok {
			return
		}
		s.dispatch(msg)
	}
}

func (s *Session) dispatch(msg protocol.Message) {
	if msg.Internal {
		s.handleInternal(msg)
		return
	}
	e := Entry{
		Direction: Received,
		Alias:     msg.Sender,
		Body:      msg.Body,
		Created:   s.now(),
	}
	s.backlog.add(e)
	if s.handler != nil {
		s.handler(e)
	}
}

func (s *Session) handleInternal(msg protocol.Message) {
	if !protocol.IsDirective(msg.Body) {
		s.log.Debug().Str("sender", msg.Sender).Msg("ignoring internal message")
		return
	}
	key, value, err := protocol.ParseDirective(msg.Body)
	if err != nil {
		s.log.Warn().Err(err).Msg("ignoring directive")
		return
	}
	s.directivesMu.Lock()
	s.directives[key] = value
	s.directivesMu.Unlock()
	s.log.Debug().Str("key", key).Str("value", value).Msg("directive stored")
}
