// Package server implements the listening side of the chat. It accepts
// exactly one peer, then behaves like the client without the rate policy.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iamr8/ChatConsole/internal/chat"
	"github.com/iamr8/ChatConsole/internal/console"
	"github.com/iamr8/ChatConsole/internal/transport/tcp"
	"github.com/iamr8/ChatConsole/internal/transport/ws"
	"github.com/iamr8/ChatConsole/pkg/protocol"
)

// Notices shown to the user.
const (
	NoticeStarted   = "Socket started on %s"
	NoticeConnected = "A client has been connected to you."
	NoticeNoPeer    = "Still no user is being connected."
	NoticeReserved  = "Please avoid using < or > in your message."
)

type Option func(*Server)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) { s.log = log }
}

func WithSink(sink console.Sink) Option {
	return func(s *Server) { s.sink = sink }
}

// WithHandler receives every message the peer sends.
func WithHandler(h chat.Handler) Option {
	return func(s *Server) { s.handler = h }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithMaxFrameBytes bounds the bytes held while waiting for a frame marker.
func WithMaxFrameBytes(n int) Option {
	return func(s *Server) { s.maxFrameBytes = n }
}

// WithWebSocket lets the peer connect either with a raw stream or with a
// WebSocket handshake on the same port.
func WithWebSocket() Option {
	return func(s *Server) { s.websocket = true }
}

// Server represents a single-peer chat server
type Server struct {
	addr      *net.TCPAddr
	alias     string
	websocket bool
	log       zerolog.Logger
	sink      console.Sink
	handler   chat.Handler
	now       func() time.Time

	maxFrameBytes int

	session  *chat.Session
	accepted chan struct{}

	mu       sync.Mutex
	listener *tcp.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a new Server instance bound to addr once started.
func New(addr *net.TCPAddr, alias string, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		alias:    alias,
		log:      zerolog.Nop(),
		sink:     console.Discard,
		now:      time.Now,
		accepted: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("role", "server").Logger()
	s.session = chat.NewSession(alias,
		chat.WithLogger(s.log),
		chat.WithHandler(s.handler),
		chat.WithClock(s.now),
		chat.WithMaxFrameBytes(s.maxFrameBytes),
	)
	return s
}

// Start binds the address and accepts one peer in the background. The
// listener is closed right after, so later connection attempts are refused.
func (s *Server) Start(ctx context.Context) error {
	if err := s.session.Begin(chat.StateListening); err != nil {
		return fmt.Errorf("server cannot start: %w", err)
	}

	listener, err := tcp.Listen(ctx, s.addr)
	if err != nil {
		s.sink.Notify(err.Error(), console.SeverityError)
		s.session.Shutdown()
		return err
	}

	acceptCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.listener = listener
	s.cancel = cancel
	s.mu.Unlock()

	s.log.Info().Str("addr", listener.Addr().String()).Bool("websocket", s.websocket).Msg("listening")
	s.sink.Notify(fmt.Sprintf(NoticeStarted, listener.Addr()), console.SeverityInfo)

	s.wg.Add(1)
	go s.acceptOne(acceptCtx, listener)
	return nil
}

func (s *Server) acceptOne(ctx context.Context, listener *tcp.Listener) {
	defer s.wg.Done()

	raw, err := listener.Accept(ctx)
	if cerr := listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		s.log.Debug().Err(cerr).Msg("close listener")
	}
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error().Err(err).Msg("accept failed")
		}
		s.session.Shutdown()
		return
	}

	// Close may arrive while detection still waits for the first bytes.
	stop := context.AfterFunc(ctx, func() { _ = raw.Close() })
	conn, err := s.wrap(raw)
	if !stop() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.log.Warn().Err(err).Str("remote", raw.RemoteAddr().String()).Msg("rejecting connection")
		_ = raw.Close()
		s.session.Shutdown()
		return
	}
	if err := s.session.Open(conn); err != nil {
		s.log.Debug().Err(err).Msg("open after close")
		return
	}
	s.sink.Notify(NoticeConnected, console.SeverityInfo)
	close(s.accepted)
}

func (s *Server) wrap(raw net.Conn) (chat.Conn, error) {
	if !s.websocket {
		return tcp.NewConn(raw), nil
	}

	proto, reader, err := detectProtocol(raw)
	if err != nil {
		return nil, fmt.Errorf("detect protocol: %w", err)
	}
	s.log.Debug().Stringer("protocol", proto).Msg("protocol detected")
	if proto == protocolTCP {
		return tcp.NewConnWithReader(raw, reader), nil
	}
	conn, err := ws.Upgrade(raw, reader)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Send sends body to the connected peer.
func (s *Server) Send(ctx context.Context, body string) error {
	msg := protocol.Message{Sender: s.alias, Body: body}
	if err := msg.Validate(); err != nil {
		s.sink.Notify(NoticeReserved, console.SeverityWarning)
		return err
	}
	if !s.session.IsOpen() {
		s.sink.Notify(NoticeNoPeer, console.SeverityError)
		return chat.ErrNotConnected
	}
	return s.session.Send(ctx, msg)
}

// Close stops listening, drops the peer and waits for background work.
func (s *Server) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.session.Shutdown()
	s.wg.Wait()
	return s.session.Close()
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() *net.TCPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	addr, _ := s.listener.Addr().(*net.TCPAddr)
	return addr
}

// PeerAlias returns the alias the peer announced on connect.
func (s *Server) PeerAlias() (string, bool) {
	return s.session.Directive(protocol.DirectiveAlias)
}

// IsConnected returns whether a peer is connected
func (s *Server) IsConnected() bool {
	return s.session.IsOpen()
}

func (s *Server) State() chat.State {
	return s.session.State()
}

func (s *Server) Alias() string {
	return s.alias
}

func (s *Server) Backlog() *chat.Backlog {
	return s.session.Backlog()
}

// Accepted is closed once a peer has connected.
func (s *Server) Accepted() <-chan struct{} {
	return s.accepted
}

// Done is closed once the server stops serving its peer.
func (s *Server) Done() <-chan struct{} {
	return s.session.Done()
}
