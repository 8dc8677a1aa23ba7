// Package client implements the connecting side of the chat: it dials the
// assistant, announces its alias and polices its own sending rate.
package client

import (
	"context"
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

// Transport selects how the client reaches the server.
type Transport string

const (
	TransportTCP       Transport = "tcp"
	TransportWebSocket Transport = "ws"
)

// Notices shown to the user.
const (
	NoticeConnected = "You've been successfully connected to an assist."
	NoticeTooFast   = "You are sending messages too fast. Please wait a little bit. You are allowed to send one message per second."
	NoticeViolation = "Unfortunately, we have to inform you, we closed this thread in order to rules violations."
	NoticeFarewell  = "You are about to leave this conversation. Farewell!"
	NoticeReserved  = "Please avoid using < or > in your message."
)

type Option func(*Client)

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

func WithSink(sink console.Sink) Option {
	return func(c *Client) { c.sink = sink }
}

func WithTransport(t Transport) Option {
	return func(c *Client) { c.transport = t }
}

func WithRateWindow(window time.Duration) Option {
	return func(c *Client) { c.window = window }
}

// WithHandler receives every message the server sends.
func WithHandler(h chat.Handler) Option {
	return func(c *Client) { c.handler = h }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func WithMaxFrameBytes(n int) Option {
	return func(c *Client) { c.maxFrameBytes = n }
}

// Client represents a chat client
type Client struct {
	addr      *net.TCPAddr
	alias     string
	transport Transport
	window    time.Duration
	log       zerolog.Logger
	sink      console.Sink
	handler   chat.Handler
	now       func() time.Time

	maxFrameBytes int

	session *chat.Session

	// mu serializes the rate check with the send it guards.
	mu     sync.Mutex
	policy *RatePolicy
}

// New creates a new Client instance for addr.
func New(addr *net.TCPAddr, alias string, opts ...Option) *Client {
	c := &Client{
		addr:      addr,
		alias:     alias,
		transport: TransportTCP,
		window:    DefaultRateWindow,
		log:       zerolog.Nop(),
		sink:      console.Discard,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("role", "client").Logger()
	c.policy = NewRatePolicy(c.window)
	c.session = chat.NewSession(alias,
		chat.WithLogger(c.log),
		chat.WithHandler(c.handler),
		chat.WithClock(c.now),
		chat.WithMaxFrameBytes(c.maxFrameBytes),
	)
	return c
}

// Connect establishes a connection to the server and announces the alias.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.session.Begin(chat.StateConnecting); err != nil {
		return fmt.Errorf("client cannot connect: %w", err)
	}

	conn, err := c.dial(ctx)
	if err != nil {
		c.sink.Notify(err.Error(), console.SeverityError)
		c.session.Shutdown()
		return err
	}
	if err := c.session.Open(conn); err != nil {
		return err
	}
	c.sink.Notify(NoticeConnected, console.SeverityInfo)

	if err := c.session.Send(ctx, protocol.AliasAnnouncement(c.alias)); err != nil {
		c.log.Warn().Err(err).Msg("alias announcement failed")
	}
	return nil
}

func (c *Client) dial(ctx context.Context) (chat.Conn, error) {
	switch c.transport {
	case TransportWebSocket:
		conn, err := ws.Dial(ctx, c.addr)
		if err != nil {
			return nil, err
		}
		return conn, nil
	case TransportTCP, "":
		conn, err := tcp.Dial(ctx, c.addr)
		if err != nil {
			return nil, err
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", c.transport)
	}
}

// Send sends body to the server, applying the rate policy first. Breaking
// the policy twice closes the connection; that is reported to the user, not
// returned as an error.
func (c *Client) Send(ctx context.Context, body string) error {
	msg := protocol.Message{Sender: c.alias, Body: body}
	if err := msg.Validate(); err != nil {
		c.sink.Notify(NoticeReserved, console.SeverityWarning)
		return err
	}
	if !c.IsConnected() {
		return chat.ErrNotConnected
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.session.Backlog().LastSent()
	switch c.policy.Check(last.Created, ok, c.now()) {
	case VerdictWarn:
		c.sink.Notify(NoticeTooFast, console.SeverityWarning)
	case VerdictDisconnect:
		c.sink.Notify(NoticeViolation, console.SeverityError)
		c.log.Warn().
			Err(chat.ErrPolicyViolation).
			Int("violations", c.policy.Violations()).
			Msg("closing connection")
		c.Leave()
		if err := c.session.Send(ctx, msg); err != nil {
			c.log.Debug().Err(err).Msg("message dropped after disconnect")
		}
		return nil
	}
	return c.session.Send(ctx, msg)
}

// Leave gracefully shuts the connection down without waiting for the
// receive loop.
func (c *Client) Leave() {
	if !c.IsConnected() {
		return
	}
	c.sink.Notify(NoticeFarewell, console.SeverityInfo)
	c.session.Shutdown()
}

// Close leaves the conversation and releases everything.
func (c *Client) Close() error {
	c.Leave()
	return c.session.Close()
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	return c.session.IsOpen()
}

func (c *Client) State() chat.State {
	return c.session.State()
}

func (c *Client) Alias() string {
	return c.alias
}

// Backlog returns the message history of the connection.
func (c *Client) Backlog() *chat.Backlog {
	return c.session.Backlog()
}

// Done is closed once the connection starts closing.
func (c *Client) Done() <-chan struct{} {
	return c.session.Done()
}

// Violations returns how many early sends the policy has counted.
func (c *Client) Violations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy.Violations()
}
