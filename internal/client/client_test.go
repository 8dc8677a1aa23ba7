package client_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iamr8/ChatConsole/internal/chat"
	"github.com/iamr8/ChatConsole/internal/client"
	"github.com/iamr8/ChatConsole/internal/console"
	"github.com/iamr8/ChatConsole/internal/console/mock"
	"github.com/iamr8/ChatConsole/internal/testutil/testlog"
	"github.com/iamr8/ChatConsole/internal/transport/tcp"
	"github.com/iamr8/ChatConsole/pkg/protocol"
)

// peer is a bare TCP endpoint that records every frame it receives.
type peer struct {
	listener net.Listener
	mu       sync.Mutex
	received []protocol.Message
	conn     net.Conn
	ready    chan struct{}
	done     chan struct{}
}

func startPeer(t *testing.T) *peer {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	p := &peer{listener: listener, ready: make(chan struct{}), done: make(chan struct{})}
	go p.serve()
	t.Cleanup(func() {
		listener.Close()
		p.mu.Lock()
		if p.conn != nil {
			p.conn.Close()
		}
		p.mu.Unlock()
		<-p.done
	})
	return p
}

func (p *peer) serve() {
	defer close(p.done)
	conn, err := p.listener.Accept()
	if err != nil {
		return
	}
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
	close(p.ready)

	stream := tcp.NewConn(conn)
	dec := protocol.NewDecoder(0)
	for {
		data, err := stream.Read(context.Background())
		dec.Feed(data)
		for {
			msg, ok, derr := dec.Next()
			if derr != nil || !ok {
				break
			}
			p.mu.Lock()
			p.received = append(p.received, msg)
			p.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (p *peer) addr() *net.TCPAddr {
	return p.listener.Addr().(*net.TCPAddr)
}

func (p *peer) messages() []protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]protocol.Message, len(p.received))
	copy(out, p.received)
	return out
}

func (p *peer) send(t *testing.T, msg protocol.Message) {
	t.Helper()
	<-p.ready
	data, err := msg.Encode()
	require.NoError(t, err)
	_, err = p.conn.Write(data)
	require.NoError(t, err)
}

func allowInfo(sink *mock.MockSink) {
	sink.EXPECT().Notify(gomock.Any(), console.SeverityInfo).AnyTimes()
}

func TestClient_ConnectAnnouncesAlias(t *testing.T) {
	p := startPeer(t)

	c := client.New(p.addr(), "iamr8", client.WithLogger(testlog.New(t)))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	assert.True(t, c.IsConnected())
	assert.Equal(t, chat.StateOpen, c.State())

	require.Eventually(t, func() bool { return len(p.messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, protocol.AliasAnnouncement("iamr8"), p.messages()[0])
	assert.Zero(t, c.Backlog().Len(), "handshake stays out of the backlog")
}

func TestClient_ConnectRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().(*net.TCPAddr)
	listener.Close()

	ctrl := gomock.NewController(t)
	sink := mock.NewMockSink(ctrl)
	sink.EXPECT().Notify(gomock.Any(), console.SeverityError).Times(1)

	c := client.New(addr, "iamr8", client.WithLogger(testlog.New(t)), client.WithSink(sink))
	require.Error(t, c.Connect(context.Background()))
	assert.False(t, c.IsConnected())
	assert.Equal(t, chat.StateClosed, c.State())
	require.ErrorIs(t, c.Send(context.Background(), "hello"), chat.ErrNotConnected)
}

func TestClient_SendBeforeConnect(t *testing.T) {
	c := client.New(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1}, "iamr8")

	require.ErrorIs(t, c.Send(context.Background(), "hello"), chat.ErrNotConnected)
	assert.Equal(t, chat.StateCreated, c.State())
}

func TestClient_SendRejectsReservedCharacters(t *testing.T) {
	p := startPeer(t)

	ctrl := gomock.NewController(t)
	sink := mock.NewMockSink(ctrl)
	allowInfo(sink)
	sink.EXPECT().Notify(client.NoticeReserved, console.SeverityWarning).Times(1)

	c := client.New(p.addr(), "iamr8", client.WithLogger(testlog.New(t)), client.WithSink(sink))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	require.ErrorIs(t, c.Send(context.Background(), "<script>"), protocol.ErrReservedCharacters)
	assert.Zero(t, c.Backlog().Len())
	assert.True(t, c.IsConnected())
}

func TestClient_SendRecordsBacklog(t *testing.T) {
	p := startPeer(t)

	c := client.New(p.addr(), "iamr8", client.WithLogger(testlog.New(t)))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	require.NoError(t, c.Send(context.Background(), "Hello there"))

	sent := c.Backlog().Filter(chat.Sent)
	require.Len(t, sent, 1)
	assert.Equal(t, "Hello there", sent[0].Body)
	assert.Equal(t, "iamr8", sent[0].Alias)

	require.Eventually(t, func() bool { return len(p.messages()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, protocol.Message{Sender: "iamr8", Body: "Hello there"}, p.messages()[1])
}

func TestClient_ReceivesFromPeer(t *testing.T) {
	p := startPeer(t)

	got := make(chan chat.Entry, 1)
	c := client.New(p.addr(), "iamr8",
		client.WithLogger(testlog.New(t)),
		client.WithHandler(func(e chat.Entry) { got <- e }),
	)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	p.send(t, protocol.Message{Sender: "Assist", Body: "Hi. How can I help you?"})

	select {
	case e := <-got:
		assert.Equal(t, chat.Received, e.Direction)
		assert.Equal(t, "Assist", e.Alias)
		assert.Equal(t, "Hi. How can I help you?", e.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not called")
	}
	assert.Len(t, c.Backlog().Filter(chat.Received), 1)
}

func TestClient_RateLimitKicksClient(t *testing.T) {
	p := startPeer(t)

	ctrl := gomock.NewController(t)
	sink := mock.NewMockSink(ctrl)
	gomock.InOrder(
		sink.EXPECT().Notify(client.NoticeConnected, console.SeverityInfo),
		sink.EXPECT().Notify(client.NoticeTooFast, console.SeverityWarning),
		sink.EXPECT().Notify(client.NoticeViolation, console.SeverityError),
		sink.EXPECT().Notify(client.NoticeFarewell, console.SeverityInfo),
	)

	c := client.New(p.addr(), "iamr8", client.WithLogger(testlog.New(t)), client.WithSink(sink))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Send(ctx, "Hello there"))
	require.NoError(t, c.Send(ctx, "Hello there"))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, c.Send(ctx, "Hello there"), "the policy disconnect is not an error")
	require.ErrorIs(t, c.Send(ctx, "Hello there"), chat.ErrNotConnected)

	assert.False(t, c.IsConnected())
	assert.Equal(t, chat.StateClosed, c.State())
	assert.Equal(t, 2, c.Violations())
	assert.Len(t, c.Backlog().Filter(chat.Sent), 2, "the message that broke the policy is not delivered")
}

func TestClient_SpacedSendsStayConnected(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the rate window")
	}
	p := startPeer(t)

	ctrl := gomock.NewController(t)
	sink := mock.NewMockSink(ctrl)
	allowInfo(sink)

	window := 200 * time.Millisecond
	c := client.New(p.addr(), "iamr8",
		client.WithLogger(testlog.New(t)),
		client.WithSink(sink),
		client.WithRateWindow(window),
	)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	for _, body := range []string{"one", "two", "three"} {
		require.NoError(t, c.Send(context.Background(), body))
		time.Sleep(window + 50*time.Millisecond)
	}

	assert.True(t, c.IsConnected())
	assert.Zero(t, c.Violations())
	require.Eventually(t, func() bool { return len(p.messages()) == 4 }, 2*time.Second, 10*time.Millisecond)
}

func TestClient_PeerCloseDisconnects(t *testing.T) {
	p := startPeer(t)

	c := client.New(p.addr(), "iamr8", client.WithLogger(testlog.New(t)))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	<-p.ready
	p.conn.Close()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not notice the closed connection")
	}
	assert.False(t, c.IsConnected())
}

func TestClient_CloseTwice(t *testing.T) {
	p := startPeer(t)

	ctrl := gomock.NewController(t)
	sink := mock.NewMockSink(ctrl)
	sink.EXPECT().Notify(client.NoticeConnected, console.SeverityInfo).Times(1)
	sink.EXPECT().Notify(client.NoticeFarewell, console.SeverityInfo).Times(1)

	c := client.New(p.addr(), "iamr8", client.WithLogger(testlog.New(t)), client.WithSink(sink))
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
}
