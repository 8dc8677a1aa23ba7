package resolve_test

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamr8/ChatConsole/internal/resolve"
)

type stubLookup struct {
	addrs []netip.Addr
	err   error
	calls int
}

func (s *stubLookup) LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error) {
	s.calls++
	return s.addrs, s.err
}

func TestResolvePort_PrefersIPv4(t *testing.T) {
	lookup := &stubLookup{addrs: []netip.Addr{
		netip.MustParseAddr("::1"),
		netip.MustParseAddr("127.0.0.1"),
	}}

	addr, err := resolve.New(lookup).ResolvePort(context.Background(), "localhost", resolve.ChatPort)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", addr.IP.String())
	assert.Equal(t, resolve.ChatPort, addr.Port)
}

func TestResolvePort_FallsBackToIPv6(t *testing.T) {
	lookup := &stubLookup{addrs: []netip.Addr{netip.MustParseAddr("::1")}}

	addr, err := resolve.New(lookup).ResolvePort(context.Background(), "v6only", 4242)
	require.NoError(t, err)
	assert.Equal(t, "::1", addr.IP.String())
	assert.Equal(t, 4242, addr.Port)
}

func TestResolvePort_IPv4MappedIsUnmapped(t *testing.T) {
	lookup := &stubLookup{addrs: []netip.Addr{netip.MustParseAddr("::ffff:10.0.0.7")}}

	addr, err := resolve.New(lookup).ResolvePort(context.Background(), "mapped", 1)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", addr.IP.String())
}

func TestResolvePort_LiteralSkipsLookup(t *testing.T) {
	lookup := &stubLookup{}

	addr, err := resolve.New(lookup).ResolvePort(context.Background(), "127.0.0.1", 0)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:0", addr.String())
	assert.Zero(t, lookup.calls)
}

func TestResolvePort_Errors(t *testing.T) {
	tests := []struct {
		name   string
		lookup *stubLookup
		port   int
	}{
		{"lookup failure", &stubLookup{err: errors.New("no such host")}, resolve.ChatPort},
		{"empty answer", &stubLookup{}, resolve.ChatPort},
		{"port out of range", &stubLookup{}, 70000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolve.New(tt.lookup).ResolvePort(context.Background(), "nowhere.invalid", tt.port)
			require.ErrorIs(t, err, resolve.ErrResolution)
		})
	}
}

func TestResolve_Localhost(t *testing.T) {
	addr, err := resolve.Resolve(context.Background(), "localhost")
	require.NoError(t, err)
	assert.Equal(t, resolve.ChatPort, addr.Port)
	assert.True(t, addr.IP.IsLoopback())
}

func TestResolve_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := resolve.New(nil).ResolvePort(ctx, "example.invalid", resolve.ChatPort)
	require.ErrorIs(t, err, resolve.ErrResolution)
}
