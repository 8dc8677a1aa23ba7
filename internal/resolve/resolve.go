// Package resolve turns host names into chat endpoints.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// ChatPort is the well-known port both roles agree on.
const ChatPort = 11000

var ErrResolution = errors.New("resolve: no usable address")

// Lookuper is the subset of *net.Resolver used here.
type Lookuper interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Resolver resolves host names, preferring IPv4 answers.
type Resolver struct {
	lookup Lookuper
}

// New creates a Resolver backed by lookup. A nil lookup uses net.DefaultResolver.
func New(lookup Lookuper) *Resolver {
	if lookup == nil {
		lookup = net.DefaultResolver
	}
	return &Resolver{lookup: lookup}
}

// Resolve returns the endpoint for host on ChatPort.
func Resolve(ctx context.Context, host string) (*net.TCPAddr, error) {
	return New(nil).ResolvePort(ctx, host, ChatPort)
}

// ResolvePort returns the endpoint for host on port.
func (r *Resolver) ResolvePort(ctx context.Context, host string, port int) (*net.TCPAddr, error) {
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", ErrResolution, port)
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		return net.TCPAddrFromAddrPort(netip.AddrPortFrom(ip.Unmap(), uint16(port))), nil
	}

	addrs, err := r.lookup.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup %q: %v", ErrResolution, host, err)
	}
	ip, ok := pick(addrs)
	if !ok {
		return nil, fmt.Errorf("%w: %q has no addresses", ErrResolution, host)
	}
	return net.TCPAddrFromAddrPort(netip.AddrPortFrom(ip, uint16(port))), nil
}

// pick returns the first IPv4 address, falling back to the first valid one.
func pick(addrs []netip.Addr) (netip.Addr, bool) {
	var fallback netip.Addr
	for _, a := range addrs {
		a = a.Unmap()
		if !a.IsValid() {
			continue
		}
		if a.Is4() {
			return a, true
		}
		if !fallback.IsValid() {
			fallback = a
		}
	}
	return fallback, fallback.IsValid()
}
