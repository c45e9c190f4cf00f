// Package netutil holds the dial-target abstraction and the small set of
// socket helpers (full-write retry, dial-with-backoff) shared by the
// container side and the edge side.
package netutil

import (
	"net"
	"strconv"
)

// Addr is a dial target: either a loopback TCP address (the default for
// this fabric, since the inner channels are loopback to a peer per the
// spec's non-goals) or an AF_VSOCK address for container runtimes that
// expose vsock instead of a TCP loopback.
type Addr interface {
	Network() string
	Dial() (net.Conn, error)
	String() string
}

type TCPAddr struct {
	Host string
	Port int
}

func (a *TCPAddr) Network() string { return "tcp" }
func (a *TCPAddr) String() string  { return a.Host + ":" + strconv.Itoa(a.Port) }
func (a *TCPAddr) Dial() (net.Conn, error) {
	return net.Dial("tcp", a.String())
}

// VSockAddr dials a context-ID/port pair over AF_VSOCK. Dial is provided
// by internal/netutil/vsock.go so this file stays free of the vsock
// dependency.
type VSockAddr struct {
	ContextID uint32
	Port      uint32
}

func (a *VSockAddr) Network() string { return "vsock" }
func (a *VSockAddr) String() string  { return strconv.FormatUint(uint64(a.ContextID), 10) + ":" + strconv.FormatUint(uint64(a.Port), 10) }

// NewAddr builds a dial target for the given transport: "vsock" dials
// contextID over AF_VSOCK, anything else (including "") falls back to
// loopback/TCP against host. The edge side's control and data dials both
// select this per config rather than hardcoding TCPAddr, so a container
// runtime that only exposes AF_VSOCK can still be reached.
func NewAddr(transport, host string, contextID uint32, port int) Addr {
	if transport == "vsock" {
		return &VSockAddr{ContextID: contextID, Port: uint32(port)}
	}
	return &TCPAddr{Host: host, Port: port}
}
