// Package config holds the fixed-at-start-up parameters of one side of
// the proxy fabric: ports, channel count, timeouts and buffer sizes.
// Normalize mirrors the teacher's client.Config pattern of falling back
// to a package default when a field is left at its zero value.
package config

import "time"

const (
	DefaultAllocationTimeout = 10 * time.Second
	DefaultResponseTimeout   = 10 * time.Minute
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultWatchdogPoll      = 5 * time.Second
	DefaultWatchdogGap       = 20 * time.Second
	DefaultWatchdogWarmup    = 10 * time.Second

	DefaultReadBufferSize  = 4 << 10
	DefaultWriteBufferSize = 4 << 10

	DefaultReconnectDelay      = 1 * time.Second
	DefaultReconnectErrorDelay = 5 * time.Second

	// DefaultBucket is used when a request path carries no recognized
	// bucket prefix.
	DefaultBucket = "default"

	// MultipartThreshold is the PUT Content-Length above which the
	// Object Store adapter switches from a single-shot write to a
	// transparent multipart upload.
	MultipartThreshold = 50 << 20 // 50 MiB

	// MultipartPartSize is the target size of each part the adapter
	// splits a large PUT into; MultipartMinPartSize is the minimum for
	// any part but the last.
	MultipartPartSize    = 10 << 20 // 10 MiB
	MultipartMinPartSize = 5 << 20  // 5 MiB
)

// ControlBackoff is the fixed retry schedule for the ES's outbound
// connect to the CS control port (§4.6).
var ControlBackoff = []time.Duration{
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
	3 * time.Second,
	5 * time.Second,
	5 * time.Second,
	5 * time.Second,
	5 * time.Second,
	5 * time.Second,
	5 * time.Second,
}

// ContainerSide is the set of ports and tunables the CS process needs.
type ContainerSide struct {
	IngressHost string // local HTTP ingress bind host, port H
	IngressPort int

	ControlHost string // control listener bind host, port C
	ControlPort int

	DataHost      string // data listener bind host; ports are DataBasePort..DataBasePort+N-1
	DataBasePort  int
	DataChannels  int // N

	AllocationTimeout time.Duration
	ResponseTimeout   time.Duration
	HeartbeatInterval time.Duration

	ReadBufferSize  int
	WriteBufferSize int
}

func (c *ContainerSide) Normalize() {
	if c.AllocationTimeout <= 0 {
		c.AllocationTimeout = DefaultAllocationTimeout
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = DefaultResponseTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = DefaultWriteBufferSize
	}
	if c.DataChannels <= 0 {
		c.DataChannels = 1
	}
}

// DataPort returns the listening port for channel index i (0-based).
func (c *ContainerSide) DataPort(i int) int {
	return c.DataBasePort + i
}

// EdgeSide is the set of dial targets and tunables the ES process needs.
type EdgeSide struct {
	// Transport selects how the ES dials the CS: "tcp" (default) for a
	// loopback/TCP pair, or "vsock" for an AF_VSOCK peer, in which case
	// ControlHost/DataHost are ignored and VSockContextID selects the CS.
	Transport      string
	VSockContextID uint32

	ControlHost string
	ControlPort int

	DataHost     string // same host the ES dials for all data channels
	DataBasePort int    // must match the CS's ContainerSide.DataBasePort
	DataChannels int    // must match the CS's ContainerSide.DataChannels

	WatchdogPoll   time.Duration
	WatchdogGap    time.Duration
	WatchdogWarmup time.Duration

	ReadBufferSize  int
	WriteBufferSize int

	// DataConnectRetries bounds how many times the ES retries a data-port
	// dial before giving up and reporting Error back on the control channel.
	DataConnectRetries int
	DataConnectDelay   time.Duration
}

// DataPort returns the dial target for channel index i (0-based).
func (c *EdgeSide) DataPort(i int) int {
	return c.DataBasePort + i
}

// KnownPort reports whether port is one of the configured data ports.
func (c *EdgeSide) KnownPort(port int) bool {
	return port >= c.DataBasePort && port < c.DataBasePort+c.DataChannels
}

func (c *EdgeSide) Normalize() {
	if c.Transport == "" {
		c.Transport = "tcp"
	}
	if c.WatchdogPoll <= 0 {
		c.WatchdogPoll = DefaultWatchdogPoll
	}
	if c.WatchdogGap <= 0 {
		c.WatchdogGap = DefaultWatchdogGap
	}
	if c.WatchdogWarmup <= 0 {
		c.WatchdogWarmup = DefaultWatchdogWarmup
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = DefaultWriteBufferSize
	}
	if c.DataConnectRetries <= 0 {
		c.DataConnectRetries = 5
	}
	if c.DataConnectDelay <= 0 {
		c.DataConnectDelay = 200 * time.Millisecond
	}
}
