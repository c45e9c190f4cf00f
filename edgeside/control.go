package edgeside

import (
	"context"

	"proxyfabric/config"
	"proxyfabric/controlproto"
	"proxyfabric/internal/log"
	"proxyfabric/objectstore"
)

// controlClient owns one live control connection and the data-port
// table it allocates against (§4.6).
type controlClient struct {
	cfg     *config.EdgeSide
	conn    *controlproto.Conn
	table   *table
	adapter *objectstore.Adapter
	status  StatusFunc

	watchdog *controlproto.Watchdog
}

func newControlClient(cfg *config.EdgeSide, conn *controlproto.Conn, adapter *objectstore.Adapter, status StatusFunc) *controlClient {
	return &controlClient{
		cfg:      cfg,
		conn:     conn,
		table:    newTable(cfg.DataBasePort, cfg.DataChannels),
		adapter:  adapter,
		status:   status,
		watchdog: controlproto.NewWatchdog(cfg.WatchdogGap, cfg.WatchdogWarmup),
	}
}

// run blocks until the control connection fails or the watchdog trips,
// at which point it force-closes the connection (§4.1's failure
// semantics: any read/write error or watchdog trip is a disconnection).
func (c *controlClient) run(ctx context.Context) error {
	watchdogStop := make(chan struct{})
	go c.watchdog.Run(c.cfg.WatchdogPoll, watchdogStop, func() {
		log.Warnf("edgeside: heartbeat watchdog tripped, forcing control channel closed")
		_ = c.conn.Close()
	})
	defer close(watchdogStop)

	return c.conn.ReadLoop(func(msg *controlproto.Envelope) {
		c.dispatch(ctx, msg)
	})
}

func (c *controlClient) dispatch(ctx context.Context, msg *controlproto.Envelope) {
	switch msg.Type {
	case controlproto.TypeHeartbeat:
		c.watchdog.Touch()
	case controlproto.TypeAllocateChannel:
		go c.handleAllocate(ctx, msg.RequestID, msg.Port)
	}
}

// handleAllocate implements §4.6 steps 1-5.
func (c *controlClient) handleAllocate(ctx context.Context, requestID string, port int) {
	r, ok := c.table.get(port)
	if !ok {
		c.replyError(requestID, "Requested channel not found")
		return
	}
	if !r.tryAcquire() {
		c.replyError(requestID, "Requested channel already in use")
		return
	}

	conn, err := dialData(ctx, c.cfg, port, c.status)
	if err != nil {
		r.release()
		c.replyError(requestID, "failed to open data channel: "+err.Error())
		return
	}
	r.attach(conn)

	if err := c.conn.Send(controlproto.ChannelAllocated(requestID, port)); err != nil {
		log.Warnf("edgeside: failed to confirm allocation for request %s: %v", requestID, err)
		r.release()
		return
	}

	serveAllocation(ctx, c.cfg, r, c.adapter)

	// Best-effort hint: the CS's own socket-close detection is
	// authoritative (channelpool.onSocketClosed), so a failed send here
	// (e.g. the control channel already went down during shutdown) is
	// not treated as an error.
	if err := c.conn.Send(controlproto.ChannelReleased(port)); err != nil {
		log.Debugf("edgeside: failed to send ChannelReleased for port %d: %v", port, err)
	}
}

func (c *controlClient) replyError(requestID, message string) {
	if err := c.conn.Send(controlproto.Error(requestID, message)); err != nil {
		log.Warnf("edgeside: failed to send Error reply for request %s: %v", requestID, err)
	}
}
