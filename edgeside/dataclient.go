package edgeside

import (
	"context"
	"net"
	"time"

	"proxyfabric/config"
	"proxyfabric/internal/log"
	"proxyfabric/internal/netutil"
	"proxyfabric/objectstore"
)

// dialData opens the outbound TCP connection to a data port, with
// retry (§4.6 step 3): bounded by cfg.DataConnectRetries, aborting
// early if the container transitions to stopping/stopped.
func dialData(ctx context.Context, cfg *config.EdgeSide, port int, status StatusFunc) (net.Conn, error) {
	delays := make([]time.Duration, cfg.DataConnectRetries)
	for i := range delays {
		delays[i] = cfg.DataConnectDelay
	}

	addr := netutil.NewAddr(cfg.Transport, cfg.DataHost, cfg.VSockContextID, port)
	abort := func() bool {
		s := status()
		return s == StatusStopping || s == StatusStopped
	}

	return netutil.DialWithBackoff(ctx, addr, delays, abort)
}

// serveAllocation drives one allocation whose data socket is already
// attached to r: run the service loop until the peer closes it, then
// release.
func serveAllocation(ctx context.Context, cfg *config.EdgeSide, r *record, adapter *objectstore.Adapter) {
	defer r.release()

	conn := r.conn
	if conn == nil {
		log.Warnf("edgeside: serveAllocation called on port %d with no socket attached", r.port)
		return
	}

	serve(conn, adapter, cfg.ReadBufferSize, cfg.WriteBufferSize)
}
