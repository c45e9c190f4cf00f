package channelpool

import (
	"net"
	"sync"
	"time"

	"proxyfabric/internal/log"
)

// record is one data-channel's state, modeled as a plain value mutated
// only through Pool's methods (no back-pointer cycle, no dynamic-dispatch
// handler slots — an idle socket is drained by a short poll loop instead
// of a mutable on_data/on_close callback pair).
type record struct {
	port int

	mu        sync.Mutex
	listener  net.Listener
	conn      net.Conn
	inUse     bool
	connReady chan struct{} // closed when conn becomes non-nil; replaced when conn clears

	watchStop chan struct{} // closed to ask the idle watcher to stop
	watchDone chan struct{} // closed by the idle watcher when it exits
}

func newRecord(port int, ln net.Listener) *record {
	return &record{
		port:      port,
		listener:  ln,
		connReady: make(chan struct{}),
	}
}

// tryAcquire marks the record in_use if it is currently free, whether or
// not a socket happens to be attached yet: a freshly-reserved, socket-less
// record is exactly the cold-start/no-keep-alive case Pool.Allocate sends
// AllocateChannel for. Returns false only if the record was already
// in_use.
func (r *record) tryAcquire() bool {
	r.mu.Lock()
	if r.inUse {
		r.mu.Unlock()
		return false
	}
	hasConn := r.conn != nil
	r.mu.Unlock()

	if hasConn {
		// Stop the idle watcher before handing the socket to a caller.
		// Must happen with r.mu released: the watcher may be mid-call
		// into onSocketClosed, which itself needs r.mu.
		r.joinWatcher()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inUse {
		return false
	}
	r.inUse = true
	return true
}

// release marks the record free again. If the socket is still attached,
// an idle watcher is restarted so an unexpected peer close is still
// observed while no handler owns the channel.
func (r *record) release() {
	r.mu.Lock()
	conn := r.conn
	r.inUse = false
	r.mu.Unlock()

	if conn != nil {
		r.startWatcher(conn)
	}
}

// liveConn returns the attached socket, or nil if none is attached yet.
func (r *record) liveConn() net.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn
}

// waitConn blocks until a socket is attached or timeout elapses. Returns
// the conn, or nil on timeout.
func (r *record) waitConn(timeout time.Duration) net.Conn {
	r.mu.Lock()
	conn := r.conn
	ready := r.connReady
	r.mu.Unlock()
	if conn != nil {
		return conn
	}

	select {
	case <-ready:
		return r.liveConn()
	case <-time.After(timeout):
		return nil
	}
}

// attachSocket is called by the data listener's accept loop when the ES
// dials in to this port.
func (r *record) attachSocket(conn net.Conn) {
	r.mu.Lock()
	stale := r.conn
	r.mu.Unlock()

	if stale != nil {
		// ES reconnected without CS observing the prior close; drop the
		// stale socket in favor of the fresh one. Join outside r.mu for
		// the same reason as tryAcquire.
		r.joinWatcher()
		_ = stale.Close()
	}

	r.mu.Lock()
	r.conn = conn
	close(r.connReady)
	r.connReady = make(chan struct{})
	inUse := r.inUse
	r.mu.Unlock()

	if !inUse {
		r.startWatcher(conn)
	}
}

// onSocketClosed resets the record per invariant (iii): the listener
// stays open, but current_socket and in_use both clear.
func (r *record) onSocketClosed(conn net.Conn) {
	r.mu.Lock()
	if r.conn != conn {
		r.mu.Unlock()
		return
	}
	r.conn = nil
	r.inUse = false
	r.mu.Unlock()

	log.Debugf("channelpool: data port %d socket closed, listener stays open", r.port)
}

// joinWatcher stops the idle watcher, if one is running, and waits for it
// to exit. It never holds r.mu while waiting on watchDone: the watcher
// itself may need r.mu (via onSocketClosed) to exit, and a caller holding
// the lock across that wait would deadlock against it.
func (r *record) joinWatcher() {
	r.mu.Lock()
	stop, done := r.watchStop, r.watchDone
	r.watchStop, r.watchDone = nil, nil
	r.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// startWatcher spawns a goroutine that polls the idle socket for an
// unexpected close, using a drain goroutine instead of callbacks: the
// goroutine just discards any bytes that arrive, which is
// the equivalent of the source's no-op on_data/on_close defaults.
func (r *record) startWatcher(conn net.Conn) {
	stop := make(chan struct{})
	done := make(chan struct{})

	r.mu.Lock()
	r.watchStop = stop
	r.watchDone = done
	r.mu.Unlock()

	go func() {
		defer close(done)
		buf := make([]byte, 256)
		for {
			select {
			case <-stop:
				_ = conn.SetReadDeadline(time.Time{})
				return
			default:
			}

			_ = conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
			_, err := conn.Read(buf)
			if err == nil {
				continue // idle keep-alive socket receiving stray bytes: discard
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			// real error: EOF or connection reset, peer went away.
			r.onSocketClosed(conn)
			return
		}
	}()
}
