// Package channelpool implements the container side's data-channel pool
// and allocation state machine (spec §4.5): N fixed-port records, a
// pending-allocation table keyed by request id, and the saturation /
// timeout error paths that surface as 503 / 502 on the ingress.
package channelpool

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	gometrics "github.com/rcrowley/go-metrics"

	"proxyfabric/internal/log"
	"proxyfabric/internal/metrics"
)

// SendAllocate is invoked by Pool to ask the edge side (over the control
// channel) to open a socket to the given port for the given request.
type SendAllocate func(requestID string, port int) error

type pendingEntry struct {
	port    int
	resolve chan allocResult
}

type allocResult struct {
	err error
}

// Pool owns the fixed set of data-channel records and the pending
// allocation table. Only the pool's own methods mutate a record's
// in_use/conn fields (spec §5's shared-resource policy).
type Pool struct {
	records []*record

	mu      sync.Mutex
	pending map[string]*pendingEntry

	sendAllocate      SendAllocate
	allocationTimeout time.Duration

	saturationCounter gometrics.Counter
	timeoutCounter    gometrics.Counter
	successCounter    gometrics.Counter
	tripHist          gometrics.Histogram
}

// New creates a pool of n records for ports basePort..basePort+n-1. The
// listeners are not opened here; call ListenAndAccept to start accepting
// ES connections on each port.
func New(n int, allocationTimeout time.Duration, send SendAllocate, reg *metrics.Registry) *Pool {
	p := &Pool{
		records:           make([]*record, n),
		pending:           make(map[string]*pendingEntry),
		sendAllocate:      send,
		allocationTimeout: allocationTimeout,
	}
	if reg != nil {
		p.saturationCounter = reg.Counter("channelpool.saturation")
		p.timeoutCounter = reg.Counter("channelpool.allocation_timeout")
		p.successCounter = reg.Counter("channelpool.successful_requests")
		p.tripHist = reg.Histogram("channelpool.allocation_latency_ms")
	}
	return p
}

// ListenAndAccept opens a TCP listener on basePort+i for every record and
// runs an accept loop per listener until ctx is cancelled. A basePort of
// 0 lets the OS assign an ephemeral port per record (used by tests);
// Ports reports what was actually bound.
func (p *Pool) ListenAndAccept(ctx context.Context, host string, basePort int) error {
	for i := range p.records {
		requested := 0
		if basePort != 0 {
			requested = basePort + i
		}
		ln, err := net.Listen("tcp", host+":"+strconv.Itoa(requested))
		if err != nil {
			return err
		}
		port := requested
		if port == 0 {
			port = ln.Addr().(*net.TCPAddr).Port
		}
		p.records[i] = newRecord(port, ln)
		go p.acceptLoop(ctx, p.records[i])
	}
	return nil
}

// Ports reports the ports actually bound by ListenAndAccept, in record
// order.
func (p *Pool) Ports() []int {
	ports := make([]int, 0, len(p.records))
	for _, r := range p.records {
		if r != nil {
			ports = append(ports, r.port)
		}
	}
	return ports
}

func (p *Pool) acceptLoop(ctx context.Context, r *record) {
	defer r.listener.Close()
	go func() {
		<-ctx.Done()
		_ = r.listener.Close()
	}()
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			log.Errorf("channelpool: accept on port %d failed: %v", r.port, err)
			return
		}
		log.Debugf("channelpool: edge side connected to data port %d", r.port)
		r.attachSocket(conn)
	}
}

// Allocate reserves a free data channel for requestID, returning its
// port once the edge side has confirmed (or immediately, for keep-alive
// reuse of an already-connected channel).
func (p *Pool) Allocate(ctx context.Context, requestID string) (int, error) {
	start := time.Now()
	rec := p.acquireFreeRecord()
	if rec == nil {
		if p.saturationCounter != nil {
			p.saturationCounter.Inc(1)
		}
		return 0, ErrSaturated
	}

	if conn := rec.liveConn(); conn != nil {
		if p.successCounter != nil {
			p.successCounter.Inc(1)
		}
		if p.tripHist != nil {
			p.tripHist.Update(time.Since(start).Milliseconds())
		}
		return rec.port, nil
	}

	entry := &pendingEntry{port: rec.port, resolve: make(chan allocResult, 1)}
	p.mu.Lock()
	p.pending[requestID] = entry
	p.mu.Unlock()

	cleanup := func() {
		p.mu.Lock()
		delete(p.pending, requestID)
		p.mu.Unlock()
		rec.release()
	}

	if err := p.sendAllocate(requestID, rec.port); err != nil {
		cleanup()
		return 0, ErrControlChannelDown
	}

	timer := time.NewTimer(p.allocationTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		cleanup()
		return 0, ctx.Err()
	case <-timer.C:
		cleanup()
		if p.timeoutCounter != nil {
			p.timeoutCounter.Inc(1)
		}
		return 0, ErrAllocationTimeout
	case res := <-entry.resolve:
		if res.err != nil {
			rec.release()
			return 0, res.err
		}
		remaining := p.allocationTimeout - time.Since(start)
		if remaining <= 0 {
			remaining = time.Millisecond
		}
		conn := rec.waitConn(remaining)
		if conn == nil {
			rec.release()
			return 0, ErrSocketNeverAttached
		}
		if p.successCounter != nil {
			p.successCounter.Inc(1)
		}
		if p.tripHist != nil {
			p.tripHist.Update(time.Since(start).Milliseconds())
		}
		return rec.port, nil
	}
}

func (p *Pool) acquireFreeRecord() *record {
	for _, r := range p.records {
		if r.tryAcquire() {
			return r
		}
	}
	return nil
}

// OnAllocated resolves the pending allocation for requestID with success,
// called when a ChannelAllocated message arrives on the control channel.
func (p *Pool) OnAllocated(requestID string, port int) {
	p.mu.Lock()
	entry, ok := p.pending[requestID]
	if ok {
		delete(p.pending, requestID)
	}
	p.mu.Unlock()

	if !ok {
		log.Warnf("channelpool: ChannelAllocated for unknown/expired request %s", requestID)
		return
	}
	if entry.port != port {
		log.Warnf("channelpool: ChannelAllocated port mismatch for request %s: expected %d got %d", requestID, entry.port, port)
	}
	entry.resolve <- allocResult{}
}

// OnError resolves the pending allocation for requestID with failure,
// called when an Error message arrives on the control channel.
func (p *Pool) OnError(requestID string, message string) {
	p.mu.Lock()
	entry, ok := p.pending[requestID]
	if ok {
		delete(p.pending, requestID)
	}
	p.mu.Unlock()

	if !ok {
		log.Warnf("channelpool: Error for unknown/expired request %s: %s", requestID, message)
		return
	}
	entry.resolve <- allocResult{err: &RemoteError{Message: message}}
}

// Release marks port free again; called once a response has been fully
// written back to the ingress.
func (p *Pool) Release(port int) {
	if r := p.find(port); r != nil {
		r.release()
	}
}

// Conn returns the socket currently attached to port, or nil.
func (p *Pool) Conn(port int) net.Conn {
	if r := p.find(port); r != nil {
		return r.liveConn()
	}
	return nil
}

func (p *Pool) find(port int) *record {
	for _, r := range p.records {
		if r != nil && r.port == port {
			return r
		}
	}
	return nil
}

// InUseCount reports how many channels are currently reserved, for tests
// exercising the saturation boundary (spec §8).
func (p *Pool) InUseCount() int {
	count := 0
	for _, r := range p.records {
		r.mu.Lock()
		if r.inUse {
			count++
		}
		r.mu.Unlock()
	}
	return count
}
