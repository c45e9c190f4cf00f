package channelpool

import (
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"
)

// fakeEdge simulates the edge side's half of the allocation handshake:
// on AllocateChannel it dials the given port and, once connected,
// resolves the pending allocation the way the real ES's ChannelAllocated
// reply would.
type fakeEdge struct {
	t    *testing.T
	pool *Pool
	host string

	mu    sync.Mutex
	conns []net.Conn
}

func (f *fakeEdge) send(requestID string, port int) error {
	conn, err := net.Dial("tcp", f.host+":"+strconv.Itoa(port))
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.mu.Unlock()

	// give the CS accept loop a moment to attach the socket before the
	// control-channel confirmation races ahead of it.
	time.Sleep(20 * time.Millisecond)
	f.pool.OnAllocated(requestID, port)
	return nil
}

func (f *fakeEdge) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		_ = c.Close()
	}
}

func newTestPool(t *testing.T, n int, timeout time.Duration, send SendAllocate) *Pool {
	t.Helper()
	pool := New(n, timeout, send, nil)
	if err := pool.ListenAndAccept(context.Background(), "127.0.0.1", 0); err != nil {
		t.Fatal(err)
	}
	return pool
}

func TestAllocate_KeepAliveReuseIsImmediate(t *testing.T) {
	var poolRef *Pool
	edge := &fakeEdge{t: t, host: "127.0.0.1"}
	pool := newTestPool(t, 2, time.Second, func(id string, port int) error { return edge.send(id, port) })
	poolRef = pool
	edge.pool = pool
	defer edge.closeAll()

	port, err := poolRef.Allocate(context.Background(), "r1")
	if err != nil {
		t.Fatal(err)
	}
	poolRef.Release(port)

	port2, err := poolRef.Allocate(context.Background(), "r2")
	if err != nil {
		t.Fatal(err)
	}
	if port2 != port {
		t.Fatalf("expected keep-alive reuse of the same port, got %d vs %d", port2, port)
	}
}

func TestAllocate_SaturationAtNPlus1(t *testing.T) {
	const n = 3
	edge := &fakeEdge{t: t, host: "127.0.0.1"}
	pool := newTestPool(t, n, time.Second, func(id string, port int) error { return edge.send(id, port) })
	edge.pool = pool
	defer edge.closeAll()

	for i := 0; i < n; i++ {
		if _, err := pool.Allocate(context.Background(), "req"+string(rune('A'+i))); err != nil {
			t.Fatalf("allocation %d should have succeeded: %v", i, err)
		}
	}

	_, err := pool.Allocate(context.Background(), "overflow")
	if err != ErrSaturated {
		t.Fatalf("expected ErrSaturated, got %v", err)
	}

	if pool.InUseCount() != n {
		t.Fatalf("expected %d channels in use, got %d", n, pool.InUseCount())
	}
}

func TestAllocate_TimesOutAndFreesChannel(t *testing.T) {
	// sendAllocate never confirms: the channel should free itself after
	// the allocation timeout and be available to a later request.
	pool := newTestPool(t, 1, 30*time.Millisecond, func(id string, port int) error { return nil })

	_, err := pool.Allocate(context.Background(), "req-a")
	if err != ErrAllocationTimeout {
		t.Fatalf("expected ErrAllocationTimeout, got %v", err)
	}

	if pool.InUseCount() != 0 {
		t.Fatal("expected the channel to be freed after the allocation timed out")
	}
}

func TestAllocate_RemoteErrorFreesChannel(t *testing.T) {
	var pool *Pool
	pool = newTestPool(t, 1, time.Second, func(id string, port int) error {
		pool.OnError(id, "Requested channel already in use")
		return nil
	})

	_, err := pool.Allocate(context.Background(), "req-a")
	var remoteErr *RemoteError
	if err == nil {
		t.Fatal("expected an error")
	}
	if re, ok := err.(*RemoteError); ok {
		remoteErr = re
	}
	if remoteErr == nil {
		t.Fatalf("expected *RemoteError, got %T: %v", err, err)
	}
	if pool.InUseCount() != 0 {
		t.Fatal("expected the channel to be freed after a remote error")
	}
}

func TestUnexpectedSocketCloseResetsRecord(t *testing.T) {
	edge := &fakeEdge{t: t, host: "127.0.0.1"}
	pool := newTestPool(t, 1, time.Second, func(id string, port int) error { return edge.send(id, port) })
	edge.pool = pool

	port, err := pool.Allocate(context.Background(), "r1")
	if err != nil {
		t.Fatal(err)
	}
	pool.Release(port)

	edge.closeAll() // simulate the ES closing the data socket

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pool.Conn(port) == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected the record's socket to clear after an unexpected close")
}
