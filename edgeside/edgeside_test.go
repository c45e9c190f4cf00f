package edgeside

import (
	"bufio"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"proxyfabric/config"
	"proxyfabric/controlproto"
	"proxyfabric/objectstore"
)

// fakeContainerSide simulates the CS's control listener plus one data
// listener, driving the allocation handshake from the other side.
type fakeContainerSide struct {
	controlLn net.Listener
	dataLn    net.Listener
	dataPort  int
}

func newFakeContainerSide(t *testing.T) *fakeContainerSide {
	t.Helper()
	cln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	dln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	return &fakeContainerSide{controlLn: cln, dataLn: dln, dataPort: dln.Addr().(*net.TCPAddr).Port}
}

func TestControlClientAllocatesAndServesOneRequest(t *testing.T) {
	cs := newFakeContainerSide(t)
	defer cs.controlLn.Close()
	defer cs.dataLn.Close()

	cfg := &config.EdgeSide{
		DataHost:           "127.0.0.1",
		DataBasePort:       cs.dataPort,
		DataChannels:       1,
		WatchdogGap:        time.Minute,
		WatchdogWarmup:     time.Minute,
		WatchdogPoll:       time.Minute,
		ReadBufferSize:     4 << 10,
		WriteBufferSize:    4 << 10,
		DataConnectRetries: 3,
		DataConnectDelay:   20 * time.Millisecond,
	}
	adapter := objectstore.NewAdapter([]string{"bucketA"}, io.Discard)
	status := func() ContainerStatus { return StatusRunning }

	// CS side of the control connection: accept, send one
	// AllocateChannel, and wait for ChannelAllocated.
	controlConnCh := make(chan net.Conn, 1)
	go func() {
		c, err := cs.controlLn.Accept()
		if err == nil {
			controlConnCh <- c
		}
	}()

	esControlConn, err := net.Dial("tcp", cs.controlLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	csControlRWC := <-controlConnCh

	esConn := controlproto.NewConn(esControlConn, 4<<10, 4<<10)
	client := newControlClient(cfg, esConn, adapter, status)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = client.run(ctx) }()

	csConn := controlproto.NewConn(csControlRWC, 4<<10, 4<<10)
	allocated := make(chan int, 1)
	go func() {
		_ = csConn.ReadLoop(func(msg *controlproto.Envelope) {
			if msg.Type == controlproto.TypeChannelAllocated {
				allocated <- msg.Port
			}
		})
	}()

	if err := csConn.Send(controlproto.AllocateChannel("req-1", cs.dataPort)); err != nil {
		t.Fatal(err)
	}

	// Accept the ES's outbound data connection as if we were the CS's
	// data-port listener, and exchange one HTTP request/response.
	dataConnCh := make(chan net.Conn, 1)
	go func() {
		c, err := cs.dataLn.Accept()
		if err == nil {
			dataConnCh <- c
		}
	}()

	select {
	case port := <-allocated:
		if port != cs.dataPort {
			t.Fatalf("expected port %d, got %d", cs.dataPort, port)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ChannelAllocated")
	}

	var dataConn net.Conn
	select {
	case dataConn = <-dataConnCh:
	case <-time.After(2 * time.Second):
		t.Fatal("ES never dialed the data port")
	}
	defer dataConn.Close()

	if _, err := dataConn.Write([]byte("PUT /bucketA/k HTTP/1.1\r\nHost: x\r\nContent-Length: 3\r\n\r\nabc")); err != nil {
		t.Fatal(err)
	}

	reader := bufio.NewReader(dataConn)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if line != "HTTP/1.1 204 No Content\r\n" {
		t.Fatalf("unexpected status line: %q", line)
	}
}

func TestSupervisorStartIsIdempotent(t *testing.T) {
	cfg := &config.EdgeSide{ControlHost: "127.0.0.1", ControlPort: 1}
	adapter := objectstore.NewAdapter(nil, io.Discard)

	calls := 0
	status := func() ContainerStatus {
		calls++
		return StatusStopped // exits the loop immediately on every tick
	}

	sup := NewSupervisor(cfg, adapter, status)
	ctx := context.Background()
	sup.Start(ctx)
	sup.Start(ctx) // must not start a second loop

	deadline := time.Now().Add(2 * time.Second)
	for sup.State() != "disconnected" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	sup.Stop(context.Background())
}
