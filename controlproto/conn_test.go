package controlproto

import (
	"net"
	"testing"
	"time"
)

func TestConnSendAndReadLoop(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	serverConn := NewConn(server, 4<<10, 4<<10)
	clientConn := NewConn(client, 4<<10, 4<<10)

	received := make(chan *Envelope, 1)
	go func() {
		_ = serverConn.ReadLoop(func(msg *Envelope) {
			received <- msg
		})
	}()

	if err := clientConn.Send(AllocateChannel("req-1", 9100)); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-received:
		if msg.Type != TypeAllocateChannel || msg.RequestID != "req-1" || msg.Port != 9100 {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestConnReadLoop_DropsUnknownType(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	serverConn := NewConn(server, 4<<10, 4<<10)
	clientConn := NewConn(client, 4<<10, 4<<10)

	received := make(chan *Envelope, 1)
	go func() {
		_ = serverConn.ReadLoop(func(msg *Envelope) {
			received <- msg
		})
	}()

	// An unknown-typed frame must be dropped, not delivered.
	if err := clientConn.Send(&Envelope{Type: "SomethingElse"}); err != nil {
		t.Fatal(err)
	}
	if err := clientConn.Send(Heartbeat(time.Now())); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-received:
		if msg.Type != TypeHeartbeat {
			t.Fatalf("expected the heartbeat to be the first delivered message, got %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}
