// Package containerside implements the Container Side half of the
// fabric (§4.2-§4.5): the local HTTP ingress, the control listener that
// the Edge Side dials into, and the data-channel pool backing both.
package containerside

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"proxyfabric/channelpool"
	"proxyfabric/controlproto"
	"proxyfabric/internal/log"
)

// ControlServer accepts the Edge Side's single inbound control
// connection, keeps it wired to the channel pool's SendAllocate
// callback, and runs the CS→ES heartbeat (§4.1). Only one control
// connection is meaningful at a time; a second inbound connection
// replaces the first, mirroring how the ES's own supervisor guarantees
// a single instance on its side (§4.8).
type ControlServer struct {
	heartbeatInterval time.Duration
	readBufSize       int
	writeBufSize      int

	pool *channelpool.Pool

	mu      sync.RWMutex
	current *controlproto.Conn
}

func NewControlServer(pool *channelpool.Pool, heartbeatInterval time.Duration, readBufSize, writeBufSize int) *ControlServer {
	return &ControlServer{
		pool:              pool,
		heartbeatInterval: heartbeatInterval,
		readBufSize:       readBufSize,
		writeBufSize:      writeBufSize,
	}
}

// Connected reports whether the control channel is currently up, for
// the ingress's /healthcheck and /health routes.
func (s *ControlServer) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil
}

// SendAllocate implements channelpool.SendAllocate by writing an
// AllocateChannel frame on whatever control connection is currently up.
func (s *ControlServer) SendAllocate(requestID string, port int) error {
	s.mu.RLock()
	conn := s.current
	s.mu.RUnlock()
	if conn == nil {
		return channelpool.ErrControlChannelDown
	}
	return conn.Send(controlproto.AllocateChannel(requestID, port))
}

// ListenAndServe accepts control connections on host:port until ctx is
// cancelled.
func (s *ControlServer) ListenAndServe(ctx context.Context, host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		rwc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		log.Infof("containerside: control connection from %s", rwc.RemoteAddr())
		s.adopt(ctx, rwc)
	}
}

func (s *ControlServer) adopt(ctx context.Context, rwc net.Conn) {
	conn := controlproto.NewConn(rwc, s.readBufSize, s.writeBufSize)

	s.mu.Lock()
	if s.current != nil {
		_ = s.current.Close()
	}
	s.current = conn
	s.mu.Unlock()

	connCtx, cancel := context.WithCancel(ctx)
	go s.heartbeatLoop(connCtx, conn)

	go func() {
		defer cancel()
		if err := conn.ReadLoop(func(msg *controlproto.Envelope) {
			s.dispatch(msg)
		}); err != nil {
			log.Warnf("containerside: control read loop ended: %v", err)
		}
		s.clear(conn)
	}()
}

func (s *ControlServer) dispatch(msg *controlproto.Envelope) {
	switch msg.Type {
	case controlproto.TypeChannelAllocated:
		s.pool.OnAllocated(msg.RequestID, msg.Port)
	case controlproto.TypeError:
		s.pool.OnError(msg.RequestID, msg.Message)
	case controlproto.TypeChannelReleased:
		log.Debugf("containerside: edge side released port %d", msg.Port)
	}
}

func (s *ControlServer) clear(conn *controlproto.Conn) {
	s.mu.Lock()
	if s.current == conn {
		s.current = nil
	}
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *ControlServer) heartbeatLoop(ctx context.Context, conn *controlproto.Conn) {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.Send(controlproto.Heartbeat(time.Now())); err != nil {
				log.Warnf("containerside: heartbeat send failed: %v", err)
				s.clear(conn)
				return
			}
		}
	}
}
