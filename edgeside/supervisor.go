package edgeside

import (
	"context"
	"net"
	"sync"
	"time"

	"proxyfabric/config"
	"proxyfabric/controlproto"
	"proxyfabric/internal/log"
	"proxyfabric/internal/netutil"
	"proxyfabric/objectstore"
)

type supervisorState string

const (
	stateDisconnected supervisorState = "disconnected"
	stateConnecting   supervisorState = "connecting"
	stateConnected    supervisorState = "connected"
)

// Supervisor is the single long-running task that maintains the
// control channel (§4.8): Disconnected → Connecting → Connected →
// Disconnected, with at most one instance running at a time.
type Supervisor struct {
	cfg     *config.EdgeSide
	adapter *objectstore.Adapter
	status  StatusFunc

	mu      sync.Mutex
	state   supervisorState
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSupervisor(cfg *config.EdgeSide, adapter *objectstore.Adapter, status StatusFunc) *Supervisor {
	return &Supervisor{cfg: cfg, adapter: adapter, status: status, state: stateDisconnected}
}

// Start begins the supervisor loop if it is not already running; a
// second call while running is a no-op, matching "a second call
// returns the existing promise" (§4.8).
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.loop(ctx, s.stopCh, s.doneCh)
}

// Stop requests the supervisor exit and blocks until it has drained:
// the control goroutine and watchdog have both exited (§4.8's permanent
// exit condition, §1's "must drain cleanly").
func (s *Supervisor) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
	case <-ctx.Done():
	}
}

func (s *Supervisor) loop(ctx context.Context, stop <-chan struct{}, done chan struct{}) {
	defer close(done)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.state = stateDisconnected
		s.mu.Unlock()
	}()

	for {
		select {
		case <-stop:
			return
		default:
		}

		status := s.status()
		if status == StatusStopping || status == StatusStopped {
			return
		}
		if status != StatusRunning {
			if !sleepOrStop(stop, 200*time.Millisecond) {
				return
			}
			continue
		}

		s.setState(stateConnecting)
		conn, err := s.connect(ctx, stop)
		if err != nil {
			if !sleepOrStop(stop, config.DefaultReconnectErrorDelay) {
				return
			}
			continue
		}

		s.setState(stateConnected)
		sessionDone := make(chan struct{})
		go func() {
			// A stop request ends the live session by closing its socket,
			// which unblocks the control read loop.
			select {
			case <-stop:
				_ = conn.Close()
			case <-sessionDone:
			}
		}()
		s.runConnected(ctx, conn)
		close(sessionDone)
		s.setState(stateDisconnected)

		if !sleepOrStop(stop, config.DefaultReconnectDelay) {
			return
		}
	}
}

func (s *Supervisor) setState(st supervisorState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// State reports the supervisor's current state, for tests and an
// operator surface.
func (s *Supervisor) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.state)
}

func (s *Supervisor) connect(ctx context.Context, stop <-chan struct{}) (net.Conn, error) {
	addr := netutil.NewAddr(s.cfg.Transport, s.cfg.ControlHost, s.cfg.VSockContextID, s.cfg.ControlPort)
	abort := func() bool {
		select {
		case <-stop:
			return true
		default:
		}
		st := s.status()
		return st == StatusStopping || st == StatusStopped
	}
	return netutil.DialWithBackoff(ctx, addr, config.ControlBackoff, abort)
}

// runConnected drives one connected control session to completion:
// starts the read loop and watchdog, and returns once either fails.
func (s *Supervisor) runConnected(ctx context.Context, rwc net.Conn) {
	conn := controlproto.NewConn(rwc, s.cfg.ReadBufferSize, s.cfg.WriteBufferSize)
	defer conn.Close()

	client := newControlClient(s.cfg, conn, s.adapter, s.status)
	if err := client.run(ctx); err != nil {
		log.Infof("edgeside: control session ended: %v", err)
	}
}

func sleepOrStop(stop <-chan struct{}, d time.Duration) bool {
	select {
	case <-stop:
		return false
	case <-time.After(d):
		return true
	}
}
