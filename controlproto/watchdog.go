package controlproto

import (
	"sync"
	"time"
)

// Watchdog tracks the last heartbeat received on a control channel and
// reports whether the channel should be considered dead: gap since the
// last heartbeat exceeds maxGap AND the channel has been up longer than
// warmup (spec §3's heartbeat watchdog, §4.1's 5s poll / 20s-gap /
// 10s-warmup numbers).
type Watchdog struct {
	maxGap time.Duration
	warmup time.Duration

	mu              sync.Mutex
	connectedAt     time.Time
	lastHeartbeatAt time.Time
}

func NewWatchdog(maxGap, warmup time.Duration) *Watchdog {
	now := time.Now()
	return &Watchdog{
		maxGap:          maxGap,
		warmup:          warmup,
		connectedAt:     now,
		lastHeartbeatAt: now,
	}
}

func (w *Watchdog) Touch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastHeartbeatAt = time.Now()
}

// Tripped reports whether the watchdog should trigger a force-close.
func (w *Watchdog) Tripped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	return now.Sub(w.lastHeartbeatAt) > w.maxGap && now.Sub(w.connectedAt) > w.warmup
}

// Run polls Tripped every poll interval until stop is closed, invoking
// onTrip exactly once if it trips.
func (w *Watchdog) Run(poll time.Duration, stop <-chan struct{}, onTrip func()) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if w.Tripped() {
				onTrip()
				return
			}
		}
	}
}
