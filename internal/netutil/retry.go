package netutil

import (
	"context"
	"net"
	"time"
)

// DialWithBackoff dials addr, retrying on failure according to delays. It
// aborts early if abort returns true (e.g. the container has transitioned
// to stopping/stopped) or ctx is cancelled. It returns the last dial error
// if every attempt in delays (plus the initial attempt) fails.
func DialWithBackoff(ctx context.Context, addr Addr, delays []time.Duration, abort func() bool) (net.Conn, error) {
	var lastErr error

	attempt := func() (net.Conn, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if abort != nil && abort() {
			return nil, context.Canceled
		}
		return addr.Dial()
	}

	conn, err := attempt()
	if err == nil {
		return conn, nil
	}
	lastErr = err

	for _, d := range delays {
		if abort != nil && abort() {
			return nil, lastErr
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
		}

		conn, err = attempt()
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}

	return nil, lastErr
}
