package controlproto

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"

	"proxyfabric/internal/netutil"
)

const (
	LengthPrefixSize = 4

	// MaxFrameLen bounds a single frame; the spec calls 16 MiB an
	// unrecoverable framing error that should force-close the channel.
	MaxFrameLen = 16 << 20
)

var ErrFrameTooLarge = errors.New("controlproto: frame exceeds maximum length")

// ReadFrame pulls exactly one length-prefixed frame off r. It blocks
// until a full frame (or an error) is available; bufio.Reader's
// internal buffering combined with io.ReadFull's retry-until-full
// behavior is what gives this the rolling-buffer semantics the spec
// describes for a byte-stream transport.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	var lenBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > MaxFrameLen {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes one length-prefixed frame to w and flushes it.
func WriteFrame(w *bufio.Writer, payload []byte) error {
	if len(payload) > MaxFrameLen {
		return ErrFrameTooLarge
	}

	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.LittleEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)

	if err := netutil.WriteFull(w, buf); err != nil {
		return err
	}
	return w.Flush()
}
