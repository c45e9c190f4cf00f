package controlproto

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"

	"proxyfabric/internal/log"
)

// Conn wraps one control-channel socket with framed JSON send/receive,
// mirroring the teacher's Conn type (bufio reader/writer pair over a
// net.Conn) but speaking this protocol's length-prefixed JSON frames
// instead of the teacher's fixed binary header.
type Conn struct {
	rwc net.Conn

	bufReader *bufio.Reader
	writeMu   sync.Mutex
	bufWriter *bufio.Writer
}

func NewConn(rwc net.Conn, readBufSize, writeBufSize int) *Conn {
	return &Conn{
		rwc:       rwc,
		bufReader: bufio.NewReaderSize(rwc, readBufSize),
		bufWriter: bufio.NewWriterSize(rwc, writeBufSize),
	}
}

// Send marshals and frames one message. Safe for concurrent use; the
// control channel's heartbeat ticker and the allocation path may both
// call Send from different goroutines.
func (c *Conn) Send(msg *Envelope) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.bufWriter, payload)
}

// ReadLoop blocks decoding frames and invoking onMessage for each valid
// one, until a read/framing error occurs; that error is returned. Per
// spec §4.1, a frame that fails to parse or names an unknown type is
// logged and dropped without advancing any state machine.
func (c *Conn) ReadLoop(onMessage func(*Envelope)) error {
	for {
		payload, err := ReadFrame(c.bufReader)
		if err != nil {
			return err
		}

		var msg Envelope
		if jerr := json.Unmarshal(payload, &msg); jerr != nil {
			log.Warnf("controlproto: dropping unparseable frame: %v", jerr)
			continue
		}
		if !msg.Type.valid() {
			log.Warnf("controlproto: dropping frame with unknown type %q", msg.Type)
			continue
		}

		onMessage(&msg)
	}
}

func (c *Conn) Close() error {
	return c.rwc.Close()
}
