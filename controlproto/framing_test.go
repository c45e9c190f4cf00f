package controlproto

import (
	"bufio"
	"bytes"
	"io"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := WriteFrame(w, []byte(`{"type":"Heartbeat","timestamp":123}`)); err != nil {
		t.Fatal(err)
	}

	got, err := ReadFrame(bufio.NewReader(&buf))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"type":"Heartbeat","timestamp":123}` {
		t.Fatalf("got %q", got)
	}
}

func TestReadFrame_RejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	// Hand-craft a length prefix larger than MaxFrameLen without the
	// matching payload; ReadFrame must reject before trying to read it.
	oversized := uint32(MaxFrameLen + 1)
	lenBuf := []byte{0, 0, 0, 0}
	lenBuf[0] = byte(oversized)
	lenBuf[1] = byte(oversized >> 8)
	lenBuf[2] = byte(oversized >> 16)
	lenBuf[3] = byte(oversized >> 24)
	_, _ = w.Write(lenBuf)
	_ = w.Flush()

	_, err := ReadFrame(bufio.NewReader(&buf))
	if err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestReadFrame_PartialFrameWaitsForMoreBytes(t *testing.T) {
	full := []byte(`{"type":"Heartbeat"}`)
	var framed bytes.Buffer
	w := bufio.NewWriter(&framed)
	if err := WriteFrame(w, full); err != nil {
		t.Fatal(err)
	}

	// Feed the frame one byte at a time through a reader that only ever
	// exposes what's been written so far, as a stand-in for a frame
	// split across TCP reads.
	piece := framed.Bytes()
	pr, pw := io.Pipe()
	go func() {
		for _, b := range piece {
			_, _ = pw.Write([]byte{b})
		}
		_ = pw.Close()
	}()

	got, err := ReadFrame(bufio.NewReader(pr))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(full) {
		t.Fatalf("got %q", got)
	}
}
