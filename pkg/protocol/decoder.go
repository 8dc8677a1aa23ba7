package protocol

import (
	"bytes"
	"fmt"
)

// DefaultMaxFrameBytes bounds the bytes a Decoder holds while waiting for a
// marker.
const DefaultMaxFrameBytes = 64 * 1024

var marker = []byte(EndOfFrame)

// Decoder reassembles frames from an unbounded byte stream. Bytes after the
// last marker are kept for the next Feed, so a read carrying one and a half
// frames loses nothing.
//
// A Decoder has a single writer: the receive loop that owns it.
type Decoder struct {
	buf      []byte
	off      int
	maxBytes int
}

// NewDecoder creates a Decoder. maxBytes <= 0 selects DefaultMaxFrameBytes.
func NewDecoder(maxBytes int) *Decoder {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFrameBytes
	}
	return &Decoder{maxBytes: maxBytes}
}

// Feed appends freshly read bytes.
func (d *Decoder) Feed(p []byte) {
	if d.off > 0 {
		// compact consumed prefix before growing
		n := copy(d.buf, d.buf[d.off:])
		d.buf = d.buf[:n]
		d.off = 0
	}
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of bytes not yet consumed.
func (d *Decoder) Buffered() int {
	return len(d.buf) - d.off
}

// NextFrame returns the payload preceding the next marker. ok is false when
// no complete frame is buffered. ErrFrameTooLarge is returned, and the
// buffer dropped, when the pending bytes outgrow the limit without a marker.
func (d *Decoder) NextFrame() (payload []byte, ok bool, err error) {
	pending := d.buf[d.off:]
	idx := bytes.Index(pending, marker)
	if idx < 0 {
		if len(pending) > d.maxBytes {
			size := len(pending)
			d.Reset()
			return nil, false, fmt.Errorf("%w: %d bytes without %s", ErrFrameTooLarge, size, EndOfFrame)
		}
		return nil, false, nil
	}
	payload = bytes.Clone(pending[:idx])
	d.off += idx + len(marker)
	if d.off == len(d.buf) {
		d.buf = d.buf[:0]
		d.off = 0
	}
	return payload, true, nil
}

// Next decodes the next complete frame. A malformed frame is consumed and
// reported as ErrFrameDecode with ok set, so the caller can drop it and
// keep going.
func (d *Decoder) Next() (msg Message, ok bool, err error) {
	payload, ok, err := d.NextFrame()
	if err != nil || !ok {
		return Message{}, ok, err
	}
	if err := msg.Decode(payload); err != nil {
		return Message{}, true, err
	}
	return msg, true, nil
}

// Reset discards everything buffered.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.off = 0
}
