// Package linecodec implements a newline-delimited framing.Decoder and
// framing.Encoder for plain text lines, the seed protocol the echo
// sample wires through the reactor/netio/framing stack.
package linecodec

import (
	"fmt"
	"math"

	"github.com/joeycumines/asyncrt/framing"
)

// Terminator selects which line-ending byte sequences end a frame.
type Terminator int

const (
	// Both accepts either "\n" or "\r\n" as a line terminator.
	Both Terminator = iota
	// Newline accepts only "\n".
	Newline
	// CarriageNewline accepts only "\r\n".
	CarriageNewline
)

// Decoder splits buffered bytes into lines. A line longer than
// MaxLength is reported once as an error, after which the decoder
// discards bytes up to and including the next delimiter before
// resuming normal decoding.
type Decoder struct {
	MaxLength      uint32
	StripDelimiter bool
	TerminatorType Terminator

	discarding bool
}

// NewDecoder builds a Decoder with an effectively unbounded MaxLength
// and delimiter stripping enabled.
func NewDecoder() *Decoder {
	return &Decoder{MaxLength: math.MaxUint32, StripDelimiter: true}
}

// Decode implements framing.Decoder[string].
func (d *Decoder) Decode(q *framing.ByteQueue) (string, bool, error) {
	buf := q.Bytes()
	eol, delimLen := d.findEndOfLine(buf)

	if !d.discarding {
		if eol >= 0 {
			if uint32(eol) > d.MaxLength {
				q.Advance(eol + delimLen)
				return "", false, fmt.Errorf("linecodec: line too long")
			}
			var frame string
			if d.StripDelimiter {
				frame = string(buf[:eol])
			} else {
				frame = string(buf[:eol+delimLen])
			}
			q.Advance(eol + delimLen)
			return frame, true, nil
		}
		if uint32(len(buf)) > d.MaxLength {
			q.Advance(len(buf))
			d.discarding = true
			return "", false, fmt.Errorf("linecodec: line too long")
		}
		return "", false, nil
	}

	if eol >= 0 {
		q.Advance(eol + delimLen)
		d.discarding = false
	} else {
		q.Advance(len(buf))
	}
	return "", false, nil
}

// DecodeEOF implements framing.Decoder[string]. At clean end-of-stream
// it yields the next complete line if one is buffered; otherwise any
// trailing bytes with no delimiter are returned as a final frame.
func (d *Decoder) DecodeEOF(q *framing.ByteQueue) (string, bool, error) {
	for {
		frame, ok, err := d.Decode(q)
		if ok || err != nil || q.Len() == 0 {
			return frame, ok, err
		}
		if eol, _ := d.findEndOfLine(q.Bytes()); eol < 0 {
			frame = string(q.Bytes())
			q.Advance(q.Len())
			return frame, true, nil
		}
	}
}

// findEndOfLine returns the offset of the first line terminator in buf
// and its length (1 for "\n", 2 for "\r\n"), or (-1, 0) if none is
// buffered yet.
func (d *Decoder) findEndOfLine(buf []byte) (int, int) {
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		if b == '\n' && d.TerminatorType != CarriageNewline {
			return i, 1
		}
		if b == '\r' && d.TerminatorType != Newline && i+1 < len(buf) && buf[i+1] == '\n' {
			return i, 2
		}
	}
	return -1, 0
}

// Encoder appends each line plus a trailing "\n" to the outgoing
// queue.
type Encoder struct{}

// Encode implements framing.Encoder[string].
func (Encoder) Encode(frame string, q *framing.ByteQueue) error {
	q.Append([]byte(frame))
	q.Append([]byte{'\n'})
	return nil
}
