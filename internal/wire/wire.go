// Package wire holds the little-endian primitives shared by the replay and
// event codecs. Writers append to a byte slice; Readers keep a sticky error
// so a decoder can read a whole record and check once.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Decoding errors
var (
	ErrTruncated = errors.New("truncated input")
	ErrBadBool   = errors.New("invalid bool byte")
	ErrTooLong   = errors.New("string too long")
)

// MaxString is the longest string a u16 length prefix can carry.
const MaxString = math.MaxUint16

// Writer appends little-endian values.
type Writer struct {
	buf []byte
	err error
}

// NewWriter returns a writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Bytes returns the encoded bytes.
func (w *Writer) Bytes() []byte { return w.buf }

// Err returns the first encoding error.
func (w *Writer) Err() error { return w.err }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) U8(v uint8)   { w.buf = append(w.buf, v) }
func (w *Writer) I8(v int8)    { w.buf = append(w.buf, byte(v)) }
func (w *Writer) U16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *Writer) U32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

// F32 writes v rounded to float32.
func (w *Writer) F32(v float32) { w.U32(math.Float32bits(v)) }

// Bool writes 1 or 0.
func (w *Writer) Bool(v bool) {
	if v {
		w.U8(1)
	} else {
		w.U8(0)
	}
}

// Str writes a u16 length prefix and the raw bytes.
func (w *Writer) Str(s string) {
	if len(s) > MaxString {
		if w.err == nil {
			w.err = fmt.Errorf("%w: %d bytes", ErrTooLong, len(s))
		}
		return
	}
	w.U16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// Raw appends b unchanged.
func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

// Reader consumes little-endian values from a byte slice.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader returns a reader over b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Err returns the first decoding error.
func (r *Reader) Err() error { return r.err }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// Offset returns the read position.
func (r *Reader) Offset() int { return r.off }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.Remaining() < n {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, r.off, r.Remaining())
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) I8() int8 { return int8(r.U8()) }

func (r *Reader) U16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) U32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) F32() float32 { return math.Float32frombits(r.U32()) }

// Bool reads a byte that must be exactly 0 or 1.
func (r *Reader) Bool() bool {
	v := r.U8()
	if r.err == nil && v > 1 {
		r.err = fmt.Errorf("%w: 0x%02x at offset %d", ErrBadBool, v, r.off-1)
	}
	return v == 1
}

// Str reads a u16-prefixed string.
func (r *Reader) Str() string {
	n := int(r.U16())
	b := r.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

// Raw returns the next n bytes without copying.
func (r *Reader) Raw(n int) []byte { return r.take(n) }
