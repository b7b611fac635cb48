// Package codec implements the primitives of the canonical binary encoding
// shared by block hashing, storage and the peer wire protocol. Integers are
// written big-endian at fixed width and variable length fields carry a 4 byte
// length prefix.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Version is the current version byte written at the front of every
// canonically encoded transaction and block.
const Version byte = 1

// MaxFieldSize is the largest variable length field a Reader will accept.
const MaxFieldSize = 32 << 20

// Set of errors reported by a Reader.
var (
	ErrShortBuffer   = errors.New("codec: short buffer")
	ErrFieldTooLarge = errors.New("codec: field too large")
	ErrTrailingBytes = errors.New("codec: trailing bytes")
	ErrVersion       = errors.New("codec: unsupported version")
)

// =============================================================================

// Writer accumulates a canonical encoding.
type Writer struct {
	buf []byte
}

// NewWriter constructs a writer with the specified starting capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Uint8 writes a single byte.
func (w *Writer) Uint8(v byte) {
	w.buf = append(w.buf, v)
}

// Uint32 writes a 4 byte big-endian integer.
func (w *Writer) Uint32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

// Uint64 writes an 8 byte big-endian integer.
func (w *Writer) Uint64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

// Fixed32 writes 32 raw bytes with no length prefix.
func (w *Writer) Fixed32(v [32]byte) {
	w.buf = append(w.buf, v[:]...)
}

// Bytes writes a length prefixed byte slice.
func (w *Writer) Bytes(v []byte) {
	w.Uint32(uint32(len(v)))
	w.buf = append(w.buf, v...)
}

// String writes a length prefixed UTF-8 string.
func (w *Writer) String(v string) {
	w.Uint32(uint32(len(v)))
	w.buf = append(w.buf, v...)
}

// Encoded returns the encoded data. The writer must not be used afterwards.
func (w *Writer) Encoded() []byte {
	return w.buf
}

// =============================================================================

// Reader decodes a canonical encoding. The first failure is sticky: every
// later call returns a zero value and Err reports the original problem.
type Reader struct {
	data []byte
	off  int
	err  error
}

// NewReader constructs a reader over the specified data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Err returns the first error encountered.
func (r *Reader) Err() error {
	return r.err
}

// Done returns the sticky error or ErrTrailingBytes if unread data remains.
func (r *Reader) Done() error {
	if r.err != nil {
		return r.err
	}

	if r.off != len(r.data) {
		return fmt.Errorf("%w: %d unread", ErrTrailingBytes, len(r.data)-r.off)
	}

	return nil
}

// Version reads the version byte and fails if it is not supported.
func (r *Reader) Version() {
	v := r.Uint8()
	if r.err == nil && v != Version {
		r.err = fmt.Errorf("%w: %d", ErrVersion, v)
	}
}

// Uint8 reads a single byte.
func (r *Reader) Uint8() byte {
	b := r.next(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Uint32 reads a 4 byte big-endian integer.
func (r *Reader) Uint32() uint32 {
	b := r.next(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

// Uint64 reads an 8 byte big-endian integer.
func (r *Reader) Uint64() uint64 {
	b := r.next(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// Fixed32 reads 32 raw bytes.
func (r *Reader) Fixed32() [32]byte {
	var v [32]byte
	b := r.next(32)
	if b != nil {
		copy(v[:], b)
	}
	return v
}

// Bytes reads a length prefixed byte slice. The result is a copy.
func (r *Reader) Bytes() []byte {
	n := r.Uint32()
	if r.err != nil {
		return nil
	}

	if n > MaxFieldSize {
		r.err = fmt.Errorf("%w: %d bytes", ErrFieldTooLarge, n)
		return nil
	}

	b := r.next(int(n))
	if b == nil {
		return nil
	}

	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// String reads a length prefixed string.
func (r *Reader) String() string {
	return string(r.Bytes())
}

func (r *Reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}

	if len(r.data)-r.off < n {
		r.err = fmt.Errorf("%w: need %d, have %d", ErrShortBuffer, n, len(r.data)-r.off)
		return nil
	}

	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}
