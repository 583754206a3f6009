// Package wire provides bounded little-endian cursors over message buffers.
//
// Writer has a fixed capacity chosen up front; Reader never reads past the
// end of its input. Both fail closed: the first overrun is recorded and all
// later operations become no-ops, so an encoder or parser can run straight
// through and check Err once.
package wire

import (
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/cryptobyte"
)

// Errors
var (
	ErrBufferTooSmall    = errors.New("wire: buffer too small")
	ErrMessageIncomplete = errors.New("wire: message incomplete")
	ErrTrailingData      = errors.New("wire: unexpected trailing data")
)

// Writer appends little-endian fields into a fixed-capacity buffer.
type Writer struct {
	b   *cryptobyte.Builder
	n   int
	cap int
	err error
}

// NewWriter creates a writer that accepts at most capacity bytes.
func NewWriter(capacity int) *Writer {
	return &Writer{
		b:   cryptobyte.NewFixedBuilder(make([]byte, 0, capacity)),
		cap: capacity,
	}
}

func (w *Writer) put(p []byte) {
	if w.err != nil {
		return
	}
	if w.n+len(p) > w.cap {
		w.err = ErrBufferTooSmall
		return
	}
	w.b.AddBytes(p)
	w.n += len(p)
}

// PutU8 writes one byte.
func (w *Writer) PutU8(v uint8) {
	w.put([]byte{v})
}

// PutU16 writes a little-endian uint16.
func (w *Writer) PutU16(v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	w.put(buf[:])
}

// PutU32 writes a little-endian uint32.
func (w *Writer) PutU32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.put(buf[:])
}

// PutBytes writes p verbatim.
func (w *Writer) PutBytes(p []byte) {
	w.put(p)
}

// PutZeros writes n zero bytes.
func (w *Writer) PutZeros(n int) {
	if n <= 0 {
		return
	}
	w.put(make([]byte, n))
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return w.n
}

// Available returns the remaining capacity.
func (w *Writer) Available() int {
	return w.cap - w.n
}

// Err returns the first error encountered, if any.
func (w *Writer) Err() error {
	return w.err
}

// Bytes returns the encoded message.
func (w *Writer) Bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	out, err := w.b.Bytes()
	if err != nil {
		return nil, ErrBufferTooSmall
	}
	return out, nil
}

// Reader consumes little-endian fields from a message.
type Reader struct {
	s     cryptobyte.String
	total int
	err   error
}

// NewReader creates a reader over msg. msg is not copied.
func NewReader(msg []byte) *Reader {
	return &Reader{s: cryptobyte.String(msg), total: len(msg)}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	var out []byte
	if n < 0 || !r.s.ReadBytes(&out, n) {
		r.err = ErrMessageIncomplete
		return nil
	}
	return out
}

// U8 reads one byte.
func (r *Reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// U16 reads a little-endian uint16.
func (r *Reader) U16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// U32 reads a little-endian uint32.
func (r *Reader) U32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// Bytes reads n bytes. The returned slice aliases the input.
func (r *Reader) Bytes(n int) []byte {
	return r.take(n)
}

// Skip advances past n bytes.
func (r *Reader) Skip(n int) {
	r.take(n)
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.s)
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int {
	return r.total - len(r.s)
}

// Consumed returns the prefix of the message read so far.
func (r *Reader) Consumed(msg []byte) []byte {
	return msg[:r.Offset()]
}

// Err returns the first error encountered, if any.
func (r *Reader) Err() error {
	return r.err
}

// Done returns the first read error, or ErrTrailingData if input remains.
func (r *Reader) Done() error {
	if r.err != nil {
		return r.err
	}
	if !r.s.Empty() {
		return ErrTrailingData
	}
	return nil
}
