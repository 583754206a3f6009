package pase

import (
	"fmt"

	"github.com/backkem/weave/pkg/wire"
)

// sizeHeader carries the word counts of the message fields. extra is the
// alternate config count in initiator step 1 and the key confirmation hash
// size elsewhere.
type sizeHeader struct {
	gx, gr, b, extra uint8
}

func (h sizeHeader) encode() uint32 {
	return uint32(h.gx) | uint32(h.gr)<<8 | uint32(h.b)<<16 | uint32(h.extra)<<24
}

func decodeSizeHeader(v uint32) sizeHeader {
	return sizeHeader{gx: uint8(v), gr: uint8(v >> 8), b: uint8(v >> 16), extra: uint8(v >> 24)}
}

// commitmentSizeHeader returns the size header for messages of s carrying
// commitments.
func commitmentSizeHeader(s suite, extraBytes int) sizeHeader {
	gx, gr, b := s.fieldSizes()
	return sizeHeader{gx: uint8(gx / 4), gr: uint8(gr / 4), b: uint8(b / 4), extra: uint8(extraBytes / 4)}
}

// confirmSizeHeader returns the size header of a key confirmation message.
func confirmSizeHeader(s suite) sizeHeader {
	return sizeHeader{extra: uint8(s.hashSize() / 4)}
}

func checkSizeHeader(got, want sizeHeader) error {
	if got != want {
		return fmt.Errorf("%w: size header %#08x, want %#08x", ErrInvalidMessage, got.encode(), want.encode())
	}
	return nil
}

func commitmentsLen(s suite, n int) int {
	gx, gr, b := s.fieldSizes()
	return n * (gx + gr + b)
}

func putCommitment(w *wire.Writer, c commitment) {
	w.PutBytes(c.gx)
	w.PutBytes(c.gr)
	w.PutBytes(c.b)
}

// readCommitment reads one commitment of s, copying it out of the message.
func readCommitment(r *wire.Reader, s suite) commitment {
	gx, gr, b := s.fieldSizes()
	return commitment{
		gx: append([]byte(nil), r.Bytes(gx)...),
		gr: append([]byte(nil), r.Bytes(gr)...),
		b:  append([]byte(nil), r.Bytes(b)...),
	}
}

// finish checks that r consumed the whole message without error.
func finish(r *wire.Reader) error {
	if err := r.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := r.Done(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}
