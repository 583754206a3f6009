package tlv

import (
	"encoding/binary"
	"io"
)

// Reader decodes TLV elements from an in-memory buffer.
//
// Lengths are checked against the remaining input before any allocation, so
// attacker-supplied length fields cannot cause large reads.
type Reader struct {
	data           []byte
	pos            int
	containerStack []ElementType

	hasElement bool
	elemType   ElementType
	tag        Tag
	value      []byte
}

// NewReader creates a new TLV Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) take(n uint64) ([]byte, error) {
	if n > uint64(len(r.data)-r.pos) {
		return nil, ErrUnexpectedEOF
	}
	b := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

// Next advances to the next TLV element.
// Returns io.EOF when the input is exhausted.
func (r *Reader) Next() error {
	if r.hasElement && r.elemType.IsContainer() {
		if err := r.skipContainer(); err != nil {
			return err
		}
	}
	r.hasElement = false
	if r.pos == len(r.data) {
		return io.EOF
	}

	ctrl, _ := r.take(1)
	elemType, tagCtrl := parseControlOctet(ctrl[0])
	if elemType > ElementTypeEnd {
		return ErrInvalidElementType
	}
	tagBytes, err := r.take(uint64(tagCtrl.size()))
	if err != nil {
		return err
	}
	r.elemType = elemType
	r.tag = parseTag(tagCtrl, tagBytes)

	switch {
	case elemType.IsString():
		lenBytes, err := r.take(uint64(elemType.lengthFieldSize()))
		if err != nil {
			return err
		}
		var n uint64
		for i := len(lenBytes) - 1; i >= 0; i-- {
			n = n<<8 | uint64(lenBytes[i])
		}
		if r.value, err = r.take(n); err != nil {
			return err
		}
	default:
		if r.value, err = r.take(uint64(elemType.valueSize())); err != nil {
			return err
		}
	}
	r.hasElement = true
	return nil
}

// Type returns the type of the current element.
func (r *Reader) Type() ElementType {
	return r.elemType
}

// Tag returns the tag of the current element.
func (r *Reader) Tag() Tag {
	return r.tag
}

// Uint returns the current element as an unsigned integer.
func (r *Reader) Uint() (uint64, error) {
	if !r.hasElement {
		return 0, ErrNoElement
	}
	switch r.elemType {
	case ElementTypeUInt8:
		return uint64(r.value[0]), nil
	case ElementTypeUInt16:
		return uint64(binary.LittleEndian.Uint16(r.value)), nil
	case ElementTypeUInt32:
		return uint64(binary.LittleEndian.Uint32(r.value)), nil
	case ElementTypeUInt64:
		return binary.LittleEndian.Uint64(r.value), nil
	}
	return 0, ErrTypeMismatch
}

// Bool returns the current element as a boolean.
func (r *Reader) Bool() (bool, error) {
	if !r.hasElement {
		return false, ErrNoElement
	}
	switch r.elemType {
	case ElementTypeTrue:
		return true, nil
	case ElementTypeFalse:
		return false, nil
	}
	return false, ErrTypeMismatch
}

// Bytes returns a copy of the current octet string.
func (r *Reader) Bytes() ([]byte, error) {
	if !r.hasElement {
		return nil, ErrNoElement
	}
	if !r.elemType.IsBytes() {
		return nil, ErrTypeMismatch
	}
	return append([]byte{}, r.value...), nil
}

// EnterContainer enters the current structure or array.
func (r *Reader) EnterContainer() error {
	if !r.hasElement {
		return ErrNoElement
	}
	if !r.elemType.IsContainer() {
		return ErrTypeMismatch
	}
	r.containerStack = append(r.containerStack, r.elemType)
	r.hasElement = false
	return nil
}

// IsEndOfContainer returns true if the current element is an end-of-container marker.
func (r *Reader) IsEndOfContainer() bool {
	return r.hasElement && r.elemType == ElementTypeEnd
}

// ExitContainer skips any remaining elements of the current container and
// consumes its end marker.
func (r *Reader) ExitContainer() error {
	if len(r.containerStack) == 0 {
		return ErrNotInContainer
	}
	for !r.IsEndOfContainer() {
		if err := r.Next(); err != nil {
			if err == io.EOF {
				return ErrUnexpectedEOF
			}
			return err
		}
	}
	r.containerStack = r.containerStack[:len(r.containerStack)-1]
	r.hasElement = false
	return nil
}

// ContainerDepth returns the current container nesting depth.
func (r *Reader) ContainerDepth() int {
	return len(r.containerStack)
}

// Offset returns the number of bytes consumed.
func (r *Reader) Offset() int {
	return r.pos
}

// skipContainer skips the contents of the container the reader is positioned on.
func (r *Reader) skipContainer() error {
	if err := r.EnterContainer(); err != nil {
		return err
	}
	return r.ExitContainer()
}
