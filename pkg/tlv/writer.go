package tlv

import (
	"encoding/binary"
	"math"
)

// Writer encodes TLV elements into an in-memory buffer.
type Writer struct {
	buf            []byte
	containerStack []ElementType
}

// NewWriter creates a new TLV Writer.
func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) writeControlAndTag(elemType ElementType, tag Tag) {
	w.buf = append(w.buf, buildControlOctet(elemType, tag.Control()))
	w.buf = tag.appendTo(w.buf)
}

// PutUint writes an unsigned integer using the minimum width.
func (w *Writer) PutUint(tag Tag, v uint64) {
	switch {
	case v <= math.MaxUint8:
		w.writeControlAndTag(ElementTypeUInt8, tag)
		w.buf = append(w.buf, byte(v))
	case v <= math.MaxUint16:
		w.writeControlAndTag(ElementTypeUInt16, tag)
		w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(v))
	case v <= math.MaxUint32:
		w.writeControlAndTag(ElementTypeUInt32, tag)
		w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
	default:
		w.writeControlAndTag(ElementTypeUInt64, tag)
		w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
	}
}

// PutBool writes a boolean.
func (w *Writer) PutBool(tag Tag, v bool) {
	if v {
		w.writeControlAndTag(ElementTypeTrue, tag)
	} else {
		w.writeControlAndTag(ElementTypeFalse, tag)
	}
}

// PutBytes writes an octet string using the minimum length field.
func (w *Writer) PutBytes(tag Tag, v []byte) {
	n := uint64(len(v))
	switch {
	case n <= math.MaxUint8:
		w.writeControlAndTag(ElementTypeBytes1, tag)
		w.buf = append(w.buf, byte(n))
	case n <= math.MaxUint16:
		w.writeControlAndTag(ElementTypeBytes2, tag)
		w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(n))
	case n <= math.MaxUint32:
		w.writeControlAndTag(ElementTypeBytes4, tag)
		w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(n))
	default:
		w.writeControlAndTag(ElementTypeBytes8, tag)
		w.buf = binary.LittleEndian.AppendUint64(w.buf, n)
	}
	w.buf = append(w.buf, v...)
}

// StartStructure starts a structure container with the given tag.
func (w *Writer) StartStructure(tag Tag) {
	w.writeControlAndTag(ElementTypeStruct, tag)
	w.containerStack = append(w.containerStack, ElementTypeStruct)
}

// StartArray starts an array container with the given tag.
func (w *Writer) StartArray(tag Tag) {
	w.writeControlAndTag(ElementTypeArray, tag)
	w.containerStack = append(w.containerStack, ElementTypeArray)
}

// EndContainer ends the current container.
func (w *Writer) EndContainer() error {
	if len(w.containerStack) == 0 {
		return ErrNotInContainer
	}
	w.containerStack = w.containerStack[:len(w.containerStack)-1]
	w.buf = append(w.buf, byte(ElementTypeEnd))
	return nil
}

// Bytes returns the encoded elements. All containers must be closed.
func (w *Writer) Bytes() ([]byte, error) {
	if len(w.containerStack) != 0 {
		return nil, ErrNotInContainer
	}
	return w.buf, nil
}
