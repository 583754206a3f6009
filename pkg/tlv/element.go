// Package tlv implements the subset of the Weave TLV (Tag-Length-Value)
// encoding used by the security protocols: unsigned integers, octet strings,
// booleans, structures and arrays.
//
// Integers and lengths are little-endian. A control octet carries the element
// type in its low 5 bits and the tag form in its high 3 bits.
package tlv

// ElementType is the type of a TLV element as encoded in the control octet.
type ElementType int

const (
	ElementTypeInt8    ElementType = 0x00
	ElementTypeInt16   ElementType = 0x01
	ElementTypeInt32   ElementType = 0x02
	ElementTypeInt64   ElementType = 0x03
	ElementTypeUInt8   ElementType = 0x04
	ElementTypeUInt16  ElementType = 0x05
	ElementTypeUInt32  ElementType = 0x06
	ElementTypeUInt64  ElementType = 0x07
	ElementTypeFalse   ElementType = 0x08
	ElementTypeTrue    ElementType = 0x09
	ElementTypeFloat32 ElementType = 0x0A
	ElementTypeFloat64 ElementType = 0x0B
	ElementTypeUTF8_1  ElementType = 0x0C
	ElementTypeUTF8_2  ElementType = 0x0D
	ElementTypeUTF8_4  ElementType = 0x0E
	ElementTypeUTF8_8  ElementType = 0x0F
	ElementTypeBytes1  ElementType = 0x10
	ElementTypeBytes2  ElementType = 0x11
	ElementTypeBytes4  ElementType = 0x12
	ElementTypeBytes8  ElementType = 0x13
	ElementTypeNull    ElementType = 0x14
	ElementTypeStruct  ElementType = 0x15
	ElementTypeArray   ElementType = 0x16
	ElementTypePath    ElementType = 0x17
	ElementTypeEnd     ElementType = 0x18
)

// IsUnsignedInt returns true if the element type is an unsigned integer.
func (e ElementType) IsUnsignedInt() bool {
	return e >= ElementTypeUInt8 && e <= ElementTypeUInt64
}

// IsBytes returns true if the element type is an octet string.
func (e ElementType) IsBytes() bool {
	return e >= ElementTypeBytes1 && e <= ElementTypeBytes8
}

// IsString returns true for both UTF-8 and octet strings.
func (e ElementType) IsString() bool {
	return e >= ElementTypeUTF8_1 && e <= ElementTypeBytes8
}

// IsContainer returns true for structures, arrays and paths.
func (e ElementType) IsContainer() bool {
	return e == ElementTypeStruct || e == ElementTypeArray || e == ElementTypePath
}

// valueSize returns the size of the value field for fixed-size types.
func (e ElementType) valueSize() int {
	switch e {
	case ElementTypeInt8, ElementTypeUInt8:
		return 1
	case ElementTypeInt16, ElementTypeUInt16:
		return 2
	case ElementTypeInt32, ElementTypeUInt32, ElementTypeFloat32:
		return 4
	case ElementTypeInt64, ElementTypeUInt64, ElementTypeFloat64:
		return 8
	}
	return 0
}

// lengthFieldSize returns the size of the length field for string types.
func (e ElementType) lengthFieldSize() int {
	if !e.IsString() {
		return 0
	}
	return 1 << ((e - ElementTypeUTF8_1) & 0x03)
}

const (
	elementTypeMask = 0x1F
	tagControlShift = 5
)

func parseControlOctet(b byte) (ElementType, TagControl) {
	return ElementType(b & elementTypeMask), TagControl(b >> tagControlShift)
}

func buildControlOctet(elemType ElementType, tagCtrl TagControl) byte {
	return byte(elemType&elementTypeMask) | byte(tagCtrl<<tagControlShift)
}
