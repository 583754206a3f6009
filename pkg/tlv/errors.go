package tlv

import "errors"

var (
	// ErrUnexpectedEOF is returned when the input ends unexpectedly.
	ErrUnexpectedEOF = errors.New("tlv: unexpected end of input")

	// ErrInvalidElementType is returned when an invalid element type is encountered.
	ErrInvalidElementType = errors.New("tlv: invalid element type")

	// ErrTypeMismatch is returned when trying to read a value as the wrong type.
	ErrTypeMismatch = errors.New("tlv: type mismatch")

	// ErrNotInContainer is returned when trying to exit a container when not in one.
	ErrNotInContainer = errors.New("tlv: not in container")

	// ErrNoElement is returned when trying to access an element before calling Next().
	ErrNoElement = errors.New("tlv: no current element")

	// ErrUnexpectedTag is returned when an element carries an unexpected tag.
	ErrUnexpectedTag = errors.New("tlv: unexpected tag")
)
