package tlv

import "encoding/binary"

// TagControl is the tag form encoded in the upper 3 bits of the control octet.
type TagControl int

const (
	TagControlAnonymous        TagControl = 0
	TagControlContext          TagControl = 1
	TagControlCommonProfile2   TagControl = 2
	TagControlCommonProfile4   TagControl = 3
	TagControlImplicitProfile2 TagControl = 4
	TagControlImplicitProfile4 TagControl = 5
	TagControlFullyQualified6  TagControl = 6
	TagControlFullyQualified8  TagControl = 7
)

// size returns the size in bytes of the tag field for this control form.
func (tc TagControl) size() int {
	switch tc {
	case TagControlContext:
		return 1
	case TagControlCommonProfile2, TagControlImplicitProfile2:
		return 2
	case TagControlCommonProfile4, TagControlImplicitProfile4:
		return 4
	case TagControlFullyQualified6:
		return 6
	case TagControlFullyQualified8:
		return 8
	}
	return 0
}

// Tag identifies a TLV element within its container.
type Tag struct {
	control   TagControl
	profileID uint32
	tagNumber uint32
}

// Anonymous returns the anonymous tag.
func Anonymous() Tag {
	return Tag{control: TagControlAnonymous}
}

// ContextTag returns a context-specific tag (0-255).
func ContextTag(tagNum uint8) Tag {
	return Tag{control: TagControlContext, tagNumber: uint32(tagNum)}
}

// ProfileTag returns a fully-qualified profile-specific tag.
func ProfileTag(profileID, tagNum uint32) Tag {
	ctrl := TagControlFullyQualified6
	if tagNum >= 1<<16 {
		ctrl = TagControlFullyQualified8
	}
	return Tag{control: ctrl, profileID: profileID, tagNumber: tagNum}
}

// Control returns the tag control form.
func (t Tag) Control() TagControl {
	return t.control
}

// IsContext reports whether t is the context tag n.
func (t Tag) IsContext(n uint8) bool {
	return t.control == TagControlContext && t.tagNumber == uint32(n)
}

// ProfileID returns the profile id for fully-qualified tags.
func (t Tag) ProfileID() uint32 {
	return t.profileID
}

// TagNumber returns the tag number.
func (t Tag) TagNumber() uint32 {
	return t.tagNumber
}

// appendTo appends the encoded tag to dst.
func (t Tag) appendTo(dst []byte) []byte {
	switch t.control {
	case TagControlContext:
		return append(dst, byte(t.tagNumber))
	case TagControlCommonProfile2, TagControlImplicitProfile2:
		return binary.LittleEndian.AppendUint16(dst, uint16(t.tagNumber))
	case TagControlCommonProfile4, TagControlImplicitProfile4:
		return binary.LittleEndian.AppendUint32(dst, t.tagNumber)
	case TagControlFullyQualified6:
		dst = binary.LittleEndian.AppendUint32(dst, t.profileID)
		return binary.LittleEndian.AppendUint16(dst, uint16(t.tagNumber))
	case TagControlFullyQualified8:
		dst = binary.LittleEndian.AppendUint32(dst, t.profileID)
		return binary.LittleEndian.AppendUint32(dst, t.tagNumber)
	}
	return dst
}

// parseTag decodes a tag of the given control form from b.
func parseTag(ctrl TagControl, b []byte) Tag {
	tag := Tag{control: ctrl}
	switch ctrl {
	case TagControlContext:
		tag.tagNumber = uint32(b[0])
	case TagControlCommonProfile2, TagControlImplicitProfile2:
		tag.tagNumber = uint32(binary.LittleEndian.Uint16(b))
	case TagControlCommonProfile4, TagControlImplicitProfile4:
		tag.tagNumber = binary.LittleEndian.Uint32(b)
	case TagControlFullyQualified6:
		tag.profileID = binary.LittleEndian.Uint32(b)
		tag.tagNumber = uint32(binary.LittleEndian.Uint16(b[4:]))
	case TagControlFullyQualified8:
		tag.profileID = binary.LittleEndian.Uint32(b)
		tag.tagNumber = binary.LittleEndian.Uint32(b[4:])
	}
	return tag
}
