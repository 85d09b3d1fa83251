package codec

import (
	"encoding/binary"
	"fmt"

	"mini-jdi/message"
)

// Reader decodes a packet's data section. The first error is sticky: once a read
// fails every later read returns a zero value and Err reports the original failure.
type Reader struct {
	data  []byte
	off   int
	sizes message.IDSizes
	err   error
}

func NewReader(data []byte, sizes message.IDSizes) *Reader {
	return &Reader{data: data, sizes: sizes}
}

// Err returns the first error encountered.
func (r *Reader) Err() error {
	return r.err
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// IDSizes returns the identifier widths this reader decodes with.
func (r *Reader) IDSizes() message.IDSizes {
	return r.sizes
}

func (r *Reader) fail(label string, err error) {
	if r.err == nil {
		r.err = &ProtocolError{Field: label, Err: err}
	}
}

// next returns the following n bytes, or nil after recording ErrUnexpectedEOF.
func (r *Reader) next(label string, n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Remaining() < n {
		r.fail(label, ErrUnexpectedEOF)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) Byte(label string) uint8 {
	b := r.next(label, 1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Bool(label string) bool {
	return r.Byte(label) != 0
}

func (r *Reader) Int(label string) int32 {
	b := r.next(label, 4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (r *Reader) Long(label string) int64 {
	return int64(r.ULong(label))
}

// ULong reads a JDWP long that is unsigned by definition, such as a code index.
func (r *Reader) ULong(label string) uint64 {
	b := r.next(label, 8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// String reads a length-prefixed UTF-8 string.
func (r *Reader) String(label string) string {
	n := r.Int(label)
	if r.err != nil {
		return ""
	}
	if n < 0 {
		r.fail(label, fmt.Errorf("negative string length %d", n))
		return ""
	}
	b := r.next(label, int(n))
	if b == nil {
		return ""
	}
	return string(b)
}

// Count reads a 32-bit element count and checks it against the bytes left, assuming
// every element is at least minSize bytes long.
func (r *Reader) Count(label string, minSize int) int {
	n := r.Int(label)
	if r.err != nil {
		return 0
	}
	if n < 0 {
		r.fail(label, fmt.Errorf("negative count %d", n))
		return 0
	}
	if minSize > 0 && int64(n)*int64(minSize) > int64(r.Remaining()) {
		r.fail(label, ErrUnexpectedEOF)
		return 0
	}
	return int(n)
}

func (r *Reader) id(label string, size int32) uint64 {
	if size < 1 || size > 8 {
		r.fail(label, fmt.Errorf("%w: %d", ErrInvalidIDSize, size))
		return 0
	}
	b := r.next(label, int(size))
	if b == nil {
		return 0
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func (r *Reader) ObjectID(label string) message.ObjectID {
	return message.ObjectID(r.id(label, r.sizes.ObjectIDSize))
}

func (r *Reader) ReferenceTypeID(label string) message.ReferenceTypeID {
	return message.ReferenceTypeID(r.id(label, r.sizes.ReferenceTypeIDSize))
}

func (r *Reader) MethodID(label string) message.MethodID {
	return message.MethodID(r.id(label, r.sizes.MethodIDSize))
}

func (r *Reader) FieldID(label string) message.FieldID {
	return message.FieldID(r.id(label, r.sizes.FieldIDSize))
}

func (r *Reader) FrameID(label string) message.FrameID {
	return message.FrameID(r.id(label, r.sizes.FrameIDSize))
}

// TypeTag reads a reference type tag. A zero tag is accepted because JDWP uses an
// all-zero location to mean "no location"; anything else outside 1..3 is an error.
func (r *Reader) TypeTag(label string) message.TypeTag {
	t := message.TypeTag(r.Byte(label))
	if r.err == nil && t != 0 && !t.Valid() {
		r.fail(label, fmt.Errorf("%w: type tag %d", ErrUnknownTag, uint8(t)))
		return 0
	}
	return t
}

// Tag reads a value tag and rejects anything JDWP does not define.
func (r *Reader) Tag(label string) message.Tag {
	t := message.Tag(r.Byte(label))
	if r.err != nil {
		return 0
	}
	switch t {
	case message.TagByte, message.TagChar, message.TagFloat, message.TagDouble,
		message.TagInt, message.TagLong, message.TagShort, message.TagVoid, message.TagBoolean:
		return t
	}
	if t.IsObject() {
		return t
	}
	r.fail(label, fmt.Errorf("%w: %q", ErrUnknownTag, rune(t)))
	return 0
}

// TaggedObjectID reads a value tag followed by an object id.
func (r *Reader) TaggedObjectID(label string) (message.Tag, message.ObjectID) {
	t := r.Tag(label)
	if r.err == nil && !t.IsObject() {
		r.fail(label, fmt.Errorf("%w: %q is not an object tag", ErrUnknownTag, rune(t)))
		return 0, 0
	}
	return t, r.ObjectID(label)
}

// Location reads the JDWP location layout without resolving anything.
func (r *Reader) Location(label string) (message.TypeTag, message.ReferenceTypeID, message.MethodID, uint64) {
	tag := r.TypeTag(label)
	class := r.ReferenceTypeID(label)
	method := r.MethodID(label)
	index := r.ULong(label)
	return tag, class, method, index
}
