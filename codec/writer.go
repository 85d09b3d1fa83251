package codec

import (
	"encoding/binary"

	"mini-jdi/message"
)

// Writer builds a packet's data section.
type Writer struct {
	buf   []byte
	sizes message.IDSizes
}

func NewWriter(sizes message.IDSizes) *Writer {
	return &Writer{sizes: sizes}
}

// Bytes returns the encoded data.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// IDSizes returns the identifier widths this writer encodes with.
func (w *Writer) IDSizes() message.IDSizes {
	return w.sizes
}

func (w *Writer) Byte(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) Bool(v bool) {
	if v {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
}

func (w *Writer) Int(v int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
}

func (w *Writer) Long(v int64) {
	w.ULong(uint64(v))
}

func (w *Writer) ULong(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

func (w *Writer) String(s string) {
	w.Int(int32(len(s)))
	w.buf = append(w.buf, s...)
}

// id writes the low size bytes of v, big-endian.
func (w *Writer) id(v uint64, size int32) {
	for i := size - 1; i >= 0; i-- {
		w.buf = append(w.buf, byte(v>>(8*uint(i))))
	}
}

func (w *Writer) ObjectID(v message.ObjectID) {
	w.id(uint64(v), w.sizes.ObjectIDSize)
}

func (w *Writer) ReferenceTypeID(v message.ReferenceTypeID) {
	w.id(uint64(v), w.sizes.ReferenceTypeIDSize)
}

func (w *Writer) MethodID(v message.MethodID) {
	w.id(uint64(v), w.sizes.MethodIDSize)
}

func (w *Writer) FieldID(v message.FieldID) {
	w.id(uint64(v), w.sizes.FieldIDSize)
}

func (w *Writer) FrameID(v message.FrameID) {
	w.id(uint64(v), w.sizes.FrameIDSize)
}

func (w *Writer) TypeTag(t message.TypeTag) {
	w.Byte(uint8(t))
}

func (w *Writer) Tag(t message.Tag) {
	w.Byte(uint8(t))
}

// TaggedObjectID writes a value tag followed by an object id.
func (w *Writer) TaggedObjectID(t message.Tag, id message.ObjectID) {
	w.Tag(t)
	w.ObjectID(id)
}

// Location writes the JDWP location layout: type tag, class id, method id, index.
func (w *Writer) Location(tag message.TypeTag, class message.ReferenceTypeID, method message.MethodID, index uint64) {
	w.TypeTag(tag)
	w.ReferenceTypeID(class)
	w.MethodID(method)
	w.ULong(index)
}

// TaggedReferenceType writes a type tag followed by a reference type id.
func (w *Writer) TaggedReferenceType(tag message.TypeTag, id message.ReferenceTypeID) {
	w.TypeTag(tag)
	w.ReferenceTypeID(id)
}
