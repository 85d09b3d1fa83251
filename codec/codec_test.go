package codec

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-jdi/message"
)

func TestPrimitiveRoundTrip(t *testing.T) {
	w := NewWriter(message.DefaultIDSizes)
	w.Byte(0xfe)
	w.Bool(true)
	w.Int(-42)
	w.Long(math.MinInt64)
	w.ULong(math.MaxUint64)
	w.String("héllo")
	w.String("")

	r := NewReader(w.Bytes(), message.DefaultIDSizes)
	assert.Equal(t, uint8(0xfe), r.Byte("byte"))
	assert.True(t, r.Bool("bool"))
	assert.Equal(t, int32(-42), r.Int("int"))
	assert.Equal(t, int64(math.MinInt64), r.Long("long"))
	assert.Equal(t, uint64(math.MaxUint64), r.ULong("ulong"))
	assert.Equal(t, "héllo", r.String("string"))
	assert.Equal(t, "", r.String("empty"))
	require.NoError(t, r.Err())
	assert.Zero(t, r.Remaining())
}

func TestVariableWidthIDs(t *testing.T) {
	sizes := message.IDSizes{
		FieldIDSize:         2,
		MethodIDSize:        4,
		ObjectIDSize:        8,
		ReferenceTypeIDSize: 4,
		FrameIDSize:         1,
	}
	w := NewWriter(sizes)
	w.FieldID(0x0102)
	w.MethodID(0xdeadbeef)
	w.ObjectID(0x0102030405060708)
	w.ReferenceTypeID(7)
	w.FrameID(9)
	require.Len(t, w.Bytes(), 2+4+8+4+1)
	assert.Equal(t, []byte{0x01, 0x02, 0xde, 0xad, 0xbe, 0xef}, w.Bytes()[:6])

	r := NewReader(w.Bytes(), sizes)
	assert.Equal(t, message.FieldID(0x0102), r.FieldID("field"))
	assert.Equal(t, message.MethodID(0xdeadbeef), r.MethodID("method"))
	assert.Equal(t, message.ObjectID(0x0102030405060708), r.ObjectID("object"))
	assert.Equal(t, message.ReferenceTypeID(7), r.ReferenceTypeID("type"))
	assert.Equal(t, message.FrameID(9), r.FrameID("frame"))
	require.NoError(t, r.Err())
}

func TestLocationLayout(t *testing.T) {
	w := NewWriter(message.DefaultIDSizes)
	w.Location(message.TypeTagClass, 0x11, 0x22, 0x8000000000000001)

	want := []byte{1}
	want = append(want, 0, 0, 0, 0, 0, 0, 0, 0x11)
	want = append(want, 0, 0, 0, 0, 0, 0, 0, 0x22)
	want = append(want, 0x80, 0, 0, 0, 0, 0, 0, 1)
	assert.True(t, bytes.Equal(want, w.Bytes()), "got % x", w.Bytes())

	r := NewReader(w.Bytes(), message.DefaultIDSizes)
	tag, class, method, index := r.Location("location")
	require.NoError(t, r.Err())
	assert.Equal(t, message.TypeTagClass, tag)
	assert.Equal(t, message.ReferenceTypeID(0x11), class)
	assert.Equal(t, message.MethodID(0x22), method)
	assert.Equal(t, uint64(0x8000000000000001), index)
}

func TestUnexpectedEOFIsSticky(t *testing.T) {
	r := NewReader([]byte{0, 0, 0, 1, 0xaa}, message.DefaultIDSizes)
	assert.Equal(t, int32(1), r.Int("count"))
	assert.Zero(t, r.ULong("index"))

	err := r.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnexpectedEOF))

	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "index", perr.Field)

	// Later reads keep the first failure.
	assert.Zero(t, r.Byte("tail"))
	assert.Equal(t, "index", r.Err().(*ProtocolError).Field)
}

func TestStringLengthBeyondData(t *testing.T) {
	r := NewReader([]byte{0, 0, 0, 10, 'a', 'b'}, message.DefaultIDSizes)
	assert.Equal(t, "", r.String("name"))
	assert.ErrorIs(t, r.Err(), ErrUnexpectedEOF)
}

func TestNegativeStringLength(t *testing.T) {
	r := NewReader([]byte{0xff, 0xff, 0xff, 0xff}, message.DefaultIDSizes)
	r.String("name")
	require.Error(t, r.Err())
}

func TestCountGuardsAllocation(t *testing.T) {
	// Claims a million 8-byte entries but carries none.
	r := NewReader([]byte{0, 0x0f, 0x42, 0x40}, message.DefaultIDSizes)
	assert.Zero(t, r.Count("lines", 8))
	assert.ErrorIs(t, r.Err(), ErrUnexpectedEOF)
}

func TestUnknownTypeTag(t *testing.T) {
	r := NewReader([]byte{7}, message.DefaultIDSizes)
	r.TypeTag("refTypeTag")
	assert.ErrorIs(t, r.Err(), ErrUnknownTag)
}

func TestZeroTypeTagAccepted(t *testing.T) {
	r := NewReader([]byte{0}, message.DefaultIDSizes)
	assert.Equal(t, message.TypeTag(0), r.TypeTag("refTypeTag"))
	assert.NoError(t, r.Err())
}

func TestUnknownValueTag(t *testing.T) {
	r := NewReader([]byte{'?'}, message.DefaultIDSizes)
	r.Tag("tag")
	assert.ErrorIs(t, r.Err(), ErrUnknownTag)
}

func TestTaggedObjectIDRejectsPrimitive(t *testing.T) {
	w := NewWriter(message.DefaultIDSizes)
	w.Tag(message.TagInt)
	w.ObjectID(1)
	r := NewReader(w.Bytes(), message.DefaultIDSizes)
	r.TaggedObjectID("exception")
	assert.ErrorIs(t, r.Err(), ErrUnknownTag)
}

func TestInvalidIDSize(t *testing.T) {
	r := NewReader(make([]byte, 16), message.IDSizes{ObjectIDSize: 0})
	r.ObjectID("object")
	assert.ErrorIs(t, r.Err(), ErrInvalidIDSize)
}

func TestUnsignedHelpers(t *testing.T) {
	assert.Equal(t, -1, CompareUnsigned(1, math.MaxUint64))
	assert.Equal(t, 1, CompareUnsigned(1<<63, 1))
	assert.Equal(t, 0, CompareUnsigned(5, 5))
	assert.Equal(t, "18446744073709551615", FormatUnsigned(math.MaxUint64))
	assert.True(t, IsNegativeLong(1<<63))
	assert.False(t, IsNegativeLong(math.MaxInt64))
}
