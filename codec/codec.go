// Package codec reads and writes the data section of JDWP packets.
//
// JDWP data is a flat sequence of big-endian fields with no self-description: the
// receiver must know the layout of every reply. Identifiers are variable width; their
// sizes come from the VirtualMachine.IDSizes reply and are carried by Reader and Writer.
//
// Code indices and other JDWP longs that are unsigned by definition are exposed as
// uint64 so ordering and arithmetic never see them as negative.
package codec

import (
	"cmp"
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrUnexpectedEOF = errors.New("unexpected end of data")
	ErrUnknownTag    = errors.New("unknown tag")
	ErrInvalidIDSize = errors.New("invalid identifier size")
	ErrNegativeIndex = errors.New("code index out of range")
)

// ProtocolError reports a malformed data section. Field is the label of the value being
// read when the problem was detected.
type ProtocolError struct {
	Field string
	Err   error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("jdwp: reading %s: %v", e.Field, e.Err)
}

// NegativeIndex reports a code index with the sign bit set, which no VM may send.
func NegativeIndex(field string, index uint64) *ProtocolError {
	return &ProtocolError{Field: field, Err: fmt.Errorf("%w: %s", ErrNegativeIndex, FormatUnsigned(index))}
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// CompareUnsigned orders two JDWP unsigned longs.
func CompareUnsigned(a, b uint64) int {
	return cmp.Compare(a, b)
}

// FormatUnsigned renders an unsigned long in decimal.
func FormatUnsigned(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// IsNegativeLong reports whether v would be negative as a Java long. JDWP never
// produces such code indices.
func IsNegativeLong(v uint64) bool {
	return int64(v) < 0
}
