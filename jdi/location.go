package jdi

import (
	"fmt"

	"mini-jdi/codec"
	"mini-jdi/message"
)

// Location is a code position: a method and an unsigned code index into its bytecode.
// Locations are immutable values and are not interned; two Locations are the same
// position when Equal reports so.
type Location struct {
	method *Method
	index  uint64
}

// LocationKey is a comparable form of a Location for use as a map key. Keys of different
// sessions may collide.
type LocationKey struct {
	Type   message.ReferenceTypeID
	Method message.MethodID
	Index  uint64
}

func NewLocation(m *Method, index uint64) *Location {
	return &Location{method: m, index: index}
}

// ReadLocation reads a JDWP location. It returns nil, nil when the location is null,
// i.e. its type or method id is zero, which the VM sends for an uncaught exception's
// catch location.
func ReadLocation(s *Session, r *codec.Reader) (*Location, error) {
	m, err := s.readMethodReference(r)
	if err != nil {
		return nil, err
	}
	index := uint64(s.ReadLong("index", r))
	if err := r.Err(); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}
	if codec.IsNegativeLong(index) {
		return nil, codec.NegativeIndex("index", index)
	}
	return NewLocation(m, index), nil
}

// Write emits the location in JDWP layout: tagged type, method id, code index.
func (l *Location) Write(w *codec.Writer) {
	rt := l.method.declaringType
	w.TaggedReferenceType(rt.Tag(), rt.id)
	w.MethodID(l.method.id)
	rt.vm.WriteLong("index", int64(l.index), w)
}

func (l *Location) CodeIndex() uint64 {
	return l.index
}

func (l *Location) Method() *Method {
	return l.method
}

func (l *Location) DeclaringType() *ReferenceType {
	return l.method.declaringType
}

func (l *Location) VirtualMachine() *Session {
	return l.method.declaringType.vm
}

// LineNumber returns the line in the default stratum, or LineNotAvailable.
func (l *Location) LineNumber() int {
	return l.LineNumberStratum("")
}

// LineNumberStratum returns the line in the given stratum, or LineNotAvailable when no
// line table entry covers the location. It never fails.
func (l *Location) LineNumberStratum(stratum string) int {
	return l.DeclaringType().lineNumber(l.method, l.index, stratum)
}

// SourceName returns the source file name in the default stratum.
func (l *Location) SourceName() (string, error) {
	return l.SourceNameStratum("")
}

// SourceNameStratum returns the source file name in the given stratum. It fails with
// ErrAbsentInformation when the type carries no such information.
func (l *Location) SourceNameStratum(stratum string) (string, error) {
	return l.DeclaringType().sourceNameAt(l.method, l.index, stratum)
}

// SourcePath returns the source path, relative to a source root, in the default stratum.
func (l *Location) SourcePath() (string, error) {
	return l.SourcePathStratum("")
}

// SourcePathStratum returns the source path in the given stratum. For Java this is the
// package directory joined with the source name.
func (l *Location) SourcePathStratum(stratum string) (string, error) {
	return l.DeclaringType().sourcePathAt(l.method, l.index, stratum)
}

// Compare orders locations by method, then by code index as an unsigned value. It
// panics when other is nil or either index is negative as a JDWP long; the VM never
// produces such indices.
func (l *Location) Compare(other *Location) int {
	if other == nil {
		panic("jdi: comparing location with nil")
	}
	if codec.IsNegativeLong(l.index) || codec.IsNegativeLong(other.index) {
		panic(fmt.Sprintf("jdi: negative code index comparing %s and %s",
			codec.FormatUnsigned(l.index), codec.FormatUnsigned(other.index)))
	}
	if !l.method.Equal(other.method) {
		return l.method.Compare(other.method)
	}
	return codec.CompareUnsigned(l.index, other.index)
}

func (l *Location) Equal(other *Location) bool {
	if other == nil {
		return false
	}
	return l.index == other.index && l.method.Equal(other.method)
}

// Hash is consistent with Equal.
func (l *Location) Hash() uint32 {
	return l.method.Hash() + uint32(l.index)
}

func (l *Location) Key() LocationKey {
	return LocationKey{Type: l.method.declaringType.id, Method: l.method.id, Index: l.index}
}

// String renders "source:line" when both are known.
func (l *Location) String() string {
	line := l.LineNumber()
	name, err := l.SourceName()
	if err != nil || line == LineNotAvailable {
		return fmt.Sprintf("%v+%s", l.method, codec.FormatUnsigned(l.index))
	}
	return fmt.Sprintf("%s:%d", name, line)
}
