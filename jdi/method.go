package jdi

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"mini-jdi/codec"
	"mini-jdi/message"
	"mini-jdi/smap"
)

// Method mirrors a method of a ReferenceType. Its name, signature and modifiers arrive
// with the declaring type's method list; line tables are fetched per stratum on demand.
type Method struct {
	declaringType *ReferenceType
	id            message.MethodID

	mu        sync.Mutex
	loaded    bool
	name      string
	signature string
	modifiers int32

	javaLines lazy[*lineTable]

	strataMu sync.Mutex
	strata   map[string]*lineTable
	group    singleflight.Group
}

func newMethod(rt *ReferenceType, id message.MethodID) *Method {
	return &Method{declaringType: rt, id: id, strata: make(map[string]*lineTable)}
}

func (m *Method) ID() message.MethodID {
	return m.id
}

func (m *Method) DeclaringType() *ReferenceType {
	return m.declaringType
}

func (m *Method) VirtualMachine() *Session {
	return m.declaringType.vm
}

func (m *Method) setInfo(name, signature string, modifiers int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = true
	m.name, m.signature, m.modifiers = name, signature, modifiers
}

// info makes sure the declaring type's method list has been fetched.
func (m *Method) info() (name, signature string, modifiers int32, err error) {
	m.mu.Lock()
	loaded := m.loaded
	m.mu.Unlock()
	if !loaded {
		if _, err := m.declaringType.Methods(); err != nil {
			return "", "", 0, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		return "", "", 0, fmt.Errorf("jdi: %v not declared by %v", m.id, m.declaringType.id)
	}
	return m.name, m.signature, m.modifiers, nil
}

func (m *Method) Name() (string, error) {
	name, _, _, err := m.info()
	return name, err
}

// Signature returns the JNI method signature, e.g. "(I)V".
func (m *Method) Signature() (string, error) {
	_, sig, _, err := m.info()
	return sig, err
}

// Modifiers returns the access flags as reported by the VM.
func (m *Method) Modifiers() (int32, error) {
	_, _, mods, err := m.info()
	return mods, err
}

func (m *Method) hasModifier(bit int32) bool {
	mods, err := m.Modifiers()
	return err == nil && mods&bit != 0
}

func (m *Method) IsStatic() bool {
	return m.hasModifier(message.AccStatic)
}

func (m *Method) IsNative() bool {
	return m.hasModifier(message.AccNative)
}

func (m *Method) IsAbstract() bool {
	return m.hasModifier(message.AccAbstract)
}

// IsSynthetic reports whether the compiler generated the method. VMs flag this either
// with the class file bit or with the JDWP-specific bit.
func (m *Method) IsSynthetic() bool {
	mods, err := m.Modifiers()
	return err == nil && (mods&message.AccSynthetic != 0 || mods&message.AccJDWPSynthetic != 0)
}

// IsLambda reports whether the method holds the body of a lambda expression.
func (m *Method) IsLambda() bool {
	name, err := m.Name()
	return err == nil && m.IsSynthetic() && strings.HasPrefix(name, "lambda$")
}

// lineTable returns the method's line table in stratum st. Each stratum is computed
// once; concurrent first requests share one computation.
func (m *Method) lineTable(st string) (*lineTable, error) {
	if st == smap.JavaStratum {
		return m.javaLines.get(m.fetchLineTable)
	}

	m.strataMu.Lock()
	t, ok := m.strata[st]
	m.strataMu.Unlock()
	if ok {
		return t, nil
	}

	v, err, _ := m.group.Do(st, func() (any, error) {
		java, err := m.javaLines.get(m.fetchLineTable)
		if err != nil {
			return nil, err
		}
		stratum := m.declaringType.smapOrNil().Stratum(st)
		if stratum == nil {
			return java, nil
		}
		pkg, err := m.declaringType.packagePath()
		if err != nil {
			return nil, err
		}
		t := java.translate(stratum, pkg)
		m.strataMu.Lock()
		m.strata[st] = t
		m.strataMu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*lineTable), nil
}

func (m *Method) fetchLineTable() (*lineTable, error) {
	if m.IsNative() || m.IsAbstract() {
		return &lineTable{}, nil
	}
	s := m.VirtualMachine()
	r, err := s.command(s.ctx, message.MethodLineTable, func(w *codec.Writer) {
		w.ReferenceTypeID(m.declaringType.id)
		w.MethodID(m.id)
	})
	if IsCode(err, message.ErrNativeMethod) {
		return &lineTable{}, nil
	}
	if err != nil {
		return nil, err
	}

	t := &lineTable{
		start: uint64(s.ReadLong("start", r)),
		end:   uint64(s.ReadLong("end", r)),
	}
	n := r.Count("lines", 12)
	t.entries = make([]lineEntry, 0, n)
	for range n {
		index := r.ULong("lineCodeIndex")
		line := r.Int("lineNumber")
		if codec.IsNegativeLong(index) {
			return nil, codec.NegativeIndex("lineCodeIndex", index)
		}
		t.entries = append(t.entries, lineEntry{index: index, line: int(line)})
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	slices.SortStableFunc(t.entries, func(a, b lineEntry) int {
		return codec.CompareUnsigned(a.index, b.index)
	})
	return t, nil
}

// AllLineLocations returns one location per line table entry of this method.
func (m *Method) AllLineLocations(stratum string) ([]*Location, error) {
	t, err := m.lineTable(m.declaringType.stratumFor(stratum))
	if err != nil {
		return nil, err
	}
	var locs []*Location
	for _, e := range t.entries {
		if e.line >= 0 {
			locs = append(locs, NewLocation(m, e.index))
		}
	}
	return locs, nil
}

// LocationOfCodeIndex returns the location of index within this method. It does not
// check the index against the method's code range.
func (m *Method) LocationOfCodeIndex(index uint64) *Location {
	return NewLocation(m, index)
}

// Equal reports whether both mirrors denote the same remote method.
func (m *Method) Equal(other *Method) bool {
	if m == other {
		return true
	}
	return m != nil && other != nil &&
		m.declaringType.vm == other.declaringType.vm &&
		m.declaringType.id == other.declaringType.id &&
		m.id == other.id
}

// Compare orders methods by session, declaring type id, then method id, the ids
// unsigned. It never talks to the VM.
func (m *Method) Compare(other *Method) int {
	if mv, ov := m.declaringType.vm, other.declaringType.vm; mv != ov {
		return cmp.Compare(mv.seq, ov.seq)
	}
	if c := cmp.Compare(m.declaringType.id, other.declaringType.id); c != 0 {
		return c
	}
	return cmp.Compare(m.id, other.id)
}

// Hash is consistent with Equal.
func (m *Method) Hash() uint32 {
	h := uint64(m.declaringType.id)*31 + uint64(m.id)
	return uint32(h ^ h>>32)
}

func (m *Method) String() string {
	name, err := m.Name()
	if err != nil {
		return fmt.Sprintf("%v.%v", m.declaringType, m.id)
	}
	typeName, err := m.declaringType.Name()
	if err != nil {
		typeName = m.declaringType.id.String()
	}
	return typeName + "." + name
}
