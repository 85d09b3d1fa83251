package jdi

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"weak"

	"mini-jdi/codec"
	"mini-jdi/message"
)

type methodKey struct {
	typeID   message.ReferenceTypeID
	methodID message.MethodID
}

// registry interns ReferenceType and Method mirrors for one session. Entries are weak:
// once no caller holds a mirror it may be collected, and a later lookup builds a fresh
// one with the same remote identity.
type registry struct {
	session *Session

	mu      sync.Mutex
	types   map[message.ReferenceTypeID]weak.Pointer[ReferenceType]
	methods map[methodKey]weak.Pointer[Method]
}

func newRegistry(s *Session) *registry {
	return &registry{
		session: s,
		types:   make(map[message.ReferenceTypeID]weak.Pointer[ReferenceType]),
		methods: make(map[methodKey]weak.Pointer[Method]),
	}
}

type typeEntry struct {
	id message.ReferenceTypeID
	wp weak.Pointer[ReferenceType]
}

type methodEntry struct {
	key methodKey
	wp  weak.Pointer[Method]
}

// referenceType returns the mirror for id, creating it on first use. A zero tag leaves
// an existing mirror's tag untouched.
func (r *registry) referenceType(tag message.TypeTag, id message.ReferenceTypeID) *ReferenceType {
	r.mu.Lock()
	defer r.mu.Unlock()

	if wp, ok := r.types[id]; ok {
		if rt := wp.Value(); rt != nil {
			if tag != 0 {
				rt.setTag(tag)
			}
			return rt
		}
	}
	rt := newReferenceType(r.session, tag, id)
	wp := weak.Make(rt)
	r.types[id] = wp
	runtime.AddCleanup(rt, r.dropType, typeEntry{id: id, wp: wp})
	return rt
}

func (r *registry) dropType(e typeEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.types[e.id]; ok && cur == e.wp {
		delete(r.types, e.id)
	}
}

// method returns the mirror for a method of rt.
func (r *registry) method(rt *ReferenceType, id message.MethodID) *Method {
	key := methodKey{typeID: rt.id, methodID: id}

	r.mu.Lock()
	defer r.mu.Unlock()

	if wp, ok := r.methods[key]; ok {
		if m := wp.Value(); m != nil {
			return m
		}
	}
	m := newMethod(rt, id)
	wp := weak.Make(m)
	r.methods[key] = wp
	runtime.AddCleanup(m, r.dropMethod, methodEntry{key: key, wp: wp})
	return m
}

func (r *registry) dropMethod(e methodEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.methods[e.key]; ok && cur == e.wp {
		delete(r.methods, e.key)
	}
}

// size reports the number of live entries; used by tests.
func (r *registry) size() (types, methods int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.types), len(r.methods)
}

// ReferenceType returns the mirror for a type the caller learned about elsewhere. The tag
// must be a class, interface or array tag and the id must not be null.
func (s *Session) ReferenceType(tag message.TypeTag, id message.ReferenceTypeID) (*ReferenceType, error) {
	if !tag.Valid() {
		return nil, fmt.Errorf("jdi: reference type %d: %w: type tag %d", uint64(id), codec.ErrUnknownTag, uint8(tag))
	}
	if id == 0 {
		return nil, errors.New("jdi: null reference type")
	}
	return s.mirrors.referenceType(tag, id), nil
}

// readTaggedReferenceType reads a type tag and reference type id. It returns nil for the
// null reference.
func (s *Session) readTaggedReferenceType(r *codec.Reader) *ReferenceType {
	tag := r.TypeTag("refTypeTag")
	id := r.ReferenceTypeID("typeID")
	if r.Err() != nil || id == 0 {
		return nil
	}
	return s.mirrors.referenceType(tag, id)
}

// readMethodReference reads the tagged type and method id that open a JDWP location.
// No remote call is made; a nil method with a nil error means the reference was null.
func (s *Session) readMethodReference(r *codec.Reader) (*Method, error) {
	rt := s.readTaggedReferenceType(r)
	id := r.MethodID("methodID")
	if err := r.Err(); err != nil {
		return nil, err
	}
	if rt == nil || id == 0 {
		return nil, nil
	}
	return s.mirrors.method(rt, id), nil
}
