package server

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"mini-jdi/codec"
	"mini-jdi/message"
	"mini-jdi/protocol"
)

// Event is an event the fake VM can report.
type Event interface {
	encode(w *codec.Writer)
}

type VMStart struct {
	Thread message.ObjectID
}

type VMDeath struct {
	RequestID int32
}

// Locatable is a SingleStep, Breakpoint, MethodEntry or MethodExit event.
type Locatable struct {
	Kind      message.EventKind
	RequestID int32
	Thread    message.ObjectID
	Location  Location
}

// Exception reports a thrown exception; a zero Catch means uncaught.
type Exception struct {
	RequestID int32
	Thread    message.ObjectID
	Location  Location
	Exception message.ObjectID
	Catch     Location
}

// ThreadChange is a ThreadStart or ThreadDeath event.
type ThreadChange struct {
	Kind      message.EventKind
	RequestID int32
	Thread    message.ObjectID
}

type ClassPrepare struct {
	RequestID int32
	Thread    message.ObjectID
	Class     *Class
}

type ClassUnload struct {
	RequestID int32
	Signature string
}

func writeLocation(w *codec.Writer, l Location) {
	w.Location(l.Tag, l.Class, l.Method, l.Index)
}

func (e VMStart) encode(w *codec.Writer) {
	w.Byte(uint8(message.EventVMStart))
	w.Int(0)
	w.ObjectID(e.Thread)
}

func (e VMDeath) encode(w *codec.Writer) {
	w.Byte(uint8(message.EventVMDeath))
	w.Int(e.RequestID)
}

func (e Locatable) encode(w *codec.Writer) {
	w.Byte(uint8(e.Kind))
	w.Int(e.RequestID)
	w.ObjectID(e.Thread)
	writeLocation(w, e.Location)
}

func (e Exception) encode(w *codec.Writer) {
	w.Byte(uint8(message.EventException))
	w.Int(e.RequestID)
	w.ObjectID(e.Thread)
	writeLocation(w, e.Location)
	w.TaggedObjectID(message.TagObject, e.Exception)
	writeLocation(w, e.Catch)
}

func (e ThreadChange) encode(w *codec.Writer) {
	w.Byte(uint8(e.Kind))
	w.Int(e.RequestID)
	w.ObjectID(e.Thread)
}

func (e ClassPrepare) encode(w *codec.Writer) {
	w.Byte(uint8(message.EventClassPrepare))
	w.Int(e.RequestID)
	w.ObjectID(e.Thread)
	w.TaggedReferenceType(e.Class.Tag, e.Class.ID)
	w.String(e.Class.Signature)
	w.Int(e.Class.Status)
}

func (e ClassUnload) encode(w *codec.Writer) {
	w.Byte(uint8(message.EventClassUnload))
	w.Int(e.RequestID)
	w.String(e.Signature)
}

// EncodeEvents builds an Event.Composite data section.
func EncodeEvents(sizes message.IDSizes, policy message.SuspendPolicy, events ...Event) []byte {
	w := codec.NewWriter(sizes)
	w.Byte(uint8(policy))
	w.Int(int32(len(events)))
	for _, e := range events {
		e.encode(w)
	}
	return w.Bytes()
}

// Emit sends one composite event to every attached debugger.
func (s *Server) Emit(policy message.SuspendPolicy, events ...Event) error {
	p := &protocol.Packet{
		ID:         s.nextEvent.Add(1),
		CommandSet: uint8(message.EventComposite.Set),
		Command:    message.EventComposite.ID,
		Data:       EncodeEvents(s.sizes, policy, events...),
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()
	var result *multierror.Error
	for c := range s.conns {
		if err := c.write(p); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", remoteAddr(c.Conn), err))
		}
	}
	return result.ErrorOrNil()
}

// HitBreakpoint reports every breakpoint set at loc as hit by thread.
func (s *Server) HitBreakpoint(thread message.ObjectID, loc Location) error {
	var events []Event
	policy := message.SuspendNone
	for _, bp := range s.Breakpoints() {
		if bp.Location != loc {
			continue
		}
		events = append(events, Locatable{
			Kind:      message.EventBreakpoint,
			RequestID: bp.RequestID,
			Thread:    thread,
			Location:  loc,
		})
		policy = max(policy, bp.SuspendPolicy)
	}
	if len(events) == 0 {
		return nil
	}
	return s.Emit(policy, events...)
}
