package jdi

import (
	"fmt"

	"go.uber.org/zap"

	"mini-jdi/codec"
	"mini-jdi/message"
	"mini-jdi/protocol"
)

// EventSet is one Event.Composite packet: events the VM reported together under a
// single suspend policy.
type EventSet struct {
	SuspendPolicy message.SuspendPolicy
	Events        []Event
}

// Event is implemented by every decoded event type.
type Event interface {
	Kind() message.EventKind
	RequestID() int32
}

type eventHeader struct {
	kind    message.EventKind
	request int32
}

func (h eventHeader) Kind() message.EventKind { return h.kind }
func (h eventHeader) RequestID() int32        { return h.request }

// VMStartEvent is sent once when the VM starts; its request id is zero.
type VMStartEvent struct {
	eventHeader
	Thread message.ObjectID
}

type VMDeathEvent struct {
	eventHeader
}

// LocatableEvent covers SingleStep, Breakpoint, MethodEntry and MethodExit.
type LocatableEvent struct {
	eventHeader
	Thread   message.ObjectID
	Location *Location
}

// ExceptionEvent reports a thrown exception. CatchLocation is nil when the exception is
// not caught.
type ExceptionEvent struct {
	eventHeader
	Thread        message.ObjectID
	Location      *Location
	ExceptionTag  message.Tag
	Exception     message.ObjectID
	CatchLocation *Location
}

// ThreadEvent covers ThreadStart and ThreadDeath.
type ThreadEvent struct {
	eventHeader
	Thread message.ObjectID
}

type ClassPrepareEvent struct {
	eventHeader
	Thread    message.ObjectID
	Type      *ReferenceType
	Signature string
	Status    int32
}

type ClassUnloadEvent struct {
	eventHeader
	Signature string
}

// Events returns the channel composite events are delivered on. The channel is never
// closed; select on Done as well.
func (s *Session) Events() <-chan *EventSet {
	return s.events
}

// handleCommand runs on the transport's receive goroutine.
func (s *Session) handleCommand(p *protocol.Packet) {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()
	if !s.ready {
		s.early = append(s.early, p)
		return
	}
	s.dispatch(p)
}

// releaseEarlyEvents delivers events held back during attach.
func (s *Session) releaseEarlyEvents() {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()
	s.ready = true
	for _, p := range s.early {
		s.dispatch(p)
	}
	s.early = nil
}

func (s *Session) dispatch(p *protocol.Packet) {
	cmd := message.Command{Set: message.CommandSet(p.CommandSet), ID: p.Command}
	if cmd != message.EventComposite {
		s.logger.Warn("ignoring command from VM", zap.Stringer("command", cmd))
		return
	}
	set, err := s.decodeEventSet(codec.NewReader(p.Data, s.sizes))
	if err != nil {
		s.logger.Error("decoding events", zap.Uint32("id", p.ID), zap.Error(err))
		if set == nil || len(set.Events) == 0 {
			return
		}
	}
	select {
	case s.events <- set:
	default:
		s.logger.Warn("event buffer full, dropping event set",
			zap.Int("events", len(set.Events)),
			zap.Uint8("suspendPolicy", uint8(set.SuspendPolicy)),
		)
	}
}

// decodeEventSet decodes a composite event. On failure it returns the events decoded
// before the bad one.
func (s *Session) decodeEventSet(r *codec.Reader) (*EventSet, error) {
	set := &EventSet{SuspendPolicy: message.SuspendPolicy(r.Byte("suspendPolicy"))}
	n := r.Count("events", 5)
	for range n {
		e, err := s.decodeEvent(r)
		if err != nil {
			return set, err
		}
		set.Events = append(set.Events, e)
	}
	return set, r.Err()
}

func (s *Session) decodeEvent(r *codec.Reader) (Event, error) {
	h := eventHeader{kind: message.EventKind(r.Byte("eventKind"))}
	h.request = r.Int("requestID")

	var e Event
	switch h.kind {
	case message.EventVMStart:
		e = &VMStartEvent{eventHeader: h, Thread: r.ObjectID("thread")}
	case message.EventVMDeath:
		e = &VMDeathEvent{eventHeader: h}
	case message.EventSingleStep, message.EventBreakpoint, message.EventMethodEntry, message.EventMethodExit:
		ev := &LocatableEvent{eventHeader: h, Thread: r.ObjectID("thread")}
		loc, err := ReadLocation(s, r)
		if err != nil {
			return nil, err
		}
		ev.Location = loc
		e = ev
	case message.EventException:
		ev := &ExceptionEvent{eventHeader: h, Thread: r.ObjectID("thread")}
		var err error
		if ev.Location, err = ReadLocation(s, r); err != nil {
			return nil, err
		}
		ev.ExceptionTag, ev.Exception = r.TaggedObjectID("exception")
		if ev.CatchLocation, err = ReadLocation(s, r); err != nil {
			return nil, err
		}
		e = ev
	case message.EventThreadStart, message.EventThreadDeath:
		e = &ThreadEvent{eventHeader: h, Thread: r.ObjectID("thread")}
	case message.EventClassPrepare:
		ev := &ClassPrepareEvent{eventHeader: h, Thread: r.ObjectID("thread")}
		ev.Type = s.readTaggedReferenceType(r)
		ev.Signature = r.String("signature")
		ev.Status = r.Int("status")
		if ev.Type != nil && r.Err() == nil {
			ev.Type.signature.set(ev.Signature)
		}
		e = ev
	case message.EventClassUnload:
		e = &ClassUnloadEvent{eventHeader: h, Signature: r.String("signature")}
	default:
		if r.Err() == nil {
			return nil, &codec.ProtocolError{Field: "eventKind", Err: fmt.Errorf("%w: event kind %d", codec.ErrUnknownTag, uint8(h.kind))}
		}
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return e, nil
}
