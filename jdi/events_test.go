package jdi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-jdi/codec"
	"mini-jdi/message"
	"mini-jdi/protocol"
	"mini-jdi/server"
)

func nextEventSet(t *testing.T, s *Session) *EventSet {
	t.Helper()
	select {
	case set := <-s.Events():
		return set
	case <-time.After(2 * time.Second):
		t.Fatal("no event set")
		return nil
	}
}

func TestBreakpointEvent(t *testing.T) {
	svr := startVM(t)
	s := attachVM(t, svr)
	ctx := context.Background()

	rt := classByName(t, s, "com.example.Greeter")
	loc := NewLocation(methodByName(t, rt, "greet"), 4)
	id, err := s.SetBreakpoint(ctx, loc, message.SuspendEventThread)
	require.NoError(t, err)

	bps := svr.Breakpoints()
	require.Len(t, bps, 1)
	assert.Equal(t, server.Location{Tag: message.TypeTagClass, Class: server.GreeterID, Method: 0x11, Index: 4}, bps[0].Location)

	require.NoError(t, svr.HitBreakpoint(42, bps[0].Location))
	set := nextEventSet(t, s)
	assert.Equal(t, message.SuspendEventThread, set.SuspendPolicy)
	require.Len(t, set.Events, 1)

	ev, ok := set.Events[0].(*LocatableEvent)
	require.True(t, ok)
	assert.Equal(t, message.EventBreakpoint, ev.Kind())
	assert.Equal(t, id, ev.RequestID())
	assert.Equal(t, message.ObjectID(42), ev.Thread)
	assert.True(t, ev.Location.Equal(loc))
	assert.Same(t, loc.Method(), ev.Location.Method())
	assert.Equal(t, 8, ev.Location.LineNumber())

	require.NoError(t, s.ClearBreakpoint(ctx, id))
	assert.Empty(t, svr.Breakpoints())
}

func TestSetBreakpointUnknownMethod(t *testing.T) {
	s := attachVM(t, startVM(t))
	rt := classByName(t, s, "com.example.Greeter")
	m := s.mirrors.method(rt, 0x99)

	_, err := s.SetBreakpoint(context.Background(), NewLocation(m, 0), message.SuspendAll)
	assert.True(t, IsCode(err, message.ErrInvalidMethodID))
}

func TestExceptionEventWithoutCatch(t *testing.T) {
	svr := startVM(t)
	s := attachVM(t, svr)

	throw := server.Location{Tag: message.TypeTagClass, Class: server.GreeterID, Method: 0x11, Index: 9}
	require.NoError(t, svr.Emit(message.SuspendAll, server.Exception{
		RequestID: 3,
		Thread:    1,
		Location:  throw,
		Exception: 77,
	}))

	set := nextEventSet(t, s)
	require.Len(t, set.Events, 1)
	ev, ok := set.Events[0].(*ExceptionEvent)
	require.True(t, ok)
	assert.Equal(t, message.ObjectID(77), ev.Exception)
	assert.Equal(t, message.TagObject, ev.ExceptionTag)
	assert.Equal(t, uint64(9), ev.Location.CodeIndex())
	assert.Nil(t, ev.CatchLocation)
}

func TestLifecycleEvents(t *testing.T) {
	svr := startVM(t)
	s := attachVM(t, svr)

	classes := server.SampleClasses()
	require.NoError(t, svr.Emit(message.SuspendNone,
		server.VMStart{Thread: 1},
		server.ThreadChange{Kind: message.EventThreadStart, RequestID: 2, Thread: 5},
		server.ClassPrepare{RequestID: 3, Thread: 5, Class: classes[0]},
		server.ClassUnload{RequestID: 4, Signature: "LGone;"},
		server.Locatable{Kind: message.EventMethodEntry, RequestID: 6, Thread: 5,
			Location: server.Location{Tag: message.TypeTagClass, Class: server.GreeterID, Method: 0x10}},
		server.VMDeath{},
	))

	set := nextEventSet(t, s)
	require.Len(t, set.Events, 6)

	assert.IsType(t, &VMStartEvent{}, set.Events[0])
	assert.Equal(t, message.EventThreadStart, set.Events[1].Kind())

	prep, ok := set.Events[2].(*ClassPrepareEvent)
	require.True(t, ok)
	assert.Equal(t, "Lcom/example/Greeter;", prep.Signature)
	assert.Same(t, classByName(t, s, "com.example.Greeter"), prep.Type)

	assert.Equal(t, "LGone;", set.Events[3].(*ClassUnloadEvent).Signature)
	assert.Equal(t, message.EventMethodEntry, set.Events[4].Kind())
	assert.IsType(t, &VMDeathEvent{}, set.Events[5])
}

func TestDecodeUnknownEventKind(t *testing.T) {
	s := offlineSession()
	w := codec.NewWriter(s.sizes)
	w.Byte(uint8(message.SuspendNone))
	w.Int(2)
	w.Byte(uint8(message.EventVMDeath))
	w.Int(0)
	w.Byte(200)
	w.Int(0)

	set, err := s.decodeEventSet(codec.NewReader(w.Bytes(), s.sizes))
	assert.ErrorIs(t, err, codec.ErrUnknownTag)
	require.NotNil(t, set)
	assert.Len(t, set.Events, 1)
}

func TestEventsBeforeAttachCompletes(t *testing.T) {
	s := offlineSession()
	s.events = make(chan *EventSet, 1)

	data := server.EncodeEvents(s.sizes, message.SuspendAll, server.VMStart{Thread: 1})
	p := eventPacket(data)
	s.handleCommand(p)
	assert.Empty(t, s.events)

	s.releaseEarlyEvents()
	require.Len(t, s.events, 1)
	assert.IsType(t, &VMStartEvent{}, (<-s.events).Events[0])
}

func eventPacket(data []byte) *protocol.Packet {
	return &protocol.Packet{
		ID:         1,
		CommandSet: uint8(message.EventComposite.Set),
		Command:    message.EventComposite.ID,
		Data:       data,
	}
}
