package server

import (
	"context"
	"slices"

	"mini-jdi/codec"
	"mini-jdi/message"
	"mini-jdi/protocol"
)

// commandFunc decodes a command's data from r, writes the reply data to w and returns
// a JDWP error code, zero on success.
type commandFunc func(r *codec.Reader, w *codec.Writer) message.ErrorCode

func (s *Server) commandTable() map[message.Command]commandFunc {
	return map[message.Command]commandFunc{
		message.VMVersion:            s.vmVersion,
		message.VMClassesBySignature: s.classesBySignature,
		message.VMAllClasses:         s.allClasses,
		message.VMDispose:            s.dispose,
		message.VMIDSizes:            s.idSizes,
		message.VMSuspend:            s.suspend,
		message.VMResume:             s.resume,
		message.VMSetDefaultStratum:  s.setDefaultStratum,

		message.RTSignature:            s.signature,
		message.RTMethods:              s.methods,
		message.RTSourceFile:           s.sourceFile,
		message.RTSourceDebugExtension: s.sourceDebugExtension,

		message.MethodLineTable: s.lineTable,

		message.EventRequestSet:   s.eventRequestSet,
		message.EventRequestClear: s.eventRequestClear,
	}
}

// dispatch is the innermost handler of the middleware chain.
func (s *Server) dispatch(ctx context.Context, cmd message.Command, data []byte) (*protocol.Packet, error) {
	fn, ok := s.commands[cmd]
	if !ok {
		return errorReply(message.ErrNotImplemented), nil
	}
	r := codec.NewReader(data, s.sizes)
	w := codec.NewWriter(s.sizes)
	code := fn(r, w)
	if code == 0 && r.Err() != nil {
		code = message.ErrIllegalArgument
	}
	if code != 0 {
		return errorReply(code), nil
	}
	return &protocol.Packet{Data: w.Bytes()}, nil
}

func errorReply(code message.ErrorCode) *protocol.Packet {
	return &protocol.Packet{ErrorCode: uint16(code)}
}

func (s *Server) vmVersion(r *codec.Reader, w *codec.Writer) message.ErrorCode {
	w.String(s.version.Description)
	w.Int(s.version.JDWPMajor)
	w.Int(s.version.JDWPMinor)
	w.String(s.version.VMVersion)
	w.String(s.version.VMName)
	return 0
}

func (s *Server) idSizes(r *codec.Reader, w *codec.Writer) message.ErrorCode {
	w.Int(s.sizes.FieldIDSize)
	w.Int(s.sizes.MethodIDSize)
	w.Int(s.sizes.ObjectIDSize)
	w.Int(s.sizes.ReferenceTypeIDSize)
	w.Int(s.sizes.FrameIDSize)
	return 0
}

// sortedClasses returns the loaded classes by id. Callers hold mu.
func (s *Server) sortedClasses() []*Class {
	out := make([]*Class, 0, len(s.classes))
	for _, c := range s.classes {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *Class) int {
		return codec.CompareUnsigned(uint64(a.ID), uint64(b.ID))
	})
	return out
}

func (s *Server) classesBySignature(r *codec.Reader, w *codec.Writer) message.ErrorCode {
	sig := r.String("signature")
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*Class
	for _, c := range s.sortedClasses() {
		if c.Signature == sig {
			matches = append(matches, c)
		}
	}
	w.Int(int32(len(matches)))
	for _, c := range matches {
		w.TaggedReferenceType(c.Tag, c.ID)
		w.Int(c.Status)
	}
	return 0
}

func (s *Server) allClasses(r *codec.Reader, w *codec.Writer) message.ErrorCode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	classes := s.sortedClasses()
	w.Int(int32(len(classes)))
	for _, c := range classes {
		w.TaggedReferenceType(c.Tag, c.ID)
		w.String(c.Signature)
		w.Int(c.Status)
	}
	return 0
}

// dispose clears the debugger's requests; the connection closes after the reply.
func (s *Server) dispose(r *codec.Reader, w *codec.Writer) message.ErrorCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.breakpoints)
	s.suspendCount = 0
	return 0
}

func (s *Server) suspend(r *codec.Reader, w *codec.Writer) message.ErrorCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspendCount++
	return 0
}

func (s *Server) resume(r *codec.Reader, w *codec.Writer) message.ErrorCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.suspendCount > 0 {
		s.suspendCount--
	}
	return 0
}

func (s *Server) setDefaultStratum(r *codec.Reader, w *codec.Writer) message.ErrorCode {
	stratum := r.String("stratumID")
	if r.Err() != nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultStratum = stratum
	return 0
}

// class reads a reference type id and looks it up. Callers hold mu.
func (s *Server) class(r *codec.Reader) (*Class, message.ErrorCode) {
	id := r.ReferenceTypeID("refType")
	if r.Err() != nil {
		return nil, message.ErrIllegalArgument
	}
	c, ok := s.classes[id]
	if !ok {
		return nil, message.ErrInvalidClass
	}
	return c, 0
}

func (s *Server) signature(r *codec.Reader, w *codec.Writer) message.ErrorCode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, code := s.class(r)
	if code != 0 {
		return code
	}
	w.String(c.Signature)
	return 0
}

func (s *Server) methods(r *codec.Reader, w *codec.Writer) message.ErrorCode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, code := s.class(r)
	if code != 0 {
		return code
	}
	w.Int(int32(len(c.Methods)))
	for _, m := range c.Methods {
		w.MethodID(m.ID)
		w.String(m.Name)
		w.String(m.Signature)
		w.Int(m.Modifiers)
	}
	return 0
}

func (s *Server) sourceFile(r *codec.Reader, w *codec.Writer) message.ErrorCode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, code := s.class(r)
	if code != 0 {
		return code
	}
	if c.SourceFile == "" {
		return message.ErrAbsentInformation
	}
	w.String(c.SourceFile)
	return 0
}

func (s *Server) sourceDebugExtension(r *codec.Reader, w *codec.Writer) message.ErrorCode {
	if s.version.JDWPMajor == 1 && s.version.JDWPMinor < 4 {
		return message.ErrNotImplemented
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, code := s.class(r)
	if code != 0 {
		return code
	}
	if c.SourceDebugExtension == "" {
		return message.ErrAbsentInformation
	}
	w.String(c.SourceDebugExtension)
	return 0
}

func (s *Server) lineTable(r *codec.Reader, w *codec.Writer) message.ErrorCode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, code := s.class(r)
	if code != 0 {
		return code
	}
	id := r.MethodID("methodID")
	idx := slices.IndexFunc(c.Methods, func(m *Method) bool { return m.ID == id })
	if idx < 0 {
		return message.ErrInvalidMethodID
	}
	m := c.Methods[idx]
	if m.Modifiers&message.AccNative != 0 {
		return message.ErrNativeMethod
	}
	if m.Lines == nil {
		return message.ErrAbsentInformation
	}
	w.ULong(m.Start)
	w.ULong(m.End)
	w.Int(int32(len(m.Lines)))
	for _, l := range m.Lines {
		w.ULong(l.CodeIndex)
		w.Int(l.Line)
	}
	return 0
}

// eventRequestSet accepts breakpoint requests with a single LocationOnly modifier,
// which is all the debugger side issues.
func (s *Server) eventRequestSet(r *codec.Reader, w *codec.Writer) message.ErrorCode {
	kind := message.EventKind(r.Byte("eventKind"))
	policy := message.SuspendPolicy(r.Byte("suspendPolicy"))
	mods := r.Int("modifiers")
	if r.Err() != nil {
		return message.ErrIllegalArgument
	}
	if kind != message.EventBreakpoint {
		return message.ErrNotImplemented
	}
	if mods != 1 || message.ModKind(r.Byte("modKind")) != message.ModLocationOnly {
		return message.ErrIllegalArgument
	}
	var loc Location
	loc.Tag, loc.Class, loc.Method, loc.Index = r.Location("loc")
	if r.Err() != nil {
		return message.ErrIllegalArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[loc.Class]
	if !ok {
		return message.ErrInvalidClass
	}
	if !slices.ContainsFunc(c.Methods, func(m *Method) bool { return m.ID == loc.Method }) {
		return message.ErrInvalidMethodID
	}
	id := s.nextRequest.Add(1)
	s.breakpoints[id] = Breakpoint{RequestID: id, SuspendPolicy: policy, Location: loc}
	w.Int(id)
	return 0
}

func (s *Server) eventRequestClear(r *codec.Reader, w *codec.Writer) message.ErrorCode {
	kind := message.EventKind(r.Byte("eventKind"))
	id := r.Int("requestID")
	if r.Err() != nil {
		return message.ErrIllegalArgument
	}
	if kind != message.EventBreakpoint {
		return message.ErrNotImplemented
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.breakpoints, id)
	return 0
}
