package jdi

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mini-jdi/codec"
	"mini-jdi/message"
	"mini-jdi/server"
	"mini-jdi/transport"
)

// startVM serves the sample program on a loopback port.
func startVM(t testing.TB, opts ...server.Option) *server.Server {
	t.Helper()
	svr := server.NewServer(opts...)
	for _, c := range server.SampleClasses() {
		svr.AddClass(c)
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go svr.Serve(l, "", nil)
	t.Cleanup(func() { svr.Shutdown(time.Second) })
	return svr
}

func attachVM(t testing.TB, svr *server.Server, opts ...Option) *Session {
	t.Helper()
	require.Eventually(t, func() bool { return svr.Addr() != nil }, time.Second, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	s, err := Attach(ctx, svr.Addr().String(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func classByName(t testing.TB, s *Session, name string) *ReferenceType {
	t.Helper()
	types, err := s.ClassesByName(context.Background(), name)
	require.NoError(t, err)
	require.Len(t, types, 1)
	return types[0]
}

func methodByName(t testing.TB, rt *ReferenceType, name string) *Method {
	t.Helper()
	ms, err := rt.MethodsByName(name)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	return ms[0]
}

func TestAttach(t *testing.T) {
	svr := startVM(t)
	s := attachVM(t, svr)

	assert.Equal(t, message.DefaultIDSizes, s.IDSizes())
	assert.Equal(t, server.DefaultVersion.VMName, s.VMVersion().VMName)
	assert.Equal(t, "1.8.0", s.JDWPVersion().String())
	assert.True(t, s.SupportsStrata())

	v, err := s.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(8), v.JDWPMinor)
}

func TestAttachNarrowIDs(t *testing.T) {
	sizes := message.IDSizes{FieldIDSize: 4, MethodIDSize: 4, ObjectIDSize: 4, ReferenceTypeIDSize: 4, FrameIDSize: 4}
	svr := startVM(t, server.WithIDSizes(sizes))
	s := attachVM(t, svr)
	assert.Equal(t, sizes, s.IDSizes())

	rt := classByName(t, s, "com.example.Greeter")
	assert.Equal(t, server.GreeterID, rt.ID())
	loc := NewLocation(methodByName(t, rt, "greet"), 4)
	assert.Equal(t, 8, loc.LineNumber())
}

func TestAttachRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = Attach(ctx, addr)
	assert.Error(t, err)
}

func TestMirrorIdentity(t *testing.T) {
	s := attachVM(t, startVM(t))

	a := classByName(t, s, "com.example.Greeter")
	b := classByName(t, s, "com.example.Greeter")
	assert.Same(t, a, b)

	all, err := s.AllClasses(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Same(t, a, all[0])

	m1 := methodByName(t, a, "greet")
	m2 := methodByName(t, b, "greet")
	assert.Same(t, m1, m2)
}

func TestReferenceTypeInfo(t *testing.T) {
	s := attachVM(t, startVM(t))
	rt := classByName(t, s, "com.example.Greeter")

	sig, err := rt.Signature()
	require.NoError(t, err)
	assert.Equal(t, "Lcom/example/Greeter;", sig)
	assert.Equal(t, message.TypeTagClass, rt.Tag())
	assert.Equal(t, "class com.example.Greeter", rt.String())

	name, err := rt.SourceName()
	require.NoError(t, err)
	assert.Equal(t, "Greeter.java", name)

	methods, err := rt.Methods()
	require.NoError(t, err)
	assert.Len(t, methods, 4)

	m := methodByName(t, rt, "greet")
	msig, err := m.Signature()
	require.NoError(t, err)
	assert.Equal(t, "(Ljava/lang/String;)V", msig)
	assert.Equal(t, "com.example.Greeter.greet", m.String())
}

func TestMethodPredicates(t *testing.T) {
	s := attachVM(t, startVM(t))
	rt := classByName(t, s, "com.example.Greeter")

	lambda := methodByName(t, rt, "lambda$main$0")
	assert.True(t, lambda.IsLambda())
	assert.True(t, lambda.IsSynthetic())
	assert.True(t, lambda.IsStatic())

	greet := methodByName(t, rt, "greet")
	assert.False(t, greet.IsLambda())
	assert.False(t, greet.IsNative())

	assert.True(t, methodByName(t, rt, "nativeHash").IsNative())
}

func TestJavaLines(t *testing.T) {
	s := attachVM(t, startVM(t))
	rt := classByName(t, s, "com.example.Greeter")
	greet := methodByName(t, rt, "greet")

	cases := []struct {
		index uint64
		line  int
	}{
		{0, 7}, {3, 7}, {4, 8}, {9, 9}, {14, 9}, {15, 10}, {19, 10},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.line, NewLocation(greet, tc.index).LineNumber(), "index %d", tc.index)
	}

	loc := NewLocation(greet, 4)
	name, err := loc.SourceName()
	require.NoError(t, err)
	assert.Equal(t, "Greeter.java", name)

	path, err := loc.SourcePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("com/example/Greeter.java"), path)
	assert.Equal(t, "Greeter.java:8", loc.String())
}

func TestNoDebugInformation(t *testing.T) {
	s := attachVM(t, startVM(t))
	rt := classByName(t, s, "NoDebug")
	loc := NewLocation(methodByName(t, rt, "run"), 0)

	assert.Equal(t, LineNotAvailable, loc.LineNumber())
	_, err := loc.SourceName()
	assert.ErrorIs(t, err, ErrAbsentInformation)
	_, err = loc.SourcePath()
	assert.ErrorIs(t, err, ErrAbsentInformation)

	_, err = rt.AllLineLocations(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrAbsentInformation)
}

func TestNativeMethodHasNoLines(t *testing.T) {
	s := attachVM(t, startVM(t))
	rt := classByName(t, s, "com.example.Greeter")
	native := methodByName(t, rt, "nativeHash")

	assert.Equal(t, LineNotAvailable, NewLocation(native, 0).LineNumber())
	locs, err := native.AllLineLocations("")
	require.NoError(t, err)
	assert.Empty(t, locs)
}

func TestLineTableWithNegativeIndex(t *testing.T) {
	svr := startVM(t)
	svr.AddClass(&server.Class{
		ID:         0x400,
		Tag:        message.TypeTagClass,
		Signature:  "LBroken;",
		SourceFile: "Broken.java",
		Methods: []*server.Method{
			{ID: 0x40, Name: "run", Signature: "()V", Modifiers: message.AccPublic, End: 8,
				Lines: []server.Line{{CodeIndex: 0, Line: 1}, {CodeIndex: 1 << 63, Line: 2}}},
		},
	})
	s := attachVM(t, svr)
	rt := classByName(t, s, "Broken")

	_, err := rt.AllLineLocations(context.Background(), "", "")
	assert.ErrorIs(t, err, codec.ErrNegativeIndex)
	var perr *codec.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "lineCodeIndex", perr.Field)

	assert.Equal(t, LineNotAvailable, NewLocation(methodByName(t, rt, "run"), 0).LineNumber())
}

func TestStrata(t *testing.T) {
	svr := startVM(t)
	s := attachVM(t, svr)
	rt := classByName(t, s, "org.apache.jsp.hello_jsp")
	service := methodByName(t, rt, "_jspService")

	assert.Equal(t, "JSP", rt.DefaultStratum())
	assert.ElementsMatch(t, []string{"Java", "JSP"}, rt.AvailableStrata())

	// Java line 12 is JSP line 2 of hello.jsp.
	loc := NewLocation(service, 5)
	assert.Equal(t, 2, loc.LineNumber())
	assert.Equal(t, 12, loc.LineNumberStratum("Java"))

	name, err := loc.SourceName()
	require.NoError(t, err)
	assert.Equal(t, "hello.jsp", name)
	path, err := loc.SourcePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("WEB-INF/views/hello.jsp"), path)

	name, err = loc.SourceNameStratum("Java")
	require.NoError(t, err)
	assert.Equal(t, "hello_jsp.java", name)
	path, err = loc.SourcePathStratum("Java")
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("org/apache/jsp/hello_jsp.java"), path)

	// Java line 20 has no JSP counterpart.
	unmapped := NewLocation(service, 15)
	assert.Equal(t, LineNotAvailable, unmapped.LineNumber())
	_, err = unmapped.SourceName()
	assert.ErrorIs(t, err, ErrAbsentInformation)

	// footer.jspf has no explicit path and lives in the class's package.
	footer := NewLocation(service, 25)
	assert.Equal(t, 1, footer.LineNumber())
	path, err = footer.SourcePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("org/apache/jsp/footer.jspf"), path)

	// Unknown strata fall back to the type's default.
	assert.Equal(t, 2, loc.LineNumberStratum("Kotlin"))

	require.NoError(t, s.SetDefaultStratum(context.Background(), "Java"))
	assert.Equal(t, "Java", svr.DefaultStratum())
	assert.Equal(t, 12, loc.LineNumber())
}

func TestOldVMHasNoStrata(t *testing.T) {
	v := server.DefaultVersion
	v.JDWPMinor = 2
	s := attachVM(t, startVM(t, server.WithVersion(v)))
	assert.False(t, s.SupportsStrata())

	rt := classByName(t, s, "org.apache.jsp.hello_jsp")
	assert.Equal(t, "Java", rt.DefaultStratum())
	loc := NewLocation(methodByName(t, rt, "_jspService"), 5)
	assert.Equal(t, 12, loc.LineNumber())
}

func TestAllLineLocations(t *testing.T) {
	s := attachVM(t, startVM(t))
	rt := classByName(t, s, "com.example.Greeter")
	ctx := context.Background()

	locs, err := rt.AllLineLocations(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, locs, 6)
	for i := 1; i < len(locs); i++ {
		assert.Negative(t, locs[i-1].Compare(locs[i]))
	}

	locs, err = rt.AllLineLocations(ctx, "", "Other.java")
	require.NoError(t, err)
	assert.Empty(t, locs)

	locs, err = rt.LocationsOfLine(ctx, "", "", 8)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, uint64(4), locs[0].CodeIndex())

	jsp := classByName(t, s, "org.apache.jsp.hello_jsp")
	locs, err = jsp.AllLineLocations(ctx, "JSP", "footer.jspf")
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, uint64(25), locs[0].CodeIndex())
}

func TestCommandError(t *testing.T) {
	s := attachVM(t, startVM(t))

	rt, err := s.ReferenceType(message.TypeTagClass, 0xdead)
	require.NoError(t, err)
	_, err = rt.Signature()
	require.Error(t, err)
	assert.True(t, IsCode(err, message.ErrInvalidClass))
	assert.False(t, errors.Is(err, ErrAbsentInformation))

	var cerr *CommandError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, message.RTSignature, cerr.Command)
}

func TestSuspendResume(t *testing.T) {
	svr := startVM(t)
	s := attachVM(t, svr)
	ctx := context.Background()

	require.NoError(t, s.Suspend(ctx))
	require.NoError(t, s.Suspend(ctx))
	assert.Equal(t, 2, svr.SuspendCount())
	require.NoError(t, s.Resume(ctx))
	assert.Equal(t, 1, svr.SuspendCount())
}

func TestDisconnect(t *testing.T) {
	svr := startVM(t)
	s := attachVM(t, svr)

	require.NoError(t, svr.Shutdown(time.Second))
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not notice the disconnect")
	}
	assert.ErrorIs(t, s.Err(), transport.ErrConnectionClosed)

	_, err := s.AllClasses(context.Background())
	assert.ErrorIs(t, err, transport.ErrConnectionClosed)
}

func TestDispose(t *testing.T) {
	svr := startVM(t)
	s := attachVM(t, svr)
	rt := classByName(t, s, "com.example.Greeter")
	_, err := s.SetBreakpoint(context.Background(), NewLocation(methodByName(t, rt, "greet"), 4), message.SuspendAll)
	require.NoError(t, err)

	require.NoError(t, s.Dispose(context.Background()))
	assert.Empty(t, svr.Breakpoints())
	<-s.Done()
}
