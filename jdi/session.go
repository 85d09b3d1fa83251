// Package jdi is a mirror layer over a JDWP connection.
//
// A Session owns one connection to a target VM. Remote entities are exposed as
// mirrors: ReferenceType and Method mirrors are interned per session so that one remote
// entity maps to one local object while that object is reachable, and Location values
// are plain (method, code index) pairs. Mirror accessors fetch from the VM lazily and
// cache what they learn; they use the session's lifetime context, so they fail once the
// session is closed.
package jdi

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"mini-jdi/codec"
	"mini-jdi/message"
	"mini-jdi/middleware"
	"mini-jdi/protocol"
	"mini-jdi/transport"
)

// strataSince is the first JDWP version with SourceDebugExtension and SetDefaultStratum.
var strataSince = semver.MustParse("1.4")

// sessionSeq numbers sessions so mirrors of different VMs have a fixed relative order.
var sessionSeq atomic.Uint64

// Version is the VirtualMachine.Version reply.
type Version struct {
	Description string
	JDWPMajor   int32
	JDWPMinor   int32
	VMVersion   string
	VMName      string
}

// Session is an attached debugger connection.
type Session struct {
	seq       uint64
	transport *transport.ClientTransport
	handler   middleware.HandlerFunc
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	sizes   message.IDSizes
	version Version
	jdwp    *semver.Version

	mirrors *registry
	events  chan *EventSet

	// Events that arrive before the identifier sizes are known are held back.
	eventMu sync.Mutex
	ready   bool
	early   []*protocol.Packet

	mu             sync.RWMutex
	defaultStratum string
}

type options struct {
	logger         *zap.Logger
	middlewares    []middleware.Middleware
	keepAlive      time.Duration
	defaultStratum string
	eventBuffer    int
}

type Option func(*options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMiddleware wraps every command the session sends. The first middleware is the
// outermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) {
		o.middlewares = append(o.middlewares, mws...)
	}
}

// WithKeepAlive probes the VM at the given interval while the session is open.
func WithKeepAlive(d time.Duration) Option {
	return func(o *options) {
		o.keepAlive = d
	}
}

// WithDefaultStratum sets the session-wide stratum used when a caller passes "".
func WithDefaultStratum(stratum string) Option {
	return func(o *options) {
		o.defaultStratum = stratum
	}
}

// WithEventBuffer sizes the channel returned by Events.
func WithEventBuffer(n int) Option {
	return func(o *options) {
		o.eventBuffer = n
	}
}

// Attach dials a VM listening for a debugger, performs the handshake and starts a
// session.
func Attach(ctx context.Context, addr string, opts ...Option) (*Session, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("jdi: dialing %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	if err := protocol.ClientHandshake(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("jdi: attaching to %s: %w", addr, err)
	}
	conn.SetDeadline(time.Time{})

	s, err := New(ctx, conn, opts...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// New starts a session on a connection that has completed the handshake. It learns
// the identifier sizes and the JDWP version before returning.
func New(ctx context.Context, conn net.Conn, opts ...Option) (*Session, error) {
	o := options{logger: zap.NewNop(), eventBuffer: 64}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		seq:            sessionSeq.Add(1),
		logger:         o.logger,
		sizes:          message.DefaultIDSizes,
		events:         make(chan *EventSet, o.eventBuffer),
		defaultStratum: o.defaultStratum,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mirrors = newRegistry(s)
	s.transport = transport.NewClientTransport(conn, o.keepAlive,
		transport.WithLogger(o.logger),
		transport.WithCommandHandler(s.handleCommand),
	)
	s.handler = middleware.Chain(o.middlewares...)(s.transport.Call)

	if err := s.handshake(ctx); err != nil {
		s.Close()
		return nil, err
	}
	s.releaseEarlyEvents()
	s.logger.Info("attached",
		zap.String("vm", s.version.VMName),
		zap.String("vmVersion", s.version.VMVersion),
		zap.Stringer("jdwp", s.jdwp),
	)
	return s, nil
}

func (s *Session) handshake(ctx context.Context) error {
	r, err := s.command(ctx, message.VMIDSizes, nil)
	if err != nil {
		return err
	}
	sizes := message.IDSizes{
		FieldIDSize:         r.Int("fieldIDSize"),
		MethodIDSize:        r.Int("methodIDSize"),
		ObjectIDSize:        r.Int("objectIDSize"),
		ReferenceTypeIDSize: r.Int("referenceTypeIDSize"),
		FrameIDSize:         r.Int("frameIDSize"),
	}
	if err := r.Err(); err != nil {
		return err
	}
	for _, n := range []int32{sizes.FieldIDSize, sizes.MethodIDSize, sizes.ObjectIDSize, sizes.ReferenceTypeIDSize, sizes.FrameIDSize} {
		if n < 1 || n > 8 {
			return &codec.ProtocolError{Field: "IDSizes", Err: fmt.Errorf("%w: %d", codec.ErrInvalidIDSize, n)}
		}
	}
	s.sizes = sizes

	v, err := s.Version(ctx)
	if err != nil {
		return err
	}
	s.version = v
	s.jdwp, err = semver.NewVersion(fmt.Sprintf("%d.%d", v.JDWPMajor, v.JDWPMinor))
	if err != nil {
		return fmt.Errorf("jdi: JDWP version %d.%d: %w", v.JDWPMajor, v.JDWPMinor, err)
	}

	if st := s.DefaultStratum(); st != "" && s.SupportsStrata() {
		return s.sendDefaultStratum(ctx, st)
	}
	return nil
}

// command sends cmd with the data produced by build and returns a reader over the
// reply. A non-zero error code becomes a *CommandError.
func (s *Session) command(ctx context.Context, cmd message.Command, build func(w *codec.Writer)) (*codec.Reader, error) {
	w := codec.NewWriter(s.sizes)
	if build != nil {
		build(w)
	}
	reply, err := s.handler(ctx, cmd, w.Bytes())
	if err != nil {
		return nil, err
	}
	if reply.ErrorCode != 0 {
		return nil, &CommandError{Command: cmd, Code: message.ErrorCode(reply.ErrorCode)}
	}
	return codec.NewReader(reply.Data, s.sizes), nil
}

// IDSizes returns the identifier widths negotiated at attach time.
func (s *Session) IDSizes() message.IDSizes {
	return s.sizes
}

// VMVersion returns the Version reply cached at attach time.
func (s *Session) VMVersion() Version {
	return s.version
}

// JDWPVersion returns the protocol version the VM speaks.
func (s *Session) JDWPVersion() *semver.Version {
	return s.jdwp
}

// SupportsStrata reports whether the VM understands SourceDebugExtension.
func (s *Session) SupportsStrata() bool {
	return s.jdwp != nil && !s.jdwp.LessThan(strataSince)
}

// RemoteAddr returns the VM's address.
func (s *Session) RemoteAddr() net.Addr {
	return s.transport.Conn().RemoteAddr()
}

// Logger returns the session's logger.
func (s *Session) Logger() *zap.Logger {
	return s.logger
}

// DefaultStratum returns the session-wide default stratum; "" means each type's own
// default applies.
func (s *Session) DefaultStratum() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultStratum
}

// SetDefaultStratum changes the session-wide default stratum and tells the VM about it
// when the VM supports strata.
func (s *Session) SetDefaultStratum(ctx context.Context, stratum string) error {
	s.mu.Lock()
	s.defaultStratum = stratum
	s.mu.Unlock()
	if !s.SupportsStrata() {
		return nil
	}
	return s.sendDefaultStratum(ctx, stratum)
}

func (s *Session) sendDefaultStratum(ctx context.Context, stratum string) error {
	_, err := s.command(ctx, message.VMSetDefaultStratum, func(w *codec.Writer) {
		w.String(stratum)
	})
	return err
}

// ReadLong reads a JDWP long, tracing the value under label at debug level.
func (s *Session) ReadLong(label string, r *codec.Reader) int64 {
	v := r.Long(label)
	if ce := s.logger.Check(zap.DebugLevel, "read"); ce != nil {
		ce.Write(zap.String("field", label), zap.Int64("value", v))
	}
	return v
}

// WriteLong writes a JDWP long, tracing the value under label at debug level.
func (s *Session) WriteLong(label string, v int64, w *codec.Writer) {
	if ce := s.logger.Check(zap.DebugLevel, "write"); ce != nil {
		ce.Write(zap.String("field", label), zap.Int64("value", v))
	}
	w.Long(v)
}

// Done is closed when the session can no longer talk to the VM.
func (s *Session) Done() <-chan struct{} {
	return s.transport.Done()
}

// Err returns why the session ended, or nil while it is open.
func (s *Session) Err() error {
	return s.transport.Err()
}

// Close drops the connection without telling the VM. Use Dispose for an orderly detach.
func (s *Session) Close() error {
	s.cancel()
	return s.transport.Close()
}

// Dispose asks the VM to forget this debugger and closes the session.
func (s *Session) Dispose(ctx context.Context) error {
	var result *multierror.Error
	if _, err := s.command(ctx, message.VMDispose, nil); err != nil {
		result = multierror.Append(result, fmt.Errorf("dispose: %w", err))
	}
	if err := s.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close: %w", err))
	}
	return result.ErrorOrNil()
}
