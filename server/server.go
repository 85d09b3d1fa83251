// Package server implements the target side of JDWP over an in-memory class model: a
// fake VM that debuggers attach to in tests and demos.
//
// Request processing pipeline:
//
//	Accept conn → handshake → handleConn (single goroutine reads packets)
//	  → for each command: go handleRequest (parallel processing)
//	    → middleware chain → dispatch (command table) → write reply
//
// Replies keep the command's packet id, so a debugger that multiplexes commands gets
// each reply routed back to the right caller regardless of completion order.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"mini-jdi/message"
	"mini-jdi/middleware"
	"mini-jdi/protocol"
	"mini-jdi/registry"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("server: closed")

// registrationTTL is the etcd lease length; the registry renews it while the VM lives.
const registrationTTL = 10

// Server is a fake JDWP target VM.
type Server struct {
	logger  *zap.Logger
	version Version
	sizes   message.IDSizes
	app     string

	mu             sync.RWMutex
	classes        map[message.ReferenceTypeID]*Class
	breakpoints    map[int32]Breakpoint
	defaultStratum string
	suspendCount   int

	commands    map[message.Command]commandFunc
	middlewares []middleware.Middleware
	handlerOnce sync.Once
	handler     middleware.HandlerFunc

	wg       sync.WaitGroup // in-flight requests
	shutdown atomic.Bool

	connMu        sync.Mutex // guards the fields below
	conns         map[*conn]struct{}
	listener      net.Listener
	registry      registry.Registry
	advertiseAddr string

	nextRequest atomic.Int32
	nextEvent   atomic.Uint32
}

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithVersion(v Version) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithIDSizes sets the identifier widths the VM announces.
func WithIDSizes(sizes message.IDSizes) Option {
	return func(s *Server) {
		s.sizes = sizes
	}
}

// WithApp names the application the VM registers under.
func WithApp(app string) Option {
	return func(s *Server) {
		s.app = app
	}
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		logger:      zap.NewNop(),
		version:     DefaultVersion,
		sizes:       message.DefaultIDSizes,
		app:         "fakevm",
		classes:     make(map[message.ReferenceTypeID]*Class),
		breakpoints: make(map[int32]Breakpoint),
		conns:       make(map[*conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.commands = s.commandTable()
	return s
}

// AddClass loads a class into the VM.
func (s *Server) AddClass(c *Class) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes[c.ID] = c
}

// RemoveClass unloads a class.
func (s *Server) RemoveClass(id message.ReferenceTypeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.classes, id)
}

// Breakpoints returns the breakpoint requests currently set.
func (s *Server) Breakpoints() []Breakpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Breakpoint, 0, len(s.breakpoints))
	for _, bp := range s.breakpoints {
		out = append(out, bp)
	}
	return out
}

// DefaultStratum returns the stratum the last debugger asked for.
func (s *Server) DefaultStratum() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultStratum
}

// SuspendCount returns how many times the VM is suspended.
func (s *Server) SuspendCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.suspendCount
}

// Use registers a middleware. Middlewares are applied in the order they are added and
// must all be registered before the first debugger attaches.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// buildHandler builds the middleware chain once, not per request.
func (s *Server) buildHandler() {
	s.handlerOnce.Do(func() {
		s.handler = middleware.Chain(s.middlewares...)(s.dispatch)
	})
}

// ListenAndServe listens on address and serves until Shutdown.
func (s *Server) ListenAndServe(network, address, advertiseAddr string, reg registry.Registry) error {
	l, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return s.Serve(l, advertiseAddr, reg)
}

// Serve accepts debugger connections on l. With a non-nil registry the VM registers
// itself under advertiseAddr, which must be routable by debuggers (":5005" is not).
func (s *Server) Serve(l net.Listener, advertiseAddr string, reg registry.Registry) error {
	s.buildHandler()
	if advertiseAddr == "" {
		advertiseAddr = l.Addr().String()
	}
	s.connMu.Lock()
	s.listener = l
	s.advertiseAddr = advertiseAddr
	s.registry = reg
	s.connMu.Unlock()

	if reg != nil {
		instance := registry.VMInstance{
			Addr:    advertiseAddr,
			Weight:  1,
			Version: fmt.Sprintf("%d.%d", s.version.JDWPMajor, s.version.JDWPMinor),
			VMName:  s.version.VMName,
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := reg.Register(ctx, s.app, instance, registrationTTL)
		cancel()
		if err != nil {
			return fmt.Errorf("server: registering %s: %w", advertiseAddr, err)
		}
	}
	s.logger.Info("listening for debuggers", zap.String("addr", l.Addr().String()), zap.String("advertise", advertiseAddr))

	for {
		nc, err := l.Accept()
		if err != nil {
			// Accept fails once Shutdown closed the listener.
			if s.shutdown.Load() {
				return ErrServerClosed
			}
			return err
		}
		go s.ServeConn(nc)
	}
}

// Addr returns the listener address once Serve has started.
func (s *Server) Addr() net.Addr {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown deregisters the VM, stops accepting debuggers, drops attached ones and waits
// for in-flight commands.
func (s *Server) Shutdown(timeout time.Duration) error {
	var result *multierror.Error

	s.connMu.Lock()
	l, reg, addr := s.listener, s.registry, s.advertiseAddr
	s.connMu.Unlock()

	// Deregister first so debuggers stop picking this VM.
	if reg != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := reg.Deregister(ctx, s.app, addr); err != nil {
			result = multierror.Append(result, fmt.Errorf("deregister: %w", err))
		}
		cancel()
	}

	// The flag must be set before the listener closes so Serve recognizes the error.
	s.shutdown.Store(true)
	if l != nil {
		if err := l.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close listener: %w", err))
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		result = multierror.Append(result, fmt.Errorf("timeout waiting for in-flight commands"))
	}

	s.connMu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.connMu.Unlock()

	return result.ErrorOrNil()
}

// conn is one attached debugger. Replies and events share the write lock so packets
// never interleave.
type conn struct {
	net.Conn
	writeMu sync.Mutex
}

func (c *conn) write(p *protocol.Packet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.Encode(c.Conn, p)
}

// ServeConn runs the handshake and the read loop for one debugger connection.
func (s *Server) ServeConn(nc net.Conn) {
	c := &conn{Conn: nc}
	defer c.Close()

	if err := protocol.ServerHandshake(nc); err != nil {
		s.logger.Warn("handshake failed", zap.String("remote", remoteAddr(nc)), zap.Error(err))
		return
	}
	s.buildHandler()

	s.connMu.Lock()
	s.conns[c] = struct{}{}
	s.connMu.Unlock()
	defer func() {
		s.connMu.Lock()
		delete(s.conns, c)
		s.connMu.Unlock()
	}()

	s.logger.Info("debugger attached", zap.String("remote", remoteAddr(nc)))
	for {
		p, err := protocol.Decode(c)
		if err != nil {
			s.logger.Debug("debugger connection ended", zap.Error(err))
			return
		}
		if p.IsReply() {
			// The fake VM sends no commands, so there is nothing to match.
			continue
		}
		s.wg.Add(1)
		go s.handleRequest(c, p)
	}
}

func (s *Server) handleRequest(c *conn, p *protocol.Packet) {
	defer s.wg.Done()

	cmd := message.Command{Set: message.CommandSet(p.CommandSet), ID: p.Command}
	reply, err := s.handler(context.Background(), cmd, p.Data)
	if err != nil {
		// Middleware refusals become a JDWP error reply; the debugger must not hang.
		s.logger.Warn("command rejected", zap.Stringer("command", cmd), zap.Error(err))
		reply = errorReply(message.ErrInternal)
	}
	reply.ID = p.ID
	reply.Flags = protocol.FlagReply
	if err := c.write(reply); err != nil {
		s.logger.Warn("writing reply", zap.Stringer("command", cmd), zap.Error(err))
		return
	}
	if cmd == message.VMDispose {
		c.Close()
	}
}

func remoteAddr(nc net.Conn) string {
	if a := nc.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}
