// Package transport implements the debugger side of a JDWP connection with multiplexing.
//
// ClientTransport lets many goroutines issue commands over the single connection a
// target VM accepts. Every command gets a unique packet id, and a background goroutine
// (recvLoop) reads replies and routes each one to the caller waiting on that id.
//
//	goroutine-1 ──Send(id=1)──┐
//	goroutine-2 ──Send(id=2)──┼──→ single JDWP conn ──→ target VM
//	goroutine-3 ──Send(id=3)──┘
//
//	recvLoop:  ←── reply(id=2) → pending[2] chan → goroutine-2 wakes up
//	           ←── command(Event.Composite) → command handler
//
// Replies may arrive in any order. When the connection breaks every pending caller
// receives ErrConnectionClosed, and later sends fail with it immediately.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"mini-jdi/message"
	"mini-jdi/protocol"
)

// ErrConnectionClosed is returned for every request that cannot complete because the
// connection is gone.
var ErrConnectionClosed = errors.New("jdwp: connection closed")

// Reply is what a waiting caller receives: a reply packet or a transport failure.
type Reply struct {
	Packet *protocol.Packet
	Err    error
}

// CommandHandler receives command packets sent by the VM, i.e. events. It runs on the
// receive goroutine and must not block.
type CommandHandler func(p *protocol.Packet)

// ClientTransport manages a single multiplexed JDWP connection.
type ClientTransport struct {
	conn    net.Conn
	logger  *zap.Logger
	onEvent CommandHandler

	sending sync.Mutex // serializes packet writes and id assignment
	id      uint32     // last packet id handed out, guarded by sending

	mu       sync.Mutex
	pending  map[uint32]chan *Reply
	closeErr error // non-nil once the transport is unusable
	done     chan struct{}
}

// Option configures a ClientTransport.
type Option func(*ClientTransport)

func WithLogger(logger *zap.Logger) Option {
	return func(t *ClientTransport) {
		t.logger = logger
	}
}

// WithCommandHandler installs the receiver for VM-originated command packets.
func WithCommandHandler(h CommandHandler) Option {
	return func(t *ClientTransport) {
		t.onEvent = h
	}
}

// NewClientTransport wraps a connection that has already completed the JDWP handshake
// and starts the receive loop. A positive keepAlive also starts a loop that probes the
// VM with VirtualMachine.IDSizes so a dead peer is noticed while the debugger is idle.
func NewClientTransport(conn net.Conn, keepAlive time.Duration, opts ...Option) *ClientTransport {
	t := &ClientTransport{
		conn:    conn,
		logger:  zap.NewNop(),
		pending: make(map[uint32]chan *Reply),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	go t.recvLoop()
	if keepAlive > 0 {
		go t.keepAliveLoop(keepAlive)
	}
	return t
}

// Send writes a command packet and returns its id plus a channel that will receive
// exactly one Reply.
//
// The pending entry is registered before the packet is written so recvLoop can never
// see a reply for an id it does not know.
func (t *ClientTransport) Send(cmd message.Command, data []byte) (uint32, <-chan *Reply, error) {
	t.sending.Lock()
	defer t.sending.Unlock()

	t.id++
	id := t.id

	replyChan := make(chan *Reply, 1)
	t.mu.Lock()
	if t.closeErr != nil {
		err := t.closeErr
		t.mu.Unlock()
		return 0, nil, err
	}
	t.pending[id] = replyChan
	t.mu.Unlock()

	packet := &protocol.Packet{
		ID:         id,
		CommandSet: uint8(cmd.Set),
		Command:    cmd.ID,
		Data:       data,
	}
	if err := protocol.Encode(t.conn, packet); err != nil {
		t.forget(id)
		return 0, nil, fmt.Errorf("%w: writing %v: %v", ErrConnectionClosed, cmd, err)
	}
	return id, replyChan, nil
}

// Call sends a command and blocks until its reply arrives, the connection closes or ctx
// is done. Giving up on ctx discards the reply when it eventually arrives.
func (t *ClientTransport) Call(ctx context.Context, cmd message.Command, data []byte) (*protocol.Packet, error) {
	id, replyChan, err := t.Send(cmd, data)
	if err != nil {
		return nil, err
	}
	select {
	case reply := <-replyChan:
		return reply.Packet, reply.Err
	case <-ctx.Done():
		t.forget(id)
		return nil, ctx.Err()
	}
}

func (t *ClientTransport) forget(id uint32) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// recvLoop is the only reader of the connection; frame boundaries can only be parsed
// sequentially.
func (t *ClientTransport) recvLoop() {
	for {
		packet, err := protocol.Decode(t.conn)
		if err != nil {
			t.closeAllPending(err)
			return
		}

		if !packet.IsReply() {
			if t.onEvent != nil {
				t.onEvent(packet)
			} else {
				t.logger.Debug("dropping command packet from VM", zap.Stringer("packet", packet))
			}
			continue
		}

		t.mu.Lock()
		replyChan, ok := t.pending[packet.ID]
		delete(t.pending, packet.ID)
		t.mu.Unlock()
		if !ok {
			t.logger.Warn("reply for unknown packet id", zap.Uint32("id", packet.ID))
			continue
		}
		replyChan <- &Reply{Packet: packet}
	}
}

// closeAllPending marks the transport unusable and fails every waiting caller.
func (t *ClientTransport) closeAllPending(cause error) {
	t.mu.Lock()
	if t.closeErr == nil {
		t.closeErr = fmt.Errorf("%w: %v", ErrConnectionClosed, cause)
		close(t.done)
	}
	err := t.closeErr
	pending := t.pending
	t.pending = make(map[uint32]chan *Reply)
	t.mu.Unlock()

	for _, replyChan := range pending {
		replyChan <- &Reply{Err: err}
	}
	if len(pending) > 0 {
		t.logger.Info("failed pending requests on disconnect", zap.Int("count", len(pending)), zap.Error(cause))
	}
}

// Close shuts the connection down. Pending callers receive ErrConnectionClosed.
func (t *ClientTransport) Close() error {
	t.closeAllPending(errors.New("closed by debugger"))
	return t.conn.Close()
}

// Done is closed once the transport is unusable.
func (t *ClientTransport) Done() <-chan struct{} {
	return t.done
}

// Err returns the reason the transport closed, or nil while it is open.
func (t *ClientTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeErr
}

// Conn returns the underlying connection.
func (t *ClientTransport) Conn() net.Conn {
	return t.conn
}

// keepAliveLoop issues a cheap command at every tick. JDWP has no heartbeat frame, so a
// real round-trip is the only way to learn the VM went away on an idle connection.
func (t *ClientTransport) keepAliveLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		_, err := t.Call(ctx, message.VMIDSizes, nil)
		cancel()
		if errors.Is(err, ErrConnectionClosed) {
			return
		}
		if err != nil {
			t.logger.Warn("keepalive probe failed", zap.Error(err))
		}
	}
}
