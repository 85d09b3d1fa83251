// Package middleware wraps the command path of a JDWP session.
//
// A HandlerFunc performs one command round-trip. Middlewares decorate it in the onion
// model: Chain(A, B)(h) runs A.before → B.before → h → B.after → A.after.
package middleware

import (
	"context"

	"mini-jdi/message"
	"mini-jdi/protocol"
)

// HandlerFunc sends a command with the given data section and returns the reply packet.
type HandlerFunc func(ctx context.Context, cmd message.Command, data []byte) (*protocol.Packet, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines several middlewares into one; the first argument is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
