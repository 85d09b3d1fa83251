package middleware

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"mini-jdi/message"
	"mini-jdi/protocol"
)

// ErrRateLimited is returned when the token bucket is empty.
var ErrRateLimited = errors.New("jdwp: command rate limit exceeded")

// RateLimitMiddleware caps the rate of commands sent to the VM with a token bucket.
// Commands over the limit fail immediately rather than queueing.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, cmd message.Command, data []byte) (*protocol.Packet, error) {
			if !limiter.Allow() {
				return nil, ErrRateLimited
			}
			return next(ctx, cmd, data)
		}
	}
}
