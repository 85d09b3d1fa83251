package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mini-jdi/message"
	"mini-jdi/protocol"
)

// LoggingMiddleware logs every command with its duration and, for error replies, the
// JDWP error code.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, cmd message.Command, data []byte) (*protocol.Packet, error) {
			start := time.Now()
			reply, err := next(ctx, cmd, data)
			fields := []zap.Field{
				zap.Stringer("command", cmd),
				zap.Int("requestBytes", len(data)),
				zap.Duration("duration", time.Since(start)),
			}
			switch {
			case err != nil:
				logger.Warn("command failed", append(fields, zap.Error(err))...)
			case reply.ErrorCode != 0:
				logger.Debug("command returned error", append(fields,
					zap.Uint32("id", reply.ID),
					zap.Stringer("errorCode", message.ErrorCode(reply.ErrorCode)))...)
			default:
				logger.Debug("command", append(fields,
					zap.Uint32("id", reply.ID),
					zap.Int("replyBytes", len(reply.Data)))...)
			}
			return reply, err
		}
	}
}
