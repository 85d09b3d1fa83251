package jdi

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mini-jdi/codec"
	"mini-jdi/message"
)

// SetBreakpoint asks the VM to report EventBreakpoint when loc executes and returns the
// request id carried by the resulting events.
func (s *Session) SetBreakpoint(ctx context.Context, loc *Location, policy message.SuspendPolicy) (int32, error) {
	if loc == nil {
		return 0, fmt.Errorf("jdi: breakpoint without location")
	}
	r, err := s.command(ctx, message.EventRequestSet, func(w *codec.Writer) {
		w.Byte(uint8(message.EventBreakpoint))
		w.Byte(uint8(policy))
		w.Int(1)
		w.Byte(uint8(message.ModLocationOnly))
		loc.Write(w)
	})
	if err != nil {
		return 0, err
	}
	id := r.Int("requestID")
	if err := r.Err(); err != nil {
		return 0, err
	}
	s.logger.Debug("breakpoint set", zap.Int32("requestID", id), zap.Uint64("index", loc.CodeIndex()))
	return id, nil
}

// ClearBreakpoint cancels a request made by SetBreakpoint.
func (s *Session) ClearBreakpoint(ctx context.Context, requestID int32) error {
	_, err := s.command(ctx, message.EventRequestClear, func(w *codec.Writer) {
		w.Byte(uint8(message.EventBreakpoint))
		w.Int(requestID)
	})
	return err
}
