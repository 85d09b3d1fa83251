package jdi

import (
	"errors"
	"fmt"

	"mini-jdi/message"
)

// ErrAbsentInformation means the VM answered but the entity carries no debug
// information, e.g. a class compiled without -g. Callers are expected to degrade.
var ErrAbsentInformation = errors.New("jdi: absent information")

// CommandError is a reply with a non-zero JDWP error code.
type CommandError struct {
	Command message.Command
	Code    message.ErrorCode
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("jdi: %v failed: %v (%d)", e.Command, e.Code, uint16(e.Code))
}

// Unwrap makes errors.Is(err, ErrAbsentInformation) hold for ABSENT_INFORMATION replies.
func (e *CommandError) Unwrap() error {
	if e.Code == message.ErrAbsentInformation {
		return ErrAbsentInformation
	}
	return nil
}

// IsCode reports whether err is a CommandError with the given code.
func IsCode(err error, code message.ErrorCode) bool {
	var cerr *CommandError
	return errors.As(err, &cerr) && cerr.Code == code
}
