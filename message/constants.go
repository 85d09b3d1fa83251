package message

import "fmt"

// ErrorCode is the error field of a reply packet. Zero means success.
type ErrorCode uint16

const (
	ErrNone               ErrorCode = 0
	ErrInvalidThread      ErrorCode = 10
	ErrInvalidObject      ErrorCode = 20
	ErrInvalidClass       ErrorCode = 21
	ErrClassNotPrepared   ErrorCode = 22
	ErrInvalidMethodID    ErrorCode = 23
	ErrInvalidLocation    ErrorCode = 24
	ErrInvalidFieldID     ErrorCode = 25
	ErrInvalidFrameID     ErrorCode = 30
	ErrNotImplemented     ErrorCode = 99
	ErrNullPointer        ErrorCode = 100
	ErrAbsentInformation  ErrorCode = 101
	ErrInvalidEventType   ErrorCode = 102
	ErrIllegalArgument    ErrorCode = 103
	ErrOutOfMemory        ErrorCode = 110
	ErrVMDead             ErrorCode = 112
	ErrInternal           ErrorCode = 113
	ErrInvalidTag         ErrorCode = 500
	ErrInvalidLength      ErrorCode = 504
	ErrInvalidString      ErrorCode = 506
	ErrInvalidClassLoader ErrorCode = 507
	ErrInvalidArray       ErrorCode = 508
	ErrNativeMethod       ErrorCode = 511
	ErrInvalidCount       ErrorCode = 512
)

var errorCodeNames = map[ErrorCode]string{
	ErrNone:               "NONE",
	ErrInvalidThread:      "INVALID_THREAD",
	ErrInvalidObject:      "INVALID_OBJECT",
	ErrInvalidClass:       "INVALID_CLASS",
	ErrClassNotPrepared:   "CLASS_NOT_PREPARED",
	ErrInvalidMethodID:    "INVALID_METHODID",
	ErrInvalidLocation:    "INVALID_LOCATION",
	ErrInvalidFieldID:     "INVALID_FIELDID",
	ErrInvalidFrameID:     "INVALID_FRAMEID",
	ErrNotImplemented:     "NOT_IMPLEMENTED",
	ErrNullPointer:        "NULL_POINTER",
	ErrAbsentInformation:  "ABSENT_INFORMATION",
	ErrInvalidEventType:   "INVALID_EVENT_TYPE",
	ErrIllegalArgument:    "ILLEGAL_ARGUMENT",
	ErrOutOfMemory:        "OUT_OF_MEMORY",
	ErrVMDead:             "VM_DEAD",
	ErrInternal:           "INTERNAL",
	ErrInvalidTag:         "INVALID_TAG",
	ErrInvalidLength:      "INVALID_LENGTH",
	ErrInvalidString:      "INVALID_STRING",
	ErrInvalidClassLoader: "INVALID_CLASS_LOADER",
	ErrInvalidArray:       "INVALID_ARRAY",
	ErrNativeMethod:       "NATIVE_METHOD",
	ErrInvalidCount:       "INVALID_COUNT",
}

func (e ErrorCode) String() string {
	if name, ok := errorCodeNames[e]; ok {
		return name
	}
	return fmt.Sprintf("ERROR_%d", uint16(e))
}

// TypeTag is the kind of a reference type.
type TypeTag uint8

const (
	TypeTagClass     TypeTag = 1
	TypeTagInterface TypeTag = 2
	TypeTagArray     TypeTag = 3
)

// Valid reports whether t is one of the three tags JDWP defines.
func (t TypeTag) Valid() bool {
	return t >= TypeTagClass && t <= TypeTagArray
}

func (t TypeTag) String() string {
	switch t {
	case TypeTagClass:
		return "class"
	case TypeTagInterface:
		return "interface"
	case TypeTagArray:
		return "array"
	}
	return fmt.Sprintf("TypeTag(%d)", uint8(t))
}

// Tag is the type tag of a value or tagged object id.
type Tag uint8

const (
	TagArray       Tag = '['
	TagByte        Tag = 'B'
	TagChar        Tag = 'C'
	TagObject      Tag = 'L'
	TagFloat       Tag = 'F'
	TagDouble      Tag = 'D'
	TagInt         Tag = 'I'
	TagLong        Tag = 'J'
	TagShort       Tag = 'S'
	TagVoid        Tag = 'V'
	TagBoolean     Tag = 'Z'
	TagString      Tag = 's'
	TagThread      Tag = 't'
	TagThreadGroup Tag = 'g'
	TagClassLoader Tag = 'l'
	TagClassObject Tag = 'c'
)

// IsObject reports whether the tag denotes an object reference.
func (t Tag) IsObject() bool {
	switch t {
	case TagArray, TagObject, TagString, TagThread, TagThreadGroup, TagClassLoader, TagClassObject:
		return true
	}
	return false
}

// EventKind identifies an event in a composite event packet and in event requests.
type EventKind uint8

const (
	EventSingleStep   EventKind = 1
	EventBreakpoint   EventKind = 2
	EventException    EventKind = 4
	EventThreadStart  EventKind = 6
	EventThreadDeath  EventKind = 7
	EventClassPrepare EventKind = 8
	EventClassUnload  EventKind = 9
	EventMethodEntry  EventKind = 40
	EventMethodExit   EventKind = 41
	EventVMStart      EventKind = 90
	EventVMDeath      EventKind = 99
)

var eventKindNames = map[EventKind]string{
	EventSingleStep:   "SingleStep",
	EventBreakpoint:   "Breakpoint",
	EventException:    "Exception",
	EventThreadStart:  "ThreadStart",
	EventThreadDeath:  "ThreadDeath",
	EventClassPrepare: "ClassPrepare",
	EventClassUnload:  "ClassUnload",
	EventMethodEntry:  "MethodEntry",
	EventMethodExit:   "MethodExit",
	EventVMStart:      "VMStart",
	EventVMDeath:      "VMDeath",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// SuspendPolicy says which threads the VM suspends when an event fires.
type SuspendPolicy uint8

const (
	SuspendNone        SuspendPolicy = 0
	SuspendEventThread SuspendPolicy = 1
	SuspendAll         SuspendPolicy = 2
)

// ModKind is the kind of an event request modifier.
type ModKind uint8

const (
	ModCount        ModKind = 1
	ModThreadOnly   ModKind = 3
	ModClassOnly    ModKind = 4
	ModClassMatch   ModKind = 5
	ModLocationOnly ModKind = 7
)

// Method modifier bits, as in the class file format.
const (
	AccPublic    int32 = 0x0001
	AccPrivate   int32 = 0x0002
	AccStatic    int32 = 0x0008
	AccFinal     int32 = 0x0010
	AccBridge    int32 = 0x0040
	AccNative    int32 = 0x0100
	AccAbstract  int32 = 0x0400
	AccSynthetic int32 = 0x1000

	// JDWP marks synthetic members with 0xf0000000; as a signed 32-bit value that is this.
	AccJDWPSynthetic int32 = -0x10000000
)

// Class status bits.
const (
	StatusVerified    int32 = 1
	StatusPrepared    int32 = 2
	StatusInitialized int32 = 4
	StatusError       int32 = 8
)
