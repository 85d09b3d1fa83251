package server

import (
	"mini-jdi/message"
)

// Class is a reference type as the fake VM reports it.
type Class struct {
	ID        message.ReferenceTypeID
	Tag       message.TypeTag
	Signature string
	Status    int32
	// SourceFile is the SourceFile attribute; empty means the class was compiled
	// without it and the VM answers ABSENT_INFORMATION.
	SourceFile string
	// SourceDebugExtension holds an SMAP; empty means ABSENT_INFORMATION.
	SourceDebugExtension string
	Methods              []*Method
}

// Method is a method of a Class.
type Method struct {
	ID        message.MethodID
	Name      string
	Signature string
	Modifiers int32
	Start     uint64
	End       uint64
	// Lines is the line number table; nil means ABSENT_INFORMATION.
	Lines []Line
}

// Line is one line number table entry.
type Line struct {
	CodeIndex uint64
	Line      int32
}

// Location is a code position in the VM's wire terms. The zero value is the null
// location.
type Location struct {
	Tag    message.TypeTag
	Class  message.ReferenceTypeID
	Method message.MethodID
	Index  uint64
}

// Breakpoint is a breakpoint request a debugger made.
type Breakpoint struct {
	RequestID     int32
	SuspendPolicy message.SuspendPolicy
	Location      Location
}

// Version is what the VM answers to VirtualMachine.Version.
type Version struct {
	Description string
	JDWPMajor   int32
	JDWPMinor   int32
	VMVersion   string
	VMName      string
}

// DefaultVersion describes a JDWP 1.8 VM.
var DefaultVersion = Version{
	Description: "mini-jdi fake VM",
	JDWPMajor:   1,
	JDWPMinor:   8,
	VMVersion:   "1.8.0",
	VMName:      "FakeVM",
}
