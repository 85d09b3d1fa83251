// Package message defines the JDWP vocabulary shared by the client and the fake target VM.
//
// A Command names one request in the protocol as a (command set, command) pair, e.g.
// VirtualMachine.IDSizes is (1, 7). The transport layer only sees the two bytes; this
// package gives them names for logging and dispatch.
package message

import "fmt"

// CommandSet is the namespace of a command.
type CommandSet uint8

const (
	SetVirtualMachine       CommandSet = 1
	SetReferenceType        CommandSet = 2
	SetClassType            CommandSet = 3
	SetArrayType            CommandSet = 4
	SetInterfaceType        CommandSet = 5
	SetMethod               CommandSet = 6
	SetField                CommandSet = 8
	SetObjectReference      CommandSet = 9
	SetStringReference      CommandSet = 10
	SetThreadReference      CommandSet = 11
	SetThreadGroupReference CommandSet = 12
	SetArrayReference       CommandSet = 13
	SetClassLoaderReference CommandSet = 14
	SetEventRequest         CommandSet = 15
	SetStackFrame           CommandSet = 16
	SetClassObjectReference CommandSet = 17
	SetEvent                CommandSet = 64
)

var commandSetNames = map[CommandSet]string{
	SetVirtualMachine:       "VirtualMachine",
	SetReferenceType:        "ReferenceType",
	SetClassType:            "ClassType",
	SetArrayType:            "ArrayType",
	SetInterfaceType:        "InterfaceType",
	SetMethod:               "Method",
	SetField:                "Field",
	SetObjectReference:      "ObjectReference",
	SetStringReference:      "StringReference",
	SetThreadReference:      "ThreadReference",
	SetThreadGroupReference: "ThreadGroupReference",
	SetArrayReference:       "ArrayReference",
	SetClassLoaderReference: "ClassLoaderReference",
	SetEventRequest:         "EventRequest",
	SetStackFrame:           "StackFrame",
	SetClassObjectReference: "ClassObjectReference",
	SetEvent:                "Event",
}

func (s CommandSet) String() string {
	if name, ok := commandSetNames[s]; ok {
		return name
	}
	return fmt.Sprint(uint8(s))
}

// Command identifies a single request.
type Command struct {
	Set CommandSet
	ID  uint8
}

var (
	VMVersion            = Command{SetVirtualMachine, 1}
	VMClassesBySignature = Command{SetVirtualMachine, 2}
	VMAllClasses         = Command{SetVirtualMachine, 3}
	VMAllThreads         = Command{SetVirtualMachine, 4}
	VMDispose            = Command{SetVirtualMachine, 6}
	VMIDSizes            = Command{SetVirtualMachine, 7}
	VMSuspend            = Command{SetVirtualMachine, 8}
	VMResume             = Command{SetVirtualMachine, 9}
	VMExit               = Command{SetVirtualMachine, 10}
	VMCapabilities       = Command{SetVirtualMachine, 12}
	VMSetDefaultStratum  = Command{SetVirtualMachine, 19}

	RTSignature            = Command{SetReferenceType, 1}
	RTModifiers            = Command{SetReferenceType, 3}
	RTMethods              = Command{SetReferenceType, 5}
	RTSourceFile           = Command{SetReferenceType, 7}
	RTStatus               = Command{SetReferenceType, 9}
	RTSourceDebugExtension = Command{SetReferenceType, 12}

	MethodLineTable     = Command{SetMethod, 1}
	MethodVariableTable = Command{SetMethod, 2}
	MethodIsObsolete    = Command{SetMethod, 4}

	EventRequestSet                 = Command{SetEventRequest, 1}
	EventRequestClear               = Command{SetEventRequest, 2}
	EventRequestClearAllBreakpoints = Command{SetEventRequest, 3}

	EventComposite = Command{SetEvent, 100}
)

var commandNames = map[Command]string{
	VMVersion:            "Version",
	VMClassesBySignature: "ClassesBySignature",
	VMAllClasses:         "AllClasses",
	VMAllThreads:         "AllThreads",
	VMDispose:            "Dispose",
	VMIDSizes:            "IDSizes",
	VMSuspend:            "Suspend",
	VMResume:             "Resume",
	VMExit:               "Exit",
	VMCapabilities:       "Capabilities",
	VMSetDefaultStratum:  "SetDefaultStratum",

	RTSignature:            "Signature",
	RTModifiers:            "Modifiers",
	RTMethods:              "Methods",
	RTSourceFile:           "SourceFile",
	RTStatus:               "Status",
	RTSourceDebugExtension: "SourceDebugExtension",

	MethodLineTable:     "LineTable",
	MethodVariableTable: "VariableTable",
	MethodIsObsolete:    "IsObsolete",

	EventRequestSet:                 "Set",
	EventRequestClear:               "Clear",
	EventRequestClearAllBreakpoints: "ClearAllBreakpoints",

	EventComposite: "Composite",
}

func (c Command) String() string {
	name, ok := commandNames[c]
	if !ok {
		name = fmt.Sprint(c.ID)
	}
	return c.Set.String() + "." + name
}
