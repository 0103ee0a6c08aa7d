package vm

import (
	"errors"
	"fmt"
	"strings"
)

// Location is a source position supplied by the front end.
type Location struct {
	File string `msgpack:"f,omitempty"`
	Line int    `msgpack:"l,omitempty"`
}

func (l Location) IsZero() bool {
	return l.File == "" && l.Line == 0
}

func (l Location) String() string {
	if l.IsZero() {
		return "<unknown>"
	}
	if l.File == "" {
		return fmt.Sprintf("line %d", l.Line)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

type AssemblyErrorKind int

const (
	UnresolvedLabel AssemblyErrorKind = iota
	NegativeStackDepth
	UnexpectedOperand
)

func (k AssemblyErrorKind) String() string {
	switch k {
	case UnresolvedLabel:
		return "UnresolvedLabel"
	case NegativeStackDepth:
		return "NegativeStackDepth"
	case UnexpectedOperand:
		return "UnexpectedOperand"
	}
	return fmt.Sprintf("AssemblyErrorKind(%d)", int(k))
}

// AssemblyError aborts the assembly of one proc.
type AssemblyError struct {
	Kind    AssemblyErrorKind
	Proc    string
	Offset  int
	Loc     Location
	Message string
}

func (e *AssemblyError) Error() string {
	proc := e.Proc
	if proc == "" {
		proc = "<proc>"
	}
	return fmt.Sprintf("%s: %s at offset %d (%s): %s", proc, e.Kind, e.Offset, e.Loc, e.Message)
}

type LookupErrorKind int

const (
	NoSuchProc LookupErrorKind = iota
	NoSuchField
	NoSuchType
)

func (k LookupErrorKind) String() string {
	switch k {
	case NoSuchProc:
		return "NoSuchProc"
	case NoSuchField:
		return "NoSuchField"
	case NoSuchType:
		return "NoSuchType"
	}
	return fmt.Sprintf("LookupErrorKind(%d)", int(k))
}

type LookupError struct {
	Kind LookupErrorKind
	Name string
	On   string
}

func (e *LookupError) Error() string {
	if e.On == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Name)
	}
	return fmt.Sprintf("%s: %s on %s", e.Kind, e.Name, e.On)
}

// ArgumentError is raised while binding a call, before the callee runs.
type ArgumentError struct {
	Proc   string
	Arg    string
	Reason string
}

func (e *ArgumentError) Error() string {
	if e.Arg == "" {
		return fmt.Sprintf("ArgumentError: %s: %s", e.Proc, e.Reason)
	}
	return fmt.Sprintf("ArgumentError: %s(%s): %s", e.Proc, e.Arg, e.Reason)
}

type FaultKind int

const (
	InvalidHandle FaultKind = iota
	DivideByZero
	TypeMismatch
	IndexOutOfBounds
	StackOverflow
	Thrown
	InvalidProc
	LookupFailed
	BadArguments
)

func (k FaultKind) String() string {
	switch k {
	case InvalidHandle:
		return "InvalidHandle"
	case DivideByZero:
		return "DivideByZero"
	case TypeMismatch:
		return "TypeMismatch"
	case IndexOutOfBounds:
		return "IndexOutOfBounds"
	case StackOverflow:
		return "StackOverflow"
	case Thrown:
		return "Thrown"
	case InvalidProc:
		return "InvalidProc"
	case LookupFailed:
		return "LookupFailed"
	case BadArguments:
		return "BadArguments"
	}
	return fmt.Sprintf("FaultKind(%d)", int(k))
}

// RuntimeFault is raised while executing opcodes and unwinds frames looking
// for a handler. Value is set for Thrown faults. Cause keeps the lookup or
// argument error a fault was promoted from.
type RuntimeFault struct {
	Kind    FaultKind
	Proc    string
	PC      int
	Loc     Location
	Message string
	Value   Value
	Trace   []string
	Cause   error
}

func (f *RuntimeFault) Error() string {
	var sb strings.Builder
	sb.WriteString(f.Kind.String())
	if f.Proc != "" {
		fmt.Fprintf(&sb, " in %s at %d", f.Proc, f.PC)
		if !f.Loc.IsZero() {
			fmt.Fprintf(&sb, " (%s)", f.Loc)
		}
	}
	if f.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(f.Message)
	}
	return sb.String()
}

func (f *RuntimeFault) Unwrap() error {
	return f.Cause
}

// Located reports whether proc and pc have been filled in.
func (f *RuntimeFault) Located() bool {
	return f.Proc != ""
}

// AsFault promotes any error raised by an opcode into a RuntimeFault.
func AsFault(err error) *RuntimeFault {
	var f *RuntimeFault
	if errors.As(err, &f) {
		return f
	}
	var le *LookupError
	if errors.As(err, &le) {
		return &RuntimeFault{Kind: LookupFailed, Message: le.Error(), Cause: err}
	}
	var ae *ArgumentError
	if errors.As(err, &ae) {
		return &RuntimeFault{Kind: BadArguments, Message: ae.Error(), Cause: err}
	}
	return &RuntimeFault{Kind: Thrown, Message: err.Error(), Cause: err}
}

// SchedulerFault is an invariant violation in thread management.
type SchedulerFault struct {
	Thread string
	Reason string
}

func (e *SchedulerFault) Error() string {
	return fmt.Sprintf("scheduler fault: thread %s: %s", e.Thread, e.Reason)
}

func NewFault(kind FaultKind, format string, args ...any) *RuntimeFault {
	return &RuntimeFault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
