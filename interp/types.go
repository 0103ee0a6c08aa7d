package interp

import (
	"errors"

	"github.com/timewinder-dev/dreamvm/vm"
)

type StepResult int

const (
	ContinueStep StepResult = iota
	ReturnStep              // top frame finished; result in the frame
	CallStep                // top frame queued a callee frame
	SuspendStep             // top frame is waiting on its wake condition
	ErrorStep               // a fault was raised; unwind
)

func (r StepResult) String() string {
	switch r {
	case ContinueStep:
		return "Continue"
	case ReturnStep:
		return "Return"
	case CallStep:
		return "Call"
	case SuspendStep:
		return "Suspend"
	case ErrorStep:
		return "Error"
	}
	return "Unknown"
}

var (
	// ErrUnresolved is returned by Run when the thread suspended before
	// producing a result.
	ErrUnresolved = errors.New("proc suspended before returning")
	// ErrCancelled is the fault of a cancelled thread.
	ErrCancelled = errors.New("thread cancelled")
	// ErrSuspend is returned by natives that parked their frame.
	ErrSuspend = errors.New("native suspended")
)

// Resumer completes an asynchronous wait with a value or a fault.
type Resumer func(v vm.Value, err error)

// wake describes what a suspended frame is waiting for: a timer, or an
// asynchronous completion started by async.
type wake struct {
	ticks int
	async func(resume Resumer)
}

type catchHandler struct {
	pc    int
	ref   *vm.Reference
	depth int
}

// NamedArg is a keyword argument.
type NamedArg struct {
	Name  string
	Value vm.Value
}

// Args are the arguments of one call before binding.
type Args struct {
	Positional []vm.Value
	Named      []NamedArg
}

func Positional(vals ...vm.Value) Args {
	return Args{Positional: vals}
}

// ProcState is one activation record. Locals holds the declared arguments
// first, then the proc's local slots.
type ProcState struct {
	Proc   *vm.Proc
	PC     int
	Stack  []vm.Value
	Locals []vm.Value
	Extra  []vm.Value
	Src    vm.Value
	Usr    vm.Value
	Dot    vm.Value

	// HighWater is the deepest the operand stack has been.
	HighWater int

	thread      *Thread
	opStart     int
	catches     []catchHandler
	enumerators map[int32]Enumerator
	wake        *wake

	// resumeValue is what a woken native frame returns.
	resumeValue vm.Value
	started     bool

	pending        *ProcState
	result         vm.Value
	returnOverride *vm.Value
}

func (ps *ProcState) Thread() *Thread {
	return ps.thread
}

// OpStart is the offset of the instruction executing or last executed.
func (ps *ProcState) OpStart() int {
	return ps.opStart
}

// Suspended reports whether the frame is parked on a wake condition.
func (ps *ProcState) Suspended() bool {
	return ps.wake != nil
}

// FrameInfo is an inspectable snapshot of one frame.
type FrameInfo struct {
	Proc  string
	PC    int
	Loc   vm.Location
	Stack []vm.Value
}
