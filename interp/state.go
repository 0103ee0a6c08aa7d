package interp

import (
	"github.com/timewinder-dev/dreamvm/vm"
)

// stackUnderrun is raised by pop on an empty stack and turned into a fault
// by Step.
type stackUnderrun struct {
	proc string
}

func (ps *ProcState) push(v vm.Value) {
	ps.Stack = append(ps.Stack, v)
	if len(ps.Stack) > ps.HighWater {
		ps.HighWater = len(ps.Stack)
	}
}

func (ps *ProcState) pop() vm.Value {
	if len(ps.Stack) == 0 {
		panic(stackUnderrun{proc: ps.Proc.Name})
	}
	v := ps.Stack[len(ps.Stack)-1]
	ps.Stack = ps.Stack[:len(ps.Stack)-1]
	return v
}

// popN removes the top n values and returns them in push order.
func (ps *ProcState) popN(n int) []vm.Value {
	if n < 0 || n > len(ps.Stack) {
		panic(stackUnderrun{proc: ps.Proc.Name})
	}
	out := make([]vm.Value, n)
	copy(out, ps.Stack[len(ps.Stack)-n:])
	ps.Stack = ps.Stack[:len(ps.Stack)-n]
	return out
}

// argValues returns the declared arguments followed by any extras.
func (ps *ProcState) argValues() []vm.Value {
	n := len(ps.Proc.Args)
	out := make([]vm.Value, 0, n+len(ps.Extra))
	out = append(out, ps.Locals[:n]...)
	return append(out, ps.Extra...)
}

func (ps *ProcState) popCatch() (catchHandler, bool) {
	if len(ps.catches) == 0 {
		return catchHandler{}, false
	}
	h := ps.catches[len(ps.catches)-1]
	ps.catches = ps.catches[:len(ps.catches)-1]
	return h, true
}

// release drops per-frame runtime resources when the frame leaves its
// thread.
func (ps *ProcState) release() {
	ps.catches = nil
	ps.enumerators = nil
	ps.wake = nil
	ps.pending = nil
}

// clone copies the frame for spawn. Handlers are not inherited.
func (ps *ProcState) clone() *ProcState {
	out := &ProcState{
		Proc:      ps.Proc,
		PC:        ps.PC,
		Stack:     make([]vm.Value, len(ps.Stack), cap(ps.Stack)),
		Locals:    make([]vm.Value, len(ps.Locals)),
		Extra:     append([]vm.Value(nil), ps.Extra...),
		Src:       ps.Src,
		Usr:       ps.Usr,
		Dot:       ps.Dot,
		HighWater: ps.HighWater,
		opStart:   ps.opStart,
		started:   ps.started,
	}
	copy(out.Stack, ps.Stack)
	copy(out.Locals, ps.Locals)
	if len(ps.enumerators) > 0 {
		out.enumerators = make(map[int32]Enumerator, len(ps.enumerators))
		for id, e := range ps.enumerators {
			out.enumerators[id] = e.Clone()
		}
	}
	return out
}

func (ps *ProcState) info(c *Context) FrameInfo {
	return FrameInfo{
		Proc:  c.Program.ProcPath(ps.Proc.ID),
		PC:    ps.PC,
		Loc:   ps.Proc.LocationAt(ps.opStart),
		Stack: append([]vm.Value(nil), ps.Stack...),
	}
}
