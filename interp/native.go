package interp

import (
	"github.com/rs/zerolog/log"

	"github.com/timewinder-dev/dreamvm/vm"
)

// Native implements a proc flagged native. Returning ErrSuspend after
// calling Sleep or Await parks the calling thread.
type Native func(nc *NativeCall) (vm.Value, error)

// NativeCall is the view a native gets of its invocation.
type NativeCall struct {
	*Context
	Thread *Thread
	Proc   *vm.Proc
	Src    vm.Value
	Usr    vm.Value
	// Args are the bound arguments followed by any extras.
	Args []vm.Value

	frame *ProcState
}

// Arg returns the i-th argument, or null when absent.
func (nc *NativeCall) Arg(i int) vm.Value {
	if i < 0 || i >= len(nc.Args) {
		return vm.Null
	}
	return nc.Args[i]
}

// Sleep parks the thread for ticks scheduler ticks. The native returns null
// once woken.
func (nc *NativeCall) Sleep(ticks int) error {
	nc.frame.wake = &wake{ticks: ticks}
	return ErrSuspend
}

// Await parks the thread until start's Resumer is called. start runs after
// the thread has been parked and may complete from any goroutine.
func (nc *NativeCall) Await(start func(resume Resumer)) error {
	nc.frame.wake = &wake{async: start}
	return ErrSuspend
}

// stepNative runs a native frame. The first step calls the native; a woken
// frame returns its resume value.
func (c *Context) stepNative(ps *ProcState) (StepResult, error) {
	if ps.started {
		ps.result = ps.resumeValue
		return ReturnStep, nil
	}
	ps.started = true
	fn, ok := c.Natives[c.Program.ProcPath(ps.Proc.ID)]
	if !ok {
		fn, ok = c.Natives[ps.Proc.Name]
	}
	if !ok {
		return ErrorStep, vm.NewFault(vm.InvalidProc, "no native bound for %s", c.Program.ProcPath(ps.Proc.ID))
	}
	nc := &NativeCall{
		Context: c,
		Thread:  ps.thread,
		Proc:    ps.Proc,
		Src:     ps.Src,
		Usr:     ps.Usr,
		Args:    ps.argValues(),
		frame:   ps,
	}
	v, err := fn(nc)
	if err == ErrSuspend {
		if ps.wake == nil {
			return ErrorStep, vm.NewFault(vm.InvalidProc, "%s suspended without a wake condition", ps.Proc.Name)
		}
		return SuspendStep, nil
	}
	if err != nil {
		return ErrorStep, err
	}
	ps.result = v
	return ReturnStep, nil
}

// DefaultNatives is the built-in native table. Keys are either a full proc
// path such as /list/proc/Add or a bare name matched on any owner.
func DefaultNatives() map[string]Native {
	out := map[string]Native{
		"sleep":        nativeSleep,
		"log":          nativeLog,
		"length":       nativeLength,
		"text":         nativeText,
		"handle_valid": nativeHandleValid,
	}
	for name, fn := range listProcs() {
		out[ListType+"/proc/"+name] = fn
	}
	return out
}

func nativeSleep(nc *NativeCall) (vm.Value, error) {
	ticks, err := nc.ticksFor(nc.Arg(0))
	if err != nil {
		return vm.Null, err
	}
	return vm.Null, nc.Sleep(ticks)
}

func nativeLog(nc *NativeCall) (vm.Value, error) {
	msg := ""
	for i, a := range nc.Args {
		if i > 0 {
			msg += " "
		}
		msg += nc.Stringify(a)
	}
	ev := log.Info().Str("proc", nc.Program.ProcPath(nc.Proc.ID))
	if nc.Thread != nil {
		ev = ev.Str("thread", nc.Thread.Name)
	}
	ev.Msg(msg)
	return vm.Null, nil
}

func nativeLength(nc *NativeCall) (vm.Value, error) {
	v := nc.Arg(0)
	switch v.Kind {
	case vm.KindNull:
		return vm.Number(0), nil
	case vm.KindString:
		return vm.Number(float32(len([]rune(nc.Text(v))))), nil
	case vm.KindList:
		l, err := nc.Heap.List(vm.Handle(v.Ref))
		if err != nil {
			return vm.Null, err
		}
		return vm.Number(float32(l.Len())), nil
	}
	return vm.Null, vm.NewFault(vm.TypeMismatch, "length of %s", v.Kind)
}

func nativeText(nc *NativeCall) (vm.Value, error) {
	return nc.StringValue(nc.Stringify(nc.Arg(0))), nil
}

func nativeHandleValid(nc *NativeCall) (vm.Value, error) {
	v := nc.Arg(0)
	if v.Kind != vm.KindObject && v.Kind != vm.KindList {
		return vm.Bool(false), nil
	}
	return vm.Bool(nc.Heap.Valid(vm.Handle(v.Ref))), nil
}
