package interp

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/timewinder-dev/dreamvm/faultlog"
	"github.com/timewinder-dev/dreamvm/vm"
)

type Status int

const (
	Running Status = iota
	Suspended
	Returned
	Crashed
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	case Returned:
		return "returned"
	case Crashed:
		return "crashed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Thread is a cooperative thread of DM execution: a stack of frames run
// until it returns, crashes or suspends.
type Thread struct {
	ID   uuid.UUID
	Name string

	ctx    *Context
	frames []*ProcState
	status Status
	result vm.Value
	fault  error
	done   []func(*Thread)

	// executing is set while execute drives the thread; a Cancel issued
	// then is applied at the next step boundary.
	executing       bool
	cancelRequested bool
}

// NewThread wraps a bound frame in a thread that has not started.
func (c *Context) NewThread(name string, ps *ProcState) *Thread {
	t := &Thread{
		ID:   uuid.New(),
		Name: name,
		ctx:  c,
	}
	t.pushFrame(ps)
	return t
}

func (t *Thread) Status() Status   { return t.status }
func (t *Thread) Result() vm.Value { return t.result }

// Err is the fault that ended a crashed or cancelled thread.
func (t *Thread) Err() error { return t.fault }

func (t *Thread) Depth() int { return len(t.frames) }

// Frames returns the call stack, innermost frame first.
func (t *Thread) Frames() []FrameInfo {
	out := make([]FrameInfo, 0, len(t.frames))
	for i := len(t.frames) - 1; i >= 0; i-- {
		out = append(out, t.frames[i].info(t.ctx))
	}
	return out
}

// OnDone registers fn to run when the thread returns, crashes or is
// cancelled. It runs immediately on a finished thread.
func (t *Thread) OnDone(fn func(*Thread)) {
	if t.finished() {
		fn(t)
		return
	}
	t.done = append(t.done, fn)
}

func (t *Thread) finished() bool {
	return t.status == Returned || t.status == Crashed
}

func (t *Thread) pushFrame(ps *ProcState) {
	ps.thread = t
	t.frames = append(t.frames, ps)
}

func (t *Thread) callerOf(ps *ProcState) *ProcState {
	for i := len(t.frames) - 1; i > 0; i-- {
		if t.frames[i] == ps {
			return t.frames[i-1]
		}
	}
	return nil
}

// Run calls a proc on a new thread and runs it until it returns, crashes or
// first suspends. A suspended call yields ErrUnresolved; the thread carries
// on under the context's Waker.
func Run(c *Context, id vm.ProcID, src, usr vm.Value, args Args) (vm.Value, *Thread, error) {
	proc, err := c.Program.Proc(id)
	if err != nil {
		return vm.Null, nil, err
	}
	ps, err := c.NewFrame(proc, src, usr, args)
	if err != nil {
		return vm.Null, nil, err
	}
	t := c.NewThread(c.Program.ProcPath(id), ps)
	t.Start()
	switch t.status {
	case Returned:
		return t.result, t, nil
	case Crashed:
		return vm.Null, t, t.fault
	}
	return vm.Null, t, ErrUnresolved
}

// NewObject creates an object of the type named by typ, a type value or a
// path, and runs its New proc on a new thread. The object is returned even
// when New suspends; a crash in New is returned with it.
func NewObject(c *Context, typ, usr vm.Value, args Args) (vm.Value, *Thread, error) {
	node, err := c.typeNode(typ)
	if err != nil {
		return vm.Null, nil, err
	}
	h, _ := c.Heap.NewObject(node)
	obj := vm.Object(h)
	id, err := c.Tree.LookupProc(node, "New")
	if err != nil {
		return obj, nil, nil
	}
	_, t, err := Run(c, id, obj, usr, args)
	if errors.Is(err, ErrUnresolved) {
		err = nil
	}
	return obj, t, err
}

// Start runs a new thread until it first returns, crashes or suspends.
func (t *Thread) Start() {
	if t.finished() || t.status == Suspended {
		return
	}
	t.execute()
}

func (t *Thread) execute() {
	c := t.ctx
	t.status = Running
	t.executing = true
	defer func() { t.executing = false }()
	for len(t.frames) > 0 {
		top := t.frames[len(t.frames)-1]
		res, err := c.Step(top)
		if t.cancelRequested {
			t.abandon()
			return
		}
		switch res {
		case ContinueStep:
		case ReturnStep:
			t.popFrame(top)
		case CallStep:
			callee := top.pending
			top.pending = nil
			if len(t.frames) >= c.maxCallDepth() {
				err = vm.NewFault(vm.StackOverflow, "call depth exceeds %d", c.maxCallDepth())
				if !t.unwind(err) {
					return
				}
				continue
			}
			t.pushFrame(callee)
		case SuspendStep:
			if !t.suspend(top) {
				return
			}
		case ErrorStep:
			if !t.unwind(err) {
				return
			}
		}
	}
}

// popFrame removes a finished frame and hands its value to the caller.
func (t *Thread) popFrame(ps *ProcState) {
	v := ps.result
	if ps.returnOverride != nil {
		v = *ps.returnOverride
	}
	ps.release()
	t.frames = t.frames[:len(t.frames)-1]
	if len(t.frames) == 0 {
		t.finish(v, nil)
		return
	}
	t.frames[len(t.frames)-1].push(v)
}

func (t *Thread) finish(v vm.Value, err error) {
	t.result = v
	t.fault = err
	if err != nil {
		t.status = Crashed
	} else {
		t.status = Returned
	}
	log.Debug().Str("thread", t.Name).Stringer("status", t.status).Msg("thread finished")
	done := t.done
	t.done = nil
	for _, fn := range done {
		fn(t)
	}
}

// suspend parks the thread on the top frame's wake condition. When a no-wait
// frame is on the stack, the frames from it upward move to a new thread and
// its caller continues with a placeholder. It reports whether t keeps
// running.
func (t *Thread) suspend(top *ProcState) bool {
	for i := len(t.frames) - 1; i >= 1; i-- {
		nw := t.frames[i]
		if !nw.Proc.NoWait() {
			continue
		}
		split := &Thread{
			ID:     uuid.New(),
			Name:   t.ctx.Program.ProcPath(nw.Proc.ID),
			ctx:    t.ctx,
			status: Suspended,
		}
		for _, ps := range t.frames[i:] {
			split.pushFrame(ps)
		}
		t.frames = t.frames[:i]
		placeholder := vm.Null
		if nw.returnOverride != nil {
			placeholder = *nw.returnOverride
			nw.returnOverride = nil
		}
		t.frames[i-1].push(placeholder)
		log.Debug().Str("thread", t.Name).Str("split", split.Name).Msg("no-wait proc suspended")
		split.park(top.wake)
		return true
	}
	t.status = Suspended
	t.park(top.wake)
	return false
}

func (t *Thread) park(w *wake) {
	if w.async != nil {
		w.async(func(v vm.Value, err error) {
			t.ctx.post(func() {
				var rerr error
				if err != nil {
					rerr = t.Fail(err)
				} else {
					rerr = t.Resume(v)
				}
				if rerr != nil {
					log.Warn().Err(rerr).Str("thread", t.Name).Msg("async completion dropped")
				}
			})
		})
		return
	}
	if t.ctx.Waker != nil {
		t.ctx.Waker.Sleep(t, w.ticks)
	}
}

func (t *Thread) top() *ProcState {
	return t.frames[len(t.frames)-1]
}

func (t *Thread) notSuspended(op string) error {
	return &vm.SchedulerFault{Thread: t.Name, Reason: fmt.Sprintf("%s of %s thread", op, t.status)}
}

// Resume wakes a suspended thread with v and runs it until it next returns,
// crashes or suspends.
func (t *Thread) Resume(v vm.Value) error {
	if t.status != Suspended {
		return t.notSuspended("resume")
	}
	top := t.top()
	top.wake = nil
	top.resumeValue = v
	t.execute()
	return nil
}

// Fail wakes a suspended thread by raising err in its top frame.
func (t *Thread) Fail(err error) error {
	if t.status != Suspended {
		return t.notSuspended("fail")
	}
	t.top().wake = nil
	t.status = Running
	if t.unwind(err) {
		t.execute()
	}
	return nil
}

// Cancel abandons a thread. Its frames are dropped without running handlers
// and nothing is recorded as a fault. Cancelling the thread that is
// executing, from a native it called, takes effect once the current
// instruction completes.
func (t *Thread) Cancel() error {
	if t.finished() {
		return t.notSuspended("cancel")
	}
	if t.executing {
		t.cancelRequested = true
		return nil
	}
	t.abandon()
	return nil
}

func (t *Thread) abandon() {
	t.cancelRequested = false
	for _, ps := range t.frames {
		ps.release()
	}
	t.frames = nil
	t.finish(vm.Null, ErrCancelled)
}

// unwind raises err in the top frame, popping frames until a handler takes
// it. It reports whether execution continues.
func (t *Thread) unwind(err error) bool {
	c := t.ctx
	f := vm.AsFault(err)
	if !f.Located() && len(t.frames) > 0 {
		top := t.top()
		f.Proc = c.Program.ProcPath(top.Proc.ID)
		f.PC = top.opStart
		f.Loc = top.Proc.LocationAt(top.opStart)
		f.Trace = t.trace()
	}
	for len(t.frames) > 0 {
		top := t.top()
		if h, ok := top.popCatch(); ok {
			if h.depth < len(top.Stack) {
				top.Stack = top.Stack[:h.depth]
			}
			if h.ref != nil {
				v := f.Value
				if f.Kind != vm.Thrown || f.Cause != nil {
					v = c.StringValue(f.Message)
				}
				if werr := c.writeRef(top, boundRef{ref: *h.ref}, v); werr != nil {
					log.Warn().Err(werr).Str("proc", f.Proc).Msg("catch target not assignable")
				}
			}
			top.PC = h.pc
			return true
		}
		if len(t.frames) == 1 {
			t.record(f, top.Proc.NoWait())
			top.release()
			t.frames = nil
			t.finish(vm.Null, f)
			return false
		}
		top.release()
		t.frames = t.frames[:len(t.frames)-1]
		if top.Proc.NoWait() {
			t.record(f, true)
			t.top().push(vm.Null)
			return true
		}
	}
	return false
}

func (t *Thread) record(f *vm.RuntimeFault, noWait bool) {
	t.ctx.Faults.Record(faultlog.Record{
		Time:    time.Now(),
		Thread:  t.Name,
		Proc:    f.Proc,
		PC:      f.PC,
		Loc:     f.Loc.String(),
		Kind:    f.Kind.String(),
		Message: f.Message,
		Trace:   f.Trace,
		NoWait:  noWait,
	})
}

// trace renders the call stack, innermost first, one instruction per frame.
func (t *Thread) trace() []string {
	c := t.ctx
	out := make([]string, 0, len(t.frames))
	for i := len(t.frames) - 1; i >= 0; i-- {
		ps := t.frames[i]
		line := fmt.Sprintf("%s @%d", c.Program.ProcPath(ps.Proc.ID), ps.opStart)
		if !ps.Proc.Native() {
			if l, err := c.Program.Listing(ps.Proc.ID, c.Strings); err == nil {
				if in, ok := l.At(ps.opStart); ok {
					line += ": " + in.Format(c.Strings)
				}
			}
		}
		out = append(out, line)
	}
	return out
}

// spawn starts child on a new thread after ticks scheduler ticks.
func (c *Context) spawn(parent *Thread, child *ProcState, ticks int) *Thread {
	name := "spawn"
	if parent != nil {
		name = parent.Name + "/spawn"
	}
	nt := c.NewThread(name, child)
	nt.status = Suspended
	child.wake = &wake{ticks: ticks}
	nt.park(child.wake)
	return nt
}
