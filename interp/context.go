package interp

import (
	"math"

	"github.com/timewinder-dev/dreamvm/faultlog"
	"github.com/timewinder-dev/dreamvm/heap"
	"github.com/timewinder-dev/dreamvm/tree"
	"github.com/timewinder-dev/dreamvm/vm"
)

const DefaultMaxCallDepth = 400

// Waker is the scheduler side of suspension.
type Waker interface {
	// Sleep parks t for ticks scheduler ticks; ticks <= 0 wakes it on the
	// next tick.
	Sleep(t *Thread, ticks int)
	// Post runs fn on the executor. Safe to call from any goroutine.
	Post(fn func())
}

// Context is the process-wide state shared by every thread: the loaded
// program, the type tree, the heap and the global value table. Only the
// thread currently executing an opcode mutates it.
type Context struct {
	Program *vm.Program
	Strings *vm.StringTable
	Tree    *tree.Tree
	Heap    *heap.Heap
	Globals []vm.Value
	Natives map[string]Native
	Faults  *faultlog.Log
	Waker   Waker
	// World is the /world object when the program defines that type.
	World vm.Value

	MaxCallDepth int
	// TickLag is the number of delay units per scheduler tick.
	TickLag float32
	// StepHook, when set, observes every executed opcode.
	StepHook func(ps *ProcState, op vm.Opcode)
}

func NewContext(p *vm.Program, t *tree.Tree) *Context {
	c := &Context{
		Program:      p,
		Strings:      vm.NewStringTableFrom(p.Strings),
		Tree:         t,
		Heap:         heap.New(),
		Globals:      t.GlobalDefaults(),
		Natives:      DefaultNatives(),
		Faults:       faultlog.New(0, nil),
		MaxCallDepth: DefaultMaxCallDepth,
		TickLag:      1,
	}
	if n, err := t.ByPath("/world"); err == nil {
		h, _ := c.Heap.NewObject(n)
		c.World = vm.Object(h)
	}
	return c
}

func (c *Context) Text(v vm.Value) string {
	return c.Strings.Text(uint32(v.Ref))
}

func (c *Context) StringValue(s string) vm.Value {
	return vm.String(c.Strings.Intern(s))
}

// Stringify renders a value the way text interpolation shows it.
func (c *Context) Stringify(v vm.Value) string {
	switch v.Kind {
	case vm.KindNull:
		return ""
	case vm.KindNumber:
		return vm.FormatNumber(v.Num)
	case vm.KindString, vm.KindResource:
		return c.Text(v)
	case vm.KindObject:
		obj, err := c.Heap.Object(vm.Handle(v.Ref))
		if err != nil {
			return ""
		}
		if name, err := obj.Get("name"); err == nil && name.Kind == vm.KindString {
			return c.Text(name)
		}
		return obj.Type.Path
	case vm.KindList:
		return "/list"
	case vm.KindType:
		return c.Program.TypePath(vm.TypeID(v.Ref))
	case vm.KindProc:
		return c.Program.ProcPath(vm.ProcID(v.Ref))
	}
	return v.String()
}

// ticksFor converts a delay into scheduler ticks, rounding up. Delays too
// long to count saturate at math.MaxInt.
func (c *Context) ticksFor(delay vm.Value) (int, error) {
	if delay.IsNull() {
		return 0, nil
	}
	d, err := delay.AsNumber()
	if err != nil {
		return 0, err
	}
	if !(d > 0) {
		return 0, nil
	}
	lag := c.TickLag
	if lag <= 0 {
		lag = 1
	}
	ticks := math.Ceil(float64(d) / float64(lag))
	if ticks >= float64(math.MaxInt) {
		return math.MaxInt, nil
	}
	return int(ticks), nil
}

func (c *Context) maxCallDepth() int {
	if c.MaxCallDepth <= 0 {
		return DefaultMaxCallDepth
	}
	return c.MaxCallDepth
}

// post runs fn through the waker, or inline when there is none.
func (c *Context) post(fn func()) {
	if c.Waker != nil {
		c.Waker.Post(fn)
		return
	}
	fn()
}
