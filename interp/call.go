package interp

import (
	"fmt"

	"github.com/timewinder-dev/dreamvm/vm"
)

// NewFrame binds args to proc's declared arguments and returns a fresh
// activation. Positional values fill arguments in order and overflow into
// Extra; named values bind by argument name.
func (c *Context) NewFrame(proc *vm.Proc, src, usr vm.Value, args Args) (*ProcState, error) {
	path := c.Program.ProcPath(proc.ID)
	if proc.Invalid != "" {
		return nil, vm.NewFault(vm.InvalidProc, "%s failed to assemble: %s", path, proc.Invalid)
	}
	ps := &ProcState{
		Proc:   proc,
		Stack:  make([]vm.Value, 0, proc.MaxStackDepth),
		Locals: make([]vm.Value, len(proc.Args)+proc.Locals),
		Src:    src,
		Usr:    usr,
	}
	bound := make([]bool, len(proc.Args))
	for i, v := range args.Positional {
		if i < len(proc.Args) {
			ps.Locals[i] = v
			bound[i] = true
			continue
		}
		ps.Extra = append(ps.Extra, v)
	}
	for _, na := range args.Named {
		i := proc.ArgIndex(na.Name)
		if i < 0 {
			return nil, &vm.ArgumentError{Proc: path, Arg: na.Name, Reason: "no such argument"}
		}
		if bound[i] {
			return nil, &vm.ArgumentError{Proc: path, Arg: na.Name, Reason: "bound more than once"}
		}
		ps.Locals[i] = na.Value
		bound[i] = true
	}
	for i, a := range proc.Args {
		if !bound[i] {
			if a.Required {
				return nil, &vm.ArgumentError{Proc: path, Arg: a.Name, Reason: "missing required argument"}
			}
			ps.Locals[i] = a.Default
		}
		if v := ps.Locals[i]; !v.IsNull() && !a.Kinds.Allows(v.Kind) {
			return nil, &vm.ArgumentError{Proc: path, Arg: a.Name, Reason: fmt.Sprintf("%s not accepted", v.Kind)}
		}
	}
	return ps, nil
}

// popArgs collects the n stack slots of a call according to its argument
// convention.
func (c *Context) popArgs(ps *ProcState, at vm.ArgType, n int) (Args, error) {
	switch at {
	case vm.ArgsNone:
		ps.popN(n)
		return Args{}, nil
	case vm.ArgsFromStack:
		return Args{Positional: ps.popN(n)}, nil
	case vm.ArgsFromStackKeyed:
		if n%2 != 0 {
			return Args{}, vm.NewFault(vm.BadArguments, "keyed arguments need key/value pairs, got %d values", n)
		}
		vals := ps.popN(n)
		var out Args
		for i := 0; i < n; i += 2 {
			key, v := vals[i], vals[i+1]
			switch key.Kind {
			case vm.KindNull:
				out.Positional = append(out.Positional, v)
			case vm.KindString:
				out.Named = append(out.Named, NamedArg{Name: c.Text(key), Value: v})
			default:
				return Args{}, vm.NewFault(vm.BadArguments, "argument key must be text, got %s", key.Kind)
			}
		}
		return out, nil
	case vm.ArgsFromArgumentList:
		vals := ps.popN(n)
		if len(vals) != 1 {
			return Args{}, vm.NewFault(vm.BadArguments, "argument list call takes one list, got %d values", len(vals))
		}
		return c.argsFromList(vals[0])
	case vm.ArgsFromProcArguments:
		ps.popN(n)
		return Args{Positional: ps.argValues()}, nil
	}
	return Args{}, vm.NewFault(vm.BadArguments, "unknown argument convention %d", at)
}

// argsFromList spreads a list: plain items are positional, associative
// entries with text keys are named.
func (c *Context) argsFromList(v vm.Value) (Args, error) {
	if v.IsNull() {
		return Args{}, nil
	}
	h, err := v.AsList()
	if err != nil {
		return Args{}, err
	}
	l, err := c.Heap.List(h)
	if err != nil {
		return Args{}, err
	}
	var out Args
	for _, it := range l.Items() {
		if val, ok := l.Assoc(it); ok && it.Kind == vm.KindString {
			out.Named = append(out.Named, NamedArg{Name: c.Text(it), Value: val})
			continue
		}
		out.Positional = append(out.Positional, it)
	}
	return out, nil
}

// call queues a callee frame on caller. The caller resumes with the
// callee's result pushed.
func (c *Context) call(caller *ProcState, id vm.ProcID, src, usr vm.Value, args Args) (StepResult, error) {
	proc, err := c.Program.Proc(id)
	if err != nil {
		return ErrorStep, err
	}
	ps, err := c.NewFrame(proc, src, usr, args)
	if err != nil {
		return ErrorStep, err
	}
	caller.pending = ps
	return CallStep, nil
}

// callTarget resolves the proc named by a Call reference. Field references
// have already popped their receiver into b.
func (c *Context) callTarget(ps *ProcState, b boundRef) (vm.ProcID, vm.Value, error) {
	r := b.ref
	switch r.Kind {
	case vm.RefGlobalProc:
		return vm.ProcID(r.Index), vm.Null, nil
	case vm.RefSrcProc:
		id, err := c.ResolveProc(ps.Src, c.fieldName(r))
		return id, ps.Src, err
	case vm.RefSuperProc:
		id, err := c.Tree.Super(ps.Proc.ID)
		return id, ps.Src, err
	case vm.RefField:
		id, err := c.ResolveProc(b.obj, c.fieldName(r))
		return id, b.obj, err
	}
	v, err := c.readRef(ps, b)
	if err != nil {
		return vm.NoProc, vm.Null, err
	}
	id, err := v.AsProc()
	return id, ps.Src, err
}
