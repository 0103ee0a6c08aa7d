package interp

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/timewinder-dev/dreamvm/tree"
	"github.com/timewinder-dev/dreamvm/vm"
)

// Step executes one instruction of ps. A frame that runs off the end of its
// code returns its implicit value.
func (c *Context) Step(ps *ProcState) (res StepResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			u, ok := r.(stackUnderrun)
			if !ok {
				panic(r)
			}
			res, err = ErrorStep, vm.NewFault(vm.InvalidProc, "operand stack underrun in %s", u.proc)
		}
	}()
	if ps.Proc.Native() {
		return c.stepNative(ps)
	}
	code := ps.Proc.Bytecode
	if ps.PC == len(code) {
		ps.result = ps.Dot
		return ReturnStep, nil
	}
	if ps.PC < 0 || ps.PC > len(code) {
		return ErrorStep, vm.NewFault(vm.InvalidProc, "pc %d outside %d bytes of code", ps.PC, len(code))
	}
	ps.opStart = ps.PC
	r := vm.Reader{Code: code, PC: ps.PC}
	op, err := r.ReadOpcode()
	if err != nil {
		return ErrorStep, err
	}
	info, _ := vm.Info(op)
	var o [3]vm.Operand
	for i, k := range info.Operands {
		o[i], err = r.ReadOperand(k, c.Strings)
		if err != nil {
			return ErrorStep, err
		}
	}
	ps.PC = r.PC
	log.Trace().Str("proc", ps.Proc.Name).Int("pc", ps.opStart).Stringer("op", op).Int("depth", len(ps.Stack)).Msg("step")
	res, err = c.exec(ps, op, o)
	if c.StepHook != nil {
		c.StepHook(ps, op)
	}
	return res, err
}

func (ps *ProcState) jump(target int32) {
	ps.PC = int(target)
}

func (ps *ProcState) openEnumerator(id int32, e Enumerator) {
	if ps.enumerators == nil {
		ps.enumerators = make(map[int32]Enumerator)
	}
	ps.enumerators[id] = e
}

func (c *Context) exec(ps *ProcState, op vm.Opcode, o [3]vm.Operand) (StepResult, error) {
	switch op {
	case vm.PushNull:
		ps.push(vm.Null)
	case vm.PushFloat:
		ps.push(vm.Number(o[0].Float))
	case vm.PushString:
		ps.push(vm.String(uint32(o[0].Int)))
	case vm.PushResource:
		ps.push(vm.Resource(uint32(o[0].Int)))
	case vm.PushType:
		ps.push(vm.Type(vm.TypeID(o[0].Int)))
	case vm.PushProc:
		ps.push(vm.ProcRef(vm.ProcID(o[0].Int)))
	case vm.PushReferenceValue:
		v, err := c.readRef(ps, ps.bindRef(o[0].Ref))
		if err != nil {
			return ErrorStep, err
		}
		ps.push(v)
	case vm.Pop:
		ps.pop()
	case vm.Assign:
		v := ps.pop()
		if err := c.writeRef(ps, ps.bindRef(o[0].Ref), v); err != nil {
			return ErrorStep, err
		}
		ps.push(v)
	case vm.Increment, vm.Decrement:
		b := ps.bindRef(o[0].Ref)
		v, err := c.readRef(ps, b)
		if err != nil {
			return ErrorStep, err
		}
		if v.Kind != vm.KindNumber && !v.IsNull() {
			return ErrorStep, vm.NewFault(vm.TypeMismatch, "cannot %s %s", op, v.Kind)
		}
		next := vm.Number(v.Num + 1)
		if op == vm.Decrement {
			next = vm.Number(v.Num - 1)
		}
		if err := c.writeRef(ps, b, next); err != nil {
			return ErrorStep, err
		}
		ps.push(next)

	case vm.Add, vm.Subtract, vm.Multiply, vm.Divide, vm.Modulus, vm.Power,
		vm.BitAnd, vm.BitOr, vm.BitXor, vm.BitShiftLeft, vm.BitShiftRight:
		b := ps.pop()
		a := ps.pop()
		v, err := c.binary(op, a, b)
		if err != nil {
			return ErrorStep, err
		}
		ps.push(v)
	case vm.Negate, vm.BitNot, vm.BooleanNot, vm.IsNull:
		v, err := c.unary(op, ps.pop())
		if err != nil {
			return ErrorStep, err
		}
		ps.push(v)

	case vm.CompareEquals, vm.CompareNotEquals, vm.CompareLessThan, vm.CompareLessThanOrEqual,
		vm.CompareGreaterThan, vm.CompareGreaterThanOrEqual:
		b := ps.pop()
		a := ps.pop()
		ps.push(c.comparison(op, a, b))
	case vm.IsType:
		t := ps.pop()
		v := ps.pop()
		ok, err := c.isType(v, t)
		if err != nil {
			return ErrorStep, err
		}
		ps.push(vm.Bool(ok))
	case vm.IsInList:
		l := ps.pop()
		v := ps.pop()
		ok, err := c.inList(v, l)
		if err != nil {
			return ErrorStep, err
		}
		ps.push(vm.Bool(ok))

	case vm.BooleanAnd:
		v := ps.pop()
		if !v.Truthy() {
			ps.push(v)
			ps.jump(o[0].Int)
		}
	case vm.BooleanOr:
		v := ps.pop()
		if v.Truthy() {
			ps.push(v)
			ps.jump(o[0].Int)
		}
	case vm.Jump:
		ps.jump(o[0].Int)
	case vm.JumpIfFalse:
		if !ps.pop().Truthy() {
			ps.jump(o[0].Int)
		}
	case vm.JumpIfTrue:
		if ps.pop().Truthy() {
			ps.jump(o[0].Int)
		}
	case vm.SwitchCase:
		test := ps.pop()
		v := ps.pop()
		if v == test {
			ps.jump(o[0].Int)
		} else {
			ps.push(v)
		}
	case vm.SwitchCaseRange:
		hi := ps.pop()
		lo := ps.pop()
		v := ps.pop()
		if c.inRange(v, lo, hi) {
			ps.jump(o[0].Int)
		} else {
			ps.push(v)
		}

	case vm.CreateList:
		h, _ := c.Heap.NewList(ps.popN(int(o[0].Int)))
		ps.push(vm.List(h))
	case vm.CreateAssociativeList:
		vals := ps.popN(2 * int(o[0].Int))
		h, l := c.Heap.NewList(nil)
		for i := 0; i < len(vals); i += 2 {
			if vals[i].Kind == vm.KindNumber {
				return ErrorStep, vm.NewFault(vm.TypeMismatch, "associative list keys cannot be numbers")
			}
			if err := l.SetIndex(vals[i], vals[i+1]); err != nil {
				return ErrorStep, err
			}
		}
		ps.push(vm.List(h))
	case vm.CreateListEnumerator:
		e, err := c.newEnumerator(ps.pop())
		if err != nil {
			return ErrorStep, err
		}
		ps.openEnumerator(o[0].Int, e)
	case vm.CreateFilteredListEnumerator:
		e, err := c.newFilteredEnumerator(ps.pop(), vm.TypeID(o[1].Int))
		if err != nil {
			return ErrorStep, err
		}
		ps.openEnumerator(o[0].Int, e)
	case vm.CreateRangeEnumerator:
		step := ps.pop()
		end := ps.pop()
		e, err := c.newRangeEnumerator(ps.pop(), end, step)
		if err != nil {
			return ErrorStep, err
		}
		ps.openEnumerator(o[0].Int, e)
	case vm.CreateTypeEnumerator:
		e, err := c.newTypeEnumerator(ps.pop())
		if err != nil {
			return ErrorStep, err
		}
		ps.openEnumerator(o[0].Int, e)
	case vm.Enumerate:
		e, ok := ps.enumerators[o[0].Int]
		if !ok {
			return ErrorStep, vm.NewFault(vm.InvalidProc, "enumerator %d is not open", o[0].Int)
		}
		v, more := e.Next(c)
		if !more {
			ps.jump(o[2].Int)
			break
		}
		if err := c.writeRef(ps, ps.bindRef(o[1].Ref), v); err != nil {
			return ErrorStep, err
		}
	case vm.DestroyEnumerator:
		delete(ps.enumerators, o[0].Int)

	case vm.DereferenceField:
		v, err := c.ReadField(ps.pop(), o[0].Text)
		if err != nil {
			return ErrorStep, err
		}
		ps.push(v)
	case vm.DereferenceIndex:
		key := ps.pop()
		l := ps.pop()
		v, err := c.index(l, key)
		if err != nil {
			return ErrorStep, err
		}
		ps.push(v)

	case vm.CreateObject:
		args, err := c.popArgs(ps, vm.ArgType(o[0].Int), int(o[1].Int))
		if err != nil {
			return ErrorStep, err
		}
		return c.createObject(ps, ps.pop(), args)
	case vm.DeleteObject:
		v := ps.pop()
		switch v.Kind {
		case vm.KindNull:
		case vm.KindObject, vm.KindList:
			if err := c.Heap.Delete(vm.Handle(v.Ref)); err != nil {
				return ErrorStep, err
			}
		default:
			return ErrorStep, vm.NewFault(vm.TypeMismatch, "cannot delete %s", v.Kind)
		}
	case vm.Call:
		args, err := c.popArgs(ps, vm.ArgType(o[1].Int), int(o[2].Int))
		if err != nil {
			return ErrorStep, err
		}
		id, src, err := c.callTarget(ps, ps.bindRef(o[0].Ref))
		if err != nil {
			return ErrorStep, err
		}
		return c.call(ps, id, src, ps.Usr, args)
	case vm.CallIndirect:
		args, err := c.popArgs(ps, vm.ArgType(o[0].Int), int(o[1].Int))
		if err != nil {
			return ErrorStep, err
		}
		id, err := ps.pop().AsProc()
		if err != nil {
			return ErrorStep, err
		}
		return c.call(ps, id, ps.Src, ps.Usr, args)
	case vm.DereferenceCall:
		args, err := c.popArgs(ps, vm.ArgType(o[1].Int), int(o[2].Int))
		if err != nil {
			return ErrorStep, err
		}
		target := ps.pop()
		id, err := c.ResolveProc(target, o[0].Text)
		if err != nil {
			return ErrorStep, err
		}
		return c.call(ps, id, target, ps.Usr, args)
	case vm.Return:
		ps.result = ps.pop()
		return ReturnStep, nil

	case vm.FormatString:
		s, err := c.format(o[0].Text, ps.popN(int(o[1].Int)))
		if err != nil {
			return ErrorStep, err
		}
		ps.push(c.StringValue(s))
	case vm.MassConcatenation:
		var sb strings.Builder
		for _, v := range ps.popN(int(o[0].Int)) {
			sb.WriteString(c.Stringify(v))
		}
		ps.push(c.StringValue(sb.String()))

	case vm.Try:
		ref := o[1].Ref
		if ref.Pops() > 0 {
			return ErrorStep, vm.NewFault(vm.InvalidProc, "catch target %s cannot take stack operands", ref.Kind)
		}
		ps.catches = append(ps.catches, catchHandler{pc: int(o[0].Int), ref: &ref, depth: len(ps.Stack)})
	case vm.TryNoValue:
		ps.catches = append(ps.catches, catchHandler{pc: int(o[0].Int), depth: len(ps.Stack)})
	case vm.EndTry:
		ps.popCatch()
	case vm.Throw:
		v := ps.pop()
		return ErrorStep, &vm.RuntimeFault{Kind: vm.Thrown, Message: c.Stringify(v), Value: v}

	case vm.Spawn:
		ticks, err := c.ticksFor(ps.pop())
		if err != nil {
			return ErrorStep, err
		}
		child := ps.clone()
		ps.jump(o[0].Int)
		c.spawn(ps.thread, child, ticks)
	case vm.Sleep:
		ticks, err := c.ticksFor(ps.pop())
		if err != nil {
			return ErrorStep, err
		}
		ps.wake = &wake{ticks: ticks}
		return SuspendStep, nil

	default:
		return ErrorStep, vm.NewFault(vm.InvalidProc, "opcode %s not executable", op)
	}
	return ContinueStep, nil
}

// typeNode resolves a type value or a path string.
func (c *Context) typeNode(tv vm.Value) (*tree.Node, error) {
	switch tv.Kind {
	case vm.KindType:
		return c.Tree.Node(vm.TypeID(tv.Ref))
	case vm.KindString:
		return c.Tree.ByPath(c.Text(tv))
	}
	return nil, vm.NewFault(vm.TypeMismatch, "cannot create an object from %s", tv.Kind)
}

// createObject instantiates a type and runs its New proc, if any. The caller
// receives the object whatever New returns.
func (c *Context) createObject(ps *ProcState, tv vm.Value, args Args) (StepResult, error) {
	node, err := c.typeNode(tv)
	if err != nil {
		return ErrorStep, err
	}
	h, _ := c.Heap.NewObject(node)
	obj := vm.Object(h)
	newID, err := c.Tree.LookupProc(node, "New")
	if err != nil {
		ps.push(obj)
		return ContinueStep, nil
	}
	res, err := c.call(ps, newID, obj, ps.Usr, args)
	if err != nil {
		return res, err
	}
	ps.pending.returnOverride = &obj
	return res, nil
}
