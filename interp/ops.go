package interp

import (
	"math"
	"strings"

	"github.com/timewinder-dev/dreamvm/vm"
)

func mismatch(op vm.Opcode, a, b vm.Value) error {
	return vm.NewFault(vm.TypeMismatch, "invalid operands for %s: %s and %s", op, a.Kind, b.Kind)
}

func isTextual(v vm.Value) bool {
	return v.Kind == vm.KindString || v.Kind == vm.KindNumber
}

// numbers coerces a pair for arithmetic, treating null as 0.
func numbers(a, b vm.Value) (float32, float32, bool) {
	if (a.Kind != vm.KindNumber && !a.IsNull()) || (b.Kind != vm.KindNumber && !b.IsNull()) {
		return 0, 0, false
	}
	return a.Num, b.Num, true
}

func (c *Context) binary(op vm.Opcode, a, b vm.Value) (vm.Value, error) {
	switch op {
	case vm.Add:
		return c.add(a, b)
	case vm.Subtract:
		return c.subtract(a, b)
	case vm.Multiply, vm.Divide, vm.Modulus, vm.Power:
		x, y, ok := numbers(a, b)
		if !ok {
			return vm.Null, mismatch(op, a, b)
		}
		switch op {
		case vm.Multiply:
			return vm.Number(x * y), nil
		case vm.Divide:
			if y == 0 {
				return vm.Null, vm.NewFault(vm.DivideByZero, "division by zero")
			}
			return vm.Number(x / y), nil
		case vm.Modulus:
			if int32(y) == 0 {
				return vm.Null, vm.NewFault(vm.DivideByZero, "modulo by zero")
			}
			return vm.Number(float32(int32(x) % int32(y))), nil
		default:
			return vm.Number(float32(math.Pow(float64(x), float64(y)))), nil
		}
	case vm.BitAnd, vm.BitOr, vm.BitXor, vm.BitShiftLeft, vm.BitShiftRight:
		x, err := a.AsInt()
		if err != nil {
			return vm.Null, mismatch(op, a, b)
		}
		y, err := b.AsInt()
		if err != nil {
			return vm.Null, mismatch(op, a, b)
		}
		var r int32
		switch op {
		case vm.BitAnd:
			r = x & y
		case vm.BitOr:
			r = x | y
		case vm.BitXor:
			r = x ^ y
		case vm.BitShiftLeft:
			r = x << uint(y&31)
		default:
			r = x >> uint(y&31)
		}
		return vm.Number(float32(r)), nil
	}
	return vm.Null, mismatch(op, a, b)
}

func (c *Context) add(a, b vm.Value) (vm.Value, error) {
	switch {
	case a.IsNull():
		return b, nil
	case b.IsNull():
		return a, nil
	case a.Kind == vm.KindNumber && b.Kind == vm.KindNumber:
		return vm.Number(a.Num + b.Num), nil
	case isTextual(a) && isTextual(b):
		return c.StringValue(c.Stringify(a) + c.Stringify(b)), nil
	case a.Kind == vm.KindList:
		src, err := c.Heap.List(vm.Handle(a.Ref))
		if err != nil {
			return vm.Null, err
		}
		items := src.Items()
		if b.Kind == vm.KindList {
			other, err := c.Heap.List(vm.Handle(b.Ref))
			if err != nil {
				return vm.Null, err
			}
			items = append(items, other.Items()...)
		} else {
			items = append(items, b)
		}
		h, _ := c.Heap.NewList(items)
		return vm.List(h), nil
	}
	return vm.Null, mismatch(vm.Add, a, b)
}

func (c *Context) subtract(a, b vm.Value) (vm.Value, error) {
	switch {
	case a.IsNull() && b.Kind == vm.KindNumber:
		return vm.Number(-b.Num), nil
	case b.IsNull():
		return a, nil
	case a.Kind == vm.KindNumber && b.Kind == vm.KindNumber:
		return vm.Number(a.Num - b.Num), nil
	case a.Kind == vm.KindList:
		src, err := c.Heap.List(vm.Handle(a.Ref))
		if err != nil {
			return vm.Null, err
		}
		h, out := c.Heap.NewList(src.Items())
		if b.Kind == vm.KindList {
			other, err := c.Heap.List(vm.Handle(b.Ref))
			if err != nil {
				return vm.Null, err
			}
			for _, v := range other.Items() {
				out.Remove(v)
			}
		} else {
			out.Remove(b)
		}
		return vm.List(h), nil
	}
	return vm.Null, mismatch(vm.Subtract, a, b)
}

func (c *Context) unary(op vm.Opcode, a vm.Value) (vm.Value, error) {
	switch op {
	case vm.Negate:
		if a.IsNull() {
			return vm.Number(0), nil
		}
		n, err := a.AsNumber()
		if err != nil {
			return vm.Null, err
		}
		return vm.Number(-n), nil
	case vm.BitNot:
		n, err := a.AsInt()
		if err != nil {
			return vm.Null, err
		}
		return vm.Number(float32(^n & 0xffffff)), nil
	case vm.BooleanNot:
		return vm.Bool(!a.Truthy()), nil
	case vm.IsNull:
		if a.Kind == vm.KindObject || a.Kind == vm.KindList {
			return vm.Bool(!c.Heap.Valid(vm.Handle(a.Ref))), nil
		}
		return vm.Bool(a.IsNull()), nil
	}
	return vm.Null, vm.NewFault(vm.TypeMismatch, "%s is not a unary operator", op)
}

// compare orders two values. Null compares as 0 against numbers, strings
// compare lexically, and any other pairing is unordered.
func (c *Context) compare(a, b vm.Value) (int, bool) {
	if x, y, ok := numbers(a, b); ok {
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	if a.Kind == vm.KindString && b.Kind == vm.KindString {
		return strings.Compare(c.Text(a), c.Text(b)), true
	}
	return 0, false
}

func (c *Context) comparison(op vm.Opcode, a, b vm.Value) vm.Value {
	switch op {
	case vm.CompareEquals:
		return vm.Bool(a == b)
	case vm.CompareNotEquals:
		return vm.Bool(a != b)
	}
	cmp, ok := c.compare(a, b)
	if !ok {
		return vm.Bool(false)
	}
	switch op {
	case vm.CompareLessThan:
		return vm.Bool(cmp < 0)
	case vm.CompareLessThanOrEqual:
		return vm.Bool(cmp <= 0)
	case vm.CompareGreaterThan:
		return vm.Bool(cmp > 0)
	case vm.CompareGreaterThanOrEqual:
		return vm.Bool(cmp >= 0)
	}
	return vm.Bool(false)
}

func (c *Context) isType(v, t vm.Value) (bool, error) {
	tid, err := t.AsType()
	if err != nil {
		return false, err
	}
	anc, err := c.Tree.Node(tid)
	if err != nil {
		return false, err
	}
	switch v.Kind {
	case vm.KindObject:
		obj, err := c.Heap.Object(vm.Handle(v.Ref))
		if err != nil {
			return false, nil
		}
		return c.Tree.IsSubtype(obj.Type, anc), nil
	case vm.KindType:
		n, err := c.Tree.Node(vm.TypeID(v.Ref))
		if err != nil {
			return false, nil
		}
		return c.Tree.IsSubtype(n, anc), nil
	}
	return false, nil
}

func (c *Context) inList(v, l vm.Value) (bool, error) {
	if l.IsNull() {
		return false, nil
	}
	h, err := l.AsList()
	if err != nil {
		return false, err
	}
	list, err := c.Heap.List(h)
	if err != nil {
		return false, err
	}
	return list.Contains(v), nil
}

// inRange is the SwitchCaseRange test lo <= v <= hi.
func (c *Context) inRange(v, lo, hi vm.Value) bool {
	a, ok := c.compare(lo, v)
	if !ok || a > 0 {
		return false
	}
	b, ok := c.compare(v, hi)
	return ok && b <= 0
}

// format replaces each interpolation marker in template with the next value.
func (c *Context) format(template string, vals []vm.Value) (string, error) {
	var sb strings.Builder
	i := 0
	for _, r := range template {
		if r != vm.InterpolationMarker {
			sb.WriteRune(r)
			continue
		}
		if i >= len(vals) {
			return "", vm.NewFault(vm.IndexOutOfBounds, "format string needs more than %d values", len(vals))
		}
		sb.WriteString(c.Stringify(vals[i]))
		i++
	}
	return sb.String(), nil
}
