package interp

import (
	"github.com/timewinder-dev/dreamvm/tree"
	"github.com/timewinder-dev/dreamvm/vm"
)

// Enumerator yields the values of one for-in loop.
type Enumerator interface {
	Next(c *Context) (vm.Value, bool)
	Clone() Enumerator
}

// listEnumerator walks a snapshot of a list's items, so mutating the list
// inside the loop does not disturb the iteration. With a filter set, only
// live objects of that type are yielded.
type listEnumerator struct {
	items  []vm.Value
	pos    int
	filter *tree.Node
}

func NewEnumerator(items []vm.Value) Enumerator {
	return &listEnumerator{items: items}
}

func (e *listEnumerator) Next(c *Context) (vm.Value, bool) {
	for e.pos < len(e.items) {
		v := e.items[e.pos]
		e.pos++
		if e.filter == nil || c.objectOfType(v, e.filter) {
			return v, true
		}
	}
	return vm.Null, false
}

func (e *listEnumerator) Clone() Enumerator {
	out := *e
	return &out
}

// rangeEnumerator counts from start to end inclusive by step.
type rangeEnumerator struct {
	cur, end, step float32
}

func (e *rangeEnumerator) Next(*Context) (vm.Value, bool) {
	e.cur += e.step
	if e.step > 0 && e.cur > e.end || e.step < 0 && e.cur < e.end {
		return vm.Null, false
	}
	return vm.Number(e.cur), true
}

func (e *rangeEnumerator) Clone() Enumerator {
	out := *e
	return &out
}

func (c *Context) objectOfType(v vm.Value, t *tree.Node) bool {
	if v.Kind != vm.KindObject {
		return false
	}
	obj, err := c.Heap.Object(vm.Handle(v.Ref))
	if err != nil {
		return false
	}
	return c.Tree.IsSubtype(obj.Type, t)
}

func (c *Context) listItems(v vm.Value) ([]vm.Value, error) {
	switch v.Kind {
	case vm.KindNull:
		return nil, nil
	case vm.KindList:
		l, err := c.Heap.List(vm.Handle(v.Ref))
		if err != nil {
			return nil, err
		}
		return l.Items(), nil
	}
	return nil, vm.NewFault(vm.TypeMismatch, "cannot enumerate %s", v.Kind)
}

func (c *Context) newEnumerator(v vm.Value) (Enumerator, error) {
	items, err := c.listItems(v)
	if err != nil {
		return nil, err
	}
	return NewEnumerator(items), nil
}

func (c *Context) newFilteredEnumerator(v vm.Value, typ vm.TypeID) (Enumerator, error) {
	items, err := c.listItems(v)
	if err != nil {
		return nil, err
	}
	n, err := c.Tree.Node(typ)
	if err != nil {
		return nil, err
	}
	return &listEnumerator{items: items, filter: n}, nil
}

func (c *Context) newRangeEnumerator(start, end, step vm.Value) (Enumerator, error) {
	var bounds [3]float32
	for i, v := range []vm.Value{start, end, step} {
		if v.IsNull() {
			continue
		}
		n, err := v.AsNumber()
		if err != nil {
			return nil, err
		}
		bounds[i] = n
	}
	if step.IsNull() {
		bounds[2] = 1
	}
	if bounds[2] == 0 {
		return nil, vm.NewFault(vm.BadArguments, "range step cannot be 0")
	}
	return &rangeEnumerator{cur: bounds[0] - bounds[2], end: bounds[1], step: bounds[2]}, nil
}

// newTypeEnumerator snapshots the live objects of a type, or every live
// object for a null type. Objects deleted during the loop are skipped.
func (c *Context) newTypeEnumerator(tv vm.Value) (Enumerator, error) {
	root := c.Tree.Root
	if !tv.IsNull() {
		n, err := c.typeNode(tv)
		if err != nil {
			return nil, err
		}
		root = n
	}
	var items []vm.Value
	for _, h := range c.Heap.Objects() {
		items = append(items, vm.Object(h))
	}
	return &listEnumerator{items: items, filter: root}, nil
}
