package heap

import (
	"fmt"

	"github.com/timewinder-dev/dreamvm/tree"
	"github.com/timewinder-dev/dreamvm/vm"
)

// Object is an instance of a type. Vars holds only the fields assigned since
// creation; everything else reads through to the type's defaults.
type Object struct {
	Type *tree.Node
	Vars map[string]vm.Value
}

func (o *Object) Get(name string) (vm.Value, error) {
	if v, ok := o.Vars[name]; ok {
		return v, nil
	}
	if v, ok := o.Type.FieldDefault(name); ok {
		return v, nil
	}
	return vm.Null, &vm.LookupError{Kind: vm.NoSuchField, Name: name, On: o.Type.Path}
}

func (o *Object) Set(name string, v vm.Value) error {
	if !o.Type.HasField(name) {
		return &vm.LookupError{Kind: vm.NoSuchField, Name: name, On: o.Type.Path}
	}
	if o.Vars == nil {
		o.Vars = make(map[string]vm.Value)
	}
	o.Vars[name] = v
	return nil
}

type slot struct {
	gen  uint32
	obj  *Object
	list *List
}

// Heap is the handle table. A handle packs a slot index with the slot's
// generation, so a handle to a deleted value stays invalid after the slot
// is reused.
type Heap struct {
	slots []slot
	free  []uint32
	live  int
}

func New() *Heap {
	return &Heap{}
}

func pack(idx, gen uint32) vm.Handle {
	return vm.Handle(uint64(gen)<<32 | uint64(idx+1))
}

func unpack(h vm.Handle) (idx, gen uint32, ok bool) {
	low := uint32(h)
	if low == 0 {
		return 0, 0, false
	}
	return low - 1, uint32(h >> 32), true
}

func (h *Heap) alloc() (uint32, *slot) {
	var idx uint32
	if n := len(h.free); n > 0 {
		idx = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		idx = uint32(len(h.slots))
		h.slots = append(h.slots, slot{})
	}
	h.live++
	return idx, &h.slots[idx]
}

func (h *Heap) lookup(hd vm.Handle) (*slot, bool) {
	idx, gen, ok := unpack(hd)
	if !ok || int(idx) >= len(h.slots) {
		return nil, false
	}
	s := &h.slots[idx]
	if s.gen != gen || (s.obj == nil && s.list == nil) {
		return nil, false
	}
	return s, true
}

func (h *Heap) NewObject(t *tree.Node) (vm.Handle, *Object) {
	idx, s := h.alloc()
	s.obj = &Object{Type: t}
	return pack(idx, s.gen), s.obj
}

func (h *Heap) NewList(items []vm.Value) (vm.Handle, *List) {
	idx, s := h.alloc()
	s.list = &List{items: items}
	return pack(idx, s.gen), s.list
}

// Valid reports whether the handle still names a live object or list.
func (h *Heap) Valid(hd vm.Handle) bool {
	_, ok := h.lookup(hd)
	return ok
}

func invalid(hd vm.Handle) error {
	return &vm.RuntimeFault{Kind: vm.InvalidHandle, Message: fmt.Sprintf("handle %#x is not live", uint64(hd))}
}

func (h *Heap) Object(hd vm.Handle) (*Object, error) {
	s, ok := h.lookup(hd)
	if !ok || s.obj == nil {
		return nil, invalid(hd)
	}
	return s.obj, nil
}

func (h *Heap) List(hd vm.Handle) (*List, error) {
	s, ok := h.lookup(hd)
	if !ok || s.list == nil {
		return nil, invalid(hd)
	}
	return s.list, nil
}

// Delete frees the slot. Every outstanding handle to it becomes invalid.
func (h *Heap) Delete(hd vm.Handle) error {
	s, ok := h.lookup(hd)
	if !ok {
		return invalid(hd)
	}
	idx, _, _ := unpack(hd)
	s.obj = nil
	s.list = nil
	s.gen++
	h.free = append(h.free, idx)
	h.live--
	return nil
}

// Objects returns the handles of every live object in slot order.
func (h *Heap) Objects() []vm.Handle {
	var out []vm.Handle
	for i, s := range h.slots {
		if s.obj != nil {
			out = append(out, pack(uint32(i), s.gen))
		}
	}
	return out
}

// Live returns the number of allocated objects and lists.
func (h *Heap) Live() int {
	return h.live
}
