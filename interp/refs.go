package interp

import (
	"github.com/timewinder-dev/dreamvm/vm"
)

// boundRef is a reference whose stack operands have been popped, so it can
// be read and written without touching the stack again.
type boundRef struct {
	ref   vm.Reference
	obj   vm.Value
	index vm.Value
}

func (ps *ProcState) bindRef(r vm.Reference) boundRef {
	b := boundRef{ref: r}
	switch r.Kind {
	case vm.RefField:
		b.obj = ps.pop()
	case vm.RefListIndex:
		b.index = ps.pop()
		b.obj = ps.pop()
	}
	return b
}

// slot maps an argument or local reference to its index in Locals.
func (ps *ProcState) slot(r vm.Reference) (int, error) {
	n, limit := int(r.Index), len(ps.Proc.Args)
	if r.Kind == vm.RefLocal {
		n += len(ps.Proc.Args)
		limit = len(ps.Locals)
	}
	if r.Index < 0 || n >= limit {
		return 0, vm.NewFault(vm.IndexOutOfBounds, "%s outside a frame of %d arguments and %d locals", r, len(ps.Proc.Args), ps.Proc.Locals)
	}
	return n, nil
}

func (c *Context) fieldName(r vm.Reference) string {
	return c.Strings.Text(r.Name)
}

func (c *Context) readRef(ps *ProcState, b boundRef) (vm.Value, error) {
	r := b.ref
	switch r.Kind {
	case vm.RefSrc:
		return ps.Src, nil
	case vm.RefSelf:
		return ps.Dot, nil
	case vm.RefUsr:
		return ps.Usr, nil
	case vm.RefArgs:
		h, _ := c.Heap.NewList(ps.argValues())
		return vm.List(h), nil
	case vm.RefWorld:
		return c.World, nil
	case vm.RefSuperProc:
		id, err := c.Tree.Super(ps.Proc.ID)
		if err != nil {
			return vm.Null, err
		}
		return vm.ProcRef(id), nil
	case vm.RefListIndex:
		return c.index(b.obj, b.index)
	case vm.RefArgument, vm.RefLocal:
		i, err := ps.slot(r)
		if err != nil {
			return vm.Null, err
		}
		return ps.Locals[i], nil
	case vm.RefGlobal:
		if int(r.Index) >= len(c.Globals) {
			return vm.Null, &vm.LookupError{Kind: vm.NoSuchField, Name: c.Tree.GlobalName(int(r.Index)), On: "global"}
		}
		return c.Globals[r.Index], nil
	case vm.RefGlobalProc:
		return vm.ProcRef(vm.ProcID(r.Index)), nil
	case vm.RefField:
		return c.ReadField(b.obj, c.fieldName(r))
	case vm.RefSrcField:
		return c.ReadField(ps.Src, c.fieldName(r))
	case vm.RefSrcProc:
		id, err := c.ResolveProc(ps.Src, c.fieldName(r))
		if err != nil {
			return vm.Null, err
		}
		return vm.ProcRef(id), nil
	case vm.RefCallee:
		return vm.ProcRef(ps.Proc.ID), nil
	case vm.RefCaller:
		if caller := ps.thread.callerOf(ps); caller != nil {
			return vm.ProcRef(caller.Proc.ID), nil
		}
		return vm.Null, nil
	}
	return vm.Null, vm.NewFault(vm.TypeMismatch, "cannot read %s", r.Kind)
}

func (c *Context) writeRef(ps *ProcState, b boundRef, v vm.Value) error {
	r := b.ref
	switch r.Kind {
	case vm.RefSelf:
		ps.Dot = v
	case vm.RefSrc:
		ps.Src = v
	case vm.RefUsr:
		ps.Usr = v
	case vm.RefListIndex:
		return c.setIndex(b.obj, b.index, v)
	case vm.RefArgument, vm.RefLocal:
		i, err := ps.slot(r)
		if err != nil {
			return err
		}
		ps.Locals[i] = v
	case vm.RefGlobal:
		if int(r.Index) >= len(c.Globals) {
			return &vm.LookupError{Kind: vm.NoSuchField, Name: c.Tree.GlobalName(int(r.Index)), On: "global"}
		}
		c.Globals[r.Index] = v
	case vm.RefField:
		return c.WriteField(b.obj, c.fieldName(r), v)
	case vm.RefSrcField:
		return c.WriteField(ps.Src, c.fieldName(r), v)
	default:
		return vm.NewFault(vm.TypeMismatch, "cannot assign to %s", r.Kind)
	}
	return nil
}

func (c *Context) ReadField(target vm.Value, name string) (vm.Value, error) {
	switch target.Kind {
	case vm.KindObject:
		obj, err := c.Heap.Object(vm.Handle(target.Ref))
		if err != nil {
			return vm.Null, err
		}
		if name == "type" && !obj.Type.HasField("type") {
			return vm.Type(obj.Type.ID), nil
		}
		return obj.Get(name)
	case vm.KindList:
		l, err := c.Heap.List(vm.Handle(target.Ref))
		if err != nil {
			return vm.Null, err
		}
		if name == "len" {
			return vm.Number(float32(l.Len())), nil
		}
		return vm.Null, &vm.LookupError{Kind: vm.NoSuchField, Name: name, On: "/list"}
	case vm.KindType:
		n, err := c.Tree.Node(vm.TypeID(target.Ref))
		if err != nil {
			return vm.Null, err
		}
		if v, ok := n.FieldDefault(name); ok {
			return v, nil
		}
		return vm.Null, &vm.LookupError{Kind: vm.NoSuchField, Name: name, On: n.Path}
	}
	return vm.Null, vm.NewFault(vm.TypeMismatch, "cannot read field %q of %s", name, target.Kind)
}

func (c *Context) WriteField(target vm.Value, name string, v vm.Value) error {
	switch target.Kind {
	case vm.KindObject:
		obj, err := c.Heap.Object(vm.Handle(target.Ref))
		if err != nil {
			return err
		}
		return obj.Set(name, v)
	case vm.KindList:
		l, err := c.Heap.List(vm.Handle(target.Ref))
		if err != nil {
			return err
		}
		if name != "len" {
			return &vm.LookupError{Kind: vm.NoSuchField, Name: name, On: "/list"}
		}
		n, err := v.AsInt()
		if err != nil {
			return err
		}
		l.Resize(int(n))
		return nil
	}
	return vm.NewFault(vm.TypeMismatch, "cannot write field %q of %s", name, target.Kind)
}

func (c *Context) index(target, key vm.Value) (vm.Value, error) {
	h, err := target.AsList()
	if err != nil {
		return vm.Null, err
	}
	l, err := c.Heap.List(h)
	if err != nil {
		return vm.Null, err
	}
	return l.Index(key)
}

func (c *Context) setIndex(target, key, v vm.Value) error {
	h, err := target.AsList()
	if err != nil {
		return err
	}
	l, err := c.Heap.List(h)
	if err != nil {
		return err
	}
	return l.SetIndex(key, v)
}

// ResolveProc resolves a proc by name on the type of an object or type value.
// Procs called on a list resolve on the /list type.
func (c *Context) ResolveProc(target vm.Value, name string) (vm.ProcID, error) {
	var id vm.TypeID
	switch target.Kind {
	case vm.KindObject:
		obj, err := c.Heap.Object(vm.Handle(target.Ref))
		if err != nil {
			return vm.NoProc, err
		}
		id = obj.Type.ID
	case vm.KindType:
		id = vm.TypeID(target.Ref)
	case vm.KindList:
		n, err := c.Tree.ByPath(ListType)
		if err != nil {
			return vm.NoProc, &vm.LookupError{Kind: vm.NoSuchProc, Name: name, On: ListType}
		}
		return c.Tree.LookupProc(n, name)
	case vm.KindNull:
		if pid, ok := c.Program.GlobalProc(name); ok {
			return pid, nil
		}
		return vm.NoProc, &vm.LookupError{Kind: vm.NoSuchProc, Name: name}
	default:
		return vm.NoProc, vm.NewFault(vm.TypeMismatch, "cannot call %q on %s", name, target.Kind)
	}
	n, err := c.Tree.Node(id)
	if err != nil {
		return vm.NoProc, err
	}
	return c.Tree.LookupProc(n, name)
}
