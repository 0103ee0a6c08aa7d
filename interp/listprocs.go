package interp

import (
	"strings"

	"github.com/timewinder-dev/dreamvm/heap"
	"github.com/timewinder-dev/dreamvm/vm"
)

// ListType is the type whose native procs are called on list values.
const ListType = "/list"

func listProcs() map[string]Native {
	return map[string]Native{
		"Add":    listAdd,
		"Remove": listRemove,
		"Find":   listFind,
		"Copy":   listCopy,
		"Cut":    listCut,
		"Insert": listInsert,
		"Join":   listJoin,
		"Swap":   listSwap,
	}
}

func (nc *NativeCall) srcList() (*heap.List, error) {
	h, err := nc.Src.AsList()
	if err != nil {
		return nil, err
	}
	return nc.Heap.List(h)
}

// intArg reads argument i as an integer, or def when it is null.
func (nc *NativeCall) intArg(i, def int) (int, error) {
	v := nc.Arg(i)
	if v.IsNull() {
		return def, nil
	}
	n, err := v.AsNumber()
	return int(n), err
}

// spread expands list arguments into their items.
func (nc *NativeCall) spread(args []vm.Value) ([]vm.Value, error) {
	var out []vm.Value
	for _, a := range args {
		if a.Kind != vm.KindList {
			out = append(out, a)
			continue
		}
		items, err := nc.listItems(a)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}

func listAdd(nc *NativeCall) (vm.Value, error) {
	l, err := nc.srcList()
	if err != nil {
		return vm.Null, err
	}
	vals, err := nc.spread(nc.Args)
	if err != nil {
		return vm.Null, err
	}
	l.Append(vals...)
	return vm.Null, nil
}

// listRemove removes one occurrence of each argument and reports whether
// anything was removed.
func listRemove(nc *NativeCall) (vm.Value, error) {
	l, err := nc.srcList()
	if err != nil {
		return vm.Null, err
	}
	vals, err := nc.spread(nc.Args)
	if err != nil {
		return vm.Null, err
	}
	removed := false
	for _, v := range vals {
		if l.Remove(v) {
			removed = true
		}
	}
	return vm.Bool(removed), nil
}

func listFind(nc *NativeCall) (vm.Value, error) {
	l, err := nc.srcList()
	if err != nil {
		return vm.Null, err
	}
	start, err := nc.intArg(1, 1)
	if err != nil {
		return vm.Null, err
	}
	end, err := nc.intArg(2, 0)
	if err != nil {
		return vm.Null, err
	}
	i, err := l.Find(nc.Arg(0), start, end)
	return vm.Number(float32(i)), err
}

func listCopy(nc *NativeCall) (vm.Value, error) {
	l, err := nc.srcList()
	if err != nil {
		return vm.Null, err
	}
	start, err := nc.intArg(0, 1)
	if err != nil {
		return vm.Null, err
	}
	end, err := nc.intArg(1, 0)
	if err != nil {
		return vm.Null, err
	}
	items, err := l.Slice(start, end)
	if err != nil {
		return vm.Null, err
	}
	h, out := nc.Heap.NewList(items)
	for _, it := range items {
		if v, ok := l.Assoc(it); ok {
			if err := out.SetIndex(it, v); err != nil {
				return vm.Null, err
			}
		}
	}
	return vm.List(h), nil
}

func listCut(nc *NativeCall) (vm.Value, error) {
	l, err := nc.srcList()
	if err != nil {
		return vm.Null, err
	}
	start, err := nc.intArg(0, 1)
	if err != nil {
		return vm.Null, err
	}
	end, err := nc.intArg(1, 0)
	if err != nil {
		return vm.Null, err
	}
	return vm.Null, l.Cut(start, end)
}

// listInsert inserts the remaining arguments before index and returns the
// index of the last one inserted.
func listInsert(nc *NativeCall) (vm.Value, error) {
	l, err := nc.srcList()
	if err != nil {
		return vm.Null, err
	}
	i, err := nc.intArg(0, 0)
	if err != nil {
		return vm.Null, err
	}
	if i == 0 {
		i = l.Len() + 1
	}
	var rest []vm.Value
	if len(nc.Args) > 1 {
		rest = nc.Args[1:]
	}
	vals, err := nc.spread(rest)
	if err != nil {
		return vm.Null, err
	}
	if err := l.Insert(i, vals...); err != nil {
		return vm.Null, err
	}
	return vm.Number(float32(i + len(vals) - 1)), nil
}

func listJoin(nc *NativeCall) (vm.Value, error) {
	l, err := nc.srcList()
	if err != nil {
		return vm.Null, err
	}
	start, err := nc.intArg(1, 1)
	if err != nil {
		return vm.Null, err
	}
	end, err := nc.intArg(2, 0)
	if err != nil {
		return vm.Null, err
	}
	items, err := l.Slice(start, end)
	if err != nil {
		return vm.Null, err
	}
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = nc.Stringify(it)
	}
	return nc.StringValue(strings.Join(parts, nc.Stringify(nc.Arg(0)))), nil
}

func listSwap(nc *NativeCall) (vm.Value, error) {
	l, err := nc.srcList()
	if err != nil {
		return vm.Null, err
	}
	i, err := nc.intArg(0, 0)
	if err != nil {
		return vm.Null, err
	}
	j, err := nc.intArg(1, 0)
	if err != nil {
		return vm.Null, err
	}
	return vm.Null, l.Swap(i, j)
}
