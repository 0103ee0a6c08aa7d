package interp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timewinder-dev/dreamvm/script"
	"github.com/timewinder-dev/dreamvm/vm"
)

func listContext(t *testing.T) *Context {
	b := script.NewBuilder()
	for name := range listProcs() {
		b.Native(ListType, name)
	}
	b.Proc("", "grow", script.ProcSpec{Args: []vm.ProcArg{{Name: "l"}}},
		script.Op(vm.PushReferenceValue, vm.ArgumentRef(0)),
		script.Op(vm.PushFloat, 4),
		script.Op(vm.PushFloat, 5),
		script.Op(vm.DereferenceCall, "Add", vm.ArgsFromStack, 2),
		script.Op(vm.Pop),
		script.Op(vm.PushReferenceValue, vm.ArgumentRef(0)),
		script.Op(vm.PushFloat, 5),
		script.Op(vm.DereferenceCall, "Find", vm.ArgsFromStack, 1),
		script.Op(vm.Return),
	)
	return build(t, b)
}

func numList(ns ...float32) []vm.Value {
	out := make([]vm.Value, len(ns))
	for i, n := range ns {
		out[i] = vm.Number(n)
	}
	return out
}

func callList(t *testing.T, c *Context, l vm.Handle, name string, args ...vm.Value) (vm.Value, error) {
	n, err := c.Tree.ByPath(ListType)
	require.NoError(t, err)
	id, err := c.Tree.LookupProc(n, name)
	require.NoError(t, err)
	v, _, err := Run(c, id, vm.List(l), vm.Null, Positional(args...))
	return v, err
}

func TestListProcsThroughDereferenceCall(t *testing.T) {
	c := listContext(t)
	h, l := c.Heap.NewList(numList(1, 2, 3))

	v, _, err := Run(c, globalProc(t, c, "grow"), vm.Null, vm.Null, Positional(vm.List(h)))
	require.NoError(t, err)
	assert.Equal(t, vm.Number(5), v)
	assert.Equal(t, numList(1, 2, 3, 4, 5), l.Items())
}

func TestListProcsOnNumberFault(t *testing.T) {
	c := listContext(t)
	b := script.NewBuilder()
	b.Proc("", "f", script.ProcSpec{},
		script.Op(vm.PushFloat, 1),
		script.Op(vm.DereferenceCall, "Add", vm.ArgsNone, 0),
		script.Op(vm.Return),
	)
	bare := build(t, b)
	h, _ := bare.Heap.NewList(nil)
	_, _, err := Run(bare, globalProc(t, bare, "f"), vm.Null, vm.Null, Args{})
	requireFault(t, err, vm.TypeMismatch)

	_, err = bare.ResolveProc(vm.List(h), "Add")
	var le *vm.LookupError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, vm.NoSuchProc, le.Kind)

	_, err = c.ResolveProc(vm.List(h), "Nope")
	require.ErrorAs(t, err, &le)
}

func TestListProcs(t *testing.T) {
	for name, tc := range map[string]struct {
		start       []vm.Value
		proc        string
		args        []vm.Value
		want        vm.Value
		items       []vm.Value
		outOfBounds bool
	}{
		"add": {
			start: numList(1), proc: "Add", args: []vm.Value{vm.Number(2)},
			items: numList(1, 2),
		},
		"remove present": {
			start: numList(1, 2, 1), proc: "Remove", args: numList(1),
			want: vm.Bool(true), items: numList(2, 1),
		},
		"remove absent": {
			start: numList(1, 2), proc: "Remove", args: numList(7),
			want: vm.Bool(false), items: numList(1, 2),
		},
		"find": {
			start: numList(4, 5, 6, 5), proc: "Find", args: numList(5),
			want: vm.Number(2), items: numList(4, 5, 6, 5),
		},
		"find from start": {
			start: numList(4, 5, 6, 5), proc: "Find", args: numList(5, 3),
			want: vm.Number(4), items: numList(4, 5, 6, 5),
		},
		"find missing": {
			start: numList(4, 5), proc: "Find", args: numList(9),
			want: vm.Number(0), items: numList(4, 5),
		},
		"find bad range": {
			start: numList(4, 5), proc: "Find", args: numList(4, 0),
			outOfBounds: true,
		},
		"cut middle": {
			start: numList(1, 2, 3, 4), proc: "Cut", args: numList(2, 4),
			items: numList(1, 4),
		},
		"cut all": {
			start: numList(1, 2, 3), proc: "Cut",
			items: []vm.Value{},
		},
		"insert before": {
			start: numList(1, 4), proc: "Insert", args: numList(2, 2, 3),
			want: vm.Number(3), items: numList(1, 2, 3, 4),
		},
		"insert at end": {
			start: numList(1), proc: "Insert", args: numList(0, 2),
			want: vm.Number(2), items: numList(1, 2),
		},
		"insert out of range": {
			start: numList(1), proc: "Insert", args: numList(5, 2),
			outOfBounds: true,
		},
		"swap": {
			start: numList(1, 2, 3), proc: "Swap", args: numList(1, 3),
			items: numList(3, 2, 1),
		},
		"swap out of range": {
			start: numList(1, 2), proc: "Swap", args: numList(1, 3),
			outOfBounds: true,
		},
	} {
		t.Run(name, func(t *testing.T) {
			c := listContext(t)
			h, l := c.Heap.NewList(tc.start)
			v, err := callList(t, c, h, tc.proc, tc.args...)
			if tc.outOfBounds {
				requireFault(t, err, vm.IndexOutOfBounds)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, v)
			assert.Equal(t, tc.items, l.Items())
		})
	}
}

func TestListAddSpreadsListArguments(t *testing.T) {
	c := listContext(t)
	h, l := c.Heap.NewList(numList(1))
	extra, _ := c.Heap.NewList(numList(2, 3))

	_, err := callList(t, c, h, "Add", vm.List(extra), vm.Number(4))
	require.NoError(t, err)
	assert.Equal(t, numList(1, 2, 3, 4), l.Items())
}

func TestListCopyKeepsAssociations(t *testing.T) {
	c := listContext(t)
	a, b := c.StringValue("a"), c.StringValue("b")
	h, l := c.Heap.NewList(nil)
	require.NoError(t, l.SetIndex(a, vm.Number(1)))
	require.NoError(t, l.SetIndex(b, vm.Number(2)))

	v, err := callList(t, c, h, "Copy", vm.Number(2))
	require.NoError(t, err)
	ch, err := v.AsList()
	require.NoError(t, err)
	assert.NotEqual(t, h, ch)
	cp, err := c.Heap.List(ch)
	require.NoError(t, err)
	assert.Equal(t, []vm.Value{b}, cp.Items())
	got, err := cp.Index(b)
	require.NoError(t, err)
	assert.Equal(t, vm.Number(2), got)
}

func TestListCutDropsAssociations(t *testing.T) {
	c := listContext(t)
	a := c.StringValue("a")
	h, l := c.Heap.NewList(nil)
	require.NoError(t, l.SetIndex(a, vm.Number(1)))

	_, err := callList(t, c, h, "Cut")
	require.NoError(t, err)
	_, ok := l.Assoc(a)
	assert.False(t, ok)
	assert.False(t, l.IsAssoc())
}

func TestListJoin(t *testing.T) {
	c := listContext(t)
	h, _ := c.Heap.NewList([]vm.Value{c.StringValue("a"), vm.Number(2), c.StringValue("c")})

	v, err := callList(t, c, h, "Join", c.StringValue(", "))
	require.NoError(t, err)
	assert.Equal(t, "a, 2, c", c.Text(v))

	v, err = callList(t, c, h, "Join", c.StringValue("-"), vm.Number(2))
	require.NoError(t, err)
	assert.Equal(t, "2-c", c.Text(v))
}
