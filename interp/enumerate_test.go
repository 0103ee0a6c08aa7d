package interp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timewinder-dev/dreamvm/script"
	"github.com/timewinder-dev/dreamvm/vm"
)

// folding wraps an enumerator opener in a loop that folds each yielded value
// into local 0, either summing or counting.
func folding(count bool, open ...script.Instr) []script.Instr {
	step := script.Op(vm.PushReferenceValue, vm.LocalRef(1))
	if count {
		step = script.Op(vm.PushFloat, 1)
	}
	code := []script.Instr{
		script.Op(vm.PushFloat, 0),
		script.Op(vm.Assign, vm.LocalRef(0)),
		script.Op(vm.Pop),
	}
	code = append(code, open...)
	return append(code,
		script.Label("loop"),
		script.Op(vm.Enumerate, 0, vm.LocalRef(1), "done"),
		script.Op(vm.PushReferenceValue, vm.LocalRef(0)),
		step,
		script.Op(vm.Add),
		script.Op(vm.Assign, vm.LocalRef(0)),
		script.Op(vm.Pop),
		script.Op(vm.Jump, "loop"),
		script.Label("done"),
		script.Op(vm.DestroyEnumerator, 0),
		script.Op(vm.PushReferenceValue, vm.LocalRef(0)),
		script.Op(vm.Return),
	)
}

func TestRangeEnumerator(t *testing.T) {
	b := script.NewBuilder()
	spec := script.ProcSpec{Args: []vm.ProcArg{{Name: "from"}, {Name: "to"}, {Name: "step"}}, Locals: 2}
	b.Proc("", "sum", spec, folding(false,
		script.Op(vm.PushReferenceValue, vm.ArgumentRef(0)),
		script.Op(vm.PushReferenceValue, vm.ArgumentRef(1)),
		script.Op(vm.PushReferenceValue, vm.ArgumentRef(2)),
		script.Op(vm.CreateRangeEnumerator, 0),
	)...)
	c := build(t, b)
	id := globalProc(t, c, "sum")

	for name, tc := range map[string]struct {
		from, to, step vm.Value
		want           float32
	}{
		"default step":  {vm.Number(1), vm.Number(5), vm.Null, 15},
		"step of two":   {vm.Number(1), vm.Number(6), vm.Number(2), 9},
		"counting down": {vm.Number(5), vm.Number(1), vm.Number(-2), 9},
		"empty range":   {vm.Number(5), vm.Number(1), vm.Null, 0},
		"single value":  {vm.Number(3), vm.Number(3), vm.Null, 3},
	} {
		v, _, err := Run(c, id, vm.Null, vm.Null, Positional(tc.from, tc.to, tc.step))
		require.NoError(t, err, name)
		assert.Equal(t, vm.Number(tc.want), v, name)
	}
}

func TestFilteredListEnumerator(t *testing.T) {
	b := script.NewBuilder()
	b.Type("/mob/player")
	b.Type("/item")
	b.Proc("", "mobs", script.ProcSpec{Args: []vm.ProcArg{{Name: "l"}}, Locals: 2}, folding(true,
		script.Op(vm.PushReferenceValue, vm.ArgumentRef(0)),
		script.Op(vm.CreateFilteredListEnumerator, 0, script.TypePath("/mob")),
	)...)
	c := build(t, b)
	object := func(path string) vm.Value {
		n, err := c.Tree.ByPath(path)
		require.NoError(t, err)
		h, _ := c.Heap.NewObject(n)
		return vm.Object(h)
	}
	gone := object("/mob")
	require.NoError(t, c.Heap.Delete(vm.Handle(gone.Ref)))
	h, _ := c.Heap.NewList([]vm.Value{
		object("/mob"), object("/item"), vm.Number(3), vm.Null, object("/mob/player"), gone,
	})

	v, _, err := Run(c, globalProc(t, c, "mobs"), vm.Null, vm.Null, Positional(vm.List(h)))
	require.NoError(t, err)
	assert.Equal(t, vm.Number(2), v)
}

func TestTypeEnumerator(t *testing.T) {
	b := script.NewBuilder()
	b.Type("/mob/player")
	b.Type("/item")
	b.Proc("", "count", script.ProcSpec{Args: []vm.ProcArg{{Name: "t"}}, Locals: 2}, folding(true,
		script.Op(vm.PushReferenceValue, vm.ArgumentRef(0)),
		script.Op(vm.CreateTypeEnumerator, 0),
	)...)
	c := build(t, b)
	for _, path := range []string{"/mob", "/mob/player", "/item"} {
		n, err := c.Tree.ByPath(path)
		require.NoError(t, err)
		c.Heap.NewObject(n)
	}
	mob, err := c.Tree.ByPath("/mob")
	require.NoError(t, err)
	id := globalProc(t, c, "count")

	v, _, err := Run(c, id, vm.Null, vm.Null, Positional(vm.Type(mob.ID)))
	require.NoError(t, err)
	assert.Equal(t, vm.Number(2), v)

	v, _, err = Run(c, id, vm.Null, vm.Null, Positional(vm.Null))
	require.NoError(t, err)
	assert.Equal(t, vm.Number(float32(len(c.Heap.Objects()))), v)
	assert.Len(t, c.Heap.Objects(), 3)
}

func TestTypeEnumeratorSkipsDeletedObjects(t *testing.T) {
	b := script.NewBuilder()
	b.Type("/mob")
	b.Native("", "cull")
	b.Proc("", "count", script.ProcSpec{Locals: 2}, folding(true,
		script.Op(vm.PushType, script.TypePath("/mob")),
		script.Op(vm.CreateTypeEnumerator, 0),
		script.Op(vm.Call, script.GlobalProcName("cull"), vm.ArgsNone, 0),
		script.Op(vm.Pop),
	)...)
	c := build(t, b)
	mob, err := c.Tree.ByPath("/mob")
	require.NoError(t, err)
	var doomed vm.Handle
	for i := 0; i < 3; i++ {
		doomed, _ = c.Heap.NewObject(mob)
	}
	c.Natives["cull"] = func(nc *NativeCall) (vm.Value, error) {
		return vm.Null, nc.Heap.Delete(doomed)
	}

	v, _, err := Run(c, globalProc(t, c, "count"), vm.Null, vm.Null, Args{})
	require.NoError(t, err)
	assert.Equal(t, vm.Number(2), v)
}
