package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timewinder-dev/dreamvm/tree"
	"github.com/timewinder-dev/dreamvm/vm"
)

func mobNode(t *testing.T) *tree.Node {
	tr, err := tree.Build(&vm.Program{Types: []vm.TypeDef{
		{Path: "/", Parent: vm.NoType},
		{Path: "/mob", Parent: 0, Fields: []vm.FieldDef{{Name: "hp", Default: vm.Number(10)}}},
	}})
	require.NoError(t, err)
	n, err := tr.ByPath("/mob")
	require.NoError(t, err)
	return n
}

func TestObjectFieldsReadThroughDefaults(t *testing.T) {
	h := New()
	hd, obj := h.NewObject(mobNode(t))
	assert.True(t, h.Valid(hd))

	v, err := obj.Get("hp")
	require.NoError(t, err)
	assert.Equal(t, vm.Number(10), v)

	require.NoError(t, obj.Set("hp", vm.Number(3)))
	got, err := h.Object(hd)
	require.NoError(t, err)
	v, _ = got.Get("hp")
	assert.Equal(t, vm.Number(3), v)

	var le *vm.LookupError
	assert.ErrorAs(t, obj.Set("mana", vm.Null), &le)
	_, err = obj.Get("mana")
	assert.ErrorAs(t, err, &le)
}

func TestDeletedHandleStaysInvalid(t *testing.T) {
	h := New()
	old, _ := h.NewObject(mobNode(t))
	require.NoError(t, h.Delete(old))
	assert.False(t, h.Valid(old))
	assert.Equal(t, 0, h.Live())

	// The slot is reused with a new generation.
	fresh, _ := h.NewList(nil)
	assert.True(t, h.Valid(fresh))
	assert.NotEqual(t, old, fresh)
	assert.False(t, h.Valid(old))

	_, err := h.Object(old)
	var f *vm.RuntimeFault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, vm.InvalidHandle, f.Kind)
	assert.Error(t, h.Delete(old))
	assert.False(t, h.Valid(0))
}

func TestHandleKindsDoNotMix(t *testing.T) {
	h := New()
	lh, _ := h.NewList(nil)
	_, err := h.Object(lh)
	assert.Error(t, err)
	oh, _ := h.NewObject(mobNode(t))
	_, err = h.List(oh)
	assert.Error(t, err)
	assert.Equal(t, 2, h.Live())
}

func TestListIsOneIndexed(t *testing.T) {
	_, l := New().NewList([]vm.Value{vm.Number(5), vm.Number(6)})
	v, err := l.At(1)
	require.NoError(t, err)
	assert.Equal(t, vm.Number(5), v)

	_, err = l.At(0)
	var f *vm.RuntimeFault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, vm.IndexOutOfBounds, f.Kind)
	_, err = l.Index(vm.Number(3))
	assert.Error(t, err)

	require.NoError(t, l.SetIndex(vm.Number(2), vm.Number(9)))
	assert.Equal(t, []vm.Value{vm.Number(5), vm.Number(9)}, l.Items())
}

func TestAssociativeList(t *testing.T) {
	_, l := New().NewList(nil)
	key := vm.String(7)
	require.NoError(t, l.SetIndex(key, vm.Number(1)))
	require.NoError(t, l.SetIndex(key, vm.Number(2)))
	assert.Equal(t, 1, l.Len())
	assert.True(t, l.IsAssoc())

	v, err := l.Index(key)
	require.NoError(t, err)
	assert.Equal(t, vm.Number(2), v)
	missing, err := l.Index(vm.String(8))
	require.NoError(t, err)
	assert.True(t, missing.IsNull())

	assert.True(t, l.Remove(key))
	_, ok := l.Assoc(key)
	assert.False(t, ok)
	assert.False(t, l.Remove(key))
}

func TestResize(t *testing.T) {
	_, l := New().NewList(nil)
	require.NoError(t, l.SetIndex(vm.String(1), vm.Number(1)))
	l.Append(vm.Number(2), vm.Number(3))

	l.Resize(1)
	assert.Equal(t, 1, l.Len())
	l.Resize(3)
	assert.Equal(t, []vm.Value{vm.String(1), vm.Null, vm.Null}, l.Items())
	l.Resize(0)
	_, ok := l.Assoc(vm.String(1))
	assert.False(t, ok)
	l.Resize(-4)
	assert.Equal(t, 0, l.Len())
}

func nums(ns ...float32) []vm.Value {
	out := make([]vm.Value, len(ns))
	for i, n := range ns {
		out[i] = vm.Number(n)
	}
	return out
}

func TestListRanges(t *testing.T) {
	_, l := New().NewList(nums(1, 2, 3, 2))

	i, err := l.Find(vm.Number(2), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, i)
	i, err = l.Find(vm.Number(2), 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, i)
	i, err = l.Find(vm.Number(2), 3, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	got, err := l.Slice(2, 4)
	require.NoError(t, err)
	assert.Equal(t, nums(2, 3), got)

	for _, bad := range [][2]int{{0, 0}, {2, 6}, {4, 2}} {
		_, err := l.Slice(bad[0], bad[1])
		var f *vm.RuntimeFault
		require.ErrorAs(t, err, &f, "range %v", bad)
		assert.Equal(t, vm.IndexOutOfBounds, f.Kind)
	}

	require.NoError(t, l.Insert(1, vm.Number(0)))
	require.NoError(t, l.Insert(l.Len()+1, vm.Number(9)))
	assert.Equal(t, nums(0, 1, 2, 3, 2, 9), l.Items())
	assert.Error(t, l.Insert(8, vm.Number(1)))

	require.NoError(t, l.Swap(1, 6))
	assert.Equal(t, nums(9, 1, 2, 3, 2, 0), l.Items())
	assert.Error(t, l.Swap(0, 1))

	require.NoError(t, l.Cut(2, 5))
	assert.Equal(t, nums(9, 2, 0), l.Items())
}

func TestCutKeepsAssociationOfRemainingKey(t *testing.T) {
	_, l := New().NewList(nil)
	k := vm.String(3)
	require.NoError(t, l.SetIndex(k, vm.Number(1)))
	l.Append(k)

	require.NoError(t, l.Cut(1, 2))
	v, ok := l.Assoc(k)
	require.True(t, ok)
	assert.Equal(t, vm.Number(1), v)

	require.NoError(t, l.Cut(1, 0))
	_, ok = l.Assoc(k)
	assert.False(t, ok)
}

func TestObjectsListsLiveObjectsOnly(t *testing.T) {
	h := New()
	a, _ := h.NewObject(mobNode(t))
	h.NewList(nil)
	b, _ := h.NewObject(mobNode(t))
	require.NoError(t, h.Delete(a))
	assert.Equal(t, []vm.Handle{b}, h.Objects())
}
