package script

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timewinder-dev/dreamvm/interp"
	"github.com/timewinder-dev/dreamvm/vm"
)

func loadMobs(t *testing.T) *interp.Context {
	p, tr, err := LoadFile("testdata/mobs.star")
	require.NoError(t, err)
	return interp.NewContext(p, tr)
}

func call(t *testing.T, c *interp.Context, name string, args interp.Args) vm.Value {
	id, ok := c.Program.GlobalProc(name)
	require.True(t, ok, name)
	v, _, err := interp.Run(c, id, vm.Null, vm.Null, args)
	require.NoError(t, err)
	return v
}

func TestLoadDeclaresTypes(t *testing.T) {
	c := loadMobs(t)

	orc, err := c.Tree.ByPath("/mob/orc")
	require.NoError(t, err)
	mob, err := c.Tree.ByPath("/mob")
	require.NoError(t, err)
	assert.True(t, c.Tree.IsSubtype(orc, mob))

	def, ok := orc.FieldDefault("hp")
	require.True(t, ok)
	assert.Equal(t, vm.Number(10), def)
}

func TestLoopAndDefaults(t *testing.T) {
	c := loadMobs(t)
	assert.Equal(t, vm.Number(10), call(t, c, "main", interp.Args{}))
	assert.Equal(t, vm.Number(6), call(t, c, "sum", interp.Args{}))
}

func TestParamKindsAreChecked(t *testing.T) {
	c := loadMobs(t)
	id, _ := c.Program.GlobalProc("sum")
	_, _, err := interp.Run(c, id, vm.Null, vm.Null, interp.Positional(c.StringValue("x")))
	var ae *vm.ArgumentError
	assert.ErrorAs(t, err, &ae)
}

func TestInterpolation(t *testing.T) {
	c := loadMobs(t)
	v := call(t, c, "greet", interp.Positional(c.StringValue("bob")))
	assert.Equal(t, "hello bob", c.Text(v))
}

func TestInheritedProcOnObject(t *testing.T) {
	c := loadMobs(t)
	id, ok := c.Program.TypeByPath("/mob/orc")
	require.True(t, ok)
	orc, _, err := interp.NewObject(c, vm.Type(id), vm.Null, interp.Args{})
	require.NoError(t, err)

	heal, err := c.ResolveProc(orc, "heal")
	require.NoError(t, err)
	_, _, err = interp.Run(c, heal, orc, vm.Null, interp.Positional(vm.Number(5)))
	require.NoError(t, err)

	hp, err := c.ReadField(orc, "hp")
	require.NoError(t, err)
	assert.Equal(t, vm.Number(15), hp)
	name, err := c.ReadField(orc, "name")
	require.NoError(t, err)
	assert.Equal(t, "orc", c.Text(name))

	p, err := c.Program.Proc(heal)
	require.NoError(t, err)
	assert.Equal(t, vm.Location{File: "mobs.dm", Line: 4}, p.LocationAt(0))
}

func TestUnresolvedLabelMarksProcInvalid(t *testing.T) {
	src := `
proc("ok", code = [("PushFloat", 1), "Return"])
proc("bad", code = [("Jump", "nowhere")])
`
	p, _, err := Load("bad.star", src)
	require.Error(t, err)
	var ae *vm.AssemblyError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, vm.UnresolvedLabel, ae.Kind)

	bad, _ := p.GlobalProc("bad")
	ok, _ := p.GlobalProc("ok")
	assert.NotEmpty(t, p.Procs[bad].Invalid)
	assert.Empty(t, p.Procs[ok].Invalid)
}

func TestScriptErrors(t *testing.T) {
	for name, src := range map[string]string{
		"unknown opcode":  `proc("f", code = ["Frobnicate"])`,
		"bad operand":     `proc("f", code = [("PushFloat", [1])])`,
		"starlark error":  `proc(`,
		"bad param kind":  `proc("f", args = [param("x", kinds = ["blob"])])`,
		"bad field value": `typedef("/a", fields = {"x": [1]})`,
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := Load("t.star", src)
			assert.Error(t, err)
		})
	}
}

func TestBuilderRejectsWrongOperandCount(t *testing.T) {
	b := NewBuilder()
	b.Proc("", "f", ProcSpec{}, Op(vm.PushFloat))
	_, _, err := b.Build()
	var ae *vm.AssemblyError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, vm.UnexpectedOperand, ae.Kind)
}

func TestBuilderRejectsSlotsOutsideFrame(t *testing.T) {
	b := NewBuilder()
	b.Proc("", "ok", ProcSpec{Locals: 1},
		Op(vm.PushReferenceValue, vm.LocalRef(0)),
		Op(vm.Return),
	)
	b.Proc("", "local", ProcSpec{},
		Op(vm.PushReferenceValue, vm.LocalRef(3)),
		Op(vm.Return),
	)
	b.Proc("", "arg", ProcSpec{Args: []vm.ProcArg{{Name: "x"}}},
		Op(vm.PushReferenceValue, vm.ArgumentRef(1)),
		Op(vm.Return),
	)
	p, _, err := b.Build()
	var ae *vm.AssemblyError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, vm.UnexpectedOperand, ae.Kind)

	for name, invalid := range map[string]bool{"ok": false, "local": true, "arg": true} {
		id, found := p.GlobalProc(name)
		require.True(t, found)
		assert.Equal(t, invalid, p.Procs[id].Invalid != "", name)
	}
}
