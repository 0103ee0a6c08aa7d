package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timewinder-dev/dreamvm/vm"
)

// mobProgram declares /, /mob, /mob/player and /obj. /mob and /mob/player
// both define Login; /mob defines Login twice, the second overriding the
// first.
func mobProgram() *vm.Program {
	p := &vm.Program{
		Types: []vm.TypeDef{
			{Path: "/", Parent: vm.NoType, Globals: []vm.FieldDef{{Name: "round", Default: vm.Number(1)}}},
			{Path: "/mob", Parent: 0, Fields: []vm.FieldDef{{Name: "hp", Default: vm.Number(10)}, {Name: "name"}}},
			{Path: "/mob/player", Parent: 1, Fields: []vm.FieldDef{{Name: "hp", Default: vm.Number(30)}, {Name: "key"}}},
			{Path: "/obj", Parent: 0, Globals: []vm.FieldDef{{Name: "count"}}},
		},
	}
	add := func(owner vm.TypeID, name string) vm.ProcID {
		id := vm.ProcID(len(p.Procs))
		p.Procs = append(p.Procs, &vm.Proc{ID: id, Name: name, Owner: owner, Super: vm.NoProc})
		if owner == vm.NoType {
			p.GlobalProcs = append(p.GlobalProcs, vm.ProcDecl{Name: name, ID: id})
		} else {
			p.Types[owner].Procs = append(p.Types[owner].Procs, vm.ProcDecl{Name: name, ID: id})
		}
		return id
	}
	add(1, "Login")       // 0
	add(1, "Login")       // 1
	add(2, "Login")       // 2
	add(1, "Move")        // 3
	add(vm.NoType, "now") // 4
	add(vm.NoType, "now") // 5
	return p
}

func build(t *testing.T) (*vm.Program, *Tree) {
	p := mobProgram()
	tr, err := Build(p)
	require.NoError(t, err)
	return p, tr
}

func node(t *testing.T, tr *Tree, path string) *Node {
	n, err := tr.ByPath(path)
	require.NoError(t, err)
	return n
}

func TestLookupProcFollowsOverrides(t *testing.T) {
	_, tr := build(t)

	id, err := tr.LookupProc(node(t, tr, "/mob"), "Login")
	require.NoError(t, err)
	assert.Equal(t, vm.ProcID(1), id)

	id, err = tr.LookupProc(node(t, tr, "/mob/player"), "Login")
	require.NoError(t, err)
	assert.Equal(t, vm.ProcID(2), id)

	id, err = tr.LookupProc(node(t, tr, "/mob/player"), "Move")
	require.NoError(t, err)
	assert.Equal(t, vm.ProcID(3), id)

	_, err = tr.LookupProc(node(t, tr, "/obj"), "Login")
	var le *vm.LookupError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, vm.NoSuchProc, le.Kind)
	assert.Equal(t, "/obj", le.On)
}

func TestSuperChain(t *testing.T) {
	p, tr := build(t)

	sup, err := tr.Super(2)
	require.NoError(t, err)
	assert.Equal(t, vm.ProcID(1), sup)
	sup, err = tr.Super(sup)
	require.NoError(t, err)
	assert.Equal(t, vm.ProcID(0), sup)
	_, err = tr.Super(0)
	assert.Error(t, err)

	assert.True(t, node(t, tr, "/mob").IsOverride("Login"))
	assert.False(t, node(t, tr, "/mob").IsOverride("Move"))
	assert.Equal(t, vm.ProcID(4), p.Procs[5].Super)
	assert.Equal(t, vm.NoProc, p.Procs[4].Super)
}

func TestIsSubtype(t *testing.T) {
	_, tr := build(t)
	root := node(t, tr, "/")
	mob := node(t, tr, "/mob")
	player := node(t, tr, "/mob/player")
	obj := node(t, tr, "/obj")

	assert.True(t, tr.IsSubtype(player, mob))
	assert.True(t, tr.IsSubtype(player, root))
	assert.True(t, tr.IsSubtype(mob, mob))
	assert.False(t, tr.IsSubtype(mob, player))
	assert.False(t, tr.IsSubtype(obj, mob))
	assert.False(t, tr.IsSubtype(nil, mob))
	assert.Equal(t, 3, root.SubtreeSize)
	assert.Same(t, obj, tr.ByIndex(obj.Index))
}

func TestFieldsInherit(t *testing.T) {
	_, tr := build(t)
	player := node(t, tr, "/mob/player")

	hp, ok := player.FieldDefault("hp")
	require.True(t, ok)
	assert.Equal(t, vm.Number(30), hp)
	assert.True(t, player.HasField("name"))
	assert.Equal(t, []string{"hp", "name", "key"}, player.Fields())
	assert.False(t, node(t, tr, "/mob").HasField("key"))
}

func TestGlobals(t *testing.T) {
	_, tr := build(t)
	assert.Equal(t, 2, tr.GlobalCount())

	slot, ok := node(t, tr, "/mob/player").GlobalSlot("round")
	require.True(t, ok)
	assert.Equal(t, "/round", tr.GlobalName(slot))
	_, ok = node(t, tr, "/mob").GlobalSlot("count")
	assert.False(t, ok)

	g := tr.GlobalDefaults()
	g[slot] = vm.Number(99)
	assert.Equal(t, vm.Number(1), tr.GlobalDefaults()[slot])
}

func TestBuildRejectsBadHierarchies(t *testing.T) {
	for name, types := range map[string][]vm.TypeDef{
		"empty":          nil,
		"duplicate path": {{Path: "/", Parent: vm.NoType}, {Path: "/", Parent: 0}},
		"two roots":      {{Path: "/", Parent: vm.NoType}, {Path: "/a", Parent: vm.NoType}},
		"cycle":          {{Path: "/", Parent: vm.NoType}, {Path: "/a", Parent: 2}, {Path: "/b", Parent: 1}},
		"bad parent":     {{Path: "/", Parent: vm.NoType}, {Path: "/a", Parent: 7}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Build(&vm.Program{Types: types})
			assert.Error(t, err)
		})
	}
}

func TestUnknownType(t *testing.T) {
	_, tr := build(t)
	_, err := tr.ByPath("/turf")
	var le *vm.LookupError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, vm.NoSuchType, le.Kind)
	_, err = tr.Node(42)
	assert.Error(t, err)
}
