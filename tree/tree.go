package tree

import (
	"fmt"

	"github.com/timewinder-dev/dreamvm/vm"
)

// Node is one type of the hierarchy. Index and SubtreeSize come from a
// pre-order walk, so every descendant's index lies in
// [Index, Index+SubtreeSize].
type Node struct {
	ID          vm.TypeID
	Path        string
	Parent      *Node
	Children    []*Node
	Index       int
	SubtreeSize int

	procs      map[string]vm.ProcID
	overrides  map[string]vm.ProcID
	fields     map[string]vm.Value
	fieldOrder []string
	globals    map[string]int
}

func (n *Node) String() string {
	return n.Path
}

func (n *Node) FieldDefault(name string) (vm.Value, bool) {
	v, ok := n.fields[name]
	return v, ok
}

// Fields lists every field name visible on the type, inherited ones first.
func (n *Node) Fields() []string {
	return n.fieldOrder
}

func (n *Node) HasField(name string) bool {
	_, ok := n.fields[name]
	return ok
}

func (n *Node) GlobalSlot(name string) (int, bool) {
	s, ok := n.globals[name]
	return s, ok
}

// OwnProc reports the proc this type itself resolves name to, without
// consulting ancestors.
func (n *Node) OwnProc(name string) (vm.ProcID, bool) {
	if id, ok := n.overrides[name]; ok {
		return id, true
	}
	id, ok := n.procs[name]
	return id, ok
}

// IsOverride reports whether name on this type replaces an inherited or
// earlier definition.
func (n *Node) IsOverride(name string) bool {
	_, ok := n.overrides[name]
	return ok
}

// Tree is the immutable type hierarchy built from a program image. Only the
// global value table built from GlobalDefaults is mutable at runtime.
type Tree struct {
	Root    *Node
	program *vm.Program
	nodes   []*Node
	byPath  map[string]*Node
	byIndex []*Node

	globalDefaults []vm.Value
	globalNames    []string
}

func (t *Tree) Program() *vm.Program {
	return t.program
}

func (t *Tree) Len() int {
	return len(t.nodes)
}

func (t *Tree) Node(id vm.TypeID) (*Node, error) {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil, &vm.LookupError{Kind: vm.NoSuchType, Name: fmt.Sprintf("#%d", id)}
	}
	return t.nodes[id], nil
}

func (t *Tree) ByPath(path string) (*Node, error) {
	n, ok := t.byPath[path]
	if !ok {
		return nil, &vm.LookupError{Kind: vm.NoSuchType, Name: path}
	}
	return n, nil
}

// ByIndex returns the node at a pre-order position.
func (t *Tree) ByIndex(i int) *Node {
	if i < 0 || i >= len(t.byIndex) {
		return nil
	}
	return t.byIndex[i]
}

// IsSubtype reports whether child is ancestor or one of its descendants.
func (t *Tree) IsSubtype(child, ancestor *Node) bool {
	if child == nil || ancestor == nil {
		return false
	}
	d := child.Index - ancestor.Index
	return d >= 0 && d <= ancestor.SubtreeSize
}

// LookupProc resolves name on n: the type's own override, then its plain
// definition, then the parent's resolution.
func (t *Tree) LookupProc(n *Node, name string) (vm.ProcID, error) {
	for cur := n; cur != nil; cur = cur.Parent {
		if id, ok := cur.OwnProc(name); ok {
			return id, nil
		}
	}
	on := ""
	if n != nil {
		on = n.Path
	}
	return vm.NoProc, &vm.LookupError{Kind: vm.NoSuchProc, Name: name, On: on}
}

// Super returns the definition a super call from proc resumes at.
func (t *Tree) Super(id vm.ProcID) (vm.ProcID, error) {
	proc, err := t.program.Proc(id)
	if err != nil {
		return vm.NoProc, err
	}
	if proc.Super == vm.NoProc {
		on := ""
		if proc.Owner != vm.NoType {
			on = t.program.TypePath(proc.Owner)
		}
		return vm.NoProc, &vm.LookupError{Kind: vm.NoSuchProc, Name: "super " + proc.Name, On: on}
	}
	return proc.Super, nil
}

func (t *Tree) GlobalCount() int {
	return len(t.globalDefaults)
}

// GlobalDefaults returns a fresh copy of the initial global value table.
func (t *Tree) GlobalDefaults() []vm.Value {
	out := make([]vm.Value, len(t.globalDefaults))
	copy(out, t.globalDefaults)
	return out
}

func (t *Tree) GlobalName(slot int) string {
	if slot < 0 || slot >= len(t.globalNames) {
		return ""
	}
	return t.globalNames[slot]
}
