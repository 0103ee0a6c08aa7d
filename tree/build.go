package tree

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/timewinder-dev/dreamvm/vm"
)

// Build constructs the hierarchy from the program's type table and links
// every proc to the definition it overrides. It writes Proc.Super in the
// program; nothing else in the image is modified.
func Build(p *vm.Program) (*Tree, error) {
	t := &Tree{
		program: p,
		nodes:   make([]*Node, len(p.Types)),
		byPath:  make(map[string]*Node, len(p.Types)),
	}
	for i, def := range p.Types {
		if _, dup := t.byPath[def.Path]; dup {
			return nil, fmt.Errorf("type %s defined twice", def.Path)
		}
		n := &Node{
			ID:        vm.TypeID(i),
			Path:      def.Path,
			procs:     make(map[string]vm.ProcID),
			overrides: make(map[string]vm.ProcID),
			fields:    make(map[string]vm.Value),
			globals:   make(map[string]int),
		}
		t.nodes[i] = n
		t.byPath[def.Path] = n
	}

	for i, def := range p.Types {
		n := t.nodes[i]
		if def.Parent == vm.NoType {
			if t.Root != nil {
				return nil, fmt.Errorf("types %s and %s both have no parent", t.Root.Path, n.Path)
			}
			t.Root = n
			continue
		}
		if def.Parent < 0 || int(def.Parent) >= len(t.nodes) {
			return nil, fmt.Errorf("type %s has unknown parent #%d", def.Path, def.Parent)
		}
		n.Parent = t.nodes[def.Parent]
		n.Parent.Children = append(n.Parent.Children, n)
	}
	if t.Root == nil {
		if len(t.nodes) == 0 {
			return nil, fmt.Errorf("program has no types")
		}
		return nil, fmt.Errorf("type hierarchy has no root")
	}

	t.number(t.Root)
	if len(t.byIndex) != len(t.nodes) {
		return nil, fmt.Errorf("type hierarchy has a cycle: %d of %d types reachable from %s", len(t.byIndex), len(t.nodes), t.Root.Path)
	}

	// byIndex is parent-before-child, so each node can copy its parent's
	// merged tables before applying its own definitions.
	for _, n := range t.byIndex {
		if err := t.merge(n, &p.Types[n.ID]); err != nil {
			return nil, err
		}
	}
	if err := t.linkGlobalProcs(); err != nil {
		return nil, err
	}
	log.Debug().
		Int("types", len(t.nodes)).
		Int("procs", len(p.Procs)).
		Int("globals", len(t.globalDefaults)).
		Msg("type tree built")
	return t, nil
}

func (t *Tree) number(n *Node) int {
	n.Index = len(t.byIndex)
	t.byIndex = append(t.byIndex, n)
	size := 0
	for _, c := range n.Children {
		size += 1 + t.number(c)
	}
	n.SubtreeSize = size
	return size
}

func (t *Tree) merge(n *Node, def *vm.TypeDef) error {
	if n.Parent != nil {
		for _, name := range n.Parent.fieldOrder {
			n.fields[name] = n.Parent.fields[name]
		}
		n.fieldOrder = append(n.fieldOrder, n.Parent.fieldOrder...)
		for name, slot := range n.Parent.globals {
			n.globals[name] = slot
		}
	}
	for _, f := range def.Fields {
		if _, inherited := n.fields[f.Name]; !inherited {
			n.fieldOrder = append(n.fieldOrder, f.Name)
		}
		n.fields[f.Name] = f.Default
	}
	for _, g := range def.Globals {
		slot := len(t.globalDefaults)
		t.globalDefaults = append(t.globalDefaults, g.Default)
		t.globalNames = append(t.globalNames, strings.TrimSuffix(n.Path, "/")+"/"+g.Name)
		n.globals[g.Name] = slot
	}

	for _, decl := range def.Procs {
		proc, err := t.program.Proc(decl.ID)
		if err != nil {
			return fmt.Errorf("type %s: proc %s: %w", n.Path, decl.Name, err)
		}
		if proc.Owner != n.ID {
			return fmt.Errorf("type %s lists proc %s owned by %s", n.Path, decl.Name, t.program.TypePath(proc.Owner))
		}
		prev, have := n.OwnProc(decl.Name)
		if !have && n.Parent != nil {
			if id, err := t.LookupProc(n.Parent, decl.Name); err == nil {
				prev, have = id, true
			}
		}
		if have {
			proc.Super = prev
			n.overrides[decl.Name] = decl.ID
		} else {
			proc.Super = vm.NoProc
			n.procs[decl.Name] = decl.ID
		}
	}
	return nil
}

// linkGlobalProcs chains redefinitions of the same global proc name.
func (t *Tree) linkGlobalProcs() error {
	last := map[string]vm.ProcID{}
	for _, decl := range t.program.GlobalProcs {
		proc, err := t.program.Proc(decl.ID)
		if err != nil {
			return fmt.Errorf("global proc %s: %w", decl.Name, err)
		}
		if prev, ok := last[decl.Name]; ok {
			proc.Super = prev
		} else {
			proc.Super = vm.NoProc
		}
		last[decl.Name] = decl.ID
	}
	return nil
}
