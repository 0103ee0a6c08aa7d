package vm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/timewinder-dev/dreamvm/cas"
)

type TypeID int32

type ProcID int32

const (
	NoType TypeID = -1
	NoProc ProcID = -1
)

type ProcFlags uint8

const (
	// ProcNoWait procs hand a placeholder back to their caller when they
	// suspend, and keep running on their own thread.
	ProcNoWait ProcFlags = 1 << iota
	// ProcNative procs have no bytecode; the runtime binds them by name.
	ProcNative
)

type ProcArg struct {
	Name     string   `msgpack:"name"`
	Kinds    KindMask `msgpack:"kinds,omitempty"`
	Default  Value    `msgpack:"default"`
	Required bool     `msgpack:"required,omitempty"`
}

// SourceMark maps the instruction starting at Offset to a source location.
type SourceMark struct {
	Offset int      `msgpack:"o"`
	Loc    Location `msgpack:"l"`
}

type Proc struct {
	ID            ProcID       `msgpack:"id"`
	Name          string       `msgpack:"name"`
	Owner         TypeID       `msgpack:"owner"`
	Args          []ProcArg    `msgpack:"args,omitempty"`
	Locals        int          `msgpack:"locals,omitempty"`
	Bytecode      []byte       `msgpack:"-"`
	MaxStackDepth int          `msgpack:"max_stack"`
	Flags         ProcFlags    `msgpack:"flags,omitempty"`
	Super         ProcID       `msgpack:"super"`
	Source        []SourceMark `msgpack:"source,omitempty"`
	// Invalid holds the assembly error for a proc that failed to assemble.
	Invalid string `msgpack:"invalid,omitempty"`
}

func (p *Proc) NoWait() bool { return p.Flags&ProcNoWait != 0 }
func (p *Proc) Native() bool { return p.Flags&ProcNative != 0 }

func (p *Proc) ArgIndex(name string) int {
	for i, a := range p.Args {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// LocationAt returns the source location of the instruction containing pc.
func (p *Proc) LocationAt(pc int) Location {
	i := sort.Search(len(p.Source), func(i int) bool {
		return p.Source[i].Offset > pc
	})
	if i == 0 {
		return Location{}
	}
	return p.Source[i-1].Loc
}

type FieldDef struct {
	Name    string `msgpack:"name"`
	Default Value  `msgpack:"default"`
}

// ProcDecl binds a proc name to one definition. A type may list the same
// name more than once; later entries override earlier ones.
type ProcDecl struct {
	Name string `msgpack:"name"`
	ID   ProcID `msgpack:"id"`
}

type TypeDef struct {
	Path    string     `msgpack:"path"`
	Parent  TypeID     `msgpack:"parent"`
	Fields  []FieldDef `msgpack:"fields,omitempty"`
	Procs   []ProcDecl `msgpack:"procs,omitempty"`
	Globals []FieldDef `msgpack:"globals,omitempty"`
}

// Program is the loaded image: string table, type table and proc table.
type Program struct {
	Strings     []string   `msgpack:"strings"`
	Types       []TypeDef  `msgpack:"types"`
	Procs       []*Proc    `msgpack:"procs"`
	GlobalProcs []ProcDecl `msgpack:"global_procs,omitempty"`

	listingOnce sync.Once
	listings    *cas.LRU[*Listing]
}

func (p *Program) Proc(id ProcID) (*Proc, error) {
	if id < 0 || int(id) >= len(p.Procs) {
		return nil, &LookupError{Kind: NoSuchProc, Name: fmt.Sprintf("#%d", id)}
	}
	return p.Procs[id], nil
}

func (p *Program) GlobalProc(name string) (ProcID, bool) {
	for i := len(p.GlobalProcs) - 1; i >= 0; i-- {
		if p.GlobalProcs[i].Name == name {
			return p.GlobalProcs[i].ID, true
		}
	}
	return NoProc, false
}

func (p *Program) TypeByPath(path string) (TypeID, bool) {
	for i, t := range p.Types {
		if t.Path == path {
			return TypeID(i), true
		}
	}
	return NoType, false
}

func (p *Program) TypePath(id TypeID) string {
	if id < 0 || int(id) >= len(p.Types) {
		return fmt.Sprintf("<type #%d>", id)
	}
	return p.Types[id].Path
}

// ProcPath renders a proc as "/owner/proc/name", or "/proc/name" for global
// procs.
func (p *Program) ProcPath(id ProcID) string {
	proc, err := p.Proc(id)
	if err != nil {
		return fmt.Sprintf("<proc #%d>", id)
	}
	if proc.Owner == NoType {
		return "/proc/" + proc.Name
	}
	owner := p.TypePath(proc.Owner)
	if owner == "/" {
		owner = ""
	}
	return owner + "/proc/" + proc.Name
}

// Listing returns the decoded instructions of a proc. Decoded listings are
// cached by bytecode hash, so procs sharing identical code share a listing.
func (p *Program) Listing(id ProcID, st *StringTable) (*Listing, error) {
	proc, err := p.Proc(id)
	if err != nil {
		return nil, err
	}
	p.listingOnce.Do(func() {
		p.listings = cas.NewLRU[*Listing](256)
	})
	h := cas.HashBytes(proc.Bytecode)
	if l, ok := p.listings.Get(h); ok {
		return l, nil
	}
	l, err := Disassemble(proc.Bytecode, st)
	if err != nil {
		return nil, err
	}
	p.listings.Add(h, l)
	return l, nil
}
