package script

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/timewinder-dev/dreamvm/tree"
	"github.com/timewinder-dev/dreamvm/vm"
)

// Instr is one entry of a proc body: an opcode with its operands, or a label
// when Label is set.
//
// Operands are matched to the opcode's schema in order. Floats accept any Go
// number; strings serve text, resource and label operands, and name a type,
// global proc or argument type where those are expected; ints, vm.TypeID
// and vm.ProcID serve the integer kinds. References are vm.Reference, or one
// of the symbolic forms GlobalVar and GlobalProcName resolved at build time.
type Instr struct {
	Op       vm.Opcode
	Operands []any
	Label    string
	Loc      vm.Location
}

func Op(op vm.Opcode, operands ...any) Instr {
	return Instr{Op: op, Operands: operands}
}

func Label(name string) Instr {
	return Instr{Label: name}
}

// At attaches a source location.
func (in Instr) At(file string, line int) Instr {
	in.Loc = vm.Location{File: file, Line: line}
	return in
}

// GlobalVar names a global declared on Type.
type GlobalVar struct {
	Type string
	Name string
}

// GlobalProcName names a global proc; the last definition wins.
type GlobalProcName string

// TypePath names a type by path.
type TypePath string

type ProcSpec struct {
	Args   []vm.ProcArg
	Locals int
	NoWait bool
}

// Builder assembles a program from Go values. Types are created on demand
// from their paths; procs are assembled once the tree is known.
type Builder struct {
	strings *vm.StringTable
	prog    *vm.Program
	types   map[string]vm.TypeID
	code    map[vm.ProcID][]Instr
}

func NewBuilder() *Builder {
	b := &Builder{
		strings: vm.NewStringTable(),
		prog:    &vm.Program{},
		types:   make(map[string]vm.TypeID),
		code:    make(map[vm.ProcID][]Instr),
	}
	b.prog.Types = append(b.prog.Types, vm.TypeDef{Path: "/", Parent: vm.NoType})
	b.types["/"] = 0
	return b
}

func (b *Builder) Strings() *vm.StringTable {
	return b.strings
}

func (b *Builder) Text(s string) vm.Value {
	return vm.String(b.strings.Intern(s))
}

// FieldRef and friends intern the field or proc name they reference.
func (b *Builder) FieldRef(name string) vm.Reference {
	return vm.FieldRef(b.strings.Intern(name))
}

func (b *Builder) SrcField(name string) vm.Reference {
	return vm.SrcFieldRef(b.strings.Intern(name))
}

func (b *Builder) SrcProc(name string) vm.Reference {
	return vm.SrcProcRef(b.strings.Intern(name))
}

func parentPath(path string) string {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

func cleanPath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimSuffix(path, "/")
}

// Type returns the id of path, creating it and any missing ancestors. The
// parent is the path prefix.
func (b *Builder) Type(path string) vm.TypeID {
	return b.TypeWithParent(path, "")
}

// TypeWithParent is Type with an explicit parent path.
func (b *Builder) TypeWithParent(path, parent string) vm.TypeID {
	path = cleanPath(path)
	if id, ok := b.types[path]; ok {
		return id
	}
	if parent == "" {
		parent = parentPath(path)
	}
	pid := b.Type(parent)
	id := vm.TypeID(len(b.prog.Types))
	b.prog.Types = append(b.prog.Types, vm.TypeDef{Path: path, Parent: pid})
	b.types[path] = id
	return id
}

// Field declares an instance variable with its default.
func (b *Builder) Field(typ, name string, def vm.Value) {
	id := b.Type(typ)
	b.prog.Types[id].Fields = append(b.prog.Types[id].Fields, vm.FieldDef{Name: name, Default: def})
}

// Global declares a global variable scoped to typ.
func (b *Builder) Global(typ, name string, def vm.Value) {
	id := b.Type(typ)
	b.prog.Types[id].Globals = append(b.prog.Types[id].Globals, vm.FieldDef{Name: name, Default: def})
}

// Proc declares a proc. An empty owner declares a global proc.
func (b *Builder) Proc(owner, name string, spec ProcSpec, code ...Instr) vm.ProcID {
	id := b.addProc(owner, name, spec)
	b.code[id] = code
	return id
}

// Native declares a proc whose body is the runtime native of the same name.
func (b *Builder) Native(owner, name string, args ...vm.ProcArg) vm.ProcID {
	id := b.addProc(owner, name, ProcSpec{Args: args})
	b.prog.Procs[id].Flags |= vm.ProcNative
	return id
}

func (b *Builder) addProc(owner, name string, spec ProcSpec) vm.ProcID {
	id := vm.ProcID(len(b.prog.Procs))
	p := &vm.Proc{
		ID:     id,
		Name:   name,
		Owner:  vm.NoType,
		Args:   spec.Args,
		Locals: spec.Locals,
		Super:  vm.NoProc,
	}
	if spec.NoWait {
		p.Flags |= vm.ProcNoWait
	}
	b.prog.Procs = append(b.prog.Procs, p)
	decl := vm.ProcDecl{Name: name, ID: id}
	if owner == "" {
		b.prog.GlobalProcs = append(b.prog.GlobalProcs, decl)
		return id
	}
	tid := b.Type(owner)
	p.Owner = tid
	b.prog.Types[tid].Procs = append(b.prog.Types[tid].Procs, decl)
	return id
}

// Build links the type tree and assembles every proc. A proc that fails to
// assemble is marked invalid and its error is returned alongside the
// program; any other error is fatal.
func (b *Builder) Build() (*vm.Program, *tree.Tree, error) {
	t, err := tree.Build(b.prog)
	if err != nil {
		return nil, nil, err
	}
	var errs []error
	for _, p := range b.prog.Procs {
		if p.Native() {
			continue
		}
		if err := b.assemble(t, p); err != nil {
			p.Invalid = err.Error()
			errs = append(errs, err)
			log.Warn().Err(err).Str("proc", b.prog.ProcPath(p.ID)).Msg("proc failed to assemble")
		}
	}
	b.prog.Strings = b.strings.Snapshot()
	return b.prog, t, errors.Join(errs...)
}

func (b *Builder) assemble(t *tree.Tree, p *vm.Proc) error {
	path := b.prog.ProcPath(p.ID)
	a := vm.NewAssembler(path, b.strings)
	a.SetFrame(len(p.Args), p.Locals)
	for _, in := range b.code[p.ID] {
		if in.Label != "" {
			if err := a.MarkLabel(in.Label); err != nil {
				return err
			}
			continue
		}
		if err := a.EmitOpcode(in.Op, in.Loc); err != nil {
			return err
		}
		info, _ := vm.Info(in.Op)
		if len(in.Operands) != len(info.Operands) {
			return &vm.AssemblyError{
				Kind:    vm.UnexpectedOperand,
				Proc:    path,
				Loc:     in.Loc,
				Message: fmt.Sprintf("%s takes %d operands, got %d", in.Op, len(info.Operands), len(in.Operands)),
			}
		}
		for i, raw := range in.Operands {
			o, err := b.operand(t, info.Operands[i], raw)
			if err != nil {
				return &vm.AssemblyError{Kind: vm.UnexpectedOperand, Proc: path, Loc: in.Loc, Message: err.Error()}
			}
			if err := a.EmitOperand(o); err != nil {
				return err
			}
		}
	}
	out, err := a.Finish()
	if err != nil {
		return err
	}
	p.Bytecode = out.Bytecode
	p.MaxStackDepth = out.MaxStackDepth
	p.Source = out.Source
	return nil
}

func (b *Builder) operand(t *tree.Tree, kind vm.OperandKind, raw any) (vm.Operand, error) {
	o := vm.Operand{Kind: kind}
	switch kind {
	case vm.OperandFloat:
		switch v := raw.(type) {
		case float64:
			o.Float = float32(v)
		case float32:
			o.Float = v
		case int:
			o.Float = float32(v)
		default:
			return o, fmt.Errorf("%s operand: %T is not a number", kind, raw)
		}
	case vm.OperandString, vm.OperandResource, vm.OperandLabel:
		s, ok := raw.(string)
		if !ok {
			return o, fmt.Errorf("%s operand: %T is not text", kind, raw)
		}
		if kind == vm.OperandLabel {
			o.Label = s
		} else {
			o.Text = s
		}
	case vm.OperandReference:
		ref, err := b.reference(t, raw)
		if err != nil {
			return o, err
		}
		o.Ref = ref
	case vm.OperandTypeID:
		if path, ok := raw.(string); ok {
			raw = TypePath(path)
		}
		switch v := raw.(type) {
		case TypePath:
			n, err := t.ByPath(cleanPath(string(v)))
			if err != nil {
				return o, err
			}
			o.Int = int32(n.ID)
		case vm.TypeID:
			o.Int = int32(v)
		case int:
			o.Int = int32(v)
		default:
			return o, fmt.Errorf("%s operand: %T is not a type", kind, raw)
		}
	case vm.OperandProcID:
		if name, ok := raw.(string); ok {
			raw = GlobalProcName(name)
		}
		switch v := raw.(type) {
		case GlobalProcName:
			id, ok := b.prog.GlobalProc(string(v))
			if !ok {
				return o, &vm.LookupError{Kind: vm.NoSuchProc, Name: string(v)}
			}
			o.Int = int32(id)
		case vm.ProcID:
			o.Int = int32(v)
		case int:
			o.Int = int32(v)
		default:
			return o, fmt.Errorf("%s operand: %T is not a proc", kind, raw)
		}
	case vm.OperandArgType:
		switch v := raw.(type) {
		case vm.ArgType:
			o.Int = int32(v)
		case string:
			at, ok := vm.ArgTypeByName(v)
			if !ok {
				return o, fmt.Errorf("unknown argument type %q", v)
			}
			o.Int = int32(at)
		case int:
			o.Int = int32(v)
		default:
			return o, fmt.Errorf("%s operand: %T is not an argument type", kind, raw)
		}
	default:
		n, ok := raw.(int)
		if !ok {
			return o, fmt.Errorf("%s operand: %T is not an integer", kind, raw)
		}
		o.Int = int32(n)
	}
	return o, nil
}

func (b *Builder) reference(t *tree.Tree, raw any) (vm.Reference, error) {
	switch v := raw.(type) {
	case vm.Reference:
		return v, nil
	case GlobalVar:
		n, err := t.ByPath(cleanPath(v.Type))
		if err != nil {
			return vm.Reference{}, err
		}
		slot, ok := n.GlobalSlot(v.Name)
		if !ok {
			return vm.Reference{}, &vm.LookupError{Kind: vm.NoSuchField, Name: v.Name, On: n.Path}
		}
		return vm.GlobalRef(slot), nil
	case GlobalProcName:
		id, ok := b.prog.GlobalProc(string(v))
		if !ok {
			return vm.Reference{}, &vm.LookupError{Kind: vm.NoSuchProc, Name: string(v)}
		}
		return vm.GlobalProcRef(id), nil
	}
	return vm.Reference{}, fmt.Errorf("reference operand: %T is not a reference", raw)
}
