package script

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/timewinder-dev/dreamvm/tree"
	"github.com/timewinder-dev/dreamvm/vm"
)

// An assembly script is a Starlark file that declares types and procs:
//
//	typedef("/mob", fields={"hp": 10})
//	proc("heal", owner="/mob", args=["n"], code=[
//	    ("PushReferenceValue", src_field("hp")),
//	    ("PushReferenceValue", arg(0)),
//	    "Add",
//	    ("Assign", src_field("hp")),
//	    "Return",
//	])
//
// Code entries are an opcode name, a tuple of opcode name and operands, a
// label(name) marker or a loc(file, line) marker applying to the entries
// after it.

// LoadFile reads and loads the script at path.
func LoadFile(path string) (*vm.Program, *tree.Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return Load(path, data)
}

// Load executes a script and builds its program. Assembly errors are
// returned alongside a usable program, as with Builder.Build.
func Load(filename string, src any) (*vm.Program, *tree.Tree, error) {
	l := &loader{b: NewBuilder()}
	thread := &starlark.Thread{
		Name: filename,
		Print: func(_ *starlark.Thread, msg string) {
			log.Info().Str("script", filename).Msg(msg)
		},
	}
	_, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, filename, src, l.predeclared())
	if err != nil {
		return nil, nil, fmt.Errorf("loading %s: %w", filename, err)
	}
	return l.b.Build()
}

type loader struct {
	b *Builder
}

func (l *loader) predeclared() starlark.StringDict {
	d := starlark.StringDict{
		"typedef":     starlark.NewBuiltin("typedef", l.typedef),
		"proc":        starlark.NewBuiltin("proc", l.proc),
		"native":      starlark.NewBuiltin("native", l.native),
		"param":       starlark.NewBuiltin("param", l.param),
		"label":       starlark.NewBuiltin("label", label),
		"loc":         starlark.NewBuiltin("loc", loc),
		"arg":         starlark.NewBuiltin("arg", indexRef(vm.ArgumentRef)),
		"local":       starlark.NewBuiltin("local", indexRef(vm.LocalRef)),
		"glob":        starlark.NewBuiltin("glob", l.glob),
		"field":       starlark.NewBuiltin("field", l.nameRef(l.b.FieldRef)),
		"src_field":   starlark.NewBuiltin("src_field", l.nameRef(l.b.SrcField)),
		"src_proc":    starlark.NewBuiltin("src_proc", l.nameRef(l.b.SrcProc)),
		"global_proc": starlark.NewBuiltin("global_proc", globalProc),
		"INTERP":      starlark.String(string(vm.InterpolationMarker)),
	}
	for name, r := range map[string]vm.Reference{
		"SRC":        vm.SrcRef(),
		"DOT":        vm.SelfRef(),
		"USR":        vm.UsrRef(),
		"ARGS":       vm.ArgsRef(),
		"WORLD":      vm.WorldRef(),
		"SUPER":      vm.SuperRef(),
		"LIST_INDEX": vm.ListIndexRef(),
		"CALLEE":     {Kind: vm.RefCallee},
		"CALLER":     {Kind: vm.RefCaller},
	} {
		d[name] = refValue{ref: r, name: name}
	}
	return d
}

type refValue struct {
	ref  any
	name string
}

func (r refValue) String() string        { return r.name }
func (r refValue) Type() string          { return "reference" }
func (r refValue) Freeze()               {}
func (r refValue) Truth() starlark.Bool  { return starlark.True }
func (r refValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: reference") }

type labelValue string

func (l labelValue) String() string        { return "label(" + string(l) + ")" }
func (l labelValue) Type() string          { return "label" }
func (l labelValue) Freeze()               {}
func (l labelValue) Truth() starlark.Bool  { return starlark.True }
func (l labelValue) Hash() (uint32, error) { return starlark.String(l).Hash() }

type locValue vm.Location

func (l locValue) String() string        { return vm.Location(l).String() }
func (l locValue) Type() string          { return "loc" }
func (l locValue) Freeze()               {}
func (l locValue) Truth() starlark.Bool  { return starlark.True }
func (l locValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: loc") }

type paramValue vm.ProcArg

func (p paramValue) String() string        { return "param(" + p.Name + ")" }
func (p paramValue) Type() string          { return "param" }
func (p paramValue) Freeze()               {}
func (p paramValue) Truth() starlark.Bool  { return starlark.True }
func (p paramValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: param") }

func label(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	return labelValue(name), nil
}

func loc(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var file string
	var line int
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "file", &file, "line", &line); err != nil {
		return nil, err
	}
	return locValue{File: file, Line: line}, nil
}

func globalProc(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	return refValue{ref: GlobalProcName(name), name: "global_proc(" + name + ")"}, nil
}

type builtinFunc = func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)

func indexRef(mk func(int) vm.Reference) builtinFunc {
	return func(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var i int
		if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &i); err != nil {
			return nil, err
		}
		if i < 0 || i > 255 {
			return nil, fmt.Errorf("%s: index %d out of range", fn.Name(), i)
		}
		return refValue{ref: mk(i), name: fmt.Sprintf("%s(%d)", fn.Name(), i)}, nil
	}
}

func (l *loader) nameRef(mk func(string) vm.Reference) builtinFunc {
	return func(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name string
		if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &name); err != nil {
			return nil, err
		}
		return refValue{ref: mk(name), name: fmt.Sprintf("%s(%q)", fn.Name(), name)}, nil
	}
}

func (l *loader) glob(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	typ := "/"
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "type?", &typ); err != nil {
		return nil, err
	}
	return refValue{ref: GlobalVar{Type: typ, Name: name}, name: fmt.Sprintf("glob(%q)", name)}, nil
}

// value converts a script constant to a runtime value.
func (l *loader) value(v starlark.Value) (vm.Value, error) {
	switch v := v.(type) {
	case starlark.NoneType:
		return vm.Null, nil
	case starlark.Bool:
		return vm.Bool(bool(v)), nil
	case starlark.Int:
		i, ok := v.Int64()
		if !ok {
			return vm.Null, fmt.Errorf("integer %s out of range", v)
		}
		return vm.Number(float32(i)), nil
	case starlark.Float:
		return vm.Number(float32(v)), nil
	case starlark.String:
		return l.b.Text(string(v)), nil
	}
	return vm.Null, fmt.Errorf("cannot use %s as a value", v.Type())
}

func (l *loader) declarations(what string, d *starlark.Dict) ([]vm.FieldDef, error) {
	if d == nil {
		return nil, nil
	}
	var out []vm.FieldDef
	for _, kv := range d.Items() {
		name, ok := starlark.AsString(kv[0])
		if !ok {
			return nil, fmt.Errorf("%s: key %s is not a string", what, kv[0])
		}
		v, err := l.value(kv[1])
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", what, name, err)
		}
		out = append(out, vm.FieldDef{Name: name, Default: v})
	}
	return out, nil
}

func (l *loader) typedef(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path, parent string
	var fields, globals *starlark.Dict
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs,
		"path", &path, "parent?", &parent, "fields?", &fields, "globals?", &globals); err != nil {
		return nil, err
	}
	fs, err := l.declarations("field", fields)
	if err != nil {
		return nil, err
	}
	gs, err := l.declarations("global", globals)
	if err != nil {
		return nil, err
	}
	l.b.TypeWithParent(path, parent)
	for _, f := range fs {
		l.b.Field(path, f.Name, f.Default)
	}
	for _, g := range gs {
		l.b.Global(path, g.Name, g.Default)
	}
	return starlark.String(cleanPath(path)), nil
}

func (l *loader) param(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var def starlark.Value = starlark.None
	var kinds *starlark.List
	var required bool
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs,
		"name", &name, "default?", &def, "kinds?", &kinds, "required?", &required); err != nil {
		return nil, err
	}
	v, err := l.value(def)
	if err != nil {
		return nil, err
	}
	p := paramValue{Name: name, Default: v, Required: required}
	if kinds != nil {
		for i := 0; i < kinds.Len(); i++ {
			s, ok := starlark.AsString(kinds.Index(i))
			if !ok {
				return nil, fmt.Errorf("param %q: kinds must be strings", name)
			}
			k, ok := vm.KindByName(s)
			if !ok {
				return nil, fmt.Errorf("param %q: unknown kind %q", name, s)
			}
			p.Kinds |= vm.MaskOf(k)
		}
	}
	return p, nil
}

func (l *loader) params(list *starlark.List) ([]vm.ProcArg, error) {
	if list == nil {
		return nil, nil
	}
	out := make([]vm.ProcArg, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		switch v := list.Index(i).(type) {
		case starlark.String:
			out = append(out, vm.ProcArg{Name: string(v)})
		case paramValue:
			out = append(out, vm.ProcArg(v))
		default:
			return nil, fmt.Errorf("argument %d: want a name or param(), got %s", i, v.Type())
		}
	}
	return out, nil
}

func (l *loader) proc(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, owner string
	var params *starlark.List
	var locals int
	var noWait bool
	var code starlark.Indexable
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs,
		"name", &name, "owner?", &owner, "args?", &params, "locals?", &locals,
		"nowait?", &noWait, "code?", &code); err != nil {
		return nil, err
	}
	ps, err := l.params(params)
	if err != nil {
		return nil, fmt.Errorf("proc %s: %w", name, err)
	}
	instrs, err := l.code(code)
	if err != nil {
		return nil, fmt.Errorf("proc %s: %w", name, err)
	}
	l.b.Proc(owner, name, ProcSpec{Args: ps, Locals: locals, NoWait: noWait}, instrs...)
	return starlark.None, nil
}

func (l *loader) native(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, owner string
	var params *starlark.List
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "owner?", &owner, "args?", &params); err != nil {
		return nil, err
	}
	ps, err := l.params(params)
	if err != nil {
		return nil, fmt.Errorf("native %s: %w", name, err)
	}
	l.b.Native(owner, name, ps...)
	return starlark.None, nil
}

func (l *loader) code(list starlark.Indexable) ([]Instr, error) {
	if list == nil {
		return nil, nil
	}
	var out []Instr
	var at vm.Location
	for i := 0; i < list.Len(); i++ {
		var entry []starlark.Value
		switch v := list.Index(i).(type) {
		case labelValue:
			out = append(out, Label(string(v)))
			continue
		case locValue:
			at = vm.Location(v)
			continue
		case starlark.String:
			entry = []starlark.Value{v}
		case starlark.Tuple:
			entry = v
		default:
			return nil, fmt.Errorf("entry %d: unexpected %s", i, v.Type())
		}
		if len(entry) == 0 {
			return nil, fmt.Errorf("entry %d: empty instruction", i)
		}
		opname, ok := starlark.AsString(entry[0])
		if !ok {
			return nil, fmt.Errorf("entry %d: opcode must be a string", i)
		}
		op, ok := vm.OpcodeByName(opname)
		if !ok {
			return nil, fmt.Errorf("entry %d: unknown opcode %q", i, opname)
		}
		in := Instr{Op: op, Loc: at}
		for _, raw := range entry[1:] {
			o, err := operand(raw)
			if err != nil {
				return nil, fmt.Errorf("entry %d (%s): %w", i, opname, err)
			}
			in.Operands = append(in.Operands, o)
		}
		out = append(out, in)
	}
	return out, nil
}

// operand maps a script operand to the Go form Builder accepts.
func operand(v starlark.Value) (any, error) {
	switch v := v.(type) {
	case starlark.String:
		return string(v), nil
	case starlark.Int:
		i, err := starlark.AsInt32(v)
		if err != nil {
			return nil, err
		}
		return i, nil
	case starlark.Float:
		return float64(v), nil
	case starlark.Bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case refValue:
		return v.ref, nil
	case labelValue:
		return string(v), nil
	}
	return nil, fmt.Errorf("unsupported operand %s", v.Type())
}
