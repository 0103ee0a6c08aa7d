package vm

import (
	"errors"
	"fmt"
)

// Verify checks the bytecode of every proc the way the assembler would have:
// opcodes and operands decode, jump targets land on instruction starts,
// the running depth never goes negative, and type, proc, string and slot
// operands are in range. A proc that fails is marked Invalid; the joined
// errors are returned and the rest of the program stays usable.
func (p *Program) Verify(st *StringTable) error {
	var errs []error
	for _, proc := range p.Procs {
		if proc.Native() || proc.Invalid != "" {
			continue
		}
		if err := p.VerifyProc(proc, st); err != nil {
			proc.Invalid = err.Error()
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// VerifyProc checks one proc and raises its MaxStackDepth to the depth its
// code actually reaches.
func (p *Program) VerifyProc(proc *Proc, st *StringTable) error {
	path := p.ProcPath(proc.ID)
	fail := func(kind AssemblyErrorKind, off int, format string, args ...any) error {
		return &AssemblyError{
			Kind:    kind,
			Proc:    path,
			Offset:  off,
			Loc:     proc.LocationAt(off),
			Message: fmt.Sprintf(format, args...),
		}
	}

	l, targets, err := decodeListing(proc.Bytecode, st)
	if err != nil {
		f := AsFault(err)
		return fail(UnexpectedOperand, f.PC, "%s", f.Message)
	}
	if err := l.attachLabels(targets, len(proc.Bytecode)); err != nil {
		f := AsFault(err)
		return fail(UnresolvedLabel, f.PC, "%s", f.Message)
	}

	depth := 0
	for _, in := range l.Instructions {
		inf, _ := Info(in.Op)
		for _, o := range in.Operands {
			if msg := p.operandCheck(proc, o, st); msg != "" {
				return fail(UnexpectedOperand, in.Offset, "%s: %s", in.Op, msg)
			}
		}
		pops := popsOf(inf, in.Operands)
		if depth < pops {
			return fail(NegativeStackDepth, in.Offset, "%s needs %d values, stack holds %d", in.Op, pops, depth)
		}
		depth += inf.Pushes - pops
	}
	if l.MaxStackDepth > proc.MaxStackDepth {
		proc.MaxStackDepth = l.MaxStackDepth
	}
	return nil
}

func (p *Program) operandCheck(proc *Proc, o Operand, st *StringTable) string {
	switch o.Kind {
	case OperandTypeID:
		if o.Int < 0 || int(o.Int) >= len(p.Types) {
			return fmt.Sprintf("type id %d out of range", o.Int)
		}
	case OperandProcID:
		if o.Int < 0 || int(o.Int) >= len(p.Procs) {
			return fmt.Sprintf("proc id %d out of range", o.Int)
		}
	case OperandReference:
		r := o.Ref
		if !r.Valid() {
			return fmt.Sprintf("invalid reference %s", r)
		}
		if msg := frameCheck(r, len(proc.Args), proc.Locals); msg != "" {
			return msg
		}
		switch r.Kind {
		case RefGlobalProc:
			if int(r.Index) >= len(p.Procs) {
				return fmt.Sprintf("%s out of range", r)
			}
		case RefField, RefSrcField, RefSrcProc:
			if _, ok := st.Lookup(r.Name); !ok {
				return fmt.Sprintf("%s names unknown string %d", r.Kind, r.Name)
			}
		}
	default:
		if o.Kind.IsCount() && o.Int < 0 {
			return fmt.Sprintf("negative %s %d", o.Kind, o.Int)
		}
	}
	return ""
}
