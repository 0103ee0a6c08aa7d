package vm

import (
	"fmt"
	"io"
	"strings"
)

// Operand is one decoded operand of the annotated form. Which field is
// meaningful depends on Kind: Text for String and Resource, Label for Label,
// Ref for Reference, Float for Float, Int for everything else.
type Operand struct {
	Kind  OperandKind
	Int   int32
	Float float32
	Text  string
	Label string
	Ref   Reference
}

func (o Operand) Format(st *StringTable) string {
	switch o.Kind {
	case OperandFloat:
		return FormatNumber(o.Float)
	case OperandString:
		return fmt.Sprintf("%q", o.Text)
	case OperandResource:
		return fmt.Sprintf("'%s'", o.Text)
	case OperandLabel:
		return o.Label
	case OperandReference:
		return o.Ref.Format(st)
	case OperandArgType:
		return ArgType(o.Int).String()
	case OperandTypeID:
		return fmt.Sprintf("type#%d", o.Int)
	case OperandProcID:
		return fmt.Sprintf("proc#%d", o.Int)
	}
	return fmt.Sprint(o.Int)
}

// Instruction is one entry of the annotated mirror of a byte stream. It is
// for diagnostics and reassembly only; the interpreter never executes it.
type Instruction struct {
	Offset   int
	Op       Opcode
	Operands []Operand
	Loc      Location
	// Depth is the running stack depth after the instruction.
	Depth int
	// Labels defined at Offset.
	Labels []string
}

func (in Instruction) Format(st *StringTable) string {
	var sb strings.Builder
	sb.WriteString(in.Op.String())
	for i, o := range in.Operands {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(o.Format(st))
	}
	return sb.String()
}

// Listing is the annotated form of one proc.
type Listing struct {
	Instructions  []Instruction
	EndLabels     []string
	MaxStackDepth int
}

// At returns the instruction starting at or containing pc.
func (l *Listing) At(pc int) (Instruction, bool) {
	var found Instruction
	ok := false
	for _, in := range l.Instructions {
		if in.Offset > pc {
			break
		}
		found, ok = in, true
	}
	return found, ok
}

// Write prints the listing, one instruction per line with its offset and
// running depth.
func (l *Listing) Write(w io.Writer, st *StringTable) error {
	for _, in := range l.Instructions {
		for _, lbl := range in.Labels {
			if _, err := fmt.Fprintf(w, "%s:\n", lbl); err != nil {
				return err
			}
		}
		line := fmt.Sprintf("  %04d  [%2d]  %s", in.Offset, in.Depth, in.Format(st))
		if !in.Loc.IsZero() {
			line += "    ; " + in.Loc.String()
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	for _, lbl := range l.EndLabels {
		if _, err := fmt.Fprintf(w, "%s:\n", lbl); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "  ; max stack depth %d\n", l.MaxStackDepth)
	return err
}
