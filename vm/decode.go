package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrEndOfCode is returned when reading at or past the end of a proc.
var ErrEndOfCode = errors.New("end of code block")

// Reader decodes a byte stream one operand at a time. The interpreter and the
// disassembler share it so the two can never disagree on the encoding.
type Reader struct {
	Code []byte
	PC   int
}

func (r *Reader) truncated(what string) error {
	return &RuntimeFault{
		Kind:    IndexOutOfBounds,
		PC:      r.PC,
		Message: fmt.Sprintf("truncated %s at offset %d", what, r.PC),
	}
}

func (r *Reader) ReadOpcode() (Opcode, error) {
	if r.PC >= len(r.Code) {
		return 0, ErrEndOfCode
	}
	op := Opcode(r.Code[r.PC])
	if !op.Valid() {
		return 0, &RuntimeFault{Kind: InvalidProc, PC: r.PC, Message: fmt.Sprintf("invalid opcode %#x", byte(op))}
	}
	r.PC++
	return op, nil
}

func (r *Reader) ReadByte() (byte, error) {
	if r.PC+1 > len(r.Code) {
		return 0, r.truncated("byte")
	}
	b := r.Code[r.PC]
	r.PC++
	return b, nil
}

func (r *Reader) ReadInt32() (int32, error) {
	if r.PC+4 > len(r.Code) {
		return 0, r.truncated("int")
	}
	v := int32(binary.LittleEndian.Uint32(r.Code[r.PC:]))
	r.PC += 4
	return v, nil
}

func (r *Reader) ReadFloat() (float32, error) {
	if r.PC+4 > len(r.Code) {
		return 0, r.truncated("float")
	}
	v := math.Float32frombits(binary.LittleEndian.Uint32(r.Code[r.PC:]))
	r.PC += 4
	return v, nil
}

func (r *Reader) ReadArgType() (ArgType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	t := ArgType(b)
	if !t.Valid() {
		return 0, &RuntimeFault{Kind: InvalidProc, PC: r.PC - 1, Message: fmt.Sprintf("invalid argument type %d", b)}
	}
	return t, nil
}

func (r *Reader) ReadReference() (Reference, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return Reference{}, err
	}
	ref := Reference{Kind: RefKind(tag)}
	switch ref.Kind {
	case RefArgument, RefLocal:
		b, err := r.ReadByte()
		if err != nil {
			return ref, err
		}
		ref.Index = int32(b)
	case RefGlobal, RefGlobalProc:
		if ref.Index, err = r.ReadInt32(); err != nil {
			return ref, err
		}
	case RefField, RefSrcField, RefSrcProc:
		v, err := r.ReadInt32()
		if err != nil {
			return ref, err
		}
		ref.Name = uint32(v)
	default:
		if ref.Kind >= refKindCount {
			return ref, &RuntimeFault{Kind: InvalidProc, PC: r.PC - 1, Message: fmt.Sprintf("invalid reference tag %d", tag)}
		}
	}
	return ref, nil
}

// ReadOperand decodes one operand of the given kind. Text operands are
// resolved through st; label operands come back with Int set to the target
// offset and no name.
func (r *Reader) ReadOperand(kind OperandKind, st *StringTable) (Operand, error) {
	o := Operand{Kind: kind}
	var err error
	switch kind {
	case OperandArgType:
		var t ArgType
		t, err = r.ReadArgType()
		o.Int = int32(t)
	case OperandFloat:
		o.Float, err = r.ReadFloat()
	case OperandReference:
		o.Ref, err = r.ReadReference()
	case OperandString, OperandResource:
		o.Int, err = r.ReadInt32()
		if err == nil {
			text, ok := st.Lookup(uint32(o.Int))
			if !ok {
				return o, &RuntimeFault{Kind: InvalidProc, PC: r.PC - 4, Message: fmt.Sprintf("unknown string id %d", o.Int)}
			}
			o.Text = text
		}
	default:
		o.Int, err = r.ReadInt32()
	}
	return o, err
}

func labelName(offset int32) string {
	return fmt.Sprintf("L%d", offset)
}

// Disassemble decodes a proc's byte stream into its annotated listing. Jump
// targets get synthetic labels named after their offsets, and the running
// depth is recomputed from the schema.
func Disassemble(code []byte, st *StringTable) (*Listing, error) {
	l, targets, err := decodeListing(code, st)
	if err != nil {
		return nil, err
	}
	if err := l.attachLabels(targets, len(code)); err != nil {
		return nil, err
	}
	return l, nil
}

// popsOf is the number of values the decoded instruction removes from the
// stack before pushing.
func popsOf(inf OpcodeInfo, operands []Operand) int {
	count, refPops := 0, 0
	for _, o := range operands {
		switch {
		case o.Kind == OperandReference:
			refPops += o.Ref.Pops()
		case o.Kind.IsCount():
			count += int(o.Int)
		}
	}
	return inf.Pops + inf.CountPops*count + refPops
}

func decodeListing(code []byte, st *StringTable) (*Listing, map[int32]bool, error) {
	r := &Reader{Code: code}
	l := &Listing{}
	targets := map[int32]bool{}
	depth := 0
	for r.PC < len(code) {
		start := r.PC
		op, err := r.ReadOpcode()
		if err != nil {
			return nil, nil, err
		}
		inf, _ := Info(op)
		in := Instruction{Offset: start, Op: op}
		for _, kind := range inf.Operands {
			o, err := r.ReadOperand(kind, st)
			if err != nil {
				return nil, nil, err
			}
			if kind == OperandLabel {
				targets[o.Int] = true
				o.Label = labelName(o.Int)
			}
			in.Operands = append(in.Operands, o)
		}
		depth += inf.Pushes - popsOf(inf, in.Operands)
		if depth > l.MaxStackDepth {
			l.MaxStackDepth = depth
		}
		in.Depth = depth
		l.Instructions = append(l.Instructions, in)
	}
	return l, targets, nil
}

// attachLabels names every jump target. A target must be an instruction
// start or the end of the code.
func (l *Listing) attachLabels(targets map[int32]bool, size int) error {
	offsets := make([]int, 0, len(targets))
	for t := range targets {
		offsets = append(offsets, int(t))
	}
	sort.Ints(offsets)
	for _, off := range offsets {
		if off == size {
			l.EndLabels = append(l.EndLabels, labelName(int32(off)))
			continue
		}
		i := sort.Search(len(l.Instructions), func(i int) bool {
			return l.Instructions[i].Offset >= off
		})
		if i == len(l.Instructions) || l.Instructions[i].Offset != off {
			return &RuntimeFault{Kind: InvalidProc, PC: off, Message: fmt.Sprintf("jump target %d is not an instruction start", off)}
		}
		l.Instructions[i].Labels = append(l.Instructions[i].Labels, labelName(int32(off)))
	}
	return nil
}
