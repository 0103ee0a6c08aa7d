package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

type labelRef struct {
	pos  int
	name string
	loc  Location
}

type pendingInstr struct {
	info    OpcodeInfo
	queue   []OperandKind
	count   int
	refPops int
	ins     Instruction
}

// Assembler turns one proc's instruction sequence into bytecode. Each
// EmitOpcode queues the operand kinds the schema requires; the matching
// Emit* calls must follow in order before the next opcode. Stack depth is
// settled once the last operand of an instruction is written.
type Assembler struct {
	proc    string
	strings *StringTable

	buf        []byte
	depth      int
	maxDepth   int
	cur        *pendingInstr
	labels     map[string]int
	unresolved []labelRef
	listing    Listing
	pendingLbl []string
	source     []SourceMark
	lastLoc    Location
	err        error

	// frame bounds for argument and local references; -1 when unchecked
	args, locals int
}

// Assembled is the output for one proc.
type Assembled struct {
	Bytecode      []byte
	MaxStackDepth int
	Labels        map[string]int
	Listing       *Listing
	Source        []SourceMark
}

func NewAssembler(proc string, st *StringTable) *Assembler {
	return &Assembler{
		proc:    proc,
		strings: st,
		labels:  make(map[string]int),
		args:    -1,
		locals:  -1,
	}
}

// SetFrame bounds argument and local references to the proc's declared
// slots.
func (a *Assembler) SetFrame(args, locals int) {
	a.args, a.locals = args, locals
}

func (a *Assembler) fail(kind AssemblyErrorKind, loc Location, format string, args ...any) error {
	if a.err != nil {
		return a.err
	}
	a.err = &AssemblyError{
		Kind:    kind,
		Proc:    a.proc,
		Offset:  len(a.buf),
		Loc:     loc,
		Message: fmt.Sprintf(format, args...),
	}
	return a.err
}

// Err returns the first error the assembler hit, if any.
func (a *Assembler) Err() error {
	return a.err
}

func (a *Assembler) Depth() int {
	return a.depth
}

func (a *Assembler) MaxStackDepth() int {
	return a.maxDepth
}

// NewLabel returns a fresh label name that cannot collide with front-end
// names.
func (a *Assembler) NewLabel() string {
	return "L-" + uuid.NewString()
}

func (a *Assembler) EmitOpcode(op Opcode, loc Location) error {
	if a.err != nil {
		return a.err
	}
	if a.cur != nil {
		return a.fail(UnexpectedOperand, loc, "%s still expects %s before %s", a.cur.ins.Op, a.cur.queue[0], op)
	}
	inf, ok := Info(op)
	if !ok {
		return a.fail(UnexpectedOperand, loc, "unknown opcode %#x", byte(op))
	}
	if loc != a.lastLoc && !loc.IsZero() {
		a.source = append(a.source, SourceMark{Offset: len(a.buf), Loc: loc})
		a.lastLoc = loc
	}
	a.cur = &pendingInstr{
		info:  inf,
		queue: inf.Operands,
		ins: Instruction{
			Offset: len(a.buf),
			Op:     op,
			Loc:    loc,
			Labels: a.pendingLbl,
		},
	}
	a.pendingLbl = nil
	a.buf = append(a.buf, byte(op))
	if len(inf.Operands) == 0 {
		return a.finishInstr()
	}
	return nil
}

func (a *Assembler) expect(kind OperandKind) error {
	if a.err != nil {
		return a.err
	}
	if a.cur == nil {
		return a.fail(UnexpectedOperand, a.lastLoc, "%s operand with no instruction pending", kind)
	}
	if a.cur.queue[0] != kind {
		return a.fail(UnexpectedOperand, a.cur.ins.Loc, "%s expects %s, got %s", a.cur.ins.Op, a.cur.queue[0], kind)
	}
	a.cur.queue = a.cur.queue[1:]
	return nil
}

func (a *Assembler) operandDone(o Operand) error {
	a.cur.ins.Operands = append(a.cur.ins.Operands, o)
	if len(a.cur.queue) == 0 {
		return a.finishInstr()
	}
	return nil
}

func (a *Assembler) finishInstr() error {
	p := a.cur
	a.cur = nil
	pops := p.info.Pops + p.info.CountPops*p.count + p.refPops
	if err := a.resize(-pops, p.ins.Loc, p.ins.Op); err != nil {
		return err
	}
	if err := a.resize(p.info.Pushes, p.ins.Loc, p.ins.Op); err != nil {
		return err
	}
	p.ins.Depth = a.depth
	a.listing.Instructions = append(a.listing.Instructions, p.ins)
	return nil
}

func (a *Assembler) resize(delta int, loc Location, op Opcode) error {
	if a.depth+delta < 0 {
		return a.fail(NegativeStackDepth, loc, "%s needs %d values, stack holds %d", op, -delta, a.depth)
	}
	a.depth += delta
	if a.depth > a.maxDepth {
		a.maxDepth = a.depth
	}
	return nil
}

// ResizeStack adjusts the running depth outside of the schema, for front
// ends that model effects the table cannot express.
func (a *Assembler) ResizeStack(delta int, loc Location) error {
	if a.err != nil {
		return a.err
	}
	if a.depth+delta < 0 {
		return a.fail(NegativeStackDepth, loc, "resize by %d at depth %d", delta, a.depth)
	}
	a.depth += delta
	if a.depth > a.maxDepth {
		a.maxDepth = a.depth
	}
	return nil
}

func (a *Assembler) putInt32(v int32) {
	a.buf = binary.LittleEndian.AppendUint32(a.buf, uint32(v))
}

func (a *Assembler) emitInt(kind OperandKind, v int32) error {
	if err := a.expect(kind); err != nil {
		return err
	}
	if kind.IsCount() {
		if v < 0 {
			return a.fail(UnexpectedOperand, a.cur.ins.Loc, "negative %s %d", kind, v)
		}
		a.cur.count += int(v)
	}
	a.putInt32(v)
	return a.operandDone(Operand{Kind: kind, Int: v})
}

func (a *Assembler) EmitInt(v int32) error         { return a.emitInt(OperandInt, v) }
func (a *Assembler) EmitTypeID(id TypeID) error    { return a.emitInt(OperandTypeID, int32(id)) }
func (a *Assembler) EmitProcID(id ProcID) error    { return a.emitInt(OperandProcID, int32(id)) }
func (a *Assembler) EmitStackDelta(n int) error    { return a.emitInt(OperandStackDelta, int32(n)) }
func (a *Assembler) EmitListSize(n int) error      { return a.emitInt(OperandListSize, int32(n)) }
func (a *Assembler) EmitFormatCount(n int) error   { return a.emitInt(OperandFormatCount, int32(n)) }
func (a *Assembler) EmitConcatCount(n int) error   { return a.emitInt(OperandConcatCount, int32(n)) }
func (a *Assembler) EmitEnumeratorID(id int) error { return a.emitInt(OperandEnumeratorID, int32(id)) }

func (a *Assembler) EmitArgType(t ArgType) error {
	if err := a.expect(OperandArgType); err != nil {
		return err
	}
	if !t.Valid() {
		return a.fail(UnexpectedOperand, a.cur.ins.Loc, "invalid argument type %d", byte(t))
	}
	a.buf = append(a.buf, byte(t))
	return a.operandDone(Operand{Kind: OperandArgType, Int: int32(t)})
}

func (a *Assembler) EmitFloat(f float32) error {
	if err := a.expect(OperandFloat); err != nil {
		return err
	}
	a.buf = binary.LittleEndian.AppendUint32(a.buf, math.Float32bits(f))
	return a.operandDone(Operand{Kind: OperandFloat, Float: f})
}

func (a *Assembler) emitText(kind OperandKind, s string) error {
	if err := a.expect(kind); err != nil {
		return err
	}
	a.putInt32(int32(a.strings.Intern(s)))
	return a.operandDone(Operand{Kind: kind, Text: s})
}

func (a *Assembler) EmitString(s string) error   { return a.emitText(OperandString, s) }
func (a *Assembler) EmitResource(s string) error { return a.emitText(OperandResource, s) }

// EmitLabelRef reserves four bytes for the absolute offset of name, patched
// by ResolveLabels.
func (a *Assembler) EmitLabelRef(name string) error {
	if err := a.expect(OperandLabel); err != nil {
		return err
	}
	a.unresolved = append(a.unresolved, labelRef{pos: len(a.buf), name: name, loc: a.cur.ins.Loc})
	a.putInt32(0)
	return a.operandDone(Operand{Kind: OperandLabel, Label: name})
}

func (a *Assembler) EmitReference(ref Reference) error {
	if err := a.expect(OperandReference); err != nil {
		return err
	}
	if !ref.Valid() {
		return a.fail(UnexpectedOperand, a.cur.ins.Loc, "invalid reference %s", ref)
	}
	if err := frameCheck(ref, a.args, a.locals); err != "" {
		return a.fail(UnexpectedOperand, a.cur.ins.Loc, "%s", err)
	}
	a.cur.refPops += ref.Pops()
	a.buf = ref.appendTo(a.buf)
	return a.operandDone(Operand{Kind: OperandReference, Ref: ref})
}

// EmitOperand writes a decoded operand back, dispatching on its kind.
func (a *Assembler) EmitOperand(o Operand) error {
	switch o.Kind {
	case OperandArgType:
		return a.EmitArgType(ArgType(o.Int))
	case OperandFloat:
		return a.EmitFloat(o.Float)
	case OperandString, OperandResource:
		return a.emitText(o.Kind, o.Text)
	case OperandLabel:
		return a.EmitLabelRef(o.Label)
	case OperandReference:
		return a.EmitReference(o.Ref)
	}
	return a.emitInt(o.Kind, o.Int)
}

// MarkLabel defines name at the current offset.
func (a *Assembler) MarkLabel(name string) error {
	if a.err != nil {
		return a.err
	}
	if a.cur != nil {
		return a.fail(UnexpectedOperand, a.cur.ins.Loc, "label %s inside %s operands", name, a.cur.ins.Op)
	}
	if _, ok := a.labels[name]; ok {
		return a.fail(UnexpectedOperand, a.lastLoc, "label %s defined twice", name)
	}
	a.labels[name] = len(a.buf)
	a.pendingLbl = append(a.pendingLbl, name)
	return nil
}

// ResolveLabels back-patches every recorded label reference. References to
// names never marked are reported as UnresolvedLabel.
func (a *Assembler) ResolveLabels() error {
	if a.err != nil {
		return a.err
	}
	var errs []error
	var left []labelRef
	for _, ref := range a.unresolved {
		target, ok := a.labels[ref.name]
		if !ok {
			left = append(left, ref)
			errs = append(errs, &AssemblyError{
				Kind:    UnresolvedLabel,
				Proc:    a.proc,
				Offset:  ref.pos,
				Loc:     ref.loc,
				Message: fmt.Sprintf("label %s is never defined", ref.name),
			})
			continue
		}
		binary.LittleEndian.PutUint32(a.buf[ref.pos:], uint32(target))
	}
	a.unresolved = left
	if len(errs) > 0 {
		a.err = errs[0]
		return errors.Join(errs...)
	}
	return nil
}

// Finish resolves labels and returns the assembled proc.
func (a *Assembler) Finish() (*Assembled, error) {
	if a.err != nil {
		return nil, a.err
	}
	if a.cur != nil {
		return nil, a.fail(UnexpectedOperand, a.cur.ins.Loc, "%s is missing %s", a.cur.ins.Op, a.cur.queue[0])
	}
	if err := a.ResolveLabels(); err != nil {
		return nil, err
	}
	a.listing.EndLabels = a.pendingLbl
	a.listing.MaxStackDepth = a.maxDepth
	labels := make(map[string]int, len(a.labels))
	for k, v := range a.labels {
		labels[k] = v
	}
	return &Assembled{
		Bytecode:      a.buf,
		MaxStackDepth: a.maxDepth,
		Labels:        labels,
		Listing:       &a.listing,
		Source:        a.source,
	}, nil
}

// Reassemble rebuilds a byte stream from an annotated listing.
func Reassemble(proc string, l *Listing, st *StringTable) (*Assembled, error) {
	a := NewAssembler(proc, st)
	for _, in := range l.Instructions {
		for _, lbl := range in.Labels {
			if err := a.MarkLabel(lbl); err != nil {
				return nil, err
			}
		}
		if err := a.EmitOpcode(in.Op, in.Loc); err != nil {
			return nil, err
		}
		for _, o := range in.Operands {
			if err := a.EmitOperand(o); err != nil {
				return nil, err
			}
		}
	}
	for _, lbl := range l.EndLabels {
		if err := a.MarkLabel(lbl); err != nil {
			return nil, err
		}
	}
	return a.Finish()
}
