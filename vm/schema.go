package vm

import "fmt"

type OperandKind byte

const (
	OperandArgType OperandKind = iota
	OperandStackDelta
	OperandResource
	OperandTypeID
	OperandProcID
	OperandListSize
	OperandInt
	OperandLabel
	OperandFloat
	OperandString
	OperandReference
	OperandFormatCount
	OperandConcatCount
	OperandEnumeratorID
)

var operandNames = [...]string{
	OperandArgType:      "ArgType",
	OperandStackDelta:   "StackDelta",
	OperandResource:     "Resource",
	OperandTypeID:       "TypeId",
	OperandProcID:       "ProcId",
	OperandListSize:     "ListSize",
	OperandInt:          "Int",
	OperandLabel:        "Label",
	OperandFloat:        "Float",
	OperandString:       "String",
	OperandReference:    "Reference",
	OperandFormatCount:  "FormatCount",
	OperandConcatCount:  "ConcatCount",
	OperandEnumeratorID: "EnumeratorId",
}

func (k OperandKind) String() string {
	if int(k) < len(operandNames) {
		return operandNames[k]
	}
	return fmt.Sprintf("OperandKind(%d)", k)
}

// IsCount reports whether the operand is an item count that scales the
// instruction's stack consumption.
func (k OperandKind) IsCount() bool {
	switch k {
	case OperandStackDelta, OperandListSize, OperandFormatCount, OperandConcatCount:
		return true
	}
	return false
}

// OpcodeInfo is the static shape of one opcode. An instruction removes
// Pops + CountPops*count + (reference pops) values and then pushes Pushes.
type OpcodeInfo struct {
	Name      string
	Pops      int
	Pushes    int
	CountPops int
	Operands  []OperandKind
}

func (i OpcodeInfo) HasLabel() bool {
	for _, k := range i.Operands {
		if k == OperandLabel {
			return true
		}
	}
	return false
}

func info(pops, pushes int, operands ...OperandKind) OpcodeInfo {
	return OpcodeInfo{Pops: pops, Pushes: pushes, Operands: operands}
}

func counted(pops, pushes, per int, operands ...OperandKind) OpcodeInfo {
	return OpcodeInfo{Pops: pops, Pushes: pushes, CountPops: per, Operands: operands}
}

// opcodeTable is shared by the assembler, the disassembler and the
// interpreter's operand decoding.
var opcodeTable = [opcodeCount]OpcodeInfo{
	PushNull:           info(0, 1),
	PushFloat:          info(0, 1, OperandFloat),
	PushString:         info(0, 1, OperandString),
	PushResource:       info(0, 1, OperandResource),
	PushType:           info(0, 1, OperandTypeID),
	PushProc:           info(0, 1, OperandProcID),
	PushReferenceValue: info(0, 1, OperandReference),
	Pop:                info(1, 0),
	Assign:             info(1, 1, OperandReference),
	Increment:          info(0, 1, OperandReference),
	Decrement:          info(0, 1, OperandReference),

	Add:           info(2, 1),
	Subtract:      info(2, 1),
	Multiply:      info(2, 1),
	Divide:        info(2, 1),
	Modulus:       info(2, 1),
	Power:         info(2, 1),
	BitAnd:        info(2, 1),
	BitOr:         info(2, 1),
	BitXor:        info(2, 1),
	BitShiftLeft:  info(2, 1),
	BitShiftRight: info(2, 1),
	Negate:        info(1, 1),
	BitNot:        info(1, 1),
	BooleanNot:    info(1, 1),
	IsNull:        info(1, 1),

	CompareEquals:             info(2, 1),
	CompareNotEquals:          info(2, 1),
	CompareLessThan:           info(2, 1),
	CompareLessThanOrEqual:    info(2, 1),
	CompareGreaterThan:        info(2, 1),
	CompareGreaterThanOrEqual: info(2, 1),
	IsType:                    info(2, 1),
	IsInList:                  info(2, 1),

	BooleanAnd:      info(1, 0, OperandLabel),
	BooleanOr:       info(1, 0, OperandLabel),
	Jump:            info(0, 0, OperandLabel),
	JumpIfFalse:     info(1, 0, OperandLabel),
	JumpIfTrue:      info(1, 0, OperandLabel),
	SwitchCase:      info(2, 1, OperandLabel),
	SwitchCaseRange: info(3, 1, OperandLabel),

	CreateList:                   counted(0, 1, 1, OperandListSize),
	CreateAssociativeList:        counted(0, 1, 2, OperandListSize),
	CreateListEnumerator:         info(1, 0, OperandEnumeratorID),
	CreateFilteredListEnumerator: info(1, 0, OperandEnumeratorID, OperandTypeID),
	CreateRangeEnumerator:        info(3, 0, OperandEnumeratorID),
	CreateTypeEnumerator:         info(1, 0, OperandEnumeratorID),
	Enumerate:                    info(0, 0, OperandEnumeratorID, OperandReference, OperandLabel),
	DestroyEnumerator:            info(0, 0, OperandEnumeratorID),

	DereferenceField: info(1, 1, OperandString),
	DereferenceIndex: info(2, 1),

	CreateObject:    counted(1, 1, 1, OperandArgType, OperandStackDelta),
	DeleteObject:    info(1, 0),
	Call:            counted(0, 1, 1, OperandReference, OperandArgType, OperandStackDelta),
	CallIndirect:    counted(1, 1, 1, OperandArgType, OperandStackDelta),
	DereferenceCall: counted(1, 1, 1, OperandString, OperandArgType, OperandStackDelta),
	Return:          info(1, 0),

	FormatString:      counted(0, 1, 1, OperandString, OperandFormatCount),
	MassConcatenation: counted(0, 1, 1, OperandConcatCount),

	Try:        info(0, 0, OperandLabel, OperandReference),
	TryNoValue: info(0, 0, OperandLabel),
	EndTry:     info(0, 0),
	Throw:      info(1, 0),

	Spawn: info(1, 0, OperandLabel),
	Sleep: info(1, 0),
}

func init() {
	for i := range opcodeTable {
		opcodeTable[i].Name = opcodeNames[i]
	}
}

// Info returns the schema entry for op.
func Info(op Opcode) (OpcodeInfo, bool) {
	if !op.Valid() {
		return OpcodeInfo{}, false
	}
	return opcodeTable[op], true
}
