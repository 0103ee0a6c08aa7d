package vm

import "fmt"

type Opcode byte

const (
	// | null
	PushNull Opcode = iota
	// | f
	PushFloat
	// | "s"
	PushString
	// | 'r'
	PushResource
	// | /type
	PushType
	// | /proc
	PushProc
	// [ref operands] | ref's value
	PushReferenceValue
	// A | -
	Pop
	// [ref operands] A | A (ref = A)
	Assign
	// [ref operands] | ++ref
	Increment
	// [ref operands] | --ref
	Decrement

	// A B | A op B
	Add
	Subtract
	Multiply
	Divide
	Modulus
	Power
	BitAnd
	BitOr
	BitXor
	BitShiftLeft
	BitShiftRight
	// A | op A
	Negate
	BitNot
	BooleanNot
	IsNull

	// A B | A cmp B
	CompareEquals
	CompareNotEquals
	CompareLessThan
	CompareLessThanOrEqual
	CompareGreaterThan
	CompareGreaterThanOrEqual
	// A /type | istype(A, /type)
	IsType
	// A L | A in L
	IsInList

	// A | (A and jump when false, else continue)
	BooleanAnd
	// A | (A and jump when true, else continue)
	BooleanOr
	// | (jump)
	Jump
	// A | (jump when !A)
	JumpIfFalse
	// A | (jump when A)
	JumpIfTrue
	// V C | (jump when V == C) or V
	SwitchCase
	// V LO HI | (jump when LO <= V <= HI) or V
	SwitchCaseRange

	// A1..An | list(A1..An)
	CreateList
	// K1 V1..Kn Vn | list(K1=V1..Kn=Vn)
	CreateAssociativeList
	// L | (enumerator[id] over L)
	CreateListEnumerator
	// L | (enumerator[id] over the objects in L of /type)
	CreateFilteredListEnumerator
	// START END STEP | (enumerator[id] from START to END by STEP)
	CreateRangeEnumerator
	// T | (enumerator[id] over live objects of type T, every object when T is null)
	CreateTypeEnumerator
	// | (ref = next, or jump when exhausted)
	Enumerate
	// | (drop enumerator[id])
	DestroyEnumerator

	// O | O.field
	DereferenceField
	// L I | L[I]
	DereferenceIndex

	// /type A1..An | new /type(A1..An)
	CreateObject
	// O | (del O)
	DeleteObject
	// [ref operands] A1..An | ref(A1..An)
	Call
	// P A1..An | P(A1..An)
	CallIndirect
	// O A1..An | O.name(A1..An)
	DereferenceCall
	// A | (return A)
	Return

	// A1..An | format(template, A1..An)
	FormatString
	// A1..An | A1 + .. + An as text
	MassConcatenation

	// | (push handler)
	Try
	TryNoValue
	// | (pop handler)
	EndTry
	// A | (fault with A)
	Throw

	// D | (clone frame into a new thread after D)
	Spawn
	// D | (suspend for D)
	Sleep

	opcodeCount
)

var opcodeNames = [...]string{
	PushNull:                     "PushNull",
	PushFloat:                    "PushFloat",
	PushString:                   "PushString",
	PushResource:                 "PushResource",
	PushType:                     "PushType",
	PushProc:                     "PushProc",
	PushReferenceValue:           "PushReferenceValue",
	Pop:                          "Pop",
	Assign:                       "Assign",
	Increment:                    "Increment",
	Decrement:                    "Decrement",
	Add:                          "Add",
	Subtract:                     "Subtract",
	Multiply:                     "Multiply",
	Divide:                       "Divide",
	Modulus:                      "Modulus",
	Power:                        "Power",
	BitAnd:                       "BitAnd",
	BitOr:                        "BitOr",
	BitXor:                       "BitXor",
	BitShiftLeft:                 "BitShiftLeft",
	BitShiftRight:                "BitShiftRight",
	Negate:                       "Negate",
	BitNot:                       "BitNot",
	BooleanNot:                   "BooleanNot",
	IsNull:                       "IsNull",
	CompareEquals:                "CompareEquals",
	CompareNotEquals:             "CompareNotEquals",
	CompareLessThan:              "CompareLessThan",
	CompareLessThanOrEqual:       "CompareLessThanOrEqual",
	CompareGreaterThan:           "CompareGreaterThan",
	CompareGreaterThanOrEqual:    "CompareGreaterThanOrEqual",
	IsType:                       "IsType",
	IsInList:                     "IsInList",
	BooleanAnd:                   "BooleanAnd",
	BooleanOr:                    "BooleanOr",
	Jump:                         "Jump",
	JumpIfFalse:                  "JumpIfFalse",
	JumpIfTrue:                   "JumpIfTrue",
	SwitchCase:                   "SwitchCase",
	SwitchCaseRange:              "SwitchCaseRange",
	CreateList:                   "CreateList",
	CreateAssociativeList:        "CreateAssociativeList",
	CreateListEnumerator:         "CreateListEnumerator",
	CreateFilteredListEnumerator: "CreateFilteredListEnumerator",
	CreateRangeEnumerator:        "CreateRangeEnumerator",
	CreateTypeEnumerator:         "CreateTypeEnumerator",
	Enumerate:                    "Enumerate",
	DestroyEnumerator:            "DestroyEnumerator",
	DereferenceField:             "DereferenceField",
	DereferenceIndex:             "DereferenceIndex",
	CreateObject:                 "CreateObject",
	DeleteObject:                 "DeleteObject",
	Call:                         "Call",
	CallIndirect:                 "CallIndirect",
	DereferenceCall:              "DereferenceCall",
	Return:                       "Return",
	FormatString:                 "FormatString",
	MassConcatenation:            "MassConcatenation",
	Try:                          "Try",
	TryNoValue:                   "TryNoValue",
	EndTry:                       "EndTry",
	Throw:                        "Throw",
	Spawn:                        "Spawn",
	Sleep:                        "Sleep",
}

func (o Opcode) String() string {
	if o < opcodeCount {
		return opcodeNames[o]
	}
	return fmt.Sprintf("Opcode(%#x)", byte(o))
}

func (o Opcode) Valid() bool {
	return o < opcodeCount
}

func OpcodeByName(name string) (Opcode, bool) {
	for i, n := range opcodeNames {
		if n == name {
			return Opcode(i), true
		}
	}
	return 0, false
}

// Opcodes lists every defined opcode in byte order.
func Opcodes() []Opcode {
	out := make([]Opcode, 0, opcodeCount)
	for o := Opcode(0); o < opcodeCount; o++ {
		out = append(out, o)
	}
	return out
}
