package vm

import (
	"fmt"
	"math"
	"strconv"
)

type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindNumber
	KindString
	KindObject
	KindList
	KindType
	KindProc
	KindResource
)

var kindNames = [...]string{
	KindNull:     "null",
	KindNumber:   "num",
	KindString:   "text",
	KindObject:   "obj",
	KindList:     "list",
	KindType:     "type",
	KindProc:     "proc",
	KindResource: "resource",
}

func (k ValueKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// KindByName maps the names used in argument declarations ("num", "text", ...)
// back to a kind.
func KindByName(name string) (ValueKind, bool) {
	for i, n := range kindNames {
		if n == name {
			return ValueKind(i), true
		}
	}
	return 0, false
}

// KindMask is a set of value kinds, one bit per kind. The zero mask accepts
// anything.
type KindMask uint16

func MaskOf(kinds ...ValueKind) KindMask {
	var m KindMask
	for _, k := range kinds {
		m |= 1 << k
	}
	return m
}

func (m KindMask) Allows(k ValueKind) bool {
	return m == 0 || m&(1<<k) != 0
}

// Handle names a heap slot (object or list). The zero handle is never valid.
type Handle uint64

// Value is the tagged runtime value. Ref holds the interned string id, heap
// handle, type id, proc id or resource string id depending on Kind. The
// struct is comparable, so == gives by-value equality for scalars and
// identity for heap references.
type Value struct {
	Kind ValueKind `msgpack:"k"`
	Num  float32   `msgpack:"n,omitempty"`
	Ref  uint64    `msgpack:"r,omitempty"`
}

var Null = Value{}

func Number(f float32) Value   { return Value{Kind: KindNumber, Num: f} }
func Bool(b bool) Value        { return Number(boolNum(b)) }
func String(id uint32) Value   { return Value{Kind: KindString, Ref: uint64(id)} }
func Object(h Handle) Value    { return Value{Kind: KindObject, Ref: uint64(h)} }
func List(h Handle) Value      { return Value{Kind: KindList, Ref: uint64(h)} }
func Type(id TypeID) Value     { return Value{Kind: KindType, Ref: uint64(id)} }
func ProcRef(id ProcID) Value  { return Value{Kind: KindProc, Ref: uint64(id)} }
func Resource(id uint32) Value { return Value{Kind: KindResource, Ref: uint64(id)} }

func boolNum(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

func (v Value) IsNull() bool { return v.Kind == KindNull }

func (v Value) Equals(o Value) bool {
	return v == o
}

// Truthy reports DM truthiness. The empty string is always interned as id 0,
// so string truthiness needs no table lookup.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNull:
		return false
	case KindNumber:
		return v.Num != 0
	case KindString:
		return v.Ref != 0
	default:
		return true
	}
}

func (v Value) kindError(want ValueKind) error {
	return &RuntimeFault{
		Kind:    TypeMismatch,
		Message: fmt.Sprintf("expected %s, got %s", want, v.Kind),
	}
}

func (v Value) AsNumber() (float32, error) {
	if v.Kind != KindNumber {
		return 0, v.kindError(KindNumber)
	}
	return v.Num, nil
}

func (v Value) AsStringID() (uint32, error) {
	if v.Kind != KindString {
		return 0, v.kindError(KindString)
	}
	return uint32(v.Ref), nil
}

func (v Value) AsObject() (Handle, error) {
	if v.Kind != KindObject {
		return 0, v.kindError(KindObject)
	}
	return Handle(v.Ref), nil
}

func (v Value) AsList() (Handle, error) {
	if v.Kind != KindList {
		return 0, v.kindError(KindList)
	}
	return Handle(v.Ref), nil
}

func (v Value) AsType() (TypeID, error) {
	if v.Kind != KindType {
		return 0, v.kindError(KindType)
	}
	return TypeID(v.Ref), nil
}

func (v Value) AsProc() (ProcID, error) {
	if v.Kind != KindProc {
		return 0, v.kindError(KindProc)
	}
	return ProcID(v.Ref), nil
}

func (v Value) AsResource() (uint32, error) {
	if v.Kind != KindResource {
		return 0, v.kindError(KindResource)
	}
	return uint32(v.Ref), nil
}

// AsInt truncates a number toward zero. Null reads as 0.
func (v Value) AsInt() (int32, error) {
	if v.Kind == KindNull {
		return 0, nil
	}
	f, err := v.AsNumber()
	if err != nil {
		return 0, err
	}
	return int32(f), nil
}

func FormatNumber(f float32) string {
	if math.IsInf(float64(f), 1) {
		return "inf"
	}
	if math.IsInf(float64(f), -1) {
		return "-inf"
	}
	return strconv.FormatFloat(float64(f), 'g', 6, 32)
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindNumber:
		return FormatNumber(v.Num)
	default:
		return fmt.Sprintf("%s#%d", v.Kind, v.Ref)
	}
}
