package vm

import (
	"encoding/binary"
	"fmt"
)

type RefKind byte

const (
	RefSrc RefKind = iota
	RefSelf
	RefUsr
	RefArgs
	RefWorld
	RefSuperProc
	RefListIndex
	RefArgument
	RefLocal
	RefGlobal
	RefGlobalProc
	RefField
	RefSrcField
	RefSrcProc
	RefCallee
	RefCaller
	refKindCount
)

var refNames = [...]string{
	RefSrc:        "src",
	RefSelf:       "self",
	RefUsr:        "usr",
	RefArgs:       "args",
	RefWorld:      "world",
	RefSuperProc:  "super",
	RefListIndex:  "list-index",
	RefArgument:   "arg",
	RefLocal:      "local",
	RefGlobal:     "global",
	RefGlobalProc: "global-proc",
	RefField:      "field",
	RefSrcField:   "src-field",
	RefSrcProc:    "src-proc",
	RefCallee:     "callee",
	RefCaller:     "caller",
}

func (k RefKind) String() string {
	if k < refKindCount {
		return refNames[k]
	}
	return fmt.Sprintf("RefKind(%d)", byte(k))
}

// Reference is a readable/writable location named by an instruction operand.
// Argument and Local use Index as a byte-sized slot, Global and GlobalProc use
// it as a slot or proc id, and the field kinds keep an interned name in Name.
// Self is the frame's implicit return value.
type Reference struct {
	Kind  RefKind `msgpack:"k"`
	Index int32   `msgpack:"i,omitempty"`
	Name  uint32  `msgpack:"n,omitempty"`
}

func SrcRef() Reference            { return Reference{Kind: RefSrc} }
func SelfRef() Reference           { return Reference{Kind: RefSelf} }
func UsrRef() Reference            { return Reference{Kind: RefUsr} }
func ArgsRef() Reference           { return Reference{Kind: RefArgs} }
func WorldRef() Reference          { return Reference{Kind: RefWorld} }
func SuperRef() Reference          { return Reference{Kind: RefSuperProc} }
func ListIndexRef() Reference      { return Reference{Kind: RefListIndex} }
func ArgumentRef(i int) Reference  { return Reference{Kind: RefArgument, Index: int32(i)} }
func LocalRef(i int) Reference     { return Reference{Kind: RefLocal, Index: int32(i)} }
func GlobalRef(slot int) Reference { return Reference{Kind: RefGlobal, Index: int32(slot)} }
func GlobalProcRef(id ProcID) Reference {
	return Reference{Kind: RefGlobalProc, Index: int32(id)}
}
func FieldRef(name uint32) Reference    { return Reference{Kind: RefField, Name: name} }
func SrcFieldRef(name uint32) Reference { return Reference{Kind: RefSrcField, Name: name} }
func SrcProcRef(name uint32) Reference  { return Reference{Kind: RefSrcProc, Name: name} }

// Pops is the number of operand-stack values the reference consumes each
// time it is resolved: the object for Field, the list and index for
// ListIndex.
func (r Reference) Pops() int {
	switch r.Kind {
	case RefField:
		return 1
	case RefListIndex:
		return 2
	}
	return 0
}

func (r Reference) Valid() bool {
	if r.Kind >= refKindCount {
		return false
	}
	switch r.Kind {
	case RefArgument, RefLocal:
		return r.Index >= 0 && r.Index <= 0xff
	case RefGlobal, RefGlobalProc:
		return r.Index >= 0
	}
	return true
}

// frameCheck reports an argument or local reference outside a frame of
// args arguments and locals locals. Negative bounds are not checked.
func frameCheck(r Reference, args, locals int) string {
	switch {
	case r.Kind == RefArgument && args >= 0 && int(r.Index) >= args:
		return fmt.Sprintf("%s out of range: proc has %d arguments", r, args)
	case r.Kind == RefLocal && locals >= 0 && int(r.Index) >= locals:
		return fmt.Sprintf("%s out of range: proc has %d locals", r, locals)
	}
	return ""
}

func (r Reference) appendTo(buf []byte) []byte {
	buf = append(buf, byte(r.Kind))
	switch r.Kind {
	case RefArgument, RefLocal:
		buf = append(buf, byte(r.Index))
	case RefGlobal, RefGlobalProc:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(r.Index))
	case RefField, RefSrcField, RefSrcProc:
		buf = binary.LittleEndian.AppendUint32(buf, r.Name)
	}
	return buf
}

// Format renders the reference for listings, resolving names through st
// when given.
func (r Reference) Format(st *StringTable) string {
	name := func() string {
		if st == nil {
			return fmt.Sprintf("#%d", r.Name)
		}
		return st.Text(r.Name)
	}
	switch r.Kind {
	case RefArgument, RefLocal, RefGlobal, RefGlobalProc:
		return fmt.Sprintf("%s(%d)", r.Kind, r.Index)
	case RefField, RefSrcField, RefSrcProc:
		return fmt.Sprintf("%s(%q)", r.Kind, name())
	}
	return r.Kind.String()
}

func (r Reference) String() string {
	return r.Format(nil)
}
