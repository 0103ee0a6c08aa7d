package vm

import (
	"bytes"
	"testing"

	"github.com/shamaton/msgpack/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assembleConst(t *testing.T, st *StringTable, name string, n float32) *Assembled {
	a := NewAssembler(name, st)
	require.NoError(t, a.EmitOpcode(PushFloat, Location{File: "c.dm", Line: 1}))
	require.NoError(t, a.EmitFloat(n))
	require.NoError(t, a.EmitOpcode(Return, Location{File: "c.dm", Line: 1}))
	out, err := a.Finish()
	require.NoError(t, err)
	return out
}

func testProgram(t *testing.T) *Program {
	st := NewStringTable()
	p := &Program{
		Types: []TypeDef{
			{Path: "/", Parent: NoType},
			{Path: "/mob", Parent: 0, Fields: []FieldDef{{Name: "name", Default: String(st.Intern("mob"))}}},
		},
	}
	for i, name := range []string{"one", "uno", "two"} {
		n := float32(1)
		if name == "two" {
			n = 2
		}
		out := assembleConst(t, st, name, n)
		p.Procs = append(p.Procs, &Proc{
			ID:            ProcID(i),
			Name:          name,
			Owner:         NoType,
			Super:         NoProc,
			Bytecode:      out.Bytecode,
			MaxStackDepth: out.MaxStackDepth,
			Source:        out.Source,
		})
		p.GlobalProcs = append(p.GlobalProcs, ProcDecl{Name: name, ID: ProcID(i)})
	}
	p.Strings = st.Snapshot()
	return p
}

func TestImageRoundTrip(t *testing.T) {
	p := testProgram(t)
	var buf bytes.Buffer
	require.NoError(t, EncodeImage(&buf, p))

	var raw imageFile
	require.NoError(t, msgpack.Unmarshal(buf.Bytes(), &raw))
	assert.Len(t, raw.Blobs, 2, "identical bytecode is stored once")
	assert.Equal(t, raw.Code[0], raw.Code[1])

	got, err := DecodeImage(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, p.Strings, got.Strings)
	require.Len(t, got.Procs, 3)
	for i, proc := range p.Procs {
		assert.Equal(t, proc.Name, got.Procs[i].Name)
		assert.Equal(t, proc.Bytecode, got.Procs[i].Bytecode)
		assert.Equal(t, proc.MaxStackDepth, got.Procs[i].MaxStackDepth)
		assert.Equal(t, proc.LocationAt(0), got.Procs[i].LocationAt(0))
	}
	assert.Equal(t, "/mob", got.Types[1].Path)
	assert.Equal(t, p.Types[1].Fields[0].Default, got.Types[1].Fields[0].Default)
	id, ok := got.GlobalProc("two")
	require.True(t, ok)
	assert.Equal(t, ProcID(2), id)
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	_, err := DecodeImage(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)

	data, err := msgpack.Marshal(&imageFile{Magic: "XXXX", Version: imageVersion})
	require.NoError(t, err)
	_, err = DecodeImage(bytes.NewReader(data))
	assert.ErrorContains(t, err, "not a program image")
}

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint(testProgram(t))
	require.NoError(t, err)
	b, err := Fingerprint(testProgram(t))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	p := testProgram(t)
	p.Procs[2].Bytecode[1] ^= 0xff
	c, err := Fingerprint(p)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestListingIsCached(t *testing.T) {
	p := testProgram(t)
	st := NewStringTableFrom(p.Strings)
	l1, err := p.Listing(0, st)
	require.NoError(t, err)
	l2, err := p.Listing(1, st)
	require.NoError(t, err)
	assert.Same(t, l1, l2)
	assert.Equal(t, "PushFloat 1", l1.Instructions[0].Format(st))
}
