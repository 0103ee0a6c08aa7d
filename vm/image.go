package vm

import (
	"bytes"
	"fmt"
	"io"

	"github.com/shamaton/msgpack/v2"
	"github.com/timewinder-dev/dreamvm/cas"
)

const (
	imageMagic   = "DVMI"
	imageVersion = 2
)

type imageFile struct {
	Magic   string      `msgpack:"magic"`
	Version int         `msgpack:"version"`
	Program *Program    `msgpack:"program"`
	Code    []cas.Hash  `msgpack:"code"`
	Blobs   []cas.Entry `msgpack:"blobs"`
}

// EncodeImage writes a program image. Bytecode is stored once per distinct
// byte stream and referenced from each proc by hash.
func EncodeImage(w io.Writer, p *Program) error {
	store := cas.NewMemoryCAS()
	f := imageFile{
		Magic:   imageMagic,
		Version: imageVersion,
		Program: p,
		Code:    make([]cas.Hash, len(p.Procs)),
	}
	for i, proc := range p.Procs {
		h, err := store.Put(proc.Bytecode)
		if err != nil {
			return err
		}
		f.Code[i] = h
	}
	f.Blobs = store.Entries()
	return msgpack.MarshalWrite(w, &f)
}

// DecodeImage reads a program image and verifies its bytecode. Procs that
// fail verification are marked invalid and their errors are returned
// alongside the program; any other error returns no program.
func DecodeImage(r io.Reader) (*Program, error) {
	var f imageFile
	if err := msgpack.UnmarshalRead(r, &f); err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	if f.Magic != imageMagic {
		return nil, fmt.Errorf("not a program image (magic %q)", f.Magic)
	}
	if f.Version != imageVersion {
		return nil, fmt.Errorf("unsupported image version %d", f.Version)
	}
	if f.Program == nil {
		return nil, fmt.Errorf("image has no program")
	}
	if len(f.Program.Strings) == 0 || f.Program.Strings[0] != "" {
		return nil, fmt.Errorf("image string table must start with the empty string")
	}
	if len(f.Code) != len(f.Program.Procs) {
		return nil, fmt.Errorf("image code table has %d entries for %d procs", len(f.Code), len(f.Program.Procs))
	}
	store := cas.NewMemoryCAS()
	for _, e := range f.Blobs {
		if _, err := store.Put(e.Data); err != nil {
			return nil, err
		}
	}
	for i, proc := range f.Program.Procs {
		if proc == nil {
			return nil, fmt.Errorf("image proc %d is empty", i)
		}
		if proc.ID != ProcID(i) {
			return nil, fmt.Errorf("image proc %d has id %d", i, proc.ID)
		}
		code, err := cas.Retrieve(store, f.Code[i])
		if err != nil {
			return nil, fmt.Errorf("proc %s: %w", proc.Name, err)
		}
		proc.Bytecode = code
	}
	return f.Program, f.Program.Verify(NewStringTableFrom(f.Program.Strings))
}

// Fingerprint hashes the encoded image.
func Fingerprint(p *Program) (cas.Hash, error) {
	var buf bytes.Buffer
	if err := EncodeImage(&buf, p); err != nil {
		return 0, err
	}
	return cas.HashBytes(buf.Bytes()), nil
}
