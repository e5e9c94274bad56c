package bytecodefmt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/scriptcore/unitscript/compiler"
	"github.com/scriptcore/unitscript/invariant"
)

// body is the on-the-wire (non-canonical) encoding of a Program: plain
// CBOR, field order irrelevant, used only to round-trip the value -
// canonical.go's separately-computed digest is what callers use as a
// cache key.
type body struct {
	Code      []bodyInstruction
	Constants []interface{}
	Functions []body
	Params    []string
}

type bodyInstruction struct {
	Op   int
	Arg  interface{}
	Line int
}

func toBody(p *compiler.Program) body {
	b := body{
		Code:      make([]bodyInstruction, len(p.Code)),
		Constants: p.Constants,
		Functions: make([]body, len(p.Functions)),
		Params:    p.Params,
	}
	for i, instr := range p.Code {
		b.Code[i] = bodyInstruction{Op: int(instr.Op), Arg: instr.Arg, Line: instr.Line}
	}
	for i, fn := range p.Functions {
		b.Functions[i] = toBody(fn)
	}
	return b
}

// Write serializes p to w as a bytecodefmt envelope and returns the
// BLAKE2b-256 digest of its canonical encoding. engineVersion is a semver
// string (e.g. "v1.2.0") identifying the compiler that produced p; Read
// rejects an entry whose engine version is older than the caller's
// minimum (newer entries are accepted). Write refuses a Program with diagnostics - only a successful
// compile result is ever persisted.
func Write(w io.Writer, p *compiler.Program, engineVersion string) ([32]byte, error) {
	invariant.Precondition(!p.Failed(), "Write must not be called on a Program with diagnostics")

	digest, err := Hash(p)
	if err != nil {
		return [32]byte{}, fmt.Errorf("compute canonical hash: %w", err)
	}

	bodyBytes, err := cbor.Marshal(toBody(p))
	if err != nil {
		return [32]byte{}, fmt.Errorf("encode body: %w", err)
	}

	headerBytes, err := encodeHeader(engineVersion)
	if err != nil {
		return [32]byte{}, fmt.Errorf("encode header: %w", err)
	}

	if err := validateUint32(len(headerBytes), "header length"); err != nil {
		return [32]byte{}, err
	}

	var preamble bytes.Buffer
	if _, err := preamble.WriteString(Magic); err != nil {
		return [32]byte{}, err
	}
	if err := binary.Write(&preamble, binary.LittleEndian, FormatVersion); err != nil {
		return [32]byte{}, err
	}
	if err := binary.Write(&preamble, binary.LittleEndian, uint16(Flags(0))); err != nil {
		return [32]byte{}, err
	}
	if err := binary.Write(&preamble, binary.LittleEndian, uint32(len(headerBytes))); err != nil {
		return [32]byte{}, err
	}
	if err := binary.Write(&preamble, binary.LittleEndian, uint64(len(bodyBytes))); err != nil {
		return [32]byte{}, err
	}

	if _, err := w.Write(preamble.Bytes()); err != nil {
		return [32]byte{}, err
	}
	if _, err := w.Write(headerBytes); err != nil {
		return [32]byte{}, err
	}
	if _, err := w.Write(bodyBytes); err != nil {
		return [32]byte{}, err
	}

	return digest, nil
}

// header is the envelope's metadata section: the engine version string
// only, never hashed into the digest, so bumping the engine
// version in isolation doesn't invalidate every cache entry's key.
type header struct {
	EngineVersion string
}

func encodeHeader(engineVersion string) ([]byte, error) {
	return cbor.Marshal(header{EngineVersion: engineVersion})
}
