package bytecodefmt

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/scriptcore/unitscript/compiler"
)

// canonicalProgram is the deterministic-hashing form of a Program: field
// order is fixed by the struct definition and CBOR's canonical encoding
// mode additionally sorts map keys, so two Programs with the same
// instructions hash identically regardless of how they were built.
type canonicalProgram struct {
	Code      []canonicalInstruction
	Constants []interface{}
	Functions []canonicalProgram
	Params    []string
}

type canonicalInstruction struct {
	Op   int
	Arg  interface{}
	Line int
}

func toCanonical(p *compiler.Program) canonicalProgram {
	cp := canonicalProgram{
		Code:      make([]canonicalInstruction, len(p.Code)),
		Constants: p.Constants,
		Functions: make([]canonicalProgram, len(p.Functions)),
		Params:    p.Params,
	}
	for i, instr := range p.Code {
		cp.Code[i] = canonicalInstruction{Op: int(instr.Op), Arg: instr.Arg, Line: instr.Line}
	}
	for i, fn := range p.Functions {
		cp.Functions[i] = toCanonical(fn)
	}
	return cp
}

// marshalCanonical produces a deterministic CBOR encoding of p's
// instructions, constants, and nested functions (diagnostics excluded -
// only a successfully compiled Program ever reaches this package).
func marshalCanonical(p *compiler.Program) ([]byte, error) {
	encMode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("build canonical CBOR encoder: %w", err)
	}
	return encMode.Marshal(toCanonical(p))
}

// Hash computes the BLAKE2b-256 digest of p's canonical encoding. Two
// Programs that are instruction-for-instruction identical hash identically;
// this is the cache key bytecodefmt.Write returns alongside the envelope
// bytes (source text and env-schema fingerprint, kept externally by the
// host, complete the full cache key).
func Hash(p *compiler.Program) ([32]byte, error) {
	data, err := marshalCanonical(p)
	if err != nil {
		return [32]byte{}, err
	}
	return blake2b.Sum256(data), nil
}
