package bytecodefmt

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/mod/semver"

	"github.com/scriptcore/unitscript/compiler"
)

const (
	preambleLen  = 4 + 2 + 2 + 4 + 8
	maxHeaderLen = 64 * 1024
	maxBodyLen   = 64 * 1024 * 1024
)

// Read deserializes an envelope written by Write. minEngineVersion is the
// oldest compiler semver (e.g. "v1.0.0") this caller still trusts a cached
// Program from; an envelope whose header version compares lower is
// rejected rather than loaded, since the compiler may have changed opcode
// semantics since the entry was cached. Read recomputes the canonical hash
// of the decoded Program and returns it for the caller to compare against
// its external cache key.
func Read(r io.Reader, minEngineVersion string) (*compiler.Program, [32]byte, error) {
	var preamble [preambleLen]byte
	if _, err := io.ReadFull(r, preamble[:]); err != nil {
		return nil, [32]byte{}, fmt.Errorf("read preamble: %w", err)
	}

	if string(preamble[0:4]) != Magic {
		return nil, [32]byte{}, fmt.Errorf("invalid magic: got %q, expected %q", preamble[0:4], Magic)
	}
	version := binary.LittleEndian.Uint16(preamble[4:6])
	if version != FormatVersion {
		return nil, [32]byte{}, fmt.Errorf("unsupported envelope version 0x%04x, expected 0x%04x", version, FormatVersion)
	}
	flags := Flags(binary.LittleEndian.Uint16(preamble[6:8]))
	if flags != 0 {
		return nil, [32]byte{}, fmt.Errorf("unsupported flags 0x%04x", uint16(flags))
	}
	headerLen := binary.LittleEndian.Uint32(preamble[8:12])
	bodyLen := binary.LittleEndian.Uint64(preamble[12:20])
	if headerLen > maxHeaderLen {
		return nil, [32]byte{}, fmt.Errorf("header length %d exceeds maximum %d", headerLen, maxHeaderLen)
	}
	if bodyLen > maxBodyLen {
		return nil, [32]byte{}, fmt.Errorf("body length %d exceeds maximum %d", bodyLen, maxBodyLen)
	}

	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, [32]byte{}, fmt.Errorf("read header: %w", err)
	}
	var hdr header
	if err := cbor.Unmarshal(headerBytes, &hdr); err != nil {
		return nil, [32]byte{}, fmt.Errorf("decode header: %w", err)
	}
	if semver.IsValid(hdr.EngineVersion) && semver.IsValid(minEngineVersion) {
		if semver.Compare(hdr.EngineVersion, minEngineVersion) < 0 {
			return nil, [32]byte{}, fmt.Errorf(
				"cached program built with engine %s, older than minimum trusted %s",
				hdr.EngineVersion, minEngineVersion)
		}
	}

	bodyBytes := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, bodyBytes); err != nil {
		return nil, [32]byte{}, fmt.Errorf("read body: %w", err)
	}
	var b body
	if err := cbor.Unmarshal(bodyBytes, &b); err != nil {
		return nil, [32]byte{}, fmt.Errorf("decode body: %w", err)
	}

	prog := fromBody(b)
	digest, err := Hash(prog)
	if err != nil {
		return nil, [32]byte{}, fmt.Errorf("recompute canonical hash: %w", err)
	}
	return prog, digest, nil
}

func fromBody(b body) *compiler.Program {
	prog := &compiler.Program{
		Code:      make([]compiler.Instruction, len(b.Code)),
		Constants: b.Constants,
		Params:    b.Params,
	}
	if len(b.Functions) > 0 {
		// the compiler leaves Functions nil when there are none; keep it so
		prog.Functions = make([]*compiler.Program, len(b.Functions))
	}
	for i, instr := range b.Code {
		prog.Code[i] = compiler.Instruction{Op: compiler.Op(instr.Op), Arg: normalizeArg(instr.Arg), Line: instr.Line}
	}
	for i, fn := range b.Functions {
		prog.Functions[i] = fromBody(fn)
	}
	return prog
}

// normalizeArg restores an Instruction.Arg's concrete type after a CBOR
// round-trip, where a Go int is decoded back as an int64/uint64 rather
// than int (Instruction.IntArg expects exactly int - see program.go).
func normalizeArg(arg interface{}) interface{} {
	switch v := arg.(type) {
	case int64:
		return int(v)
	case uint64:
		return int(v)
	default:
		return arg
	}
}
