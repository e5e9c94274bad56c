// Package bytecodefmt serializes a compiled compiler.Program to and from a
// binary envelope, so a host can cache compiled units across process
// restarts instead of recompiling every unit's source on every boot.
//
// Format: MAGIC(4) | VERSION(2) | FLAGS(2) | HEADER_LEN(4) | BODY_LEN(8) |
// HEADER | BODY. HEADER carries the semver engine-version string of the
// compiler that produced the Program (checked on read via
// golang.org/x/mod/semver); BODY is a CBOR encoding of the
// Program's code, constants, and nested function programs. Diagnostics are
// never serialized - only a successfully compiled Program (empty
// Diagnostics) is ever written.
package bytecodefmt

import "fmt"

const (
	// Magic identifies an envelope written by this package.
	Magic = "USVM"

	// FormatVersion is the envelope's own version number, independent of
	// the engine version embedded in the header; Read accepts only an
	// exact match. Bumped on a breaking change
	// to the envelope or canonical encoding.
	FormatVersion uint16 = 0x0001
)

// Flags is a bitmask for optional envelope features. No bits are defined
// yet; Write always writes 0 and Read rejects any unknown bit so future
// readers can detect envelopes they don't understand.
type Flags uint16

func validateUint32(value int, field string) error {
	if value < 0 || int64(value) > 0xFFFFFFFF {
		return fmt.Errorf("%s %d out of uint32 range", field, value)
	}
	return nil
}
