package bytecodefmt

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptcore/unitscript/compiler"
)

func compileFixture(t *testing.T) *compiler.Program {
	t.Helper()
	prog := compiler.Compile("total = 0\nfor i in [1, 2, 3]:\n    total = total + i\n", "", nil)
	require.False(t, prog.Failed(), "diagnostics: %v", prog.Diagnostics)
	return prog
}

func TestWriteRead_RoundTripsProgram(t *testing.T) {
	prog := compileFixture(t)

	var buf bytes.Buffer
	digest, err := Write(&buf, prog, "v1.0.0")
	require.NoError(t, err)

	got, readDigest, err := Read(&buf, "v1.0.0")
	require.NoError(t, err)
	assert.Equal(t, digest, readDigest)

	// Diagnostics is never populated on a Program that survived Write's
	// precondition, and bytecodefmt doesn't carry it anyway - exclude it
	// rather than asserting two nils match by accident.
	opts := cmpopts.IgnoreFields(compiler.Program{}, "Diagnostics")
	if diff := cmp.Diff(prog, got, opts); diff != "" {
		t.Errorf("semantic mismatch after round-trip (-want +got):\n%s", diff)
	}
}

func TestWrite_RejectsFailedProgram(t *testing.T) {
	prog := compiler.Compile("x = y\n", "", nil)
	require.True(t, prog.Failed())
	assert.Panics(t, func() {
		var buf bytes.Buffer
		_, _ = Write(&buf, prog, "v1.0.0")
	})
}

func TestHash_StableAcrossEquivalentPrograms(t *testing.T) {
	a := compileFixture(t)
	b := compileFixture(t)
	hashA, err := Hash(a)
	require.NoError(t, err)
	hashB, err := Hash(b)
	require.NoError(t, err)
	assert.Equal(t, hashA, hashB, "two compiles of identical source must hash identically")
}

func TestHash_DiffersForDifferentPrograms(t *testing.T) {
	a := compileFixture(t)
	b := compiler.Compile("x = 1\n", "", nil)
	require.False(t, b.Failed())
	hashA, err := Hash(a)
	require.NoError(t, err)
	hashB, err := Hash(b)
	require.NoError(t, err)
	assert.NotEqual(t, hashA, hashB)
}

func TestRead_RejectsBadMagic(t *testing.T) {
	_, _, err := Read(bytes.NewReader([]byte("NOTAREALENVELOPEHEADERBYTES!!!!")), "v1.0.0")
	require.Error(t, err)
}

func TestRead_RejectsOlderEngineVersion(t *testing.T) {
	prog := compileFixture(t)
	var buf bytes.Buffer
	_, err := Write(&buf, prog, "v1.0.0")
	require.NoError(t, err)

	_, _, err = Read(&buf, "v2.0.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "older than minimum trusted")
}

func TestWriteRead_RoundTripsNestedFunctionPrograms(t *testing.T) {
	src := "def factorial(n):\n    if n <= 1:\n        return 1\n    return n * factorial(n - 1)\nx = factorial(5)\n"
	prog := compiler.Compile(src, "", nil)
	require.False(t, prog.Failed(), "diagnostics: %v", prog.Diagnostics)
	require.Len(t, prog.Functions, 1)

	var buf bytes.Buffer
	_, err := Write(&buf, prog, "v1.0.0")
	require.NoError(t, err)

	got, _, err := Read(&buf, "v1.0.0")
	require.NoError(t, err)
	require.Len(t, got.Functions, 1)
	assert.Equal(t, len(prog.Functions[0].Code), len(got.Functions[0].Code))
}
