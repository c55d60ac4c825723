package translate

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm2pvm/wat"
)

// decodedSPI mirrors link's own test helper; translate has no access to
// link's unexported decodeSPI, and a public SPI reader belongs to neither
// package until something other than a test needs it.
type decodedSPI struct {
	roData, rwData, code []byte
	heapPages, stackSize uint32
}

func decodeSPI(t *testing.T, spi []byte) decodedSPI {
	t.Helper()
	roLen := uint32(spi[0]) | uint32(spi[1])<<8 | uint32(spi[2])<<16
	rwLen := uint32(spi[3]) | uint32(spi[4])<<8 | uint32(spi[5])<<16
	heapPages := uint32(spi[6]) | uint32(spi[7])<<8
	stackSize := uint32(spi[8]) | uint32(spi[9])<<8 | uint32(spi[10])<<16

	off := 11
	roData := spi[off : off+int(roLen)]
	off += int(roLen)
	rwData := spi[off : off+int(rwLen)]
	off += int(rwLen)
	codeLen := binary.LittleEndian.Uint32(spi[off : off+4])
	off += 4
	code := spi[off : off+int(codeLen)]

	return decodedSPI{roData: roData, rwData: rwData, code: code, heapPages: heapPages, stackSize: stackSize}
}

func compileWAT(t *testing.T, src string) *Result {
	t.Helper()
	bin, err := wat.Compile(src)
	require.NoError(t, err)
	res, err := Compile(bin, Options{})
	require.NoError(t, err)
	return res
}

// TestCompileE1Add covers spec.md E1: a two-argument add is one local
// function, producing a single jump-table slot and no fixups at all since
// it neither calls nor is called.
func TestCompileE1Add(t *testing.T) {
	src := `(module (func (export "main") (param i32 i32) (result i32 i32)
		(i32.add (local.get 0) (local.get 1))
		(local.get 1)))`
	res := compileWAT(t, src)

	d := decodeSPI(t, res.SPI)
	require.NotEmpty(t, d.code)
	require.Len(t, res.Diagnostics, 1)
	require.Zero(t, res.Diagnostics[0].NumFixups)
	require.Equal(t, DefaultStackSize, d.stackSize)
	require.Equal(t, DefaultHeapPages, d.heapPages)
}

// TestCompileE2GCD covers spec.md E2: Euclid's algorithm over a loop with
// loop-header phis on (a, b), exercising branch resolution and mem2reg
// together.
func TestCompileE2GCD(t *testing.T) {
	src := `(module (func $gcd (export "main") (param i32 i32) (result i32 i32)
		(local $a i32) (local $b i32) (local $t i32)
		(local.set $a (local.get 0))
		(local.set $b (local.get 1))
		(block $done
			(loop $again
				(br_if $done (i32.eqz (local.get $b)))
				(local.set $t (i32.rem_u (local.get $a) (local.get $b)))
				(local.set $a (local.get $b))
				(local.set $b (local.get $t))
				(br $again)))
		(local.get $a) (local.get 1)))`
	res := compileWAT(t, src)

	d := decodeSPI(t, res.SPI)
	require.NotEmpty(t, d.code)
	require.Len(t, res.Diagnostics, 1)
}

// TestCompileE3Factorial covers spec.md E3: a self-recursive call, which
// must round-trip through a FixupCall and a FixupReturn on the same
// function (it calls itself). $fact is a helper beside the exported main,
// so the module has two local functions.
func TestCompileE3Factorial(t *testing.T) {
	src := `(module
		(func $fact (param i32) (result i32)
			(if (result i32) (i32.le_u (local.get 0) (i32.const 1))
				(then (i32.const 1))
				(else (i32.mul (local.get 0)
					(call $fact (i32.sub (local.get 0) (i32.const 1)))))))
		(func (export "main") (param i32 i32) (result i32 i32)
			(local.get 0) (local.get 1)))`
	res := compileWAT(t, src)

	require.Len(t, res.Diagnostics, 2)
	require.Equal(t, 2, res.Diagnostics[0].NumFixups, "a self-call needs one FixupCall and one FixupReturn")
}

// TestCompileE4MemoryCopyForward covers spec.md E4: a forward (non-
// overlapping direction) memory.copy lowers without error and touches the
// linear memory region.
func TestCompileE4MemoryCopyForward(t *testing.T) {
	src := `(module (memory 1)
		(func (export "main") (param i32 i32) (result i32 i32)
			(memory.copy (local.get 0) (local.get 1) (i32.const 4))
			(local.get 0) (local.get 1)))`
	res := compileWAT(t, src)
	require.Len(t, res.Diagnostics, 1)
	require.NotZero(t, res.Diagnostics[0].CodeBytes)
}

// TestCompileE5MemoryCopyOverlapReverse covers spec.md E5: memory.copy must
// lower the same way regardless of whether dst/src happen to overlap in the
// reverse direction; the translator has no static knowledge of the actual
// addresses, so this is really checking that E4 and E5 produce
// structurally identical code shapes.
func TestCompileE5MemoryCopyOverlapReverse(t *testing.T) {
	srcFwd := `(module (memory 1)
		(func (export "main") (param i32 i32) (result i32 i32)
			(memory.copy (local.get 0) (local.get 1) (i32.const 4))
			(local.get 0) (local.get 1)))`
	srcRev := `(module (memory 1)
		(func (export "main") (param i32 i32) (result i32 i32)
			(memory.copy (local.get 1) (local.get 0) (i32.const 4))
			(local.get 0) (local.get 1)))`

	fwd := compileWAT(t, srcFwd)
	rev := compileWAT(t, srcRev)
	require.Equal(t, fwd.Diagnostics[0].CodeBytes, rev.Diagnostics[0].CodeBytes,
		"memory.copy lowers to the same instruction shape regardless of which operand is dst vs src")
}

// TestCompileE6PhiCycleSwap covers spec.md E6: a loop header phi that swaps
// two locals each iteration, the textbook case that needs a scratch
// register (or an equivalent rotation) rather than naive sequential copies.
func TestCompileE6PhiCycleSwap(t *testing.T) {
	src := `(module (func (export "main") (param i32 i32) (result i32 i32)
		(local $x i32) (local $y i32) (local $t i32) (local $i i32)
		(local.set $x (i32.const 1))
		(local.set $y (i32.const 2))
		(local.set $i (local.get 0))
		(block $done
			(loop $again
				(br_if $done (i32.eqz (local.get $i)))
				(local.set $i (i32.sub (local.get $i) (i32.const 1)))
				(local.set $t (local.get $x))
				(local.set $x (local.get $y))
				(local.set $y (local.get $t))
				(br $again)))
		(local.get $x) (local.get 1)))`
	res := compileWAT(t, src)
	require.Len(t, res.Diagnostics, 1)
	require.NotZero(t, res.Diagnostics[0].CodeBytes)
}

// TestCompileOptionsReachSPIHeader checks that explicit Options values are
// carried end to end into the SPI header; TestCompileE1Add covers the
// defaults that Options{} resolves to.
func TestCompileOptionsReachSPIHeader(t *testing.T) {
	src := `(module (func (export "main") (param i32 i32) (result i32 i32)
		(local.get 0) (local.get 1)))`
	bin, err := wat.Compile(src)
	require.NoError(t, err)

	res, err := Compile(bin, Options{StackSize: 2048, HeapPages: 4})
	require.NoError(t, err)
	d := decodeSPI(t, res.SPI)
	require.Equal(t, uint32(2048), d.stackSize)
	require.Equal(t, uint32(4), d.heapPages)
}

func TestCompileRejectsMalformedModule(t *testing.T) {
	_, err := Compile([]byte("not a wasm module"), Options{})
	require.Error(t, err)
}
