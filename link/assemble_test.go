package link

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm2pvm/layout"
	"github.com/wippyai/wasm2pvm/modparse"
	"github.com/wippyai/wasm2pvm/pvm"
	"github.com/wippyai/wasm2pvm/ssa"
	"github.com/wippyai/wasm2pvm/wat"
)

// build runs a WAT source through the full parse/SSA/lowering pipeline and
// returns both the parsed program (link.Assemble needs it directly) and the
// lowered pvm.Module.
func build(t *testing.T, src string) (*modparse.Program, *pvm.Module) {
	t.Helper()
	bin, err := wat.Compile(src)
	require.NoError(t, err)
	prog, err := modparse.Parse(bin)
	require.NoError(t, err)
	ssaMod, err := ssa.Build(prog)
	require.NoError(t, err)
	mod, err := pvm.Lower(ssaMod, uint32(prog.NumImportedFuncs()), layout.DefaultStackSize)
	require.NoError(t, err)
	return prog, mod
}

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

func TestAssembleStraightLineProducesWellFormedSPI(t *testing.T) {
	src := `(module (func (export "main") (param i32 i32) (result i32 i32)
		(i32.add (local.get 0) (local.get 1))
		(local.get 1)))`
	prog, mod := build(t, src)

	result, err := Assemble(prog, mod, layout.DefaultStackSize, layout.DefaultHeapPages)
	require.NoError(t, err)

	d := decodeSPI(t, result.SPI)
	require.Equal(t, layout.DefaultHeapPages, d.heapPages)
	require.Equal(t, layout.DefaultStackSize, d.stackSize)
	require.NotEmpty(t, d.code)
	require.Len(t, result.FuncOffsets, 1)
	// A single, start-free function: header occupies slots 0,1 plus one
	// slot (index 2) for the sole function, i.e. 3*4=12 header bytes.
	require.Equal(t, uint32(12), result.FuncOffsets[0])
}

func TestAssembleDirectCallFixupPatchedToRelativeOffset(t *testing.T) {
	src := `(module
		(func $inc (param i32) (result i32) (i32.add (local.get 0) (i32.const 1)))
		(func (export "main") (param i32 i32) (result i32 i32)
			(call $inc (local.get 0)) (local.get 1)))`
	prog, mod := build(t, src)

	result, err := Assemble(prog, mod, layout.DefaultStackSize, layout.DefaultHeapPages)
	require.NoError(t, err)
	d := decodeSPI(t, result.SPI)

	require.Len(t, mod.Funcs[1].Fixups, 2)
	var callFixup pvm.Fixup
	for _, fx := range mod.Funcs[1].Fixups {
		if fx.Kind == pvm.FixupCall {
			callFixup = fx
		}
	}

	jumpSiteAbs := result.FuncOffsets[1] + callFixup.InstrOffset
	gotTarget := int32(binary.LittleEndian.Uint32(d.code[jumpSiteAbs+1 : jumpSiteAbs+5]))
	wantTarget := int32(result.FuncOffsets[0]) - int32(jumpSiteAbs)
	require.Equal(t, wantTarget, gotTarget)
}

func TestAssembleDispatchTableSentinelsForHolesAndImports(t *testing.T) {
	src := `(module
		(import "env" "cb" (func $cb (param i32) (result i32)))
		(type $t (func (param i32) (result i32)))
		(table 3 funcref)
		(elem (i32.const 0) $inc $cb)
		(func $inc (param i32) (result i32) (i32.add (local.get 0) (i32.const 1)))
		(func (export "main") (param i32 i32) (result i32 i32)
			(call_indirect (type $t) (local.get 0) (i32.const 0))
			(local.get 1)))`
	prog, mod := build(t, src)

	result, err := Assemble(prog, mod, layout.DefaultStackSize, layout.DefaultHeapPages)
	require.NoError(t, err)
	d := decodeSPI(t, result.SPI)

	require.Len(t, d.roData, 3*8)

	// Slot 0: $inc, a local function at local index 0 -> jump table index 2.
	require.Equal(t, uint32(2), binary.LittleEndian.Uint32(d.roData[0:4]))
	require.NotEqual(t, dispatchSentinel, binary.LittleEndian.Uint32(d.roData[4:8]))

	// Slot 1: an import -> sentinel in both fields.
	require.Equal(t, dispatchSentinel, binary.LittleEndian.Uint32(d.roData[8:12]))
	require.Equal(t, dispatchSentinel, binary.LittleEndian.Uint32(d.roData[12:16]))

	// Slot 2: a hole (no element) -> sentinel in both fields.
	require.Equal(t, dispatchSentinel, binary.LittleEndian.Uint32(d.roData[16:20]))
	require.Equal(t, dispatchSentinel, binary.LittleEndian.Uint32(d.roData[20:24]))
}

func TestAssembleStartFunctionRunsBeforeMain(t *testing.T) {
	src := `(module
		(global $g (export "g") (mut i32) (i32.const 0))
		(func $init (global.set $g (i32.const 42)))
		(start $init)
		(func (export "main") (param i32 i32) (result i32 i32)
			(global.get $g) (local.get 1)))`
	prog, mod := build(t, src)

	result, err := Assemble(prog, mod, layout.DefaultStackSize, layout.DefaultHeapPages)
	require.NoError(t, err)
	d := decodeSPI(t, result.SPI)

	headerMain := binary.LittleEndian.Uint32(d.code[0:4])
	// main's own slot (index 0 local func $init is first declared, so
	// main is local index 1) must differ from the jump-table entry now
	// that a trampoline sits between the header and $init's code.
	mainLocal := len(mod.Funcs) - 1
	require.NotEqual(t, result.FuncOffsets[mainLocal], headerMain, "header[0] must point at the start trampoline, not main directly")
}

func TestAssembleIsDeterministic(t *testing.T) {
	src := `(module
		(func $a (param i32) (result i32) (i32.add (local.get 0) (i32.const 1)))
		(func $b (param i32) (result i32) (call $a (local.get 0)))
		(func (export "main") (param i32 i32) (result i32 i32)
			(call $b (local.get 0)) (local.get 1)))`
	prog, mod := build(t, src)

	r1, err := Assemble(prog, mod, layout.DefaultStackSize, layout.DefaultHeapPages)
	require.NoError(t, err)
	r2, err := Assemble(prog, mod, layout.DefaultStackSize, layout.DefaultHeapPages)
	require.NoError(t, err)
	require.Equal(t, r1.SPI, r2.SPI)
}

func TestAssembleDataSegmentPlacedAtWasmMemoryBaseOffset(t *testing.T) {
	src := `(module (memory 1)
		(data (i32.const 8) "\01\02\03\04")
		(func (export "main") (param i32 i32) (result i32 i32)
			(local.get 0) (local.get 1)))`
	prog, mod := build(t, src)

	result, err := Assemble(prog, mod, layout.DefaultStackSize, layout.DefaultHeapPages)
	require.NoError(t, err)
	d := decodeSPI(t, result.SPI)

	wasmBase := layout.WasmMemoryBase(uint32(len(mod.Funcs)))
	off := (wasmBase + 8) - layout.GlobalsBase
	require.Equal(t, []byte{1, 2, 3, 4}, d.rwData[off:off+4])
}
