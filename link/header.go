package link

import (
	"encoding/binary"

	"github.com/wippyai/wasm2pvm/errors"
	"github.com/wippyai/wasm2pvm/layout"
	"github.com/wippyai/wasm2pvm/modparse"
	"github.com/wippyai/wasm2pvm/pvm"
)

// jumpTableIndex is the glossary's "even integer 2*(function_slot+1)"
// addressing scheme: slot 0/1 of the table are reserved for the program's
// primary/secondary entry points, every local function after that gets one
// slot of its own. call_indirect dispatch (pvm/calls.go) is the only
// consumer of indices beyond 0/1; ordinary calls use pvm's static
// Jump-with-fixup convention instead and never read this table.
func jumpTableIndex(localFunc uint32) uint32 {
	return 2 * (localFunc + 1)
}

// trampolineLen is the fixed size, in bytes, of the call-start-then-jump-to-main
// sequence buildHeader synthesizes when the module declares a local start
// function: LoadImm32 RA,<continuation> / Jump <start> / LoadImm32
// RA,ExitSentinel / Jump <main>.
const trampolineLen = 6 + 5 + 6 + 5

// buildHeader lays out the entry header (the jump table) plus, when the
// module declares a start function, a short trampoline that calls it before
// ever reaching main. It returns the header+trampoline bytes and the byte
// offsets (relative to the start of code, header included) each local
// function's code must be placed at to line up with the table.
func buildHeader(prog *modparse.Program, mod *pvm.Module) ([]byte, []uint32, error) {
	numFuncs := uint32(len(mod.Funcs))
	numImports := uint32(prog.NumImportedFuncs())

	slotCount := jumpTableIndex(numFuncs) - 1
	headerBytes := slotCount * 4

	mainLocal, err := localFuncIndex(numImports, prog.Entry.FuncIdx)
	if err != nil {
		return nil, nil, err
	}

	var secondaryLocal *uint32
	if prog.Entry.Secondary != nil {
		l, err := localFuncIndex(numImports, *prog.Entry.Secondary)
		if err != nil {
			return nil, nil, err
		}
		secondaryLocal = &l
	}

	startLocal, startIsImport, hasStart := resolveStart(prog, numImports)

	trampolineBytes := uint32(0)
	if hasStart {
		if startIsImport {
			trampolineBytes = 1 // a single OpTrap
		} else {
			trampolineBytes = trampolineLen
		}
	}

	codeBase := headerBytes + trampolineBytes
	funcStart := make([]uint32, numFuncs)
	cur := codeBase
	for i, f := range mod.Funcs {
		funcStart[i] = cur
		cur += uint32(len(f.Code))
	}

	header := make([]byte, headerBytes)
	mainEntry := funcStart[mainLocal]
	if hasStart {
		mainEntry = headerBytes // the trampoline sits right after the header
	}
	binary.LittleEndian.PutUint32(header[0:4], mainEntry)

	secondaryEntry := mainEntry
	if secondaryLocal != nil {
		secondaryEntry = funcStart[*secondaryLocal]
	}
	binary.LittleEndian.PutUint32(header[4:8], secondaryEntry)

	for i := range mod.Funcs {
		slot := jumpTableIndex(uint32(i))
		binary.LittleEndian.PutUint32(header[slot*4:slot*4+4], funcStart[i])
	}

	trampoline := buildTrampolineBytes(hasStart, startIsImport, headerBytes, funcStart[mainLocal], startLocal, funcStart)

	out := make([]byte, 0, len(header)+len(trampoline))
	out = append(out, header...)
	out = append(out, trampoline...)
	return out, funcStart, nil
}

func localFuncIndex(numImports, combined uint32) (uint32, error) {
	if combined < numImports {
		return 0, errors.Internal(errors.PhaseAssemble, nil, "entry point resolves to an imported function")
	}
	return combined - numImports, nil
}

// resolveStart reports the module's start function, if any, in local
// function index space (only meaningful when !startIsImport).
func resolveStart(prog *modparse.Program, numImports uint32) (local uint32, isImport bool, has bool) {
	if prog.Start == nil {
		return 0, false, false
	}
	if *prog.Start < numImports {
		return 0, true, true
	}
	return *prog.Start - numImports, false, true
}

// buildTrampolineBytes emits, per §4.4, "a jump to the start function's
// entry; the start function returns to main normally." When start is
// imported (an unusual but not forbidden case) it is stubbed to a trap like
// any other call to an import, consistent with the resolved open question
// that a start-function trap aborts the whole program before main ever
// runs.
func buildTrampolineBytes(hasStart, startIsImport bool, headerBytes, mainStart, startLocal uint32, funcStart []uint32) []byte {
	if !hasStart {
		return nil
	}
	if startIsImport {
		buf := &pvm.Buffer{}
		pvm.Instruction{Op: pvm.OpTrap}.Encode(buf)
		return buf.Bytes
	}

	startAbs := funcStart[startLocal]
	continuationAbs := headerBytes + 11 // offset of instr2 within the trampoline

	buf := &pvm.Buffer{}
	pvm.Instruction{Op: pvm.OpLoadImm32, Dst: pvm.RA, Imm32: int32(continuationAbs)}.Encode(buf)
	pvm.Instruction{Op: pvm.OpJump, Target: int32(startAbs) - int32(headerBytes+6)}.Encode(buf)
	pvm.Instruction{Op: pvm.OpLoadImm32, Dst: pvm.RA, Imm32: layout.ExitSentinel}.Encode(buf)
	pvm.Instruction{Op: pvm.OpJump, Target: int32(mainStart) - int32(headerBytes+17)}.Encode(buf)
	return buf.Bytes
}
