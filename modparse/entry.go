package modparse

import "github.com/wippyai/wasm2pvm/wasm"

// detectEntry recognizes the module's entry-point convention, preferring
// the export name "main" and falling back to "_start" (the name emitted by
// most WASI-less toolchains for a freestanding entry function). A second
// export named "main2" is recorded as the secondary entry, occupying the
// jump table's second reserved slot when present.
func detectEntry(m *wasm.Module, funcTypeOf func(funcIdx uint32) wasm.FuncType, exports map[string]uint32) Entry {
	mainIdx, ok := lookupEntryExport(exports)
	if !ok {
		return Entry{Convention: EntryUnknown}
	}

	sig := funcTypeOf(mainIdx)

	if isModernSignature(sig) {
		entry := Entry{Convention: EntryModern, FuncIdx: mainIdx}
		if secIdx, ok := exports["main2"]; ok {
			idx := secIdx
			entry.Secondary = &idx
		}
		return entry
	}

	if isLegacySignature(sig) {
		ptrGlobal, lenGlobal, ok := findResultGlobals(m, exports)
		if !ok {
			return Entry{Convention: EntryUnknown}
		}
		entry := Entry{
			Convention:      EntryLegacy,
			FuncIdx:         mainIdx,
			ResultPtrGlobal: ptrGlobal,
			ResultLenGlobal: lenGlobal,
		}
		if secIdx, ok := exports["main2"]; ok {
			idx := secIdx
			entry.Secondary = &idx
		}
		return entry
	}

	return Entry{Convention: EntryUnknown}
}

func lookupEntryExport(exports map[string]uint32) (uint32, bool) {
	if idx, ok := exports["main"]; ok {
		return idx, true
	}
	if idx, ok := exports["_start"]; ok {
		return idx, true
	}
	return 0, false
}

// isModernSignature matches (i32, i32) -> (i32, i32).
func isModernSignature(sig wasm.FuncType) bool {
	return sigIs(sig, 2, 2) && allI32(sig.Params) && allI32(sig.Results)
}

// isLegacySignature matches (i32, i32) -> ().
func isLegacySignature(sig wasm.FuncType) bool {
	return sigIs(sig, 2, 0) && allI32(sig.Params)
}

func sigIs(sig wasm.FuncType, numParams, numResults int) bool {
	return len(sig.Params) == numParams && len(sig.Results) == numResults
}

func allI32(ts []wasm.ValType) bool {
	for _, t := range ts {
		if t != wasm.ValI32 {
			return false
		}
	}
	return true
}

// findResultGlobals locates the two exported mutable i32 globals named
// "result_ptr" and "result_len" that a legacy entry point writes its
// result into.
func findResultGlobals(m *wasm.Module, exports map[string]uint32) (ptrIdx, lenIdx uint32, ok bool) {
	var foundPtr, foundLen bool
	for name, idx := range rawGlobalExports(m) {
		switch name {
		case "result_ptr":
			ptrIdx, foundPtr = idx, true
		case "result_len":
			lenIdx, foundLen = idx, true
		}
	}
	return ptrIdx, lenIdx, foundPtr && foundLen
}

// rawGlobalExports returns the subset of the export section naming global
// variables, keyed by export name.
func rawGlobalExports(m *wasm.Module) map[string]uint32 {
	out := make(map[string]uint32)
	for _, exp := range m.Exports {
		if exp.Kind == wasm.KindGlobal {
			out[exp.Name] = exp.Idx
		}
	}
	return out
}
