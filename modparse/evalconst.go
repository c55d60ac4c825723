package modparse

import "github.com/wippyai/wasm2pvm/wasm"

// evalConstExpr evaluates a WASM constant expression restricted to the
// forms the frontend actually needs: i32.const, i64.const, and global.get
// of an already-defined (necessarily imported) global. Any other form is
// reported as unsupported so the caller can fall back to zero, per §4.1
// ("globals with non-constant initializers fall back to zero").
func evalConstExpr(expr []byte, priorGlobals []Global) (int64, bool) {
	instrs, err := wasm.DecodeInstructions(expr)
	if err != nil || len(instrs) == 0 {
		return 0, false
	}

	// A constant expression is exactly one producing instruction followed
	// by `end`.
	var value int64
	var ok bool
	for _, instr := range instrs {
		switch instr.Opcode {
		case wasm.OpI32Const:
			imm, isImm := instr.Imm.(wasm.I32Imm)
			if !isImm {
				return 0, false
			}
			value, ok = int64(imm.Value), true
		case wasm.OpI64Const:
			imm, isImm := instr.Imm.(wasm.I64Imm)
			if !isImm {
				return 0, false
			}
			value, ok = imm.Value, true
		case wasm.OpGlobalGet:
			imm, isImm := instr.Imm.(wasm.GlobalImm)
			if !isImm || int(imm.GlobalIdx) >= len(priorGlobals) {
				return 0, false
			}
			value, ok = priorGlobals[imm.GlobalIdx].Init, true
		case wasm.OpEnd:
			// terminator; nothing to do
		default:
			return 0, false
		}
	}
	return value, ok
}

// evalOffsetExpr evaluates a data/element segment's i32 offset expression.
func evalOffsetExpr(expr []byte, globals []Global) (uint32, bool) {
	v, ok := evalConstExpr(expr, globals)
	if !ok {
		return 0, false
	}
	return uint32(v), true
}

// evalFuncRefExpr extracts a function index from a `ref.func N` or
// `ref.null func` constant expression, used by element segments encoded in
// the expression form (flags 4/6).
func evalFuncRefExpr(expr []byte) (*uint32, bool) {
	instrs, err := wasm.DecodeInstructions(expr)
	if err != nil {
		return nil, false
	}
	for _, instr := range instrs {
		switch instr.Opcode {
		case wasm.OpRefFunc:
			imm, ok := instr.Imm.(wasm.RefFuncImm)
			if !ok {
				return nil, false
			}
			idx := imm.FuncIdx
			return &idx, true
		case wasm.OpRefNull:
			return nil, true
		case wasm.OpEnd:
		default:
			return nil, false
		}
	}
	return nil, true
}
