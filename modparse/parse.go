package modparse

import (
	"strconv"

	"github.com/wippyai/wasm2pvm/errors"
	"github.com/wippyai/wasm2pvm/wasm"
)

// Parse decodes a WASM binary and narrows it to the dialect this compiler
// translates: the type, global, memory, table, and function sections are
// validated against the restricted opcode and value-type set, constant
// expressions are evaluated eagerly, and the module's entry-point
// convention is recognized.
func Parse(bin []byte) (*Program, error) {
	m, err := wasm.ParseModuleValidate(bin)
	if err != nil {
		return nil, errors.ParseFailed(err.Error(), err)
	}

	types := make([]Signature, 0, len(m.Types))
	for _, ft := range m.Types {
		if err := checkSignature(ft.Params, ft.Results); err != nil {
			return nil, err
		}
		types = append(types, Signature{Params: ft.Params, Results: ft.Results})
	}

	if m.NumImportedTables()+len(m.Tables) > 1 {
		return nil, errors.Unsupported(errors.PhaseParse, "table", "at most one table is supported")
	}
	if m.NumImportedMemories()+len(m.Memories) > 1 {
		return nil, errors.Unsupported(errors.PhaseParse, "memory", "at most one linear memory is supported")
	}

	imports := make([]Import, 0, m.NumImportedFuncs())
	for _, imp := range m.Imports {
		switch imp.Desc.Kind {
		case wasm.KindFunc:
			if int(imp.Desc.TypeIdx) >= len(m.Types) {
				return nil, errors.InvalidData(errors.PhaseParse, []string{"import", imp.Module + "." + imp.Name}, "unresolvable function type")
			}
			ft := m.Types[imp.Desc.TypeIdx]
			if err := checkSignature(ft.Params, ft.Results); err != nil {
				return nil, err
			}
			imports = append(imports, Import{
				Module: imp.Module,
				Name:   imp.Name,
				Sig:    Signature{Params: ft.Params, Results: ft.Results},
			})
		case wasm.KindMemory:
			return nil, errors.Unsupported(errors.PhaseParse, "imported memory", "host-provided linear memory is not supported")
		case wasm.KindTable:
			return nil, errors.Unsupported(errors.PhaseParse, "imported table", "host-provided tables are not supported")
		case wasm.KindGlobal:
			return nil, errors.Unsupported(errors.PhaseParse, "imported global", "host-provided globals are not supported")
		default:
			return nil, errors.Unsupported(errors.PhaseParse, "imported tag", "exception handling is not supported")
		}
	}

	globals := make([]Global, 0, len(m.Globals))
	for _, g := range m.Globals {
		if err := checkValType(g.Type.ValType); err != nil {
			return nil, err
		}
		init, ok := evalConstExpr(g.Init, globals)
		globals = append(globals, Global{
			Type:     g.Type.ValType,
			Mutable:  g.Type.Mutable,
			Init:     init,
			FromExpr: ok,
		})
	}

	var mem *Memory
	if len(m.Memories) == 1 {
		lim := m.Memories[0].Limits
		mem = &Memory{InitialPages: uint32(lim.Min)}
		if lim.Max != nil {
			mem.HasMax = true
			mem.MaxPages = uint32(*lim.Max)
		}
	}

	funcs := make([]Function, 0, len(m.Code))
	for i, body := range m.Code {
		locals := expandLocals(body.Locals)
		instrs, err := wasm.DecodeInstructions(body.Code)
		if err != nil {
			return nil, errors.ParseFailed(err.Error(), err)
		}
		ft := m.GetFuncType(uint32(m.NumImportedFuncs() + i))
		if ft == nil {
			return nil, errors.InvalidData(errors.PhaseParse, []string{"func", strconv.Itoa(i)}, "unresolvable function type")
		}
		if err := checkFunction(locals, instrs); err != nil {
			return nil, err
		}
		funcs = append(funcs, Function{
			Sig:    Signature{Params: ft.Params, Results: ft.Results},
			Locals: locals,
			Instrs: instrs,
		})
	}

	var data []DataSegment
	for _, seg := range m.Data {
		if seg.Flags == 1 {
			// Passive segment: only reachable via memory.init, which
			// restrict.go already rejects. Nothing to materialize.
			continue
		}
		offset, ok := evalOffsetExpr(seg.Offset, globals)
		if !ok {
			offset = 0
		}
		data = append(data, DataSegment{Offset: offset, Bytes: seg.Init})
	}

	var table []*uint32
	if len(m.Tables) == 1 {
		table = make([]*uint32, m.Tables[0].Limits.Min)
		for _, elem := range m.Elements {
			if err := placeElement(table, elem, globals); err != nil {
				return nil, err
			}
		}
	}

	exports := make(map[string]uint32)
	for _, exp := range m.Exports {
		if exp.Kind == wasm.KindFunc {
			exports[exp.Name] = exp.Idx
		}
	}

	funcTypeOf := func(funcIdx uint32) wasm.FuncType {
		ft := m.GetFuncType(funcIdx)
		if ft == nil {
			return wasm.FuncType{}
		}
		return *ft
	}
	entry := detectEntry(m, funcTypeOf, exports)
	if entry.Convention == EntryUnknown {
		return nil, errors.NoExportedFunction()
	}

	return &Program{
		Types:   types,
		Imports: imports,
		Funcs:   funcs,
		Globals: globals,
		Memory:  mem,
		Table:   table,
		Data:    data,
		Exports: exports,
		Start:   m.Start,
		Entry:   entry,
	}, nil
}

// placeElement resolves one element segment's entries into table, ignoring
// passive and declarative segments (flags 1, 3, 5, 7), which have no
// static effect on the call table since table.init and elem.drop are
// rejected by restrict.go.
func placeElement(table []*uint32, elem wasm.Element, globals []Global) error {
	active := elem.Flags == 0 || elem.Flags == 2 || elem.Flags == 4 || elem.Flags == 6
	if !active {
		return nil
	}
	offset, ok := evalOffsetExpr(elem.Offset, globals)
	if !ok {
		offset = 0
	}

	exprForm := elem.Flags == 4 || elem.Flags == 6
	if exprForm {
		for i, expr := range elem.Exprs {
			fidx, ok := evalFuncRefExpr(expr)
			if !ok || fidx == nil {
				continue
			}
			idx := *fidx
			if pos := int(offset) + i; pos < len(table) {
				table[pos] = &idx
			}
		}
		return nil
	}

	for i, fidx := range elem.FuncIdxs {
		idx := fidx
		if pos := int(offset) + i; pos < len(table) {
			table[pos] = &idx
		}
	}
	return nil
}

// expandLocals flattens run-length-encoded local declarations into one
// entry per local index.
func expandLocals(groups []wasm.LocalEntry) []wasm.ValType {
	var out []wasm.ValType
	for _, g := range groups {
		for i := uint32(0); i < g.Count; i++ {
			out = append(out, g.ValType)
		}
	}
	return out
}

