package translate

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/wasm2pvm/link"
	"github.com/wippyai/wasm2pvm/modparse"
	"github.com/wippyai/wasm2pvm/pvm"
	"github.com/wippyai/wasm2pvm/ssa"
)

// FunctionDiagnostic summarizes one local function's lowering, for
// cmd/wasm2pvm's inspect subcommand and for callers that want a size/shape
// report without re-decoding the SPI container's code section themselves.
type FunctionDiagnostic struct {
	Index     int
	CodeBytes int
	FrameSize uint32
	NumFixups int
}

// Result is Compile's output: the finished SPI container plus a
// per-function diagnostic summary.
type Result struct {
	SPI         []byte
	Diagnostics []FunctionDiagnostic
}

// Compile runs the full wasm2pvm pipeline over a WebAssembly binary module:
// parse (modparse), build SSA and run mem2reg (ssa), lower to PVM bytecode
// (pvm), and assemble the SPI container (link). opts' zero fields take
// their documented defaults.
func Compile(wasmBytes []byte, opts Options) (*Result, error) {
	opts = opts.resolve()
	if opts.HeapPages > DefaultMaxMemoryPages {
		return nil, fmt.Errorf("heap pages %d exceed the maximum of %d", opts.HeapPages, DefaultMaxMemoryPages)
	}

	Logger().Info("compile starting", zap.Int("wasm_bytes", len(wasmBytes)))

	prog, err := modparse.Parse(wasmBytes)
	if err != nil {
		Logger().Error("parse failed", zap.Error(err))
		return nil, fmt.Errorf("parse: %w", err)
	}
	Logger().Debug("parsed module", zap.Int("funcs", prog.NumFuncs()), zap.Int("imports", prog.NumImportedFuncs()))

	ssaMod, err := ssa.Build(prog)
	if err != nil {
		Logger().Error("ssa build failed", zap.Error(err))
		return nil, fmt.Errorf("build ssa: %w", err)
	}

	pvmMod, err := pvm.Lower(ssaMod, uint32(prog.NumImportedFuncs()), opts.StackSize)
	if err != nil {
		return nil, fmt.Errorf("lower: %w", err)
	}

	asm, err := link.Assemble(prog, pvmMod, opts.StackSize, opts.HeapPages)
	if err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}

	Logger().Info("compile finished", zap.Int("spi_bytes", len(asm.SPI)))

	return &Result{SPI: asm.SPI, Diagnostics: diagnostics(pvmMod)}, nil
}

func diagnostics(mod *pvm.Module) []FunctionDiagnostic {
	out := make([]FunctionDiagnostic, len(mod.Funcs))
	for i, f := range mod.Funcs {
		out[i] = FunctionDiagnostic{
			Index:     i,
			CodeBytes: len(f.Code),
			FrameSize: f.FrameSize,
			NumFixups: len(f.Fixups),
		}
	}
	return out
}
