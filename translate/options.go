package translate

import "github.com/wippyai/wasm2pvm/layout"

// Default tunables, applied by resolve whenever the corresponding Options
// field is left zero.
const (
	DefaultStackSize = layout.DefaultStackSize
	DefaultHeapPages = layout.DefaultHeapPages

	// DefaultMaxMemoryPages is the hard ceiling on Options.HeapPages: §5's
	// "a compile-time maximum memory page count (default 256 or 1024)"
	// names 1024 as the upper of the two documented figures, so it serves
	// here as the validation limit rather than a second default.
	DefaultMaxMemoryPages = 1024
)

// Options carries the tunables §4.5 and §6.2 leave configurable: the stack
// segment size baked into every function's prologue overflow check, and the
// linear-memory page ceiling recorded in the SPI header. Zero means "use
// the documented default", resolved in Compile, never read directly.
type Options struct {
	StackSize uint32
	HeapPages uint32
}

func (o Options) resolve() Options {
	if o.StackSize == 0 {
		o.StackSize = DefaultStackSize
	}
	if o.HeapPages == 0 {
		o.HeapPages = DefaultHeapPages
	}
	return o
}
