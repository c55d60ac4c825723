package layout

import "testing"

func TestAlignUp(t *testing.T) {
	tests := []struct {
		name  string
		x     uint32
		align uint32
		want  uint32
	}{
		{"already aligned", 0x10000, 0x10000, 0x10000},
		{"needs rounding", 0x10001, 0x10000, 0x20000},
		{"zero", 0, 0x10000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AlignUp(tt.x, tt.align); got != tt.want {
				t.Errorf("AlignUp(%#x, %#x) = %#x, want %#x", tt.x, tt.align, got, tt.want)
			}
		})
	}
}

func TestWasmMemoryBase(t *testing.T) {
	tests := []struct {
		name     string
		numFuncs uint32
		want     uint32
	}{
		{"no functions floors at minimum", 0, WasmMemoryMinBase},
		{"small module floors at minimum", 4, WasmMemoryMinBase},
		{"large module rounds up past minimum", 4096, AlignUp(SpilledLocalsBase+4096*PerFunctionSpillBytes, WasmMemoryAlign)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WasmMemoryBase(tt.numFuncs); got != tt.want {
				t.Errorf("WasmMemoryBase(%d) = %#x, want %#x", tt.numFuncs, got, tt.want)
			}
			if got := WasmMemoryBase(tt.numFuncs); got%WasmMemoryAlign != 0 {
				t.Errorf("WasmMemoryBase(%d) = %#x is not 64KiB aligned", tt.numFuncs, got)
			}
		})
	}
}

func TestStackLimit(t *testing.T) {
	got := StackLimit(DefaultStackSize)
	want := StackSegmentEnd - DefaultStackSize
	if got != want {
		t.Errorf("StackLimit(%#x) = %#x, want %#x", DefaultStackSize, got, want)
	}
}

func TestGlobalSlot(t *testing.T) {
	if got := GlobalSlot(0); got != GlobalsBase {
		t.Errorf("GlobalSlot(0) = %#x, want %#x", got, GlobalsBase)
	}
	if got := GlobalSlot(3); got != GlobalsBase+24 {
		t.Errorf("GlobalSlot(3) = %#x, want %#x", got, GlobalsBase+24)
	}
}

func TestSpillArea(t *testing.T) {
	start, end := SpillArea(2)
	wantStart := SpilledLocalsBase + 2*PerFunctionSpillBytes
	if start != wantStart || end != wantStart+PerFunctionSpillBytes {
		t.Errorf("SpillArea(2) = [%#x, %#x), want [%#x, %#x)", start, end, wantStart, wantStart+PerFunctionSpillBytes)
	}
}
