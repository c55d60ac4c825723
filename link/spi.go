package link

import (
	"encoding/binary"

	"github.com/wippyai/wasm2pvm/errors"
)

const (
	u24Max = 1<<24 - 1
	u16Max = 1<<16 - 1
)

// encodeSPI wraps roData/rwData/code in the SPI container (§6.2):
//
//	roLength   u24 little-endian
//	rwLength   u24 little-endian
//	heapPages  u16 little-endian
//	stackSize  u24 little-endian
//	roData     roLength bytes
//	rwData     rwLength bytes
//	codeLength u32 little-endian
//	code       codeLength bytes
func encodeSPI(roData, rwData, code []byte, stackSize, heapPages uint32) ([]byte, error) {
	if len(roData) > u24Max {
		return nil, errors.Overflow(errors.PhaseAssemble, nil, len(roData), "u24 roLength")
	}
	if len(rwData) > u24Max {
		return nil, errors.Overflow(errors.PhaseAssemble, nil, len(rwData), "u24 rwLength")
	}
	if heapPages > u16Max {
		return nil, errors.Overflow(errors.PhaseAssemble, nil, heapPages, "u16 heapPages")
	}
	if stackSize > u24Max {
		return nil, errors.Overflow(errors.PhaseAssemble, nil, stackSize, "u24 stackSize")
	}
	if uint64(len(code)) > 1<<32-1 {
		return nil, errors.Overflow(errors.PhaseAssemble, nil, len(code), "u32 codeLength")
	}

	out := make([]byte, 0, 3+3+2+3+len(roData)+len(rwData)+4+len(code))
	out = putU24LE(out, uint32(len(roData)))
	out = putU24LE(out, uint32(len(rwData)))
	out = putU16LE(out, uint16(heapPages))
	out = putU24LE(out, stackSize)
	out = append(out, roData...)
	out = append(out, rwData...)

	var codeLen [4]byte
	binary.LittleEndian.PutUint32(codeLen[:], uint32(len(code)))
	out = append(out, codeLen[:]...)
	out = append(out, code...)
	return out, nil
}

func putU24LE(out []byte, v uint32) []byte {
	return append(out, byte(v), byte(v>>8), byte(v>>16))
}

func putU16LE(out []byte, v uint16) []byte {
	return append(out, byte(v), byte(v>>8))
}
