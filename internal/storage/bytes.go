package storage

import (
	"encoding/binary"
	"math"
)

// Chunk files are raw little-endian float32, matching the element layout a
// transfer engine expects, so no decode pass sits between disk and device.

func floatsToBytes(dst []byte, src []float32) {
	for i, v := range src {
		binary.LittleEndian.PutUint32(dst[i*elemBytes:], math.Float32bits(v))
	}
}

func bytesToFloats(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*elemBytes:]))
	}
}
