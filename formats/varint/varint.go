package varint

import (
	"encoding/binary"
	"math"
)

// Pack8 packs a uint8 into a VarInt.
func Pack8(n uint8) []byte {
	return Pack64(uint64(n))
}

// Pack32 packs a uint32 into a VarInt.
func Pack32(n uint32) []byte {
	return Pack64(uint64(n))
}

// Pack64 packs a uint64 into a VarInt.
func Pack64(n uint64) []byte {
	buf := make([]byte, binary.MaxVarintLen64)
	size := binary.PutUvarint(buf, n)
	return buf[:size]
}

// Unpack8 unpacks a VarInt into a uint8. It returns the extracted int, how many bytes were used and an error.
func Unpack8(blob []byte) (uint8, int, error) {
	n, read, err := unpack(blob, math.MaxUint8, "uint8")
	return uint8(n), read, err
}

// Unpack32 unpacks a VarInt into a uint32. It returns the extracted int, how many bytes were used and an error.
func Unpack32(blob []byte) (uint32, int, error) {
	n, read, err := unpack(blob, math.MaxUint32, "uint32")
	return uint32(n), read, err
}

// Unpack64 unpacks a VarInt into a uint64. It returns the extracted int, how many bytes were used and an error.
func Unpack64(blob []byte) (uint64, int, error) {
	return unpack(blob, math.MaxUint64, "uint64")
}

func unpack(blob []byte, limit uint64, name string) (uint64, int, error) {
	if len(blob) == 0 {
		return 0, 0, ErrBufEmpty
	}
	n, read := binary.Uvarint(blob)
	switch {
	case read == 0:
		return 0, 0, ErrBufTooSmall
	case read < 0:
		return 0, 0, &ValueExceededError{Max: "uint64"}
	case n > limit:
		return 0, 0, &ValueExceededError{Max: name}
	}
	return n, read, nil
}
