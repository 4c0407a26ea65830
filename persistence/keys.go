package persistence

import (
	"encoding/binary"
)

var (
	itemPrefix        = []byte("item/")
	lockPrefix        = []byte("lock/")
	redeliveredPrefix = []byte("redelivered/")

	nextIDKey  = []byte("meta/next-id")
	versionKey = []byte("meta/version")
)

func idKey(prefix []byte, id uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], id)
	return key
}

func keyID(prefix, key []byte) (uint64, bool) {
	if len(key) != len(prefix)+8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(key[len(prefix):]), true
}

func encodeUint64(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

func decodeUint64(buf []byte) uint64 {
	if len(buf) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(buf)
}
