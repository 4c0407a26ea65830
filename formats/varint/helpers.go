package varint

// PrependLength prepends the varint encoded length of the byte slice to itself.
func PrependLength(data []byte) []byte {
	return append(Pack64(uint64(len(data))), data...)
}

// GetNextBlock reads a length prefixed block from the start of data.
// It returns the block and the total amount of bytes consumed, including the length prefix.
func GetNextBlock(data []byte) ([]byte, int, error) {
	l, n, err := Unpack64(data)
	if err != nil {
		return nil, 0, err
	}
	if l > uint64(len(data)-n) {
		return nil, 0, ErrBufTooSmall
	}
	total := n + int(l)
	return data[n:total], total, nil
}
