// Package container provides a byte slice builder and reader for length prefixed binary layouts.
package container

import (
	"errors"

	"github.com/safing/itemstore/formats/varint"
)

// ErrNotEnoughData is returned when a read exceeds the held data.
var ErrNotEnoughData = errors.New("container: not enough data to return")

// Container is []byte slice on steroids, allowing for quick data appending and fetching.
type Container struct {
	compartments [][]byte
	offset       int
}

// New creates a new container with an optional initial []byte slice. Data will NOT be copied.
func New(data ...[]byte) *Container {
	return &Container{
		compartments: data,
	}
}

// Append appends the given data. Data will NOT be copied.
func (c *Container) Append(data []byte) {
	c.compartments = append(c.compartments, data)
}

// AppendNumber appends a number (varint encoded).
func (c *Container) AppendNumber(n uint64) {
	c.compartments = append(c.compartments, varint.Pack64(n))
}

// AppendAsBlock appends the length of the data and the data itself. Data will NOT be copied.
func (c *Container) AppendAsBlock(data []byte) {
	c.AppendNumber(uint64(len(data)))
	c.Append(data)
}

// Length returns the full length of all bytes held by the container.
func (c *Container) Length() (length int) {
	for i := c.offset; i < len(c.compartments); i++ {
		length += len(c.compartments[i])
	}
	return
}

// HoldsData returns true if the Container holds any data.
func (c *Container) HoldsData() bool {
	return c.Length() > 0
}

// CompileData concatenates all bytes held by the container and returns it as one single []byte slice. Data will NOT be copied and is NOT consumed.
func (c *Container) CompileData() []byte {
	if len(c.compartments)-c.offset != 1 {
		newBuf := make([]byte, 0, c.Length())
		for i := c.offset; i < len(c.compartments); i++ {
			newBuf = append(newBuf, c.compartments[i]...)
		}
		c.compartments = [][]byte{newBuf}
		c.offset = 0
	}
	return c.compartments[c.offset]
}

// GetNextN8 parses and consumes a varint of type uint8.
func (c *Container) GetNextN8() (uint8, error) {
	buf := c.CompileData()
	n, read, err := varint.Unpack8(buf)
	if err != nil {
		return 0, err
	}
	c.skip(read)
	return n, nil
}

// GetNextN64 parses and consumes a varint of type uint64.
func (c *Container) GetNextN64() (uint64, error) {
	buf := c.CompileData()
	n, read, err := varint.Unpack64(buf)
	if err != nil {
		return 0, err
	}
	c.skip(read)
	return n, nil
}

// GetNextBlock returns the next length prefixed block of data. Data is NOT copied and IS consumed.
func (c *Container) GetNextBlock() ([]byte, error) {
	block, read, err := varint.GetNextBlock(c.CompileData())
	if err != nil {
		return nil, err
	}
	c.skip(read)
	return block, nil
}

// GetAll returns all remaining data. Data is NOT copied and IS consumed.
func (c *Container) GetAll() []byte {
	data := c.CompileData()
	c.compartments = nil
	c.offset = 0
	return data
}

func (c *Container) skip(n int) {
	data := c.CompileData()
	if n > len(data) {
		n = len(data)
	}
	c.compartments = [][]byte{data[n:]}
	c.offset = 0
}
