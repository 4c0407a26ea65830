package dsd

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"

	"github.com/safing/itemstore/formats/varint"
)

// DumpAndCompress stores the interface as a dsd formatted data structure and compresses the resulting data.
func DumpAndCompress(t interface{}, format SerializationFormat, compression CompressionFormat) ([]byte, error) {
	data, err := Dump(t, format)
	if err != nil {
		return nil, err
	}

	compression, ok := compression.ValidateCompressionFormat()
	if !ok {
		return nil, ErrUnknownFormat
	}

	buf := bytes.NewBuffer(varint.Pack8(uint8(compression)))
	switch compression {
	case GZIP:
		gzipWriter, err := gzip.NewWriterLevel(buf, gzip.BestSpeed)
		if err != nil {
			return nil, err
		}
		n, err := gzipWriter.Write(data)
		if err != nil {
			return nil, err
		}
		if n != len(data) {
			return nil, errors.New("dsd: failed to fully write to gzip compressor")
		}
		// flush and write gzip footer
		if err := gzipWriter.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: compression %d", ErrUnknownFormat, compression)
	}

	return buf.Bytes(), nil
}

// DecompressAndLoad decompresses the data and then loads the resulting dsd blob into the interface.
func DecompressAndLoad(data []byte, t interface{}) (SerializationFormat, error) {
	compression, read, err := varint.Unpack8(data)
	if err != nil {
		return 0, err
	}

	buf := bytes.NewBuffer(nil)
	switch CompressionFormat(compression) {
	case GZIP:
		gzipReader, err := gzip.NewReader(bytes.NewReader(data[read:]))
		if err != nil {
			return 0, err
		}
		if _, err := buf.ReadFrom(gzipReader); err != nil {
			return 0, err
		}
		// verify gzip footer
		if err := gzipReader.Close(); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("%w: compression %d", ErrUnknownFormat, compression)
	}

	return Load(buf.Bytes(), t)
}
