// Package dsd provides dynamic structured data: serialized blobs that carry their own format identifier.
package dsd

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/safing/itemstore/formats/varint"
)

// Load loads a dsd blob into the given interface and returns the format it was stored in.
func Load(data []byte, t interface{}) (SerializationFormat, error) {
	format, read, err := varint.Unpack8(data)
	if err != nil {
		return 0, err
	}
	if len(data) < read {
		return 0, ErrNoMoreSpace
	}

	return SerializationFormat(format), LoadAsFormat(data[read:], SerializationFormat(format), t)
}

// LoadAsFormat loads data of the given format into the given interface.
func LoadAsFormat(data []byte, format SerializationFormat, t interface{}) (err error) {
	switch format {
	case RAW:
		raw, ok := t.(*[]byte)
		if !ok {
			return fmt.Errorf("%w: raw data needs *[]byte, got %T", ErrIncompatibleFormat, t)
		}
		*raw = append((*raw)[:0], data...)
		return nil
	case JSON:
		err = json.Unmarshal(data, t)
	case CBOR:
		err = cbor.Unmarshal(data, t)
	case MsgPack:
		err = msgpack.Unmarshal(data, t)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownFormat, format)
	}
	if err != nil {
		return fmt.Errorf("dsd: failed to load %s data: %w", format, err)
	}
	return nil
}

// Dump stores the interface as a dsd formatted blob.
func Dump(t interface{}, format SerializationFormat) ([]byte, error) {
	format, ok := format.ValidateSerializationFormat()
	if !ok {
		return nil, ErrUnknownFormat
	}

	var data []byte
	var err error
	switch format {
	case RAW:
		raw, ok := t.([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: raw format needs []byte, got %T", ErrIncompatibleFormat, t)
		}
		data = raw
	case JSON:
		data, err = json.Marshal(t)
	case CBOR:
		data, err = cbor.Marshal(t)
	case MsgPack:
		data, err = msgpack.Marshal(t)
	}
	if err != nil {
		return nil, fmt.Errorf("dsd: failed to dump %s data: %w", format, err)
	}

	return append(varint.Pack8(uint8(format)), data...), nil
}
