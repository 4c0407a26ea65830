package dsd

import "errors"

// Errors.
var (
	ErrIncompatibleFormat = errors.New("dsd: format is incompatible with operation")
	ErrNoMoreSpace        = errors.New("dsd: no more space left after reading dsd type")
	ErrUnknownFormat      = errors.New("dsd: format is unknown")
)

// SerializationFormat is the format prefix of a dsd blob.
type SerializationFormat uint8

// Serialization formats.
const (
	AUTO    SerializationFormat = 0
	RAW     SerializationFormat = 1
	CBOR    SerializationFormat = 67 // C
	JSON    SerializationFormat = 74 // J
	MsgPack SerializationFormat = 77 // M
)

// CompressionFormat is the compression prefix of a compressed dsd blob.
type CompressionFormat uint8

// Compression formats.
const (
	AutoCompress CompressionFormat = 0
	GZIP         CompressionFormat = 90 // Z
)

var (
	DefaultSerializationFormat = JSON
	DefaultCompressionFormat   = GZIP
)

// ValidateSerializationFormat validates if the format is for serialization,
// and returns the validated format as well as the result of the validation.
// If called on the AUTO format, it returns the default serialization format.
func (format SerializationFormat) ValidateSerializationFormat() (validated SerializationFormat, ok bool) {
	switch format {
	case AUTO:
		return DefaultSerializationFormat, true
	case RAW, CBOR, JSON, MsgPack:
		return format, true
	default:
		return 0, false
	}
}

// ValidateCompressionFormat validates if the format is for compression,
// and returns the validated format as well as the result of the validation.
// If called on the AUTO format, it returns the default compression format.
func (format CompressionFormat) ValidateCompressionFormat() (validated CompressionFormat, ok bool) {
	switch format {
	case AutoCompress:
		return DefaultCompressionFormat, true
	case GZIP:
		return format, true
	default:
		return 0, false
	}
}

// ParseSerializationFormat returns the format for the given name.
func ParseSerializationFormat(name string) (SerializationFormat, bool) {
	switch name {
	case "", "auto":
		return DefaultSerializationFormat, true
	case "raw":
		return RAW, true
	case "cbor":
		return CBOR, true
	case "json":
		return JSON, true
	case "msgpack":
		return MsgPack, true
	default:
		return 0, false
	}
}

func (format SerializationFormat) String() string {
	switch format {
	case AUTO:
		return "auto"
	case RAW:
		return "raw"
	case CBOR:
		return "cbor"
	case JSON:
		return "json"
	case MsgPack:
		return "msgpack"
	default:
		return "unknown"
	}
}
