// Package config holds the options of an item store and loads them from
// YAML or JSON.
package config

import (
	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/copystructure"

	"github.com/safing/itemstore/formats/dsd"
	"github.com/safing/itemstore/log"
)

// Options configures an item store.
type Options struct {
	// StorageType is the name of a registered persistence storage, eg.
	// "hashmap", "bbolt", "badger" or "sinkhole".
	StorageType string `json:"storageType"`
	// StorageLocation is the directory handed to the storage.
	StorageLocation string `json:"storageLocation"`

	// IDBlockSize is the amount of IDs reserved from persistence at once.
	IDBlockSize uint64 `json:"idBlockSize"`
	// NonPersistentCacheSlots caps the number of memory only entities.
	// Zero disables the cap.
	NonPersistentCacheSlots int `json:"nonPersistentCacheSlots"`
	// SpillThreshold is the amount of in-memory bytes above which entities
	// with the "maybe" storage strategy are written to persistence.
	SpillThreshold int64 `json:"spillThreshold"`
	// DataCacheSize is the amount of serialized entities cached in memory.
	DataCacheSize int `json:"dataCacheSize"`
	// HeaderFormat is the serialization format of persisted entity headers.
	HeaderFormat string `json:"headerFormat"`

	// NotificationBuffer is the feed size of subscriptions.
	NotificationBuffer int `json:"notificationBuffer"`

	// LogLevel is applied by Apply.
	LogLevel string `json:"logLevel"`
}

var defaults = Options{
	StorageType:             "hashmap",
	IDBlockSize:             1000,
	NonPersistentCacheSlots: 10000,
	SpillThreshold:          64 << 20,
	DataCacheSize:           1024,
	HeaderFormat:            "msgpack",
	NotificationBuffer:      100,
	LogLevel:                "info",
}

// Default returns a copy of the default options.
func Default() *Options {
	return defaults.Clone()
}

// Clone returns a deep copy of the options.
func (o *Options) Clone() *Options {
	copied, err := copystructure.Copy(o)
	if err != nil {
		// Options only holds plain values.
		log.Errorf("config: failed to copy options: %s", err)
		shallow := *o
		return &shallow
	}
	return copied.(*Options) //nolint:forcetypeassert
}

// Validate checks all options and returns every problem found.
func (o *Options) Validate() error {
	var result *multierror.Error

	if o.StorageType == "" {
		result = multierror.Append(result, newInvalidValueError("storageType", o.StorageType, "must be set"))
	}
	if o.IDBlockSize == 0 {
		result = multierror.Append(result, newInvalidValueError("idBlockSize", o.IDBlockSize, "must be greater than zero"))
	}
	if o.NonPersistentCacheSlots < 0 {
		result = multierror.Append(result, newInvalidValueError("nonPersistentCacheSlots", o.NonPersistentCacheSlots, "must not be negative"))
	}
	if o.SpillThreshold < 0 {
		result = multierror.Append(result, newInvalidValueError("spillThreshold", o.SpillThreshold, "must not be negative"))
	}
	if o.DataCacheSize <= 0 {
		result = multierror.Append(result, newInvalidValueError("dataCacheSize", o.DataCacheSize, "must be greater than zero"))
	}
	if _, ok := o.SerializationFormat(); !ok {
		result = multierror.Append(result, newInvalidValueError("headerFormat", o.HeaderFormat, "unknown format"))
	}
	if o.NotificationBuffer < 0 {
		result = multierror.Append(result, newInvalidValueError("notificationBuffer", o.NotificationBuffer, "must not be negative"))
	}
	if o.LogLevel != "" && log.ParseLevel(o.LogLevel) == 0 {
		result = multierror.Append(result, newInvalidValueError("logLevel", o.LogLevel, "unknown level"))
	}

	return result.ErrorOrNil()
}

// SerializationFormat returns the header format as a dsd format.
func (o *Options) SerializationFormat() (dsd.SerializationFormat, bool) {
	format, ok := dsd.ParseSerializationFormat(o.HeaderFormat)
	if !ok || format == dsd.AUTO || format == dsd.RAW {
		return 0, false
	}
	return format, true
}

// Apply applies the global parts of the options, ie. the log level.
func (o *Options) Apply() {
	if o.LogLevel == "" {
		return
	}
	log.SetLogLevel(log.ParseLevel(o.LogLevel))
}
