// Package message provides an item with a JSON body and per message
// delivery settings.
package message

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/safing/itemstore/store"
)

// TypeName is the name the message type is registered with.
const TypeName = "message"

// Errors.
var (
	ErrInvalidJSON = errors.New("invalid json")
	ErrInStore     = errors.New("delivery settings cannot change while the message is in store")
)

const (
	keyPriority = "meta.priority"
	keyTTL      = "meta.ttl"
	keyDelay    = "meta.delay"
	keyStrategy = "meta.strategy"
	keyBody     = "body"
)

func init() {
	if err := store.RegisterType(TypeName, func() store.Entity { return &Message{} }); err != nil {
		panic(err)
	}
}

// Message is an item carrying a JSON body. The body is accessed by gjson
// paths. After changing the body of a message that is in store, call
// RequestUpdate to persist the change.
type Message struct {
	store.Item

	lock sync.RWMutex
	json string
}

// New returns a message with the given JSON body and default settings.
func New(body string) (*Message, error) {
	if !gjson.Valid(body) {
		return nil, ErrInvalidJSON
	}
	m := &Message{}
	doc, err := sjson.SetRaw(emptyDocument(), keyBody, body)
	if err != nil {
		return nil, err
	}
	m.json = doc
	return m, nil
}

func emptyDocument() string {
	return fmt.Sprintf(`{"meta":{"priority":%d,"strategy":%d}}`, store.DefaultPriority, store.StoreEventually)
}

func (m *Message) document() string {
	if m.json == "" {
		return emptyDocument()
	}
	return m.json
}

// Body returns the JSON body.
func (m *Message) Body() string {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return gjson.Get(m.document(), keyBody).Raw
}

// Set sets the body value identified by key. Existing values keep their type.
func (m *Message) Set(key string, value interface{}) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	path := keyBody + "." + key
	doc := m.document()
	result := gjson.Get(doc, path)
	if result.Exists() {
		switch value.(type) {
		case string:
			if result.Type != gjson.String {
				return fmt.Errorf("tried to set field %s (%s) to a %T value", key, result.Type.String(), value)
			}
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			if result.Type != gjson.Number {
				return fmt.Errorf("tried to set field %s (%s) to a %T value", key, result.Type.String(), value)
			}
		case bool:
			if result.Type != gjson.True && result.Type != gjson.False {
				return fmt.Errorf("tried to set field %s (%s) to a %T value", key, result.Type.String(), value)
			}
		}
	}

	updated, err := sjson.Set(doc, path, value)
	if err != nil {
		return err
	}
	m.json = updated
	return nil
}

// Delete removes the body value identified by key.
func (m *Message) Delete(key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	updated, err := sjson.Delete(m.document(), keyBody+"."+key)
	if err != nil {
		return err
	}
	m.json = updated
	return nil
}

func (m *Message) get(key string) gjson.Result {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return gjson.Get(m.document(), keyBody+"."+key)
}

// GetString returns the string found by the given key and whether it could be extracted.
func (m *Message) GetString(key string) (value string, ok bool) {
	result := m.get(key)
	if !result.Exists() || result.Type != gjson.String {
		return "", false
	}
	return result.String(), true
}

// GetInt returns the int found by the given key and whether it could be extracted.
func (m *Message) GetInt(key string) (value int64, ok bool) {
	result := m.get(key)
	if !result.Exists() || result.Type != gjson.Number {
		return 0, false
	}
	return result.Int(), true
}

// GetFloat returns the float found by the given key and whether it could be extracted.
func (m *Message) GetFloat(key string) (value float64, ok bool) {
	result := m.get(key)
	if !result.Exists() || result.Type != gjson.Number {
		return 0, false
	}
	return result.Float(), true
}

// GetBool returns the bool found by the given key and whether it could be extracted.
func (m *Message) GetBool(key string) (value bool, ok bool) {
	result := m.get(key)
	switch result.Type {
	case gjson.True:
		return true, true
	case gjson.False:
		return false, true
	default:
		return false, false
	}
}

// Exists returns whether the given key exists in the body.
func (m *Message) Exists(key string) bool {
	return m.get(key).Exists()
}

func (m *Message) setMeta(key string, value interface{}) error {
	if m.IsInStore() {
		return ErrInStore
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	updated, err := sjson.Set(m.document(), key, value)
	if err != nil {
		return err
	}
	m.json = updated
	return nil
}

func (m *Message) meta(key string) gjson.Result {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return gjson.Get(m.document(), key)
}

// SetPriority sets the priority. Values out of range are clamped by the store.
func (m *Message) SetPriority(priority int) error {
	return m.setMeta(keyPriority, priority)
}

// SetTimeToLive sets the maximum time in store. Zero disables expiry.
func (m *Message) SetTimeToLive(ttl time.Duration) error {
	return m.setMeta(keyTTL, int64(ttl))
}

// SetDeliveryDelay sets for how long the message is held back after commit.
func (m *Message) SetDeliveryDelay(delay time.Duration) error {
	return m.setMeta(keyDelay, int64(delay))
}

// SetStorageStrategy sets whether and when the message is persisted.
func (m *Message) SetStorageStrategy(strategy store.StorageStrategy) error {
	return m.setMeta(keyStrategy, int(strategy))
}

// Priority implements store.Entity.
func (m *Message) Priority() int {
	return int(m.meta(keyPriority).Int())
}

// MaximumTimeInStore implements store.Entity.
func (m *Message) MaximumTimeInStore() time.Duration {
	return time.Duration(m.meta(keyTTL).Int())
}

// DeliveryDelay implements store.Entity.
func (m *Message) DeliveryDelay() time.Duration {
	return time.Duration(m.meta(keyDelay).Int())
}

// StorageStrategy implements store.Entity.
func (m *Message) StorageStrategy() store.StorageStrategy {
	return store.StorageStrategy(m.meta(keyStrategy).Int())
}

// CanExpireSilently implements store.Entity.
func (m *Message) CanExpireSilently() bool {
	return true
}

// PersistentData implements store.Entity.
func (m *Message) PersistentData() ([]byte, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return []byte(m.document()), nil
}

// Restore implements store.Entity.
func (m *Message) Restore(data []byte) error {
	if data == nil {
		return nil
	}
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("%w: message data", ErrInvalidJSON)
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	m.json = string(data)
	return nil
}
