package store

import (
	"fmt"
	"reflect"
	"sync"
)

// A Factory returns a new, empty entity of a registered type.
type Factory func() Entity

var (
	factories = make(map[string]Factory)
	typeNames = make(map[reflect.Type]string)
	typesLock sync.RWMutex
)

func init() {
	_ = RegisterType("item", func() Entity { return &Item{} })
	_ = RegisterType("itemstream", func() Entity { return &ItemStream{} })
	_ = RegisterType("referencestream", func() Entity { return &ReferenceStream{} })
	_ = RegisterType("itemreference", func() Entity { return &ItemReference{} })
}

// RegisterType registers an entity type, so that it can be persisted and
// recovered. The factory must return a pointer to a new, empty entity.
func RegisterType(name string, factory Factory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("%w: name and factory are required", ErrTypeNotRegistered)
	}
	t := reflect.TypeOf(factory())

	typesLock.Lock()
	defer typesLock.Unlock()

	if _, ok := factories[name]; ok {
		return fmt.Errorf("entity type %s already registered", name)
	}
	if existing, ok := typeNames[t]; ok {
		return fmt.Errorf("type %s already registered as %s", t, existing)
	}
	factories[name] = factory
	typeNames[t] = name
	return nil
}

func typeNameOf(e Entity) (string, bool) {
	typesLock.RLock()
	defer typesLock.RUnlock()

	name, ok := typeNames[reflect.TypeOf(e)]
	return name, ok
}

func newEntity(name string) (Entity, error) {
	typesLock.RLock()
	factory, ok := factories[name]
	typesLock.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotRegistered, name)
	}
	return factory(), nil
}
