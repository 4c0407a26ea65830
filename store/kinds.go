package store

// Kind is the variant of an entity.
type Kind uint8

// Entity kinds.
const (
	KindItem Kind = iota + 1
	KindItemStream
	KindReferenceStream
	KindItemReference
)

func (k Kind) String() string {
	switch k {
	case KindItem:
		return "item"
	case KindItemStream:
		return "item stream"
	case KindReferenceStream:
		return "reference stream"
	case KindItemReference:
		return "item reference"
	default:
		return "unknown"
	}
}

// State is the lifecycle state of an entity in store.
type State uint8

// Lifecycle states.
const (
	StateAdding State = iota + 1
	StateAvailable
	StateLocked
	StateRemoving
)

func (s State) String() string {
	switch s {
	case StateAdding:
		return "adding"
	case StateAvailable:
		return "available"
	case StateLocked:
		return "locked"
	case StateRemoving:
		return "removing"
	default:
		return "not in store"
	}
}

// StorageStrategy defines whether and when an entity is persisted.
type StorageStrategy uint8

// Storage strategies.
const (
	// StoreNever keeps the entity in memory only.
	StoreNever StorageStrategy = iota
	// StoreMaybe persists the entity only while the store holds more data
	// in memory than its spill threshold.
	StoreMaybe
	// StoreEventually persists the entity in the background after commit.
	StoreEventually
	// StoreAlways persists the entity before the transaction commits.
	StoreAlways
)

func (s StorageStrategy) String() string {
	switch s {
	case StoreNever:
		return "never"
	case StoreMaybe:
		return "maybe"
	case StoreEventually:
		return "eventually"
	case StoreAlways:
		return "always"
	default:
		return "unknown"
	}
}

// Priorities.
const (
	MinPriority     = 0
	MaxPriority     = 9
	DefaultPriority = 4
)

// Lock ids.
const (
	// Unlocked is the lock id of entities that are not locked.
	Unlocked uint64 = 0
	// DeliveryDelayLockID locks entities until their delivery delay passed.
	DeliveryDelayLockID uint64 = ^uint64(0)
)

func clampPriority(p int) int {
	switch {
	case p < MinPriority:
		return MinPriority
	case p > MaxPriority:
		return MaxPriority
	default:
		return p
	}
}
