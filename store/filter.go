package store

// Filter selects entities for cursors and find operations. Matches must be
// a pure function of the entity for the lifetime of a cursor. It is called
// with the collection lock held and must not call back into the store.
type Filter interface {
	Matches(e Entity) (bool, error)
}

// FilterFunc adapts a function to a Filter.
type FilterFunc func(e Entity) (bool, error)

// Matches calls f.
func (f FilterFunc) Matches(e Entity) (bool, error) {
	return f(e)
}

// MatchAll matches every entity.
var MatchAll Filter = FilterFunc(func(Entity) (bool, error) { return true, nil })

func matches(f Filter, e Entity) (bool, error) {
	if f == nil {
		return true, nil
	}
	return f.Matches(e)
}
