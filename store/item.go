package store

// Item is a storable unit of work without children.
type Item struct {
	Base
}

// Kind returns KindItem.
func (i *Item) Kind() Kind {
	return KindItem
}

// ReferenceCount returns the number of committed item references pointing
// to the item.
func (i *Item) ReferenceCount() (count int, err error) {
	err = i.withMember(func(c *collection, m *membership) error {
		count = m.refCount
		return nil
	})
	return
}
