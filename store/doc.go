/*
Package store is a transactional item store.

Entities (items, item streams, reference streams and item references) live
in priority ordered collections. Adds, removes and updates are enlisted with
a transaction and only become visible to cursors once it commits.

Hierarchy:

	Store
	└── ItemStream
	    ├── Item
	    ├── ItemStream (nested)
	    └── ReferenceStream
	        └── ItemReference -> Item of the owning ItemStream

Collections are ordered by priority (highest first) and then by
presentation order. Cursors walk this order and return items that became
available behind them before moving on, so no available item is missed.

User types embed one of the variants:

	type Order struct {
		store.Item
		Amount int
	}

and override the methods of Entity they need, eg. Priority or
PersistentData and Restore. Types that are persisted must be registered
with RegisterType so that they can be recovered.
*/
package store
