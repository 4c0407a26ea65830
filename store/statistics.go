package store

// Statistics holds the counts of the direct children of a collection by
// lifecycle state. Adding, Available, Locked, Removing and Unavailable
// partition Total; Updating and Expiring are flags counted on top.
type Statistics struct {
	Adding    int64
	Available int64
	Locked    int64
	Removing  int64
	Updating  int64
	Expiring  int64
	// Unavailable counts entities held back by their delivery delay.
	Unavailable int64

	Total      int64
	TotalBytes int64
}

// Committed returns the number of entities that are not being added.
func (s Statistics) Committed() int64 {
	return s.Total - s.Adding
}

// account adds (sign 1) or removes (sign -1) the contribution of m. It is
// called around every state change with the collection lock held.
func (c *collection) account(m *membership, sign int64) {
	s := &c.stats
	switch m.state {
	case StateAdding:
		s.Adding += sign
		c.addingBytes += sign * m.size
	case StateAvailable:
		s.Available += sign
	case StateLocked:
		if m.lockID == DeliveryDelayLockID {
			s.Unavailable += sign
		} else {
			s.Locked += sign
		}
	case StateRemoving:
		s.Removing += sign
	}
	if m.updating {
		s.Updating += sign
	}
	if m.expiring {
		s.Expiring += sign
	}
	s.Total += sign
	s.TotalBytes += sign * m.size
}

func (c *collection) statistics() Statistics {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.stats
}
