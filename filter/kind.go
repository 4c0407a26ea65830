package filter

import (
	"fmt"

	"github.com/safing/itemstore/store"
)

type kindCond struct {
	kinds []store.Kind
}

// KindIs matches entities of any of the given kinds.
func KindIs(kinds ...store.Kind) Condition {
	return &kindCond{kinds: kinds}
}

func (c *kindCond) Matches(e store.Entity) (bool, error) {
	k := e.Kind()
	for _, kind := range c.kinds {
		if kind == k {
			return true, nil
		}
	}
	return false, nil
}

func (c *kindCond) check() error {
	if len(c.kinds) == 0 {
		return fmt.Errorf("kind condition needs at least one kind")
	}
	return nil
}

func (c *kindCond) String() string {
	return fmt.Sprintf("kind in %v", c.kinds)
}

type priorityCond struct {
	min int
}

// PriorityAtLeast matches entities with a priority of at least p.
func PriorityAtLeast(p int) Condition {
	return &priorityCond{min: p}
}

func (c *priorityCond) Matches(e store.Entity) (bool, error) {
	return e.Priority() >= c.min, nil
}

func (c *priorityCond) check() error {
	if c.min < store.MinPriority || c.min > store.MaxPriority {
		return fmt.Errorf("priority %d out of range", c.min)
	}
	return nil
}

func (c *priorityCond) String() string {
	return fmt.Sprintf("priority >= %d", c.min)
}
