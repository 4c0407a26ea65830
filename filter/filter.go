// Package filter provides composable filters for cursors and find operations.
package filter

import (
	"fmt"
	"strings"

	"github.com/safing/itemstore/store"
)

// Condition is a store.Filter that can describe itself and validate its
// parameters before use.
type Condition interface {
	store.Filter
	check() error
	String() string
}

// Check returns the first error found in the condition tree.
func Check(c Condition) error {
	return c.check()
}

type andCond struct {
	conditions []Condition
}

// And combines multiple conditions with a logical _AND_ operator.
func And(conditions ...Condition) Condition {
	return &andCond{conditions: conditions}
}

func (c *andCond) Matches(e store.Entity) (bool, error) {
	for _, cond := range c.conditions {
		ok, err := cond.Matches(e)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (c *andCond) check() error {
	for _, cond := range c.conditions {
		if err := cond.check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *andCond) String() string {
	return joinConditions(c.conditions, " and ")
}

type orCond struct {
	conditions []Condition
}

// Or combines multiple conditions with a logical _OR_ operator.
func Or(conditions ...Condition) Condition {
	return &orCond{conditions: conditions}
}

func (c *orCond) Matches(e store.Entity) (bool, error) {
	for _, cond := range c.conditions {
		ok, err := cond.Matches(e)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (c *orCond) check() error {
	for _, cond := range c.conditions {
		if err := cond.check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *orCond) String() string {
	return joinConditions(c.conditions, " or ")
}

type notCond struct {
	notC Condition
}

// Not negates the supplied condition.
func Not(c Condition) Condition {
	return &notCond{notC: c}
}

func (c *notCond) Matches(e store.Entity) (bool, error) {
	ok, err := c.notC.Matches(e)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (c *notCond) check() error {
	return c.notC.check()
}

func (c *notCond) String() string {
	return fmt.Sprintf("not %s", c.notC.String())
}

func joinConditions(conditions []Condition, sep string) string {
	all := make([]string, 0, len(conditions))
	for _, cond := range conditions {
		all = append(all, cond.String())
	}
	return fmt.Sprintf("(%s)", strings.Join(all, sep))
}
