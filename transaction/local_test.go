package transaction

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCallback struct {
	name      string
	events    *[]string
	failWith  error
	enlistTx  *Local
	enlistErr error
}

func (c *recordingCallback) Precommit(tx Transaction) error {
	*c.events = append(*c.events, c.name+":pre")
	if c.enlistTx != nil {
		c.enlistErr = c.enlistTx.Enlist(&recordingCallback{name: "late", events: c.events})
	}
	return c.failWith
}

func (c *recordingCallback) Postcommit(tx Transaction) {
	*c.events = append(*c.events, c.name+":post")
}

func (c *recordingCallback) PostRollback(tx Transaction) {
	*c.events = append(*c.events, c.name+":rollback")
}

func TestCommitOrder(t *testing.T) {
	t.Parallel()

	var events []string
	tx := NewLocal()
	first := &recordingCallback{name: "a", events: &events, enlistTx: tx}
	require.NoError(t, tx.Enlist(first))
	require.NoError(t, tx.Enlist(&recordingCallback{name: "b", events: &events}))

	require.NoError(t, tx.Commit())
	assert.Equal(t, []string{"a:pre", "b:pre", "a:post", "b:post"}, events)
	assert.Equal(t, StateCommitted, tx.State())
	assert.ErrorIs(t, first.enlistErr, ErrProtocol, "enlisting during commit must fail")

	assert.ErrorIs(t, tx.Enlist(&recordingCallback{name: "c", events: &events}), ErrProtocol)
	assert.ErrorIs(t, tx.Commit(), ErrProtocol)
}

func TestPrecommitFailureRollsBack(t *testing.T) {
	t.Parallel()

	var events []string
	veto := errors.New("veto")
	tx := NewLocal()
	require.NoError(t, tx.Enlist(&recordingCallback{name: "a", events: &events}))
	require.NoError(t, tx.Enlist(&recordingCallback{name: "b", events: &events, failWith: veto}))
	require.NoError(t, tx.Enlist(&recordingCallback{name: "c", events: &events}))

	err := tx.Commit()
	assert.ErrorIs(t, err, ErrRolledBack)
	assert.ErrorIs(t, err, veto)
	assert.Equal(t, []string{"a:pre", "b:pre", "a:rollback", "b:rollback", "c:rollback"}, events)
	assert.Equal(t, StateRolledBack, tx.State())
}

func TestRollback(t *testing.T) {
	t.Parallel()

	var events []string
	tx := NewLocal()
	require.NoError(t, tx.Enlist(&recordingCallback{name: "a", events: &events}))
	require.NoError(t, tx.Rollback())
	assert.Equal(t, []string{"a:rollback"}, events)
	assert.ErrorIs(t, tx.Rollback(), ErrProtocol)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	tx := r.Begin()

	got, err := r.Get(tx.ID())
	require.NoError(t, err)
	assert.Same(t, tx, got)

	assert.ErrorIs(t, r.Register(tx), ErrDuplicateTransaction)

	require.NoError(t, r.Commit(tx.ID()))
	_, err = r.Get(tx.ID())
	assert.ErrorIs(t, err, ErrUnknownTransaction)
	assert.ErrorIs(t, r.Rollback(NewID()), ErrUnknownTransaction)
	assert.Equal(t, 0, r.Len())
}
