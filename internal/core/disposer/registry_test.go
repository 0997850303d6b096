package disposer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closer struct {
	closed int
	err    error
}

func (c *closer) Close() error {
	c.closed++
	return c.err
}

type releaser struct{ released int }

func (r *releaser) Release() { r.released++ }

func TestDisposeAllRunsNewestFirst(t *testing.T) {
	r := New()
	var order []string
	for _, name := range []string{"A", "B", "C"} {
		name := name
		require.NoError(t, r.Add(func() { order = append(order, name) }, Call))
	}

	require.NoError(t, r.DisposeAll())
	assert.Equal(t, []string{"C", "B", "A"}, order)
	assert.False(t, r.Active())
	assert.Zero(t, r.Len())
}

func TestDisposeAllIsIdempotent(t *testing.T) {
	r := New()
	calls := 0
	require.NoError(t, r.Add(func() { calls++ }, Call))

	require.NoError(t, r.DisposeAll())
	require.NoError(t, r.DisposeAll())
	assert.Equal(t, 1, calls)
}

func TestDisposeAllReentrant(t *testing.T) {
	r := New()
	calls := 0
	require.NoError(t, r.Add(func() { calls++ }, Call))
	require.NoError(t, r.Add(func() {
		calls++
		require.NoError(t, r.DisposeAll())
	}, Call))

	require.NoError(t, r.DisposeAll())
	assert.Equal(t, 2, calls)
}

func TestPutReplacesExistingKey(t *testing.T) {
	r := New()
	var events []string
	require.NoError(t, r.Put("k", func() { events = append(events, "first disposed") }, Call))
	require.NoError(t, r.Put("k", func() { events = append(events, "second disposed") }, Call))
	events = append(events, "second inserted")

	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []string{"first disposed", "second inserted"}, events)

	require.NoError(t, r.DisposeAll())
	assert.Equal(t, []string{"first disposed", "second inserted", "second disposed"}, events)
}

func TestPutSameValueDisposesPrevious(t *testing.T) {
	r := New()
	c := &closer{}
	require.NoError(t, r.Put("conn", c, Default))
	require.NoError(t, r.Put("conn", c, Default))

	assert.Equal(t, 1, c.closed)
	assert.Equal(t, 1, r.Len())

	got, ok := r.Get("conn")
	require.True(t, ok)
	assert.Same(t, c, got)

	require.NoError(t, r.DisposeAll())
	assert.Equal(t, 2, c.closed)
}

func TestPutRejectsNonComparableKey(t *testing.T) {
	r := New()
	err := r.Put([]string{"x"}, func() {}, Call)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRemoveDisposesAndReturnsValue(t *testing.T) {
	r := New()
	c := &closer{}
	require.NoError(t, r.Put(7, c, Default))

	got, err := r.Remove(7)
	require.NoError(t, err)
	assert.Same(t, c, got)
	assert.Equal(t, 1, c.closed)

	got, err = r.Remove(7)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDetachThenReAddDoesNotDispose(t *testing.T) {
	r := New()
	c := &closer{}
	require.NoError(t, r.Put("k", c, Default))

	v, ok := r.Detach("k")
	require.True(t, ok)
	assert.Zero(t, c.closed)

	require.NoError(t, r.Put("k", v, Default))
	assert.Zero(t, c.closed)

	got, ok := r.Get("k")
	require.True(t, ok)
	assert.Same(t, c, got)
}

func TestCleanupFailuresAreAggregated(t *testing.T) {
	r := New()
	boom := errors.New("boom")
	ran := 0
	require.NoError(t, r.Add(func() { ran++ }, Call))
	require.NoError(t, r.Add(func() error { ran++; return boom }, Call))
	require.NoError(t, r.Add(func() { ran++; panic("kaboom") }, Call))
	require.NoError(t, r.Add(&closer{err: boom}, Default))

	err := r.DisposeAll()
	require.Error(t, err)
	assert.Equal(t, 3, ran)
	assert.ErrorIs(t, err, ErrCleanupFailure)
	assert.ErrorIs(t, err, boom)

	var ce *CleanupError
	require.ErrorAs(t, err, &ce)
	assert.Len(t, ce.Errors(), 3)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestAddAfterDisposeRejectsAndCleansUp(t *testing.T) {
	r := New()
	require.NoError(t, r.DisposeAll())

	c := &closer{}
	err := r.Add(c, Default)
	assert.ErrorIs(t, err, ErrDisposed)
	assert.Equal(t, 1, c.closed)
	assert.Zero(t, r.Len())
}

func TestGiveReturnsValue(t *testing.T) {
	r := New()
	c := Give(r, &closer{}, Default)
	require.NotNil(t, c)

	require.NoError(t, r.DisposeAll())
	assert.Equal(t, 1, c.closed)

	// A disposed registry tears the value down on the spot.
	late := Give(r, &closer{}, Default)
	assert.Equal(t, 1, late.closed)
}

func TestGivePanicsOnInvalidMode(t *testing.T) {
	r := New()
	assert.Panics(t, func() { Give(r, 42, Call) })
	assert.Zero(t, r.Len())
}

func TestModes(t *testing.T) {
	t.Run("call rejects non functions", func(t *testing.T) {
		assert.ErrorIs(t, New().Add(42, Call), ErrInvalidArgument)
	})

	t.Run("method", func(t *testing.T) {
		r := New()
		rel := &releaser{}
		require.NoError(t, r.Add(rel, Method("Release")))
		require.NoError(t, r.DisposeAll())
		assert.Equal(t, 1, rel.released)
	})

	t.Run("missing method", func(t *testing.T) {
		assert.ErrorIs(t, New().Add(&releaser{}, Method("Close")), ErrInvalidArgument)
	})

	t.Run("default protocols", func(t *testing.T) {
		r := New()
		nested := New()
		nestedCalls := 0
		require.NoError(t, nested.Add(func() { nestedCalls++ }, Call))

		ctx, cancel := context.WithCancel(context.Background())
		c := &closer{}
		require.NoError(t, r.Add(nested, Default))
		require.NoError(t, r.Add(cancel, Default))
		require.NoError(t, r.Add(c, Default))
		require.NoError(t, r.Add("inert data", Default))

		require.NoError(t, r.DisposeAll())
		assert.Equal(t, 1, nestedCalls)
		assert.False(t, nested.Active())
		assert.Error(t, ctx.Err())
		assert.Equal(t, 1, c.closed)
	})
}
