package task

import (
	"testing"

	"github.com/l1jgo/roster/internal/core/disposer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stopper struct{ stopped int }

func (s *stopper) Stop() { s.stopped++ }

func TestAddTaskReplacesSameID(t *testing.T) {
	var l List
	first, second := &stopper{}, &stopper{}

	_, err := l.AddTask(first, disposer.Default, "regen")
	require.NoError(t, err)
	_, err = l.AddTask(second, disposer.Default, "regen")
	require.NoError(t, err)

	assert.Equal(t, 1, first.stopped)
	assert.Zero(t, second.stopped)
	assert.Equal(t, 1, l.Len())

	got, ok := l.GetTask("regen")
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestAddTaskSameValueIsIdempotent(t *testing.T) {
	var l List
	s := &stopper{}
	_, _ = l.AddTask(s, disposer.Default, "tick")
	_, _ = l.AddTask(s, disposer.Default, "tick")

	assert.Zero(t, s.stopped)
	assert.Equal(t, 1, l.Len())
}

func TestRemoveTask(t *testing.T) {
	var l List
	kept, dropped := &stopper{}, &stopper{}
	_, _ = l.AddTask(kept, disposer.Default, "kept")
	_, _ = l.AddTask(dropped, disposer.Default, "dropped")

	v, err := l.RemoveTask("kept", true)
	require.NoError(t, err)
	assert.Same(t, kept, v)
	assert.Zero(t, kept.stopped)

	v, err = l.RemoveTask("dropped", false)
	require.NoError(t, err)
	assert.Same(t, dropped, v)
	assert.Equal(t, 1, dropped.stopped)

	v, err = l.RemoveTask("missing", false)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestCleanupNewestFirst(t *testing.T) {
	var l List
	var order []string
	for _, id := range []string{"a", "", "c"} {
		name := id
		if name == "" {
			name = "anonymous"
		}
		_, err := l.AddTask(func() { order = append(order, name) }, disposer.Call, id)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "c"}, l.IDs())

	require.NoError(t, l.Cleanup())
	assert.Equal(t, []string{"c", "anonymous", "a"}, order)
	assert.Zero(t, l.Len())

	_, err := l.AddTask(func() {}, disposer.Call, "again")
	require.NoError(t, err)
	assert.Equal(t, 1, l.Len())
}
