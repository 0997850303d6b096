package future

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/l1jgo/roster/internal/core/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func await[T any](t *testing.T, f *Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := f.Await(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "future never settled")
	return v, err
}

func TestSettlesOnce(t *testing.T) {
	f := New[int](nil, nil)
	var got []int
	f.OnSettle(func(v int, err error) { got = append(got, v) })

	assert.True(t, f.Resolve(1))
	assert.False(t, f.Resolve(2))
	assert.False(t, f.Reject(errors.New("late")))

	v, err := await(t, f)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, []int{1}, got)
}

func TestExecutorFunction(t *testing.T) {
	f := New[string](nil, func(resolve func(string), _ func(error)) { resolve("ok") })
	v, err := await(t, f)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	boom := errors.New("boom")
	g := New[string](nil, func(_ func(string), reject func(error)) { reject(boom) })
	_, err = await(t, g)
	assert.ErrorIs(t, err, boom)

	h := New[string](nil, func(func(string), func(error)) { panic("bad") })
	_, err = await(t, h)
	assert.ErrorContains(t, err, "bad")
}

func TestOnSettleAfterSettlement(t *testing.T) {
	f := Resolved(nil, 9)
	called := false
	f.OnSettle(func(v int, err error) {
		called = true
		assert.Equal(t, 9, v)
	})
	assert.True(t, called)
	assert.True(t, f.Settled())
}

func TestTimeoutRejectsAndReleasesSignal(t *testing.T) {
	var sig event.Signal[int]
	waited := FromSignal(nil, &sig, nil)
	f := waited.Timeout(10*time.Millisecond, "avatar of p1")
	assert.Equal(t, 1, sig.Len())

	_, err := await(t, f)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "Timed out")
	assert.Contains(t, err.Error(), "avatar of p1")

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 10*time.Millisecond, te.After)

	assert.Zero(t, sig.Len())
	_, err = await(t, waited)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestTimeoutResolvesBeforeDeadline(t *testing.T) {
	var sig event.Signal[int]
	f := FromSignal(nil, &sig, func(v int) bool { return v > 10 }).Timeout(time.Second, "big number")

	sig.Fire(3)
	assert.False(t, f.Settled())
	sig.Fire(11)

	v, err := await(t, f)
	require.NoError(t, err)
	assert.Equal(t, 11, v)
	assert.Zero(t, sig.Len())
}

func TestTimeoutSettlementGoesThroughExecutor(t *testing.T) {
	posted := make(chan func(), 1)
	exec := ExecutorFunc(func(fn func()) { posted <- fn })

	f := New[int](exec, nil).Timeout(5*time.Millisecond, "nothing")

	var fn func()
	select {
	case fn = <-posted:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never posted")
	}
	assert.False(t, f.Settled())
	fn()
	assert.True(t, f.Settled())
}

func TestCancelTimeoutCancelsSource(t *testing.T) {
	var sig event.Signal[int]
	f := FromSignal(nil, &sig, nil).Timeout(time.Hour, "forever")
	assert.True(t, f.Cancel())

	_, err := await(t, f)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Zero(t, sig.Len())
}

func TestRace(t *testing.T) {
	slow := New[string](nil, nil)
	fast := New[string](nil, nil)
	r := Race(nil, slow, fast)

	fast.Resolve("fast")
	v, err := await(t, r)
	require.NoError(t, err)
	assert.Equal(t, "fast", v)

	_, err = await(t, slow)
	assert.ErrorIs(t, err, ErrCancelled)

	_, err = await(t, Race[string](nil))
	assert.Error(t, err)
}
