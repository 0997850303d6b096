package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFireDeliversInConnectionOrder(t *testing.T) {
	var s Signal[int]
	var got []string
	s.Connect(func(v int) { got = append(got, "a") })
	s.Connect(func(v int) { got = append(got, "b") })

	s.Fire(1)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 2, s.Len())
}

func TestDisconnectDuringFireSkipsLaterHandler(t *testing.T) {
	var s Signal[string]
	var second *Connection
	calls := 0
	s.Connect(func(string) { second.Disconnect() })
	second = s.Connect(func(string) { calls++ })

	s.Fire("x")
	assert.Zero(t, calls)
	assert.False(t, second.Connected())
	assert.Equal(t, 1, s.Len())

	second.Disconnect()
	assert.Equal(t, 1, s.Len())
}

func TestSelfDisconnect(t *testing.T) {
	var s Signal[int]
	calls := 0
	var conn *Connection
	conn = s.Connect(func(int) {
		calls++
		conn.Disconnect()
	})

	s.Fire(1)
	s.Fire(2)
	assert.Equal(t, 1, calls)
	assert.Zero(t, s.Len())
}

func TestWait(t *testing.T) {
	var s Signal[int]
	go func() {
		for s.Len() == 0 {
			time.Sleep(time.Millisecond)
		}
		s.Fire(42)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := s.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Zero(t, s.Len())
}

func TestWaitContextDone(t *testing.T) {
	var s Signal[int]
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, s.Len())
}
