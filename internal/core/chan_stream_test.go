package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChanStreamRecv(t *testing.T) {
	s := NewChanStream(4, nil)
	require.True(t, s.Publish(Event{Code: 1, Index: 7}))

	ev, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), ev.Index)
	assert.False(t, ev.Synthetic)
}

func TestChanStreamWakeUnblocksRecv(t *testing.T) {
	s := NewChanStream(1, nil)
	got := make(chan Event, 1)
	go func() {
		ev, _ := s.Recv()
		got <- ev
	}()

	s.Wake()
	select {
	case ev := <-got:
		assert.True(t, ev.Synthetic)
	case <-time.After(time.Second):
		t.Fatal("Recv was not woken")
	}
}

func TestChanStreamDropsWhenFull(t *testing.T) {
	s := NewChanStream(1, nil)
	assert.True(t, s.Publish(Event{Index: 1}))
	assert.False(t, s.Publish(Event{Index: 2}))
}

func TestChanStreamClose(t *testing.T) {
	calls := 0
	s := NewChanStream(1, func() error {
		calls++
		return nil
	})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, calls)

	_, err := s.Recv()
	assert.ErrorIs(t, err, ErrStreamClosed)
	assert.False(t, s.Publish(Event{}))
}
