package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caph1993/caph1993-virtualSink/internal/core"
)

func TestEventQueueDrainClears(t *testing.T) {
	q := NewEventQueue()
	q.Push(core.Event{Index: 1})
	q.Push(core.Event{Index: 2})
	require.Equal(t, 2, q.Len())

	got := q.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, uint32(1), got[0].Index)
	assert.Equal(t, uint32(2), got[1].Index)
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Drain())
}

func TestEventQueueConcurrentPush(t *testing.T) {
	q := NewEventQueue()
	var wg sync.WaitGroup
	total := 0
	var mu sync.Mutex
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Push(core.Event{})
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 50; j++ {
			n := len(q.Drain())
			mu.Lock()
			total += n
			mu.Unlock()
		}
	}()
	wg.Wait()
	total += len(q.Drain())
	assert.Equal(t, 800, total)
}

func TestListenerQueuesAndNotifies(t *testing.T) {
	stream := core.NewChanStream(8, nil)
	q := NewEventQueue()
	l := NewListener(stream, q)
	l.Start()

	stream.Publish(core.Event{Index: 3})
	select {
	case <-l.Notify():
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
	require.Eventually(t, func() bool { return q.Len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, l.Stop(context.Background()))
	<-l.Done()
}

func TestListenerStopWakesIdleReceive(t *testing.T) {
	stream := core.NewChanStream(1, nil)
	q := NewEventQueue()
	l := NewListener(stream, q)
	l.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Stop(ctx))

	select {
	case <-l.Done():
	default:
		t.Fatal("listener still running")
	}
	// the synthetic wake is not a graph change
	assert.Equal(t, 0, q.Len())
}

func TestListenerExitsWhenStreamCloses(t *testing.T) {
	stream := core.NewChanStream(1, nil)
	l := NewListener(stream, NewEventQueue())
	l.Start()

	require.NoError(t, stream.Close())
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("listener did not exit")
	}
}
