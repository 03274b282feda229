package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForWG(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func TestEventBusPublishesToSpecificAndGlobalListeners(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()
	defer bus.Close()

	var mu sync.Mutex
	var received []EventType
	var wg sync.WaitGroup
	wg.Add(2)

	bus.Subscribe(EventMuteChanged, func(e *Event) {
		mu.Lock()
		received = append(received, e.Type)
		mu.Unlock()
		wg.Done()
	})
	bus.SubscribeAll(func(e *Event) {
		mu.Lock()
		received = append(received, e.Type)
		mu.Unlock()
		wg.Done()
	})

	bus.Publish(&Event{Type: EventMuteChanged, Data: MuteChangedData{Muted: true}})

	require.True(t, waitForWG(&wg, time.Second), "timed out waiting for listeners")
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, received, 2)
}

func TestEventBusPreservesOrder(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()
	defer bus.Close()

	const n = 100
	var mu sync.Mutex
	var got []uint64
	var wg sync.WaitGroup
	wg.Add(n)

	bus.Subscribe(EventTurnRequested, func(e *Event) {
		mu.Lock()
		got = append(got, e.Data.(TurnRequestedData).Token)
		mu.Unlock()
		wg.Done()
	})

	for i := 1; i <= n; i++ {
		bus.Publish(&Event{Type: EventTurnRequested, Data: TurnRequestedData{Token: uint64(i)}})
	}

	require.True(t, waitForWG(&wg, time.Second))
	mu.Lock()
	defer mu.Unlock()
	for i, token := range got {
		assert.Equal(t, uint64(i+1), token)
	}
}

func TestEventBusRecoversFromPanic(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()
	defer bus.Close()

	var wg sync.WaitGroup
	wg.Add(1)

	bus.Subscribe(EventRealtimeError, func(*Event) {
		panic("listener panic")
	})
	bus.Subscribe(EventRealtimeError, func(*Event) {
		wg.Done()
	})

	bus.Publish(&Event{Type: EventRealtimeError})

	assert.True(t, waitForWG(&wg, time.Second), "listener after panic did not fire")
}

func TestEventBusUnsubscribe(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()

	var mu sync.Mutex
	calls := 0
	unsubscribe := bus.Subscribe(EventMuteChanged, func(*Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	unsubscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	bus.SubscribeAll(func(*Event) { wg.Done() })

	bus.Publish(&Event{Type: EventMuteChanged})
	require.True(t, waitForWG(&wg, time.Second))
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
}

func TestEventBusCloseDrainsAndDropsLater(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()

	var mu sync.Mutex
	count := 0
	bus.SubscribeAll(func(*Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	for i := 0; i < 10; i++ {
		bus.Publish(&Event{Type: EventAgentSpeech})
	}
	bus.Close()
	bus.Close()

	bus.Publish(&Event{Type: EventAgentSpeech})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, count)
}

func TestEventBusClear(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()
	called := make(chan struct{}, 1)
	bus.SubscribeAll(func(*Event) { called <- struct{}{} })
	bus.Clear()

	bus.Publish(&Event{Type: EventAgentSpeech})
	bus.Close()

	select {
	case <-called:
		t.Fatal("cleared listener was invoked")
	default:
	}
}
