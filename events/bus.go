// Package events provides a lightweight pub/sub event bus for voice sessions.
package events

import (
	"sync"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/logger"
)

const defaultQueueSize = 256

// Listener is a function that handles events.
type Listener func(*Event)

type subscription struct {
	id       uint64
	listener Listener
}

// EventBus manages event distribution to listeners. Events are dispatched on
// a single goroutine, so every listener sees events in publish order.
type EventBus struct {
	mu              sync.RWMutex
	listeners       map[EventType][]subscription
	globalListeners []subscription
	nextID          uint64

	queue     chan *Event
	done      chan struct{}
	closeOnce sync.Once
	stopped   chan struct{}
}

// NewEventBus creates a new event bus and starts its dispatch goroutine.
func NewEventBus() *EventBus {
	eb := &EventBus{
		listeners: make(map[EventType][]subscription),
		queue:     make(chan *Event, defaultQueueSize),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go eb.dispatchLoop()
	return eb
}

// Subscribe registers a listener for a specific event type.
// The returned function removes the listener.
func (eb *EventBus) Subscribe(eventType EventType, listener Listener) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	id := eb.nextID
	eb.listeners[eventType] = append(eb.listeners[eventType], subscription{id: id, listener: listener})
	return func() { eb.unsubscribe(eventType, id) }
}

// SubscribeAll registers a listener for all event types.
// The returned function removes the listener.
func (eb *EventBus) SubscribeAll(listener Listener) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	id := eb.nextID
	eb.globalListeners = append(eb.globalListeners, subscription{id: id, listener: listener})
	return func() { eb.unsubscribe("", id) }
}

func (eb *EventBus) unsubscribe(eventType EventType, id uint64) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eventType == "" {
		eb.globalListeners = removeSubscription(eb.globalListeners, id)
		return
	}
	eb.listeners[eventType] = removeSubscription(eb.listeners[eventType], id)
}

func removeSubscription(subs []subscription, id uint64) []subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// Publish queues an event for asynchronous delivery. Events published after
// Close, or while the queue is full, are dropped.
func (eb *EventBus) Publish(event *Event) {
	if event == nil {
		return
	}
	select {
	case <-eb.done:
		return
	default:
	}
	select {
	case eb.queue <- event:
	case <-eb.done:
	default:
		logger.Warn("Event bus queue full, dropping event", "type", event.Type)
	}
}

// Close stops the dispatch goroutine after delivering already queued events.
// It is safe to call more than once.
func (eb *EventBus) Close() {
	eb.closeOnce.Do(func() {
		close(eb.done)
	})
	<-eb.stopped
}

// Clear removes all listeners (primarily for tests).
func (eb *EventBus) Clear() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.listeners = make(map[EventType][]subscription)
	eb.globalListeners = nil
}

func (eb *EventBus) dispatchLoop() {
	defer close(eb.stopped)
	for {
		select {
		case event := <-eb.queue:
			eb.dispatch(event)
		case <-eb.done:
			for {
				select {
				case event := <-eb.queue:
					eb.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (eb *EventBus) dispatch(event *Event) {
	eb.mu.RLock()
	specific := append([]subscription(nil), eb.listeners[event.Type]...)
	global := append([]subscription(nil), eb.globalListeners...)
	eb.mu.RUnlock()

	for _, s := range specific {
		safeInvoke(s.listener, event)
	}
	for _, s := range global {
		safeInvoke(s.listener, event)
	}
}

func safeInvoke(listener Listener, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Event listener panicked", "type", event.Type, "panic", r)
		}
	}()
	listener(event)
}
