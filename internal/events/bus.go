package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"glasspane/internal/logger"
)

const DefaultBufferSize = 256

type Event struct {
	Type      string
	Timestamp time.Time
	Window    string
	Data      map[string]interface{}
}

type HandlerFunc func(event Event)

type subscription struct {
	id      string
	handler HandlerFunc
}

// Bus fans events out to subscribers on a single worker goroutine.
// Publish never blocks: a full buffer or a closed bus drops the event.
type Bus struct {
	subscribers map[string][]subscription
	mu          sync.RWMutex
	buffer      chan Event
	closed      bool
	wg          sync.WaitGroup
	logger      logger.Logger
}

func NewBus(bufferSize int, log logger.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	bus := &Bus{
		subscribers: make(map[string][]subscription),
		buffer:      make(chan Event, bufferSize),
		logger:      logger.OrNoOp(log),
	}

	bus.startWorker()
	return bus
}

// Publish reports whether the event was queued.
func (b *Bus) Publish(event Event) bool {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}

	select {
	case b.buffer <- event:
		return true
	default:
		b.logger.Warning("EventBus", "buffer full, dropping event", map[string]interface{}{
			"type": event.Type,
		})
		return false
	}
}

// Subscribe registers handler for eventType and returns the subscription id.
func (b *Bus) Subscribe(eventType string, handler HandlerFunc) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, handler: handler})
	return id
}

func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for i, s := range subs {
			if s.id == id {
				b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Shutdown stops accepting events, drains what is queued and waits for the worker.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.buffer)
	b.mu.Unlock()

	b.wg.Wait()
}

func (b *Bus) startWorker() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		for event := range b.buffer {
			b.dispatchEvent(event)
		}
	}()
}

func (b *Bus) dispatchEvent(event Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subscribers[event.Type]))
	copy(subs, b.subscribers[event.Type])
	b.mu.RUnlock()

	for _, s := range subs {
		b.call(s, event)
	}
}

func (b *Bus) call(s subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("EventBus", fmt.Errorf("handler panic: %v", r), map[string]interface{}{
				"type":         event.Type,
				"subscription": s.id,
			})
		}
	}()
	s.handler(event)
}
