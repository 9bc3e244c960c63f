package event

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/team-telnyx/demo-conference-node/pkg/logger"
	"go.uber.org/zap"
)

// defaultQueueSize bounds the events waiting for one subscription.
const defaultQueueSize = 256

// EventHandler represents a function that handles events
type EventHandler func(event *ConferenceEvent)

// EventMiddleware represents middleware that can wrap event handlers
type EventMiddleware func(next EventHandler) EventHandler

// EventBus defines the interface for event bus operations
type EventBus interface {
	Publish(eventType EventType, conferenceID string, data interface{}) error
	PublishEvent(event *ConferenceEvent) error
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
	Use(middleware EventMiddleware)
	Close() error
	GetStats() BusStats
}

// BusStats contains statistics about the event bus
type BusStats struct {
	TotalEvents     int64            `json:"total_events"`
	EventsByType    map[string]int64 `json:"events_by_type"`
	DroppedEvents   int64            `json:"dropped_events"`
	ActiveHandlers  int              `json:"active_handlers"`
	SubscriberCount map[string]int   `json:"subscriber_count"`
}

// delivery is one queued event with the middleware in effect when it was published.
type delivery struct {
	event      *ConferenceEvent
	middleware []EventMiddleware
}

// subscription runs its handler on a single goroutine, so it sees events in publish order.
type subscription struct {
	handler EventHandler
	queue   chan delivery
}

// DefaultEventBus is the default implementation of EventBus
type DefaultEventBus struct {
	subscribers map[EventType][]*subscription
	all         []*subscription
	middleware  []EventMiddleware
	mutex       sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	workers     sync.WaitGroup
	queueSize   int
	stats       busStats
}

// busStats counts published events and registered handlers.
type busStats struct {
	mu          sync.RWMutex
	total       int64
	dropped     int64
	byType      map[string]int64
	subscribers map[string]int
}

func (s *busStats) published(t EventType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.byType[string(t)]++
}

func (s *busStats) droppedOne() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped++
}

func (s *busStats) subscribed(t EventType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[string(t)]++
}

func (s *busStats) snapshot() BusStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active := 0
	for _, n := range s.subscribers {
		active += n
	}
	return BusStats{
		TotalEvents:     s.total,
		EventsByType:    maps.Clone(s.byType),
		DroppedEvents:   s.dropped,
		ActiveHandlers:  active,
		SubscriberCount: maps.Clone(s.subscribers),
	}
}

// NewEventBus creates a new event bus instance
func NewEventBus() EventBus {
	return NewEventBusWithQueueSize(defaultQueueSize)
}

// NewEventBusWithQueueSize creates a bus whose subscriptions buffer up to size events.
func NewEventBusWithQueueSize(size int) *DefaultEventBus {
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &DefaultEventBus{
		subscribers: make(map[EventType][]*subscription),
		middleware:  make([]EventMiddleware, 0),
		ctx:         ctx,
		cancel:      cancel,
		queueSize:   size,
		stats: busStats{
			byType:      make(map[string]int64),
			subscribers: make(map[string]int),
		},
	}
}

// Publish publishes an event with the given type and data
func (b *DefaultEventBus) Publish(eventType EventType, conferenceID string, data interface{}) error {
	return b.PublishEvent(NewConferenceEvent(eventType, conferenceID).WithData(data))
}

// PublishEvent queues event for every matching subscription and returns without
// waiting for handlers. A subscription whose queue is full drops the event.
func (b *DefaultEventBus) PublishEvent(event *ConferenceEvent) error {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	select {
	case <-b.ctx.Done():
		return fmt.Errorf("event bus is closed")
	default:
	}

	subs := b.subscribers[event.Type]
	if len(subs) == 0 {
		logger.Base().Debug("No subscribers for event type", zap.String("type", string(event.Type)))
		return nil
	}

	middleware := make([]EventMiddleware, len(b.middleware))
	copy(middleware, b.middleware)

	b.stats.published(event.Type)

	logger.Base().Debug("Publishing event",
		zap.String("type", string(event.Type)),
		zap.String("conference_id", event.ConferenceID),
		zap.String("leg_id", event.LegID),
		zap.Int("subscribers", len(subs)))

	for _, sub := range subs {
		select {
		case sub.queue <- delivery{event: event, middleware: middleware}:
		default:
			b.stats.droppedOne()
			logger.Base().Warn("Event subscriber queue full, dropping event",
				zap.String("type", string(event.Type)),
				zap.String("conference_id", event.ConferenceID))
		}
	}

	return nil
}

// Subscribe subscribes to events of a specific type
func (b *DefaultEventBus) Subscribe(eventType EventType, handler EventHandler) error {
	return b.subscribe([]EventType{eventType}, handler)
}

// SubscribeAll subscribes handler to every lifecycle event type through a single
// queue, so it observes events of all types in publish order.
func (b *DefaultEventBus) SubscribeAll(handler EventHandler) error {
	return b.subscribe(AllTypes, handler)
}

func (b *DefaultEventBus) subscribe(types []EventType, handler EventHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	select {
	case <-b.ctx.Done():
		return fmt.Errorf("event bus is closed")
	default:
	}

	sub := &subscription{handler: handler, queue: make(chan delivery, b.queueSize)}
	for _, t := range types {
		b.subscribers[t] = append(b.subscribers[t], sub)
		b.stats.subscribed(t)
		logger.Base().Debug("Subscribed to event type", zap.String("event_type", string(t)))
	}
	b.all = append(b.all, sub)

	b.workers.Add(1)
	go b.run(sub)

	return nil
}

func (b *DefaultEventBus) run(sub *subscription) {
	defer b.workers.Done()
	for d := range sub.queue {
		b.deliver(sub.handler, d)
	}
}

func (b *DefaultEventBus) deliver(handler EventHandler, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			logger.Base().Error("Event handler panic", zap.String("type", string(d.event.Type)), zap.Any("panic", r))
		}
	}()

	final := handler
	for i := len(d.middleware) - 1; i >= 0; i-- {
		final = d.middleware[i](final)
	}
	final(d.event)
}

// Use adds middleware to the event bus
func (b *DefaultEventBus) Use(middleware EventMiddleware) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.middleware = append(b.middleware, middleware)
}

// Close stops accepting events and waits until every queued event is handled.
func (b *DefaultEventBus) Close() error {
	b.mutex.Lock()
	select {
	case <-b.ctx.Done():
		b.mutex.Unlock()
		return nil
	default:
	}
	b.cancel()
	for _, sub := range b.all {
		close(sub.queue)
	}
	b.subscribers = make(map[EventType][]*subscription)
	b.all = nil
	b.mutex.Unlock()

	b.workers.Wait()

	logger.Base().Info("Event bus closed")
	return nil
}

// GetStats returns a copy of the bus statistics
func (b *DefaultEventBus) GetStats() BusStats {
	return b.stats.snapshot()
}
