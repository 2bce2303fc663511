package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modem-control/mdmcli/internal/config"
	"github.com/modem-control/mdmcli/internal/modem"
)

// Event types published by this module.
const (
	EventStatus     = "status"
	EventOperation  = "operation"
	EventFault      = "fault"
	EventConnection = "connection"
	EventHeartbeat  = "heartbeat"
)

// ErrHubStopped is returned by Publish and Subscribe after Stop.
var ErrHubStopped = errors.New("telemetry hub stopped")

// Event is one telemetry record. Instance zero marks a hub-wide event.
type Event struct {
	ID       int64                  `json:"id,omitempty"`
	Type     string                 `json:"type"`
	Instance modem.InstanceID       `json:"instance,omitempty"`
	Time     time.Time              `json:"ts"`
	Data     map[string]interface{} `json:"data"`
}

// Subscriber receives events on Events until its context ends or the hub
// stops, at which point Events is closed.
type Subscriber struct {
	ID       string
	Instance modem.InstanceID
	LastID   int64
	Events   chan Event

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex // guards sends against close
	closed bool
}

// Close ends the subscription.
func (s *Subscriber) Close() {
	s.cancel()
}

func (s *Subscriber) wants(event Event) bool {
	return s.Instance == 0 || event.Instance == 0 || event.Instance == s.Instance
}

// send delivers event, dropping it if the subscriber is slow.
func (s *Subscriber) send(event Event, done <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	timer := time.NewTimer(100 * time.Millisecond)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
	case <-done:
	case s.Events <- event:
	case <-timer.C:
	}
}

func (s *Subscriber) close() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.Events)
	}
}

// Hub fans events out to subscribers with per-instance buffering.
//
// LOCK ORDERING:
// 1. h.mu (Hub's RWMutex) - protects subscribers, counters, buffers maps
// 2. EventBuffer.mu - protects individual buffer state
// 3. Subscriber.mu - guards a subscriber's channel against close
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	counters    map[modem.InstanceID]*int64 // Monotonic event IDs per instance
	buffers     map[modem.InstanceID]*EventBuffer
	nextSubID   int64

	config config.TelemetryConfig

	heartbeatTicker *time.Ticker
	stopHeartbeat   chan struct{}

	done    chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// EventBuffer maintains a circular buffer of events for one instance.
type EventBuffer struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
	created  time.Time
}

// NewHub creates a hub. Non-positive sizes fall back to the baseline.
func NewHub(cfg config.TelemetryConfig) *Hub {
	base := config.Baseline().Telemetry
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = base.BufferSize
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = base.SubscriberBuffer
	}

	return &Hub{
		subscribers: make(map[string]*Subscriber),
		counters:    make(map[modem.InstanceID]*int64),
		buffers:     make(map[modem.InstanceID]*EventBuffer),
		config:      cfg,
		done:        make(chan struct{}),
	}
}

// Subscribe registers a subscriber for instance (zero for every instance).
// When lastID is positive and instance is set, buffered events after lastID
// are queued first.
func (h *Hub) Subscribe(ctx context.Context, instance modem.InstanceID, lastID int64) (*Subscriber, error) {
	subCtx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		cancel()
		return nil, ErrHubStopped
	}

	h.nextSubID++
	sub := &Subscriber{
		ID:       fmt.Sprintf("sub_%d", h.nextSubID),
		Instance: instance,
		LastID:   lastID,
		Events:   make(chan Event, h.config.SubscriberBuffer),
		ctx:      subCtx,
		cancel:   cancel,
	}

	// Replay under the hub lock so no live event overtakes the backlog.
	if lastID > 0 && instance != 0 {
		if buffer, ok := h.buffers[instance]; ok {
			for _, event := range buffer.GetEventsAfter(lastID) {
				select {
				case sub.Events <- event:
				default:
				}
			}
		}
	}

	h.subscribers[sub.ID] = sub
	if h.heartbeatTicker == nil && h.config.HeartbeatInterval > 0 {
		h.startHeartbeat()
	}
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		select {
		case <-subCtx.Done():
		case <-h.done:
		}
		h.unregister(sub)
	}()

	return sub, nil
}

// Publish assigns an ID and timestamp if missing, buffers instance events and
// sends the event to every interested subscriber.
func (h *Hub) Publish(event Event) error {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return ErrHubStopped
	}
	if event.ID == 0 {
		event.ID = h.nextEventID(event.Instance)
	}
	if event.Instance != 0 {
		h.bufferEvent(event)
	}
	targets := make([]*Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		if sub.wants(event) {
			targets = append(targets, sub)
		}
	}
	h.mu.Unlock()

	// Send without holding the hub lock
	for _, sub := range targets {
		sub.send(event, h.done)
	}
	return nil
}

// PublishInstance publishes an event for a specific instance.
func (h *Hub) PublishInstance(id modem.InstanceID, event Event) error {
	event.Instance = id
	return h.Publish(event)
}

// Replay returns the buffered events of instance after lastID.
func (h *Hub) Replay(instance modem.InstanceID, lastID int64) []Event {
	h.mu.RLock()
	buffer, ok := h.buffers[instance]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return buffer.GetEventsAfter(lastID)
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *Hub) unregister(sub *Subscriber) {
	h.mu.Lock()
	delete(h.subscribers, sub.ID)
	if len(h.subscribers) == 0 && h.heartbeatTicker != nil {
		h.heartbeatTicker.Stop()
		h.heartbeatTicker = nil
		close(h.stopHeartbeat)
		h.stopHeartbeat = nil
	}
	h.mu.Unlock()

	sub.close()
}

// nextEventID returns the next monotonic event ID for an instance.
// Caller holds h.mu.
func (h *Hub) nextEventID(instance modem.InstanceID) int64 {
	counter, exists := h.counters[instance]
	if !exists {
		var initial int64
		counter = &initial
		h.counters[instance] = counter
	}
	return atomic.AddInt64(counter, 1)
}

// bufferEvent adds an event to the per-instance buffer. Caller holds h.mu.
func (h *Hub) bufferEvent(event Event) {
	buffer, exists := h.buffers[event.Instance]
	if !exists {
		buffer = NewEventBuffer(h.config.BufferSize)
		h.buffers[event.Instance] = buffer
	}
	buffer.AddEvent(event)
}

// startHeartbeat starts the heartbeat ticker. Caller holds h.mu and has
// checked h.heartbeatTicker == nil.
func (h *Hub) startHeartbeat() {
	h.heartbeatTicker = time.NewTicker(h.config.HeartbeatInterval)
	h.stopHeartbeat = make(chan struct{})

	ticker := h.heartbeatTicker
	stopChan := h.stopHeartbeat

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			select {
			case <-ticker.C:
				_ = h.Publish(Event{Type: EventHeartbeat, Data: map[string]interface{}{}})
			case <-stopChan:
				return
			case <-h.done:
				return
			}
		}
	}()
}

// Stop closes every subscription and stops the heartbeat. It is safe to call
// more than once.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	close(h.done)
	if h.heartbeatTicker != nil {
		h.heartbeatTicker.Stop()
		h.heartbeatTicker = nil
	}
	h.mu.Unlock()

	h.wg.Wait()
}

// NewEventBuffer creates a new event buffer with the specified capacity.
func NewEventBuffer(capacity int) *EventBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &EventBuffer{
		events:   make([]Event, 0, capacity),
		capacity: capacity,
		created:  time.Now(),
	}
}

// AddEvent adds an event, evicting the oldest when full.
func (b *EventBuffer) AddEvent(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)
	if len(b.events) > b.capacity {
		b.events = b.events[1:]
	}
}

// GetEventsAfter returns events after the specified ID.
func (b *EventBuffer) GetEventsAfter(lastID int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Event
	for _, event := range b.events {
		if event.ID > lastID {
			result = append(result, event)
		}
	}
	return result
}

// GetCapacity returns the buffer capacity.
func (b *EventBuffer) GetCapacity() int {
	return b.capacity
}

// GetSize returns the current buffer size.
func (b *EventBuffer) GetSize() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}
