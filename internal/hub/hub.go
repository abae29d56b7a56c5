// Package hub fans typed events out to live subscribers. Delivery is
// best-effort and independent per subscriber: each subscriber owns a
// buffered send queue drained by its own pump goroutine, so one slow or
// broken connection never stalls the rest. Events are not persisted and
// are never replayed to late subscribers.
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/terminal-bench/urbanflow/pkg/messaging"
)

var log = logrus.WithField("module", "hub")

// Event is the wire envelope for every broadcast message.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Event type values emitted by the core.
const (
	EventConnected         = "connected"
	EventTrafficUpdate     = "traffic_update"
	EventRealtimeTraffic   = "realtime_traffic_update"
	EventSignalUpdate      = "signal_update"
	EventRoadCongestion    = "road_congestion_update"
	EventEmergencyCorridor = "emergency_corridor"
)

// Sink receives marshaled events for one subscriber. Send must return an
// error once the underlying connection is unusable.
type Sink interface {
	Send(data []byte) error
	Close() error
}

// sendQueueSize bounds the per-subscriber backlog. A subscriber that falls
// this far behind is treated as dead and dropped.
const sendQueueSize = 64

type subscription struct {
	id   uuid.UUID
	sink Sink
	send chan []byte
	once sync.Once
}

func (s *subscription) close() {
	s.once.Do(func() {
		close(s.send)
	})
}

// Hub is the live subscriber registry and fan-out point.
type Hub struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*subscription

	// bridge mirrors every event onto NATS for other services; nil when
	// messaging is not configured.
	bridge *messaging.Client
}

// New creates an empty hub. bridge may be nil.
func New(bridge *messaging.Client) *Hub {
	return &Hub{
		subs:   make(map[uuid.UUID]*subscription),
		bridge: bridge,
	}
}

// Subscribe registers a sink and starts its delivery pump. The returned id
// identifies the subscription for Unsubscribe and SendTo.
func (h *Hub) Subscribe(sink Sink) uuid.UUID {
	sub := &subscription{
		id:   uuid.New(),
		sink: sink,
		send: make(chan []byte, sendQueueSize),
	}

	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()

	go h.pump(sub)
	return sub.id
}

// Unsubscribe removes a subscriber and closes its connection.
func (h *Hub) Unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if ok {
		sub.close()
	}
}

// Len returns the current subscriber count.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish delivers an event to every current subscriber, FIFO per
// subscriber. A subscriber whose queue is full is dropped; delivery
// failures are handled by the subscriber's own pump.
func (h *Hub) Publish(eventType string, data any) {
	payload, err := json.Marshal(Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		log.WithError(err).WithField("event", eventType).Error("marshal event")
		return
	}

	h.mu.Lock()
	var stalled []*subscription
	for _, sub := range h.subs {
		select {
		case sub.send <- payload:
		default:
			// Backlog full: the subscriber is not keeping up.
			delete(h.subs, sub.id)
			stalled = append(stalled, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range stalled {
		log.WithField("subscriber", sub.id).Warn("dropping stalled subscriber")
		sub.close()
	}

	if h.bridge != nil {
		if err := h.bridge.Publish("urbanflow.events."+eventType, payload); err != nil {
			log.WithError(err).Debug("nats bridge publish failed")
		}
	}
}

// SendTo delivers an event to a single subscriber, used for per-connection
// greetings. Unknown ids are ignored.
func (h *Hub) SendTo(id uuid.UUID, eventType string, data any) {
	payload, err := json.Marshal(Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		log.WithError(err).WithField("event", eventType).Error("marshal event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		select {
		case sub.send <- payload:
		default:
			log.WithFields(logrus.Fields{
				"subscriber": id,
				"event":      eventType,
			}).Debug("direct send dropped, queue full")
		}
	}
}

// CloseAll disconnects every subscriber, used at shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	subs := make([]*subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.subs = make(map[uuid.UUID]*subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

// pump drains one subscriber's queue in order. On a delivery failure the
// subscriber is removed; remaining queued events for it are discarded.
func (h *Hub) pump(sub *subscription) {
	defer sub.sink.Close()

	for payload := range sub.send {
		if err := sub.sink.Send(payload); err != nil {
			log.WithError(err).WithField("subscriber", sub.id).Debug("delivery failed, removing subscriber")
			h.Unsubscribe(sub.id)
			// Drain whatever Publish already queued so it can finish.
			for range sub.send {
			}
			return
		}
	}
}
