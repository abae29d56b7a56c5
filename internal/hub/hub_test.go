package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanSink records delivered payloads.
type chanSink struct {
	got    chan []byte
	mu     sync.Mutex
	closed bool
}

func newChanSink() *chanSink {
	return &chanSink{got: make(chan []byte, 128)}
}

func (s *chanSink) Send(data []byte) error {
	s.got <- data
	return nil
}

func (s *chanSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *chanSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// failSink fails every delivery.
type failSink struct{}

func (failSink) Send([]byte) error { return errors.New("connection reset") }
func (failSink) Close() error      { return nil }

func receive(t *testing.T, s *chanSink) Event {
	t.Helper()
	select {
	case data := <-s.got:
		var ev Event
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHubPublish(t *testing.T) {
	t.Run("delivers to all subscribers", func(t *testing.T) {
		h := New(nil)
		a, b := newChanSink(), newChanSink()
		h.Subscribe(a)
		h.Subscribe(b)

		h.Publish(EventTrafficUpdate, map[string]int{"signals_updated": 3})

		for _, s := range []*chanSink{a, b} {
			ev := receive(t, s)
			assert.Equal(t, EventTrafficUpdate, ev.Type)
			assert.False(t, ev.Timestamp.IsZero())
		}
	})

	t.Run("per subscriber order matches publish order", func(t *testing.T) {
		h := New(nil)
		s := newChanSink()
		h.Subscribe(s)

		for i := 0; i < 20; i++ {
			h.Publish(EventSignalUpdate, map[string]int{"seq": i})
		}

		for i := 0; i < 20; i++ {
			ev := receive(t, s)
			data := ev.Data.(map[string]any)
			assert.Equal(t, float64(i), data["seq"])
		}
	})

	t.Run("no replay for late subscribers", func(t *testing.T) {
		h := New(nil)
		h.Publish(EventTrafficUpdate, nil)

		late := newChanSink()
		h.Subscribe(late)
		h.Publish(EventSignalUpdate, nil)

		ev := receive(t, late)
		assert.Equal(t, EventSignalUpdate, ev.Type)
		select {
		case <-late.got:
			t.Fatal("late subscriber must not receive earlier events")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("failing subscriber does not block healthy one registered after it", func(t *testing.T) {
		h := New(nil)
		h.Subscribe(failSink{})
		healthy := newChanSink()
		h.Subscribe(healthy)

		h.Publish(EventRoadCongestion, map[string]string{"congestion": "severe"})

		ev := receive(t, healthy)
		assert.Equal(t, EventRoadCongestion, ev.Type)

		// The broken subscriber heals out of the set.
		require.Eventually(t, func() bool { return h.Len() == 1 },
			2*time.Second, 10*time.Millisecond)
	})

	t.Run("stalled subscriber is dropped", func(t *testing.T) {
		h := New(nil)
		blocked := &chanSink{got: make(chan []byte)} // unbuffered, never read
		h.Subscribe(blocked)

		// Overflow the send queue plus the in-flight delivery.
		for i := 0; i < sendQueueSize+8; i++ {
			h.Publish(EventTrafficUpdate, fmt.Sprintf("tick %d", i))
		}

		require.Eventually(t, func() bool { return h.Len() == 0 },
			2*time.Second, 10*time.Millisecond)
	})
}

func TestHubSendTo(t *testing.T) {
	h := New(nil)
	a, b := newChanSink(), newChanSink()
	idA := h.Subscribe(a)
	h.Subscribe(b)

	h.SendTo(idA, EventConnected, map[string]string{"message": "welcome"})

	ev := receive(t, a)
	assert.Equal(t, EventConnected, ev.Type)
	select {
	case <-b.got:
		t.Fatal("SendTo must not broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubSendToQueueFull(t *testing.T) {
	hook := logrustest.NewGlobal()
	defer hook.Reset()
	prev := logrus.GetLevel()
	logrus.SetLevel(logrus.DebugLevel)
	defer logrus.SetLevel(prev)

	h := New(nil)
	blocked := &chanSink{got: make(chan []byte)} // unbuffered, never read
	id := h.Subscribe(blocked)

	// Overflow the queue plus the in-flight delivery; the surplus sends
	// must be dropped and logged, not block or evict the subscriber.
	for i := 0; i < sendQueueSize+2; i++ {
		h.SendTo(id, EventConnected, fmt.Sprintf("greeting %d", i))
	}

	assert.Equal(t, 1, h.Len())

	var logged bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "direct send dropped, queue full" {
			logged = true
			break
		}
	}
	assert.True(t, logged, "dropped direct send must leave a log line")
}

func TestHubUnsubscribeAndClose(t *testing.T) {
	t.Run("unsubscribe closes the sink", func(t *testing.T) {
		h := New(nil)
		s := newChanSink()
		id := h.Subscribe(s)
		h.Unsubscribe(id)

		require.Eventually(t, s.isClosed, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, 0, h.Len())
	})

	t.Run("close all empties the set", func(t *testing.T) {
		h := New(nil)
		a, b := newChanSink(), newChanSink()
		h.Subscribe(a)
		h.Subscribe(b)

		h.CloseAll()

		assert.Equal(t, 0, h.Len())
		require.Eventually(t, func() bool { return a.isClosed() && b.isClosed() },
			2*time.Second, 10*time.Millisecond)
	})
}
