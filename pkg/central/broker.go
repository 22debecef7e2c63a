package central

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/rxble/pkg/rx"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// EventBroker fans binding events out to stream subscribers. Publish may be called from
// any goroutine; delivery always happens on the broker scheduler, in publish order, and
// subscribers are notified in subscription order.
type EventBroker struct {
	sched  rx.Scheduler
	logger *logrus.Logger

	mu     sync.Mutex
	subs   *orderedmap.OrderedMap[uint64, *rx.Subscriber[Event]]
	seq    uint64
	closed bool
}

// NewEventBroker creates a broker delivering on sched (rx.Immediate when nil).
func NewEventBroker(sched rx.Scheduler, logger *logrus.Logger) *EventBroker {
	if sched == nil {
		sched = rx.Immediate
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &EventBroker{
		sched:  sched,
		logger: logger,
		subs:   orderedmap.New[uint64, *rx.Subscriber[Event]](),
	}
}

// Events returns the hot event stream. Subscribers only see events published after
// they subscribed.
func (b *EventBroker) Events() rx.Stream[Event] {
	return rx.Create(func(s *rx.Subscriber[Event]) func() {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			s.Complete()
			return nil
		}
		b.seq++
		id := b.seq
		b.subs.Set(id, s)
		b.mu.Unlock()

		return func() {
			b.mu.Lock()
			b.subs.Delete(id)
			b.mu.Unlock()
		}
	})
}

// Publish schedules delivery of ev to the current subscribers.
func (b *EventBroker) Publish(ev Event) {
	b.sched.Schedule(func() {
		subs := b.snapshot()
		if b.logger.IsLevelEnabled(logrus.TraceLevel) {
			b.logger.WithFields(logrus.Fields{
				"event":       ev.Kind.String(),
				"peripheral":  ev.Peripheral.ID,
				"subscribers": len(subs),
			}).Trace("Publishing binding event")
		}
		for _, s := range subs {
			s.Next(ev)
		}
	})
}

// Close completes every subscriber; later subscribers complete immediately.
func (b *EventBroker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.sched.Schedule(func() {
		for _, s := range b.snapshot() {
			s.Complete()
		}
	})
}

// Subscribers returns the number of live subscriptions.
func (b *EventBroker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subs.Len()
}

func (b *EventBroker) snapshot() []*rx.Subscriber[Event] {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*rx.Subscriber[Event], 0, b.subs.Len())
	for pair := b.subs.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}
