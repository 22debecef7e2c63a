package rx

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// OperationQueue serializes long-lived stream operations: only the registrant at the
// head of the queue is subscribed to its underlying stream. The head leaves the queue
// when its stream terminates or its subscription is disposed, and the next registrant
// starts on the queue scheduler.
type OperationQueue struct {
	name   string
	sched  Scheduler
	logger *logrus.Logger

	mu      sync.Mutex
	entries []*queueEntry
	seq     uint64
}

type queueEntry struct {
	id    uint64
	start func()
}

// NewOperationQueue creates a queue whose operations start on sched.
func NewOperationQueue(name string, sched Scheduler, logger *logrus.Logger) *OperationQueue {
	if sched == nil {
		sched = Immediate
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &OperationQueue{name: name, sched: sched, logger: logger}
}

// Len returns the number of registrants, the running one included.
func (q *OperationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Enqueue returns a stream that, on subscription, registers with q and subscribes to
// the stream produced by factory once the registration reaches the head of q.
// A registrant disposed before its turn never invokes factory.
func Enqueue[T any](q *OperationQueue, factory func() Stream[T]) Stream[T] {
	return Create(func(s *Subscriber[T]) func() {
		var (
			mu    sync.Mutex
			inner *Subscriber[T]
		)
		e := &queueEntry{}
		e.start = func() {
			q.sched.Schedule(func() {
				if s.Stopped() {
					return
				}
				q.logger.WithFields(logrus.Fields{
					"queue": q.name,
					"entry": e.id,
				}).Debug("Starting queued operation")

				sub := factory().Subscribe(Forward(s))
				mu.Lock()
				inner = sub
				mu.Unlock()
				if s.Stopped() {
					sub.Cancel()
				}
			})
		}
		q.add(e)

		return func() {
			mu.Lock()
			sub := inner
			mu.Unlock()
			if sub != nil {
				sub.Cancel()
			}
			q.finish(e)
		}
	})
}

func (q *OperationQueue) add(e *queueEntry) {
	q.mu.Lock()
	q.seq++
	e.id = q.seq
	q.entries = append(q.entries, e)
	head := len(q.entries) == 1
	pending := len(q.entries)
	q.mu.Unlock()

	q.logger.WithFields(logrus.Fields{
		"queue":   q.name,
		"entry":   e.id,
		"pending": pending,
	}).Debug("Operation registered")

	if head {
		e.start()
	}
}

func (q *OperationQueue) finish(e *queueEntry) {
	q.mu.Lock()
	idx := -1
	for i, it := range q.entries {
		if it == e {
			idx = i
			break
		}
	}
	if idx < 0 {
		q.mu.Unlock()
		return
	}
	q.entries = append(q.entries[:idx], q.entries[idx+1:]...)
	var next *queueEntry
	if idx == 0 && len(q.entries) > 0 {
		next = q.entries[0]
	}
	pending := len(q.entries)
	q.mu.Unlock()

	q.logger.WithFields(logrus.Fields{
		"queue":   q.name,
		"entry":   e.id,
		"head":    idx == 0,
		"pending": pending,
	}).Debug("Operation left queue")

	if next != nil {
		next.start()
	}
}
