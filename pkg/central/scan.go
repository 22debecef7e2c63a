package central

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/rxble/pkg/rx"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Scanner multiplexes scan requests over a single hardware scan. Requests compatible
// with an in-flight scan session share it; other requests queue a new session that
// starts once the running one is released.
type Scanner struct {
	binding AdapterBinding
	queue   *rx.OperationQueue
	logger  *logrus.Logger

	mu  sync.Mutex
	ops *orderedmap.OrderedMap[uint64, *scanOperation]
	seq uint64
}

type scanOperation struct {
	id     uint64
	uuids  []UUID
	opts   *ScanOptions
	stream rx.Stream[ScannedPeripheral]

	// set once the shared stream was subscribed for the first time
	connected atomic.Bool
}

// accepts reports whether the operation can serve a request for req. Hardware service
// filters match any of their UUIDs, so an operation filtered on a superset of req, or
// not filtered at all, already discovers every peripheral req can match.
func (op *scanOperation) accepts(req []UUID) bool {
	if op.uuids == nil {
		return true
	}
	return req != nil && isSubset(req, op.uuids)
}

// NewScanner creates a scanner issuing hardware scans through binding. Scan sessions
// are serialized on queue.
func NewScanner(binding AdapterBinding, queue *rx.OperationQueue, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		binding: binding,
		queue:   queue,
		logger:  logger,
		ops:     orderedmap.New[uint64, *scanOperation](),
	}
}

// Scan returns a stream of discovered peripherals. A nil uuids accepts every
// advertisement; otherwise only peripherals advertising all uuids are emitted. An empty
// non-nil uuids requires no services, so it emits every advertisement of the session it
// binds to, but unlike nil it may bind to a filtered session. The stream fails with the mapped
// adapter-state error whenever the adapter is not powered on.
func (sc *Scanner) Scan(uuids []UUID, opts *ScanOptions) rx.Stream[ScannedPeripheral] {
	return rx.Deferred(func() rx.Stream[ScannedPeripheral] {
		st, created := sc.bind(uuids, opts)
		gated := EnsureState(sc.binding, StatePoweredOn, st)
		if created == nil {
			return gated
		}
		return rx.Finally(gated, func() { sc.abandon(created) })
	})
}

// ActiveOperations returns the number of registered scan sessions.
func (sc *Scanner) ActiveOperations() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.ops.Len()
}

// bind finds a compatible scan session for req or registers a new one. The second
// result is the operation created by this call, if any.
func (sc *Scanner) bind(req []UUID, opts *ScanOptions) (rx.Stream[ScannedPeripheral], *scanOperation) {
	sc.mu.Lock()
	for pair := sc.ops.Oldest(); pair != nil; pair = pair.Next() {
		op := pair.Value
		if !op.accepts(req) {
			continue
		}
		sc.mu.Unlock()

		sc.logger.WithFields(logrus.Fields{
			"operation": op.id,
			"requested": req,
			"scanning":  op.uuids,
		}).Debug("Reusing in-flight scan session")

		if req == nil {
			return op.stream, nil
		}
		return rx.Filter(op.stream, func(sp ScannedPeripheral) bool {
			return sp.Advertisement.AdvertisesAll(req)
		}), nil
	}

	sc.seq++
	op := &scanOperation{id: sc.seq, uuids: req, opts: opts}
	op.stream = rx.RefCount(rx.Enqueue(sc.queue, sc.hardwareScan(op)), rx.ShareHooks[ScannedPeripheral]{
		OnConnect: func() { op.connected.Store(true) },
		OnRelease: func() { sc.retire(op) },
		Expired: func() rx.Stream[ScannedPeripheral] {
			st, _ := sc.bind(op.uuids, op.opts)
			return st
		},
	})
	sc.ops.Set(op.id, op)
	pending := sc.ops.Len()
	sc.mu.Unlock()

	sc.logger.WithFields(logrus.Fields{
		"operation": op.id,
		"requested": req,
		"sessions":  pending,
	}).Debug("Registered new scan session")

	return op.stream, op
}

// hardwareScan runs one hardware scan for op: it listens for discoveries, issues the
// scan command and stops the scan when disposed.
func (sc *Scanner) hardwareScan(op *scanOperation) func() rx.Stream[ScannedPeripheral] {
	return func() rx.Stream[ScannedPeripheral] {
		return rx.Create(func(s *rx.Subscriber[ScannedPeripheral]) func() {
			discoveries := rx.Map(
				rx.Filter(sc.binding.Events(), func(ev Event) bool { return ev.Kind == EventPeripheralDiscovered }),
				func(ev Event) ScannedPeripheral {
					return ScannedPeripheral{Peripheral: ev.Peripheral, Advertisement: ev.Advertisement, RSSI: ev.RSSI}
				},
			)
			sub := discoveries.Subscribe(rx.Forward(s))

			sc.logger.WithFields(logrus.Fields{
				"operation": op.id,
				"uuids":     op.uuids,
			}).Info("Starting hardware scan")
			sc.binding.ScanForPeripherals(op.uuids, op.opts)

			return func() {
				sub.Cancel()
				sc.binding.StopScan()
				sc.logger.WithField("operation", op.id).Info("Stopped hardware scan")
			}
		})
	}
}

func (sc *Scanner) retire(op *scanOperation) {
	sc.mu.Lock()
	_, present := sc.ops.Delete(op.id)
	remaining := sc.ops.Len()
	sc.mu.Unlock()

	if present {
		sc.logger.WithFields(logrus.Fields{
			"operation": op.id,
			"sessions":  remaining,
		}).Debug("Scan session released")
	}
}

// abandon drops an operation whose shared stream was never subscribed, which happens
// when the adapter state gate fails before the scan is started.
func (sc *Scanner) abandon(op *scanOperation) {
	if op.connected.Load() {
		return
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if op.connected.Load() {
		return
	}
	sc.ops.Delete(op.id)
}
