package rx

import "sync"

// ShareHooks customize the lifecycle of a RefCount stream.
type ShareHooks[T any] struct {
	// OnConnect runs right before the upstream is subscribed.
	OnConnect func()
	// OnRelease runs once per connection, after the upstream terminated or the last
	// subscriber left.
	OnRelease func()
	// Expired, when set, serves subscribers arriving after a connection was released
	// instead of reconnecting the upstream.
	Expired func() Stream[T]
}

// RefCount multicasts src to all concurrent subscribers. The first subscriber
// connects the upstream; when the last one leaves the upstream is cancelled.
func RefCount[T any](src Stream[T], hooks ShareHooks[T]) Stream[T] {
	sh := &share[T]{src: src, hooks: hooks}
	return Stream[T]{subscribe: sh.subscribe}
}

// Share is RefCount without hooks.
func Share[T any](src Stream[T]) Stream[T] {
	return RefCount(src, ShareHooks[T]{})
}

type share[T any] struct {
	src   Stream[T]
	hooks ShareHooks[T]

	mu      sync.Mutex
	conn    *shareConn[T]
	retired bool
}

type shareConn[T any] struct {
	observers map[uint64]*Subscriber[T]
	nextID    uint64
	up        *Subscriber[T]
	closed    bool
	release   sync.Once
}

func (sh *share[T]) subscribe(s *Subscriber[T]) {
	sh.mu.Lock()
	if sh.conn == nil && sh.retired && sh.hooks.Expired != nil {
		sh.mu.Unlock()
		sub := sh.hooks.Expired().Subscribe(Forward(s))
		s.OnDispose(sub.Cancel)
		return
	}
	fresh := sh.conn == nil
	if fresh {
		sh.conn = &shareConn[T]{observers: make(map[uint64]*Subscriber[T])}
	}
	c := sh.conn
	id := c.nextID
	c.nextID++
	c.observers[id] = s
	sh.mu.Unlock()

	s.OnDispose(func() { sh.unsubscribe(c, id) })
	if !fresh {
		return
	}

	if sh.hooks.OnConnect != nil {
		sh.hooks.OnConnect()
	}
	up := sh.src.Subscribe(ObserverFuncs[T]{
		Next: func(v T) {
			for _, o := range sh.snapshot(c) {
				o.Next(v)
			}
		},
		Error: func(err error) {
			for _, o := range sh.detach(c) {
				o.Error(err)
			}
		},
		Complete: func() {
			for _, o := range sh.detach(c) {
				o.Complete()
			}
		},
	})

	sh.mu.Lock()
	c.up = up
	closed := c.closed
	sh.mu.Unlock()
	if closed {
		up.Cancel()
	}
}

func (sh *share[T]) snapshot(c *shareConn[T]) []*Subscriber[T] {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	out := make([]*Subscriber[T], 0, len(c.observers))
	for _, o := range c.observers {
		out = append(out, o)
	}
	return out
}

// detach closes c after an upstream terminal event and returns its observers.
func (sh *share[T]) detach(c *shareConn[T]) []*Subscriber[T] {
	sh.mu.Lock()
	if c.closed {
		sh.mu.Unlock()
		return nil
	}
	c.closed = true
	sh.retire(c)
	out := make([]*Subscriber[T], 0, len(c.observers))
	for _, o := range c.observers {
		out = append(out, o)
	}
	c.observers = nil
	sh.mu.Unlock()

	sh.released(c)
	return out
}

func (sh *share[T]) unsubscribe(c *shareConn[T], id uint64) {
	sh.mu.Lock()
	if c.closed {
		sh.mu.Unlock()
		return
	}
	delete(c.observers, id)
	if len(c.observers) > 0 {
		sh.mu.Unlock()
		return
	}
	c.closed = true
	sh.retire(c)
	up := c.up
	sh.mu.Unlock()

	if up != nil {
		up.Cancel()
	}
	sh.released(c)
}

// retire must be called with sh.mu held.
func (sh *share[T]) retire(c *shareConn[T]) {
	if sh.conn == c {
		sh.conn = nil
		sh.retired = true
	}
}

func (sh *share[T]) released(c *shareConn[T]) {
	c.release.Do(func() {
		if sh.hooks.OnRelease != nil {
			sh.hooks.OnRelease()
		}
	})
}
