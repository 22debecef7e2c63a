package central

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/rxble/pkg/rx"
)

// NotificationManager shares one notification session per characteristic. The first
// subscriber enables notifications, the last one to leave disables them.
type NotificationManager struct {
	ops    *Operations
	logger *logrus.Logger

	mu       sync.Mutex
	sessions map[string]*notificationSession
}

type notificationSession struct {
	stream rx.Stream[Characteristic]
}

// NewNotificationManager creates a manager using ops for the underlying operations.
func NewNotificationManager(ops *Operations, logger *logrus.Logger) *NotificationManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &NotificationManager{ops: ops, logger: logger, sessions: make(map[string]*notificationSession)}
}

// Observe returns the shared update stream of c.
func (m *NotificationManager) Observe(c Characteristic) rx.Stream[Characteristic] {
	return rx.Deferred(func() rx.Stream[Characteristic] {
		key := c.Peripheral().ID + "/" + c.Service.ID + "/" + c.ID

		m.mu.Lock()
		defer m.mu.Unlock()
		if sess, ok := m.sessions[key]; ok {
			return sess.stream
		}

		sess := &notificationSession{}
		sess.stream = rx.RefCount(m.session(c), rx.ShareHooks[Characteristic]{
			OnRelease: func() {
				m.mu.Lock()
				if m.sessions[key] == sess {
					delete(m.sessions, key)
				}
				m.mu.Unlock()
			},
			Expired: func() rx.Stream[Characteristic] { return m.Observe(c) },
		})
		m.sessions[key] = sess
		return sess.stream
	})
}

// Sessions returns the number of active notification sessions.
func (m *NotificationManager) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *NotificationManager) session(c Characteristic) rx.Stream[Characteristic] {
	return rx.Create(func(s *rx.Subscriber[Characteristic]) func() {
		updates := m.ops.MonitorValueUpdate(c).Subscribe(rx.Forward(s))
		if s.Stopped() {
			return updates.Cancel
		}

		// disabled on release only once the enable was confirmed
		var enabled atomic.Bool
		m.logger.WithField("characteristic", c.UUID).Debug("Enabling notifications")
		enable := m.ops.SetNotifyValue(true, c).Subscribe(rx.ObserverFuncs[Characteristic]{
			Next:  func(Characteristic) { enabled.Store(true) },
			Error: s.Error,
		})

		return func() {
			enable.Cancel()
			updates.Cancel()
			if !enabled.Load() {
				return
			}
			if m.ops.binding.PeripheralState(c.Peripheral().ID) != PeripheralConnected {
				return
			}
			m.logger.WithField("characteristic", c.UUID).Debug("Disabling notifications")
			m.ops.binding.SetNotifyValue(c, false)
		}
	})
}
