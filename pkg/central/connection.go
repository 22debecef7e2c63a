package central

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/rxble/pkg/rx"
)

// Connector manages peripheral connections.
type Connector struct {
	binding AdapterBinding
	logger  *logrus.Logger
}

// NewConnector creates a connector issuing commands through binding.
func NewConnector(binding AdapterBinding, logger *logrus.Logger) *Connector {
	if logger == nil {
		logger = logrus.New()
	}
	return &Connector{binding: binding, logger: logger}
}

// State returns the current adapter state.
func (c *Connector) State() AdapterState {
	return c.binding.State()
}

// ObserveState emits the current adapter state and every change after it.
func (c *Connector) ObserveState() rx.Stream[AdapterState] {
	return ObserveState(c.binding)
}

// Connect establishes a connection to p and emits p once connected. An already
// connected peripheral is emitted right away. A connection attempt still pending when
// the subscription is disposed is cancelled.
func (c *Connector) Connect(p Peripheral, opts *ConnectOptions) rx.Stream[Peripheral] {
	return EnsureState(c.binding, StatePoweredOn, rx.Deferred(func() rx.Stream[Peripheral] {
		if c.binding.PeripheralState(p.ID) == PeripheralConnected {
			return rx.Just(p)
		}

		success := rx.Map(
			rx.Take(c.peripheralEvents(p, EventPeripheralConnected), 1),
			func(ev Event) Peripheral { return ev.Peripheral },
		)
		failure := rx.TryMap(
			c.peripheralEvents(p, EventPeripheralConnectFailed),
			func(ev Event) (Peripheral, error) {
				return Peripheral{}, peripheralError(KindPeripheralConnectionFailed, p, ev.Err)
			},
		)

		return rx.Create(func(s *rx.Subscriber[Peripheral]) func() {
			var settled atomic.Bool
			sub := rx.Amb(success, failure).Subscribe(rx.ObserverFuncs[Peripheral]{
				Next: func(v Peripheral) {
					settled.Store(true)
					s.Next(v)
				},
				Error: func(err error) {
					settled.Store(true)
					s.Error(err)
				},
				Complete: s.Complete,
			})

			c.logger.WithField("peripheral", p.ID).Info("Connecting to peripheral")
			c.binding.Connect(p, opts)

			return func() {
				sub.Cancel()
				if settled.Load() {
					return
				}
				if c.binding.PeripheralState(p.ID) == PeripheralConnected {
					return
				}
				c.logger.WithField("peripheral", p.ID).Debug("Cancelling pending connection")
				c.binding.CancelConnection(p)
			}
		})
	}))
}

// CancelConnection disconnects p and emits p once the disconnection is reported.
// A peripheral that is already disconnected is emitted right away.
func (c *Connector) CancelConnection(p Peripheral) rx.Stream[Peripheral] {
	return EnsureState(c.binding, StatePoweredOn, rx.Deferred(func() rx.Stream[Peripheral] {
		if c.binding.PeripheralState(p.ID) == PeripheralDisconnected {
			return rx.Just(p)
		}
		disconnected := rx.Map(
			rx.Take(c.peripheralEvents(p, EventPeripheralDisconnected), 1),
			func(ev Event) Peripheral { return ev.Peripheral },
		)
		return rx.Create(func(s *rx.Subscriber[Peripheral]) func() {
			sub := disconnected.Subscribe(rx.Forward(s))
			c.logger.WithField("peripheral", p.ID).Info("Cancelling peripheral connection")
			c.binding.CancelConnection(p)
			return sub.Cancel
		})
	}))
}

// MonitorDisconnection emits p every time it disconnects. No command is issued.
func (c *Connector) MonitorDisconnection(p Peripheral) rx.Stream[Peripheral] {
	return rx.Map(c.peripheralEvents(p, EventPeripheralDisconnected), func(ev Event) Peripheral {
		return ev.Peripheral
	})
}

// MonitorConnection emits p every time it connects. No command is issued.
func (c *Connector) MonitorConnection(p Peripheral) rx.Stream[Peripheral] {
	return rx.Map(c.peripheralEvents(p, EventPeripheralConnected), func(ev Event) Peripheral {
		return ev.Peripheral
	})
}

// RetrievePeripherals returns the known peripherals with the given identifiers.
func (c *Connector) RetrievePeripherals(ids []string) rx.Stream[[]Peripheral] {
	return EnsureState(c.binding, StatePoweredOn, rx.Deferred(func() rx.Stream[[]Peripheral] {
		return rx.Just(c.binding.RetrievePeripherals(ids))
	}))
}

// RetrieveConnectedPeripherals returns the connected peripherals exposing the given services.
func (c *Connector) RetrieveConnectedPeripherals(uuids []UUID) rx.Stream[[]Peripheral] {
	return EnsureState(c.binding, StatePoweredOn, rx.Deferred(func() rx.Stream[[]Peripheral] {
		return rx.Just(c.binding.RetrieveConnectedPeripherals(uuids))
	}))
}

func (c *Connector) peripheralEvents(p Peripheral, kind EventKind) rx.Stream[Event] {
	return rx.Filter(c.binding.Events(), func(ev Event) bool {
		return ev.Kind == kind && ev.Peripheral.Equal(p)
	})
}
