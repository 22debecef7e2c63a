package central

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/rxble/pkg/rx"
)

// Operations performs GATT operations on connected peripherals. Every operation fails
// with the adapter-state error when the adapter is not powered on, and with
// ErrPeripheralDisconnected when the peripheral is not connected or disconnects before
// the operation finished.
type Operations struct {
	binding AdapterBinding
	logger  *logrus.Logger

	notifications *NotificationManager
}

// NewOperations creates the operation controller for binding.
func NewOperations(binding AdapterBinding, logger *logrus.Logger) *Operations {
	if logger == nil {
		logger = logrus.New()
	}
	o := &Operations{binding: binding, logger: logger}
	o.notifications = NewNotificationManager(o, logger)
	return o
}

// ensurePeripheral gates s behind the adapter state and the connection of p.
func ensurePeripheral[T any](o *Operations, p Peripheral, s rx.Stream[T]) rx.Stream[T] {
	return EnsureState(o.binding, StatePoweredOn, rx.Deferred(func() rx.Stream[T] {
		if o.binding.PeripheralState(p.ID) != PeripheralConnected {
			return rx.Fail[T](peripheralError(KindPeripheralDisconnected, p, nil))
		}
		return rx.Absorb(disconnectWatch[T](o, p), s)
	}))
}

// disconnectWatch fails with ErrPeripheralDisconnected once p disconnects.
func disconnectWatch[T any](o *Operations, p Peripheral) rx.Stream[T] {
	return rx.Create(func(s *rx.Subscriber[T]) func() {
		sub := o.events(EventPeripheralDisconnected, func(ev Event) bool {
			return ev.Peripheral.Equal(p)
		}).SubscribeFuncs(func(ev Event) {
			s.Error(peripheralError(KindPeripheralDisconnected, p, ev.Err))
		}, s.Error, nil)
		return sub.Cancel
	})
}

// singleShot subscribes to the first event accepted by match, then calls issue. The
// event is converted by result into the only value of the stream.
func singleShot[T any](o *Operations, kind EventKind, match func(Event) bool, issue func(), result func(Event) (T, error)) rx.Stream[T] {
	return rx.Create(func(s *rx.Subscriber[T]) func() {
		sub := rx.TryMap(rx.Take(o.events(kind, match), 1), result).Subscribe(rx.Forward(s))
		if !sub.Stopped() {
			issue()
		}
		return sub.Cancel
	})
}

func (o *Operations) events(kind EventKind, match func(Event) bool) rx.Stream[Event] {
	return rx.Filter(o.binding.Events(), func(ev Event) bool {
		return ev.Kind == kind && match(ev)
	})
}

// DiscoverServices discovers the services of p. A nil uuids discovers all services;
// otherwise only services listed in uuids are emitted.
func (o *Operations) DiscoverServices(p Peripheral, uuids []UUID) rx.Stream[[]Service] {
	return ensurePeripheral(o, p, singleShot(o, EventServicesDiscovered,
		func(ev Event) bool { return ev.Peripheral.Equal(p) },
		func() {
			o.logger.WithFields(logrus.Fields{"peripheral": p.ID, "uuids": uuids}).Debug("Discovering services")
			o.binding.DiscoverServices(p, uuids)
		},
		func(ev Event) ([]Service, error) {
			if ev.Err != nil {
				return nil, peripheralError(KindServicesDiscoveryFailed, p, ev.Err)
			}
			return filterServices(ev.Services, uuids), nil
		},
	))
}

// DiscoverIncludedServices discovers the services included by s.
func (o *Operations) DiscoverIncludedServices(s Service, uuids []UUID) rx.Stream[[]Service] {
	return ensurePeripheral(o, s.Peripheral, singleShot(o, EventIncludedServicesDiscovered,
		func(ev Event) bool { return ev.Service.Equal(s) },
		func() {
			o.logger.WithFields(logrus.Fields{"service": s.UUID, "uuids": uuids}).Debug("Discovering included services")
			o.binding.DiscoverIncludedServices(s, uuids)
		},
		func(ev Event) ([]Service, error) {
			if ev.Err != nil {
				return nil, serviceError(KindIncludedServicesDiscoveryFailed, s, ev.Err)
			}
			return filterServices(ev.Services, uuids), nil
		},
	))
}

// DiscoverCharacteristics discovers the characteristics of s.
func (o *Operations) DiscoverCharacteristics(s Service, uuids []UUID) rx.Stream[[]Characteristic] {
	return ensurePeripheral(o, s.Peripheral, singleShot(o, EventCharacteristicsDiscovered,
		func(ev Event) bool { return ev.Service.Equal(s) },
		func() {
			o.logger.WithFields(logrus.Fields{"service": s.UUID, "uuids": uuids}).Debug("Discovering characteristics")
			o.binding.DiscoverCharacteristics(s, uuids)
		},
		func(ev Event) ([]Characteristic, error) {
			if ev.Err != nil {
				return nil, serviceError(KindCharacteristicsDiscoveryFailed, s, ev.Err)
			}
			out := make([]Characteristic, 0, len(ev.Characteristics))
			for _, c := range ev.Characteristics {
				if shouldBeIncluded(c.UUID, uuids) {
					out = append(out, c)
				}
			}
			return out, nil
		},
	))
}

// DiscoverDescriptors discovers the descriptors of c.
func (o *Operations) DiscoverDescriptors(c Characteristic) rx.Stream[[]Descriptor] {
	return ensurePeripheral(o, c.Peripheral(), singleShot(o, EventDescriptorsDiscovered,
		func(ev Event) bool { return ev.Characteristic.Equal(c) },
		func() {
			o.logger.WithField("characteristic", c.UUID).Debug("Discovering descriptors")
			o.binding.DiscoverDescriptors(c)
		},
		func(ev Event) ([]Descriptor, error) {
			if ev.Err != nil {
				return nil, characteristicError(KindDescriptorsDiscoveryFailed, c, ev.Err)
			}
			return ev.Descriptors, nil
		},
	))
}

// ServiceWithUUID discovers p's services and emits the one matching uuid.
func (o *Operations) ServiceWithUUID(p Peripheral, uuid UUID) rx.Stream[Service] {
	return rx.TryMap(o.DiscoverServices(p, []UUID{uuid}), func(services []Service) (Service, error) {
		for _, s := range services {
			if s.UUID == uuid {
				return s, nil
			}
		}
		return Service{}, &NotFoundError{Resource: "service", UUIDs: []UUID{uuid}}
	})
}

// CharacteristicWithUUID discovers s's characteristics and emits the one matching uuid.
func (o *Operations) CharacteristicWithUUID(s Service, uuid UUID) rx.Stream[Characteristic] {
	return rx.TryMap(o.DiscoverCharacteristics(s, []UUID{uuid}), func(chars []Characteristic) (Characteristic, error) {
		for _, c := range chars {
			if c.UUID == uuid {
				return c, nil
			}
		}
		return Characteristic{}, &NotFoundError{Resource: "characteristic", UUIDs: []UUID{s.UUID, uuid}}
	})
}

// ReadValue reads c and emits it with the value snapshot filled in.
func (o *Operations) ReadValue(c Characteristic) rx.Stream[Characteristic] {
	return ensurePeripheral(o, c.Peripheral(), singleShot(o, EventValueUpdated,
		func(ev Event) bool { return ev.Characteristic.Equal(c) },
		func() {
			o.logger.WithField("characteristic", c.UUID).Debug("Reading characteristic")
			o.binding.ReadValue(c)
		},
		func(ev Event) (Characteristic, error) {
			if ev.Err != nil {
				return Characteristic{}, characteristicError(KindCharacteristicReadFailed, c, ev.Err)
			}
			return ev.Characteristic, nil
		},
	))
}

// WriteValue writes data to c. WriteWithoutResponse completes as soon as the command is
// issued; WriteWithResponse waits for the write confirmation of c.
func (o *Operations) WriteValue(data []byte, c Characteristic, t WriteType) rx.Stream[Characteristic] {
	issue := func() {
		o.logger.WithFields(logrus.Fields{
			"characteristic": c.UUID,
			"bytes":          len(data),
			"type":           t.String(),
		}).Debug("Writing characteristic")
		o.binding.WriteValue(c, data, t)
	}

	if t == WriteWithoutResponse {
		return ensurePeripheral(o, c.Peripheral(), rx.Create(func(s *rx.Subscriber[Characteristic]) func() {
			issue()
			s.Next(c)
			s.Complete()
			return nil
		}))
	}

	return ensurePeripheral(o, c.Peripheral(), singleShot(o, EventValueWritten,
		func(ev Event) bool { return ev.Characteristic.Equal(c) },
		issue,
		func(ev Event) (Characteristic, error) {
			if ev.Err != nil {
				return Characteristic{}, characteristicError(KindCharacteristicWriteFailed, c, ev.Err)
			}
			return ev.Characteristic, nil
		},
	))
}

// SetNotifyValue enables or disables notifications of c and emits c once the binding
// confirms the new state.
func (o *Operations) SetNotifyValue(enabled bool, c Characteristic) rx.Stream[Characteristic] {
	return ensurePeripheral(o, c.Peripheral(), singleShot(o, EventNotificationStateUpdated,
		func(ev Event) bool { return ev.Characteristic.Equal(c) },
		func() {
			o.logger.WithFields(logrus.Fields{"characteristic": c.UUID, "enabled": enabled}).Debug("Changing notification state")
			o.binding.SetNotifyValue(c, enabled)
		},
		func(ev Event) (Characteristic, error) {
			if ev.Err != nil {
				return Characteristic{}, characteristicError(KindCharacteristicNotifyChangeFailed, c, ev.Err)
			}
			return ev.Characteristic, nil
		},
	))
}

// MonitorValueUpdate emits c on every value update until disposed. It issues no command.
func (o *Operations) MonitorValueUpdate(c Characteristic) rx.Stream[Characteristic] {
	return ensurePeripheral(o, c.Peripheral(), o.monitorCharacteristic(c, EventValueUpdated, KindCharacteristicReadFailed))
}

// MonitorWrite emits c on every write confirmation until disposed.
func (o *Operations) MonitorWrite(c Characteristic) rx.Stream[Characteristic] {
	return ensurePeripheral(o, c.Peripheral(), o.monitorCharacteristic(c, EventValueWritten, KindCharacteristicWriteFailed))
}

// SetNotificationAndMonitorUpdates enables notifications of c while subscribed and
// emits c on every update. Concurrent subscribers share one notification session.
func (o *Operations) SetNotificationAndMonitorUpdates(c Characteristic) rx.Stream[Characteristic] {
	return o.notifications.Observe(c)
}

func (o *Operations) monitorCharacteristic(c Characteristic, kind EventKind, failure ErrorKind) rx.Stream[Characteristic] {
	return rx.TryMap(
		o.events(kind, func(ev Event) bool { return ev.Characteristic.Equal(c) }),
		func(ev Event) (Characteristic, error) {
			if ev.Err != nil {
				return Characteristic{}, characteristicError(failure, c, ev.Err)
			}
			return ev.Characteristic, nil
		},
	)
}

// ReadRSSI reads the signal strength of p.
func (o *Operations) ReadRSSI(p Peripheral) rx.Stream[RSSIReading] {
	return ensurePeripheral(o, p, singleShot(o, EventRSSIRead,
		func(ev Event) bool { return ev.Peripheral.Equal(p) },
		func() { o.binding.ReadRSSI(p) },
		func(ev Event) (RSSIReading, error) {
			if ev.Err != nil {
				return RSSIReading{}, peripheralError(KindPeripheralRSSIReadFailed, p, ev.Err)
			}
			return RSSIReading{Peripheral: p, RSSI: ev.RSSI}, nil
		},
	))
}

// MonitorNameUpdate emits the new name of p whenever it changes.
func (o *Operations) MonitorNameUpdate(p Peripheral) rx.Stream[string] {
	return ensurePeripheral(o, p, rx.Map(
		o.events(EventNameUpdated, func(ev Event) bool { return ev.Peripheral.Equal(p) }),
		func(ev Event) string { return ev.Peripheral.Name },
	))
}

// MonitorServicesModification emits the services of p invalidated by the peripheral.
func (o *Operations) MonitorServicesModification(p Peripheral) rx.Stream[[]Service] {
	return ensurePeripheral(o, p, rx.Map(
		o.events(EventServicesModified, func(ev Event) bool { return ev.Peripheral.Equal(p) }),
		func(ev Event) []Service { return ev.Services },
	))
}

func filterServices(services []Service, uuids []UUID) []Service {
	out := make([]Service, 0, len(services))
	for _, s := range services {
		if shouldBeIncluded(s.UUID, uuids) {
			out = append(out, s)
		}
	}
	return out
}
