// Package tinygo implements central.AdapterBinding over tinygo.org/x/bluetooth.
//
// The tinygo API has no included-service or descriptor discovery, no RSSI reads on
// connected peripherals and no adapter state callbacks. Included services and
// descriptors are reported as empty, RSSI reads fail with ErrUnsupportedOperation and the adapter state is derived
// from Enable. Writes with response are only available where the platform
// characteristic implements ResponseWriter.
package tinygo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/rxble/internal/groutine"
	"github.com/srg/rxble/pkg/central"
	"github.com/srg/rxble/pkg/rx"
)

const (
	defaultConnectTimeout = 30 * time.Second
	maxAttributeSize      = 512
)

var (
	ErrNotConnected         = errors.New("device not connected")
	ErrUnknownHandle        = errors.New("unknown attribute handle")
	ErrUnsupportedOperation = errors.New("operation not supported by the tinygo bluetooth stack")
)

// Options configure a Binding.
type Options struct {
	Scheduler      rx.Scheduler
	Logger         *logrus.Logger
	ConnectTimeout time.Duration
}

// Binding is a central.AdapterBinding backed by a tinygo bluetooth adapter.
type Binding struct {
	*central.EventBroker

	adapter Adapter
	logger  *logrus.Logger
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	state    atomic.Int32
	scanning atomic.Bool

	linkMu sync.Mutex
	links  *hashmap.Map[string, *link]
	known  *hashmap.Map[string, central.Peripheral]
}

var _ central.AdapterBinding = (*Binding)(nil)

// New enables the adapter returned by AdapterFactory. An adapter that cannot be
// enabled is reported through the adapter state.
func New(opts Options) *Binding {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Binding{
		EventBroker: central.NewEventBroker(opts.Scheduler, logger),
		adapter:     AdapterFactory(),
		logger:      logger,
		timeout:     timeout,
		ctx:         ctx,
		cancel:      cancel,
		links:       hashmap.New[string, *link](),
		known:       hashmap.New[string, central.Peripheral](),
	}

	if err := b.adapter.Enable(); err != nil {
		st := stateFromError(err)
		b.state.Store(int32(st))
		logger.WithError(err).WithField("state", st.String()).Warn("Failed to enable bluetooth adapter")
		return b
	}
	b.state.Store(int32(central.StatePoweredOn))
	b.adapter.SetConnectHandler(b.onConnectionChange)
	logger.Debug("Bluetooth adapter enabled")
	return b
}

// stateFromError maps an Enable failure to the adapter state it reports.
func stateFromError(err error) central.AdapterState {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not supported"), strings.Contains(msg, "unsupported"):
		return central.StateUnsupported
	case strings.Contains(msg, "permission"), strings.Contains(msg, "not permitted"), strings.Contains(msg, "unauthorized"):
		return central.StateUnauthorized
	default:
		return central.StatePoweredOff
	}
}

// State returns the adapter state determined when the adapter was enabled.
func (b *Binding) State() central.AdapterState {
	return central.AdapterState(b.state.Load())
}

func (b *Binding) poweredOn() bool {
	return b.State() == central.StatePoweredOn
}

// PeripheralState returns the state of the link to id.
func (b *Binding) PeripheralState(id string) central.PeripheralState {
	if l, ok := b.links.Get(id); ok {
		return l.State()
	}
	return central.PeripheralDisconnected
}

// ScanForPeripherals starts a scan. Any of uuids matches, like a controller filter;
// an empty uuids matches everything.
func (b *Binding) ScanForPeripherals(uuids []central.UUID, _ *central.ScanOptions) {
	if !b.poweredOn() || !b.scanning.CompareAndSwap(false, true) {
		return
	}
	b.logger.WithField("uuids", uuids).Debug("Starting tinygo scan")

	groutine.Go(b.ctx, "tinygo-scan", func(context.Context) {
		err := b.adapter.Scan(func(adv Advertisement) {
			b.onAdvertisement(adv, uuids)
		})
		b.scanning.Store(false)
		if err != nil {
			b.logger.WithError(err).Warn("Scan terminated with error")
		}
	})
}

// StopScan stops the running scan, if any.
func (b *Binding) StopScan() {
	if !b.scanning.Load() {
		return
	}
	if err := b.adapter.StopScan(); err != nil {
		b.logger.WithError(err).Debug("Failed to stop scan")
		return
	}
	b.logger.Debug("Stopped tinygo scan")
}

func (b *Binding) onAdvertisement(adv Advertisement, filter []central.UUID) {
	if !advertisesAny(adv.Data, filter) {
		return
	}
	p := central.Peripheral{ID: adv.Address, Name: adv.Data.LocalName}
	prev, seen := b.known.Get(p.ID)
	if p.Name == "" && seen {
		p.Name = prev.Name
	}
	b.known.Set(p.ID, p)

	b.Publish(central.Event{
		Kind:          central.EventPeripheralDiscovered,
		Peripheral:    p,
		Advertisement: adv.Data,
		RSSI:          adv.RSSI,
	})
	if seen && prev.Name != "" && prev.Name != p.Name {
		b.Publish(central.Event{Kind: central.EventNameUpdated, Peripheral: p})
	}
}

// advertisesAny reports whether data lists any UUID of filter. An empty filter
// matches every advertisement.
func advertisesAny(data central.AdvertisementData, filter []central.UUID) bool {
	if len(filter) == 0 {
		return true
	}
	for _, want := range filter {
		for _, have := range data.ServiceUUIDs {
			if want == have {
				return true
			}
		}
	}
	return false
}

// Connect dials p on a new link.
func (b *Binding) Connect(p central.Peripheral, opts *central.ConnectOptions) {
	if known, ok := b.known.Get(p.ID); ok && p.Name == "" {
		p.Name = known.Name
	}

	b.linkMu.Lock()
	if l, ok := b.links.Get(p.ID); ok {
		b.linkMu.Unlock()
		if l.State() == central.PeripheralConnected {
			b.Publish(central.Event{Kind: central.EventPeripheralConnected, Peripheral: l.peripheral})
		}
		return
	}
	l, ctx := newLink(b.ctx, p)
	b.links.Set(p.ID, l)
	b.linkMu.Unlock()

	timeout := b.timeout
	if opts != nil && opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	l.loop.Schedule(func() { b.dial(ctx, l, timeout) })
}

func (b *Binding) dial(ctx context.Context, l *link, timeout time.Duration) {
	logger := b.logger.WithField("peripheral", l.peripheral.ID)

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dev, err := b.adapter.Connect(dialCtx, l.peripheral.ID)
	if ctx.Err() != nil {
		if dev != nil {
			_ = dev.Disconnect()
		}
		return
	}
	if err != nil {
		logger.WithError(err).Warn("Failed to connect to peripheral")
		l.closeOnce.Do(func() { b.removeLink(l) })
		b.Publish(central.Event{Kind: central.EventPeripheralConnectFailed, Peripheral: l.peripheral, Err: err})
		return
	}

	l.attach(dev)
	logger.Info("Connected to peripheral")
	b.Publish(central.Event{Kind: central.EventPeripheralConnected, Peripheral: l.peripheral})
}

func (b *Binding) onConnectionChange(address string, connected bool) {
	if connected {
		return
	}
	if l, ok := b.links.Get(address); ok {
		b.closeLink(l, nil)
	}
}

// CancelConnection disconnects p. The outcome is reported once, whether or not the
// stack also calls the connect handler.
func (b *Binding) CancelConnection(p central.Peripheral) {
	l, ok := b.links.Get(p.ID)
	if !ok {
		b.Publish(central.Event{Kind: central.EventPeripheralDisconnected, Peripheral: p})
		return
	}
	dev := l.Device()
	if dev == nil {
		b.closeLink(l, nil)
		return
	}
	l.setState(central.PeripheralDisconnecting)
	groutine.Go(b.ctx, "tinygo-cancel-"+p.ID, func(context.Context) {
		err := dev.Disconnect()
		if err != nil {
			b.logger.WithError(err).WithField("peripheral", p.ID).Warn("Failed to disconnect")
		}
		b.closeLink(l, err)
	})
}

func (b *Binding) closeLink(l *link, cause error) {
	l.closeOnce.Do(func() {
		b.removeLink(l)
		b.logger.WithField("peripheral", l.peripheral.ID).Info("Peripheral disconnected")
		b.Publish(central.Event{Kind: central.EventPeripheralDisconnected, Peripheral: l.peripheral, Err: cause})
	})
}

func (b *Binding) removeLink(l *link) {
	b.linkMu.Lock()
	if cur, ok := b.links.Get(l.peripheral.ID); ok && cur == l {
		b.links.Del(l.peripheral.ID)
	}
	b.linkMu.Unlock()
	l.setState(central.PeripheralDisconnected)
	l.cancel()
}

// RetrievePeripherals returns the peripherals seen by a scan or a connection.
func (b *Binding) RetrievePeripherals(ids []string) []central.Peripheral {
	out := make([]central.Peripheral, 0, len(ids))
	for _, id := range ids {
		if l, ok := b.links.Get(id); ok {
			out = append(out, l.peripheral)
		} else if p, ok := b.known.Get(id); ok {
			out = append(out, p)
		}
	}
	return out
}

// RetrieveConnectedPeripherals returns the connected peripherals on which every uuid
// was discovered.
func (b *Binding) RetrieveConnectedPeripherals(uuids []central.UUID) []central.Peripheral {
	var out []central.Peripheral
	b.links.Range(func(_ string, l *link) bool {
		if l.State() == central.PeripheralConnected && l.hasServices(uuids) {
			out = append(out, l.peripheral)
		}
		return true
	})
	return out
}

func (b *Binding) onLink(id string, fail func(error), fn func(l *link, dev Device)) {
	l, ok := b.links.Get(id)
	if !ok {
		fail(ErrNotConnected)
		return
	}
	l.loop.Schedule(func() {
		dev := l.Device()
		if dev == nil || l.State() != central.PeripheralConnected {
			fail(ErrNotConnected)
			return
		}
		fn(l, dev)
	})
}

// DiscoverServices discovers the services of p.
func (b *Binding) DiscoverServices(p central.Peripheral, uuids []central.UUID) {
	publish := func(services []central.Service, err error) {
		b.Publish(central.Event{Kind: central.EventServicesDiscovered, Peripheral: p, Services: services, Err: err})
	}
	b.onLink(p.ID, func(err error) { publish(nil, err) }, func(l *link, dev Device) {
		filter, err := toUUIDs(uuids)
		if err != nil {
			publish(nil, err)
			return
		}
		found, err := dev.DiscoverServices(filter)
		if err != nil {
			publish(nil, err)
			return
		}
		services := make([]central.Service, 0, len(found))
		for i, s := range found {
			services = append(services, l.addService(i, s))
		}
		publish(services, nil)
	})
}

// DiscoverIncludedServices reports no included services.
func (b *Binding) DiscoverIncludedServices(s central.Service, _ []central.UUID) {
	b.onLink(s.Peripheral.ID, func(err error) {
		b.Publish(central.Event{Kind: central.EventIncludedServicesDiscovered, Peripheral: s.Peripheral, Service: s, Err: err})
	}, func(*link, Device) {
		b.Publish(central.Event{
			Kind:       central.EventIncludedServicesDiscovered,
			Peripheral: s.Peripheral,
			Service:    s,
			Services:   []central.Service{},
		})
	})
}

// DiscoverCharacteristics discovers the characteristics of s.
func (b *Binding) DiscoverCharacteristics(s central.Service, uuids []central.UUID) {
	publish := func(chars []central.Characteristic, err error) {
		b.Publish(central.Event{
			Kind:            central.EventCharacteristicsDiscovered,
			Peripheral:      s.Peripheral,
			Service:         s,
			Characteristics: chars,
			Err:             err,
		})
	}
	b.onLink(s.Peripheral.ID, func(err error) { publish(nil, err) }, func(l *link, _ Device) {
		native, ok := l.services.Get(s.ID)
		if !ok {
			publish(nil, ErrUnknownHandle)
			return
		}
		filter, err := toUUIDs(uuids)
		if err != nil {
			publish(nil, err)
			return
		}
		found, err := native.DiscoverCharacteristics(filter)
		if err != nil {
			publish(nil, err)
			return
		}
		chars := make([]central.Characteristic, 0, len(found))
		for i, c := range found {
			chars = append(chars, l.addCharacteristic(s, i, c))
		}
		publish(chars, nil)
	})
}

func (b *Binding) characteristicCommand(c central.Characteristic, fail func(error), fn func(native Characteristic)) {
	b.onLink(c.Peripheral().ID, fail, func(l *link, _ Device) {
		native, ok := l.chars.Get(c.ID)
		if !ok {
			fail(ErrUnknownHandle)
			return
		}
		fn(native)
	})
}

// DiscoverDescriptors reports no descriptors: tinygo bluetooth does not expose them.
func (b *Binding) DiscoverDescriptors(c central.Characteristic) {
	publish := func(descriptors []central.Descriptor, err error) {
		b.Publish(central.Event{
			Kind:           central.EventDescriptorsDiscovered,
			Peripheral:     c.Peripheral(),
			Characteristic: c,
			Descriptors:    descriptors,
			Err:            err,
		})
	}
	b.characteristicCommand(c, func(err error) { publish(nil, err) }, func(Characteristic) {
		publish([]central.Descriptor{}, nil)
	})
}

// ReadValue reads c.
func (b *Binding) ReadValue(c central.Characteristic) {
	publish := func(value []byte, err error) {
		updated := c
		if err == nil {
			updated.Value = value
		}
		b.Publish(central.Event{Kind: central.EventValueUpdated, Peripheral: c.Peripheral(), Characteristic: updated, Err: err})
	}
	b.characteristicCommand(c, func(err error) { publish(nil, err) }, func(native Characteristic) {
		buf := make([]byte, maxAttributeSize)
		n, err := native.Read(buf)
		if err != nil {
			publish(nil, err)
			return
		}
		publish(buf[:n], nil)
	})
}

// WriteValue writes data to c. Only writes with response publish a confirmation; they
// fail with ErrUnsupportedOperation when the platform cannot write with response.
func (b *Binding) WriteValue(c central.Characteristic, data []byte, t central.WriteType) {
	payload := append([]byte(nil), data...)
	publish := func(err error) {
		if t == central.WriteWithoutResponse {
			if err != nil {
				b.logger.WithError(err).WithField("characteristic", c.UUID).Warn("Write without response failed")
			}
			return
		}
		b.Publish(central.Event{Kind: central.EventValueWritten, Peripheral: c.Peripheral(), Characteristic: c, Err: err})
	}
	b.characteristicCommand(c, publish, func(native Characteristic) {
		var err error
		switch w, ok := native.(ResponseWriter); {
		case t == central.WriteWithoutResponse:
			_, err = native.WriteWithoutResponse(payload)
		case ok:
			_, err = w.Write(payload)
		default:
			err = ErrUnsupportedOperation
		}
		publish(err)
	})
}

// SetNotifyValue enables notifications of c; a nil callback disables them.
func (b *Binding) SetNotifyValue(c central.Characteristic, enabled bool) {
	publish := func(err error) {
		updated := c
		updated.Notifying = enabled && err == nil
		b.Publish(central.Event{Kind: central.EventNotificationStateUpdated, Peripheral: c.Peripheral(), Characteristic: updated, Err: err})
	}
	b.characteristicCommand(c, publish, func(native Characteristic) {
		if !enabled {
			publish(native.EnableNotifications(nil))
			return
		}
		publish(native.EnableNotifications(func(buf []byte) {
			updated := c
			updated.Value = append([]byte(nil), buf...)
			updated.Notifying = true
			b.Publish(central.Event{Kind: central.EventValueUpdated, Peripheral: c.Peripheral(), Characteristic: updated})
		}))
	})
}

// ReadRSSI is not available for connected peripherals.
func (b *Binding) ReadRSSI(p central.Peripheral) {
	b.Publish(central.Event{Kind: central.EventRSSIRead, Peripheral: p, Err: ErrUnsupportedOperation})
}

// Close stops scanning and disconnects every link.
func (b *Binding) Close() error {
	b.StopScan()

	var errs []error
	b.links.Range(func(_ string, l *link) bool {
		if dev := l.Device(); dev != nil {
			if err := dev.Disconnect(); err != nil {
				errs = append(errs, fmt.Errorf("disconnect %s: %w", l.peripheral.ID, err))
			}
		}
		b.closeLink(l, nil)
		return true
	})

	b.cancel()
	b.EventBroker.Close()
	return errors.Join(errs...)
}
