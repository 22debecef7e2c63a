// Package goble implements central.AdapterBinding over github.com/go-ble/ble.
//
// go-ble exposes blocking calls; the binding turns every command into a fire-and-forget
// call whose outcome is published as a central.Event. Scanning runs on its own
// goroutine, and every connected peripheral gets a serial loop on which its dial and
// GATT commands run in order.
package goble

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/rxble/internal/groutine"
	"github.com/srg/rxble/pkg/central"
	"github.com/srg/rxble/pkg/rx"
)

const defaultConnectTimeout = 30 * time.Second

// Options configure a Binding.
type Options struct {
	// Scheduler events are delivered on; rx.Immediate when nil.
	Scheduler rx.Scheduler
	Logger    *logrus.Logger
	// ConnectTimeout bounds a dial unless ConnectOptions.Timeout overrides it.
	ConnectTimeout time.Duration
}

// Binding is a central.AdapterBinding backed by a go-ble device.
type Binding struct {
	*central.EventBroker

	dev     Device
	logger  *logrus.Logger
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	state atomic.Int32

	linkMu sync.Mutex
	links  *hashmap.Map[string, *link]
	known  *hashmap.Map[string, central.Peripheral]

	scanMu     sync.Mutex
	scanCancel context.CancelFunc
	scanGen    uint64
}

var _ central.AdapterBinding = (*Binding)(nil)

// New creates the platform device through DeviceFactory. A device that cannot be
// created does not fail the call: the binding reports the adapter state derived from
// the error, so that central operations fail with the matching adapter-state error.
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
		logger:      logger,
		timeout:     timeout,
		ctx:         ctx,
		cancel:      cancel,
		links:       hashmap.New[string, *link](),
		known:       hashmap.New[string, central.Peripheral](),
	}

	dev, err := DeviceFactory()
	if err != nil {
		err = NormalizeError(err)
		st, ok := AdapterStateFromError(err)
		if !ok {
			st = central.StateUnsupported
		}
		b.state.Store(int32(st))
		logger.WithError(err).WithField("state", st.String()).Warn("BLE device is not available")
		return b
	}
	b.dev = dev
	b.state.Store(int32(central.StatePoweredOn))
	logger.Debug("BLE device created")
	return b
}

// State returns the last known adapter state.
func (b *Binding) State() central.AdapterState {
	return central.AdapterState(b.state.Load())
}

// setState records st and publishes a state change when it differs.
func (b *Binding) setState(st central.AdapterState) {
	prev := central.AdapterState(b.state.Swap(int32(st)))
	if prev == st {
		return
	}
	b.logger.WithFields(logrus.Fields{
		"from": prev.String(),
		"to":   st.String(),
	}).Info("Adapter state changed")
	b.Publish(central.Event{Kind: central.EventStateChanged, State: st})
}

// observeError updates the adapter state when err reports one.
func (b *Binding) observeError(err error) {
	if st, ok := AdapterStateFromError(err); ok {
		b.setState(st)
	}
}

// PeripheralState returns the state of the link to id.
func (b *Binding) PeripheralState(id string) central.PeripheralState {
	if l, ok := b.links.Get(id); ok {
		return l.State()
	}
	return central.PeripheralDisconnected
}

// ScanForPeripherals starts a scan. go-ble has no service filter, so uuids are
// matched here the way a controller filter does: any listed UUID matches.
func (b *Binding) ScanForPeripherals(uuids []central.UUID, opts *central.ScanOptions) {
	if b.dev == nil {
		return
	}
	allowDup := opts != nil && opts.AllowDuplicates

	b.scanMu.Lock()
	if b.scanCancel != nil {
		b.scanMu.Unlock()
		b.logger.Warn("Scan already running, ignoring start request")
		return
	}
	ctx, cancel := context.WithCancel(b.ctx)
	b.scanGen++
	gen := b.scanGen
	b.scanCancel = cancel
	b.scanMu.Unlock()

	b.logger.WithFields(logrus.Fields{
		"uuids":     uuids,
		"allow_dup": allowDup,
	}).Debug("Starting go-ble scan")

	groutine.Go(ctx, "goble-scan", func(ctx context.Context) {
		err := b.dev.Scan(ctx, allowDup, func(a ble.Advertisement) {
			b.onAdvertisement(a, uuids)
		})
		b.scanFinished(gen)

		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		err = NormalizeError(err)
		b.logger.WithError(err).Warn("Scan terminated with error")
		b.observeError(err)
	})
}

// StopScan stops the running scan, if any.
func (b *Binding) StopScan() {
	b.scanMu.Lock()
	cancel := b.scanCancel
	b.scanCancel = nil
	b.scanMu.Unlock()

	if cancel != nil {
		cancel()
		b.logger.Debug("Stopped go-ble scan")
	}
}

func (b *Binding) scanFinished(gen uint64) {
	b.scanMu.Lock()
	defer b.scanMu.Unlock()
	if b.scanGen == gen && b.scanCancel != nil {
		b.scanCancel()
		b.scanCancel = nil
	}
}

func (b *Binding) onAdvertisement(a ble.Advertisement, filter []central.UUID) {
	data := fromBLEAdvertisement(a)
	if !advertisesAny(data, filter) {
		return
	}

	p := central.Peripheral{ID: a.Addr().String(), Name: data.LocalName}
	prev, seen := b.known.Get(p.ID)
	if p.Name == "" && seen {
		p.Name = prev.Name
	}
	b.known.Set(p.ID, p)

	b.Publish(central.Event{
		Kind:          central.EventPeripheralDiscovered,
		Peripheral:    p,
		Advertisement: data,
		RSSI:          a.RSSI(),
	})
	if seen && prev.Name != "" && prev.Name != p.Name {
		b.Publish(central.Event{Kind: central.EventNameUpdated, Peripheral: p})
	}
}

// Connect dials p on a new link. Connecting an already linked peripheral reports the
// current connection again instead of dialing twice.
func (b *Binding) Connect(p central.Peripheral, opts *central.ConnectOptions) {
	if b.dev == nil {
		b.Publish(central.Event{Kind: central.EventPeripheralConnectFailed, Peripheral: p, Err: ErrNoDevice})
		return
	}
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
	logger := b.logger.WithFields(logrus.Fields{
		"peripheral": l.peripheral.ID,
		"timeout":    timeout,
	})
	logger.Debug("Dialing peripheral")

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := b.dev.Dial(dialCtx, ble.NewAddr(l.peripheral.ID))
	if ctx.Err() != nil {
		// cancelled by CancelConnection or Close, which already reported the outcome
		if client != nil {
			_ = client.CancelConnection()
		}
		return
	}
	if err != nil {
		err = NormalizeError(err)
		logger.WithError(err).Warn("Failed to connect to peripheral")
		b.observeError(err)
		b.dropLink(l)
		b.Publish(central.Event{Kind: central.EventPeripheralConnectFailed, Peripheral: l.peripheral, Err: err})
		return
	}

	l.attach(client)
	groutine.Go(ctx, "goble-disconnect-"+l.peripheral.ID, func(ctx context.Context) {
		select {
		case <-client.Disconnected():
			b.closeLink(l, nil)
		case <-ctx.Done():
		}
	})

	logger.Info("Connected to peripheral")
	b.Publish(central.Event{Kind: central.EventPeripheralConnected, Peripheral: l.peripheral})
}

// CancelConnection disconnects p, or aborts a dial in progress.
func (b *Binding) CancelConnection(p central.Peripheral) {
	l, ok := b.links.Get(p.ID)
	if !ok {
		b.Publish(central.Event{Kind: central.EventPeripheralDisconnected, Peripheral: p})
		return
	}

	client := l.Client()
	if client == nil {
		b.closeLink(l, nil)
		return
	}

	l.setState(central.PeripheralDisconnecting)
	groutine.Go(b.ctx, "goble-cancel-"+p.ID, func(context.Context) {
		if err := client.CancelConnection(); err != nil {
			err = NormalizeError(err)
			b.logger.WithError(err).WithField("peripheral", p.ID).Warn("Failed to cancel connection")
			b.closeLink(l, err)
		}
	})
}

// dropLink forgets a link that never connected.
func (b *Binding) dropLink(l *link) {
	l.closeOnce.Do(func() {
		b.removeLink(l)
	})
}

// closeLink tears the link down and reports the disconnection once.
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
			continue
		}
		if p, ok := b.known.Get(id); ok {
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

// onLink runs fn on the loop of p's link. fail reports commands that cannot run.
func (b *Binding) onLink(id string, fail func(error), fn func(l *link, client ble.Client)) {
	l, ok := b.links.Get(id)
	if !ok {
		fail(ErrNotConnected)
		return
	}
	l.loop.Schedule(func() {
		client := l.Client()
		if client == nil || l.State() != central.PeripheralConnected {
			fail(ErrNotConnected)
			return
		}
		fn(l, client)
	})
}

// DiscoverServices discovers the services of p.
func (b *Binding) DiscoverServices(p central.Peripheral, uuids []central.UUID) {
	publish := func(services []central.Service, err error) {
		b.Publish(central.Event{Kind: central.EventServicesDiscovered, Peripheral: p, Services: services, Err: err})
	}
	b.onLink(p.ID, func(err error) { publish(nil, err) }, func(l *link, client ble.Client) {
		filter, err := toBLEUUIDs(uuids)
		if err != nil {
			publish(nil, err)
			return
		}
		found, err := client.DiscoverServices(filter)
		if err != nil {
			publish(nil, NormalizeError(err))
			return
		}
		services := make([]central.Service, 0, len(found))
		for _, s := range found {
			services = append(services, l.addService(s, true))
		}
		b.logger.WithFields(logrus.Fields{
			"peripheral": p.ID,
			"services":   len(services),
		}).Debug("Services discovered")
		publish(services, nil)
	})
}

// DiscoverIncludedServices discovers the services included by s.
func (b *Binding) DiscoverIncludedServices(s central.Service, uuids []central.UUID) {
	publish := func(services []central.Service, err error) {
		b.Publish(central.Event{
			Kind:       central.EventIncludedServicesDiscovered,
			Peripheral: s.Peripheral,
			Service:    s,
			Services:   services,
			Err:        err,
		})
	}
	b.onLink(s.Peripheral.ID, func(err error) { publish(nil, err) }, func(l *link, client ble.Client) {
		native, ok := l.services.Get(s.ID)
		if !ok {
			publish(nil, ErrUnknownHandle)
			return
		}
		filter, err := toBLEUUIDs(uuids)
		if err != nil {
			publish(nil, err)
			return
		}
		found, err := client.DiscoverIncludedServices(filter, native)
		if err != nil {
			publish(nil, NormalizeError(err))
			return
		}
		services := make([]central.Service, 0, len(found))
		for _, inc := range found {
			services = append(services, l.addService(inc, false))
		}
		publish(services, nil)
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
	b.onLink(s.Peripheral.ID, func(err error) { publish(nil, err) }, func(l *link, client ble.Client) {
		native, ok := l.services.Get(s.ID)
		if !ok {
			publish(nil, ErrUnknownHandle)
			return
		}
		filter, err := toBLEUUIDs(uuids)
		if err != nil {
			publish(nil, err)
			return
		}
		found, err := client.DiscoverCharacteristics(filter, native)
		if err != nil {
			publish(nil, NormalizeError(err))
			return
		}
		chars := make([]central.Characteristic, 0, len(found))
		for _, c := range found {
			chars = append(chars, l.addCharacteristic(s, c))
		}
		publish(chars, nil)
	})
}

// characteristicCommand runs fn with the native characteristic behind c.
func (b *Binding) characteristicCommand(c central.Characteristic, fail func(error), fn func(l *link, client ble.Client, native *ble.Characteristic)) {
	b.onLink(c.Peripheral().ID, fail, func(l *link, client ble.Client) {
		native, ok := l.chars.Get(c.ID)
		if !ok {
			fail(ErrUnknownHandle)
			return
		}
		fn(l, client, native)
	})
}

// DiscoverDescriptors discovers the descriptors of c.
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
	b.characteristicCommand(c, func(err error) { publish(nil, err) }, func(_ *link, client ble.Client, native *ble.Characteristic) {
		found, err := client.DiscoverDescriptors(nil, native)
		if err != nil {
			publish(nil, NormalizeError(err))
			return
		}
		descriptors := make([]central.Descriptor, 0, len(found))
		for _, d := range found {
			descriptors = append(descriptors, central.Descriptor{ID: descriptorID(d), UUID: fromBLEUUID(d.UUID), Characteristic: c})
		}
		publish(descriptors, nil)
	})
}

// ReadValue reads c and publishes the value.
func (b *Binding) ReadValue(c central.Characteristic) {
	publish := func(value []byte, err error) {
		updated := c
		if err == nil {
			updated.Value = value
		}
		b.Publish(central.Event{Kind: central.EventValueUpdated, Peripheral: c.Peripheral(), Characteristic: updated, Err: err})
	}
	b.characteristicCommand(c, func(err error) { publish(nil, err) }, func(_ *link, client ble.Client, native *ble.Characteristic) {
		data, err := client.ReadCharacteristic(native)
		if err != nil {
			publish(nil, NormalizeError(err))
			return
		}
		publish(append([]byte(nil), data...), nil)
	})
}

// WriteValue writes data to c. Only writes with response publish a confirmation.
func (b *Binding) WriteValue(c central.Characteristic, data []byte, t central.WriteType) {
	noRsp := t == central.WriteWithoutResponse
	payload := append([]byte(nil), data...)
	publish := func(err error) {
		if noRsp {
			if err != nil {
				b.logger.WithError(err).WithField("characteristic", c.UUID).Warn("Write without response failed")
			}
			return
		}
		b.Publish(central.Event{Kind: central.EventValueWritten, Peripheral: c.Peripheral(), Characteristic: c, Err: err})
	}
	b.characteristicCommand(c, publish, func(_ *link, client ble.Client, native *ble.Characteristic) {
		publish(NormalizeError(client.WriteCharacteristic(native, payload, noRsp)))
	})
}

// SetNotifyValue subscribes to or unsubscribes from c. Indications are used when the
// characteristic cannot notify.
func (b *Binding) SetNotifyValue(c central.Characteristic, enabled bool) {
	publish := func(err error) {
		updated := c
		updated.Notifying = enabled && err == nil
		b.Publish(central.Event{Kind: central.EventNotificationStateUpdated, Peripheral: c.Peripheral(), Characteristic: updated, Err: err})
	}
	b.characteristicCommand(c, publish, func(_ *link, client ble.Client, native *ble.Characteristic) {
		ind := native.Property&ble.CharNotify == 0 && native.Property&ble.CharIndicate != 0
		if !enabled {
			publish(NormalizeError(client.Unsubscribe(native, ind)))
			return
		}

		if native.CCCD == nil {
			if _, err := client.DiscoverDescriptors(nil, native); err != nil {
				publish(NormalizeError(err))
				return
			}
		}
		err := client.Subscribe(native, ind, func(data []byte) {
			updated := c
			updated.Value = append([]byte(nil), data...)
			updated.Notifying = true
			b.Publish(central.Event{Kind: central.EventValueUpdated, Peripheral: c.Peripheral(), Characteristic: updated})
		})
		publish(NormalizeError(err))
	})
}

// ReadRSSI reads the signal strength of the link to p.
func (b *Binding) ReadRSSI(p central.Peripheral) {
	b.onLink(p.ID, func(err error) {
		b.Publish(central.Event{Kind: central.EventRSSIRead, Peripheral: p, Err: err})
	}, func(_ *link, client ble.Client) {
		b.Publish(central.Event{Kind: central.EventRSSIRead, Peripheral: p, RSSI: client.ReadRSSI()})
	})
}

// Close stops scanning, disconnects every link and releases the device.
func (b *Binding) Close() error {
	b.StopScan()

	var links []*link
	b.links.Range(func(_ string, l *link) bool {
		links = append(links, l)
		return true
	})
	for _, l := range links {
		if client := l.Client(); client != nil {
			if err := client.CancelConnection(); err != nil {
				b.logger.WithError(err).WithField("peripheral", l.peripheral.ID).Debug("Failed to cancel connection on close")
			}
		}
		b.closeLink(l, nil)
	}

	b.cancel()
	b.EventBroker.Close()

	if b.dev == nil {
		return nil
	}
	if err := b.dev.Stop(); err != nil {
		return NormalizeError(err)
	}
	return nil
}
