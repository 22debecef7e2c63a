package testutils

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/rxble/pkg/central"
	"github.com/srg/rxble/pkg/rx"
	"github.com/stretchr/testify/mock"
)

// FakeBinding is an in-memory central.AdapterBinding. Events are delivered
// synchronously on the calling goroutine.
//
// Commands are counted (Calls) and forwarded to the embedded mock only when the test
// registered an expectation for them, so tests can script a command with On(...).Run.
// For peripherals registered with AddPeripheral, commands without an expectation are
// answered from the peripheral's profile; otherwise they are left unanswered and the
// test emits the outcome with the Emit helpers.
type FakeBinding struct {
	mock.Mock
	*central.EventBroker

	logger *logrus.Logger

	mu          sync.Mutex
	state       central.AdapterState
	peripherals map[string]central.PeripheralState
	profiles    map[string]*PeripheralProfile
	values      map[string][]byte
	calls       map[string]int
}

var _ central.AdapterBinding = (*FakeBinding)(nil)

// NewFakeBinding creates a powered on binding.
func NewFakeBinding(logger *logrus.Logger) *FakeBinding {
	if logger == nil {
		logger = logrus.New()
	}
	return &FakeBinding{
		EventBroker: central.NewEventBroker(rx.Immediate, logger),
		logger:      logger,
		state:       central.StatePoweredOn,
		peripherals: make(map[string]central.PeripheralState),
		profiles:    make(map[string]*PeripheralProfile),
		values:      make(map[string][]byte),
		calls:       make(map[string]int),
	}
}

// AddPeripheral registers a profile the binding answers commands from.
func (f *FakeBinding) AddPeripheral(profile *PeripheralProfile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[profile.Peripheral.ID] = profile
	for _, s := range profile.Services {
		for _, c := range s.Characteristics {
			f.values[c.ID] = c.Value
		}
	}
}

// Calls returns how many times method was invoked.
func (f *FakeBinding) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Value returns the current value of a profile characteristic.
func (f *FakeBinding) Value(c central.Characteristic) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[c.ID]
}

// record counts the call and reports whether a test expectation handled it.
func (f *FakeBinding) record(method string, args ...interface{}) bool {
	f.mu.Lock()
	f.calls[method]++
	f.mu.Unlock()

	if !f.expects(method) {
		return false
	}
	f.MethodCalled(method, args...)
	return true
}

func (f *FakeBinding) expects(method string) bool {
	for _, call := range f.ExpectedCalls {
		if call.Method == method {
			return true
		}
	}
	return false
}

func (f *FakeBinding) profile(id string) (*PeripheralProfile, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	return p, ok
}

// State returns the current adapter state.
func (f *FakeBinding) State() central.AdapterState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// PeripheralState returns the connection state set for id.
func (f *FakeBinding) PeripheralState(id string) central.PeripheralState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peripherals[id]
}

// SetPeripheralState changes the connection state without raising an event.
func (f *FakeBinding) SetPeripheralState(id string, st central.PeripheralState) {
	f.mu.Lock()
	f.peripherals[id] = st
	f.mu.Unlock()
}

// ScanForPeripherals records the scan command.
func (f *FakeBinding) ScanForPeripherals(uuids []central.UUID, opts *central.ScanOptions) {
	f.logger.WithField("uuids", uuids).Debug("fake: scan started")
	f.record("ScanForPeripherals", uuids, opts)
}

// StopScan records the stop command.
func (f *FakeBinding) StopScan() {
	f.logger.Debug("fake: scan stopped")
	f.record("StopScan")
}

// Connect connects profile peripherals right away.
func (f *FakeBinding) Connect(p central.Peripheral, opts *central.ConnectOptions) {
	if f.record("Connect", p, opts) {
		return
	}
	if _, ok := f.profile(p.ID); ok {
		f.SetPeripheralState(p.ID, central.PeripheralConnecting)
		f.EmitConnected(p)
	}
}

// CancelConnection disconnects p right away.
func (f *FakeBinding) CancelConnection(p central.Peripheral) {
	if f.record("CancelConnection", p) {
		return
	}
	f.EmitDisconnected(p, nil)
}

// RetrievePeripherals returns the profile peripherals among ids.
func (f *FakeBinding) RetrievePeripherals(ids []string) []central.Peripheral {
	f.record("RetrievePeripherals", ids)
	var out []central.Peripheral
	for _, id := range ids {
		if p, ok := f.profile(id); ok {
			out = append(out, p.Peripheral)
		}
	}
	return out
}

// RetrieveConnectedPeripherals returns the connected profile peripherals exposing
// every uuid.
func (f *FakeBinding) RetrieveConnectedPeripherals(uuids []central.UUID) []central.Peripheral {
	f.record("RetrieveConnectedPeripherals", uuids)
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []central.Peripheral
	for id, p := range f.profiles {
		if f.peripherals[id] != central.PeripheralConnected {
			continue
		}
		have := make(map[central.UUID]bool)
		for _, s := range p.Services {
			have[s.Service.UUID] = true
		}
		all := true
		for _, u := range uuids {
			all = all && have[u]
		}
		if all {
			out = append(out, p.Peripheral)
		}
	}
	return out
}

// DiscoverServices answers with the profile services.
func (f *FakeBinding) DiscoverServices(p central.Peripheral, uuids []central.UUID) {
	if f.record("DiscoverServices", p, uuids) {
		return
	}
	if profile, ok := f.profile(p.ID); ok {
		f.EmitServices(p, profile.services(), nil)
	}
}

// DiscoverIncludedServices answers with no included services.
func (f *FakeBinding) DiscoverIncludedServices(s central.Service, uuids []central.UUID) {
	if f.record("DiscoverIncludedServices", s, uuids) {
		return
	}
	if _, ok := f.profile(s.Peripheral.ID); ok {
		f.EmitIncludedServices(s, []central.Service{}, nil)
	}
}

// DiscoverCharacteristics answers with the characteristics of s in the profile.
func (f *FakeBinding) DiscoverCharacteristics(s central.Service, uuids []central.UUID) {
	if f.record("DiscoverCharacteristics", s, uuids) {
		return
	}
	if profile, ok := f.profile(s.Peripheral.ID); ok {
		f.EmitCharacteristics(s, profile.characteristics(s), nil)
	}
}

// DiscoverDescriptors answers with a client configuration descriptor for characteristics
// that can notify or indicate, and with no descriptors otherwise.
func (f *FakeBinding) DiscoverDescriptors(c central.Characteristic) {
	if f.record("DiscoverDescriptors", c) {
		return
	}
	if _, ok := f.profile(c.Peripheral().ID); !ok {
		return
	}
	descriptors := []central.Descriptor{}
	if c.Properties.Has(central.PropertyNotify) || c.Properties.Has(central.PropertyIndicate) {
		cccd := central.NormalizeUUID("2902")
		descriptors = append(descriptors, central.Descriptor{ID: "dsc-" + c.UUID.String() + "-" + cccd.String(), UUID: cccd, Characteristic: c})
	}
	f.EmitDescriptors(c, descriptors, nil)
}

// ReadValue answers with the stored value.
func (f *FakeBinding) ReadValue(c central.Characteristic) {
	if f.record("ReadValue", c) {
		return
	}
	if _, ok := f.profile(c.Peripheral().ID); ok {
		f.EmitValue(c, f.Value(c), nil)
	}
}

// WriteValue stores data; writes with response are confirmed.
func (f *FakeBinding) WriteValue(c central.Characteristic, data []byte, t central.WriteType) {
	if f.record("WriteValue", c, data, t) {
		return
	}
	if _, ok := f.profile(c.Peripheral().ID); !ok {
		return
	}
	f.mu.Lock()
	f.values[c.ID] = append([]byte(nil), data...)
	f.mu.Unlock()
	if t == central.WriteWithResponse {
		f.EmitWritten(c, nil)
	}
}

// SetNotifyValue confirms the new notification state.
func (f *FakeBinding) SetNotifyValue(c central.Characteristic, enabled bool) {
	if f.record("SetNotifyValue", c, enabled) {
		return
	}
	if _, ok := f.profile(c.Peripheral().ID); ok {
		f.EmitNotifyState(c, enabled, nil)
	}
}

// ReadRSSI answers with the profile RSSI.
func (f *FakeBinding) ReadRSSI(p central.Peripheral) {
	if f.record("ReadRSSI", p) {
		return
	}
	if profile, ok := f.profile(p.ID); ok {
		f.EmitRSSI(p, profile.RSSI, nil)
	}
}

// SetState changes the adapter state and raises StateChanged.
func (f *FakeBinding) SetState(st central.AdapterState) {
	f.mu.Lock()
	f.state = st
	f.mu.Unlock()
	f.Publish(central.Event{Kind: central.EventStateChanged, State: st})
}

// Discover raises PeripheralDiscovered.
func (f *FakeBinding) Discover(sp central.ScannedPeripheral) {
	f.Publish(central.Event{
		Kind:          central.EventPeripheralDiscovered,
		Peripheral:    sp.Peripheral,
		Advertisement: sp.Advertisement,
		RSSI:          sp.RSSI,
	})
}

// EmitConnected marks p connected and raises PeripheralConnected.
func (f *FakeBinding) EmitConnected(p central.Peripheral) {
	f.SetPeripheralState(p.ID, central.PeripheralConnected)
	f.Publish(central.Event{Kind: central.EventPeripheralConnected, Peripheral: p})
}

// EmitConnectFailed marks p disconnected and raises PeripheralConnectFailed.
func (f *FakeBinding) EmitConnectFailed(p central.Peripheral, err error) {
	f.SetPeripheralState(p.ID, central.PeripheralDisconnected)
	f.Publish(central.Event{Kind: central.EventPeripheralConnectFailed, Peripheral: p, Err: err})
}

// EmitDisconnected marks p disconnected and raises PeripheralDisconnected.
func (f *FakeBinding) EmitDisconnected(p central.Peripheral, err error) {
	f.SetPeripheralState(p.ID, central.PeripheralDisconnected)
	f.Publish(central.Event{Kind: central.EventPeripheralDisconnected, Peripheral: p, Err: err})
}

// EmitServices raises ServicesDiscovered.
func (f *FakeBinding) EmitServices(p central.Peripheral, services []central.Service, err error) {
	f.Publish(central.Event{Kind: central.EventServicesDiscovered, Peripheral: p, Services: services, Err: err})
}

// EmitIncludedServices raises IncludedServicesDiscovered.
func (f *FakeBinding) EmitIncludedServices(s central.Service, services []central.Service, err error) {
	f.Publish(central.Event{
		Kind:       central.EventIncludedServicesDiscovered,
		Peripheral: s.Peripheral,
		Service:    s,
		Services:   services,
		Err:        err,
	})
}

// EmitCharacteristics raises CharacteristicsDiscovered.
func (f *FakeBinding) EmitCharacteristics(s central.Service, chars []central.Characteristic, err error) {
	f.Publish(central.Event{
		Kind:            central.EventCharacteristicsDiscovered,
		Peripheral:      s.Peripheral,
		Service:         s,
		Characteristics: chars,
		Err:             err,
	})
}

// EmitDescriptors raises DescriptorsDiscovered.
func (f *FakeBinding) EmitDescriptors(c central.Characteristic, descriptors []central.Descriptor, err error) {
	f.Publish(central.Event{
		Kind:           central.EventDescriptorsDiscovered,
		Peripheral:     c.Peripheral(),
		Characteristic: c,
		Descriptors:    descriptors,
		Err:            err,
	})
}

// EmitValue raises ValueUpdated with value.
func (f *FakeBinding) EmitValue(c central.Characteristic, value []byte, err error) {
	updated := c
	updated.Value = value
	f.Publish(central.Event{Kind: central.EventValueUpdated, Peripheral: c.Peripheral(), Characteristic: updated, Err: err})
}

// EmitWritten raises ValueWritten.
func (f *FakeBinding) EmitWritten(c central.Characteristic, err error) {
	f.Publish(central.Event{Kind: central.EventValueWritten, Peripheral: c.Peripheral(), Characteristic: c, Err: err})
}

// EmitNotifyState raises NotificationStateUpdated.
func (f *FakeBinding) EmitNotifyState(c central.Characteristic, enabled bool, err error) {
	updated := c
	updated.Notifying = enabled && err == nil
	f.Publish(central.Event{Kind: central.EventNotificationStateUpdated, Peripheral: c.Peripheral(), Characteristic: updated, Err: err})
}

// EmitRSSI raises RSSIRead.
func (f *FakeBinding) EmitRSSI(p central.Peripheral, rssi int, err error) {
	f.Publish(central.Event{Kind: central.EventRSSIRead, Peripheral: p, RSSI: rssi, Err: err})
}

// EmitNameUpdated raises NameUpdated with p carrying the new name.
func (f *FakeBinding) EmitNameUpdated(p central.Peripheral) {
	f.Publish(central.Event{Kind: central.EventNameUpdated, Peripheral: p})
}

// EmitServicesModified raises ServicesModified.
func (f *FakeBinding) EmitServicesModified(p central.Peripheral, invalidated []central.Service) {
	f.Publish(central.Event{Kind: central.EventServicesModified, Peripheral: p, Services: invalidated})
}
