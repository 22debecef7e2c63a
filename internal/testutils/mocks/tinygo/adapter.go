// Package mocks provides testify mocks of the adapter interfaces driven by the tinygo binding.
package mocks

import (
	"context"

	"github.com/srg/rxble/internal/binding/tinygo"
	"github.com/stretchr/testify/mock"
	"tinygo.org/x/bluetooth"
)

// MockAdapter mocks tinygo.Adapter. Scan delivers Advertisements and then blocks until
// StopScan is called.
type MockAdapter struct {
	mock.Mock

	Advertisements []tinygo.Advertisement

	stop    chan struct{}
	handler func(address string, connected bool)
}

// NewMockAdapter returns an adapter whose scan reports ads.
func NewMockAdapter(ads ...tinygo.Advertisement) *MockAdapter {
	return &MockAdapter{Advertisements: ads, stop: make(chan struct{}, 1)}
}

// Enable provides a mock function with no fields
func (m *MockAdapter) Enable() error {
	ret := m.Called()
	return ret.Error(0)
}

// Scan provides a mock function with given fields: fn
func (m *MockAdapter) Scan(fn func(tinygo.Advertisement)) error {
	ret := m.Called(fn)
	if err := ret.Error(0); err != nil {
		return err
	}
	for _, adv := range m.Advertisements {
		fn(adv)
	}
	<-m.stop
	return nil
}

// StopScan provides a mock function with no fields
func (m *MockAdapter) StopScan() error {
	ret := m.Called()
	if err := ret.Error(0); err != nil {
		return err
	}
	select {
	case m.stop <- struct{}{}:
	default:
	}
	return nil
}

// Connect provides a mock function with given fields: ctx, address
func (m *MockAdapter) Connect(ctx context.Context, address string) (tinygo.Device, error) {
	ret := m.Called(ctx, address)
	if rf, ok := ret.Get(0).(func(context.Context, string) (tinygo.Device, error)); ok {
		return rf(ctx, address)
	}
	var dev tinygo.Device
	if v := ret.Get(0); v != nil {
		dev = v.(tinygo.Device)
	}
	return dev, ret.Error(1)
}

// SetConnectHandler records fn so that tests can raise connection changes.
func (m *MockAdapter) SetConnectHandler(fn func(address string, connected bool)) {
	m.Called(fn)
	m.handler = fn
}

// RaiseConnectionChange invokes the handler installed by the binding.
func (m *MockAdapter) RaiseConnectionChange(address string, connected bool) {
	if m.handler != nil {
		m.handler(address, connected)
	}
}

// MockDevice mocks tinygo.Device.
type MockDevice struct {
	mock.Mock
}

// DiscoverServices provides a mock function with given fields: uuids
func (m *MockDevice) DiscoverServices(uuids []bluetooth.UUID) ([]tinygo.Service, error) {
	ret := m.Called(uuids)
	var services []tinygo.Service
	if v := ret.Get(0); v != nil {
		services = v.([]tinygo.Service)
	}
	return services, ret.Error(1)
}

// Disconnect provides a mock function with no fields
func (m *MockDevice) Disconnect() error {
	ret := m.Called()
	return ret.Error(0)
}

// MockService mocks tinygo.Service.
type MockService struct {
	mock.Mock
	ID bluetooth.UUID
}

// UUID returns the configured service UUID.
func (m *MockService) UUID() bluetooth.UUID {
	return m.ID
}

// DiscoverCharacteristics provides a mock function with given fields: uuids
func (m *MockService) DiscoverCharacteristics(uuids []bluetooth.UUID) ([]tinygo.Characteristic, error) {
	ret := m.Called(uuids)
	var chars []tinygo.Characteristic
	if v := ret.Get(0); v != nil {
		chars = v.([]tinygo.Characteristic)
	}
	return chars, ret.Error(1)
}

// MockCharacteristic mocks tinygo.Characteristic. Value is returned by Read.
type MockCharacteristic struct {
	mock.Mock
	ID    bluetooth.UUID
	Value []byte

	notify func(buf []byte)
}

// UUID returns the configured characteristic UUID.
func (m *MockCharacteristic) UUID() bluetooth.UUID {
	return m.ID
}

// Read provides a mock function with given fields: data
func (m *MockCharacteristic) Read(data []byte) (int, error) {
	ret := m.Called(data)
	if err := ret.Error(0); err != nil {
		return 0, err
	}
	return copy(data, m.Value), nil
}

// Write provides a mock function with given fields: p
func (m *MockCharacteristic) Write(p []byte) (int, error) {
	ret := m.Called(p)
	return len(p), ret.Error(0)
}

// WriteWithoutResponse provides a mock function with given fields: p
func (m *MockCharacteristic) WriteWithoutResponse(p []byte) (int, error) {
	ret := m.Called(p)
	return len(p), ret.Error(0)
}

// EnableNotifications provides a mock function with given fields: callback
func (m *MockCharacteristic) EnableNotifications(callback func(buf []byte)) error {
	ret := m.Called(callback != nil)
	if ret.Error(0) == nil {
		m.notify = callback
	}
	return ret.Error(0)
}

// WithoutResponseWrites hides Write from c, like the BlueZ characteristic of tinygo
// bluetooth, which only sends write commands.
func WithoutResponseWrites(c *MockCharacteristic) tinygo.Characteristic {
	return commandCharacteristic{c}
}

type commandCharacteristic struct {
	c *MockCharacteristic
}

func (w commandCharacteristic) UUID() bluetooth.UUID { return w.c.UUID() }

func (w commandCharacteristic) Read(data []byte) (int, error) { return w.c.Read(data) }

func (w commandCharacteristic) WriteWithoutResponse(p []byte) (int, error) {
	return w.c.WriteWithoutResponse(p)
}

func (w commandCharacteristic) EnableNotifications(callback func(buf []byte)) error {
	return w.c.EnableNotifications(callback)
}

// Notify delivers buf to the registered notification callback.
func (m *MockCharacteristic) Notify(buf []byte) bool {
	if m.notify == nil {
		return false
	}
	m.notify(buf)
	return true
}
